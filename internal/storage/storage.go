// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/rovshanmuradov/vcurve/internal/storage/models"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Storage persists the curve registry and its event journal.
type Storage interface {
	// Curves
	SaveCurve(ctx context.Context, c *models.Curve) error
	GetCurve(ctx context.Context, curveID string) (*models.Curve, error)
	UpdateCurveStatus(ctx context.Context, curveID, status string) error

	// Journal
	SaveTrade(ctx context.Context, t *models.Trade) error
	ListTrades(ctx context.Context, curveID string, limit, offset int) ([]*models.Trade, error)

	// Pools
	SavePoolInfo(ctx context.Context, info *models.PoolInfo) error
	GetPoolInfo(ctx context.Context, poolID string) (*models.PoolInfo, error)

	RunMigrations() error
	Close() error
}
