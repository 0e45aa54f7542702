// internal/storage/sqlite/sqlite.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/rovshanmuradov/vcurve/internal/storage"
	"github.com/rovshanmuradov/vcurve/internal/storage/models"
)

// Store is the SQLite implementation of storage.Storage.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	path   string
}

var _ storage.Storage = (*Store)(nil)

// Open opens (creating if needed) the database at path and runs migrations.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger.Named("sqlite"), path: path}
	if err := s.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("Storage opened", zap.String("path", path))
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RunMigrations creates the schema. Safe to run on every start.
func (s *Store) RunMigrations() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS curves (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			curve_id TEXT NOT NULL UNIQUE,
			token TEXT NOT NULL,
			asset TEXT NOT NULL,
			asset_kind TEXT NOT NULL,
			owner TEXT NOT NULL,
			supply_cap TEXT NOT NULL,
			grad_threshold TEXT NOT NULL,
			grad_metric TEXT NOT NULL,
			max_tx TEXT NOT NULL,
			buy_fee_bps INTEGER NOT NULL,
			sell_fee_bps INTEGER NOT NULL,
			asset_rate INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			curve_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			account TEXT NOT NULL,
			amount_in TEXT NOT NULL,
			amount_out TEXT NOT NULL,
			fee TEXT NOT NULL,
			price TEXT NOT NULL,
			reserve_token TEXT NOT NULL,
			reserve_asset TEXT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			block_time DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_curve ON trades(curve_id, sequence)`,
		`CREATE TABLE IF NOT EXISTS pools (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pool_id TEXT NOT NULL UNIQUE,
			curve_id TEXT NOT NULL,
			token_a TEXT NOT NULL,
			token_b TEXT NOT NULL,
			position_id TEXT NOT NULL,
			token_amount TEXT NOT NULL,
			asset_amount TEXT NOT NULL,
			last_update DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

func (s *Store) SaveCurve(ctx context.Context, c *models.Curve) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO curves (curve_id, token, asset, asset_kind, owner, supply_cap, grad_threshold,
			grad_metric, max_tx, buy_fee_bps, sell_fee_bps, asset_rate, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(curve_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		c.CurveID, c.Token, c.Asset, c.AssetKind, c.Owner, c.SupplyCap, c.GradThreshold,
		c.GradMetric, c.MaxTx, c.BuyFeeBps, c.SellFeeBps, c.AssetRate, c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save curve %s: %w", c.CurveID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		c.ID = id
	}
	return nil
}

func (s *Store) GetCurve(ctx context.Context, curveID string) (*models.Curve, error) {
	var c models.Curve
	err := s.db.QueryRowContext(ctx, `
		SELECT id, curve_id, token, asset, asset_kind, owner, supply_cap, grad_threshold, grad_metric,
			max_tx, buy_fee_bps, sell_fee_bps, asset_rate, status, created_at, updated_at
		FROM curves WHERE curve_id = ?`, curveID).Scan(
		&c.ID, &c.CurveID, &c.Token, &c.Asset, &c.AssetKind, &c.Owner, &c.SupplyCap, &c.GradThreshold,
		&c.GradMetric, &c.MaxTx, &c.BuyFeeBps, &c.SellFeeBps, &c.AssetRate, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("curve %s: %w", curveID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get curve %s: %w", curveID, err)
	}
	return &c, nil
}

func (s *Store) UpdateCurveStatus(ctx context.Context, curveID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE curves SET status = ?, updated_at = ? WHERE curve_id = ?`,
		status, time.Now().UTC(), curveID)
	if err != nil {
		return fmt.Errorf("failed to update curve status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("curve %s: %w", curveID, storage.ErrNotFound)
	}
	return nil
}

// SaveTrade inserts a journal row. Replaying the same event is a no-op.
func (s *Store) SaveTrade(ctx context.Context, t *models.Trade) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (event_id, curve_id, sequence, event_type, account, amount_in, amount_out,
			fee, price, reserve_token, reserve_asset, status, error_message, block_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		t.EventID, t.CurveID, t.Sequence, t.EventType, t.Account, t.AmountIn, t.AmountOut,
		t.Fee, t.Price, t.ReserveToken, t.ReserveAsset, t.Status, t.ErrorMessage, t.BlockTime.UTC(), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		t.ID = id
	}
	return nil
}

// ListTrades returns the journal of a curve in sequence order.
func (s *Store) ListTrades(ctx context.Context, curveID string, limit, offset int) ([]*models.Trade, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, curve_id, sequence, event_type, account, amount_in, amount_out, fee, price,
			reserve_token, reserve_asset, status, error_message, block_time, created_at
		FROM trades WHERE curve_id = ?
		ORDER BY sequence, id
		LIMIT ? OFFSET ?`, curveID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var out []*models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.EventID, &t.CurveID, &t.Sequence, &t.EventType, &t.Account,
			&t.AmountIn, &t.AmountOut, &t.Fee, &t.Price, &t.ReserveToken, &t.ReserveAsset,
			&t.Status, &t.ErrorMessage, &t.BlockTime, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *Store) SavePoolInfo(ctx context.Context, info *models.PoolInfo) error {
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pools (pool_id, curve_id, token_a, token_b, position_id, token_amount, asset_amount, last_update, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pool_id) DO UPDATE SET
			position_id = excluded.position_id,
			token_amount = excluded.token_amount,
			asset_amount = excluded.asset_amount,
			last_update = excluded.last_update`,
		info.PoolID, info.CurveID, info.TokenA, info.TokenB, info.PositionID,
		info.TokenAmount, info.AssetAmount, info.LastUpdate.UTC(), info.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save pool %s: %w", info.PoolID, err)
	}
	return nil
}

func (s *Store) GetPoolInfo(ctx context.Context, poolID string) (*models.PoolInfo, error) {
	var p models.PoolInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT id, pool_id, curve_id, token_a, token_b, position_id, token_amount, asset_amount, last_update, created_at
		FROM pools WHERE pool_id = ?`, poolID).Scan(
		&p.ID, &p.PoolID, &p.CurveID, &p.TokenA, &p.TokenB, &p.PositionID,
		&p.TokenAmount, &p.AssetAmount, &p.LastUpdate, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pool %s: %w", poolID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pool %s: %w", poolID, err)
	}
	return &p, nil
}
