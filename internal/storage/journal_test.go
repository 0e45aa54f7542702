// internal/storage/journal_test.go
package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/vcurve/internal/events"
	"github.com/rovshanmuradov/vcurve/internal/storage"
	"github.com/rovshanmuradov/vcurve/internal/storage/models"
)

type memStore struct {
	curves map[string]*models.Curve
	trades []*models.Trade
	pools  map[string]*models.PoolInfo
}

func newMemStore() *memStore {
	return &memStore{curves: map[string]*models.Curve{}, pools: map[string]*models.PoolInfo{}}
}

func (m *memStore) SaveCurve(_ context.Context, c *models.Curve) error {
	m.curves[c.CurveID] = c
	return nil
}

func (m *memStore) GetCurve(_ context.Context, id string) (*models.Curve, error) {
	c, ok := m.curves[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return c, nil
}

func (m *memStore) UpdateCurveStatus(_ context.Context, id, status string) error {
	c, ok := m.curves[id]
	if !ok {
		return storage.ErrNotFound
	}
	c.Status = status
	return nil
}

func (m *memStore) SaveTrade(_ context.Context, t *models.Trade) error {
	m.trades = append(m.trades, t)
	return nil
}

func (m *memStore) ListTrades(context.Context, string, int, int) ([]*models.Trade, error) {
	return m.trades, nil
}

func (m *memStore) SavePoolInfo(_ context.Context, p *models.PoolInfo) error {
	m.pools[p.PoolID] = p
	return nil
}

func (m *memStore) GetPoolInfo(_ context.Context, id string) (*models.PoolInfo, error) {
	p, ok := m.pools[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

func (m *memStore) RunMigrations() error { return nil }
func (m *memStore) Close() error         { return nil }

func TestJournalRecordsEvents(t *testing.T) {
	store := newMemStore()
	j := storage.NewJournal(store, zaptest.NewLogger(t))
	ctx := context.Background()
	curveID := common.HexToAddress("0xc0")
	store.curves[curveID.Hex()] = &models.Curve{CurveID: curveID.Hex(), Status: "uninitialized"}

	buy := &events.CurveEvent{
		BaseEvent: events.NewBaseEvent(events.CurveBuy, time.Now()),
		CurveID:   curveID,
		Account:   common.HexToAddress("0xa1"),
		Sequence:  2,
		AmountIn:  uint256.NewInt(1000),
		AmountOut: uint256.NewInt(900),
		Price:     uint256.NewInt(7),
		ReservesAfter: events.Reserves{
			Token: uint256.NewInt(5),
			Asset: uint256.NewInt(6),
		},
		Status: "active",
	}
	require.NoError(t, j.Handle(ctx, buy))
	require.Len(t, store.trades, 1)
	tr := store.trades[0]
	assert.Equal(t, buy.ID, tr.EventID)
	assert.Equal(t, "1000", tr.AmountIn)
	assert.Equal(t, "0", tr.Fee, "nil amounts are stored as zero")
	assert.Equal(t, "5", tr.ReserveToken)
	assert.Equal(t, "uninitialized", store.curves[curveID.Hex()].Status, "trades do not move status")

	grad := &events.CurveEvent{
		BaseEvent:  events.NewBaseEvent(events.CurveGraduate, time.Now()),
		CurveID:    curveID,
		Sequence:   3,
		AmountIn:   uint256.NewInt(11),
		AmountOut:  uint256.NewInt(990),
		Status:     "graduated",
		PoolID:     "pool-1",
		PositionID: "pos-1",
	}
	require.NoError(t, j.Handle(ctx, grad))
	assert.Equal(t, "graduated", store.curves[curveID.Hex()].Status)
	require.Contains(t, store.pools, "pool-1")
	assert.Equal(t, "990", store.pools["pool-1"].TokenAmount)
	assert.Equal(t, "11", store.pools["pool-1"].AssetAmount)
}

func TestJournalIgnoresForeignEvents(t *testing.T) {
	store := newMemStore()
	j := storage.NewJournal(store, zaptest.NewLogger(t))
	require.NoError(t, j.Handle(context.Background(), events.NewBaseEvent("other", time.Now())))
	assert.Empty(t, store.trades)
}
