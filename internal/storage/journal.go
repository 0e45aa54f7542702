// internal/storage/journal.go
package storage

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/events"
	"github.com/rovshanmuradov/vcurve/internal/storage/models"
)

// Journal writes every curve event into a Storage. Subscribe it to the
// event bus with AllEvents.
type Journal struct {
	store  Storage
	logger *zap.Logger
}

var _ events.Handler = (*Journal)(nil)

func NewJournal(store Storage, logger *zap.Logger) *Journal {
	return &Journal{store: store, logger: logger.Named("journal")}
}

// Handle implements events.Handler.
func (j *Journal) Handle(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.CurveEvent)
	if !ok {
		return nil
	}

	if err := j.store.SaveTrade(ctx, TradeFromEvent(ev)); err != nil {
		return fmt.Errorf("failed to journal %s: %w", ev.Type(), err)
	}

	switch ev.Type() {
	case events.CurveAddLiquidity, events.CurveGraduationStarted:
		if err := j.store.UpdateCurveStatus(ctx, ev.CurveID.Hex(), ev.Status); err != nil {
			j.logger.Warn("Curve status not updated", zap.String("curve_id", ev.CurveID.Hex()), zap.Error(err))
		}
	case events.CurveGraduate:
		if err := j.store.UpdateCurveStatus(ctx, ev.CurveID.Hex(), ev.Status); err != nil {
			j.logger.Warn("Curve status not updated", zap.String("curve_id", ev.CurveID.Hex()), zap.Error(err))
		}
		info := &models.PoolInfo{
			PoolID:      ev.PoolID,
			CurveID:     ev.CurveID.Hex(),
			PositionID:  ev.PositionID,
			TokenAmount: dec(ev.AmountOut),
			AssetAmount: dec(ev.AmountIn),
			LastUpdate:  ev.Timestamp(),
		}
		if err := j.store.SavePoolInfo(ctx, info); err != nil {
			return fmt.Errorf("failed to save pool info: %w", err)
		}
	}
	return nil
}

// TradeFromEvent flattens a curve event into a journal row.
func TradeFromEvent(ev *events.CurveEvent) *models.Trade {
	return &models.Trade{
		EventID:      ev.ID,
		CurveID:      ev.CurveID.Hex(),
		Sequence:     ev.Sequence,
		EventType:    string(ev.Type()),
		Account:      ev.Account.Hex(),
		AmountIn:     dec(ev.AmountIn),
		AmountOut:    dec(ev.AmountOut),
		Fee:          dec(ev.Fee),
		Price:        dec(ev.Price),
		ReserveToken: dec(ev.ReservesAfter.Token),
		ReserveAsset: dec(ev.ReservesAfter.Asset),
		Status:       ev.Status,
		ErrorMessage: ev.Error,
		BlockTime:    ev.Timestamp(),
	}
}

func dec(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.Dec()
}
