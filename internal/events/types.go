// internal/events/types.go
package events

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// EventType represents the type of event.
type EventType string

const (
	// AllEvents subscribes a handler to every event type.
	AllEvents EventType = "*"

	// Curve lifecycle and trade events
	CurveAddLiquidity      EventType = "curve.add_liquidity"
	CurveBuy               EventType = "curve.buy"
	CurveSell              EventType = "curve.sell"
	CurveGraduationStarted EventType = "curve.graduation_started"
	CurveGraduate          EventType = "curve.graduate"
	CurveMigrationFailed   EventType = "curve.migration_failed"
	CurveFeesClaimed       EventType = "curve.fees_claimed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	ID        string
	EventType EventType
	EventTime time.Time
}

// NewBaseEvent stamps a fresh id.
func NewBaseEvent(typ EventType, at time.Time) BaseEvent {
	return BaseEvent{ID: uuid.NewString(), EventType: typ, EventTime: at}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// Reserves is the pair of virtual reserves at one point in time.
type Reserves struct {
	Token *uint256.Int `json:"token"`
	Asset *uint256.Int `json:"asset"`
}

// CurveEvent is the structured record emitted for every curve state
// transition. Amounts are base units; Price is asset per token scaled by 1e18.
type CurveEvent struct {
	BaseEvent
	CurveID        common.Address
	Account        common.Address
	Sequence       uint64
	ReservesBefore Reserves
	ReservesAfter  Reserves
	AmountIn       *uint256.Int
	AmountOut      *uint256.Int
	Fee            *uint256.Int
	Price          *uint256.Int
	Status         string

	// Graduation details
	PoolID     string
	PositionID string
	Error      string
}
