// internal/storage/models/trade.go
package models

import "time"

// Trade is one journaled curve event: a buy, a sell, the initial deposit,
// a fee claim or a graduation step.
type Trade struct {
	BaseModel
	EventID      string
	CurveID      string
	Sequence     uint64
	EventType    string
	Account      string
	AmountIn     string
	AmountOut    string
	Fee          string
	Price        string
	ReserveToken string
	ReserveAsset string
	Status       string
	ErrorMessage string
	BlockTime    time.Time
}
