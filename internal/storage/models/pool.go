// internal/storage/models/pool.go
package models

import (
	"time"
)

// PoolInfo is the external pool a curve graduated into.
type PoolInfo struct {
	BaseModel
	PoolID      string
	CurveID     string
	TokenA      string
	TokenB      string
	PositionID  string
	TokenAmount string
	AssetAmount string
	LastUpdate  time.Time
}
