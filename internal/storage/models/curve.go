// internal/storage/models/curve.go
package models

import "time"

// Curve is the registry row of one deployed curve. Amounts are decimal
// strings of base units so no precision is lost in SQL.
type Curve struct {
	BaseModel
	CurveID       string
	Token         string
	Asset         string
	AssetKind     string
	Owner         string
	SupplyCap     string
	GradThreshold string
	GradMetric    string
	MaxTx         string
	BuyFeeBps     uint64
	SellFeeBps    uint64
	AssetRate     uint64
	Status        string
	UpdatedAt     time.Time
}
