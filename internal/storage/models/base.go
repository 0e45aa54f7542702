// internal/storage/models/base.go
package models

import "time"

// BaseModel carries the row identity shared by all journal tables.
type BaseModel struct {
	ID        int64
	CreatedAt time.Time
}
