package model

import "time"

const (
	RateScopeDevice = "DEVICE"
	RateScopePhone  = "PHONE"
)

// RateLimitCounter is one fixed-window counter row. Expiry is lazy: rows
// past their window are reset in place on the next admitted action and
// only removed by the hygiene sweep.
type RateLimitCounter struct {
	Identifier   string    `json:"identifier" gorm:"column:identifier;primaryKey"`
	Scope        string    `json:"scope" gorm:"column:scope;primaryKey"`
	RequestCount int       `json:"request_count" gorm:"column:request_count;default:0"`
	WindowStart  time.Time `json:"window_start" gorm:"column:window_start"`
}

// TableName specifies the table name for GORM.
func (RateLimitCounter) TableName() string {
	return "rate_limit_counters"
}
