package model

import "time"

// BlockReasonOptOut marks numbers that asked to stop receiving messages.
const BlockReasonOptOut = "USER_OPTOUT"

// BlockedNumber is a phone number excluded from every auto-response.
type BlockedNumber struct {
	ID          int64     `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	PhoneNumber string    `json:"phone_number" gorm:"column:phone_number;uniqueIndex"`
	Reason      string    `json:"reason,omitempty" gorm:"column:reason"`
	BlockedAt   time.Time `json:"blocked_at" gorm:"column:blocked_at"`
}

// TableName specifies the table name for GORM.
func (BlockedNumber) TableName() string {
	return "blocked_numbers"
}
