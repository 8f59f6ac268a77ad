package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending = "PENDING"
	StatusSent    = "SENT"
	StatusFailed  = "FAILED"
	StatusBlocked = "BLOCKED"
)

// ScheduledMessage is one admitted missed call awaiting (or done with) dispatch.
type ScheduledMessage struct {
	ID               string         `json:"id" gorm:"column:id;primaryKey"`
	DeviceID         string         `json:"device_id" gorm:"column:device_id;index"`
	PhoneNumber      string         `json:"phone_number" gorm:"column:phone_number;index"`
	CallTime         time.Time      `json:"call_time" gorm:"column:call_time"`
	ScheduledTime    time.Time      `json:"scheduled_time" gorm:"column:scheduled_time;index"`
	MessageText      string         `json:"message_text" gorm:"column:message_text"`
	Status           string         `json:"status" gorm:"column:status;index"`
	AttemptCount     int            `json:"attempt_count" gorm:"column:attempt_count"`
	LastError        string         `json:"last_error,omitempty" gorm:"column:last_error"`
	ProviderMsgID    string         `json:"provider_msg_id,omitempty" gorm:"column:provider_msg_id"`
	ProviderResponse datatypes.JSON `json:"provider_response,omitempty" gorm:"type:jsonb;column:provider_response"`
	SentAt           *time.Time     `json:"sent_at,omitempty" gorm:"column:sent_at"`
	ClaimedAt        *time.Time     `json:"-" gorm:"column:claimed_at"`
	CreatedAt        time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (ScheduledMessage) TableName() string {
	return "scheduled_messages"
}

// IsTerminal reports whether the message will never be dispatched again.
func (m *ScheduledMessage) IsTerminal() bool {
	return m.Status == StatusSent || m.Status == StatusFailed || m.Status == StatusBlocked
}

// MessageStats aggregates per-device counts by status.
type MessageStats struct {
	Total   int64 `json:"total"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Pending int64 `json:"pending"`
	Blocked int64 `json:"blocked"`
}
