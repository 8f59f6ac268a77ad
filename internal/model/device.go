package model

import "time"

// Device is a registered phone allowed to report missed calls.
type Device struct {
	ID             int64      `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	DeviceID       string     `json:"device_id" gorm:"column:device_id;uniqueIndex"`
	DeviceName     string     `json:"device_name,omitempty" gorm:"column:device_name"`
	APIToken       string     `json:"api_token,omitempty" gorm:"column:api_token"`
	IsActive       bool       `json:"is_active" gorm:"column:is_active;default:true"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty" gorm:"column:last_activity_at"`
	CreatedAt      time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Device) TableName() string {
	return "devices"
}
