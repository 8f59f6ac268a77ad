package storage

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"github.com/demoody/missed-call-responder/internal/model"
)

// MessageRepo defines scheduled message storage operations
type MessageRepo interface {
	Create(ctx context.Context, msg *model.ScheduledMessage) error
	FindByID(ctx context.Context, id string) (*model.ScheduledMessage, error)
	FindRecentActive(ctx context.Context, deviceID, phoneNumber string, cutoff time.Time) (*model.ScheduledMessage, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error)
	Claim(ctx context.Context, id string, now time.Time, claimTTL time.Duration) (bool, error)
	MarkSent(ctx context.Context, id string, providerMsgID string, providerResponse datatypes.JSON, sentAt time.Time) error
	MarkBlocked(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, attemptCount int, lastError string) error
	Reschedule(ctx context.Context, id string, scheduledTime time.Time, attemptCount int, lastError string) error
	FindByDevicePaginated(ctx context.Context, deviceID string, limit, offset int) ([]model.ScheduledMessage, error)
	Stats(ctx context.Context, deviceID string) (*model.MessageStats, error)
	Close(ctx context.Context) error
}

// DeviceRepo defines device registry storage operations
type DeviceRepo interface {
	Save(ctx context.Context, device *model.Device) error
	FindByDeviceID(ctx context.Context, deviceID string) (*model.Device, error)
	TouchActivity(ctx context.Context, deviceID string, at time.Time) error
	Deactivate(ctx context.Context, deviceID string) error
	Close(ctx context.Context) error
}

// BlockListRepo defines block list storage operations
type BlockListRepo interface {
	IsBlocked(ctx context.Context, phoneNumber string) (bool, error)
	Block(ctx context.Context, phoneNumber, reason string, at time.Time) error
	Unblock(ctx context.Context, phoneNumber string) error
	List(ctx context.Context, limit, offset int) ([]model.BlockedNumber, error)
	Close(ctx context.Context) error
}

// RateLimitRepo defines rate limit counter storage operations
type RateLimitRepo interface {
	Admit(ctx context.Context, identifier, scope string, maxRequests int, window time.Duration, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, window time.Duration, now time.Time) (int64, error)
	Close(ctx context.Context) error
}
