package storage

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"github.com/demoody/missed-call-responder/internal/model"
)

// MessageRepoAdapter adapts the PostgresRepo to the MessageRepo interface
type MessageRepoAdapter struct {
	postgres *PostgresRepo
}

// NewMessageRepoAdapter creates a new scheduled message repository adapter
func NewMessageRepoAdapter(postgres *PostgresRepo) MessageRepo {
	return &MessageRepoAdapter{postgres: postgres}
}

// Create inserts a new scheduled message
func (a *MessageRepoAdapter) Create(ctx context.Context, msg *model.ScheduledMessage) error {
	return a.postgres.CreateScheduledMessage(ctx, msg)
}

// FindByID finds a scheduled message by ID
func (a *MessageRepoAdapter) FindByID(ctx context.Context, id string) (*model.ScheduledMessage, error) {
	return a.postgres.FindScheduledMessageByID(ctx, id)
}

// FindRecentActive finds the latest non-failed record for a device/phone pair
func (a *MessageRepoAdapter) FindRecentActive(ctx context.Context, deviceID, phoneNumber string, cutoff time.Time) (*model.ScheduledMessage, error) {
	return a.postgres.FindRecentActive(ctx, deviceID, phoneNumber, cutoff)
}

// FindDue finds pending messages due for dispatch
func (a *MessageRepoAdapter) FindDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	return a.postgres.FindDueMessages(ctx, now, limit)
}

// Claim marks a message as taken by the current dispatch cycle
func (a *MessageRepoAdapter) Claim(ctx context.Context, id string, now time.Time, claimTTL time.Duration) (bool, error) {
	return a.postgres.ClaimMessage(ctx, id, now, claimTTL)
}

// MarkSent moves a message to SENT
func (a *MessageRepoAdapter) MarkSent(ctx context.Context, id string, providerMsgID string, providerResponse datatypes.JSON, sentAt time.Time) error {
	return a.postgres.MarkMessageSent(ctx, id, providerMsgID, providerResponse, sentAt)
}

// MarkBlocked moves a message to BLOCKED
func (a *MessageRepoAdapter) MarkBlocked(ctx context.Context, id string) error {
	return a.postgres.MarkMessageBlocked(ctx, id)
}

// MarkFailed moves a message to FAILED
func (a *MessageRepoAdapter) MarkFailed(ctx context.Context, id string, attemptCount int, lastError string) error {
	return a.postgres.MarkMessageFailed(ctx, id, attemptCount, lastError)
}

// Reschedule moves a pending message's scheduled time
func (a *MessageRepoAdapter) Reschedule(ctx context.Context, id string, scheduledTime time.Time, attemptCount int, lastError string) error {
	return a.postgres.RescheduleMessage(ctx, id, scheduledTime, attemptCount, lastError)
}

// FindByDevicePaginated lists a device's messages
func (a *MessageRepoAdapter) FindByDevicePaginated(ctx context.Context, deviceID string, limit, offset int) ([]model.ScheduledMessage, error) {
	return a.postgres.FindMessagesByDevicePaginated(ctx, deviceID, limit, offset)
}

// Stats aggregates a device's message counts by status
func (a *MessageRepoAdapter) Stats(ctx context.Context, deviceID string) (*model.MessageStats, error) {
	return a.postgres.GetMessageStats(ctx, deviceID)
}

func (a *MessageRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// DeviceRepoAdapter adapts the PostgresRepo to the DeviceRepo interface
type DeviceRepoAdapter struct {
	postgres *PostgresRepo
}

// NewDeviceRepoAdapter creates a new device repository adapter
func NewDeviceRepoAdapter(postgres *PostgresRepo) DeviceRepo {
	return &DeviceRepoAdapter{postgres: postgres}
}

// Save upserts a device
func (a *DeviceRepoAdapter) Save(ctx context.Context, device *model.Device) error {
	return a.postgres.SaveDevice(ctx, device)
}

// FindByDeviceID finds a device by its external identifier
func (a *DeviceRepoAdapter) FindByDeviceID(ctx context.Context, deviceID string) (*model.Device, error) {
	return a.postgres.FindDeviceByDeviceID(ctx, deviceID)
}

// TouchActivity records device activity
func (a *DeviceRepoAdapter) TouchActivity(ctx context.Context, deviceID string, at time.Time) error {
	return a.postgres.TouchDeviceActivity(ctx, deviceID, at)
}

// Deactivate marks a device inactive
func (a *DeviceRepoAdapter) Deactivate(ctx context.Context, deviceID string) error {
	return a.postgres.DeactivateDevice(ctx, deviceID)
}

func (a *DeviceRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// BlockListRepoAdapter adapts the PostgresRepo to the BlockListRepo interface
type BlockListRepoAdapter struct {
	postgres *PostgresRepo
}

// NewBlockListRepoAdapter creates a new block list repository adapter
func NewBlockListRepoAdapter(postgres *PostgresRepo) BlockListRepo {
	return &BlockListRepoAdapter{postgres: postgres}
}

// IsBlocked reports whether a number is blocked
func (a *BlockListRepoAdapter) IsBlocked(ctx context.Context, phoneNumber string) (bool, error) {
	return a.postgres.IsNumberBlocked(ctx, phoneNumber)
}

// Block upserts a block entry
func (a *BlockListRepoAdapter) Block(ctx context.Context, phoneNumber, reason string, at time.Time) error {
	return a.postgres.BlockNumber(ctx, phoneNumber, reason, at)
}

// Unblock removes a block entry
func (a *BlockListRepoAdapter) Unblock(ctx context.Context, phoneNumber string) error {
	return a.postgres.UnblockNumber(ctx, phoneNumber)
}

// List lists block entries
func (a *BlockListRepoAdapter) List(ctx context.Context, limit, offset int) ([]model.BlockedNumber, error) {
	return a.postgres.ListBlockedNumbers(ctx, limit, offset)
}

func (a *BlockListRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// RateLimitRepoAdapter adapts the PostgresRepo to the RateLimitRepo interface
type RateLimitRepoAdapter struct {
	postgres *PostgresRepo
}

// NewRateLimitRepoAdapter creates a new rate limit repository adapter
func NewRateLimitRepoAdapter(postgres *PostgresRepo) RateLimitRepo {
	return &RateLimitRepoAdapter{postgres: postgres}
}

// Admit consumes one rate limit slot, reporting whether the action may proceed
func (a *RateLimitRepoAdapter) Admit(ctx context.Context, identifier, scope string, maxRequests int, window time.Duration, now time.Time) (bool, error) {
	return a.postgres.AdmitRateLimit(ctx, identifier, scope, maxRequests, window, now)
}

// DeleteExpired removes counters with long-ended windows
func (a *RateLimitRepoAdapter) DeleteExpired(ctx context.Context, window time.Duration, now time.Time) (int64, error) {
	return a.postgres.DeleteExpiredRateLimits(ctx, window, now)
}

func (a *RateLimitRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// Ensure adapters implement the interfaces
var _ MessageRepo = (*MessageRepoAdapter)(nil)
var _ DeviceRepo = (*DeviceRepoAdapter)(nil)
var _ BlockListRepo = (*BlockListRepoAdapter)(nil)
var _ RateLimitRepo = (*RateLimitRepoAdapter)(nil)
