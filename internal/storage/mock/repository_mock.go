package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"github.com/demoody/missed-call-responder/internal/model"
)

// --- MessageRepo Mock ---

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

// Create mocks the Create method
func (m *MessageRepoMock) Create(ctx context.Context, msg *model.ScheduledMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *MessageRepoMock) FindByID(ctx context.Context, id string) (*model.ScheduledMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScheduledMessage), args.Error(1)
}

// FindRecentActive mocks the FindRecentActive method
func (m *MessageRepoMock) FindRecentActive(ctx context.Context, deviceID, phoneNumber string, cutoff time.Time) (*model.ScheduledMessage, error) {
	args := m.Called(ctx, deviceID, phoneNumber, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScheduledMessage), args.Error(1)
}

// FindDue mocks the FindDue method
func (m *MessageRepoMock) FindDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScheduledMessage), args.Error(1)
}

// Claim mocks the Claim method
func (m *MessageRepoMock) Claim(ctx context.Context, id string, now time.Time, claimTTL time.Duration) (bool, error) {
	args := m.Called(ctx, id, now, claimTTL)
	return args.Bool(0), args.Error(1)
}

// MarkSent mocks the MarkSent method
func (m *MessageRepoMock) MarkSent(ctx context.Context, id string, providerMsgID string, providerResponse datatypes.JSON, sentAt time.Time) error {
	args := m.Called(ctx, id, providerMsgID, providerResponse, sentAt)
	return args.Error(0)
}

// MarkBlocked mocks the MarkBlocked method
func (m *MessageRepoMock) MarkBlocked(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MarkFailed mocks the MarkFailed method
func (m *MessageRepoMock) MarkFailed(ctx context.Context, id string, attemptCount int, lastError string) error {
	args := m.Called(ctx, id, attemptCount, lastError)
	return args.Error(0)
}

// Reschedule mocks the Reschedule method
func (m *MessageRepoMock) Reschedule(ctx context.Context, id string, scheduledTime time.Time, attemptCount int, lastError string) error {
	args := m.Called(ctx, id, scheduledTime, attemptCount, lastError)
	return args.Error(0)
}

// FindByDevicePaginated mocks the FindByDevicePaginated method
func (m *MessageRepoMock) FindByDevicePaginated(ctx context.Context, deviceID string, limit, offset int) ([]model.ScheduledMessage, error) {
	args := m.Called(ctx, deviceID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScheduledMessage), args.Error(1)
}

// Stats mocks the Stats method
func (m *MessageRepoMock) Stats(ctx context.Context, deviceID string) (*model.MessageStats, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MessageStats), args.Error(1)
}

// Close mocks the Close method
func (m *MessageRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- DeviceRepo Mock ---

// DeviceRepoMock mocks the DeviceRepo interface
type DeviceRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *DeviceRepoMock) Save(ctx context.Context, device *model.Device) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}

// FindByDeviceID mocks the FindByDeviceID method
func (m *DeviceRepoMock) FindByDeviceID(ctx context.Context, deviceID string) (*model.Device, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

// TouchActivity mocks the TouchActivity method
func (m *DeviceRepoMock) TouchActivity(ctx context.Context, deviceID string, at time.Time) error {
	args := m.Called(ctx, deviceID, at)
	return args.Error(0)
}

// Deactivate mocks the Deactivate method
func (m *DeviceRepoMock) Deactivate(ctx context.Context, deviceID string) error {
	args := m.Called(ctx, deviceID)
	return args.Error(0)
}

// Close mocks the Close method
func (m *DeviceRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- BlockListRepo Mock ---

// BlockListRepoMock mocks the BlockListRepo interface
type BlockListRepoMock struct {
	mock.Mock
}

// IsBlocked mocks the IsBlocked method
func (m *BlockListRepoMock) IsBlocked(ctx context.Context, phoneNumber string) (bool, error) {
	args := m.Called(ctx, phoneNumber)
	return args.Bool(0), args.Error(1)
}

// Block mocks the Block method
func (m *BlockListRepoMock) Block(ctx context.Context, phoneNumber, reason string, at time.Time) error {
	args := m.Called(ctx, phoneNumber, reason, at)
	return args.Error(0)
}

// Unblock mocks the Unblock method
func (m *BlockListRepoMock) Unblock(ctx context.Context, phoneNumber string) error {
	args := m.Called(ctx, phoneNumber)
	return args.Error(0)
}

// List mocks the List method
func (m *BlockListRepoMock) List(ctx context.Context, limit, offset int) ([]model.BlockedNumber, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BlockedNumber), args.Error(1)
}

// Close mocks the Close method
func (m *BlockListRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- RateLimitRepo Mock ---

// RateLimitRepoMock mocks the RateLimitRepo interface
type RateLimitRepoMock struct {
	mock.Mock
}

// Admit mocks the Admit method
func (m *RateLimitRepoMock) Admit(ctx context.Context, identifier, scope string, maxRequests int, window time.Duration, now time.Time) (bool, error) {
	args := m.Called(ctx, identifier, scope, maxRequests, window, now)
	return args.Bool(0), args.Error(1)
}

// DeleteExpired mocks the DeleteExpired method
func (m *RateLimitRepoMock) DeleteExpired(ctx context.Context, window time.Duration, now time.Time) (int64, error) {
	args := m.Called(ctx, window, now)
	return args.Get(0).(int64), args.Error(1)
}

// Close mocks the Close method
func (m *RateLimitRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
