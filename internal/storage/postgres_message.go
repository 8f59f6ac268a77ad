package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/demoody/missed-call-responder/internal/apperrors"
	"github.com/demoody/missed-call-responder/internal/model"
	"github.com/demoody/missed-call-responder/internal/observer"
	"github.com/demoody/missed-call-responder/pkg/logger"
	"github.com/demoody/missed-call-responder/pkg/utils"
)

// --- ScheduledMessage Repository Methods ---

// CreateScheduledMessage inserts a new PENDING record. A unique violation on
// the pending pair index surfaces as ErrDuplicate so intake can report the
// race as a duplicate rather than an internal failure.
func (r *PostgresRepo) CreateScheduledMessage(ctx context.Context, msg *model.ScheduledMessage) error {
	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(msg).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil // Success
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "CreateScheduledMessage", operation)
	observer.ObserveDbOperationDuration("create", "scheduled_message", time.Since(startTime), commitErr)
	if commitErr != nil {
		if !errors.Is(commitErr, apperrors.ErrDuplicate) {
			logger.FromContext(ctx).Error("Failed to create scheduled message after retries", zap.Error(commitErr))
		}
		return commitErr
	}
	return nil
}

// FindRecentActive returns the most recent non-FAILED record for the
// (device, phone) pair whose call time is at or after the given cutoff.
func (r *PostgresRepo) FindRecentActive(ctx context.Context, deviceID, phoneNumber string, cutoff time.Time) (*model.ScheduledMessage, error) {
	loggerCtx := logger.FromContext(ctx)

	var msg model.ScheduledMessage
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("device_id = ? AND phone_number = ? AND status <> ? AND call_time >= ?",
				deviceID, phoneNumber, model.StatusFailed, cutoff).
			Order("call_time DESC").
			First(&msg)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: device %s phone %s: %w", apperrors.ErrNotFound, deviceID, phoneNumber, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil // Success
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindRecentActive", operation)
	observer.ObserveDbOperationDuration("find_recent_active", "scheduled_message", time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound // Return the sentinel error directly
		}
		loggerCtx.Error("Failed to find recent active message after retries",
			zap.String("device_id", deviceID),
			zap.String("phone_number", phoneNumber),
			zap.Error(findErr))
		return nil, findErr
	}
	return &msg, nil
}

// FindScheduledMessageByID finds a record by its ID.
func (r *PostgresRepo) FindScheduledMessageByID(ctx context.Context, id string) (*model.ScheduledMessage, error) {
	var msg model.ScheduledMessage
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ?", id).First(&msg)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: message %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil // Success
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindScheduledMessageByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "scheduled_message", time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find scheduled message by ID after retries",
			zap.String("message_id", id),
			zap.Error(findErr))
		return nil, findErr
	}
	return &msg, nil
}

// FindDueMessages returns PENDING records due at or before now, oldest
// scheduled first, capped at limit.
func (r *PostgresRepo) FindDueMessages(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	loggerCtx := logger.FromContext(ctx)

	var msgs []model.ScheduledMessage
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("status = ? AND scheduled_time <= ?", model.StatusPending, now).
			Order("scheduled_time ASC").
			Limit(limit).
			Find(&msgs)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil // Success, even if no records found
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindDueMessages", operation)
	observer.ObserveDbOperationDuration("find_due", "scheduled_message", time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to find due messages after retries",
			zap.Int("limit", limit),
			zap.Error(findErr))
		return nil, findErr // Already wrapped
	}
	if msgs == nil { // Ensure empty slice is returned, not nil
		return []model.ScheduledMessage{}, nil
	}
	return msgs, nil
}

// ClaimMessage marks a record as claimed by the current cycle. Returns false
// when the record is no longer PENDING or another worker holds a live claim.
func (r *PostgresRepo) ClaimMessage(ctx context.Context, id string, now time.Time, claimTTL time.Duration) (bool, error) {
	var claimed bool
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.ScheduledMessage{}).
			Where("id = ? AND status = ? AND (claimed_at IS NULL OR claimed_at < ?)",
				id, model.StatusPending, now.Add(-claimTTL)).
			Updates(map[string]interface{}{
				"claimed_at": now,
				"updated_at": now,
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		claimed = result.RowsAffected > 0
		return nil // Success
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "ClaimMessage", operation)
	observer.ObserveDbOperationDuration("claim", "scheduled_message", time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to claim message after retries",
			zap.String("message_id", id),
			zap.Error(commitErr))
		return false, commitErr
	}
	return claimed, nil
}

// MarkMessageSent moves a record to SENT with the provider's identifiers.
func (r *PostgresRepo) MarkMessageSent(ctx context.Context, id string, providerMsgID string, providerResponse datatypes.JSON, sentAt time.Time) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.ScheduledMessage{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":            model.StatusSent,
				"provider_msg_id":   providerMsgID,
				"provider_response": providerResponse,
				"sent_at":           sentAt,
				"last_error":        "",
				"claimed_at":        nil,
				"updated_at":        utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: message %s not found for sent update", apperrors.ErrNotFound, id)
		}
		return nil // Success
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkMessageSent", operation)
	observer.ObserveDbOperationDuration("mark_sent", "scheduled_message", time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark message sent after retries",
			zap.String("message_id", id),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// MarkMessageBlocked moves a record to the BLOCKED terminal state.
func (r *PostgresRepo) MarkMessageBlocked(ctx context.Context, id string) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.ScheduledMessage{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":     model.StatusBlocked,
				"claimed_at": nil,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: message %s not found for blocked update", apperrors.ErrNotFound, id)
		}
		return nil // Success
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkMessageBlocked", operation)
	observer.ObserveDbOperationDuration("mark_blocked", "scheduled_message", time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark message blocked after retries",
			zap.String("message_id", id),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// MarkMessageFailed moves a record to FAILED with its final attempt count
// and last error.
func (r *PostgresRepo) MarkMessageFailed(ctx context.Context, id string, attemptCount int, lastError string) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.ScheduledMessage{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":        model.StatusFailed,
				"attempt_count": attemptCount,
				"last_error":    lastError,
				"claimed_at":    nil,
				"updated_at":    utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: message %s not found for failed update", apperrors.ErrNotFound, id)
		}
		return nil // Success
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkMessageFailed", operation)
	observer.ObserveDbOperationDuration("mark_failed", "scheduled_message", time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark message failed after retries",
			zap.String("message_id", id),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// RescheduleMessage keeps a record PENDING, moves its scheduled time and
// records the attempt count. Clearing claimed_at releases the claim so a
// later cycle can pick the record up again.
func (r *PostgresRepo) RescheduleMessage(ctx context.Context, id string, scheduledTime time.Time, attemptCount int, lastError string) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.ScheduledMessage{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":         model.StatusPending,
				"scheduled_time": scheduledTime,
				"attempt_count":  attemptCount,
				"last_error":     lastError,
				"claimed_at":     nil,
				"updated_at":     utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: message %s not found for reschedule", apperrors.ErrNotFound, id)
		}
		return nil // Success
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "RescheduleMessage", operation)
	observer.ObserveDbOperationDuration("reschedule", "scheduled_message", time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to reschedule message after retries",
			zap.String("message_id", id),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindMessagesByDevicePaginated lists a device's records, newest first.
func (r *PostgresRepo) FindMessagesByDevicePaginated(ctx context.Context, deviceID string, limit, offset int) ([]model.ScheduledMessage, error) {
	loggerCtx := logger.FromContext(ctx)

	var msgs []model.ScheduledMessage
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("device_id = ?", deviceID).
			Order("created_at DESC").
			Limit(limit).
			Offset(offset).
			Find(&msgs)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil // Success, even if no records found
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindMessagesByDevicePaginated", operation)
	observer.ObserveDbOperationDuration("find_by_device", "scheduled_message", time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to find messages by device after retries",
			zap.String("device_id", deviceID),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
			zap.Error(findErr))
		return nil, findErr
	}
	if msgs == nil {
		return []model.ScheduledMessage{}, nil
	}
	return msgs, nil
}

// GetMessageStats aggregates a device's record counts by status.
func (r *PostgresRepo) GetMessageStats(ctx context.Context, deviceID string) (*model.MessageStats, error) {
	loggerCtx := logger.FromContext(ctx)

	var rows []struct {
		Status string
		Count  int64
	}
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.ScheduledMessage{}).
			Select("status, count(*) as count").
			Where("device_id = ?", deviceID).
			Group("status").
			Find(&rows)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil // Success
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "GetMessageStats", operation)
	observer.ObserveDbOperationDuration("stats", "scheduled_message", time.Since(startTime), findErr)

	if findErr != nil {
		loggerCtx.Error("Failed to get message stats after retries",
			zap.String("device_id", deviceID),
			zap.Error(findErr))
		return nil, findErr
	}

	stats := &model.MessageStats{}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case model.StatusSent:
			stats.Sent = row.Count
		case model.StatusFailed:
			stats.Failed = row.Count
		case model.StatusPending:
			stats.Pending = row.Count
		case model.StatusBlocked:
			stats.Blocked = row.Count
		}
	}
	return stats, nil
}
