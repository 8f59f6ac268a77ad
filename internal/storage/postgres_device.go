package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/demoody/missed-call-responder/internal/apperrors"
	"github.com/demoody/missed-call-responder/internal/model"
	"github.com/demoody/missed-call-responder/internal/observer"
	"github.com/demoody/missed-call-responder/pkg/logger"
	"github.com/demoody/missed-call-responder/pkg/utils"
)

// --- Device Repository Methods ---

// SaveDevice upserts a device keyed by device_id. Re-registration updates
// the name and reactivates; the original API token is kept.
func (r *PostgresRepo) SaveDevice(ctx context.Context, device *model.Device) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"device_name", "is_active", "updated_at",
			}),
		}).Create(device)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil // Success
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveDevice", operation)
	observer.ObserveDbOperationDuration("save", "device", time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save device after retries", zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindDeviceByDeviceID finds a device by its external identifier.
func (r *PostgresRepo) FindDeviceByDeviceID(ctx context.Context, deviceID string) (*model.Device, error) {
	var device model.Device
	operation := func() error {
		result := r.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&device)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: device %s: %w", apperrors.ErrNotFound, deviceID, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil // Success
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindDeviceByDeviceID", operation)
	observer.ObserveDbOperationDuration("find_by_device_id", "device", time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound // Return the sentinel error directly
		}
		logger.FromContext(ctx).Error("Failed to find device after retries",
			zap.String("device_id", deviceID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &device, nil
}

// TouchDeviceActivity records the last time a device reported a call.
func (r *PostgresRepo) TouchDeviceActivity(ctx context.Context, deviceID string, at time.Time) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Device{}).
			Where("device_id = ?", deviceID).
			Updates(map[string]interface{}{
				"last_activity_at": at,
				"updated_at":       utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: device %s not found for activity touch", apperrors.ErrNotFound, deviceID)
		}
		return nil // Success
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "TouchDeviceActivity", operation)
	observer.ObserveDbOperationDuration("touch_activity", "device", time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Warn("Failed to touch device activity after retries",
			zap.String("device_id", deviceID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// DeactivateDevice marks a device inactive so intake rejects its calls.
func (r *PostgresRepo) DeactivateDevice(ctx context.Context, deviceID string) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Device{}).
			Where("device_id = ?", deviceID).
			Updates(map[string]interface{}{
				"is_active":  false,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: device %s not found for deactivation", apperrors.ErrNotFound, deviceID)
		}
		return nil // Success
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "DeactivateDevice", operation)
	observer.ObserveDbOperationDuration("deactivate", "device", time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to deactivate device after retries",
			zap.String("device_id", deviceID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}
