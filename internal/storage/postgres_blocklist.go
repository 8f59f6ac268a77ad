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

// --- Block List Repository Methods ---

// IsNumberBlocked reports whether a phone number is on the block list.
func (r *PostgresRepo) IsNumberBlocked(ctx context.Context, phoneNumber string) (bool, error) {
	var blocked model.BlockedNumber
	var found bool
	operation := func() error {
		result := r.db.WithContext(ctx).Where("phone_number = ?", phoneNumber).First(&blocked)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				found = false
				return nil // Absence is a normal answer, not an error
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		found = true
		return nil // Success
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "IsNumberBlocked", operation)
	observer.ObserveDbOperationDuration("is_blocked", "blocked_number", time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to check block list after retries",
			zap.String("phone_number", phoneNumber),
			zap.Error(findErr))
		return false, findErr
	}
	return found, nil
}

// BlockNumber upserts a block entry. Re-blocking refreshes the reason and
// the blocked_at timestamp.
func (r *PostgresRepo) BlockNumber(ctx context.Context, phoneNumber, reason string, at time.Time) error {
	entry := model.BlockedNumber{
		PhoneNumber: phoneNumber,
		Reason:      reason,
		BlockedAt:   at,
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "phone_number"}},
			DoUpdates: clause.AssignmentColumns([]string{"reason", "blocked_at"}),
		}).Create(&entry)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil // Success
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "BlockNumber", operation)
	observer.ObserveDbOperationDuration("block", "blocked_number", time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to block number after retries",
			zap.String("phone_number", phoneNumber),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// UnblockNumber removes a block entry. Unblocking an unknown number is a
// no-op.
func (r *PostgresRepo) UnblockNumber(ctx context.Context, phoneNumber string) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Where("phone_number = ?", phoneNumber).Delete(&model.BlockedNumber{})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil // Success regardless of rows affected
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UnblockNumber", operation)
	observer.ObserveDbOperationDuration("unblock", "blocked_number", time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to unblock number after retries",
			zap.String("phone_number", phoneNumber),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// ListBlockedNumbers lists block entries, most recently blocked first.
func (r *PostgresRepo) ListBlockedNumbers(ctx context.Context, limit, offset int) ([]model.BlockedNumber, error) {
	var entries []model.BlockedNumber
	operation := func() error {
		result := r.db.WithContext(ctx).
			Order("blocked_at DESC").
			Limit(limit).
			Offset(offset).
			Find(&entries)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil // Success, even if no records found
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListBlockedNumbers", operation)
	observer.ObserveDbOperationDuration("list", "blocked_number", time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to list blocked numbers after retries",
			zap.Int("limit", limit),
			zap.Int("offset", offset),
			zap.Error(findErr))
		return nil, findErr
	}
	if entries == nil {
		return []model.BlockedNumber{}, nil
	}
	return entries, nil
}
