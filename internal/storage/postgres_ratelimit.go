package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/demoody/missed-call-responder/internal/apperrors"
	"github.com/demoody/missed-call-responder/internal/model"
	"github.com/demoody/missed-call-responder/internal/observer"
	"github.com/demoody/missed-call-responder/pkg/logger"
	"github.com/demoody/missed-call-responder/pkg/utils"
)

// --- Rate Limit Repository Methods ---

// admitSQL performs the whole admit decision in one statement. The upsert
// resets expired windows in place, increments live ones, and the WHERE on
// the conflict action suppresses the update when the counter is already at
// its limit. A returned row means admitted; zero rows means denied with the
// stored count untouched.
const admitSQL = `
INSERT INTO rate_limit_counters (identifier, scope, request_count, window_start)
VALUES (?, ?, 1, ?)
ON CONFLICT (identifier, scope) DO UPDATE SET
	request_count = CASE WHEN rate_limit_counters.window_start <= ? THEN 1 ELSE rate_limit_counters.request_count + 1 END,
	window_start = CASE WHEN rate_limit_counters.window_start <= ? THEN ? ELSE rate_limit_counters.window_start END
WHERE rate_limit_counters.window_start <= ? OR rate_limit_counters.request_count < ?
RETURNING request_count`

// AdmitRateLimit atomically consumes one slot of the fixed-window counter
// for (identifier, scope). Returns false when the window is live and already
// at maxRequests; denial never increments the counter.
func (r *PostgresRepo) AdmitRateLimit(ctx context.Context, identifier, scope string, maxRequests int, window time.Duration, now time.Time) (bool, error) {
	expiredBefore := now.Add(-window)

	var admitted bool
	operation := func() error {
		var count int
		result := r.db.WithContext(ctx).Raw(admitSQL,
			identifier, scope, now,
			expiredBefore,
			expiredBefore, now,
			expiredBefore, maxRequests,
		).Scan(&count)
		if result.Error != nil {
			return fmt.Errorf("%w: admit query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		admitted = result.RowsAffected > 0
		return nil // Success
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "AdmitRateLimit", operation)
	observer.ObserveDbOperationDuration("admit", "rate_limit_counter", time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to admit rate limit after retries",
			zap.String("identifier", identifier),
			zap.String("scope", scope),
			zap.Error(commitErr))
		return false, commitErr
	}
	return admitted, nil
}

// DeleteExpiredRateLimits removes counters whose window ended before the
// cutoff. Hygiene only; admit handles expiry lazily on its own.
func (r *PostgresRepo) DeleteExpiredRateLimits(ctx context.Context, window time.Duration, now time.Time) (int64, error) {
	expiredBefore := now.Add(-window)

	var deleted int64
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("window_start <= ?", expiredBefore).
			Delete(&model.RateLimitCounter{})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		deleted = result.RowsAffected
		return nil // Success
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "DeleteExpiredRateLimits", operation)
	observer.ObserveDbOperationDuration("delete_expired", "rate_limit_counter", time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to delete expired rate limit counters after retries", zap.Error(commitErr))
		return 0, commitErr
	}
	return deleted, nil
}
