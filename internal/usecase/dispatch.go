package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/demoody/missed-call-responder/internal/apperrors"
	"github.com/demoody/missed-call-responder/internal/config"
	"github.com/demoody/missed-call-responder/internal/events"
	"github.com/demoody/missed-call-responder/internal/model"
	"github.com/demoody/missed-call-responder/internal/observer"
	"github.com/demoody/missed-call-responder/pkg/logger"
)

const backoffBaseDelay = 5 * time.Minute

// Dispatch result labels. They double as the metric outcome label values.
const (
	dispatchSent        = "sent"
	dispatchRetried     = "retried"
	dispatchFailed      = "failed"
	dispatchBlocked     = "blocked"
	dispatchRescheduled = "rescheduled"
	dispatchSkipped     = "skipped"
	dispatchError       = "error"
)

// DispatchSummary counts one cycle's per-record results.
type DispatchSummary struct {
	Processed   int64 `json:"processed"`
	Sent        int64 `json:"sent"`
	Retried     int64 `json:"retried"`
	Failed      int64 `json:"failed"`
	Blocked     int64 `json:"blocked"`
	Rescheduled int64 `json:"rescheduled"`
	Skipped     int64 `json:"skipped"`
	Errors      int64 `json:"errors"`
}

func (d *DispatchSummary) record(outcome string) {
	atomic.AddInt64(&d.Processed, 1)
	switch outcome {
	case dispatchSent:
		atomic.AddInt64(&d.Sent, 1)
	case dispatchRetried:
		atomic.AddInt64(&d.Retried, 1)
	case dispatchFailed:
		atomic.AddInt64(&d.Failed, 1)
	case dispatchBlocked:
		atomic.AddInt64(&d.Blocked, 1)
	case dispatchRescheduled:
		atomic.AddInt64(&d.Rescheduled, 1)
	case dispatchSkipped:
		atomic.AddInt64(&d.Skipped, 1)
	default:
		atomic.AddInt64(&d.Errors, 1)
	}
}

// RunDispatchCycle fetches due PENDING records, oldest scheduled first, and
// fans them out to the worker pool. Each record is handled independently; one
// record's failure never stops the rest of the batch. The caller guarantees
// cycles do not overlap.
func (s *ResponderService) RunDispatchCycle(ctx context.Context) (*DispatchSummary, error) {
	log := logger.FromContext(ctx)
	cycleStart := s.now()

	due, err := s.messageRepo.FindDue(ctx, cycleStart, s.cfg.Dispatcher.BatchSize)
	if err != nil {
		log.Error("Failed to fetch due messages", zap.Error(err))
		return nil, err
	}
	observer.SetDispatchBatchSize(len(due))

	summary := &DispatchSummary{}
	if len(due) == 0 {
		return summary, nil
	}

	var wg sync.WaitGroup
	for i := range due {
		msg := due[i]
		wg.Add(1)
		if submitErr := s.pool.Submit(func() {
			defer wg.Done()
			outcome := s.processDue(ctx, &msg, cycleStart)
			observer.IncDispatchResult(outcome)
			summary.record(outcome)
		}); submitErr != nil {
			wg.Done()
			log.Error("Failed to submit message to dispatch pool",
				zap.String("message_id", msg.ID),
				zap.Error(submitErr))
			observer.IncDispatchResult(dispatchError)
			summary.record(dispatchError)
		}
	}
	wg.Wait()

	observer.ObserveDispatchCycleDuration(time.Since(cycleStart))
	log.Info("Dispatch cycle complete",
		zap.Int64("processed", summary.Processed),
		zap.Int64("sent", summary.Sent),
		zap.Int64("retried", summary.Retried),
		zap.Int64("failed", summary.Failed),
		zap.Int64("blocked", summary.Blocked),
		zap.Int64("rescheduled", summary.Rescheduled),
		zap.Int64("skipped", summary.Skipped),
		zap.Int64("errors", summary.Errors),
		zap.Duration("duration", time.Since(cycleStart)))
	return summary, nil
}

// processDue handles one due record and returns the outcome label.
func (s *ResponderService) processDue(ctx context.Context, msg *model.ScheduledMessage, now time.Time) string {
	log := logger.FromContext(ctx).With(
		zap.String("message_id", msg.ID),
		zap.String("phone_number", msg.PhoneNumber))

	claimed, err := s.messageRepo.Claim(ctx, msg.ID, now, s.cfg.Dispatcher.ClaimTTL)
	if err != nil {
		return dispatchError
	}
	if !claimed {
		// Another worker holds a live claim or the record already moved on.
		return dispatchSkipped
	}

	blocked, err := s.blockListRepo.IsBlocked(ctx, msg.PhoneNumber)
	if err != nil {
		return dispatchError
	}
	if blocked {
		if err := s.messageRepo.MarkBlocked(ctx, msg.ID); err != nil {
			return dispatchError
		}
		s.publishOutcome(ctx, &events.OutcomeEvent{
			Kind:         events.KindBlocked,
			MessageID:    msg.ID,
			DeviceID:     msg.DeviceID,
			PhoneNumber:  msg.PhoneNumber,
			Status:       model.StatusBlocked,
			AttemptCount: msg.AttemptCount,
		})
		log.Info("Message blocked at dispatch")
		return dispatchBlocked
	}

	if !s.withinBusinessHours(now) {
		next := s.nextBusinessTime(now)
		if err := s.messageRepo.Reschedule(ctx, msg.ID, next, msg.AttemptCount, msg.LastError); err != nil {
			return dispatchError
		}
		log.Info("Outside business hours, rescheduled", zap.Time("next_attempt", next))
		return dispatchRescheduled
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SMS.RequestTimeout)
	result, sendErr := s.smsClient.Send(sendCtx, msg.PhoneNumber, msg.MessageText)
	cancel()

	if sendErr == nil {
		sentAt := s.now()
		if err := s.messageRepo.MarkSent(ctx, msg.ID, result.MessageID, datatypes.JSON(result.Raw), sentAt); err != nil {
			return dispatchError
		}
		s.publishOutcome(ctx, &events.OutcomeEvent{
			Kind:         events.KindSent,
			MessageID:    msg.ID,
			DeviceID:     msg.DeviceID,
			PhoneNumber:  msg.PhoneNumber,
			Status:       model.StatusSent,
			AttemptCount: msg.AttemptCount,
			OccurredAt:   sentAt,
		})
		log.Info("Message sent", zap.String("provider_msg_id", result.MessageID))
		return dispatchSent
	}

	attempts := msg.AttemptCount + 1
	// A fatal send error means the provider refused the payload outright;
	// retrying the same request cannot succeed.
	if attempts >= s.cfg.Business.MaxRetryAttempts || apperrors.IsFatal(sendErr) {
		if err := s.messageRepo.MarkFailed(ctx, msg.ID, attempts, sendErr.Error()); err != nil {
			return dispatchError
		}
		s.publishOutcome(ctx, &events.OutcomeEvent{
			Kind:         events.KindFailed,
			MessageID:    msg.ID,
			DeviceID:     msg.DeviceID,
			PhoneNumber:  msg.PhoneNumber,
			Status:       model.StatusFailed,
			AttemptCount: attempts,
			Error:        sendErr.Error(),
		})
		log.Warn("Message failed permanently",
			zap.Int("attempt_count", attempts),
			zap.Error(sendErr))
		return dispatchFailed
	}

	// Exponential backoff: 2^attempts * 5m gives 10, 20, 40 minute waits.
	nextAttempt := s.now().Add(time.Duration(1<<attempts) * backoffBaseDelay)
	if err := s.messageRepo.Reschedule(ctx, msg.ID, nextAttempt, attempts, sendErr.Error()); err != nil {
		return dispatchError
	}
	s.publishOutcome(ctx, &events.OutcomeEvent{
		Kind:         events.KindRetried,
		MessageID:    msg.ID,
		DeviceID:     msg.DeviceID,
		PhoneNumber:  msg.PhoneNumber,
		Status:       model.StatusPending,
		AttemptCount: attempts,
		Error:        sendErr.Error(),
	})
	log.Warn("Send failed, retry scheduled",
		zap.Int("attempt_count", attempts),
		zap.Time("next_attempt", nextAttempt),
		zap.Error(sendErr))
	return dispatchRetried
}

// withinBusinessHours reports whether the clock time falls inside the
// configured window, inclusive on both ends.
func (s *ResponderService) withinBusinessHours(now time.Time) bool {
	clock := config.ClockOf(now)
	return clock >= s.hoursStart && clock <= s.hoursEnd
}

// nextBusinessTime returns the next calendar day at the window start.
func (s *ResponderService) nextBusinessTime(now time.Time) time.Time {
	next := now.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(),
		s.hoursStart.Hour(), s.hoursStart.Minute(), 0, 0, now.Location())
}

// SweepExpiredRateLimits removes fixed-window counters whose window ended.
// Correctness never depends on this; expiry is handled lazily on admit.
func (s *ResponderService) SweepExpiredRateLimits(ctx context.Context) {
	window := time.Duration(s.cfg.RateLimit.WindowSeconds) * time.Second
	deleted, err := s.rateLimitRepo.DeleteExpired(ctx, window, s.now())
	if err != nil {
		logger.FromContext(ctx).Warn("Rate limit sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		logger.FromContext(ctx).Debug("Swept expired rate limit counters", zap.Int64("deleted", deleted))
	}
}
