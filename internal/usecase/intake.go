package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/demoody/missed-call-responder/internal/apperrors"
	"github.com/demoody/missed-call-responder/internal/events"
	"github.com/demoody/missed-call-responder/internal/model"
	"github.com/demoody/missed-call-responder/internal/observer"
	"github.com/demoody/missed-call-responder/internal/sms"
	"github.com/demoody/missed-call-responder/internal/validator"
	"github.com/demoody/missed-call-responder/pkg/logger"
)

// DefaultMessageText is sent when the device does not supply its own text.
const DefaultMessageText = "Hello! We missed your call. We're sorry we couldn't pick up. Reply CALLBACK or visit our website and we'll get back to you shortly. Reply STOP to opt out."

// IntakeOutcome classifies how an intake request was resolved.
type IntakeOutcome string

const (
	OutcomeScheduled           IntakeOutcome = "SCHEDULED"
	OutcomeDuplicateDetected   IntakeOutcome = "DUPLICATE_DETECTED"
	OutcomeBlocked             IntakeOutcome = "BLOCKED"
	OutcomeRateLimited         IntakeOutcome = "RATE_LIMITED"
	OutcomeInvalidPhoneNumber  IntakeOutcome = "INVALID_PHONE_NUMBER"
	OutcomeDeviceNotRegistered IntakeOutcome = "DEVICE_NOT_REGISTERED"
)

// IntakeResult reports the admission decision for one missed call.
type IntakeResult struct {
	Outcome IntakeOutcome
	// RateScope is set when Outcome is RATE_LIMITED (DEVICE or PHONE).
	RateScope string
	// Message is the newly scheduled record when Outcome is SCHEDULED.
	Message *model.ScheduledMessage
	// Existing is the record that short-circuited a duplicate.
	Existing *model.ScheduledMessage
}

// IntakeMissedCall runs the admission gates in order: device registration,
// device rate limit, phone rate limit, block list, phone format, dedup.
// Rate-limit counters are consumed before the later gates run, so a call
// that ends up blocked or duplicate still pays its rate-limit cost.
func (s *ResponderService) IntakeMissedCall(ctx context.Context, req *model.MissedCallRequest) (*IntakeResult, error) {
	log := logger.FromContext(ctx)

	if err := validator.Validate(req); err != nil {
		log.Warn("Missed call validation failed",
			zap.String("device_id", req.DeviceID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}

	device, err := s.deviceRepo.FindByDeviceID(ctx, req.DeviceID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			observer.IncIntakeRequest("device_not_registered")
			return &IntakeResult{Outcome: OutcomeDeviceNotRegistered}, nil
		}
		return nil, err
	}
	if !device.IsActive {
		observer.IncIntakeRequest("device_not_registered")
		return &IntakeResult{Outcome: OutcomeDeviceNotRegistered}, nil
	}

	now := s.now()
	window := time.Duration(s.cfg.RateLimit.WindowSeconds) * time.Second
	phoneNumber := sms.NormalizePhoneNumber(req.PhoneNumber, s.cfg.SMS.CountryPrefix)

	admitted, err := s.rateLimitRepo.Admit(ctx, req.DeviceID, model.RateScopeDevice, s.cfg.RateLimit.PerDevice, window, now)
	if err != nil {
		return nil, err
	}
	if !admitted {
		log.Warn("Device rate limit exceeded", zap.String("device_id", req.DeviceID))
		observer.IncIntakeRequest("rate_limited_device")
		return &IntakeResult{Outcome: OutcomeRateLimited, RateScope: model.RateScopeDevice}, nil
	}

	admitted, err = s.rateLimitRepo.Admit(ctx, phoneNumber, model.RateScopePhone, s.cfg.RateLimit.PerPhone, window, now)
	if err != nil {
		return nil, err
	}
	if !admitted {
		log.Warn("Phone rate limit exceeded", zap.String("phone_number", phoneNumber))
		observer.IncIntakeRequest("rate_limited_phone")
		return &IntakeResult{Outcome: OutcomeRateLimited, RateScope: model.RateScopePhone}, nil
	}

	blocked, err := s.blockListRepo.IsBlocked(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	if blocked {
		observer.IncIntakeRequest("blocked")
		return &IntakeResult{Outcome: OutcomeBlocked}, nil
	}

	if !sms.IsValidPhoneNumber(phoneNumber) {
		observer.IncIntakeRequest("invalid_phone")
		return &IntakeResult{Outcome: OutcomeInvalidPhoneNumber}, nil
	}

	callTime := req.CallTime.Time

	dedupWindow := time.Duration(s.cfg.Dedup.WindowSeconds) * time.Second
	existing, err := s.messageRepo.FindRecentActive(ctx, req.DeviceID, phoneNumber, callTime.Add(-dedupWindow))
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		observer.IncIntakeRequest("duplicate")
		return &IntakeResult{Outcome: OutcomeDuplicateDetected, Existing: existing}, nil
	}

	delayMinutes := req.DelayMinutes
	if delayMinutes <= 0 {
		delayMinutes = s.cfg.Business.DefaultDelayMinutes
	}
	messageText := req.MessageText
	if messageText == "" {
		messageText = DefaultMessageText
	}

	msg := &model.ScheduledMessage{
		ID:            uuid.NewString(),
		DeviceID:      req.DeviceID,
		PhoneNumber:   phoneNumber,
		CallTime:      callTime,
		ScheduledTime: callTime.Add(time.Duration(delayMinutes) * time.Minute),
		MessageText:   messageText,
		Status:        model.StatusPending,
		AttemptCount:  0,
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		// A concurrent intake for the same pair won the insert race.
		if errors.Is(err, apperrors.ErrDuplicate) {
			observer.IncIntakeRequest("duplicate")
			return &IntakeResult{Outcome: OutcomeDuplicateDetected}, nil
		}
		return nil, err
	}

	if err := s.deviceRepo.TouchActivity(ctx, req.DeviceID, now); err != nil {
		log.Warn("Failed to touch device activity",
			zap.String("device_id", req.DeviceID),
			zap.Error(err))
	}

	s.publishOutcome(ctx, &events.OutcomeEvent{
		Kind:        events.KindScheduled,
		MessageID:   msg.ID,
		DeviceID:    msg.DeviceID,
		PhoneNumber: msg.PhoneNumber,
		Status:      msg.Status,
		OccurredAt:  now,
	})

	observer.IncIntakeRequest("scheduled")
	log.Info("Missed call scheduled",
		zap.String("message_id", msg.ID),
		zap.String("device_id", msg.DeviceID),
		zap.String("phone_number", msg.PhoneNumber),
		zap.Time("scheduled_time", msg.ScheduledTime))
	return &IntakeResult{Outcome: OutcomeScheduled, Message: msg}, nil
}
