package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/demoody/missed-call-responder/internal/apperrors"
	"github.com/demoody/missed-call-responder/internal/model"
	"github.com/demoody/missed-call-responder/internal/sms"
	"github.com/demoody/missed-call-responder/internal/validator"
	"github.com/demoody/missed-call-responder/pkg/logger"
)

// RegisterDevice creates a device with a fresh API token, or re-registers an
// existing one. Re-registration updates the name and reactivates the device
// but keeps the original token.
func (s *ResponderService) RegisterDevice(ctx context.Context, req *model.RegisterDeviceRequest) (*model.Device, error) {
	log := logger.FromContext(ctx)

	if err := validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}

	device, err := s.deviceRepo.FindByDeviceID(ctx, req.DeviceID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	if device == nil {
		token, err := generateAPIToken()
		if err != nil {
			return nil, err
		}
		device = &model.Device{
			DeviceID:   req.DeviceID,
			DeviceName: req.DeviceName,
			APIToken:   token,
			IsActive:   true,
		}
	} else {
		if req.DeviceName != "" {
			device.DeviceName = req.DeviceName
		}
		device.IsActive = true
	}

	if err := s.deviceRepo.Save(ctx, device); err != nil {
		return nil, err
	}

	log.Info("Device registered",
		zap.String("device_id", device.DeviceID),
		zap.String("device_name", device.DeviceName))
	return device, nil
}

// OptOut blocks a number at its own request.
func (s *ResponderService) OptOut(ctx context.Context, req *model.OptOutRequest) error {
	if err := validator.Validate(req); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}

	phoneNumber := sms.NormalizePhoneNumber(req.PhoneNumber, s.cfg.SMS.CountryPrefix)
	if err := s.blockListRepo.Block(ctx, phoneNumber, model.BlockReasonOptOut, s.now()); err != nil {
		return err
	}

	logger.FromContext(ctx).Info("Number opted out", zap.String("phone_number", phoneNumber))
	return nil
}

// BlockNumber adds or updates a block list entry with an arbitrary reason.
func (s *ResponderService) BlockNumber(ctx context.Context, req *model.BlockRequest) error {
	if err := validator.Validate(req); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}

	phoneNumber := sms.NormalizePhoneNumber(req.PhoneNumber, s.cfg.SMS.CountryPrefix)
	return s.blockListRepo.Block(ctx, phoneNumber, req.Reason, s.now())
}

// UnblockNumber removes a block list entry. Unknown numbers are a no-op.
func (s *ResponderService) UnblockNumber(ctx context.Context, phoneNumber string) error {
	normalized := sms.NormalizePhoneNumber(phoneNumber, s.cfg.SMS.CountryPrefix)
	return s.blockListRepo.Unblock(ctx, normalized)
}

// ListBlockedNumbers returns block list entries, newest first.
func (s *ResponderService) ListBlockedNumbers(ctx context.Context, limit, offset int) ([]model.BlockedNumber, error) {
	return s.blockListRepo.List(ctx, limit, offset)
}

// DeviceLogs bundles a device's paginated call log with aggregate counts.
type DeviceLogs struct {
	Logs  []model.ScheduledMessage `json:"logs"`
	Stats *model.MessageStats      `json:"stats"`
	Page  int                      `json:"page"`
	Limit int                      `json:"limit"`
}

// GetDeviceLogs lists a device's scheduled messages, newest first, with
// per-status counts. Returns ErrNotFound for unknown devices.
func (s *ResponderService) GetDeviceLogs(ctx context.Context, deviceID string, page, limit int) (*DeviceLogs, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	if _, err := s.deviceRepo.FindByDeviceID(ctx, deviceID); err != nil {
		return nil, err
	}

	logs, err := s.messageRepo.FindByDevicePaginated(ctx, deviceID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	stats, err := s.messageRepo.Stats(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	return &DeviceLogs{
		Logs:  logs,
		Stats: stats,
		Page:  page,
		Limit: limit,
	}, nil
}

func generateAPIToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
