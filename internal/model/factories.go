package model

import (
	"encoding/json"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/demoody/missed-call-responder/pkg/utils"
)

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// RandomJSONBMap generates JSON data from a map for testing.
func RandomJSONBMap(data map[string]interface{}) datatypes.JSON {
	bytes, _ := json.Marshal(data)
	return datatypes.JSON(bytes)
}

// fakeIndianMobile returns a 12-digit number in the accepted format.
func fakeIndianMobile() string {
	first := gofakeit.RandomString([]string{"6", "7", "8", "9"})
	return "91" + first + gofakeit.DigitN(9)
}

// NewScheduledMessage creates a ScheduledMessage with default fake data.
func NewScheduledMessage(overrideDefaults ...*ScheduledMessage) *ScheduledMessage {
	callTime := utils.Now().Add(-time.Duration(gofakeit.Number(1, 60)) * time.Minute)
	base := &ScheduledMessage{
		ID:            uuid.New().String(),
		DeviceID:      "device_" + gofakeit.LetterN(10),
		PhoneNumber:   fakeIndianMobile(),
		CallTime:      callTime,
		ScheduledTime: callTime.Add(5 * time.Minute),
		MessageText:   gofakeit.Sentence(8),
		Status:        StatusPending,
		AttemptCount:  0,
		CreatedAt:     utils.Now(),
		UpdatedAt:     utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.DeviceID != "" {
			base.DeviceID = ovr.DeviceID
		}
		if ovr.PhoneNumber != "" {
			base.PhoneNumber = ovr.PhoneNumber
		}
		if !ovr.CallTime.IsZero() {
			base.CallTime = ovr.CallTime
		}
		if !ovr.ScheduledTime.IsZero() {
			base.ScheduledTime = ovr.ScheduledTime
		}
		if ovr.MessageText != "" {
			base.MessageText = ovr.MessageText
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		// Zero attempt count is the common case, so always assign
		base.AttemptCount = ovr.AttemptCount
		base.LastError = ovr.LastError
		base.ProviderMsgID = ovr.ProviderMsgID
		base.ProviderResponse = ovr.ProviderResponse
		base.SentAt = ovr.SentAt
		base.ClaimedAt = ovr.ClaimedAt
		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
		}
		if !ovr.UpdatedAt.IsZero() {
			base.UpdatedAt = ovr.UpdatedAt
		}
	}
	return base
}

// NewDevice creates a Device with default fake data.
func NewDevice(overrideDefaults ...*Device) *Device {
	base := &Device{
		DeviceID:   "device_" + gofakeit.LetterN(10),
		DeviceName: gofakeit.AppName(),
		APIToken:   gofakeit.HexUint256()[2:],
		IsActive:   true,
		CreatedAt:  utils.Now(),
		UpdatedAt:  utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.DeviceID != "" {
			base.DeviceID = ovr.DeviceID
		}
		if ovr.DeviceName != "" {
			base.DeviceName = ovr.DeviceName
		}
		if ovr.APIToken != "" {
			base.APIToken = ovr.APIToken
		}
		base.IsActive = ovr.IsActive
		base.LastActivityAt = ovr.LastActivityAt
		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
		}
		if !ovr.UpdatedAt.IsZero() {
			base.UpdatedAt = ovr.UpdatedAt
		}
	}
	return base
}

// NewBlockedNumber creates a BlockedNumber with default fake data.
func NewBlockedNumber(overrideDefaults ...*BlockedNumber) *BlockedNumber {
	base := &BlockedNumber{
		PhoneNumber: fakeIndianMobile(),
		Reason:      gofakeit.RandomString([]string{"SPAM", "ABUSE", BlockReasonOptOut}),
		BlockedAt:   utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.PhoneNumber != "" {
			base.PhoneNumber = ovr.PhoneNumber
		}
		if ovr.Reason != "" {
			base.Reason = ovr.Reason
		}
		if !ovr.BlockedAt.IsZero() {
			base.BlockedAt = ovr.BlockedAt
		}
	}
	return base
}
