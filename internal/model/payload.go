package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/demoody/missed-call-responder/pkg/utils"
)

// FlexTime unmarshals a call timestamp sent either as epoch milliseconds
// (number or numeric string) or as a datetime string. Both forms normalize
// to the same UTC instant.
type FlexTime struct {
	time.Time
}

var flexTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (ft *FlexTime) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" || raw == `""` {
		ft.Time = time.Time{}
		return nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if millis, err := strconv.ParseInt(s, 10, 64); err == nil {
			ft.Time = utils.UnixToTimeWithMilliseconds(millis)
			return nil
		}
		for _, layout := range flexTimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				ft.Time = t.UTC()
				return nil
			}
		}
		return fmt.Errorf("unrecognized timestamp %q", s)
	}

	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("unrecognized timestamp %s", raw)
	}
	ft.Time = utils.UnixToTimeWithMilliseconds(millis)
	return nil
}

// MissedCallRequest is the intake payload reported by a device.
type MissedCallRequest struct {
	DeviceID     string   `json:"device_id" validate:"required"`
	PhoneNumber  string   `json:"phone_number" validate:"required"`
	CallTime     FlexTime `json:"call_time" validate:"required"`
	MessageText  string   `json:"message_text,omitempty"`
	DelayMinutes int      `json:"delay_minutes,omitempty" validate:"omitempty,min=1"`
}

// RegisterDeviceRequest registers or re-registers a device.
type RegisterDeviceRequest struct {
	DeviceID   string `json:"device_id" validate:"required"`
	DeviceName string `json:"device_name,omitempty"`
}

// OptOutRequest asks that a number never receives auto-responses again.
type OptOutRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
}

// BlockRequest blocks or unblocks a number with an admin-supplied reason.
type BlockRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
	Reason      string `json:"reason,omitempty"`
}
