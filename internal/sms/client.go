package sms

import "context"

// Result carries what the provider reported for one accepted send.
type Result struct {
	MessageID string
	// Raw is the provider's response body, stored verbatim for auditing.
	Raw []byte
}

// Client sends a single text message to one normalized phone number.
// Implementations must honor ctx cancellation; a non-nil error means the
// send may be retried by the caller.
type Client interface {
	Send(ctx context.Context, phoneNumber, message string) (*Result, error)
}
