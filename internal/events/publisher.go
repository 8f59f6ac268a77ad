package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/demoody/missed-call-responder/internal/apperrors"
	"github.com/demoody/missed-call-responder/internal/jetstream"
	"github.com/demoody/missed-call-responder/pkg/logger"
	"github.com/demoody/missed-call-responder/pkg/utils"
)

// Event kinds published on the outcome stream. Each kind maps to its own
// subject under the configured prefix.
const (
	KindScheduled = "scheduled"
	KindSent      = "sent"
	KindRetried   = "retried"
	KindFailed    = "failed"
	KindBlocked   = "blocked"
)

// OutcomeEvent is the wire payload describing one lifecycle transition of a
// scheduled message.
type OutcomeEvent struct {
	Kind         string    `json:"kind"`
	MessageID    string    `json:"message_id"`
	DeviceID     string    `json:"device_id"`
	PhoneNumber  string    `json:"phone_number"`
	Status       string    `json:"status"`
	AttemptCount int       `json:"attempt_count"`
	Error        string    `json:"error,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher emits lifecycle events for downstream consumers. Publishing is
// best effort: callers log failures and keep going, delivery never gates a
// state transition.
type Publisher interface {
	PublishOutcome(ctx context.Context, event *OutcomeEvent) error
	Close()
}

// NoopPublisher drops every event. Used when NATS is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishOutcome(ctx context.Context, event *OutcomeEvent) error { return nil }
func (NoopPublisher) Close()                                                        {}

var _ Publisher = NoopPublisher{}

// JetStreamPublisher publishes outcome events to a NATS JetStream stream.
type JetStreamPublisher struct {
	client        jetstream.ClientInterface
	subjectPrefix string
}

// NewJetStreamPublisher ensures the outcome stream exists and returns a
// publisher bound to it.
func NewJetStreamPublisher(ctx context.Context, client jetstream.ClientInterface, streamName, subjectPrefix string, maxAgeDays int) (*JetStreamPublisher, error) {
	streamConfig := &nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Duration(maxAgeDays) * 24 * time.Hour,
	}
	if err := client.SetupStream(ctx, streamConfig); err != nil {
		return nil, fmt.Errorf("%w: failed to setup outcome stream: %w", apperrors.ErrNATS, err)
	}

	return &JetStreamPublisher{
		client:        client,
		subjectPrefix: subjectPrefix,
	}, nil
}

func (p *JetStreamPublisher) PublishOutcome(ctx context.Context, event *OutcomeEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data := utils.MustMarshalJSON(event)

	subject := p.subjectPrefix + "." + event.Kind
	if err := p.client.Publish(subject, data, map[string]string{
		"message_id": event.MessageID,
	}); err != nil {
		return fmt.Errorf("%w: failed to publish outcome event to '%s': %w", apperrors.ErrNATS, subject, err)
	}

	logger.FromContext(ctx).Debug("Published outcome event",
		zap.String("subject", subject),
		zap.String("message_id", event.MessageID),
		zap.String("kind", event.Kind))
	return nil
}

func (p *JetStreamPublisher) Close() {
	p.client.Close()
}

var _ Publisher = (*JetStreamPublisher)(nil)
