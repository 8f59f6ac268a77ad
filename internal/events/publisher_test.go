package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/demoody/missed-call-responder/internal/apperrors"
	jsmock "github.com/demoody/missed-call-responder/internal/jetstream/mock"
	"github.com/demoody/missed-call-responder/pkg/logger"
)

func newTestPublisher(t *testing.T) (*JetStreamPublisher, *jsmock.ClientMock) {
	t.Helper()
	logger.Log = zaptest.NewLogger(t)

	client := new(jsmock.ClientMock)
	client.On("SetupStream", mock.Anything, mock.MatchedBy(func(cfg *nats.StreamConfig) bool {
		return cfg.Name == "responder_events" &&
			len(cfg.Subjects) == 1 && cfg.Subjects[0] == "v1.responder.>" &&
			cfg.MaxAge == 30*24*time.Hour
	})).Return(nil).Once()

	pub, err := NewJetStreamPublisher(context.Background(), client, "responder_events", "v1.responder", 30)
	require.NoError(t, err)
	return pub, client
}

func TestJetStreamPublisher_PublishOutcome(t *testing.T) {
	pub, client := newTestPublisher(t)

	var published []byte
	client.On("Publish", "v1.responder.sent", mock.Anything, map[string]string{"message_id": "msg-1"}).
		Run(func(args mock.Arguments) {
			published = args.Get(1).([]byte)
		}).
		Return(nil).Once()

	err := pub.PublishOutcome(context.Background(), &OutcomeEvent{
		Kind:         KindSent,
		MessageID:    "msg-1",
		DeviceID:     "device_abc",
		PhoneNumber:  "919876543210",
		Status:       "SENT",
		AttemptCount: 1,
	})
	require.NoError(t, err)

	var decoded OutcomeEvent
	require.NoError(t, json.Unmarshal(published, &decoded))
	assert.Equal(t, KindSent, decoded.Kind)
	assert.Equal(t, "msg-1", decoded.MessageID)
	assert.False(t, decoded.OccurredAt.IsZero())

	client.AssertExpectations(t)
}

func TestJetStreamPublisher_PublishOutcome_Error(t *testing.T) {
	pub, client := newTestPublisher(t)

	client.On("Publish", "v1.responder.failed", mock.Anything, mock.Anything).
		Return(errors.New("nats: timeout")).Once()

	err := pub.PublishOutcome(context.Background(), &OutcomeEvent{
		Kind:      KindFailed,
		MessageID: "msg-2",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNATS)
	assert.Contains(t, err.Error(), "v1.responder.failed")

	client.AssertExpectations(t)
}

func TestNewJetStreamPublisher_SetupError(t *testing.T) {
	logger.Log = zaptest.NewLogger(t)

	client := new(jsmock.ClientMock)
	client.On("SetupStream", mock.Anything, mock.Anything).Return(errors.New("nats: no responders")).Once()

	pub, err := NewJetStreamPublisher(context.Background(), client, "responder_events", "v1.responder", 30)
	assert.Nil(t, pub)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNATS)

	client.AssertExpectations(t)
}

func TestNoopPublisher(t *testing.T) {
	var pub Publisher = NoopPublisher{}
	assert.NoError(t, pub.PublishOutcome(context.Background(), &OutcomeEvent{Kind: KindScheduled}))
	pub.Close()
}
