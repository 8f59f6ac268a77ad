package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/demoody/missed-call-responder/internal/events"
)

// PublisherMock is a testify mock for the events.Publisher interface.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) PublishOutcome(ctx context.Context, event *events.OutcomeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() {
	m.Called()
}

var _ events.Publisher = (*PublisherMock)(nil)
