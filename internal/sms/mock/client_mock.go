package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/demoody/missed-call-responder/internal/sms"
)

// ClientMock is a testify mock for the sms.Client interface.
type ClientMock struct {
	mock.Mock
}

func (m *ClientMock) Send(ctx context.Context, phoneNumber, message string) (*sms.Result, error) {
	args := m.Called(ctx, phoneNumber, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sms.Result), args.Error(1)
}

var _ sms.Client = (*ClientMock)(nil)
