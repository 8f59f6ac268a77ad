package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/demoody/missed-call-responder/internal/config"
	"github.com/demoody/missed-call-responder/internal/events"
	"github.com/demoody/missed-call-responder/internal/sms"
	"github.com/demoody/missed-call-responder/internal/storage"
	"github.com/demoody/missed-call-responder/pkg/logger"
	"github.com/demoody/missed-call-responder/pkg/utils"
)

// ResponderService implements missed-call intake and scheduled dispatch.
type ResponderService struct {
	messageRepo   storage.MessageRepo
	deviceRepo    storage.DeviceRepo
	blockListRepo storage.BlockListRepo
	rateLimitRepo storage.RateLimitRepo
	smsClient     sms.Client
	publisher     events.Publisher
	cfg           *config.Config

	pool       *ants.Pool
	hoursStart config.Clock
	hoursEnd   config.Clock
	now        func() time.Time
}

// NewResponderService creates the service and its bounded dispatch pool.
func NewResponderService(
	messageRepo storage.MessageRepo,
	deviceRepo storage.DeviceRepo,
	blockListRepo storage.BlockListRepo,
	rateLimitRepo storage.RateLimitRepo,
	smsClient sms.Client,
	publisher events.Publisher,
	cfg *config.Config,
) (*ResponderService, error) {
	hoursStart, err := config.ParseClock(cfg.Business.HoursStart)
	if err != nil {
		return nil, fmt.Errorf("invalid business hours start: %w", err)
	}
	hoursEnd, err := config.ParseClock(cfg.Business.HoursEnd)
	if err != nil {
		return nil, fmt.Errorf("invalid business hours end: %w", err)
	}

	pool, err := ants.NewPool(cfg.Dispatcher.PoolSize, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch pool: %w", err)
	}

	return &ResponderService{
		messageRepo:   messageRepo,
		deviceRepo:    deviceRepo,
		blockListRepo: blockListRepo,
		rateLimitRepo: rateLimitRepo,
		smsClient:     smsClient,
		publisher:     publisher,
		cfg:           cfg,
		pool:          pool,
		hoursStart:    hoursStart,
		hoursEnd:      hoursEnd,
		now:           utils.Now,
	}, nil
}

// Close releases the dispatch pool.
func (s *ResponderService) Close() {
	s.pool.Release()
}

// publishOutcome emits a lifecycle event. Publishing is best effort and never
// affects the state transition that triggered it.
func (s *ResponderService) publishOutcome(ctx context.Context, event *events.OutcomeEvent) {
	if err := s.publisher.PublishOutcome(ctx, event); err != nil {
		logger.FromContext(ctx).Warn("Failed to publish outcome event",
			zap.String("kind", event.Kind),
			zap.String("message_id", event.MessageID),
			zap.Error(err))
	}
}
