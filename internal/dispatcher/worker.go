package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/demoody/missed-call-responder/internal/apperrors"
	"github.com/demoody/missed-call-responder/internal/config"
	"github.com/demoody/missed-call-responder/internal/usecase"
	"github.com/demoody/missed-call-responder/pkg/utils"
)

// Expired rate-limit counters are cleaned opportunistically; correctness
// relies on lazy expiry at admit time, so a long sweep interval is fine.
const sweepInterval = time.Hour

// CycleRunner runs one dispatch cycle. Implemented by usecase.ResponderService.
type CycleRunner interface {
	RunDispatchCycle(ctx context.Context) (*usecase.DispatchSummary, error)
	SweepExpiredRateLimits(ctx context.Context)
}

// Worker drives dispatch cycles on a ticker. Cycles never overlap: a tick
// that fires while the previous cycle is still running is skipped, and
// manual triggers are rejected while a cycle is in flight.
type Worker struct {
	cfg    config.DispatcherConfig
	runner CycleRunner
	logger *zap.Logger

	inFlight atomic.Bool
	cancel   context.CancelFunc
	stopWg   sync.WaitGroup
}

// NewWorker creates a dispatcher worker.
func NewWorker(cfg config.DispatcherConfig, runner CycleRunner, logger *zap.Logger) *Worker {
	return &Worker{
		cfg:    cfg,
		runner: runner,
		logger: logger.Named("dispatcher"),
	}
}

// Start launches the dispatch loop. It returns immediately; use Stop for a
// graceful shutdown.
func (w *Worker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.stopWg.Add(1)
	utils.SafeGo(func() {
		defer w.stopWg.Done()
		w.loop(runCtx)
	}, func(r interface{}, stack []byte) {
		w.logger.Error("Dispatch loop panicked",
			zap.Any("panic", r),
			zap.ByteString("stack", stack))
	})

	w.logger.Info("Dispatcher started",
		zap.Duration("interval", w.cfg.Interval),
		zap.Int("batch_size", w.cfg.BatchSize),
		zap.Int("pool_size", w.cfg.PoolSize))
}

// Stop cancels the loop and waits for an in-flight cycle to finish.
func (w *Worker) Stop() {
	w.logger.Info("Stopping dispatcher...")
	if w.cancel != nil {
		w.cancel()
	}
	w.stopWg.Wait()
	w.logger.Info("Dispatcher stopped")
}

// RunNow triggers a single cycle outside the ticker, for the manual dispatch
// endpoint. Returns ErrConflict when a cycle is already in flight.
func (w *Worker) RunNow(ctx context.Context) (summary *usecase.DispatchSummary, err error) {
	if !w.inFlight.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: dispatch cycle already running", apperrors.ErrConflict)
	}
	defer w.inFlight.Store(false)

	cycle := utils.WrapWithContextRecovery(func(ctx context.Context) error {
		var runErr error
		summary, runErr = w.runner.RunDispatchCycle(ctx)
		return runErr
	})
	if err = cycle(ctx); err != nil {
		return nil, err
	}
	return summary, nil
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Dispatch loop stopping due to context cancellation")
			return
		case <-ticker.C:
			w.runCycle(ctx)
		case <-sweep.C:
			w.runner.SweepExpiredRateLimits(ctx)
		}
	}
}

func (w *Worker) runCycle(ctx context.Context) {
	if _, err := w.RunNow(ctx); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			w.logger.Warn("Previous dispatch cycle still running, skipping tick")
			return
		}
		w.logger.Error("Dispatch cycle failed", zap.Error(err))
	}
}
