package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/demoody/missed-call-responder/internal/model"
	"github.com/demoody/missed-call-responder/internal/usecase"
)

// ResponderAPI is the slice of the service the HTTP layer needs.
type ResponderAPI interface {
	IntakeMissedCall(ctx context.Context, req *model.MissedCallRequest) (*usecase.IntakeResult, error)
	RegisterDevice(ctx context.Context, req *model.RegisterDeviceRequest) (*model.Device, error)
	OptOut(ctx context.Context, req *model.OptOutRequest) error
	BlockNumber(ctx context.Context, req *model.BlockRequest) error
	UnblockNumber(ctx context.Context, phoneNumber string) error
	ListBlockedNumbers(ctx context.Context, limit, offset int) ([]model.BlockedNumber, error)
	GetDeviceLogs(ctx context.Context, deviceID string, page, limit int) (*usecase.DeviceLogs, error)
}

// DispatchTrigger runs one dispatch cycle on demand.
type DispatchTrigger interface {
	RunNow(ctx context.Context) (*usecase.DispatchSummary, error)
}

// Server is the HTTP front of the responder: the device-facing API plus
// health and metrics endpoints.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	svc        ResponderAPI
	dispatch   DispatchTrigger
	logger     *zap.Logger
}

// NewServer wires the API routes onto a fresh mux.
func NewServer(port string, svc ResponderAPI, dispatch DispatchTrigger, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	server := &Server{
		httpServer: &http.Server{
			Addr:    ":" + port,
			Handler: requestIDMiddleware(mux),
		},
		mux:      mux,
		svc:      svc,
		dispatch: dispatch,
		logger:   logger,
	}

	mux.HandleFunc("GET /health", server.handleHealth)
	mux.HandleFunc("GET /ready", server.handleReady)

	mux.HandleFunc("POST /api/v1/missed_calls", server.handleMissedCall)
	mux.HandleFunc("POST /api/v1/send_scheduled", server.handleSendScheduled)
	mux.HandleFunc("POST /api/v1/register_device", server.handleRegisterDevice)
	mux.HandleFunc("GET /api/v1/logs", server.handleGetLogs)
	mux.HandleFunc("POST /api/v1/opt_out", server.handleOptOut)
	mux.HandleFunc("POST /api/v1/block", server.handleBlock)
	mux.HandleFunc("POST /api/v1/unblock", server.handleUnblock)
	mux.HandleFunc("GET /api/v1/blocked_numbers", server.handleListBlocked)

	return server
}

// RegisterMetricsHandler adds the /metrics endpoint handler.
// Should only be called if metrics are enabled.
func (s *Server) RegisterMetricsHandler(handler http.Handler) {
	s.logger.Info("Registering /metrics endpoint")
	s.mux.Handle("GET /metrics", handler)
}

// Handler exposes the wrapped mux, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}
