package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/demoody/missed-call-responder/internal/apperrors"
	"github.com/demoody/missed-call-responder/internal/model"
	"github.com/demoody/missed-call-responder/internal/usecase"
	"github.com/demoody/missed-call-responder/pkg/logger"
)

type responderAPIMock struct {
	mock.Mock
}

func (m *responderAPIMock) IntakeMissedCall(ctx context.Context, req *model.MissedCallRequest) (*usecase.IntakeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.IntakeResult), args.Error(1)
}

func (m *responderAPIMock) RegisterDevice(ctx context.Context, req *model.RegisterDeviceRequest) (*model.Device, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *responderAPIMock) OptOut(ctx context.Context, req *model.OptOutRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *responderAPIMock) BlockNumber(ctx context.Context, req *model.BlockRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *responderAPIMock) UnblockNumber(ctx context.Context, phoneNumber string) error {
	return m.Called(ctx, phoneNumber).Error(0)
}

func (m *responderAPIMock) ListBlockedNumbers(ctx context.Context, limit, offset int) ([]model.BlockedNumber, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BlockedNumber), args.Error(1)
}

func (m *responderAPIMock) GetDeviceLogs(ctx context.Context, deviceID string, page, limit int) (*usecase.DeviceLogs, error) {
	args := m.Called(ctx, deviceID, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.DeviceLogs), args.Error(1)
}

type dispatchTriggerMock struct {
	mock.Mock
}

func (m *dispatchTriggerMock) RunNow(ctx context.Context) (*usecase.DispatchSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.DispatchSummary), args.Error(1)
}

func newTestServer(t *testing.T) (*Server, *responderAPIMock, *dispatchTriggerMock) {
	t.Helper()
	logger.Log = zaptest.NewLogger(t)
	svc := new(responderAPIMock)
	dispatch := new(dispatchTriggerMock)
	return NewServer("8080", svc, dispatch, logger.Log), svc, dispatch
}

func doRequest(t *testing.T, srv *Server, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.NotEmpty(t, env.Timestamp)
	return env
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "UP", resp.Status)
}

func TestHandleReady(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "READY", resp.Status)
	assert.NotEmpty(t, resp.Details["timestamp"])
}

func TestRequestIDMiddleware(t *testing.T) {
	srv, _, _ := newTestServer(t)

	t.Run("assigns fresh id", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/health", nil)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("echoes provided id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "req-42")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	})
}

func TestHandleMissedCall_Scheduled(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	scheduled := time.Date(2026, 3, 15, 10, 35, 0, 0, time.UTC)
	svc.On("IntakeMissedCall", mock.Anything, mock.MatchedBy(func(req *model.MissedCallRequest) bool {
		return req.DeviceID == "device_abc" && req.PhoneNumber == "9876543210"
	})).Return(&usecase.IntakeResult{
		Outcome: usecase.OutcomeScheduled,
		Message: &model.ScheduledMessage{
			ID:            "msg-1",
			Status:        model.StatusPending,
			ScheduledTime: scheduled,
		},
	}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/missed_calls", map[string]interface{}{
		"device_id":    "device_abc",
		"phone_number": "9876543210",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "msg-1", data["call_id"])
	assert.Equal(t, "PENDING", data["status"])
	svc.AssertExpectations(t)
}

func TestHandleMissedCall_DeviceNotRegistered(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	svc.On("IntakeMissedCall", mock.Anything, mock.Anything).
		Return(&usecase.IntakeResult{Outcome: usecase.OutcomeDeviceNotRegistered}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/missed_calls", map[string]interface{}{
		"device_id":    "device_ghost",
		"phone_number": "9876543210",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "not registered")
}

func TestHandleMissedCall_RateLimited(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	svc.On("IntakeMissedCall", mock.Anything, mock.Anything).
		Return(&usecase.IntakeResult{Outcome: usecase.OutcomeRateLimited, RateScope: model.RateScopePhone}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/missed_calls", map[string]interface{}{
		"device_id":    "device_abc",
		"phone_number": "9876543210",
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Contains(t, env.Error, model.RateScopePhone)
}

func TestHandleMissedCall_DuplicateIsSuccess(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	svc.On("IntakeMissedCall", mock.Anything, mock.Anything).
		Return(&usecase.IntakeResult{
			Outcome:  usecase.OutcomeDuplicateDetected,
			Existing: &model.ScheduledMessage{ID: "msg-earlier"},
		}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/missed_calls", map[string]interface{}{
		"device_id":    "device_abc",
		"phone_number": "9876543210",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "DUPLICATE_DETECTED", data["status"])
	assert.Equal(t, "msg-earlier", data["call_id"])
}

func TestHandleMissedCall_InvalidPhone(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	svc.On("IntakeMissedCall", mock.Anything, mock.Anything).
		Return(&usecase.IntakeResult{Outcome: usecase.OutcomeInvalidPhoneNumber}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/missed_calls", map[string]interface{}{
		"device_id":    "device_abc",
		"phone_number": "12345",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMissedCall_ValidationError(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	svc.On("IntakeMissedCall", mock.Anything, mock.Anything).
		Return(nil, apperrors.ErrValidation)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/missed_calls", map[string]interface{}{
		"phone_number": "9876543210",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMissedCall_Timeout(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	svc.On("IntakeMissedCall", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: context deadline exceeded", apperrors.ErrTimeout))

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/missed_calls", map[string]interface{}{
		"device_id":    "device_abc",
		"phone_number": "9876543210",
	})
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestHandleMissedCall_MalformedBody(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/missed_calls", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "IntakeMissedCall", mock.Anything, mock.Anything)
}

func TestHandleSendScheduled(t *testing.T) {
	srv, _, dispatch := newTestServer(t)

	dispatch.On("RunNow", mock.Anything).
		Return(&usecase.DispatchSummary{Processed: 3, Sent: 2, Retried: 1}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/send_scheduled", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, float64(3), data["processed"])
	assert.Equal(t, float64(2), data["sent"])
}

func TestHandleSendScheduled_AlreadyRunning(t *testing.T) {
	srv, _, dispatch := newTestServer(t)

	dispatch.On("RunNow", mock.Anything).Return(nil, apperrors.ErrConflict)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/send_scheduled", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleRegisterDevice(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	svc.On("RegisterDevice", mock.Anything, mock.MatchedBy(func(req *model.RegisterDeviceRequest) bool {
		return req.DeviceID == "device_new"
	})).Return(&model.Device{
		DeviceID:   "device_new",
		DeviceName: "Front Desk",
		APIToken:   "abc123",
		IsActive:   true,
	}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/register_device", map[string]interface{}{
		"device_id":   "device_new",
		"device_name": "Front Desk",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "abc123", data["api_token"])
}

func TestHandleGetLogs(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	svc.On("GetDeviceLogs", mock.Anything, "device_abc", 2, 10).
		Return(&usecase.DeviceLogs{
			Logs:  []model.ScheduledMessage{{ID: "msg-1"}},
			Stats: &model.MessageStats{Total: 1, Pending: 1},
			Page:  2,
			Limit: 10,
		}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/logs?device_id=device_abc&page=2&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["page"])
	svc.AssertExpectations(t)
}

func TestHandleGetLogs_MissingDeviceID(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/logs", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "GetDeviceLogs", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleGetLogs_StorageFailure(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	svc.On("GetDeviceLogs", mock.Anything, "device_abc", 0, 0).
		Return(nil, fmt.Errorf("%w: connection refused", apperrors.ErrDatabase))

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/logs?device_id=device_abc", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "storage temporarily unavailable", env.Error)
}

func TestHandleGetLogs_UnknownDevice(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	svc.On("GetDeviceLogs", mock.Anything, "device_ghost", 0, 0).
		Return(nil, apperrors.ErrNotFound)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/logs?device_id=device_ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleOptOut(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	svc.On("OptOut", mock.Anything, mock.MatchedBy(func(req *model.OptOutRequest) bool {
		return req.PhoneNumber == "9876543210"
	})).Return(nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/opt_out", map[string]interface{}{
		"phone_number": "9876543210",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "OPTED_OUT", data["status"])
	svc.AssertExpectations(t)
}

func TestHandleBlockAndUnblock(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	svc.On("BlockNumber", mock.Anything, mock.MatchedBy(func(req *model.BlockRequest) bool {
		return req.PhoneNumber == "9876543210" && req.Reason == "SPAM"
	})).Return(nil)
	svc.On("UnblockNumber", mock.Anything, "9876543210").Return(nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/block", map[string]interface{}{
		"phone_number": "9876543210",
		"reason":       "SPAM",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/unblock", map[string]interface{}{
		"phone_number": "9876543210",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestHandleListBlocked(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	svc.On("ListBlockedNumbers", mock.Anything, 50, 0).
		Return([]model.BlockedNumber{{PhoneNumber: "919876543210", Reason: "USER_OPTOUT"}}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/blocked_numbers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])
}
