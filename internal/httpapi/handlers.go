package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/demoody/missed-call-responder/internal/apperrors"
	"github.com/demoody/missed-call-responder/internal/model"
	"github.com/demoody/missed-call-responder/internal/usecase"
	"github.com/demoody/missed-call-responder/pkg/logger"
	"github.com/demoody/missed-call-responder/pkg/utils"
)

// envelope is the JSON shape every API response uses.
type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// HealthResponse is the response structure for the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the response structure for the readiness endpoint.
type ReadyResponse struct {
	Status  string            `json:"status"`
	Details map[string]string `json:"details,omitempty"`
}

func writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	utils.WriteJSONResponse(w, statusCode, envelope{
		Success:   true,
		Data:      data,
		Timestamp: utils.FormatISO8601(utils.Now()),
	})
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	utils.WriteJSONResponse(w, statusCode, envelope{
		Success:   false,
		Error:     message,
		Timestamp: utils.FormatISO8601(utils.Now()),
	})
}

// writeServiceError maps error taxonomy sentinels onto HTTP status codes.
// Unrecognized errors are logged and hidden behind a generic 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apperrors.IsValidationError(err), apperrors.IsBadRequestError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case apperrors.IsNotFoundError(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrConflict), apperrors.IsDuplicateError(err):
		writeError(w, http.StatusConflict, err.Error())
	case apperrors.IsRateLimitedError(err):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case apperrors.IsTimeoutError(err):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case apperrors.IsDatabaseError(err):
		logger.FromContext(r.Context()).Error("Storage failure",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
	default:
		logger.FromContext(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSONResponse(w, http.StatusOK, HealthResponse{
		Status:  "UP",
		Version: "1.0.0",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSONResponse(w, http.StatusOK, ReadyResponse{
		Status: "READY",
		Details: map[string]string{
			"timestamp": utils.FormatISO8601(utils.Now()),
		},
	})
}

func (s *Server) handleMissedCall(w http.ResponseWriter, r *http.Request) {
	var req model.MissedCallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.svc.IntakeMissedCall(r.Context(), &req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	switch result.Outcome {
	case usecase.OutcomeScheduled:
		writeSuccess(w, http.StatusOK, map[string]interface{}{
			"call_id":        result.Message.ID,
			"status":         result.Message.Status,
			"scheduled_time": utils.FormatISO8601(result.Message.ScheduledTime),
			"message":        "Auto-response scheduled",
		})
	case usecase.OutcomeDuplicateDetected:
		data := map[string]interface{}{
			"status":  string(result.Outcome),
			"message": "A response is already scheduled for this caller",
		}
		if result.Existing != nil {
			data["call_id"] = result.Existing.ID
		}
		writeSuccess(w, http.StatusOK, data)
	case usecase.OutcomeBlocked:
		writeSuccess(w, http.StatusOK, map[string]interface{}{
			"status":  string(result.Outcome),
			"message": "Number is on the block list, no response will be sent",
		})
	case usecase.OutcomeRateLimited:
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded for "+result.RateScope)
	case usecase.OutcomeInvalidPhoneNumber:
		writeError(w, http.StatusBadRequest, "invalid phone number")
	case usecase.OutcomeDeviceNotRegistered:
		writeError(w, http.StatusUnauthorized, "device not registered or inactive")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) handleSendScheduled(w http.ResponseWriter, r *http.Request) {
	summary, err := s.dispatch.RunNow(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, summary)
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	device, err := s.svc.RegisterDevice(r.Context(), &req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, device)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := s.svc.GetDeviceLogs(r.Context(), deviceID, page, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (s *Server) handleOptOut(w http.ResponseWriter, r *http.Request) {
	var req model.OptOutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.svc.OptOut(r.Context(), &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{
		"status":  "OPTED_OUT",
		"message": "You will not receive further auto-responses",
	})
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	var req model.BlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.svc.BlockNumber(r.Context(), &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "BLOCKED"})
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	var req model.BlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PhoneNumber == "" {
		writeError(w, http.StatusBadRequest, "phone_number is required")
		return
	}

	if err := s.svc.UnblockNumber(r.Context(), req.PhoneNumber); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "UNBLOCKED"})
}

func (s *Server) handleListBlocked(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	entries, err := s.svc.ListBlockedNumbers(r.Context(), limit, offset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"blocked_numbers": entries,
		"count":           len(entries),
	})
}
