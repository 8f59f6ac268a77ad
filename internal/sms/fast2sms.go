package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/demoody/missed-call-responder/internal/apperrors"
	"github.com/demoody/missed-call-responder/internal/observer"
	"github.com/demoody/missed-call-responder/pkg/logger"
)

// Fast2SMSConfig holds the provider settings for the bulkV2 endpoint.
type Fast2SMSConfig struct {
	APIKey         string
	SenderID       string
	BaseURL        string
	Route          string
	RequestTimeout time.Duration
}

// Fast2SMSClient sends texts through the Fast2SMS bulkV2 API using
// form-encoded POST requests authorized by an API-key header.
type Fast2SMSClient struct {
	cfg    Fast2SMSConfig
	client *http.Client
}

func NewFast2SMSClient(cfg Fast2SMSConfig) *Fast2SMSClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fast2SMSClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type fast2smsResponse struct {
	Return    bool     `json:"return"`
	RequestID string   `json:"request_id"`
	Message   []string `json:"message"`
}

func (c *Fast2SMSClient) Send(ctx context.Context, phoneNumber, message string) (*Result, error) {
	start := time.Now()
	result, err := c.send(ctx, phoneNumber, message)
	observer.ObserveSmsSendDuration(time.Since(start), err)
	return result, err
}

func (c *Fast2SMSClient) send(ctx context.Context, phoneNumber, message string) (*Result, error) {
	form := url.Values{}
	form.Set("route", c.cfg.Route)
	form.Set("message", message)
	form.Set("language", "english")
	form.Set("numbers", phoneNumber)
	form.Set("flash", "0")
	if c.cfg.SenderID != "" {
		form.Set("sender_id", c.cfg.SenderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewRetryable(fmt.Errorf("%w: %w", apperrors.ErrTimeout, err), "provider request timed out")
		}
		return nil, apperrors.NewRetryable(fmt.Errorf("%w: %w", apperrors.ErrTransport, err), "provider request failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		logger.FromContext(ctx).Warn("Provider rejected send",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("body", body))
		return nil, apperrors.NewRetryable(apperrors.ErrTransport, "unexpected provider status %d: %s", resp.StatusCode, string(body))
	}

	var pr fast2smsResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, apperrors.NewRetryable(apperrors.ErrTransport, "failed to decode provider response body=%q", string(body))
	}
	if !pr.Return {
		// The provider acknowledged the request and refused it; resending
		// the same payload cannot succeed.
		return nil, apperrors.NewFatal(apperrors.ErrTransport, "provider reported failure: %s", strings.Join(pr.Message, "; "))
	}

	return &Result{MessageID: pr.RequestID, Raw: body}, nil
}

var _ Client = (*Fast2SMSClient)(nil)
