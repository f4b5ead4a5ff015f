package handler

import (
	"context"
	"fmt"
	"time"

	"ppg-screening/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// APIForwarder posts report payloads to an external HTTP endpoint with a
// bearer key.
type APIForwarder struct {
	httpClient *resty.Client
	endpoint   string
	logger     *zap.Logger
}

func NewAPIForwarder(endpoint, apiKey string, logger *zap.Logger) *APIForwarder {
	client := resty.New().
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(apiKey)

	return &APIForwarder{
		httpClient: client,
		endpoint:   endpoint,
		logger:     logger,
	}
}

func (f *APIForwarder) Publish(ctx context.Context, p models.ReportPayload) error {
	resp, err := f.httpClient.R().
		SetContext(ctx).
		SetBody(p).
		Post(f.endpoint)
	if err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("report endpoint returned status %s", resp.Status())
	}
	f.logger.Debug("report forwarded",
		zap.String("user_id", p.UserID),
		zap.String("reading_id", p.ReadingID),
		zap.Int("status_code", resp.StatusCode()),
	)
	return nil
}
