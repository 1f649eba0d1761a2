package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/speedwagon-io/soilwatch/internal/config"
	"github.com/speedwagon-io/soilwatch/internal/lib/logger/sl"
	"github.com/speedwagon-io/soilwatch/internal/model"
)

// Sender forwards dashboard reports to an upstream collector.
type Sender interface {
	Send(ctx context.Context, report *model.Report) error
	SendBatch(ctx context.Context, reports []*model.Report) error
	Health(ctx context.Context) error
}

type HTTPSender struct {
	log         *slog.Logger
	baseURL     string
	token       string
	client      *http.Client
	maxAttempts int
	backoff     *ExponentialBackoff
}

func NewHTTPSender(log *slog.Logger, cfg *config.SenderConfig) *HTTPSender {
	maxAttempts := cfg.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &HTTPSender{
		log:     log.With(slog.String("component", "sender")),
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxAttempts: maxAttempts,
		backoff:     NewExponentialBackoff(cfg.Retry.InitialDelay, cfg.Retry.MaxDelay),
	}
}

func (s *HTTPSender) Send(ctx context.Context, report *model.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	return s.sendWithRetry(ctx, s.endpoint(report.DeviceID), data)
}

// SendBatch posts the reports as one JSON array. All reports are expected to
// belong to the same device; the first one decides the endpoint.
func (s *HTTPSender) SendBatch(ctx context.Context, reports []*model.Report) error {
	if len(reports) == 0 {
		return nil
	}

	data, err := json.Marshal(reports)
	if err != nil {
		return fmt.Errorf("failed to marshal reports: %w", err)
	}

	return s.sendWithRetry(ctx, s.endpoint(reports[0].DeviceID), data)
}

func (s *HTTPSender) sendWithRetry(ctx context.Context, endpoint string, data []byte) error {
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.doSend(ctx, endpoint, data)
		if err == nil {
			return nil
		}

		lastErr = err
		s.log.Warn("send attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.maxAttempts),
			sl.Err(err),
		)

		if attempt < s.maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff.NextDelay(attempt - 1)):
			}
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", s.maxAttempts, lastErr)
}

func (s *HTTPSender) doSend(ctx context.Context, endpoint string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

func (s *HTTPSender) endpoint(deviceID string) string {
	return s.baseURL + "/" + url.PathEscape(deviceID)
}

// Health probes the collector root. Only a 5xx answer counts as unhealthy;
// the root usually rejects GET with 404 or 405.
func (s *HTTPSender) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// LogSender logs reports instead of sending them (dry-run)
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, report *model.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	attrs := []any{
		slog.String("report_id", report.ID),
		slog.String("device_id", report.DeviceID),
		slog.Bool("no_data", report.NoData),
	}
	if report.Metrics != nil {
		attrs = append(attrs, slog.Int("total_readings", report.Metrics.TotalReadings))
	}
	attrs = append(attrs, slog.Int("payload_bytes", len(data)))

	s.log.Info("SEND", attrs...)

	return nil
}

func (s *LogSender) SendBatch(ctx context.Context, reports []*model.Report) error {
	for _, report := range reports {
		if err := s.Send(ctx, report); err != nil {
			return err
		}
	}
	return nil
}

func (s *LogSender) Health(ctx context.Context) error {
	return nil
}
