package control

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lsm/fnsdk/internal/correlation"
	"github.com/lsm/fnsdk/pkg/offset"
)

// RetryConfig controls retries of failed posts.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type HTTPConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Retry   RetryConfig
}

// HTTP posts ack messages as JSON to a controller endpoint.
type HTTP struct {
	client *http.Client
	config HTTPConfig
	logger *slog.Logger
}

func NewHTTP(cfg HTTPConfig, logger *slog.Logger) (*HTTP, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialInterval <= 0 {
		cfg.Retry.InitialInterval = 200 * time.Millisecond
	}
	if cfg.Retry.MaxInterval <= 0 {
		cfg.Retry.MaxInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTP{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		config: cfg,
		logger: logger,
	}, nil
}

func (h *HTTP) Send(ctx context.Context, msg offset.AckMessage) error {
	body, err := sonic.ConfigStd.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal ack: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < h.config.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			case <-time.After(h.backoff(attempt)):
			}
		}

		lastErr = h.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		if isPermanent(lastErr) {
			return lastErr
		}
		h.logger.Warn("ack post failed", "url", h.config.URL, "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("ack failed after %d attempts: %w", h.config.Retry.MaxAttempts, lastErr)
}

func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

func (h *HTTP) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range h.config.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range correlation.InjectTraceContext(ctx, nil) {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{Code: resp.StatusCode}
}

func (h *HTTP) backoff(attempt int) time.Duration {
	base := float64(h.config.Retry.InitialInterval) * math.Pow(2, float64(attempt-1))
	if base > float64(h.config.Retry.MaxInterval) {
		base = float64(h.config.Retry.MaxInterval)
	}
	// ±20% jitter
	jitter := base * 0.2 * (2*rand.Float64() - 1)
	return time.Duration(base + jitter)
}

// StatusError is a non-2xx controller response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

// isPermanent reports client errors other than 429.
func isPermanent(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
}
