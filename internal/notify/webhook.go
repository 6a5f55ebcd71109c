package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Значения по умолчанию для WebhookSink.
const (
	DefaultWebhookTimeout  = 5 * time.Second
	DefaultWebhookAttempts = 3
	DefaultInitialDelay    = 200 * time.Millisecond
	DefaultMaxDelay        = 2 * time.Second
)

// ErrWebhookRejected — получатель ответил 4xx, повтор бессмыслен.
var ErrWebhookRejected = errors.New("webhook rejected notification")

// WebhookConfig — параметры WebhookSink.
type WebhookConfig struct {
	URL          string
	Headers      map[string]string
	Timeout      time.Duration
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Client       *http.Client
}

// WebhookSink отправляет события POST-запросом с JSON-телом.
type WebhookSink struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhookSink создаёт WebhookSink.
func NewWebhookSink(cfg WebhookConfig) *WebhookSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWebhookTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultWebhookAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &WebhookSink{cfg: cfg, client: client}
}

func (s *WebhookSink) Name() string { return "webhook" }

// Notify отправляет событие. 5xx и сетевые ошибки повторяются
// с экспоненциальной задержкой, 4xx — нет.
func (s *WebhookSink) Notify(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(Backoff(attempt-1, s.cfg.InitialDelay, s.cfg.MaxDelay)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = s.post(ctx, body)
		if lastErr == nil || errors.Is(lastErr, ErrWebhookRejected) {
			return lastErr
		}
	}

	return fmt.Errorf("after %d attempts: %w", s.cfg.MaxAttempts, lastErr)
}

func (s *WebhookSink) post(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode < 500:
		return fmt.Errorf("%w: HTTP %d: %s", ErrWebhookRejected, resp.StatusCode, respBody)
	default:
		return fmt.Errorf("webhook HTTP %d: %s", resp.StatusCode, respBody)
	}
}

// Backoff вычисляет задержку перед повтором: initial * 2^(attempt-1), не больше max.
func Backoff(attempt int, initial, maxDelay time.Duration) time.Duration {
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
