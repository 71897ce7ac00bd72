package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/NavarchProject/eventwatch/pkg/retry"
)

// WebhookConfig configures a workflow webhook such as a Logic App HTTP
// trigger.
type WebhookConfig struct {
	// URL receives a POST with the JSON payload.
	URL string `yaml:"url"`

	// Timeout for webhook requests. Defaults to 10s.
	Timeout time.Duration `yaml:"timeout"`

	// Headers to include in webhook requests (e.g., for authentication).
	Headers map[string]string `yaml:"headers"`

	// Retry controls retries of transient failures. Zero value means
	// retry.NotifyConfig().
	Retry retry.Config `yaml:"-"`
}

// Webhook posts payloads to an HTTP endpoint.
type Webhook struct {
	config WebhookConfig
	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(config WebhookConfig, logger *slog.Logger) *Webhook {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.NotifyConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Submit posts the payload. 4xx answers are not retried.
func (w *Webhook) Submit(ctx context.Context, payload Payload) error {
	if w.config.URL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	return retry.Do(ctx, w.config.Retry, func(ctx context.Context) error {
		return w.send(ctx, body)
	})
}

func (w *Webhook) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}

	w.logger.DebugContext(ctx, "sending webhook", slog.Int("bytes", len(body)))

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}

	w.logger.InfoContext(ctx, "webhook sent successfully",
		slog.Int("status", resp.StatusCode),
	)
	return nil
}

var _ Notifier = (*Webhook)(nil)
