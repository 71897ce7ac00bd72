// Package imds talks to the instance metadata service's scheduled events
// endpoint: it polls for pending maintenance events and acknowledges them.
package imds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/NavarchProject/eventwatch/pkg/events"
	"github.com/NavarchProject/eventwatch/pkg/retry"
)

const (
	// DefaultEndpoint is the link-local scheduled events endpoint.
	DefaultEndpoint = "http://169.254.169.254/metadata/scheduledevents"

	// DefaultAPIVersion is the scheduled events API version requested.
	DefaultAPIVersion = "2020-07-01"

	// DefaultTimeout bounds every metadata request.
	DefaultTimeout = 5 * time.Second
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// Config configures the metadata client.
type Config struct {
	Endpoint   string        `yaml:"endpoint"`
	APIVersion string        `yaml:"api_version"`
	Timeout    time.Duration `yaml:"timeout"`

	// Retry applies to polls only. Zero value means retry.MetadataConfig().
	Retry retry.Config `yaml:"-"`
}

// StatusError is returned when the metadata service answers with a
// non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: metadata service returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: metadata service returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client polls and acknowledges scheduled events.
type Client struct {
	url    string
	client *http.Client
	retry  retry.Config
	logger *slog.Logger
}

// NewClient creates a metadata client. If logger is nil, slog.Default() is used.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.MetadataConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata endpoint: %w", err)
	}
	q := u.Query()
	q.Set("api-version", cfg.APIVersion)
	u.RawQuery = q.Encode()

	return &Client{
		url:    u.String(),
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  cfg.Retry,
		logger: logger,
	}, nil
}

// URL returns the fully qualified scheduled events URL.
func (c *Client) URL() string {
	return c.url
}

// Poll fetches the current scheduled events document. Transient failures
// are retried; a 4xx answer is returned immediately.
func (c *Client) Poll(ctx context.Context) (*events.Batch, error) {
	return retry.DoWithValue(ctx, c.retry, func(ctx context.Context) (*events.Batch, error) {
		batch, err := c.poll(ctx)
		if err != nil {
			c.logger.DebugContext(ctx, "scheduled events poll attempt failed",
				slog.String("error", err.Error()),
			)
		}
		return batch, err
	})
}

func (c *Client) poll(ctx context.Context) (*events.Batch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create poll request: %w", err))
	}
	req.Header.Set("Metadata", "true")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to poll scheduled events: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("poll", resp); err != nil {
		return nil, err
	}

	batch, err := events.DecodeBatch(resp.Body)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

type startRequest struct {
	EventID string `json:"EventId"`
}

type ackBody struct {
	StartRequests []startRequest `json:"StartRequests"`
}

// Acknowledge tells the platform the workload is ready for eventID to
// start now. It makes exactly one request. Acknowledging an event that is
// no longer pending yields an error, never a panic.
func (c *Client) Acknowledge(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("acknowledge: empty event ID")
	}

	body, err := json.Marshal(ackBody{StartRequests: []startRequest{{EventID: eventID}}})
	if err != nil {
		return fmt.Errorf("failed to marshal acknowledgment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create acknowledgment request: %w", err)
	}
	req.Header.Set("Metadata", "true")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to acknowledge event %s: %w", eventID, err)
	}
	defer resp.Body.Close()

	if err := checkStatus("acknowledge", resp); err != nil {
		return fmt.Errorf("event %s: %w", eventID, err)
	}

	c.logger.InfoContext(ctx, "event acknowledged", slog.String("event_id", eventID))
	return nil
}

// checkStatus converts non-2xx responses into a *StatusError. Client
// errors are marked permanent so they are not retried.
func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       string(bytes.TrimSpace(body)),
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return retry.Permanent(err)
	}
	return err
}
