// Package notify delivers alerts, tickets and documentation records to
// external systems.
//
// Callers build a Payload and hand it to a Notifier; they do not know which
// concrete sink is wired in.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
)

// UserAgent is sent with every outbound request.
var UserAgent = "eventwatch/dev"

// Payload is a free-form JSON document.
type Payload map[string]any

// Notifier submits payloads to an external system.
type Notifier interface {
	// Submit delivers the payload. A nil error means the remote side
	// accepted it.
	Submit(ctx context.Context, payload Payload) error

	// Name returns the sink name for logging and metrics.
	Name() string
}

// Noop logs payloads and never contacts anything. It backs dry runs and
// deployments without an external sink.
type Noop struct {
	logger *slog.Logger
}

// NewNoop creates a no-op notifier. If logger is nil, slog.Default() is used.
func NewNoop(logger *slog.Logger) *Noop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Noop{logger: logger}
}

func (n *Noop) Name() string { return "noop" }

// Submit logs the payload and returns nil.
func (n *Noop) Submit(ctx context.Context, payload Payload) error {
	body, _ := json.Marshal(payload)
	n.logger.InfoContext(ctx, "notification not sent (no sink configured)",
		slog.String("payload", string(body)),
	)
	return nil
}

// dryRun wraps a notifier so nothing leaves the host.
type dryRun struct {
	inner  Notifier
	logger *slog.Logger
}

// Dry returns a notifier that logs what inner would have sent.
func Dry(inner Notifier, logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &dryRun{inner: inner, logger: logger}
}

func (d *dryRun) Name() string { return d.inner.Name() }

func (d *dryRun) Submit(ctx context.Context, payload Payload) error {
	body, _ := json.MarshalIndent(payload, "", "  ")
	d.logger.InfoContext(ctx, "[DRY RUN] notification not sent",
		slog.String("sink", d.inner.Name()),
		slog.String("payload", string(body)),
	)
	return nil
}

// Ensure implementations satisfy Notifier.
var (
	_ Notifier = (*Noop)(nil)
	_ Notifier = (*dryRun)(nil)
)
