package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/NavarchProject/eventwatch/pkg/automation"
	"github.com/NavarchProject/eventwatch/pkg/clock"
	"github.com/NavarchProject/eventwatch/pkg/events"
	"github.com/NavarchProject/eventwatch/pkg/metrics"
	"github.com/NavarchProject/eventwatch/pkg/notify"
)

// Report describes what a handler did with a batch.
type Report struct {
	// Handler is the name of the handler that produced the report.
	Handler string

	// Sink is the notifier the handler submitted to, if any.
	Sink string

	// Notified is true when the sink accepted the payload.
	Notified bool

	DryRun bool

	// Automation is set by the automation handler.
	Automation *automation.Outcome
}

// Handler reacts to a non-empty batch of scheduled events.
type Handler interface {
	Name() string
	Handle(ctx context.Context, batch *events.Batch, dryRun bool) (Report, error)
}

// AlertHandler forwards batches to a workflow webhook.
type AlertHandler struct {
	notifier notify.Notifier
	host     string
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewAlertHandler creates an alert handler. host identifies this VM in the
// payload and may be empty. A nil notifier logs alerts without sending them.
func NewAlertHandler(n notify.Notifier, host string, m *metrics.Metrics, logger *slog.Logger) *AlertHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if n == nil {
		n = notify.NewNoop(logger)
	}
	return &AlertHandler{notifier: n, host: host, metrics: m, logger: logger}
}

func (h *AlertHandler) Name() string { return "alert" }

// Handle submits an alert payload. In dry-run mode the payload is logged
// instead.
func (h *AlertHandler) Handle(ctx context.Context, batch *events.Batch, dryRun bool) (Report, error) {
	report := Report{Handler: h.Name(), Sink: h.notifier.Name(), DryRun: dryRun}
	err := submit(ctx, h.notifier, notify.AlertPayload(batch, h.host), dryRun, h.metrics, h.logger)
	report.Notified = err == nil
	return report, err
}

// TicketHandler opens an ITSM incident for each batch.
type TicketHandler struct {
	notifier notify.Notifier
	fields   notify.RecordFields
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewTicketHandler creates a ticket handler. fields are copied onto every
// incident. A nil notifier logs incidents without sending them.
func NewTicketHandler(n notify.Notifier, fields notify.RecordFields, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *TicketHandler {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if n == nil {
		n = notify.NewNoop(logger)
	}
	return &TicketHandler{notifier: n, fields: fields, clock: clk, metrics: m, logger: logger}
}

func (h *TicketHandler) Name() string { return "ticket" }

func (h *TicketHandler) Handle(ctx context.Context, batch *events.Batch, dryRun bool) (Report, error) {
	report := Report{Handler: h.Name(), Sink: h.notifier.Name(), DryRun: dryRun}
	payload := notify.IncidentPayload(batch, h.fields, h.clock.Now())
	err := submit(ctx, h.notifier, payload, dryRun, h.metrics, h.logger)
	report.Notified = err == nil
	return report, err
}

// AutomationHandler runs the automation protocol for each batch.
type AutomationHandler struct {
	coordinator *automation.Coordinator
}

func NewAutomationHandler(c *automation.Coordinator) *AutomationHandler {
	return &AutomationHandler{coordinator: c}
}

func (h *AutomationHandler) Name() string { return "automation" }

// Handle never returns an error; failures are recorded in the outcome.
func (h *AutomationHandler) Handle(ctx context.Context, batch *events.Batch, dryRun bool) (Report, error) {
	out := h.coordinator.RunCycle(ctx, batch, dryRun)
	report := Report{
		Handler:    h.Name(),
		DryRun:     dryRun,
		Automation: out,
		Notified:   out.DocumentationRecorded,
	}
	return report, nil
}

func submit(ctx context.Context, n notify.Notifier, payload notify.Payload, dryRun bool, m *metrics.Metrics, logger *slog.Logger) error {
	if dryRun {
		n = notify.Dry(n, logger)
		return n.Submit(ctx, payload)
	}

	start := time.Now()
	err := n.Submit(ctx, payload)
	m.ObserveNotification(n.Name(), err)
	if err != nil {
		logger.ErrorContext(ctx, "failed to send notification",
			slog.String("sink", n.Name()),
			slog.String("error", err.Error()),
		)
		return err
	}
	logger.InfoContext(ctx, "notification sent",
		slog.String("sink", n.Name()),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

var (
	_ Handler = (*AlertHandler)(nil)
	_ Handler = (*TicketHandler)(nil)
	_ Handler = (*AutomationHandler)(nil)
)
