// Package automation runs the drain, early acknowledgment and documentation
// protocol for a batch of scheduled events.
//
// Early acknowledgment is irreversible: it tells the platform the VM is
// ready and maintenance starts immediately. The coordinator therefore only
// acknowledges in live mode when every drain action for the batch
// succeeded.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/NavarchProject/eventwatch/pkg/clock"
	"github.com/NavarchProject/eventwatch/pkg/drain"
	"github.com/NavarchProject/eventwatch/pkg/events"
	"github.com/NavarchProject/eventwatch/pkg/metrics"
	"github.com/NavarchProject/eventwatch/pkg/notify"
)

// DefaultAckPacing is the minimum gap between acknowledgment calls.
const DefaultAckPacing = time.Second

const (
	ackHook            = "early-ack"
	markerAckSimulated = "[DRY RUN] Early acknowledgment simulated"
	markerAckSkipped   = "Early acknowledgment skipped due to drain failures"
)

// Drainer runs the drain hooks for one event.
type Drainer interface {
	Run(ctx context.Context, event events.Event, dryRun bool) (bool, []drain.Result)
}

// Acknowledger tells the platform an event may start now.
type Acknowledger interface {
	Acknowledge(ctx context.Context, eventID string) error
}

// Config configures a Coordinator.
type Config struct {
	// AckPacing is the minimum gap between acknowledgment calls. Zero
	// means DefaultAckPacing; a negative value disables pacing.
	AckPacing time.Duration

	// Fields are copied onto documentation records.
	Fields notify.RecordFields

	// Clock stamps outcomes. Defaults to the real clock.
	Clock clock.Clock
}

// Deps are the collaborators a Coordinator calls.
type Deps struct {
	Drainer      Drainer
	Acknowledger Acknowledger

	// Documenter receives the documentation record. Nil disables
	// documentation.
	Documenter notify.Notifier

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Coordinator implements the per-cycle automation protocol.
type Coordinator struct {
	config     Config
	drainer    Drainer
	acker      Acknowledger
	documenter notify.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a coordinator. Drainer and Acknowledger are required.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	if deps.Drainer == nil {
		return nil, errors.New("automation: drainer is required")
	}
	if deps.Acknowledger == nil {
		return nil, errors.New("automation: acknowledger is required")
	}
	if cfg.AckPacing == 0 {
		cfg.AckPacing = DefaultAckPacing
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		config:     cfg,
		drainer:    deps.Drainer,
		acker:      deps.Acknowledger,
		documenter: deps.Documenter,
		metrics:    deps.Metrics,
		logger:     logger.With(slog.String("component", "automation")),
	}, nil
}

// Documented reports whether a documentation sink is configured.
func (c *Coordinator) Documented() bool {
	return c.documenter != nil
}

// RunCycle drains every event, acknowledges early when that is safe, and
// files a documentation record. It never returns an error: failures are
// recorded in the outcome.
func (c *Coordinator) RunCycle(ctx context.Context, batch *events.Batch, dryRun bool) *Outcome {
	out := &Outcome{
		CycleID:             uuid.NewString(),
		DryRun:              dryRun,
		OverallDrainSuccess: true,
		StartedAt:           c.config.Clock.Now(),
	}
	if batch != nil {
		out.DocumentIncarnation = batch.DocumentIncarnation
		out.Events = batch.Events
		out.TotalEventCount = len(batch.Events)
	}
	logger := c.logger.With(slog.String("cycle_id", out.CycleID))

	if out.TotalEventCount == 0 {
		logger.DebugContext(ctx, "empty batch, nothing to automate")
		out.FinishedAt = c.config.Clock.Now()
		return out
	}

	logger.InfoContext(ctx, "processing scheduled events",
		slog.Int("events", out.TotalEventCount),
		slog.Bool("dry_run", dryRun),
	)

	c.drainAll(ctx, logger, out)
	c.acknowledge(ctx, logger, out)
	c.document(ctx, logger, out)

	out.FinishedAt = c.config.Clock.Now()
	logger.InfoContext(ctx, "automation cycle finished",
		slog.Bool("drain_success", out.OverallDrainSuccess),
		slog.String("early_ack", out.AckSummary()),
		slog.String("documentation", out.Documentation.String()),
		slog.Duration("duration", out.Duration()),
	)
	return out
}

func (c *Coordinator) drainAll(ctx context.Context, logger *slog.Logger, out *Outcome) {
	for _, event := range out.Events {
		ok, results := c.drainEvent(ctx, event, out.DryRun)
		out.DrainResults = append(out.DrainResults, results...)
		c.metrics.ObserveDrain(ok)
		if !ok {
			out.OverallDrainSuccess = false
			logger.WarnContext(ctx, "drain hooks failed",
				slog.String("event_id", event.ID),
				slog.String("event_type", event.TypeName()),
			)
			continue
		}
		logger.InfoContext(ctx, "drain hooks completed",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.TypeName()),
			slog.Int("results", len(results)),
		)
	}
}

// drainEvent runs the drainer for one event. A panic escaping the drainer
// becomes a single failed result so the remaining events still drain.
func (c *Coordinator) drainEvent(ctx context.Context, event events.Event, dryRun bool) (ok bool, results []drain.Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "drainer panicked",
				slog.String("event_id", event.ID),
				slog.Any("panic", r),
			)
			ok = false
			results = []drain.Result{{
				Hook:        "drain",
				Description: fmt.Sprintf("Drain hooks for event %s failed: %v", event.ID, r),
			}}
		}
	}()
	return c.drainer.Run(ctx, event, dryRun)
}

func (c *Coordinator) acknowledge(ctx context.Context, logger *slog.Logger, out *Outcome) {
	switch {
	case out.DryRun:
		out.EarlyAck = AckSimulated
		out.EarlyAckAttempted = true
		out.DrainResults = append(out.DrainResults, drain.Result{
			Hook:        ackHook,
			Description: markerAckSimulated,
			Succeeded:   true,
			DryRun:      true,
		})
		c.metrics.ObserveAck("simulated", out.TotalEventCount)
		logger.InfoContext(ctx, "[DRY RUN] early acknowledgment simulated",
			slog.Any("event_ids", eventIDs(out.Events)),
		)
		return

	case !out.OverallDrainSuccess:
		out.EarlyAck = AckSkipped
		out.DrainResults = append(out.DrainResults, drain.Result{
			Hook:        ackHook,
			Description: markerAckSkipped,
		})
		c.metrics.ObserveAck("skipped", out.TotalEventCount)
		logger.WarnContext(ctx, "skipping early acknowledgment due to drain failures")
		return
	}

	out.EarlyAck = AckCompleted
	out.EarlyAckAttempted = true

	limit := rate.Inf
	if c.config.AckPacing > 0 {
		limit = rate.Every(c.config.AckPacing)
	}
	limiter := rate.NewLimiter(limit, 1)

	for _, event := range out.Events {
		err := limiter.Wait(ctx)
		if err == nil {
			err = c.acker.Acknowledge(ctx, event.ID)
		}
		if err != nil {
			out.AckFailures = append(out.AckFailures, AckFailure{EventID: event.ID, Error: err.Error()})
			c.metrics.ObserveAck("failure", 1)
			logger.ErrorContext(ctx, "early acknowledgment failed",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out.EarlyAckSuccessCount++
		c.metrics.ObserveAck("success", 1)
		logger.InfoContext(ctx, "event acknowledged", slog.String("event_id", event.ID))
	}

	if out.EarlyAckFullSuccess() {
		logger.InfoContext(ctx, "all events acknowledged, impact window shortened",
			slog.Int("events", out.TotalEventCount),
		)
	} else {
		logger.WarnContext(ctx, "only some events acknowledged",
			slog.Int("acknowledged", out.EarlyAckSuccessCount),
			slog.Int("events", out.TotalEventCount),
		)
	}
}

func (c *Coordinator) document(ctx context.Context, logger *slog.Logger, out *Outcome) {
	switch {
	case c.documenter == nil:
		out.Documentation = DocNotConfigured
		logger.DebugContext(ctx, "no documentation sink configured")
		return
	case out.DryRun:
		out.Documentation = DocSimulated
		logger.InfoContext(ctx, "[DRY RUN] documentation record not filed",
			slog.String("sink", c.documenter.Name()),
		)
		return
	}

	payload := Record(out, c.config.Fields, c.config.Clock.Now())
	err := c.documenter.Submit(ctx, payload)
	c.metrics.ObserveNotification(c.documenter.Name(), err)
	if err != nil {
		out.Documentation = DocFailed
		logger.ErrorContext(ctx, "failed to file documentation record",
			slog.String("sink", c.documenter.Name()),
			slog.String("error", err.Error()),
		)
		return
	}
	out.Documentation = DocRecorded
	out.DocumentationRecorded = true
	logger.InfoContext(ctx, "documentation record filed", slog.String("sink", c.documenter.Name()))
}

func eventIDs(evs []events.Event) []string {
	ids := make([]string, len(evs))
	for i, e := range evs {
		ids[i] = e.ID
	}
	return ids
}
