// Package monitor polls for scheduled events and hands each non-empty
// batch to a Handler.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/NavarchProject/eventwatch/pkg/clock"
	"github.com/NavarchProject/eventwatch/pkg/events"
	"github.com/NavarchProject/eventwatch/pkg/metrics"
)

// DefaultPollInterval is the gap between polls.
const DefaultPollInterval = 30 * time.Second

// Poller fetches the current batch of scheduled events.
type Poller interface {
	Poll(ctx context.Context) (*events.Batch, error)
}

// Config configures the polling loop.
type Config struct {
	// PollInterval is how long to sleep between cycles.
	PollInterval time.Duration

	// RunOnce makes Run return after the first cycle.
	RunOnce bool

	// DryRun is passed to the handler on every cycle.
	DryRun bool

	// Clock drives the sleep between polls. Defaults to the real clock.
	Clock clock.Clock
}

// Observer is called after every cycle.
type Observer func(CycleResult)

// Deps are the collaborators a Monitor calls.
type Deps struct {
	Poller   Poller
	Handler  Handler
	Observer Observer
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// CycleResult is what one poll produced.
type CycleResult struct {
	Batch *events.Batch

	// PollErr is set when no batch could be fetched.
	PollErr error

	// Report is set when the handler ran.
	Report *Report

	// HandlerErr is the error the handler returned, if any.
	HandlerErr error

	Duration time.Duration
}

// Handled reports whether the handler ran.
func (r CycleResult) Handled() bool {
	return r.Report != nil
}

// Monitor is the polling loop.
type Monitor struct {
	config   Config
	poller   Poller
	handler  Handler
	observer Observer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a monitor. Poller and Handler are required.
func New(cfg Config, deps Deps) (*Monitor, error) {
	if deps.Poller == nil {
		return nil, errors.New("monitor: poller is required")
	}
	if deps.Handler == nil {
		return nil, errors.New("monitor: handler is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		config:   cfg,
		poller:   deps.Poller,
		handler:  deps.Handler,
		observer: deps.Observer,
		metrics:  deps.Metrics,
		logger:   logger.With(slog.String("component", "monitor")),
	}, nil
}

// Run polls until ctx is cancelled. In run-once mode it returns after the
// first cycle, with the poll error if the poll failed. Handler errors are
// logged and never stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "monitoring for scheduled events",
		slog.String("handler", m.handler.Name()),
		slog.Duration("poll_interval", m.config.PollInterval),
		slog.Bool("run_once", m.config.RunOnce),
		slog.Bool("dry_run", m.config.DryRun),
	)

	for {
		result := m.Cycle(ctx)
		if m.config.RunOnce {
			return result.PollErr
		}

		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "monitoring stopped")
			return nil
		case <-m.config.Clock.After(m.config.PollInterval):
		}
	}
}

// Cycle polls once and runs the handler if the batch has events.
func (m *Monitor) Cycle(ctx context.Context) CycleResult {
	start := m.config.Clock.Now()
	var result CycleResult
	defer func() {
		if m.observer != nil {
			m.observer(result)
		}
	}()

	batch, err := m.poller.Poll(ctx)
	m.metrics.ObservePoll(batch, err)
	if err != nil {
		result.PollErr = err
		if ctx.Err() == nil {
			m.logger.ErrorContext(ctx, "failed to poll scheduled events",
				slog.String("error", err.Error()),
			)
		}
		return result
	}
	result.Batch = batch

	if batch.Empty() {
		m.logger.DebugContext(ctx, "no scheduled events detected")
		return result
	}

	m.logger.InfoContext(ctx, "scheduled events detected",
		slog.Int("events", batch.Len()),
		slog.Int("document_incarnation", batch.DocumentIncarnation),
	)
	for _, e := range batch.Events {
		m.logger.InfoContext(ctx, e.Summary(), slog.String("event_id", e.ID))
	}

	report, err := m.handler.Handle(ctx, batch, m.config.DryRun)
	result.Report = &report
	result.Duration = m.config.Clock.Since(start)
	if err != nil {
		result.HandlerErr = err
		m.metrics.ObserveCycle("error", result.Duration)
		m.logger.ErrorContext(ctx, "handler failed",
			slog.String("handler", m.handler.Name()),
			slog.String("error", err.Error()),
		)
		return result
	}
	m.metrics.ObserveCycle(cycleOutcome(report), result.Duration)
	return result
}

func cycleOutcome(r Report) string {
	switch {
	case r.DryRun:
		return "dry_run"
	case r.Automation != nil && !r.Automation.OverallDrainSuccess:
		return "drain_failed"
	case r.Automation != nil && !r.Automation.EarlyAckFullSuccess():
		return "partial_ack"
	default:
		return "success"
	}
}
