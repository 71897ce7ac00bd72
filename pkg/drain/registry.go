package drain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NavarchProject/eventwatch/pkg/clock"
	"github.com/NavarchProject/eventwatch/pkg/events"
)

// DefaultHookTimeout bounds a single hook when neither the registry nor the
// hook configures a timeout.
const DefaultHookTimeout = 30 * time.Second

// Config configures a Registry.
type Config struct {
	// HookTimeout is the hard per-hook timeout.
	HookTimeout time.Duration

	// StepDelayScale scales the simulated duration of the built-in hooks.
	// Zero makes them instantaneous.
	StepDelayScale float64

	// DisableBuiltins skips registering the built-in hooks.
	DisableBuiltins bool

	// Clock drives built-in step delays. Defaults to the real clock.
	Clock clock.Clock
}

// timeoutOverrider is implemented by hooks that carry their own timeout.
type timeoutOverrider interface {
	Timeout() time.Duration
}

// HookInfo describes a registered hook.
type HookInfo struct {
	Kind        Kind
	Name        string
	Description string
}

// Registry maps event kinds to hook sequences and runs them.
type Registry struct {
	config Config
	hooks  map[Kind][]Hook
	logger *slog.Logger
}

// NewRegistry creates a registry with the built-in hooks registered unless
// cfg.DisableBuiltins is set. If logger is nil, slog.Default() is used.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	if cfg.HookTimeout == 0 {
		cfg.HookTimeout = DefaultHookTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		config: cfg,
		hooks:  make(map[Kind][]Hook),
		logger: logger,
	}
	if !cfg.DisableBuiltins {
		registerBuiltins(r, cfg.Clock, cfg.StepDelayScale)
	}
	return r
}

// Register appends hook to the sequence for kind.
func (r *Registry) Register(kind Kind, hook Hook) {
	r.hooks[kind] = append(r.hooks[kind], hook)
}

// Summary lists registered hooks in execution order, universal last.
func (r *Registry) Summary() []HookInfo {
	var out []HookInfo
	for _, kind := range []Kind{KindReboot, KindRedeploy, KindPreempt, KindGeneric, KindUniversal} {
		for _, h := range r.hooks[kind] {
			name, desc, err := describe(h)
			if err != nil {
				desc = err.Error()
			}
			out = append(out, HookInfo{Kind: kind, Name: name, Description: desc})
		}
	}
	return out
}

// Sequence returns the hooks that run for event, in order.
func (r *Registry) Sequence(event events.Event) []Hook {
	own := r.hooks[KindFor(event.Type)]
	seq := make([]Hook, 0, len(own)+len(r.hooks[KindUniversal]))
	seq = append(seq, own...)
	return append(seq, r.hooks[KindUniversal]...)
}

// Run executes the event's hook sequence. It reports true only if every
// hook succeeded. Every hook runs even after an earlier one fails. Run never
// panics; hook panics and timeouts become failed results.
func (r *Registry) Run(ctx context.Context, event events.Event, dryRun bool) (bool, []Result) {
	logger := r.logger.With(
		slog.String("event_id", event.ID),
		slog.String("kind", KindFor(event.Type).String()),
	)
	logger.InfoContext(ctx, "executing drain hooks", slog.Bool("dry_run", dryRun))

	ok := true
	var results []Result
	for _, hook := range r.Sequence(event) {
		name, desc, err := describe(hook)
		if err != nil {
			ok = false
			results = append(results, Result{Hook: name, Description: err.Error()})
			logger.WarnContext(ctx, "drain hook failed", slog.String("hook", name), slog.Any("error", err))
			continue
		}

		if dryRun {
			results = append(results, Result{
				Hook:        name,
				Description: "[DRY RUN] " + desc,
				Succeeded:   true,
				DryRun:      true,
			})
			continue
		}

		hookResults, hookOK := r.runHook(ctx, hook, name, desc, event)
		results = append(results, hookResults...)
		if !hookOK {
			ok = false
			logger.WarnContext(ctx, "drain hook failed", slog.String("hook", name))
		}
	}
	return ok, results
}

// describe reads a hook's name and description. A panic in either becomes
// an error; name then falls back to the hook's type.
func describe(hook Hook) (name, desc string, err error) {
	name = fmt.Sprintf("%T", hook)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s failed: panic describing hook: %v", name, p)
		}
	}()
	name = hook.Name()
	desc = hook.Description()
	return name, desc, nil
}

type hookOutcome struct {
	err      error
	panicked any
}

func (r *Registry) runHook(ctx context.Context, hook Hook, name, desc string, event events.Event) ([]Result, bool) {
	timeout := r.config.HookTimeout
	if o, ok := hook.(timeoutOverrider); ok {
		if d := hookTimeout(o); d > 0 {
			timeout = d
		}
	}

	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.config.Clock.Now()
	steps := &Steps{}
	done := make(chan hookOutcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- hookOutcome{panicked: p}
			}
		}()
		done <- hookOutcome{err: hook.Run(hctx, event, steps)}
	}()

	var failure string
	select {
	case out := <-done:
		switch {
		case out.panicked != nil:
			failure = fmt.Sprintf("%s failed: panic: %v", desc, out.panicked)
		case out.err != nil:
			failure = fmt.Sprintf("%s failed: %v", desc, out.err)
		}
	case <-hctx.Done():
		failure = fmt.Sprintf("%s failed: timed out after %s", desc, timeout)
		if ctx.Err() != nil {
			failure = fmt.Sprintf("%s failed: %v", desc, ctx.Err())
		}
	}
	elapsed := r.config.Clock.Since(start)

	var results []Result
	for _, s := range steps.List() {
		results = append(results, Result{Hook: name, Description: s, Succeeded: true})
	}
	if failure != "" {
		results = append(results, Result{Hook: name, Description: failure, Duration: elapsed})
		return results, false
	}
	results = append(results, Result{
		Hook:        name,
		Description: desc + " completed successfully",
		Succeeded:   true,
		Duration:    elapsed,
	})
	return results, true
}

func hookTimeout(o timeoutOverrider) (d time.Duration) {
	defer func() {
		if recover() != nil {
			d = 0
		}
	}()
	return o.Timeout()
}
