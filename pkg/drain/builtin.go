package drain

import (
	"context"
	"time"

	"github.com/NavarchProject/eventwatch/pkg/clock"
	"github.com/NavarchProject/eventwatch/pkg/events"
)

// step is one simulated sub-action of a built-in hook.
type step struct {
	done  string
	delay time.Duration
}

// stepHook is a built-in hook that walks a fixed list of steps. The steps
// stand in for application-specific work and only wait.
type stepHook struct {
	name        string
	description string
	steps       []step
	clock       clock.Clock
	scale       float64
}

func (h *stepHook) Name() string        { return h.name }
func (h *stepHook) Description() string { return h.description }

func (h *stepHook) Run(ctx context.Context, _ events.Event, steps *Steps) error {
	for _, s := range h.steps {
		if d := time.Duration(float64(s.delay) * h.scale); d > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-h.clock.After(d):
			}
		}
		steps.Add("%s", s.done)
	}
	return nil
}

func registerBuiltins(r *Registry, clk clock.Clock, scale float64) {
	newHook := func(name, description string, steps ...step) Hook {
		return &stepHook{name: name, description: description, steps: steps, clock: clk, scale: scale}
	}

	r.Register(KindReboot, newHook("reboot-prepare", "Reboot preparation",
		step{"Applications gracefully stopped", time.Second},
		step{"Caches flushed", 500 * time.Millisecond},
		step{"Database synchronized", 500 * time.Millisecond},
	))
	r.Register(KindRedeploy, newHook("redeploy-prepare", "Redeploy preparation",
		step{"Critical data backed up", time.Second},
		step{"Application state exported", 500 * time.Millisecond},
		step{"Monitoring systems notified", 500 * time.Millisecond},
	))
	r.Register(KindPreempt, newHook("preempt-prepare", "Preemption preparation",
		step{"Work in progress saved", 500 * time.Millisecond},
		step{"Workload migrated to other instances", time.Second},
		step{"Job queues updated", 500 * time.Millisecond},
	))
	r.Register(KindGeneric, newHook("generic-prepare", "Generic preparation",
		step{"Current state saved", 500 * time.Millisecond},
		step{"Basic application shutdown", 500 * time.Millisecond},
	))
	r.Register(KindUniversal, newHook("common-steps", "Generic preparation steps",
		step{"Event logged", 300 * time.Millisecond},
		step{"Monitoring systems updated", 300 * time.Millisecond},
		step{"Health checks updated", 300 * time.Millisecond},
	))
}
