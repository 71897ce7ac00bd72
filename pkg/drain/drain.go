// Package drain runs local mitigation hooks before a scheduled event is
// acknowledged.
//
// Every event runs the hook sequence registered for its kind followed by the
// universal sequence. Hooks must be idempotent: an event that stays pending
// is drained again on the next polling cycle.
package drain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/NavarchProject/eventwatch/pkg/events"
)

// Kind selects a hook sequence.
type Kind int

const (
	// KindGeneric handles every event type without a dedicated sequence.
	KindGeneric Kind = iota
	KindReboot
	KindRedeploy
	KindPreempt

	// KindUniversal is the sequence that runs after every event's own
	// sequence. KindFor never returns it.
	KindUniversal
)

func (k Kind) String() string {
	switch k {
	case KindReboot:
		return "reboot"
	case KindRedeploy:
		return "redeploy"
	case KindPreempt:
		return "preempt"
	case KindUniversal:
		return "universal"
	default:
		return "generic"
	}
}

// KindFor maps an event type onto its hook sequence.
func KindFor(t events.Type) Kind {
	switch t {
	case events.TypeReboot:
		return KindReboot
	case events.TypeRedeploy:
		return KindRedeploy
	case events.TypePreempt:
		return KindPreempt
	default:
		return KindGeneric
	}
}

// ParseKind parses a configured hook kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reboot":
		return KindReboot, nil
	case "redeploy":
		return KindRedeploy, nil
	case "preempt":
		return KindPreempt, nil
	case "generic", "":
		return KindGeneric, nil
	case "universal":
		return KindUniversal, nil
	default:
		return KindGeneric, fmt.Errorf("unknown hook kind %q", s)
	}
}

// Result is the outcome of one drain action.
type Result struct {
	Hook        string        `json:"hook"`
	Description string        `json:"description"`
	Succeeded   bool          `json:"succeeded"`
	DryRun      bool          `json:"dryRun,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

func (r Result) String() string {
	mark := "✓"
	if !r.Succeeded {
		mark = "✗"
	}
	return mark + " " + r.Description
}

// Hook is a single mitigation action.
type Hook interface {
	// Name identifies the hook in results and logs.
	Name() string

	// Description says what the hook does. Dry runs report it instead of
	// running the hook.
	Description() string

	// Run performs the action, recording each completed sub-step. On
	// failure it returns an error; steps recorded so far are kept.
	Run(ctx context.Context, event events.Event, steps *Steps) error
}

// Steps collects the sub-steps a hook completed. It is safe for the
// recording goroutine and the registry to use concurrently.
type Steps struct {
	mu    sync.Mutex
	items []string
}

// Add records a completed sub-step.
func (s *Steps) Add(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, fmt.Sprintf(format, args...))
}

// List returns a copy of the recorded sub-steps.
func (s *Steps) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}
