package automation

import (
	"fmt"
	"time"

	"github.com/NavarchProject/eventwatch/pkg/drain"
	"github.com/NavarchProject/eventwatch/pkg/events"
)

// AckState says what happened to early acknowledgment in a cycle.
type AckState int

const (
	// AckSkipped means no acknowledgment was attempted, either because a
	// drain action failed or because the batch was empty.
	AckSkipped AckState = iota
	// AckSimulated means the cycle was a dry run and acknowledgment was
	// only reported, never sent.
	AckSimulated
	// AckCompleted means every event was sent to the acknowledgment
	// transport. Some of those calls may have failed.
	AckCompleted
)

func (s AckState) String() string {
	switch s {
	case AckSkipped:
		return "skipped"
	case AckSimulated:
		return "simulated"
	case AckCompleted:
		return "completed"
	default:
		return fmt.Sprintf("AckState(%d)", int(s))
	}
}

func (s AckState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DocState says what happened to the documentation record.
type DocState int

const (
	DocNotConfigured DocState = iota
	DocSimulated
	DocRecorded
	DocFailed
)

func (s DocState) String() string {
	switch s {
	case DocNotConfigured:
		return "not configured"
	case DocSimulated:
		return "simulated"
	case DocRecorded:
		return "recorded"
	case DocFailed:
		return "failed"
	default:
		return fmt.Sprintf("DocState(%d)", int(s))
	}
}

func (s DocState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AckFailure is one event the acknowledgment transport rejected.
type AckFailure struct {
	EventID string `json:"eventId"`
	Error   string `json:"error"`
}

// Outcome is the result of one automation cycle. A fresh Outcome is built
// for every cycle and nothing carries over to the next.
type Outcome struct {
	CycleID             string         `json:"cycleId"`
	DryRun              bool           `json:"dryRun"`
	DocumentIncarnation int            `json:"documentIncarnation"`
	Events              []events.Event `json:"-"`

	// DrainResults holds every drain result in event order, followed by
	// any early acknowledgment marker.
	DrainResults        []drain.Result `json:"drainResults"`
	OverallDrainSuccess bool           `json:"overallDrainSuccess"`

	EarlyAck             AckState     `json:"earlyAck"`
	EarlyAckAttempted    bool         `json:"earlyAckAttempted"`
	EarlyAckSuccessCount int          `json:"earlyAckSuccessCount"`
	TotalEventCount      int          `json:"totalEventCount"`
	AckFailures          []AckFailure `json:"ackFailures,omitempty"`

	Documentation         DocState `json:"documentation"`
	DocumentationRecorded bool     `json:"documentationRecorded"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// EarlyAckFullSuccess reports whether every event was acknowledged. A
// simulated acknowledgment counts as success; use EarlyAck to tell the two
// apart.
func (o *Outcome) EarlyAckFullSuccess() bool {
	switch o.EarlyAck {
	case AckSimulated:
		return true
	case AckCompleted:
		return o.EarlyAckSuccessCount == o.TotalEventCount
	default:
		return false
	}
}

// Duration is how long the cycle took.
func (o *Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// AckSummary renders the early acknowledgment state for operators.
func (o *Outcome) AckSummary() string {
	switch o.EarlyAck {
	case AckSimulated:
		return "simulated (dry run)"
	case AckCompleted:
		if o.EarlyAckFullSuccess() {
			return fmt.Sprintf("acknowledged %d/%d", o.EarlyAckSuccessCount, o.TotalEventCount)
		}
		return fmt.Sprintf("partial %d/%d", o.EarlyAckSuccessCount, o.TotalEventCount)
	default:
		if o.TotalEventCount == 0 {
			return "no events"
		}
		return "skipped (drain failures)"
	}
}

func (o *Outcome) failedDrainResults() int {
	n := 0
	for _, r := range o.DrainResults {
		if !r.Succeeded && r.Hook != ackHook {
			n++
		}
	}
	return n
}
