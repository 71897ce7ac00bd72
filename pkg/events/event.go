// Package events models the scheduled maintenance events reported by the
// instance metadata service.
//
// Events are rebuilt from every poll response. Two events from different
// polls are the same logical event when their IDs are equal; nothing here
// carries state between polls.
package events

import (
	"fmt"
	"strings"
	"time"
)

// Type is the kind of maintenance the platform announced.
type Type string

// Known event types. Anything else is TypeUnknown and keeps its verbatim
// value in Event.RawType.
const (
	TypeReboot    Type = "Reboot"
	TypeRedeploy  Type = "Redeploy"
	TypePreempt   Type = "Preempt"
	TypeFreeze    Type = "Freeze"
	TypeTerminate Type = "Terminate"
	TypeUnknown   Type = "Unknown"
)

var knownTypes = []Type{TypeReboot, TypeRedeploy, TypePreempt, TypeFreeze, TypeTerminate}

// ParseType classifies raw case-insensitively. It never fails.
func ParseType(raw string) Type {
	raw = strings.TrimSpace(raw)
	for _, t := range knownTypes {
		if strings.EqualFold(raw, string(t)) {
			return t
		}
	}
	return TypeUnknown
}

// Status is the platform-reported lifecycle state of an event.
type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusStarted   Status = "Started"
)

// ParseStatus normalizes the two documented statuses and keeps anything
// else verbatim.
func ParseStatus(raw string) Status {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.EqualFold(raw, string(StatusScheduled)):
		return StatusScheduled
	case strings.EqualFold(raw, string(StatusStarted)):
		return StatusStarted
	default:
		return Status(raw)
	}
}

// Event is a single pending maintenance notification.
type Event struct {
	ID string

	// Type is the classified event type; RawType is what the platform sent.
	Type    Type
	RawType string

	Status Status

	// NotBefore is nil when the platform omitted the field or it could not
	// be parsed. NotBeforeRaw keeps the original text.
	NotBefore    *time.Time
	NotBeforeRaw string

	// Resources lists affected resource names in the order reported.
	Resources []string

	ResourceType      string
	Description       string
	Source            string
	DurationInSeconds int
}

// TypeName returns the verbatim type for unknown events and the canonical
// name otherwise.
func (e Event) TypeName() string {
	if e.Type == TypeUnknown && e.RawType != "" {
		return e.RawType
	}
	return string(e.Type)
}

// NotBeforeString formats NotBefore for display, falling back to the raw
// value and finally to "Unknown".
func (e Event) NotBeforeString() string {
	if e.NotBefore != nil {
		return e.NotBefore.UTC().Format(time.RFC3339)
	}
	if e.NotBeforeRaw != "" {
		return e.NotBeforeRaw
	}
	return "Unknown"
}

// Summary renders a short multi-line description for console output.
func (e Event) Summary() string {
	id := e.ID
	if id == "" {
		id = "Unknown"
	}
	status := string(e.Status)
	if status == "" {
		status = "Unknown"
	}
	resources := "None"
	if len(e.Resources) > 0 {
		resources = strings.Join(e.Resources, ", ")
	}
	return fmt.Sprintf("Event %s: %s (%s)\n  Scheduled for: %s\n  Affected resources: %s",
		id, e.TypeName(), status, e.NotBeforeString(), resources)
}

// Batch is one poll response.
type Batch struct {
	// DocumentIncarnation changes whenever the event list changes. It is an
	// opaque marker and is never compared for ordering.
	DocumentIncarnation int

	Events []Event
}

// Empty reports whether the batch has no events. A nil batch is empty.
func (b *Batch) Empty() bool {
	return b == nil || len(b.Events) == 0
}

// Len returns the number of events.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Events)
}

// IDs returns the event IDs in poll order.
func (b *Batch) IDs() []string {
	if b == nil {
		return nil
	}
	ids := make([]string, 0, len(b.Events))
	for _, e := range b.Events {
		ids = append(ids, e.ID)
	}
	return ids
}

// Find returns the event with the given ID.
func (b *Batch) Find(id string) (Event, bool) {
	if b == nil {
		return Event{}, false
	}
	for _, e := range b.Events {
		if e.ID == id {
			return e, true
		}
	}
	return Event{}, false
}

// EventSummary is the compact projection of an event included in outbound
// payloads.
type EventSummary struct {
	EventID     string   `json:"eventId"`
	EventType   string   `json:"eventType"`
	EventStatus string   `json:"eventStatus"`
	NotBefore   string   `json:"notBefore"`
	Resources   []string `json:"resources"`
}

// Summaries projects every event in poll order.
func (b *Batch) Summaries() []EventSummary {
	if b == nil {
		return []EventSummary{}
	}
	out := make([]EventSummary, 0, len(b.Events))
	for _, e := range b.Events {
		resources := e.Resources
		if resources == nil {
			resources = []string{}
		}
		out = append(out, EventSummary{
			EventID:     e.ID,
			EventType:   e.TypeName(),
			EventStatus: string(e.Status),
			NotBefore:   e.NotBeforeRaw,
			Resources:   resources,
		})
	}
	return out
}
