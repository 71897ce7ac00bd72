package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/NavarchProject/eventwatch/pkg/events"
)

// RecordFields are copied onto every ITSM record.
type RecordFields struct {
	AssignmentGroup string
	CallerID        string
	VMIdentifier    string
}

// Apply sets the fields on payload.
func (f RecordFields) Apply(payload Payload) {
	payload["assignment_group"] = f.AssignmentGroup
	payload["caller_id"] = f.CallerID
	payload["u_azure_vm"] = f.VMIdentifier
}

// BatchPayload is the minimal description of a batch shared by every sink.
func BatchPayload(batch *events.Batch, scenario string) Payload {
	return Payload{
		"scenario":   scenario,
		"timestamp":  batch.DocumentIncarnation,
		"eventCount": batch.Len(),
		"events":     batch.Summaries(),
	}
}

// AlertPayload builds the workflow alert for a batch that needs human
// attention.
func AlertPayload(batch *events.Batch, host string) Payload {
	p := BatchPayload(batch, "Logic App Alerting")
	p["alertType"] = "scheduled_event_detected"
	p["severity"] = "medium"
	p["description"] = fmt.Sprintf("Detected %d scheduled event(s) requiring attention", batch.Len())
	p["actionRequired"] = "Review events and coordinate maintenance window"
	if host != "" {
		p["host"] = host
	}
	return p
}

// EventDetails renders one block of lines per event for record
// descriptions.
func EventDetails(batch *events.Batch) string {
	var b strings.Builder
	for _, e := range batch.Events {
		fmt.Fprintf(&b, "Event ID: %s\n", orUnknown(e.ID))
		fmt.Fprintf(&b, "Type: %s\n", orUnknown(e.TypeName()))
		fmt.Fprintf(&b, "Status: %s\n", orUnknown(string(e.Status)))
		fmt.Fprintf(&b, "Scheduled: %s\n", e.NotBeforeString())
		fmt.Fprintf(&b, "Resources: %s\n\n", strings.Join(e.Resources, ", "))
	}
	return b.String()
}

// IncidentPayload builds a medium urgency incident for operators.
func IncidentPayload(batch *events.Batch, fields RecordFields, now time.Time) Payload {
	n := batch.Len()
	description := fmt.Sprintf(`Scheduled maintenance events detected requiring attention.

Event Count: %d
Detection Time: %s

Event Details:
%s
Action Required:
- Review scheduled maintenance events
- Coordinate with infrastructure teams
- Plan for service impact during maintenance window
- Communicate to stakeholders as needed

This incident was automatically created by the scheduled events monitor.`,
		n, now.UTC().Format(time.RFC3339), EventDetails(batch))

	p := Payload{
		"short_description": fmt.Sprintf("Scheduled Event(s) Detected - %d event(s)", n),
		"description":       description,
		"category":          "Infrastructure",
		"subcategory":       "Maintenance",
		"urgency":           "3",
		"impact":            "3",
		"priority":          "3",
		"u_event_count":     fmt.Sprint(n),
	}
	fields.Apply(p)
	return p
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
