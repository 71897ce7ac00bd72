package automation

import (
	"fmt"
	"strings"
	"time"

	"github.com/NavarchProject/eventwatch/pkg/events"
	"github.com/NavarchProject/eventwatch/pkg/notify"
)

// Record builds the ITSM documentation record for a finished cycle. Fully
// automated cycles are filed resolved at low priority; anything else stays
// open for review.
func Record(out *Outcome, fields notify.RecordFields, now time.Time) notify.Payload {
	n := out.TotalEventCount
	success := out.OverallDrainSuccess && out.EarlyAckFullSuccess()

	var actions strings.Builder
	for _, r := range out.DrainResults {
		fmt.Fprintf(&actions, "- %s\n", r)
	}

	closing := "This record was automatically created to document successful automation handling of Azure Scheduled Events. No manual intervention was required."
	if !success {
		closing = "Automation did not complete. Review the actions above before the maintenance window starts."
	}

	description := fmt.Sprintf(`Azure Scheduled Events automatically handled by automation system.

Event Count: %d
Automation Time: %s
Early ACK Status: %s

Event Details:
%s
Automation Actions Taken:
%s
Impact Window: %s

%s`,
		n,
		now.UTC().Format(time.RFC3339),
		ackStatusLine(out),
		notify.EventDetails(&events.Batch{Events: out.Events}),
		actions.String(),
		impactWindow(out),
		closing,
	)

	p := notify.Payload{
		"short_description":    fmt.Sprintf("Azure Scheduled Event(s) Automated - %d event(s)", n),
		"description":          description,
		"category":             "Infrastructure",
		"subcategory":          "Automation",
		"u_event_count":        fmt.Sprint(n),
		"u_automation_success": fmt.Sprint(success),
		"u_cycle_id":           out.CycleID,
	}
	if success {
		p["urgency"] = "4"
		p["impact"] = "4"
		p["priority"] = "4"
		p["state"] = "6"
		p["close_code"] = "Solved (Permanently)"
		p["close_notes"] = "Azure Scheduled Events handled automatically. No issues detected."
	} else {
		p["urgency"] = "3"
		p["impact"] = "3"
		p["priority"] = "3"
	}
	fields.Apply(p)
	return p
}

func ackStatusLine(out *Outcome) string {
	switch out.EarlyAck {
	case AckSimulated:
		return "Simulated (dry run)"
	case AckCompleted:
		if out.EarlyAckFullSuccess() {
			return fmt.Sprintf("✓ Success (%d/%d)", out.EarlyAckSuccessCount, out.TotalEventCount)
		}
		return fmt.Sprintf("✗ Failed (%d/%d acknowledged)", out.EarlyAckSuccessCount, out.TotalEventCount)
	default:
		return fmt.Sprintf("✗ Skipped (%d drain action(s) failed)", out.failedDrainResults())
	}
}

func impactWindow(out *Outcome) string {
	if out.EarlyAck == AckCompleted && out.EarlyAckFullSuccess() {
		return "Shortened via early acknowledgment"
	}
	return "Standard maintenance window"
}
