package main

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/NavarchProject/eventwatch/pkg/automation"
	"github.com/NavarchProject/eventwatch/pkg/monitor"
)

func printDryRunBanner() {
	pterm.DefaultHeader.WithBackgroundStyle(pterm.NewStyle(pterm.BgDarkGray)).
		WithTextStyle(pterm.NewStyle(pterm.FgLightYellow, pterm.Bold)).
		Println("DRY RUN: no acknowledgments or records will be sent")
	fmt.Println()
}

// printCycle renders a handled cycle for the operator.
func printCycle(r monitor.CycleResult) {
	if !r.Handled() {
		return
	}

	pterm.DefaultSection.Printfln("Scheduled events (%d)", r.Batch.Len())
	for _, e := range r.Batch.Events {
		pterm.Info.Println(e.Summary())
	}

	if out := r.Report.Automation; out != nil {
		printOutcome(out)
		return
	}

	switch {
	case r.Report.DryRun:
		pterm.Info.Printfln("[DRY RUN] %s notification not sent", r.Report.Sink)
	case r.Report.Notified:
		pterm.Success.Printfln("%s notification sent", r.Report.Sink)
	default:
		pterm.Error.Printfln("%s notification failed: %v", r.Report.Sink, r.HandlerErr)
	}
	fmt.Println()
}

func printOutcome(out *automation.Outcome) {
	pterm.DefaultSection.Println("Drain actions")
	for _, res := range out.DrainResults {
		if res.Succeeded {
			fmt.Println("  " + pterm.Green(res.String()))
		} else {
			fmt.Println("  " + pterm.Red(res.String()))
		}
	}
	fmt.Println()

	pterm.DefaultSection.Println("Automation summary")
	pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(outcomeRows(out)).Render()
	fmt.Println()

	switch {
	case out.EarlyAck == automation.AckSimulated:
		pterm.Info.Println("Dry run completed. No changes were made.")
	case out.EarlyAckFullSuccess():
		pterm.Success.Println("Automation completed successfully. Impact window shortened.")
	default:
		pterm.Warning.Println("Automation partially completed. Manual review may be required.")
	}
	fmt.Println()
}

func outcomeRows(out *automation.Outcome) pterm.TableData {
	drainStatus := "✓ Success"
	if !out.OverallDrainSuccess {
		drainStatus = "✗ Failed"
	}
	return pterm.TableData{
		{"Step", "Result"},
		{"Events processed", strconv.Itoa(out.TotalEventCount)},
		{"Drain hooks", drainStatus},
		{"Early acknowledgment", out.AckSummary()},
		{"Documentation", out.Documentation.String()},
		{"Cycle", out.CycleID},
		{"Duration", out.Duration().String()},
	}
}
