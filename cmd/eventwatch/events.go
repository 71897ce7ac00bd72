package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/NavarchProject/eventwatch/pkg/config"
	"github.com/NavarchProject/eventwatch/pkg/events"
	"github.com/NavarchProject/eventwatch/pkg/imds"
)

// metadataClient loads the config if present and builds a metadata
// client. Without a config file the defaults are used.
func metadataClient() (*imds.Client, error) {
	logger, err := newLogger(os.Stderr, logLevel, logFormat)
	if err != nil {
		return nil, err
	}
	var mcfg imds.Config
	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err := config.Load(configPath, logger)
		if err != nil {
			return nil, err
		}
		mcfg = cfg.Metadata
	}
	return imds.NewClient(mcfg, logger)
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List pending scheduled events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := metadataClient()
			if err != nil {
				return err
			}

			batch, err := client.Poll(context.Background())
			if err != nil {
				return fmt.Errorf("failed to poll scheduled events: %w", err)
			}

			switch outputFormat {
			case "json":
				return outputEventsJSON(os.Stdout, batch)
			case "table":
				if batch.Empty() {
					fmt.Println("No scheduled events")
					return nil
				}
				return outputEventsTable(os.Stdout, batch)
			default:
				return fmt.Errorf("unsupported output format: %s", outputFormat)
			}
		},
	}

	return cmd
}

func outputEventsJSON(w io.Writer, batch *events.Batch) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		DocumentIncarnation int                   `json:"documentIncarnation"`
		Events              []events.EventSummary `json:"events"`
	}{batch.DocumentIncarnation, batch.Summaries()})
}

func outputEventsTable(w io.Writer, batch *events.Batch) error {
	table := tablewriter.NewWriter(w)
	table.Append([]string{"Event ID", "Type", "Status", "Not Before", "Resources", "Source", "Duration"})

	for _, e := range batch.Events {
		duration := "-"
		if e.DurationInSeconds > 0 {
			duration = strconv.Itoa(e.DurationInSeconds) + "s"
		}
		table.Append([]string{
			e.ID,
			e.TypeName(),
			string(e.Status),
			e.NotBeforeString(),
			strings.Join(e.Resources, ", "),
			e.Source,
			duration,
		})
	}

	table.Render()
	return nil
}
