package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/NavarchProject/eventwatch/pkg/config"
	"github.com/NavarchProject/eventwatch/pkg/drain"
)

func hooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "List the drain hooks that run for each event type",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(os.Stderr, logLevel, logFormat)
			if err != nil {
				return err
			}
			cfg, err := config.Load(configPath, logger)
			if err != nil {
				return err
			}
			registry, err := newRegistry(cfg, logger)
			if err != nil {
				return err
			}

			hooks := registry.Summary()
			switch outputFormat {
			case "json":
				return outputHooksJSON(os.Stdout, hooks)
			case "table":
				return outputHooksTable(os.Stdout, hooks)
			default:
				return fmt.Errorf("unsupported output format: %s", outputFormat)
			}
		},
	}

	return cmd
}

type hookJSON struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func outputHooksJSON(w io.Writer, hooks []drain.HookInfo) error {
	out := make([]hookJSON, 0, len(hooks))
	for _, h := range hooks {
		out = append(out, hookJSON{Kind: h.Kind.String(), Name: h.Name, Description: h.Description})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func outputHooksTable(w io.Writer, hooks []drain.HookInfo) error {
	table := tablewriter.NewWriter(w)
	table.Append([]string{"Kind", "Name", "Description"})
	for _, h := range hooks {
		table.Append([]string{h.Kind.String(), h.Name, h.Description})
	}
	table.Render()
	return nil
}
