package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NavarchProject/eventwatch/pkg/notify"
)

var (
	configPath   string
	logLevel     string
	logFormat    string
	outputFormat string
)

func main() {
	notify.UserAgent = "eventwatch/" + version

	rootCmd := &cobra.Command{
		Use:   "eventwatch",
		Short: "Azure scheduled events monitor",
		Long: `eventwatch polls the Azure Instance Metadata Service for scheduled
maintenance events and reacts to them: it can alert a workflow webhook,
open a ServiceNow incident, or drain the VM, acknowledge the events early
and document what it did.`,
		SilenceUsage: true,
	}

	defaultConfig := "config.yaml"
	if env := os.Getenv("EVENTWATCH_CONFIG"); env != "" {
		defaultConfig = env
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "Path to config file (env: EVENTWATCH_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(ackCmd())
	rootCmd.AddCommand(hooksCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
