package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/NavarchProject/eventwatch/pkg/config"
	"github.com/NavarchProject/eventwatch/pkg/imds"
	"github.com/NavarchProject/eventwatch/pkg/metrics"
	"github.com/NavarchProject/eventwatch/pkg/monitor"
)

func runCmd() *cobra.Command {
	var (
		pollInterval time.Duration
		once         bool
		dryRun       bool
		mode         string
		quiet        bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor scheduled events and handle them",
		Example: `  eventwatch run --config config.yaml
  eventwatch run --once --dry-run
  eventwatch run --mode alert --poll-interval 10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(os.Stderr, logLevel, logFormat)
			if err != nil {
				return err
			}

			cfg, err := config.Load(configPath, logger)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("mode") {
				if err := cfg.SetMode(mode, logger); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("poll-interval") {
				cfg.Monitor.PollInterval = pollInterval
			}
			dryRun = dryRun || cfg.Automation.DryRun

			m := metrics.New()
			client, err := imds.NewClient(cfg.Metadata, logger)
			if err != nil {
				return err
			}
			handler, err := newHandler(cfg, client, m, logger)
			if err != nil {
				return err
			}

			deps := monitor.Deps{
				Poller:  client,
				Handler: handler,
				Metrics: m,
				Logger:  logger,
			}
			if !quiet {
				deps.Observer = printCycle
			}
			mon, err := monitor.New(monitor.Config{
				PollInterval: cfg.Monitor.PollInterval,
				RunOnce:      once,
				DryRun:       dryRun,
			}, deps)
			if err != nil {
				return err
			}

			if dryRun {
				printDryRunBanner()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			g, ctx := errgroup.WithContext(ctx)
			if cfg.Metrics.Address != "" {
				g.Go(func() error {
					return metrics.Serve(ctx, cfg.Metrics.Address, cfg.Metrics.Token, m, logger)
				})
			}
			g.Go(func() error {
				defer cancel()
				return mon.Run(ctx)
			})
			return g.Wait()
		},
	}

	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 30*time.Second, "Polling interval (overrides monitor.poll_interval)")
	cmd.Flags().BoolVar(&once, "once", false, "Poll once and exit")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Simulate acknowledgments and notifications")
	cmd.Flags().StringVar(&mode, "mode", "", "Handling mode (alert, ticket, automate); overrides the config file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print cycle summaries")

	return cmd
}
