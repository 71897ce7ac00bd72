package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/NavarchProject/eventwatch/pkg/automation"
	"github.com/NavarchProject/eventwatch/pkg/config"
	"github.com/NavarchProject/eventwatch/pkg/drain"
	"github.com/NavarchProject/eventwatch/pkg/imds"
	"github.com/NavarchProject/eventwatch/pkg/metrics"
	"github.com/NavarchProject/eventwatch/pkg/monitor"
	"github.com/NavarchProject/eventwatch/pkg/notify"
)

// newLogger builds the process logger.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (expected text or json)", format)
	}
}

func newRegistry(cfg *config.Config, logger *slog.Logger) (*drain.Registry, error) {
	registry := drain.NewRegistry(cfg.DrainConfig(), logger)
	if err := registry.RegisterCommands(cfg.Automation.Hooks); err != nil {
		return nil, err
	}
	return registry, nil
}

// newHandler builds the handler for the configured mode.
func newHandler(cfg *config.Config, client *imds.Client, m *metrics.Metrics, logger *slog.Logger) (monitor.Handler, error) {
	switch cfg.Mode {
	case config.ModeAlert:
		webhook := notify.NewWebhook(*cfg.Webhook, logger)
		return monitor.NewAlertHandler(webhook, cfg.Host, m, logger), nil

	case config.ModeTicket:
		sn, err := notify.NewServiceNow(*cfg.ServiceNow, logger)
		if err != nil {
			return nil, err
		}
		return monitor.NewTicketHandler(sn, cfg.RecordFields(), nil, m, logger), nil

	case config.ModeAutomate:
		registry, err := newRegistry(cfg, logger)
		if err != nil {
			return nil, err
		}
		deps := automation.Deps{
			Drainer:      registry,
			Acknowledger: client,
			Metrics:      m,
			Logger:       logger,
		}
		if cfg.ServiceNow != nil {
			sn, err := notify.NewServiceNow(*cfg.ServiceNow, logger)
			if err != nil {
				return nil, err
			}
			deps.Documenter = sn
		} else {
			logger.Info("servicenow not configured, automation records will be skipped")
		}
		coordinator, err := automation.New(automation.Config{
			AckPacing: cfg.Automation.AckPacing,
			Fields:    cfg.RecordFields(),
		}, deps)
		if err != nil {
			return nil, err
		}
		return monitor.NewAutomationHandler(coordinator), nil

	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}
