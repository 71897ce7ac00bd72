package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NavarchProject/eventwatch/pkg/drain"
	"github.com/NavarchProject/eventwatch/pkg/imds"
	"github.com/NavarchProject/eventwatch/pkg/notify"
)

// Handling modes.
const (
	ModeAlert    = "alert"
	ModeTicket   = "ticket"
	ModeAutomate = "automate"
)

// Environment variables that override secrets in the file.
const (
	EnvServiceNowPassword     = "EVENTWATCH_SERVICENOW_PASSWORD"
	EnvServiceNowClientSecret = "EVENTWATCH_SERVICENOW_CLIENT_SECRET"
	EnvMetricsToken           = "EVENTWATCH_METRICS_TOKEN"
)

// Config is the root configuration for eventwatch.
type Config struct {
	Mode string `yaml:"mode"` // alert, ticket, automate

	// Host identifies this VM in alert payloads.
	Host string `yaml:"host,omitempty"`

	Metadata   imds.Config              `yaml:"metadata,omitempty"`
	Monitor    MonitorCfg               `yaml:"monitor,omitempty"`
	Webhook    *notify.WebhookConfig    `yaml:"webhook,omitempty"`
	ServiceNow *notify.ServiceNowConfig `yaml:"servicenow,omitempty"`
	Automation AutomationCfg            `yaml:"automation,omitempty"`
	Metrics    MetricsCfg               `yaml:"metrics,omitempty"`
}

// MonitorCfg configures the polling loop.
type MonitorCfg struct {
	PollInterval time.Duration `yaml:"poll_interval,omitempty"` // Default: 30s
}

// AutomationCfg configures automated handling.
type AutomationCfg struct {
	DryRun    bool          `yaml:"dry_run,omitempty"`
	AckPacing time.Duration `yaml:"ack_pacing,omitempty"` // Default: 1s

	HookTimeout    time.Duration `yaml:"hook_timeout,omitempty"` // Default: 30s
	StepDelayScale *float64      `yaml:"step_delay_scale,omitempty"`

	// DisableBuiltins drops the built-in drain hooks so only Hooks run.
	DisableBuiltins bool `yaml:"disable_builtins,omitempty"`

	Hooks []drain.CommandSpec `yaml:"hooks,omitempty"`
}

// MetricsCfg configures the Prometheus endpoint. An empty address disables
// it.
type MetricsCfg struct {
	Address string `yaml:"address,omitempty"`

	// Token, when set, is required as a bearer token on /metrics.
	Token string `yaml:"token,omitempty"`
}

// Load reads configuration from a YAML file.
func Load(path string, logger *slog.Logger) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data, logger)
}

// Parse parses, defaults and validates configuration from YAML bytes.
// Unknown fields are rejected.
func Parse(data []byte, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.finish(logger); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetMode overrides the operating mode and revalidates the configuration
// the same way Parse does.
func (c *Config) SetMode(mode string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	c.Mode = mode
	return c.finish(logger)
}

func (c *Config) finish(logger *slog.Logger) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// ServiceNow is optional when automating. A broken block only disables
	// documentation records.
	if c.Mode == ModeAutomate && c.ServiceNow != nil {
		if err := c.ServiceNow.Validate(); err != nil {
			logger.Warn("servicenow configuration invalid, automation records will be skipped",
				slog.String("error", err.Error()),
			)
			c.ServiceNow = nil
		}
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAlert:
		if c.Webhook == nil || c.Webhook.URL == "" {
			return fmt.Errorf("mode %q: webhook.url is required", c.Mode)
		}
	case ModeTicket:
		if c.ServiceNow == nil {
			return fmt.Errorf("mode %q: servicenow is required", c.Mode)
		}
		if err := c.ServiceNow.Validate(); err != nil {
			return fmt.Errorf("servicenow: %w", err)
		}
	case ModeAutomate:
	case "":
		return fmt.Errorf("mode is required (alert, ticket or automate)")
	default:
		return fmt.Errorf("unknown mode %q (expected alert, ticket or automate)", c.Mode)
	}

	if c.Monitor.PollInterval < 0 {
		return fmt.Errorf("monitor.poll_interval must be >= 0")
	}
	if c.Automation.AckPacing < 0 {
		return fmt.Errorf("automation.ack_pacing must be >= 0")
	}
	if c.Automation.HookTimeout < 0 {
		return fmt.Errorf("automation.hook_timeout must be >= 0")
	}
	if s := c.Automation.StepDelayScale; s != nil && *s < 0 {
		return fmt.Errorf("automation.step_delay_scale must be >= 0")
	}

	names := make(map[string]bool)
	for i, h := range c.Automation.Hooks {
		if h.Name == "" {
			return fmt.Errorf("automation.hooks[%d]: name is required", i)
		}
		if names[h.Name] {
			return fmt.Errorf("automation.hooks[%d]: duplicate name %q", i, h.Name)
		}
		names[h.Name] = true
		if _, err := drain.ParseKind(h.Kind); err != nil {
			return fmt.Errorf("automation.hooks[%d]: %w", i, err)
		}
		if len(h.Command) == 0 {
			return fmt.Errorf("automation.hooks[%d]: command is required", i)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvMetricsToken); v != "" {
		c.Metrics.Token = v
	}
	if c.ServiceNow == nil {
		return
	}
	if v := os.Getenv(EnvServiceNowPassword); v != "" {
		c.ServiceNow.Password = v
	}
	if v := os.Getenv(EnvServiceNowClientSecret); v != "" {
		c.ServiceNow.ClientSecret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Metadata.Endpoint == "" {
		c.Metadata.Endpoint = imds.DefaultEndpoint
	}
	if c.Metadata.APIVersion == "" {
		c.Metadata.APIVersion = imds.DefaultAPIVersion
	}
	if c.Metadata.Timeout == 0 {
		c.Metadata.Timeout = imds.DefaultTimeout
	}
	if c.Monitor.PollInterval == 0 {
		c.Monitor.PollInterval = 30 * time.Second
	}
	if c.Automation.AckPacing == 0 {
		c.Automation.AckPacing = time.Second
	}
	if c.Automation.HookTimeout == 0 {
		c.Automation.HookTimeout = drain.DefaultHookTimeout
	}
	if c.Automation.StepDelayScale == nil {
		scale := 1.0
		c.Automation.StepDelayScale = &scale
	}
	if c.Webhook != nil && c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = 10 * time.Second
	}
	if c.ServiceNow != nil {
		if c.ServiceNow.Table == "" {
			c.ServiceNow.Table = "incident"
		}
		if c.ServiceNow.AuthType == "" {
			c.ServiceNow.AuthType = notify.AuthBasic
		}
		if c.ServiceNow.Timeout == 0 {
			c.ServiceNow.Timeout = 30 * time.Second
		}
		if c.ServiceNow.VMIdentifier == "" {
			c.ServiceNow.VMIdentifier = c.Host
		}
	}
}

// RecordFields returns the ITSM fields copied onto every record.
func (c *Config) RecordFields() notify.RecordFields {
	if c.ServiceNow == nil {
		return notify.RecordFields{VMIdentifier: c.Host}
	}
	return notify.RecordFields{
		AssignmentGroup: c.ServiceNow.AssignmentGroup,
		CallerID:        c.ServiceNow.CallerID,
		VMIdentifier:    c.ServiceNow.VMIdentifier,
	}
}

// DrainConfig returns the registry configuration.
func (c *Config) DrainConfig() drain.Config {
	cfg := drain.Config{
		HookTimeout:     c.Automation.HookTimeout,
		DisableBuiltins: c.Automation.DisableBuiltins,
	}
	if c.Automation.StepDelayScale != nil {
		cfg.StepDelayScale = *c.Automation.StepDelayScale
	}
	return cfg
}
