package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/NavarchProject/eventwatch/pkg/retry"
)

// Supported ServiceNow authentication types.
const (
	AuthBasic  = "basic"
	AuthOAuth2 = "oauth2"
)

// ServiceNowConfig configures the ServiceNow Table API sink.
type ServiceNowConfig struct {
	// InstanceURL is the instance base URL, e.g. https://acme.service-now.com.
	InstanceURL string `yaml:"instance_url"`

	// AuthType is basic (default) or oauth2 (client credentials).
	AuthType string `yaml:"auth_type"`

	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// Table receives new records. Defaults to incident.
	Table string `yaml:"table"`

	// Fields copied onto every record.
	AssignmentGroup string `yaml:"assignment_group"`
	CallerID        string `yaml:"caller_id"`
	VMIdentifier    string `yaml:"vm_identifier"`

	// Timeout for ServiceNow requests. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout"`

	Retry retry.Config `yaml:"-"`
}

// Validate checks the fields required to reach the instance.
func (c ServiceNowConfig) Validate() error {
	var missing []string
	if c.InstanceURL == "" {
		missing = append(missing, "instance_url")
	}
	switch c.AuthType {
	case "", AuthBasic:
		if c.Username == "" {
			missing = append(missing, "username")
		}
		if c.Password == "" {
			missing = append(missing, "password")
		}
	case AuthOAuth2:
		if c.ClientID == "" {
			missing = append(missing, "client_id")
		}
		if c.ClientSecret == "" {
			missing = append(missing, "client_secret")
		}
	default:
		return fmt.Errorf("unsupported auth_type %q", c.AuthType)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Record identifies a created ServiceNow record.
type Record struct {
	Number string `json:"number"`
	SysID  string `json:"sys_id"`
}

// ServiceNow creates records through the Table API.
type ServiceNow struct {
	config ServiceNowConfig
	client *http.Client
	logger *slog.Logger
}

// NewServiceNow creates a ServiceNow notifier.
func NewServiceNow(config ServiceNowConfig, logger *slog.Logger) (*ServiceNow, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("servicenow: %w", err)
	}
	config.InstanceURL = strings.TrimRight(config.InstanceURL, "/")
	if config.Table == "" {
		config.Table = "incident"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.NotifyConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := &http.Client{Timeout: config.Timeout}
	if config.AuthType == AuthOAuth2 {
		cc := clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     config.InstanceURL + "/oauth_token.do",
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = cc.Client(ctx)
		client.Timeout = config.Timeout
	}

	return &ServiceNow{config: config, client: client, logger: logger}, nil
}

func (s *ServiceNow) Name() string { return "servicenow" }

// Fields returns the static record fields from the configuration.
func (s *ServiceNow) Fields() RecordFields {
	return RecordFields{
		AssignmentGroup: s.config.AssignmentGroup,
		CallerID:        s.config.CallerID,
		VMIdentifier:    s.config.VMIdentifier,
	}
}

// RecordURL returns the UI link for a record.
func (s *ServiceNow) RecordURL(sysID string) string {
	return fmt.Sprintf("%s/nav_to.do?uri=%s.do?sys_id=%s", s.config.InstanceURL, s.config.Table, sysID)
}

// Submit creates a record from payload.
func (s *ServiceNow) Submit(ctx context.Context, payload Payload) error {
	_, err := s.Create(ctx, payload)
	return err
}

// Create creates a record from payload and returns its identifiers. Empty
// fields are dropped before sending. Creation is not idempotent, so only
// failures where the record cannot have been created are retried: dial
// errors, 429 and 503.
func (s *ServiceNow) Create(ctx context.Context, payload Payload) (*Record, error) {
	body, err := json.Marshal(compact(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	record, err := retry.DoWithValue(ctx, s.config.Retry, func(ctx context.Context) (*Record, error) {
		return s.create(ctx, body)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "servicenow record created",
		slog.String("number", record.Number),
		slog.String("sys_id", record.SysID),
		slog.String("url", s.RecordURL(record.SysID)),
	)
	return record, nil
}

func (s *ServiceNow) create(ctx context.Context, body []byte) (*Record, error) {
	url := fmt.Sprintf("%s/api/now/table/%s", s.config.InstanceURL, s.config.Table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if s.config.AuthType != AuthOAuth2 {
		req.SetBasicAuth(s.config.Username, s.config.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		err = fmt.Errorf("servicenow request failed: %w", err)
		if !isDialError(err) {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("servicenow returned %d: %s", resp.StatusCode, string(respBody))
		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return nil, err
		default:
			return nil, retry.Permanent(err)
		}
	}

	var decoded struct {
		Result Record `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to decode servicenow response: %w", err))
	}
	if decoded.Result.Number == "" {
		decoded.Result.Number = "Unknown"
	}
	return &decoded.Result, nil
}

// isDialError reports whether err happened before a connection was made.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// compact drops nil values and empty strings.
func compact(payload Payload) Payload {
	out := make(Payload, len(payload))
	for k, v := range payload {
		switch tv := v.(type) {
		case nil:
			continue
		case string:
			if tv == "" {
				continue
			}
		}
		out[k] = v
	}
	return out
}

var _ Notifier = (*ServiceNow)(nil)
