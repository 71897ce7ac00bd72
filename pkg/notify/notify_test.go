package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NavarchProject/eventwatch/pkg/events"
	"github.com/NavarchProject/eventwatch/pkg/retry"
)

var fastRetry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func testBatch() *events.Batch {
	return &events.Batch{
		DocumentIncarnation: 4,
		Events: []events.Event{
			{ID: "e1", Type: events.TypeReboot, RawType: "Reboot", Status: events.StatusScheduled, Resources: []string{"vm1"}, NotBeforeRaw: "Mon, 19 Sep 2016 18:29:47 GMT"},
			{ID: "e2", Type: events.TypeUnknown, RawType: "LiveMigrate", Status: events.StatusStarted},
		},
	}
}

func TestNoop(t *testing.T) {
	n := NewNoop(nil)
	if n.Name() != "noop" {
		t.Errorf("expected name 'noop', got %q", n.Name())
	}
	if err := n.Submit(context.Background(), Payload{"a": 1}); err != nil {
		t.Errorf("Submit failed: %v", err)
	}
}

func TestDry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	d := Dry(NewWebhook(WebhookConfig{URL: server.URL}, nil), nil)
	if d.Name() != "webhook" {
		t.Errorf("expected wrapped name, got %q", d.Name())
	}
	if err := d.Submit(context.Background(), Payload{"a": 1}); err != nil {
		t.Errorf("Submit failed: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("dry run sent %d requests", calls.Load())
	}
}

func TestWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("posts payload", func(t *testing.T) {
		var received map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
			}
			if r.Header.Get("User-Agent") != UserAgent {
				t.Errorf("unexpected User-Agent %q", r.Header.Get("User-Agent"))
			}
			if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
				t.Errorf("failed to decode request body: %v", err)
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		webhook := NewWebhook(WebhookConfig{URL: server.URL, Retry: fastRetry}, nil)
		if err := webhook.Submit(ctx, AlertPayload(testBatch(), "vm-1")); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}

		if received["alertType"] != "scheduled_event_detected" {
			t.Errorf("unexpected alertType %v", received["alertType"])
		}
		if received["eventCount"] != float64(2) {
			t.Errorf("unexpected eventCount %v", received["eventCount"])
		}
		if received["host"] != "vm-1" {
			t.Errorf("unexpected host %v", received["host"])
		}
	})

	t.Run("includes custom headers", func(t *testing.T) {
		var authHeader string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		webhook := NewWebhook(WebhookConfig{
			URL:     server.URL,
			Headers: map[string]string{"Authorization": "Bearer secret-token"},
			Retry:   fastRetry,
		}, nil)
		webhook.Submit(ctx, Payload{})

		if authHeader != "Bearer secret-token" {
			t.Errorf("expected Authorization header 'Bearer secret-token', got %q", authHeader)
		}
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		webhook := NewWebhook(WebhookConfig{URL: server.URL, Retry: fastRetry}, nil)
		if err := webhook.Submit(ctx, Payload{}); err != nil {
			t.Errorf("Submit failed: %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 calls, got %d", calls.Load())
		}
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("bad signature"))
		}))
		defer server.Close()

		webhook := NewWebhook(WebhookConfig{URL: server.URL, Retry: fastRetry}, nil)
		err := webhook.Submit(ctx, Payload{})
		if err == nil || !strings.Contains(err.Error(), "401") {
			t.Errorf("expected 401 error, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("expected 1 call, got %d", calls.Load())
		}
	})

	t.Run("fails without URL", func(t *testing.T) {
		if err := NewWebhook(WebhookConfig{}, nil).Submit(ctx, Payload{}); err == nil {
			t.Error("expected error when URL is not configured")
		}
	})
}

func TestIncidentPayload(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := IncidentPayload(testBatch(), RecordFields{AssignmentGroup: "infra"}, now)

	if p["short_description"] != "Scheduled Event(s) Detected - 2 event(s)" {
		t.Errorf("unexpected short_description %v", p["short_description"])
	}
	if p["urgency"] != "3" || p["u_event_count"] != "2" {
		t.Errorf("unexpected urgency/count %v/%v", p["urgency"], p["u_event_count"])
	}
	if p["assignment_group"] != "infra" {
		t.Errorf("unexpected assignment_group %v", p["assignment_group"])
	}

	desc := p["description"].(string)
	for _, want := range []string{"Event ID: e1", "Type: LiveMigrate", "Resources: vm1", "2024-03-01T12:00:00Z"} {
		if !strings.Contains(desc, want) {
			t.Errorf("description missing %q:\n%s", want, desc)
		}
	}
}

func TestBatchPayload(t *testing.T) {
	p := BatchPayload(testBatch(), "test")
	if p["timestamp"] != 4 || p["eventCount"] != 2 {
		t.Errorf("unexpected payload %v", p)
	}
	summaries := p["events"].([]events.EventSummary)
	if len(summaries) != 2 || summaries[1].EventType != "LiveMigrate" {
		t.Errorf("unexpected summaries %+v", summaries)
	}
}
