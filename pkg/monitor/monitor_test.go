package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/NavarchProject/eventwatch/pkg/clock"
	"github.com/NavarchProject/eventwatch/pkg/events"
	"github.com/NavarchProject/eventwatch/pkg/metrics"
)

type scriptedPoller struct {
	mu      sync.Mutex
	batches []*events.Batch
	errs    []error
	calls   int
}

func (p *scriptedPoller) Poll(context.Context) (*events.Batch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.batches) {
		return p.batches[i], nil
	}
	return &events.Batch{}, nil
}

func (p *scriptedPoller) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type countingHandler struct {
	mu      sync.Mutex
	batches []*events.Batch
	dryRuns []bool
	err     error
}

func (h *countingHandler) Name() string { return "counting" }

func (h *countingHandler) Handle(_ context.Context, b *events.Batch, dryRun bool) (Report, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, b)
	h.dryRuns = append(h.dryRuns, dryRun)
	return Report{Handler: h.Name(), DryRun: dryRun}, h.err
}

func (h *countingHandler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.batches)
}

func eventBatch(ids ...string) *events.Batch {
	b := &events.Batch{DocumentIncarnation: 1}
	for _, id := range ids {
		b.Events = append(b.Events, events.Event{ID: id, Type: events.TypeReboot})
	}
	return b
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}, Deps{Handler: &countingHandler{}}); err == nil {
		t.Error("expected error without poller")
	}
	if _, err := New(Config{}, Deps{Poller: &scriptedPoller{}}); err == nil {
		t.Error("expected error without handler")
	}
	m, err := New(Config{}, Deps{Poller: &scriptedPoller{}, Handler: &countingHandler{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.config.PollInterval != DefaultPollInterval {
		t.Errorf("expected default interval, got %v", m.config.PollInterval)
	}
}

func TestRun_EmptyBatchesNeverReachHandler(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clk := clock.NewFake(time.Unix(0, 0))
	poller := &scriptedPoller{}
	handler := &countingHandler{}
	m, err := New(Config{PollInterval: 30 * time.Second, Clock: clk}, Deps{Poller: poller, Handler: handler})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	clk.BlockUntilWaiters(1)
	clk.Advance(30 * time.Second)
	clk.BlockUntilWaiters(1)

	if got := poller.Calls(); got != 2 {
		t.Errorf("expected 2 polls, got %d", got)
	}
	if got := handler.Calls(); got != 0 {
		t.Errorf("expected no handler calls, got %d", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_SleepsFullInterval(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clk := clock.NewFake(time.Unix(0, 0))
	poller := &scriptedPoller{}
	m, _ := New(Config{PollInterval: time.Minute, Clock: clk}, Deps{Poller: poller, Handler: &countingHandler{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	clk.BlockUntilWaiters(1)
	clk.Advance(59 * time.Second)
	if got := poller.Calls(); got != 1 {
		t.Errorf("polled again before interval elapsed: %d", got)
	}

	cancel()
	<-done
}

func TestRun_Once(t *testing.T) {
	tests := []struct {
		name        string
		poller      *scriptedPoller
		wantErr     bool
		wantHandled int
	}{
		{
			name:        "events",
			poller:      &scriptedPoller{batches: []*events.Batch{eventBatch("e1")}},
			wantHandled: 1,
		},
		{
			name:   "empty",
			poller: &scriptedPoller{},
		},
		{
			name:    "poll error",
			poller:  &scriptedPoller{errs: []error{errors.New("connection refused")}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &countingHandler{}
			m, _ := New(Config{RunOnce: true, DryRun: true}, Deps{Poller: tt.poller, Handler: handler})

			err := m.Run(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Run error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.poller.Calls() != 1 {
				t.Errorf("expected exactly one poll, got %d", tt.poller.Calls())
			}
			if handler.Calls() != tt.wantHandled {
				t.Errorf("expected %d handler calls, got %d", tt.wantHandled, handler.Calls())
			}
			for _, dry := range handler.dryRuns {
				if !dry {
					t.Error("expected dry run flag passed to handler")
				}
			}
		})
	}
}

func TestRun_ErrorsDoNotStopLoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clk := clock.NewFake(time.Unix(0, 0))
	poller := &scriptedPoller{
		errs:    []error{errors.New("timeout")},
		batches: []*events.Batch{nil, eventBatch("e1"), eventBatch("e2")},
	}
	handler := &countingHandler{err: errors.New("webhook down")}
	m, _ := New(Config{PollInterval: time.Second, Clock: clk}, Deps{Poller: poller, Handler: handler})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	for i := 0; i < 3; i++ {
		clk.BlockUntilWaiters(1)
		clk.Advance(time.Second)
	}
	clk.BlockUntilWaiters(1)

	if got := handler.Calls(); got != 2 {
		t.Errorf("expected 2 handler calls, got %d", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestCycle_Observer(t *testing.T) {
	var seen []CycleResult
	poller := &scriptedPoller{
		batches: []*events.Batch{eventBatch("e1", "e2"), {}},
	}
	m, _ := New(Config{}, Deps{
		Poller:   poller,
		Handler:  &countingHandler{},
		Observer: func(r CycleResult) { seen = append(seen, r) },
		Metrics:  metrics.New(),
	})

	first := m.Cycle(context.Background())
	second := m.Cycle(context.Background())

	if !first.Handled() || first.Batch.Len() != 2 {
		t.Errorf("expected first cycle handled with 2 events, got %+v", first)
	}
	if second.Handled() {
		t.Error("empty cycle should not be handled")
	}
	if len(seen) != 2 {
		t.Fatalf("expected observer called twice, got %d", len(seen))
	}
	if seen[0].Report == nil || seen[0].Report.Handler != "counting" {
		t.Errorf("observer missing report: %+v", seen[0])
	}
}
