package drain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"

	"github.com/NavarchProject/eventwatch/pkg/events"
)

// funcHook adapts a function to the Hook interface.
type funcHook struct {
	name string
	run  func(ctx context.Context, steps *Steps) error
}

func (h *funcHook) Name() string        { return h.name }
func (h *funcHook) Description() string { return h.name }
func (h *funcHook) Run(ctx context.Context, _ events.Event, steps *Steps) error {
	return h.run(ctx, steps)
}

func newTestRegistry() *Registry {
	return NewRegistry(Config{HookTimeout: time.Second}, nil)
}

func TestKindFor(t *testing.T) {
	tests := []struct {
		typ  events.Type
		want Kind
	}{
		{events.TypeReboot, KindReboot},
		{events.TypeRedeploy, KindRedeploy},
		{events.TypePreempt, KindPreempt},
		{events.TypeFreeze, KindGeneric},
		{events.TypeTerminate, KindGeneric},
		{events.TypeUnknown, KindGeneric},
		{events.Type("Whatever"), KindGeneric},
	}

	for _, tt := range tests {
		if got := KindFor(tt.typ); got != tt.want {
			t.Errorf("KindFor(%s) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"reboot":    KindReboot,
		"Redeploy":  KindRedeploy,
		"PREEMPT":   KindPreempt,
		"generic":   KindGeneric,
		"":          KindGeneric,
		"universal": KindUniversal,
	} {
		got, err := ParseKind(in)
		if err != nil {
			t.Errorf("ParseKind(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseKind(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseKind("freeze"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestRun_DryRun(t *testing.T) {
	r := newTestRegistry()
	event := events.Event{ID: "e1", Type: events.TypeReboot}

	ok, results := r.Run(context.Background(), event, true)
	if !ok {
		t.Error("expected dry run to succeed")
	}
	if len(results) != 2 {
		t.Fatalf("expected one result per hook (2), got %d: %v", len(results), results)
	}
	for _, res := range results {
		if !res.DryRun || !res.Succeeded {
			t.Errorf("unexpected dry-run result %+v", res)
		}
		if !strings.HasPrefix(res.Description, "[DRY RUN]") {
			t.Errorf("expected [DRY RUN] prefix, got %q", res.Description)
		}
	}
	if results[0].Hook != "reboot-prepare" || results[1].Hook != "common-steps" {
		t.Errorf("unexpected hook order: %s, %s", results[0].Hook, results[1].Hook)
	}
}

func TestRun_DryRunIdempotent(t *testing.T) {
	r := newTestRegistry()
	event := events.Event{ID: "e1", Type: events.TypeUnknown, RawType: "LiveMigrate"}

	ok1, first := r.Run(context.Background(), event, true)
	ok2, second := r.Run(context.Background(), event, true)

	if ok1 != ok2 {
		t.Errorf("success differs between runs: %v vs %v", ok1, ok2)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("dry runs differ (-first +second):\n%s", diff)
	}
}

func TestRun_LiveBuiltins(t *testing.T) {
	r := newTestRegistry()
	event := events.Event{ID: "e1", Type: events.TypePreempt}

	ok, results := r.Run(context.Background(), event, false)
	if !ok {
		t.Fatalf("expected success, got %v", results)
	}

	got := make([]string, 0, len(results))
	for _, res := range results {
		got = append(got, res.Description)
	}
	want := []string{
		"Work in progress saved",
		"Workload migrated to other instances",
		"Job queues updated",
		"Preemption preparation completed successfully",
		"Event logged",
		"Monitoring systems updated",
		"Health checks updated",
		"Generic preparation steps completed successfully",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_UnknownTypeUsesGeneric(t *testing.T) {
	r := newTestRegistry()
	event := events.Event{ID: "e1", Type: events.TypeFreeze}

	seq := r.Sequence(event)
	if len(seq) != 2 || seq[0].Name() != "generic-prepare" || seq[1].Name() != "common-steps" {
		names := make([]string, 0, len(seq))
		for _, h := range seq {
			names = append(names, h.Name())
		}
		t.Errorf("unexpected sequence %v", names)
	}
}

func TestRun_FailingHookKeepsPartialSteps(t *testing.T) {
	r := NewRegistry(Config{HookTimeout: time.Second}, nil)
	r.Register(KindReboot, &funcHook{name: "lb-drain", run: func(ctx context.Context, steps *Steps) error {
		steps.Add("connections drained")
		return errors.New("backend still healthy")
	}})

	ok, results := r.Run(context.Background(), events.Event{ID: "e1", Type: events.TypeReboot}, false)
	if ok {
		t.Fatal("expected failure")
	}

	var sawPartial, sawFailure, sawUniversal bool
	for _, res := range results {
		switch {
		case res.Hook == "lb-drain" && res.Succeeded && res.Description == "connections drained":
			sawPartial = true
		case res.Hook == "lb-drain" && !res.Succeeded && strings.Contains(res.Description, "backend still healthy"):
			sawFailure = true
		case res.Hook == "common-steps":
			sawUniversal = true
		}
	}
	if !sawPartial || !sawFailure {
		t.Errorf("expected partial step and failure marker, got %v", results)
	}
	if !sawUniversal {
		t.Error("expected universal steps to run after a failing hook")
	}
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	r := NewRegistry(Config{DisableBuiltins: true}, nil)
	r.Register(KindGeneric, &funcHook{name: "boom", run: func(ctx context.Context, steps *Steps) error {
		panic("nil map")
	}})

	ok, results := r.Run(context.Background(), events.Event{ID: "e1"}, false)
	if ok {
		t.Fatal("expected failure")
	}
	if len(results) != 1 || results[0].Succeeded || !strings.Contains(results[0].Description, "panic") {
		t.Errorf("unexpected results %v", results)
	}
}

// panickyHook panics while describing itself.
type panickyHook struct {
	funcHook
	panicName bool
}

func (h *panickyHook) Name() string {
	if h.panicName {
		panic("name blew up")
	}
	return h.name
}

func (h *panickyHook) Description() string { panic("description blew up") }

func TestRun_DescribePanicIsolated(t *testing.T) {
	for _, dryRun := range []bool{false, true} {
		r := NewRegistry(Config{DisableBuiltins: true, HookTimeout: time.Second}, nil)
		ran := false
		r.Register(KindGeneric, &panickyHook{funcHook: funcHook{name: "bad", run: func(context.Context, *Steps) error {
			ran = true
			return nil
		}}})
		r.Register(KindGeneric, &panickyHook{panicName: true})
		r.Register(KindUniversal, &funcHook{name: "after", run: func(ctx context.Context, steps *Steps) error {
			steps.Add("ran")
			return nil
		}})

		ok, results := r.Run(context.Background(), events.Event{ID: "e1", Type: events.TypeFreeze}, dryRun)
		if ok {
			t.Errorf("dryRun=%v: expected failure", dryRun)
		}
		if ran {
			t.Errorf("dryRun=%v: hook with broken description should not run", dryRun)
		}
		if len(results) < 3 {
			t.Fatalf("dryRun=%v: expected a result per hook, got %v", dryRun, results)
		}
		if results[0].Hook != "bad" || results[0].Succeeded || !strings.Contains(results[0].Description, "description blew up") {
			t.Errorf("dryRun=%v: unexpected result %+v", dryRun, results[0])
		}
		if results[1].Hook != "*drain.panickyHook" || results[1].Succeeded || !strings.Contains(results[1].Description, "name blew up") {
			t.Errorf("dryRun=%v: unexpected result %+v", dryRun, results[1])
		}
		last := results[len(results)-1]
		if last.Hook != "after" || !last.Succeeded {
			t.Errorf("dryRun=%v: expected universal hook to run, got %+v", dryRun, last)
		}
	}

	r := NewRegistry(Config{DisableBuiltins: true}, nil)
	r.Register(KindGeneric, &panickyHook{funcHook: funcHook{name: "bad"}})
	got := r.Summary()
	if len(got) != 1 || got[0].Name != "bad" || !strings.Contains(got[0].Description, "description blew up") {
		t.Errorf("Summary() = %+v", got)
	}
}

func TestRun_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRegistry(Config{DisableBuiltins: true, HookTimeout: 20 * time.Millisecond}, nil)
	r.Register(KindGeneric, &funcHook{name: "stuck", run: func(ctx context.Context, steps *Steps) error {
		steps.Add("started")
		<-ctx.Done()
		return ctx.Err()
	}})

	start := time.Now()
	ok, results := r.Run(context.Background(), events.Event{ID: "e1"}, false)
	if ok {
		t.Fatal("expected timeout failure")
	}
	if time.Since(start) > time.Second {
		t.Error("hook timeout was not enforced")
	}

	last := results[len(results)-1]
	if last.Succeeded || !strings.Contains(last.Description, "timed out") {
		t.Errorf("expected timeout marker, got %+v", last)
	}
}

func TestRun_NoHooks(t *testing.T) {
	r := NewRegistry(Config{DisableBuiltins: true}, nil)

	ok, results := r.Run(context.Background(), events.Event{ID: "e1"}, false)
	if !ok || len(results) != 0 {
		t.Errorf("expected vacuous success, got %v %v", ok, results)
	}
}

func TestSummary(t *testing.T) {
	r := newTestRegistry()

	got := r.Summary()
	want := []HookInfo{
		{Kind: KindReboot, Name: "reboot-prepare"},
		{Kind: KindRedeploy, Name: "redeploy-prepare"},
		{Kind: KindPreempt, Name: "preempt-prepare"},
		{Kind: KindGeneric, Name: "generic-prepare"},
		{Kind: KindUniversal, Name: "common-steps"},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(HookInfo{}, "Description")); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestResult_String(t *testing.T) {
	if got := (Result{Description: "done", Succeeded: true}).String(); got != "✓ done" {
		t.Errorf("got %q", got)
	}
	if got := (Result{Description: "broke"}).String(); got != "✗ broke" {
		t.Errorf("got %q", got)
	}
}
