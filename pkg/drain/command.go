package drain

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/google/cel-go/cel"

	"github.com/NavarchProject/eventwatch/pkg/events"
)

const (
	// maxOutputSteps caps how many output lines of a command become steps.
	maxOutputSteps = 20

	// failureTailLines is how much output a failed command keeps in its error.
	failureTailLines = 3

	// commandWaitDelay bounds how long Run waits for output after the
	// command is killed.
	commandWaitDelay = 2 * time.Second
)

// CommandSpec configures a hook that runs an external command.
type CommandSpec struct {
	// Name identifies the hook.
	Name string `yaml:"name"`

	// Kind is reboot, redeploy, preempt, generic or universal.
	Kind string `yaml:"kind"`

	// When is an optional CEL expression over the 'event' variable with
	// fields id, type, raw_type, status, resources, not_before,
	// description, source and duration_seconds. The command only runs when
	// it evaluates to true.
	When string `yaml:"when,omitempty"`

	// Command is the argv to execute. It is not passed through a shell.
	Command []string `yaml:"command"`

	// Timeout overrides the registry's hook timeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Env adds environment variables to the command.
	Env map[string]string `yaml:"env,omitempty"`
}

// CommandHook runs an external command as a drain action.
type CommandHook struct {
	spec    CommandSpec
	program cel.Program
}

// NewCommandHook validates spec and compiles its condition.
func NewCommandHook(spec CommandSpec) (*CommandHook, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("command hook must have a name")
	}
	if len(spec.Command) == 0 || spec.Command[0] == "" {
		return nil, fmt.Errorf("command hook %q: command is required", spec.Name)
	}
	if _, err := ParseKind(spec.Kind); err != nil {
		return nil, fmt.Errorf("command hook %q: %w", spec.Name, err)
	}

	h := &CommandHook{spec: spec}
	if strings.TrimSpace(spec.When) == "" {
		return h, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	ast, issues := env.Compile(spec.When)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("command hook %q: compile condition: %w", spec.Name, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("command hook %q: create program: %w", spec.Name, err)
	}
	h.program = program
	return h, nil
}

// Kind returns the sequence the hook belongs to.
func (h *CommandHook) Kind() Kind {
	k, _ := ParseKind(h.spec.Kind)
	return k
}

func (h *CommandHook) Name() string { return h.spec.Name }

func (h *CommandHook) Description() string {
	return fmt.Sprintf("Command %s (%s)", h.spec.Name, shellescape.QuoteCommand(h.spec.Command))
}

// Timeout implements the registry's per-hook timeout override.
func (h *CommandHook) Timeout() time.Duration { return h.spec.Timeout }

// Matches evaluates the hook's condition against event. Hooks without a
// condition always match.
func (h *CommandHook) Matches(event events.Event) (bool, error) {
	if h.program == nil {
		return true, nil
	}
	out, _, err := h.program.Eval(map[string]any{"event": eventToMap(event)})
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	match, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition returned %s, want bool", out.Type().TypeName())
	}
	return match, nil
}

func (h *CommandHook) Run(ctx context.Context, event events.Event, steps *Steps) error {
	match, err := h.Matches(event)
	if err != nil {
		return err
	}
	if !match {
		steps.Add("Skipped %s: condition not met", h.spec.Name)
		return nil
	}

	cmd := exec.CommandContext(ctx, h.spec.Command[0], h.spec.Command[1:]...)
	cmd.Env = append(os.Environ(),
		"EVENTWATCH_EVENT_ID="+event.ID,
		"EVENTWATCH_EVENT_TYPE="+event.TypeName(),
		"EVENTWATCH_EVENT_STATUS="+string(event.Status),
		"EVENTWATCH_EVENT_RESOURCES="+strings.Join(event.Resources, ","),
	)
	for k, v := range h.spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = commandWaitDelay
	runErr := cmd.Run()

	var lines []string
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}

	// Output of a failed command is not a completed step.
	if runErr != nil {
		if len(lines) > failureTailLines {
			lines = lines[len(lines)-failureTailLines:]
		}
		if len(lines) == 0 {
			return runErr
		}
		return fmt.Errorf("%w: %s", runErr, strings.Join(lines, "; "))
	}

	for i, line := range lines {
		if i == maxOutputSteps {
			steps.Add("(output truncated)")
			break
		}
		steps.Add("%s", line)
	}
	return nil
}

func eventToMap(e events.Event) map[string]any {
	resources := make([]string, len(e.Resources))
	copy(resources, e.Resources)

	notBefore := ""
	if e.NotBefore != nil {
		notBefore = e.NotBefore.UTC().Format(time.RFC3339)
	}

	return map[string]any{
		"id":               e.ID,
		"type":             string(e.Type),
		"raw_type":         e.RawType,
		"status":           string(e.Status),
		"resources":        resources,
		"not_before":       notBefore,
		"description":      e.Description,
		"source":           e.Source,
		"duration_seconds": int64(e.DurationInSeconds),
	}
}

// RegisterCommands builds a CommandHook per spec and registers it.
func (r *Registry) RegisterCommands(specs []CommandSpec) error {
	for _, spec := range specs {
		h, err := NewCommandHook(spec)
		if err != nil {
			return err
		}
		r.Register(h.Kind(), h)
	}
	return nil
}
