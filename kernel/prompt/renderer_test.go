package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/sessionkit/conductor/kernel/state"
)

func TestRender_VariablesAndSession(t *testing.T) {
	st := state.New("ps-1", "default", "implement", map[string]any{"active_task_id": "T-7"}, time.Now())
	r := NewRenderer()
	out, err := r.Render(
		"Session {{.session_id}} in step {{.step}} works on {{.variables.active_task_id}}.",
		Context(st, nil))
	if err != nil {
		t.Fatal(err)
	}
	if out != "Session ps-1 in step implement works on T-7." {
		t.Fatalf("unexpected render %q", out)
	}
}

func TestRender_MissingVariableIsEmptyNotError(t *testing.T) {
	st := state.New("ps-1", "default", "explore", nil, time.Now())
	r := NewRenderer()
	out, err := r.Render("value: {{.variables.never_set}}", Context(st, nil))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "no value") {
		t.Fatalf("expected missing key to render empty, got %q", out)
	}
}

func TestRender_ParseFailureIsError(t *testing.T) {
	r := NewRenderer()
	if _, err := r.Render("{{.unclosed", Context(nil, nil)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRender_ExtraContextOverrides(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("tool={{.tool_name}}", Context(nil, map[string]any{"tool_name": "Edit"}))
	if err != nil {
		t.Fatal(err)
	}
	if out != "tool=Edit" {
		t.Fatalf("unexpected render %q", out)
	}
}
