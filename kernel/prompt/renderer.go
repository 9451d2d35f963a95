// Package prompt renders rule-authored prompt templates against live
// session state before LLM invocation.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/sessionkit/conductor/kernel/state"
)

// Renderer renders one template body with Go template syntax. Variables are
// exposed as {{.variables.<name>}}, the session as {{.session_id}} and
// {{.step}}. Missing keys render as empty rather than failing, matching the
// total-evaluation discipline of conditions.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Context builds the render context for one session state plus extra
// event-scoped values.
func Context(st *state.WorkflowState, extra map[string]any) map[string]any {
	ctx := map[string]any{
		"session_id": "",
		"step":       "",
		"variables":  map[string]any{},
	}
	if st != nil {
		ctx["session_id"] = st.SessionID
		ctx["step"] = st.Step
		if st.Variables != nil {
			ctx["variables"] = st.Variables
		}
	}
	for k, v := range extra {
		ctx[k] = v
	}
	return ctx
}

// Render executes one template body. Parse and execution failures are
// render errors for the caller's taxonomy; they never panic.
func (r *Renderer) Render(body string, ctx map[string]any) (string, error) {
	tmpl, err := template.New("prompt").Option("missingkey=zero").Parse(body)
	if err != nil {
		return "", fmt.Errorf("prompt: parse template: %w", err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("prompt: render template: %w", err)
	}
	// missingkey=zero leaves "<no value>" where a nil surfaced; authors get
	// empty text instead.
	out := strings.ReplaceAll(buf.String(), "<no value>", "")
	return normalizeText(out), nil
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}
