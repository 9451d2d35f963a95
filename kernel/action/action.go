// Package action executes the side-effecting half of workflow rules. Actions
// are registered by name and invoked with keyword arguments from the rule
// definition; failures carry a small taxonomy so the engine can tell author
// mistakes from collaborator outages.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sessionkit/conductor/kernel/hookevent"
	"github.com/sessionkit/conductor/kernel/llm"
	"github.com/sessionkit/conductor/kernel/prompt"
	"github.com/sessionkit/conductor/kernel/session"
	"github.com/sessionkit/conductor/kernel/spawn"
	"github.com/sessionkit/conductor/kernel/state"
	"github.com/sessionkit/conductor/kernel/task"
)

// DefaultTimeout bounds one action execution.
const DefaultTimeout = 30 * time.Second

// Context carries everything one action may touch during execution. State
// and Response are mutated in place; the engine persists them after the pass.
type Context struct {
	SessionID string
	Event     hookevent.Event
	State     *state.WorkflowState
	Response  *hookevent.Response

	Renderer *prompt.Renderer
	Sessions session.Store
	Tasks    task.Store
	LLM      llm.Client
	Spawner  spawn.Spawner

	// WorkTree is the repository directory git enforcement actions inspect.
	WorkTree string

	Now func() time.Time
	Log *slog.Logger
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Context) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

// render runs one template body against the session state plus event data.
func (c *Context) render(action, body string) (string, error) {
	renderer := c.Renderer
	if renderer == nil {
		renderer = prompt.NewRenderer()
	}
	out, err := renderer.Render(body, prompt.Context(c.State, map[string]any{
		"event": c.Event.Data,
	}))
	if err != nil {
		return "", &RenderError{Action: action, Err: err}
	}
	return out, nil
}

// Func is one executable action. Args come straight from the rule yaml.
type Func func(ctx context.Context, ac *Context, args map[string]any) error

// Registry dispatches action invocations by name.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Func
	timeout time.Duration
	log     *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		byName:  map[string]Func{},
		timeout: DefaultTimeout,
		log:     log,
	}
}

// Register adds one action. Duplicate names are rejected so plugins cannot
// silently shadow builtins.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" || fn == nil {
		return fmt.Errorf("action: name and func are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("action: %q already registered", name)
	}
	r.byName[name] = fn
	return nil
}

// SetTimeout overrides the per-action execution bound.
func (r *Registry) SetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.timeout = d
	}
}

// Names returns the registered action names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// Execute runs one invocation under the registry timeout. An unknown name is
// a ConfigurationError; hitting the timeout is a DependencyError.
func (r *Registry) Execute(ctx context.Context, ac *Context, name string, args map[string]any) error {
	r.mu.RLock()
	fn, ok := r.byName[name]
	timeout := r.timeout
	r.mu.RUnlock()
	if !ok {
		return &ConfigurationError{Action: name, Reason: "unknown action"}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(runCtx, ac, args)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !IsDependencyError(err) {
		return &DependencyError{Action: name, Dependency: "timeout", Err: err}
	}
	return err
}
