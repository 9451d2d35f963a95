// Package behavior holds pure event observers that derive state variable
// updates from raw events, independent of rule evaluation.
package behavior

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/sessionkit/conductor/kernel/hookevent"
	"github.com/sessionkit/conductor/kernel/state"
)

// Handler derives one partial variable update from an event. Handlers must
// be pure: no I/O, no errors on malformed input (return an empty update),
// and idempotent under replay — the engine does not guarantee at-most-once
// invocation.
type Handler func(ev *hookevent.Event, st *state.WorkflowState) map[string]any

type entry struct {
	name    string
	events  map[hookevent.EventType]bool
	handler Handler
}

// Registry is the lookup table from behavior name to handler, populated once
// at daemon startup.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	byName  map[string]int
	log     *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{byName: map[string]int{}, log: log}
}

// Register adds one behavior subscribed to the given event types. Duplicate
// names are rejected; plugin behaviors share this exact signature.
func (r *Registry) Register(name string, handler Handler, events ...hookevent.EventType) error {
	if name == "" || handler == nil {
		return fmt.Errorf("behavior: name and handler are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("behavior: duplicate behavior %q", name)
	}
	subscribed := map[hookevent.EventType]bool{}
	for _, et := range events {
		subscribed[et] = true
	}
	r.byName[name] = len(r.entries)
	r.entries = append(r.entries, entry{name: name, events: subscribed, handler: handler})
	return nil
}

// Names returns registered behavior names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.name)
	}
	return out
}

// Run invokes every behavior subscribed to the event's type and returns the
// merged variable updates in registration order. A panicking handler
// contributes an empty update; the engine pass continues.
func (r *Registry) Run(ev *hookevent.Event, st *state.WorkflowState) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	merged := map[string]any{}
	for _, e := range r.entries {
		if len(e.events) > 0 && !e.events[ev.Type] {
			continue
		}
		updates := r.runOne(e, ev, st)
		for k, v := range updates {
			merged[k] = v
		}
	}
	return merged
}

func (r *Registry) runOne(e entry, ev *hookevent.Event, st *state.WorkflowState) (updates map[string]any) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.log.Error("behavior panicked, treating as empty update",
				"behavior", e.name, "panic", recovered)
			updates = nil
		}
	}()
	return e.handler(ev, st)
}
