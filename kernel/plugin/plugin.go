// Package plugin is the compile-time extension point: providers contribute
// behaviors, actions, and condition predicates that bootstrap installs into
// the engine's registries alongside the builtins.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sessionkit/conductor/kernel/action"
	"github.com/sessionkit/conductor/kernel/behavior"
	"github.com/sessionkit/conductor/kernel/condition"
	"github.com/sessionkit/conductor/kernel/hookevent"
)

// BehaviorSpec is one behavior contributed by a provider.
type BehaviorSpec struct {
	Name    string
	Handler behavior.Handler
	Events  []hookevent.EventType
}

// PredicateSpec is one condition predicate contributed by a provider.
type PredicateSpec struct {
	Name string
	Func condition.PredicateFunc
}

// BehaviorProvider provides behaviors by provider name.
type BehaviorProvider interface {
	Name() string
	Behaviors() []BehaviorSpec
}

// ActionProvider provides named actions by provider name.
type ActionProvider interface {
	Name() string
	Actions() map[string]action.Func
}

// PredicateProvider provides condition predicates by provider name.
type PredicateProvider interface {
	Name() string
	Predicates() []PredicateSpec
}

// Registry is a compile-time registration container.
type Registry struct {
	mu sync.RWMutex

	behaviorProviders  map[string]BehaviorProvider
	actionProviders    map[string]ActionProvider
	predicateProviders map[string]PredicateProvider
}

func NewRegistry() *Registry {
	return &Registry{
		behaviorProviders:  map[string]BehaviorProvider{},
		actionProviders:    map[string]ActionProvider{},
		predicateProviders: map[string]PredicateProvider{},
	}
}

func (r *Registry) RegisterBehaviorProvider(p BehaviorProvider) error {
	if p == nil || p.Name() == "" {
		return fmt.Errorf("plugin: invalid behavior provider")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.behaviorProviders[p.Name()]; exists {
		return fmt.Errorf("plugin: duplicate behavior provider %q", p.Name())
	}
	r.behaviorProviders[p.Name()] = p
	return nil
}

func (r *Registry) RegisterActionProvider(p ActionProvider) error {
	if p == nil || p.Name() == "" {
		return fmt.Errorf("plugin: invalid action provider")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actionProviders[p.Name()]; exists {
		return fmt.Errorf("plugin: duplicate action provider %q", p.Name())
	}
	r.actionProviders[p.Name()] = p
	return nil
}

func (r *Registry) RegisterPredicateProvider(p PredicateProvider) error {
	if p == nil || p.Name() == "" {
		return fmt.Errorf("plugin: invalid predicate provider")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.predicateProviders[p.Name()]; exists {
		return fmt.Errorf("plugin: duplicate predicate provider %q", p.Name())
	}
	r.predicateProviders[p.Name()] = p
	return nil
}

// Install resolves every provider into the live registries. Behaviors and
// actions collide with builtins loudly; predicates deliberately override.
func (r *Registry) Install(behaviors *behavior.Registry, actions *action.Registry, conditions *condition.Evaluator) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.behaviorProviders) {
		for _, spec := range r.behaviorProviders[name].Behaviors() {
			if err := behaviors.Register(spec.Name, spec.Handler, spec.Events...); err != nil {
				return fmt.Errorf("plugin: provider %q: %w", name, err)
			}
		}
	}
	for _, name := range sortedKeys(r.actionProviders) {
		for actionName, fn := range r.actionProviders[name].Actions() {
			if err := actions.Register(actionName, fn); err != nil {
				return fmt.Errorf("plugin: provider %q: %w", name, err)
			}
		}
	}
	for _, name := range sortedKeys(r.predicateProviders) {
		for _, spec := range r.predicateProviders[name].Predicates() {
			conditions.Register(spec.Name, spec.Func)
		}
	}
	return nil
}

func (r *Registry) ListBehaviorProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.behaviorProviders)
}

func (r *Registry) ListActionProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.actionProviders)
}

func (r *Registry) ListPredicateProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.predicateProviders)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
