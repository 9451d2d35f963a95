// Package workflow holds the resolved, in-memory representation of workflow
// definitions and the tiered rule resolution that backs them.
package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/sessionkit/conductor/kernel/condition"
	"github.com/sessionkit/conductor/kernel/hookevent"
)

// Tier identifies where a definition was found. Precedence is
// project > user > bundled; the tag is assigned by location, never declared
// by the author.
type Tier string

const (
	TierBundled Tier = "bundled"
	TierUser    Tier = "user"
	TierProject Tier = "project"
)

// Rank orders tiers by precedence; higher wins.
func (t Tier) Rank() int {
	switch t {
	case TierProject:
		return 3
	case TierUser:
		return 2
	case TierBundled:
		return 1
	}
	return 0
}

// DefinitionType distinguishes single-pass step workflows from multi-stage
// pipelines.
type DefinitionType string

const (
	TypeStep     DefinitionType = "step"
	TypePipeline DefinitionType = "pipeline"
)

// ActionInvocation is one named action call with keyword arguments. A
// blocking invocation's failure stops the remaining actions of its rule.
type ActionInvocation struct {
	Name     string         `yaml:"action" json:"action"`
	Args     map[string]any `yaml:"args,omitempty" json:"args,omitempty"`
	Blocking bool           `yaml:"blocking,omitempty" json:"blocking,omitempty"`
}

// UnmarshalYAML accepts either a bare action name or the full mapping form.
func (a *ActionInvocation) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&a.Name)
	}
	type plain ActionInvocation
	return node.Decode((*plain)(a))
}

// RuleDefinition is one named (condition, actions) pair.
type RuleDefinition struct {
	Name      string              `yaml:"name,omitempty" json:"name,omitempty"`
	Condition condition.Condition `yaml:"condition,omitempty" json:"condition,omitempty"`
	Actions   []ActionInvocation  `yaml:"actions,omitempty" json:"actions,omitempty"`
	// Tier is assigned during load from where the rule was found.
	Tier Tier `yaml:"-" json:"tier,omitempty"`
}

// RuleEntry is one element of a trigger or check list: either a reference to
// a named rule or an inline rule body.
type RuleEntry struct {
	Ref    string
	Inline *RuleDefinition
}

// UnmarshalYAML accepts a scalar reference or an inline rule mapping.
func (r *RuleEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&r.Ref)
	}
	inline := &RuleDefinition{}
	if err := node.Decode(inline); err != nil {
		return err
	}
	if inline.Name == "" && len(inline.Actions) == 0 {
		return fmt.Errorf("workflow: inline rule requires actions")
	}
	r.Inline = inline
	return nil
}

// Transition is one outgoing edge of a step.
type Transition struct {
	To   string              `yaml:"to" json:"to"`
	When condition.Condition `yaml:"when,omitempty" json:"when,omitempty"`
}

// Step is one named node in a workflow's state machine. Tools is the allowed
// capability set; an empty set allows everything. A step with no transitions
// is terminal.
type Step struct {
	Name        string       `yaml:"name" json:"name"`
	Tools       []string     `yaml:"tools,omitempty" json:"tools,omitempty"`
	ToolRules   []RuleEntry  `yaml:"tool_rules,omitempty" json:"tool_rules,omitempty"`
	Transitions []Transition `yaml:"transitions,omitempty" json:"transitions,omitempty"`
}

// AllowsTool reports whether one tool is in the step's capability set.
func (s *Step) AllowsTool(name string) bool {
	if len(s.Tools) == 0 {
		return true
	}
	for _, tool := range s.Tools {
		if tool == name {
			return true
		}
	}
	return false
}

// Definition is one fully merged workflow, immutable once resolved for a
// given load.
type Definition struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Type        DefinitionType `yaml:"type,omitempty" json:"type,omitempty"`
	Imports     []string       `yaml:"imports,omitempty" json:"imports,omitempty"`
	Variables   map[string]any `yaml:"variables,omitempty" json:"variables,omitempty"`
	Steps       []Step         `yaml:"steps,omitempty" json:"steps,omitempty"`

	Triggers        map[hookevent.TriggerKey][]RuleEntry `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	RuleDefinitions map[string]RuleDefinition            `yaml:"rules,omitempty" json:"rules,omitempty"`
	ToolRules       []RuleEntry                          `yaml:"tool_rules,omitempty" json:"tool_rules,omitempty"`
	CheckRules      []RuleEntry                          `yaml:"check_rules,omitempty" json:"check_rules,omitempty"`

	// Tier records where this definition was found.
	Tier Tier `yaml:"-" json:"tier,omitempty"`
	// imported holds merged import rule sets in declaration order, below the
	// file's own rule definitions.
	imported []ruleSet
}

// ruleSet is one loaded rule file: a named rule namespace with stable
// identity for cycle reporting.
type ruleSet struct {
	path  string
	rules map[string]RuleDefinition
}

// InitialStep returns the declared first step name, empty for stepless
// definitions.
func (d *Definition) InitialStep() string {
	if d == nil || len(d.Steps) == 0 {
		return ""
	}
	return d.Steps[0].Name
}

// StepNamed returns one step by name.
func (d *Definition) StepNamed(name string) (*Step, bool) {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i], true
		}
	}
	return nil, false
}
