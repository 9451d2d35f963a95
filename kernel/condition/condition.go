// Package condition evaluates rule and transition predicates over the
// current session state and incoming event. Evaluation is total: a missing
// variable or event field is falsy, never an error, so rule authors do not
// need defensive guards for variables not yet set.
package condition

import (
	"fmt"
	"regexp"
)

// Condition is the structured predicate schema decoded from workflow files.
// Exactly one branch is expected per node; an empty condition is always
// true, so rules may omit the condition entirely.
type Condition struct {
	All []Condition `yaml:"all,omitempty" json:"all,omitempty"`
	Any []Condition `yaml:"any,omitempty" json:"any,omitempty"`
	Not *Condition  `yaml:"not,omitempty" json:"not,omitempty"`

	Var       *VarTest       `yaml:"var,omitempty" json:"var,omitempty"`
	Event     *EventTest     `yaml:"event,omitempty" json:"event,omitempty"`
	Predicate *PredicateCall `yaml:"predicate,omitempty" json:"predicate,omitempty"`
}

// VarTest checks one state variable. With no comparator it tests
// truthiness.
type VarTest struct {
	Name   string   `yaml:"name" json:"name"`
	Equals any      `yaml:"equals,omitempty" json:"equals,omitempty"`
	Exists *bool    `yaml:"exists,omitempty" json:"exists,omitempty"`
	GT     *float64 `yaml:"gt,omitempty" json:"gt,omitempty"`
	LT     *float64 `yaml:"lt,omitempty" json:"lt,omitempty"`
	In     []any    `yaml:"in,omitempty" json:"in,omitempty"`
}

// EventTest checks one event data field.
type EventTest struct {
	Field   string `yaml:"field" json:"field"`
	Equals  any    `yaml:"equals,omitempty" json:"equals,omitempty"`
	In      []any  `yaml:"in,omitempty" json:"in,omitempty"`
	Matches string `yaml:"matches,omitempty" json:"matches,omitempty"`

	re *regexp.Regexp
}

// PredicateCall invokes one registered built-in predicate by name.
type PredicateCall struct {
	Name string         `yaml:"name" json:"name"`
	Args map[string]any `yaml:"args,omitempty" json:"args,omitempty"`
}

// Compile validates the condition tree and pre-compiles regexp matchers.
// Called once at definition load; an invalid pattern is a configuration
// error, not an event-time failure.
func (c *Condition) Compile() error {
	if c == nil {
		return nil
	}
	for i := range c.All {
		if err := c.All[i].Compile(); err != nil {
			return err
		}
	}
	for i := range c.Any {
		if err := c.Any[i].Compile(); err != nil {
			return err
		}
	}
	if c.Not != nil {
		if err := c.Not.Compile(); err != nil {
			return err
		}
	}
	if c.Var != nil && c.Var.Name == "" {
		return fmt.Errorf("condition: var test requires a name")
	}
	if c.Event != nil {
		if c.Event.Field == "" {
			return fmt.Errorf("condition: event test requires a field")
		}
		if c.Event.Matches != "" {
			re, err := regexp.Compile(c.Event.Matches)
			if err != nil {
				return fmt.Errorf("condition: invalid matcher %q: %w", c.Event.Matches, err)
			}
			c.Event.re = re
		}
	}
	if c.Predicate != nil && c.Predicate.Name == "" {
		return fmt.Errorf("condition: predicate call requires a name")
	}
	return nil
}

// IsEmpty reports whether the condition has no branch at all.
func (c *Condition) IsEmpty() bool {
	if c == nil {
		return true
	}
	return len(c.All) == 0 && len(c.Any) == 0 && c.Not == nil &&
		c.Var == nil && c.Event == nil && c.Predicate == nil
}
