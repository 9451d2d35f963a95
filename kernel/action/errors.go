package action

import (
	"errors"
	"fmt"
)

// ConfigurationError indicates a rule author mistake: unknown action name,
// missing or mistyped kwargs. These are deterministic for a given definition.
type ConfigurationError struct {
	Action string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return "action: configuration error"
	}
	return fmt.Sprintf("action: %s: configuration: %s", e.Action, e.Reason)
}

func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// DependencyError indicates a collaborator failure: store write, LLM call,
// process spawn, git access, or an action timeout. Retrying may succeed.
type DependencyError struct {
	Action     string
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	if e == nil {
		return "action: dependency error"
	}
	return fmt.Sprintf("action: %s: dependency %s: %v", e.Action, e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func IsDependencyError(err error) bool {
	var target *DependencyError
	return errors.As(err, &target)
}

// RenderError indicates a prompt or message template failed to render.
type RenderError struct {
	Action string
	Err    error
}

func (e *RenderError) Error() string {
	if e == nil {
		return "action: render error"
	}
	return fmt.Sprintf("action: %s: render: %v", e.Action, e.Err)
}

func (e *RenderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func IsRenderError(err error) bool {
	var target *RenderError
	return errors.As(err, &target)
}
