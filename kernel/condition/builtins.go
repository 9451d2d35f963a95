package condition

import "strings"

// TaskTreePredicate is the predicate name bootstrap rebinds to a live task
// store. The default registration evaluates false so definitions referencing
// it degrade safely when no task store is configured.
const TaskTreePredicate = "task_tree_complete"

func registerBuiltins(e *Evaluator) {
	e.Register("tool_in", toolIn)
	e.Register("turns_since_step_at_least", turnsSinceStepAtLeast)
	e.Register("step_is", stepIs)
	e.Register(TaskTreePredicate, func(in Input, args map[string]any) bool {
		return false
	})
}

// toolIn reports whether the event's tool name is in args.tools.
func toolIn(in Input, args map[string]any) bool {
	if in.Event == nil {
		return false
	}
	name := in.Event.ToolName()
	if name == "" {
		return false
	}
	raw, ok := args["tools"]
	if !ok {
		return false
	}
	list, ok := raw.([]any)
	if !ok {
		return false
	}
	for _, candidate := range list {
		s, ok := candidate.(string)
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return true
		}
	}
	return false
}

// turnsSinceStepAtLeast reports whether at least args.turns agent turns
// completed since the current step was entered.
func turnsSinceStepAtLeast(in Input, args map[string]any) bool {
	if in.State == nil {
		return false
	}
	want, ok := toFloat(args["turns"])
	if !ok {
		return false
	}
	return float64(in.State.TurnsInStep) >= want
}

// stepIs reports whether the session sits in args.step.
func stepIs(in Input, args map[string]any) bool {
	if in.State == nil {
		return false
	}
	step, ok := args["step"].(string)
	if !ok {
		return false
	}
	return in.State.Step == step
}
