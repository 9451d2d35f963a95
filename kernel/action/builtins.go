package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sessionkit/conductor/kernel/session"
	"github.com/sessionkit/conductor/kernel/spawn"
	"github.com/sessionkit/conductor/kernel/state"
)

// VarStepComplete is the variable mark_step_complete sets. Step transition
// conditions test it; the engine clears it on every step change.
const VarStepComplete = "step_complete"

// RegisterBuiltins installs the builtin action set.
func RegisterBuiltins(r *Registry) error {
	builtins := map[string]Func{
		"set_variable":           setVariable,
		"merge_variables":        mergeVariables,
		"record_observation":     recordObservation,
		"block_tool":             blockTool,
		"inject_context":         injectContext,
		"set_message":            setMessage,
		"signal_stop":            signalStop,
		"mark_step_complete":     markStepComplete,
		"start_child_session":    startChildSession,
		"set_session_status":     setSessionStatus,
		"llm_generate":           llmGenerate,
		"require_active_task":    requireActiveTask,
		"require_clean_worktree": requireCleanWorktree,
		"require_commit_since":   requireCommitSince,
	}
	for name, fn := range builtins {
		if err := r.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func stringArg(action string, args map[string]any, key string, required bool) (string, error) {
	v, ok := args[key]
	if !ok {
		if required {
			return "", &ConfigurationError{Action: action, Reason: fmt.Sprintf("missing required arg %q", key)}
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &ConfigurationError{Action: action, Reason: fmt.Sprintf("arg %q must be a string", key)}
	}
	return s, nil
}

func boolArg(action string, args map[string]any, key string) (bool, error) {
	v, ok := args[key]
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, &ConfigurationError{Action: action, Reason: fmt.Sprintf("arg %q must be a bool", key)}
	}
	return b, nil
}

func mapArg(action string, args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &ConfigurationError{Action: action, Reason: fmt.Sprintf("arg %q must be a mapping", key)}
	}
	return m, nil
}

func stringListArg(action string, args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, &ConfigurationError{Action: action, Reason: fmt.Sprintf("arg %q must be a list of strings", key)}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &ConfigurationError{Action: action, Reason: fmt.Sprintf("arg %q must be a list of strings", key)}
	}
}

func setVariable(ctx context.Context, ac *Context, args map[string]any) error {
	_ = ctx
	name, err := stringArg("set_variable", args, "name", true)
	if err != nil {
		return err
	}
	value, ok := args["value"]
	if !ok {
		return &ConfigurationError{Action: "set_variable", Reason: `missing required arg "value"`}
	}
	ac.State.SetVariable(name, value)
	return nil
}

func mergeVariables(ctx context.Context, ac *Context, args map[string]any) error {
	_ = ctx
	vars, err := mapArg("merge_variables", args, "variables")
	if err != nil {
		return err
	}
	if vars == nil {
		return &ConfigurationError{Action: "merge_variables", Reason: `missing required arg "variables"`}
	}
	ac.State.MergeVariables(vars)
	return nil
}

func recordObservation(ctx context.Context, ac *Context, args map[string]any) error {
	_ = ctx
	kind, err := stringArg("record_observation", args, "kind", false)
	if err != nil {
		return err
	}
	if kind == "" {
		kind = "note"
	}
	text, err := stringArg("record_observation", args, "text", false)
	if err != nil {
		return err
	}
	if text != "" {
		if text, err = ac.render("record_observation", text); err != nil {
			return err
		}
	}
	data, err := mapArg("record_observation", args, "data")
	if err != nil {
		return err
	}
	ac.State.Observe(state.Observation{
		ID:   uuid.NewString(),
		Time: ac.now(),
		Kind: kind,
		Text: text,
		Data: data,
	})
	return nil
}

func blockTool(ctx context.Context, ac *Context, args map[string]any) error {
	_ = ctx
	msg, err := stringArg("block_tool", args, "message", false)
	if err != nil {
		return err
	}
	if msg != "" {
		if msg, err = ac.render("block_tool", msg); err != nil {
			return err
		}
	}
	ac.Response.Block = true
	if msg != "" {
		ac.Response.Message = msg
	}
	return nil
}

func injectContext(ctx context.Context, ac *Context, args map[string]any) error {
	_ = ctx
	text, err := stringArg("inject_context", args, "text", true)
	if err != nil {
		return err
	}
	once, err := boolArg("inject_context", args, "once")
	if err != nil {
		return err
	}
	if once && ac.State.ContextInjected {
		return nil
	}
	rendered, err := ac.render("inject_context", text)
	if err != nil {
		return err
	}
	if rendered == "" {
		return nil
	}
	if ac.Response.AdditionalContext != "" {
		ac.Response.AdditionalContext += "\n\n" + rendered
	} else {
		ac.Response.AdditionalContext = rendered
	}
	ac.State.ContextInjected = true
	return nil
}

func setMessage(ctx context.Context, ac *Context, args map[string]any) error {
	_ = ctx
	text, err := stringArg("set_message", args, "text", true)
	if err != nil {
		return err
	}
	rendered, err := ac.render("set_message", text)
	if err != nil {
		return err
	}
	ac.Response.Message = rendered
	return nil
}

func signalStop(ctx context.Context, ac *Context, args map[string]any) error {
	_ = ctx
	_ = args
	ac.State.StopSignal = true
	return nil
}

func markStepComplete(ctx context.Context, ac *Context, args map[string]any) error {
	_ = ctx
	_ = args
	ac.State.SetVariable(VarStepComplete, true)
	return nil
}

func startChildSession(ctx context.Context, ac *Context, args map[string]any) error {
	command, err := stringArg("start_child_session", args, "command", true)
	if err != nil {
		return err
	}
	cmdArgs, err := stringListArg("start_child_session", args, "args")
	if err != nil {
		return err
	}
	dir, err := stringArg("start_child_session", args, "dir", false)
	if err != nil {
		return err
	}
	workflowName, err := stringArg("start_child_session", args, "workflow", false)
	if err != nil {
		return err
	}
	if ac.Sessions == nil {
		return &DependencyError{Action: "start_child_session", Dependency: "session store", Err: fmt.Errorf("not configured")}
	}
	if ac.Spawner == nil {
		return &DependencyError{Action: "start_child_session", Dependency: "spawner", Err: fmt.Errorf("not configured")}
	}

	child := &session.Session{
		ID:       uuid.NewString(),
		Source:   ac.Event.Source,
		ParentID: ac.SessionID,
		Status:   session.StatusActive,
		Workflow: workflowName,
	}
	if err := ac.Sessions.Put(ctx, child); err != nil {
		return &DependencyError{Action: "start_child_session", Dependency: "session store", Err: err}
	}
	handle, err := ac.Spawner.Spawn(ctx, spawn.Request{
		Command: command,
		Args:    cmdArgs,
		Dir:     dir,
		Env: map[string]string{
			"CONDUCTOR_SESSION_ID":        child.ID,
			"CONDUCTOR_PARENT_SESSION_ID": ac.SessionID,
		},
	})
	if err != nil {
		_ = ac.Sessions.SetStatus(ctx, child.ID, session.StatusFailed)
		return &DependencyError{Action: "start_child_session", Dependency: "spawner", Err: err}
	}
	ac.logger().Info("spawned child session",
		"child_session_id", child.ID, "parent_session_id", ac.SessionID, "pid", handle.PID)
	ac.State.SetVariable("last_child_session_id", child.ID)
	return nil
}

func setSessionStatus(ctx context.Context, ac *Context, args map[string]any) error {
	status, err := stringArg("set_session_status", args, "status", true)
	if err != nil {
		return err
	}
	switch session.Status(status) {
	case session.StatusActive, session.StatusWaiting, session.StatusCompleted,
		session.StatusFailed, session.StatusExpired:
	default:
		return &ConfigurationError{Action: "set_session_status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	id, err := stringArg("set_session_status", args, "session_id", false)
	if err != nil {
		return err
	}
	if id == "" {
		id = ac.SessionID
	}
	if ac.Sessions == nil {
		return &DependencyError{Action: "set_session_status", Dependency: "session store", Err: fmt.Errorf("not configured")}
	}
	if err := ac.Sessions.SetStatus(ctx, id, session.Status(status)); err != nil {
		return &DependencyError{Action: "set_session_status", Dependency: "session store", Err: err}
	}
	return nil
}

func llmGenerate(ctx context.Context, ac *Context, args map[string]any) error {
	promptBody, err := stringArg("llm_generate", args, "prompt", true)
	if err != nil {
		return err
	}
	into, err := stringArg("llm_generate", args, "into", true)
	if err != nil {
		return err
	}
	if ac.LLM == nil {
		return &DependencyError{Action: "llm_generate", Dependency: "llm", Err: fmt.Errorf("not configured")}
	}
	rendered, err := ac.render("llm_generate", promptBody)
	if err != nil {
		return err
	}
	out, err := ac.LLM.Generate(ctx, rendered)
	if err != nil {
		return &DependencyError{Action: "llm_generate", Dependency: "llm", Err: err}
	}
	ac.State.SetVariable(into, strings.TrimSpace(out))
	return nil
}

func requireActiveTask(ctx context.Context, ac *Context, args map[string]any) error {
	msg, err := stringArg("require_active_task", args, "message", false)
	if err != nil {
		return err
	}
	if msg == "" {
		msg = "claim a task before using this tool"
	}
	if ac.Tasks == nil {
		return &DependencyError{Action: "require_active_task", Dependency: "task store", Err: fmt.Errorf("not configured")}
	}
	active, err := ac.Tasks.ActiveFor(ctx, ac.SessionID)
	if err != nil {
		return &DependencyError{Action: "require_active_task", Dependency: "task store", Err: err}
	}
	if active == nil {
		ac.Response.Block = true
		ac.Response.Message = msg
		return nil
	}
	ac.State.SetVariable(taskVarActiveID, active.ID)
	return nil
}

// taskVarActiveID mirrors the behavior-layer variable so rules written
// against either producer keep working.
const taskVarActiveID = "active_task_id"
