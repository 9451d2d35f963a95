// Package engine runs one hook event through the full pass: behaviors,
// rule resolution and evaluation, action execution, step transitions, and
// state persistence. The engine fails open toward the CLI and loud toward
// the logs: an internal failure never blocks the operator's tool call, but
// it always leaves a trace.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sessionkit/conductor/kernel/action"
	"github.com/sessionkit/conductor/kernel/behavior"
	"github.com/sessionkit/conductor/kernel/condition"
	"github.com/sessionkit/conductor/kernel/hookevent"
	"github.com/sessionkit/conductor/kernel/llm"
	"github.com/sessionkit/conductor/kernel/prompt"
	"github.com/sessionkit/conductor/kernel/session"
	"github.com/sessionkit/conductor/kernel/spawn"
	"github.com/sessionkit/conductor/kernel/state"
	"github.com/sessionkit/conductor/kernel/task"
	"github.com/sessionkit/conductor/kernel/workflow"
)

// Config wires the engine's collaborators. Workflows, States, Behaviors,
// Conditions, and Actions are required; the rest are optional and actions
// needing an absent collaborator fail with a dependency error.
type Config struct {
	Workflows  *workflow.Store
	States     state.Store
	Behaviors  *behavior.Registry
	Conditions *condition.Evaluator
	Actions    *action.Registry

	Sessions session.Store
	Tasks    task.Store
	LLM      llm.Client
	Spawner  spawn.Spawner
	Renderer *prompt.Renderer

	// WorkTree is the repository directory git enforcement actions inspect.
	WorkTree string

	Log *slog.Logger
	Now func() time.Time
}

// Engine processes normalized hook events for all sessions of one daemon.
type Engine struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(cfg Config) (*Engine, error) {
	if cfg.Workflows == nil || cfg.States == nil {
		return nil, fmt.Errorf("engine: workflow store and state store are required")
	}
	if cfg.Behaviors == nil || cfg.Conditions == nil || cfg.Actions == nil {
		return nil, fmt.Errorf("engine: behavior registry, condition evaluator, and action registry are required")
	}
	if cfg.Renderer == nil {
		cfg.Renderer = prompt.NewRenderer()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		cfg:   cfg,
		log:   cfg.Log,
		now:   cfg.Now,
		locks: map[string]*sync.Mutex{},
	}, nil
}

// sessionLock returns the mutex serializing passes for one session. Distinct
// sessions proceed in parallel.
func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	mu, ok := e.locks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[sessionID] = mu
	}
	return mu
}

// Process runs one event through the pass and returns the response for the
// adapter. The per-session lock is held from state load through save, so
// concurrent events for the same session serialize in arrival order.
func (e *Engine) Process(ctx context.Context, ev hookevent.Event) (resp hookevent.Response) {
	defer func() {
		if recovered := recover(); recovered != nil {
			e.log.Error("engine pass panicked, failing open",
				"event_type", string(ev.Type), "session_id", ev.SessionID, "panic", recovered)
			resp = hookevent.Response{Err: fmt.Sprintf("engine: internal error: %v", recovered)}
		}
	}()

	sessionID := ev.PlatformSessionID()
	if sessionID == "" {
		sessionID = ev.SessionID
	}
	if sessionID == "" {
		return hookevent.Response{Err: "engine: event carries no session id"}
	}
	if !hookevent.KnownEventType(ev.Type) {
		e.log.Warn("unknown event type, passing through", "event_type", string(ev.Type))
		return hookevent.Response{}
	}
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}

	mu := e.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	snap := e.cfg.Workflows.Snapshot()
	st, def, err := e.loadState(ctx, snap, &ev, sessionID)
	if err != nil {
		e.log.Error("state load failed, failing open", "session_id", sessionID, "error", err)
		return hookevent.Response{Err: fmt.Sprintf("engine: load state: %v", err)}
	}

	if ev.Type == hookevent.EventSessionStart {
		e.ensureSessionRecord(ctx, &ev, sessionID, st.WorkflowName)
	}

	st.MergeVariables(e.cfg.Behaviors.Run(&ev, st))

	resp = hookevent.Response{}
	ac := &action.Context{
		SessionID: sessionID,
		Event:     ev,
		State:     st,
		Response:  &resp,
		Renderer:  e.cfg.Renderer,
		Sessions:  e.cfg.Sessions,
		Tasks:     e.cfg.Tasks,
		LLM:       e.cfg.LLM,
		Spawner:   e.cfg.Spawner,
		WorkTree:  e.cfg.WorkTree,
		Now:       e.now,
		Log:       e.log,
	}

	if def != nil {
		e.applyRules(ctx, snap, def, st, &ev, ac)
	}

	if ev.Type == hookevent.EventAfterAgent {
		st.TurnsInStep++
	}
	// Session teardown events never advance the state machine, and a blocked
	// call leaves the step where it was.
	if def != nil && !resp.Block && ev.Type != hookevent.EventSessionEnd && ev.Type != hookevent.EventStop {
		e.applyTransitions(def, st, &ev)
	}

	st.UpdatedAt = e.now()
	if err := e.cfg.States.Save(ctx, st); err != nil {
		e.log.Error("state save failed", "session_id", sessionID, "error", err)
		resp.Err = fmt.Sprintf("engine: save state: %v", err)
	}
	return resp.Normalize()
}

// loadState returns the session's state and bound workflow definition,
// initializing both on first contact. A binding to a workflow the snapshot
// no longer has falls back to the default definition.
func (e *Engine) loadState(ctx context.Context, snap *workflow.Snapshot, ev *hookevent.Event, sessionID string) (*state.WorkflowState, *workflow.Definition, error) {
	st, err := e.cfg.States.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, state.ErrStateNotFound) {
		return nil, nil, err
	}
	if st == nil {
		name := e.workflowNameFor(ctx, ev, sessionID)
		def, _ := snap.Workflow(name)
		if def == nil && name != workflow.DefaultWorkflowName {
			e.log.Warn("bound workflow not found, using default",
				"workflow", name, "session_id", sessionID)
			def, _ = snap.Workflow(workflow.DefaultWorkflowName)
		}
		var defaults map[string]any
		var initial, defName string
		if def != nil {
			defaults = def.Variables
			initial = def.InitialStep()
			defName = def.Name
		}
		return state.New(sessionID, defName, initial, defaults, e.now()), def, nil
	}
	def, ok := snap.Workflow(st.WorkflowName)
	if !ok && st.WorkflowName != "" {
		e.log.Warn("bound workflow gone from snapshot, using default",
			"workflow", st.WorkflowName, "session_id", sessionID)
		def, _ = snap.Workflow(workflow.DefaultWorkflowName)
	}
	return st, def, nil
}

// workflowNameFor picks the workflow binding for a fresh session: event
// metadata first, then the session record, then the default.
func (e *Engine) workflowNameFor(ctx context.Context, ev *hookevent.Event, sessionID string) string {
	if name, ok := ev.Metadata[hookevent.MetaWorkflowName].(string); ok && name != "" {
		return name
	}
	if e.cfg.Sessions != nil {
		if sess, err := e.cfg.Sessions.Get(ctx, sessionID); err == nil && sess.Workflow != "" {
			return sess.Workflow
		}
	}
	return workflow.DefaultWorkflowName
}

// ensureSessionRecord upserts the platform session record on session start.
// Record failures are logged only; session bookkeeping never blocks a pass.
func (e *Engine) ensureSessionRecord(ctx context.Context, ev *hookevent.Event, sessionID, workflowName string) {
	if e.cfg.Sessions == nil {
		return
	}
	if _, err := e.cfg.Sessions.Get(ctx, sessionID); err == nil {
		return
	}
	parentID, _ := ev.Metadata[hookevent.MetaParentSessionID].(string)
	sess := &session.Session{
		ID:       sessionID,
		Source:   ev.Source,
		NativeID: ev.SessionID,
		ParentID: parentID,
		Status:   session.StatusActive,
		Workflow: workflowName,
	}
	if err := e.cfg.Sessions.Put(ctx, sess); err != nil {
		e.log.Warn("cannot record session", "session_id", sessionID, "error", err)
	}
}

// applyRules gathers and runs the rule lists bound to the event. For tool
// gate events the step capability set is checked before any rule runs; the
// first blocking result short-circuits later rule evaluation while keeping
// the side effects already applied.
func (e *Engine) applyRules(ctx context.Context, snap *workflow.Snapshot, def *workflow.Definition, st *state.WorkflowState, ev *hookevent.Event, ac *action.Context) {
	step, _ := def.StepNamed(st.Step)

	if ev.Type == hookevent.EventBeforeTool && step != nil {
		if tool := ev.ToolName(); tool != "" && !step.AllowsTool(tool) {
			ac.Response.Block = true
			ac.Response.Message = fmt.Sprintf("tool %q is not allowed in step %q", tool, st.Step)
			return
		}
	}

	resolver := workflow.NewResolver(snap, e.log)
	in := condition.Input{State: st, Event: ev, Now: e.now()}

	lists := [][]workflow.RuleEntry{def.Triggers[hookevent.Trigger(ev.Type)]}
	if ev.Type == hookevent.EventBeforeTool {
		if step != nil {
			lists = append(lists, step.ToolRules)
		}
		lists = append(lists, def.ToolRules, def.CheckRules)
	}

	for _, entries := range lists {
		for _, entry := range entries {
			rule, ok := resolver.Resolve(def, entry)
			if !ok {
				continue
			}
			if !e.cfg.Conditions.Evaluate(&rule.Condition, in) {
				continue
			}
			e.runActions(ctx, ac, rule)
			if ac.Response.Block {
				return
			}
		}
	}
}

// runActions executes one matched rule's action list in order. A failed
// action is logged and skipped unless it is marked blocking, in which case
// the rest of the rule's actions are abandoned.
func (e *Engine) runActions(ctx context.Context, ac *action.Context, rule workflow.RuleDefinition) {
	for _, inv := range rule.Actions {
		err := e.cfg.Actions.Execute(ctx, ac, inv.Name, inv.Args)
		if err == nil {
			continue
		}
		e.log.Error("action failed",
			"action", inv.Name, "rule", rule.Name, "session_id", ac.SessionID,
			"blocking", inv.Blocking, "error", err)
		if ac.Response.Results == nil {
			ac.Response.Results = map[string]any{}
		}
		ac.Response.Results[inv.Name] = err.Error()
		if inv.Blocking {
			return
		}
	}
}

// applyTransitions evaluates the current step's outgoing edges in order and
// takes the first whose condition holds. Entering a step resets the turn
// counter and the step_complete variable.
func (e *Engine) applyTransitions(def *workflow.Definition, st *state.WorkflowState, ev *hookevent.Event) {
	step, ok := def.StepNamed(st.Step)
	if !ok {
		return
	}
	in := condition.Input{State: st, Event: ev, Now: e.now()}
	for _, tr := range step.Transitions {
		if !e.cfg.Conditions.Evaluate(&tr.When, in) {
			continue
		}
		from := st.Step
		st.EnterStep(tr.To, e.now())
		delete(st.Variables, action.VarStepComplete)
		st.Observe(state.Observation{
			ID:   uuid.NewString(),
			Time: e.now(),
			Kind: "transition",
			Text: fmt.Sprintf("step %s -> %s", from, tr.To),
		})
		e.log.Info("step transition",
			"session_id", st.SessionID, "workflow", st.WorkflowName, "from", from, "to", tr.To)
		return
	}
}
