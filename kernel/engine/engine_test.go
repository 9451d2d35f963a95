package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/sessionkit/conductor/kernel/action"
	"github.com/sessionkit/conductor/kernel/behavior"
	"github.com/sessionkit/conductor/kernel/condition"
	"github.com/sessionkit/conductor/kernel/hookevent"
	"github.com/sessionkit/conductor/kernel/state"
	"github.com/sessionkit/conductor/kernel/state/inmemory"
	"github.com/sessionkit/conductor/kernel/workflow"
)

const testWorkflow = `
name: default
type: step
variables:
  goal: ship it
steps:
  - name: explore
    tools: [Read, Grep, Glob]
    transitions:
      - to: implement
        when:
          var: {name: step_complete, equals: true}
  - name: implement
    transitions:
      - to: done
        when:
          var: {name: step_complete, equals: true}
  - name: done
triggers:
  on_after_tool:
    - name: finish-explore
      condition:
        event: {field: tool_name, equals: FinishExplore}
      actions:
        - action: mark_step_complete
  on_stop:
    - name: complete-on-stop
      actions:
        - action: mark_step_complete
  on_user_prompt:
    - name: remind-goal
      condition:
        var: {name: reminded, exists: false}
      actions:
        - action: inject_context
          args: {text: "current goal: {{.variables.goal}}"}
        - action: set_variable
          args: {name: reminded, value: true}
`

// engineWith builds an engine over one bundled workflow definition, an
// in-memory state store, and the builtin behavior/action sets.
func engineWith(t *testing.T, defYAML string, mutate func(*Config)) (*Engine, *inmemory.Store) {
	t.Helper()
	bundled := fstest.MapFS{
		"default.yaml": &fstest.MapFile{Data: []byte(defYAML)},
	}
	loader := workflow.NewLoader(workflow.Sources{Bundled: bundled}, nil)
	store, err := workflow.NewStore(loader, nil)
	if err != nil {
		t.Fatal(err)
	}
	behaviors := behavior.NewRegistry(nil)
	if err := behavior.RegisterBuiltins(behaviors); err != nil {
		t.Fatal(err)
	}
	actions := action.NewRegistry(nil)
	if err := action.RegisterBuiltins(actions); err != nil {
		t.Fatal(err)
	}
	states := inmemory.New()
	cfg := Config{
		Workflows:  store,
		States:     states,
		Behaviors:  behaviors,
		Conditions: condition.NewEvaluator(nil),
		Actions:    actions,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	eng, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return eng, states
}

func toolEvent(sessionID string, et hookevent.EventType, tool string) hookevent.Event {
	return hookevent.Event{
		Type:      et,
		SessionID: sessionID,
		Source:    hookevent.SourceClaudeCode,
		Data:      map[string]any{hookevent.DataToolName: tool},
		Metadata:  map[string]any{hookevent.MetaPlatformSessionID: sessionID},
	}
}

func promptEvent(sessionID string) hookevent.Event {
	return hookevent.Event{
		Type:      hookevent.EventUserPrompt,
		SessionID: sessionID,
		Source:    hookevent.SourceClaudeCode,
		Data:      map[string]any{hookevent.DataPrompt: "hello"},
		Metadata:  map[string]any{hookevent.MetaPlatformSessionID: sessionID},
	}
}

func TestProcess_StepToolAllowlist(t *testing.T) {
	eng, _ := engineWith(t, testWorkflow, nil)
	ctx := context.Background()

	resp := eng.Process(ctx, toolEvent("ps-1", hookevent.EventBeforeTool, "Read"))
	if resp.Block {
		t.Fatalf("expected Read allowed in explore, got block: %q", resp.Message)
	}

	resp = eng.Process(ctx, toolEvent("ps-1", hookevent.EventBeforeTool, "Write"))
	if !resp.Block {
		t.Fatal("expected Write blocked in explore step")
	}
	if resp.Message == "" {
		t.Fatal("expected block message naming the step")
	}
}

func TestProcess_TransitionOnStepComplete(t *testing.T) {
	eng, states := engineWith(t, testWorkflow, nil)
	ctx := context.Background()

	// FinishExplore marks the step complete; the transition fires in the
	// same pass and clears the flag.
	resp := eng.Process(ctx, toolEvent("ps-1", hookevent.EventAfterTool, "FinishExplore"))
	if resp.Block {
		t.Fatalf("unexpected block: %q", resp.Message)
	}
	st, err := states.Get(ctx, "ps-1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Step != "implement" {
		t.Fatalf("expected step implement, got %q", st.Step)
	}
	if _, set := st.Variable(action.VarStepComplete); set {
		t.Fatal("expected step_complete cleared on transition")
	}

	// The previously forbidden tool is allowed once the step changed.
	resp = eng.Process(ctx, toolEvent("ps-1", hookevent.EventBeforeTool, "Write"))
	if resp.Block {
		t.Fatalf("expected Write allowed in implement, got block: %q", resp.Message)
	}
}

func TestProcess_BlockedToolDoesNotTransition(t *testing.T) {
	const def = `
name: default
type: step
steps:
  - name: explore
    tools: [Read]
    transitions:
      - to: implement
        when:
          event: {field: tool_name, equals: Write}
  - name: implement
`
	eng, states := engineWith(t, def, nil)

	// Write satisfies the transition condition but is outside the step's
	// tool set; the blocked call must leave the step where it was.
	resp := eng.Process(context.Background(), toolEvent("ps-1", hookevent.EventBeforeTool, "Write"))
	if !resp.Block {
		t.Fatal("expected Write blocked in explore step")
	}
	st, err := states.Get(context.Background(), "ps-1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Step != "explore" {
		t.Fatalf("expected blocked event to leave step explore, got %q", st.Step)
	}
}

func TestProcess_BlockingRuleDoesNotTransition(t *testing.T) {
	const def = `
name: default
type: step
steps:
  - name: explore
    transitions:
      - to: implement
        when:
          event: {field: tool_name, equals: Deploy}
  - name: implement
triggers:
  on_before_tool:
    - name: deny-deploy
      condition:
        event: {field: tool_name, equals: Deploy}
      actions:
        - action: block_tool
          args: {message: "deploys are gated"}
`
	eng, states := engineWith(t, def, nil)

	resp := eng.Process(context.Background(), toolEvent("ps-1", hookevent.EventBeforeTool, "Deploy"))
	if !resp.Block || resp.Message != "deploys are gated" {
		t.Fatalf("expected rule block, got %+v", resp)
	}
	st, err := states.Get(context.Background(), "ps-1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Step != "explore" {
		t.Fatalf("expected blocked event to leave step explore, got %q", st.Step)
	}

	// An allowed call matching the condition still advances.
	resp = eng.Process(context.Background(), toolEvent("ps-1", hookevent.EventAfterTool, "Deploy"))
	if resp.Block {
		t.Fatalf("unexpected block: %q", resp.Message)
	}
	st, _ = states.Get(context.Background(), "ps-1")
	if st.Step != "implement" {
		t.Fatalf("expected unblocked event to transition, got %q", st.Step)
	}
}

func TestProcess_StopEventNeverTransitions(t *testing.T) {
	eng, states := engineWith(t, testWorkflow, nil)
	ctx := context.Background()

	// The stop rule marks the step complete, but teardown events must not
	// advance the machine.
	eng.Process(ctx, hookevent.Event{
		Type:      hookevent.EventStop,
		SessionID: "ps-1",
		Source:    hookevent.SourceClaudeCode,
		Metadata:  map[string]any{hookevent.MetaPlatformSessionID: "ps-1"},
	})
	st, err := states.Get(ctx, "ps-1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Step != "explore" {
		t.Fatalf("expected stop event to leave step explore, got %q", st.Step)
	}
	if v, _ := st.Variable(action.VarStepComplete); v != true {
		t.Fatal("expected step_complete set by the stop rule")
	}

	// The next regular event picks the pending transition up.
	eng.Process(ctx, promptEvent("ps-1"))
	st, _ = states.Get(ctx, "ps-1")
	if st.Step != "implement" {
		t.Fatalf("expected deferred transition to implement, got %q", st.Step)
	}
}

func TestProcess_InjectContextOnce(t *testing.T) {
	eng, _ := engineWith(t, testWorkflow, nil)
	ctx := context.Background()

	resp := eng.Process(ctx, promptEvent("ps-1"))
	if resp.AdditionalContext != "current goal: ship it" {
		t.Fatalf("unexpected context %q", resp.AdditionalContext)
	}
	resp = eng.Process(ctx, promptEvent("ps-1"))
	if resp.AdditionalContext != "" {
		t.Fatalf("expected condition to gate re-injection, got %q", resp.AdditionalContext)
	}
}

func TestProcess_FirstBlockShortCircuitsKeepingEarlierEffects(t *testing.T) {
	const def = `
name: default
type: step
triggers:
  on_before_tool:
    - name: observe
      actions:
        - action: set_variable
          args: {name: saw_tool, value: true}
    - name: deny
      actions:
        - action: block_tool
          args: {message: denied}
    - name: never
      actions:
        - action: set_variable
          args: {name: after_block, value: true}
`
	eng, states := engineWith(t, def, nil)

	resp := eng.Process(context.Background(), toolEvent("ps-1", hookevent.EventBeforeTool, "Bash"))
	if !resp.Block || resp.Message != "denied" {
		t.Fatalf("expected block with message denied, got %+v", resp)
	}
	st, err := states.Get(context.Background(), "ps-1")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := st.Variable("saw_tool"); v != true {
		t.Fatal("expected side effect before the block to survive")
	}
	if _, set := st.Variable("after_block"); set {
		t.Fatal("expected rules after the block to be skipped")
	}
}

func TestProcess_TurnCounting(t *testing.T) {
	eng, states := engineWith(t, testWorkflow, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		eng.Process(ctx, hookevent.Event{
			Type:      hookevent.EventAfterAgent,
			SessionID: "ps-1",
			Source:    hookevent.SourceClaudeCode,
			Metadata:  map[string]any{hookevent.MetaPlatformSessionID: "ps-1"},
		})
	}
	st, err := states.Get(ctx, "ps-1")
	if err != nil {
		t.Fatal(err)
	}
	if st.TurnsInStep != 3 {
		t.Fatalf("expected 3 turns in step, got %d", st.TurnsInStep)
	}
}

func TestProcess_BehaviorClaimDetection(t *testing.T) {
	eng, states := engineWith(t, testWorkflow, nil)
	ctx := context.Background()
	eng.Process(ctx, hookevent.Event{
		Type:      hookevent.EventAfterTool,
		SessionID: "ps-1",
		Source:    hookevent.SourceClaudeCode,
		Data: map[string]any{
			hookevent.DataToolName:  "task_claim",
			hookevent.DataToolInput: map[string]any{"task_id": "t-42"},
		},
		Metadata: map[string]any{hookevent.MetaPlatformSessionID: "ps-1"},
	})
	st, err := states.Get(ctx, "ps-1")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := st.Variable(behavior.VarTaskClaimed); v != true {
		t.Fatal("expected task_claimed variable from behavior")
	}
	if v, _ := st.Variable(behavior.VarActiveTaskID); v != "t-42" {
		t.Fatalf("expected active_task_id=t-42, got %v", v)
	}
}

func TestProcess_SameSessionSerializes(t *testing.T) {
	const def = `
name: default
type: step
triggers:
  on_user_prompt:
    - name: stall-rule
      actions: [stall]
`
	var inFlight atomic.Int32
	var overlapped atomic.Bool

	eng, _ := engineWith(t, def, func(cfg *Config) {
		if err := cfg.Actions.Register("stall", func(context.Context, *action.Context, map[string]any) error {
			if inFlight.Add(1) > 1 {
				overlapped.Store(true)
			}
			time.Sleep(30 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng.Process(context.Background(), promptEvent("ps-1"))
		}()
	}
	wg.Wait()
	if overlapped.Load() {
		t.Fatal("expected same-session passes to serialize")
	}
}

func TestProcess_DifferentSessionsProceedInParallel(t *testing.T) {
	const def = `
name: default
type: step
triggers:
  on_user_prompt:
    - name: stall-rule
      actions: [stall]
`
	release := make(chan struct{})
	started := make(chan string, 2)

	eng, _ := engineWith(t, def, func(cfg *Config) {
		if err := cfg.Actions.Register("stall", func(_ context.Context, ac *action.Context, _ map[string]any) error {
			started <- ac.SessionID
			<-release
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	})

	var wg sync.WaitGroup
	for _, id := range []string{"ps-1", "ps-2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			eng.Process(context.Background(), promptEvent(id))
		}(id)
	}

	// Both sessions must reach the stalled action before either is released.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("sessions did not run in parallel")
		}
	}
	close(release)
	wg.Wait()
}

type failingSaveStore struct {
	inner *inmemory.Store
}

func (f *failingSaveStore) Get(ctx context.Context, sessionID string) (*state.WorkflowState, error) {
	return f.inner.Get(ctx, sessionID)
}

func (f *failingSaveStore) Save(context.Context, *state.WorkflowState) error {
	return errors.New("disk full")
}

func TestProcess_SaveFailureSurfacesError(t *testing.T) {
	eng, _ := engineWith(t, testWorkflow, func(cfg *Config) {
		cfg.States = &failingSaveStore{inner: inmemory.New()}
	})
	resp := eng.Process(context.Background(), toolEvent("ps-1", hookevent.EventAfterTool, "Read"))
	if resp.Err == "" {
		t.Fatal("expected save failure to surface in the response error")
	}
	if resp.Block {
		t.Fatal("expected save failure not to block")
	}
}

func TestProcess_UnknownEventTypePassesThrough(t *testing.T) {
	eng, _ := engineWith(t, testWorkflow, nil)
	resp := eng.Process(context.Background(), hookevent.Event{
		Type:      hookevent.EventType("mystery"),
		SessionID: "ps-1",
	})
	if resp.Block || resp.Err != "" {
		t.Fatalf("expected pass-through for unknown event type, got %+v", resp)
	}
}

func TestProcess_MissingSessionID(t *testing.T) {
	eng, _ := engineWith(t, testWorkflow, nil)
	resp := eng.Process(context.Background(), hookevent.Event{Type: hookevent.EventUserPrompt})
	if resp.Err == "" {
		t.Fatal("expected error for event without session id")
	}
	if resp.Block {
		t.Fatal("expected no block without session id")
	}
}

func TestProcess_PanickingActionFailsOpen(t *testing.T) {
	const def = `
name: default
type: step
triggers:
  on_user_prompt:
    - name: explode-rule
      actions: [explode]
`
	eng, _ := engineWith(t, def, func(cfg *Config) {
		if err := cfg.Actions.Register("explode", func(context.Context, *action.Context, map[string]any) error {
			panic("boom")
		}); err != nil {
			t.Fatal(err)
		}
	})

	resp := eng.Process(context.Background(), promptEvent("ps-1"))
	if resp.Block {
		t.Fatal("expected fail-open response after panic")
	}
	if resp.Err == "" {
		t.Fatal("expected panic to surface in the response error")
	}
}

func TestProcess_DefaultBlockMessage(t *testing.T) {
	const def = `
name: default
type: step
triggers:
  on_before_tool:
    - name: silent-deny
      actions: [block_tool]
`
	eng, _ := engineWith(t, def, nil)
	resp := eng.Process(context.Background(), toolEvent("ps-1", hookevent.EventBeforeTool, "Bash"))
	if !resp.Block {
		t.Fatal("expected block")
	}
	if resp.Message != hookevent.DefaultBlockMessage {
		t.Fatalf("expected default block message, got %q", resp.Message)
	}
}
