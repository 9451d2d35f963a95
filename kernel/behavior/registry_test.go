package behavior

import (
	"testing"
	"time"

	"github.com/sessionkit/conductor/kernel/hookevent"
	"github.com/sessionkit/conductor/kernel/state"
)

func testState() *state.WorkflowState {
	return state.New("ps-1", "default", "explore", nil, time.Now())
}

func TestRegister_DuplicateRejected(t *testing.T) {
	r := NewRegistry(nil)
	noop := func(ev *hookevent.Event, st *state.WorkflowState) map[string]any { return nil }
	if err := r.Register("one", noop); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("one", noop); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRun_SubscriptionFilters(t *testing.T) {
	r := NewRegistry(nil)
	calls := 0
	err := r.Register("counter", func(ev *hookevent.Event, st *state.WorkflowState) map[string]any {
		calls++
		return map[string]any{"seen": true}
	}, hookevent.EventAfterTool)
	if err != nil {
		t.Fatal(err)
	}

	updates := r.Run(&hookevent.Event{Type: hookevent.EventBeforeTool}, testState())
	if calls != 0 || len(updates) != 0 {
		t.Fatal("expected unsubscribed event type to be skipped")
	}
	updates = r.Run(&hookevent.Event{Type: hookevent.EventAfterTool}, testState())
	if calls != 1 || updates["seen"] != true {
		t.Fatalf("expected subscribed handler to run, calls=%d updates=%v", calls, updates)
	}
}

func TestRun_PanicIsEmptyUpdate(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register("bad", func(ev *hookevent.Event, st *state.WorkflowState) map[string]any {
		panic("malformed input")
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("good", func(ev *hookevent.Event, st *state.WorkflowState) map[string]any {
		return map[string]any{"ok": true}
	}); err != nil {
		t.Fatal(err)
	}
	updates := r.Run(&hookevent.Event{Type: hookevent.EventStop}, testState())
	if updates["ok"] != true {
		t.Fatal("expected later behavior to run after a panic")
	}
	if _, exists := updates["bad"]; exists {
		t.Fatal("expected panicking behavior to contribute nothing")
	}
}

func TestTaskClaim_DetectsClaimToolCall(t *testing.T) {
	ev := &hookevent.Event{
		Type: hookevent.EventAfterTool,
		Data: map[string]any{
			hookevent.DataToolName:  "mcp__tasks__claim_task",
			hookevent.DataToolInput: map[string]any{"task_id": "T-7"},
		},
	}
	updates := taskClaim(ev, testState())
	if updates[VarTaskClaimed] != true || updates[VarActiveTaskID] != "T-7" {
		t.Fatalf("unexpected updates %v", updates)
	}

	// Idempotent: same event, same result.
	again := taskClaim(ev, testState())
	if again[VarActiveTaskID] != "T-7" {
		t.Fatal("expected replay to yield identical update")
	}
}

func TestTaskClaim_IgnoresOtherToolsAndMalformedInput(t *testing.T) {
	ev := &hookevent.Event{
		Type: hookevent.EventAfterTool,
		Data: map[string]any{hookevent.DataToolName: "Edit"},
	}
	if updates := taskClaim(ev, testState()); updates != nil {
		t.Fatalf("expected nil updates for non-claim tool, got %v", updates)
	}
	malformed := &hookevent.Event{
		Type: hookevent.EventAfterTool,
		Data: map[string]any{
			hookevent.DataToolName:  "claim_task",
			hookevent.DataToolInput: "not a map",
		},
	}
	if updates := taskClaim(malformed, testState()); updates != nil {
		t.Fatalf("expected malformed input to yield empty update, got %v", updates)
	}
}

func TestPlanMode_MarkerDetection(t *testing.T) {
	on := &hookevent.Event{
		Type: hookevent.EventUserPrompt,
		Data: map[string]any{hookevent.DataPrompt: "<system-reminder>Plan mode is active.</system-reminder> refactor this"},
	}
	updates := planMode(on, testState())
	if updates[VarPlanMode] != true {
		t.Fatalf("expected plan mode on, got %v", updates)
	}
	plain := &hookevent.Event{
		Type: hookevent.EventUserPrompt,
		Data: map[string]any{hookevent.DataPrompt: "just a prompt"},
	}
	if updates := planMode(plain, testState()); updates != nil {
		t.Fatalf("expected no update without marker, got %v", updates)
	}
}

func TestMCPTools_TracksSubToolCalls(t *testing.T) {
	st := testState()
	ev := &hookevent.Event{
		Type: hookevent.EventBeforeTool,
		Data: map[string]any{hookevent.DataToolName: "mcp__jira__create_issue"},
	}
	updates := mcpTools(ev, st)
	if updates[VarLastMCPServer] != "jira" || updates[VarLastMCPTool] != "create_issue" {
		t.Fatalf("unexpected updates %v", updates)
	}
	if updates[VarMCPCalls] != 1 {
		t.Fatalf("expected first call count 1, got %v", updates[VarMCPCalls])
	}

	st.MergeVariables(updates)
	after := &hookevent.Event{
		Type: hookevent.EventAfterTool,
		Data: map[string]any{hookevent.DataToolName: "mcp__jira__create_issue"},
	}
	updates = mcpTools(after, st)
	if _, counted := updates[VarMCPCalls]; counted {
		t.Fatal("expected after_tool edge to not increment the counter")
	}
}

func TestMCPTools_ReplaySameCallCountsOnce(t *testing.T) {
	st := testState()
	at := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	ev := &hookevent.Event{
		Type: hookevent.EventBeforeTool,
		Time: at,
		Data: map[string]any{hookevent.DataToolName: "mcp__jira__create_issue"},
	}
	st.MergeVariables(mcpTools(ev, st))
	if v, _ := st.Variable(VarMCPCalls); v != 1 {
		t.Fatalf("expected first call count 1, got %v", v)
	}

	// Delivering the identical event again must not change the count.
	updates := mcpTools(ev, st)
	if _, counted := updates[VarMCPCalls]; counted {
		t.Fatal("expected replayed call to not increment the counter")
	}

	next := &hookevent.Event{
		Type: hookevent.EventBeforeTool,
		Time: at.Add(time.Second),
		Data: map[string]any{hookevent.DataToolName: "mcp__jira__create_issue"},
	}
	if updates := mcpTools(next, st); updates[VarMCPCalls] != 2 {
		t.Fatalf("expected second distinct call count 2, got %v", updates[VarMCPCalls])
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry(nil)
	if err := RegisterBuiltins(r); err != nil {
		t.Fatal(err)
	}
	names := r.Names()
	if len(names) != 3 {
		t.Fatalf("expected 3 builtins, got %v", names)
	}
}
