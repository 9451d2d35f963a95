package behavior

import (
	"strings"
	"time"

	"github.com/sessionkit/conductor/kernel/hookevent"
	"github.com/sessionkit/conductor/kernel/state"
)

// Variables written by the built-in behaviors.
const (
	VarTaskClaimed   = "task_claimed"
	VarActiveTaskID  = "active_task_id"
	VarPlanMode      = "plan_mode"
	VarMCPCalls      = "mcp_calls"
	VarLastMCPServer = "last_mcp_server"
	VarLastMCPTool   = "last_mcp_tool"
)

const planModeMarker = "plan mode is active"

// varMCPLastCall is internal bookkeeping: the identity of the last counted
// MCP call, so replays of the same event do not double-count.
const varMCPLastCall = "mcp_last_call_id"

// RegisterBuiltins installs the fixed built-in behavior set.
func RegisterBuiltins(r *Registry) error {
	if err := r.Register("task_claim", taskClaim,
		hookevent.EventAfterTool); err != nil {
		return err
	}
	if err := r.Register("plan_mode", planMode,
		hookevent.EventUserPrompt, hookevent.EventBeforeAgent); err != nil {
		return err
	}
	return r.Register("mcp_tools", mcpTools,
		hookevent.EventBeforeTool, hookevent.EventAfterTool)
}

// taskClaim detects that a task was just claimed via a tool call and records
// the claimed id.
func taskClaim(ev *hookevent.Event, st *state.WorkflowState) map[string]any {
	_ = st
	name := ev.ToolName()
	if !isClaimTool(name) {
		return nil
	}
	input := ev.ToolInput()
	taskID, _ := input["task_id"].(string)
	if taskID == "" {
		taskID, _ = input["id"].(string)
	}
	if taskID == "" {
		return nil
	}
	return map[string]any{
		VarTaskClaimed:  true,
		VarActiveTaskID: taskID,
	}
}

func isClaimTool(name string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	if lower == "task_claim" || lower == "claim_task" {
		return true
	}
	// MCP-style: mcp__<server>__claim_task
	return strings.HasPrefix(lower, "mcp__") && strings.HasSuffix(lower, "__claim_task")
}

// planMode tracks plan-mode on/off from system-reminder markers embedded in
// prompt text.
func planMode(ev *hookevent.Event, st *state.WorkflowState) map[string]any {
	_ = st
	prompt := ev.DataString(hookevent.DataPrompt)
	if prompt == "" {
		return nil
	}
	lower := strings.ToLower(prompt)
	if !strings.Contains(lower, "<system-reminder>") {
		return nil
	}
	if strings.Contains(lower, planModeMarker) {
		return map[string]any{VarPlanMode: true}
	}
	if strings.Contains(lower, "plan mode") && strings.Contains(lower, "no longer") {
		return map[string]any{VarPlanMode: false}
	}
	return nil
}

// mcpTools tracks MCP-style sub-tool calls (mcp__<server>__<tool>).
func mcpTools(ev *hookevent.Event, st *state.WorkflowState) map[string]any {
	name := ev.ToolName()
	if !strings.HasPrefix(name, "mcp__") {
		return nil
	}
	parts := strings.SplitN(name, "__", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return nil
	}
	updates := map[string]any{
		VarLastMCPServer: parts[1],
		VarLastMCPTool:   parts[2],
	}
	// Count each distinct call once, on the before edge. The call identity
	// keys on tool name and event time so a replayed event is idempotent.
	if ev.Type == hookevent.EventBeforeTool {
		callID := name + "@" + ev.Time.UTC().Format(time.RFC3339Nano)
		if last, _ := st.Variable(varMCPLastCall); last != callID {
			count := 0
			if raw, ok := st.Variable(VarMCPCalls); ok {
				if n, isInt := raw.(int); isInt {
					count = n
				} else if f, isFloat := raw.(float64); isFloat {
					count = int(f)
				}
			}
			updates[VarMCPCalls] = count + 1
			updates[varMCPLastCall] = callID
		}
	}
	return updates
}
