// Package claudecode translates Claude Code hook payloads. The input is the
// JSON Claude Code pipes to hook commands; the output follows the
// hookSpecificOutput contract for PreToolUse, UserPromptSubmit, and
// SessionStart, and the decision/reason contract for Stop and PostToolUse.
package claudecode

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sessionkit/conductor/kernel/hookevent"
)

// payload is the subset of Claude Code hook input the engine consumes.
type payload struct {
	SessionID      string         `json:"session_id"`
	HookEventName  string         `json:"hook_event_name"`
	TranscriptPath string         `json:"transcript_path"`
	CWD            string         `json:"cwd"`
	ToolName       string         `json:"tool_name"`
	ToolInput      map[string]any `json:"tool_input"`
	ToolResponse   any            `json:"tool_response"`
	Prompt         string         `json:"prompt"`
	Message        string         `json:"message"`
	StopHookActive bool           `json:"stop_hook_active"`
	Source         string         `json:"source"`
}

var eventByHookName = map[string]hookevent.EventType{
	"SessionStart":     hookevent.EventSessionStart,
	"SessionEnd":       hookevent.EventSessionEnd,
	"PreToolUse":       hookevent.EventBeforeTool,
	"PostToolUse":      hookevent.EventAfterTool,
	"UserPromptSubmit": hookevent.EventUserPrompt,
	"Stop":             hookevent.EventStop,
	"SubagentStop":     hookevent.EventAfterAgent,
	"PreCompact":       hookevent.EventPreCompact,
	"Notification":     hookevent.EventNotification,
}

var hookNameByEvent = invert(eventByHookName)

func invert(in map[string]hookevent.EventType) map[hookevent.EventType]string {
	out := make(map[hookevent.EventType]string, len(in))
	for name, et := range in {
		out[et] = name
	}
	return out
}

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Source() hookevent.Source {
	return hookevent.SourceClaudeCode
}

func (a *Adapter) Decode(raw []byte) (hookevent.Event, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return hookevent.Event{}, fmt.Errorf("claudecode: decode payload: %w", err)
	}
	if p.SessionID == "" {
		return hookevent.Event{}, fmt.Errorf("claudecode: payload carries no session_id")
	}
	et, ok := eventByHookName[p.HookEventName]
	if !ok {
		return hookevent.Event{}, fmt.Errorf("claudecode: unknown hook event %q", p.HookEventName)
	}

	data := map[string]any{}
	if p.ToolName != "" {
		data[hookevent.DataToolName] = p.ToolName
	}
	if p.ToolInput != nil {
		data[hookevent.DataToolInput] = p.ToolInput
	}
	if p.ToolResponse != nil {
		data[hookevent.DataToolOutput] = p.ToolResponse
	}
	if p.Prompt != "" {
		data[hookevent.DataPrompt] = p.Prompt
	}
	if p.Message != "" {
		data[hookevent.DataMessage] = p.Message
	}
	if et == hookevent.EventStop {
		data[hookevent.DataStopActive] = p.StopHookActive
	}

	return hookevent.Event{
		Type:      et,
		SessionID: p.SessionID,
		Source:    hookevent.SourceClaudeCode,
		Time:      time.Now(),
		Data:      data,
		Metadata:  map[string]any{},
	}, nil
}

type hookSpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision,omitempty"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
	AdditionalContext        string `json:"additionalContext,omitempty"`
}

type output struct {
	Decision           string              `json:"decision,omitempty"`
	Reason             string              `json:"reason,omitempty"`
	SystemMessage      string              `json:"systemMessage,omitempty"`
	HookSpecificOutput *hookSpecificOutput `json:"hookSpecificOutput,omitempty"`
}

func (a *Adapter) Encode(ev *hookevent.Event, resp hookevent.Response) ([]byte, error) {
	out := output{}
	switch ev.Type {
	case hookevent.EventBeforeTool:
		hso := &hookSpecificOutput{
			HookEventName:      hookNameByEvent[ev.Type],
			PermissionDecision: "allow",
			AdditionalContext:  resp.AdditionalContext,
		}
		if resp.Block {
			hso.PermissionDecision = "deny"
			hso.PermissionDecisionReason = resp.Message
		}
		out.HookSpecificOutput = hso
	case hookevent.EventUserPrompt, hookevent.EventSessionStart:
		if resp.AdditionalContext != "" {
			out.HookSpecificOutput = &hookSpecificOutput{
				HookEventName:     hookNameByEvent[ev.Type],
				AdditionalContext: resp.AdditionalContext,
			}
		}
		if resp.Block {
			out.Decision = "block"
			out.Reason = resp.Message
		}
	default:
		if resp.Block {
			out.Decision = "block"
			out.Reason = resp.Message
		} else if resp.Message != "" {
			out.SystemMessage = resp.Message
		}
	}
	if resp.Err != "" {
		out.SystemMessage = resp.Err
	}
	return json.Marshal(out)
}
