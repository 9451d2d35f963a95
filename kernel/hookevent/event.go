package hookevent

import (
	"strings"
	"time"
)

// EventType identifies one normalized hook occurrence class.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventBeforeTool   EventType = "before_tool"
	EventAfterTool    EventType = "after_tool"
	EventBeforeAgent  EventType = "before_agent"
	EventAfterAgent   EventType = "after_agent"
	EventUserPrompt   EventType = "user_prompt"
	EventStop         EventType = "stop"
	EventPreCompact   EventType = "pre_compact"
	EventNotification EventType = "notification"
)

// Source identifies the originating CLI.
type Source string

const (
	SourceClaudeCode Source = "claude_code"
	SourceGeminiCLI  Source = "gemini_cli"
	SourceCodexCLI   Source = "codex_cli"
)

// Metadata keys carried across adapters and the engine.
const (
	// MetaPlatformSessionID is the stable engine-side session key. Adapters
	// must resolve it before an event reaches the engine.
	MetaPlatformSessionID = "platform_session_id"
	// MetaParentSessionID links a child session back to its spawning parent.
	MetaParentSessionID = "parent_session_id"
	// MetaWorkflowName optionally pins a workflow for the session.
	MetaWorkflowName = "workflow_name"
)

// Well-known Data keys. Unknown keys pass through untouched.
const (
	DataToolName   = "tool_name"
	DataToolInput  = "tool_input"
	DataToolOutput = "tool_output"
	DataPrompt     = "prompt"
	DataMessage    = "message"
	DataStopActive = "stop_hook_active"
)

// Event is one normalized occurrence from an external CLI.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id"`
	Source    Source         `json:"source"`
	Time      time.Time      `json:"time"`
	Data      map[string]any `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PlatformSessionID returns the stable engine-side session key, empty when
// the adapter failed to resolve one.
func (e *Event) PlatformSessionID() string {
	if e == nil {
		return ""
	}
	raw, ok := e.Metadata[MetaPlatformSessionID]
	if !ok {
		return ""
	}
	id, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(id)
}

// DataString returns one string-valued data field, empty when absent or not
// a string.
func (e *Event) DataString(key string) string {
	if e == nil || e.Data == nil {
		return ""
	}
	value, ok := e.Data[key].(string)
	if !ok {
		return ""
	}
	return value
}

// ToolName returns the tool name for tool events, empty otherwise.
func (e *Event) ToolName() string {
	return e.DataString(DataToolName)
}

// ToolInput returns the tool argument mapping for tool events, nil otherwise.
func (e *Event) ToolInput() map[string]any {
	if e == nil || e.Data == nil {
		return nil
	}
	input, ok := e.Data[DataToolInput].(map[string]any)
	if !ok {
		return nil
	}
	return input
}

// KnownEventType reports whether one event type is part of the closed set.
func KnownEventType(t EventType) bool {
	switch t {
	case EventSessionStart, EventSessionEnd, EventBeforeTool, EventAfterTool,
		EventBeforeAgent, EventAfterAgent, EventUserPrompt, EventStop,
		EventPreCompact, EventNotification:
		return true
	}
	return false
}
