package hookevent

// TriggerKey is the canonical name an event type maps to when looking up
// applicable rules in a workflow definition.
type TriggerKey string

const (
	TriggerSessionStart TriggerKey = "on_session_start"
	TriggerSessionEnd   TriggerKey = "on_session_end"
	TriggerBeforeTool   TriggerKey = "on_before_tool"
	TriggerAfterTool    TriggerKey = "on_after_tool"
	TriggerBeforeAgent  TriggerKey = "on_before_agent"
	TriggerAfterAgent   TriggerKey = "on_after_agent"
	TriggerUserPrompt   TriggerKey = "on_user_prompt"
	TriggerStop         TriggerKey = "on_stop"
	TriggerPreCompact   TriggerKey = "on_pre_compact"
	TriggerNotification TriggerKey = "on_notification"
)

var triggerByType = map[EventType]TriggerKey{
	EventSessionStart: TriggerSessionStart,
	EventSessionEnd:   TriggerSessionEnd,
	EventBeforeTool:   TriggerBeforeTool,
	EventAfterTool:    TriggerAfterTool,
	EventBeforeAgent:  TriggerBeforeAgent,
	EventAfterAgent:   TriggerAfterAgent,
	EventUserPrompt:   TriggerUserPrompt,
	EventStop:         TriggerStop,
	EventPreCompact:   TriggerPreCompact,
	EventNotification: TriggerNotification,
}

// Trigger maps one event type to its trigger key. The mapping is total over
// the closed event type set; unknown types map to an empty key, which no
// definition can bind.
func Trigger(t EventType) TriggerKey {
	return triggerByType[t]
}
