// Package gemini translates Gemini CLI hook payloads. Gemini's hook bridge
// posts one JSON object per event with camelCase keys and expects a
// decision/context object back.
package gemini

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sessionkit/conductor/kernel/hookevent"
)

type payload struct {
	Event     string         `json:"event"`
	SessionID string         `json:"sessionId"`
	ToolName  string         `json:"toolName"`
	ToolArgs  map[string]any `json:"toolArgs"`
	ToolOut   any            `json:"toolOutput"`
	Prompt    string         `json:"prompt"`
	Message   string         `json:"message"`
}

var eventByName = map[string]hookevent.EventType{
	"SessionStart": hookevent.EventSessionStart,
	"SessionEnd":   hookevent.EventSessionEnd,
	"BeforeTool":   hookevent.EventBeforeTool,
	"AfterTool":    hookevent.EventAfterTool,
	"BeforeAgent":  hookevent.EventBeforeAgent,
	"AfterAgent":   hookevent.EventAfterAgent,
	"UserPrompt":   hookevent.EventUserPrompt,
	"Stop":         hookevent.EventStop,
	"PreCompact":   hookevent.EventPreCompact,
	"Notification": hookevent.EventNotification,
}

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Source() hookevent.Source {
	return hookevent.SourceGeminiCLI
}

func (a *Adapter) Decode(raw []byte) (hookevent.Event, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return hookevent.Event{}, fmt.Errorf("gemini: decode payload: %w", err)
	}
	if p.SessionID == "" {
		return hookevent.Event{}, fmt.Errorf("gemini: payload carries no sessionId")
	}
	et, ok := eventByName[p.Event]
	if !ok {
		return hookevent.Event{}, fmt.Errorf("gemini: unknown event %q", p.Event)
	}

	data := map[string]any{}
	if p.ToolName != "" {
		data[hookevent.DataToolName] = p.ToolName
	}
	if p.ToolArgs != nil {
		data[hookevent.DataToolInput] = p.ToolArgs
	}
	if p.ToolOut != nil {
		data[hookevent.DataToolOutput] = p.ToolOut
	}
	if p.Prompt != "" {
		data[hookevent.DataPrompt] = p.Prompt
	}
	if p.Message != "" {
		data[hookevent.DataMessage] = p.Message
	}

	return hookevent.Event{
		Type:      et,
		SessionID: p.SessionID,
		Source:    hookevent.SourceGeminiCLI,
		Time:      time.Now(),
		Data:      data,
		Metadata:  map[string]any{},
	}, nil
}

type output struct {
	Decision          string `json:"decision"`
	Reason            string `json:"reason,omitempty"`
	AdditionalContext string `json:"additionalContext,omitempty"`
	Error             string `json:"error,omitempty"`
}

func (a *Adapter) Encode(ev *hookevent.Event, resp hookevent.Response) ([]byte, error) {
	_ = ev
	out := output{
		Decision:          "proceed",
		AdditionalContext: resp.AdditionalContext,
		Error:             resp.Err,
	}
	if resp.Block {
		out.Decision = "block"
		out.Reason = resp.Message
	} else if resp.Message != "" {
		out.Reason = resp.Message
	}
	return json.Marshal(out)
}
