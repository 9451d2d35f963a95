// Package codex translates Codex CLI notification payloads. Codex reports
// kebab-case event types keyed by conversation id; blocks are returned as an
// allow flag plus message.
package codex

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sessionkit/conductor/kernel/hookevent"
)

type payload struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversation_id"`
	Command        string         `json:"command"`
	Arguments      map[string]any `json:"arguments"`
	Output         any            `json:"output"`
	InputMessage   string         `json:"input_message"`
	Message        string         `json:"message"`
}

var eventByType = map[string]hookevent.EventType{
	"session-start":       hookevent.EventSessionStart,
	"session-end":         hookevent.EventSessionEnd,
	"exec-command-begin":  hookevent.EventBeforeTool,
	"exec-command-end":    hookevent.EventAfterTool,
	"agent-turn-start":    hookevent.EventBeforeAgent,
	"agent-turn-complete": hookevent.EventAfterAgent,
	"user-prompt":         hookevent.EventUserPrompt,
	"turn-aborted":        hookevent.EventStop,
	"notification":        hookevent.EventNotification,
}

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Source() hookevent.Source {
	return hookevent.SourceCodexCLI
}

func (a *Adapter) Decode(raw []byte) (hookevent.Event, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return hookevent.Event{}, fmt.Errorf("codex: decode payload: %w", err)
	}
	if p.ConversationID == "" {
		return hookevent.Event{}, fmt.Errorf("codex: payload carries no conversation_id")
	}
	et, ok := eventByType[p.Type]
	if !ok {
		return hookevent.Event{}, fmt.Errorf("codex: unknown event type %q", p.Type)
	}

	data := map[string]any{}
	if p.Command != "" {
		data[hookevent.DataToolName] = p.Command
	}
	if p.Arguments != nil {
		data[hookevent.DataToolInput] = p.Arguments
	}
	if p.Output != nil {
		data[hookevent.DataToolOutput] = p.Output
	}
	if p.InputMessage != "" {
		data[hookevent.DataPrompt] = p.InputMessage
	}
	if p.Message != "" {
		data[hookevent.DataMessage] = p.Message
	}

	return hookevent.Event{
		Type:      et,
		SessionID: p.ConversationID,
		Source:    hookevent.SourceCodexCLI,
		Time:      time.Now(),
		Data:      data,
		Metadata:  map[string]any{},
	}, nil
}

type output struct {
	Allow   bool   `json:"allow"`
	Message string `json:"message,omitempty"`
	Context string `json:"context,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (a *Adapter) Encode(ev *hookevent.Event, resp hookevent.Response) ([]byte, error) {
	_ = ev
	out := output{
		Allow:   !resp.Block,
		Message: resp.Message,
		Context: resp.AdditionalContext,
		Error:   resp.Err,
	}
	return json.Marshal(out)
}
