package hookevent

import "strings"

// DefaultBlockMessage is used when a blocking response carries no reason.
// Operators must always see why a call was rejected.
const DefaultBlockMessage = "blocked by workflow policy"

// Response is returned to the adapter after one engine pass.
type Response struct {
	// Block rejects the in-flight tool or agent action.
	Block bool `json:"block,omitempty"`
	// Message explains a block or carries advisory text.
	Message string `json:"message,omitempty"`
	// AdditionalContext is injected into the CLI's next prompt.
	AdditionalContext string `json:"additional_context,omitempty"`
	// Results is the accumulated action result trace.
	Results map[string]any `json:"results,omitempty"`
	// Err reports a processing failure the adapter should surface instead of
	// implying durable success.
	Err string `json:"error,omitempty"`
}

// Normalize enforces the response contract: a block always carries a
// non-empty message.
func (r Response) Normalize() Response {
	r.Message = strings.TrimSpace(r.Message)
	if r.Block && r.Message == "" {
		r.Message = DefaultBlockMessage
	}
	return r
}
