package state

import (
	"context"
	"errors"
	"time"
)

var ErrStateNotFound = errors.New("state: not found")

// Observation is one recorded fact in a session's append-only log.
type Observation struct {
	ID   string         `json:"id"`
	Time time.Time      `json:"time"`
	Kind string         `json:"kind"`
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// WorkflowState is the durable per-session engine state, keyed by platform
// session id.
type WorkflowState struct {
	SessionID     string         `json:"session_id"`
	WorkflowName  string         `json:"workflow_name"`
	Step          string         `json:"step"`
	StepEnteredAt time.Time      `json:"step_entered_at"`
	Variables     map[string]any `json:"variables"`
	Observations  []Observation  `json:"observations"`

	ContextInjected bool `json:"context_injected"`
	StopSignal      bool `json:"stop_signal"`
	// TurnsInStep counts agent turns completed since the current step was
	// entered; reset on every transition.
	TurnsInStep int `json:"turns_in_step"`

	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a defaulted state for one session.
func New(sessionID, workflowName, initialStep string, defaults map[string]any, now time.Time) *WorkflowState {
	vars := map[string]any{}
	for k, v := range defaults {
		vars[k] = v
	}
	return &WorkflowState{
		SessionID:     sessionID,
		WorkflowName:  workflowName,
		Step:          initialStep,
		StepEnteredAt: now,
		Variables:     vars,
		Observations:  []Observation{},
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing the
// stored value.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Variables = cloneMap(s.Variables)
	cp.Observations = make([]Observation, len(s.Observations))
	for i, obs := range s.Observations {
		cp.Observations[i] = obs
		cp.Observations[i].Data = cloneMap(obs.Data)
	}
	return &cp
}

// SetVariable assigns one variable, allocating the map when needed.
func (s *WorkflowState) SetVariable(name string, value any) {
	if s.Variables == nil {
		s.Variables = map[string]any{}
	}
	s.Variables[name] = value
}

// MergeVariables folds one update mapping into the state.
func (s *WorkflowState) MergeVariables(updates map[string]any) {
	for k, v := range updates {
		s.SetVariable(k, v)
	}
}

// Variable returns one variable value and whether it is set.
func (s *WorkflowState) Variable(name string) (any, bool) {
	if s == nil || s.Variables == nil {
		return nil, false
	}
	v, ok := s.Variables[name]
	return v, ok
}

// Observe appends one observation. The log is append-only; nothing removes
// entries.
func (s *WorkflowState) Observe(obs Observation) {
	s.Observations = append(s.Observations, obs)
}

// EnterStep advances to one step and resets step-scoped counters.
func (s *WorkflowState) EnterStep(step string, now time.Time) {
	s.Step = step
	s.StepEnteredAt = now
	s.TurnsInStep = 0
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// Store provides durable per-session state. Save is the durability point:
// a successful engine pass implies the saved state survives restart.
// Implementations must serialize saves for the same session id while
// allowing different sessions to proceed in parallel.
type Store interface {
	// Get returns the stored state for one session, ErrStateNotFound when
	// the session has no record yet.
	Get(ctx context.Context, sessionID string) (*WorkflowState, error)
	// Save persists one state snapshot.
	Save(ctx context.Context, st *WorkflowState) error
}
