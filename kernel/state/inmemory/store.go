// Package inmemory provides a map-backed state store for tests and
// single-shot tooling.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sessionkit/conductor/kernel/state"
)

// Store keeps workflow state in process memory.
type Store struct {
	mu     sync.RWMutex
	states map[string]*state.WorkflowState
}

func New() *Store {
	return &Store{states: map[string]*state.WorkflowState{}}
}

func (s *Store) Get(ctx context.Context, sessionID string) (*state.WorkflowState, error) {
	_ = ctx
	if sessionID == "" {
		return nil, fmt.Errorf("inmemory: session_id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[sessionID]
	if !ok {
		return nil, state.ErrStateNotFound
	}
	return st.Clone(), nil
}

func (s *Store) Save(ctx context.Context, st *state.WorkflowState) error {
	_ = ctx
	if st == nil || st.SessionID == "" {
		return fmt.Errorf("inmemory: state with session_id is required")
	}
	cp := st.Clone()
	cp.UpdatedAt = time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.SessionID] = cp
	return nil
}

// Len reports the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
