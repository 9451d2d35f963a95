// Package task is the engine's boundary to the task tracking subsystem:
// create/claim/close plus the dependency-tree queries enforcement rules and
// predicates consult.
package task

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTaskNotFound   = errors.New("task: not found")
	ErrAlreadyClaimed = errors.New("task: already claimed")
)

// Status is one task lifecycle state.
type Status string

const (
	StatusOpen    Status = "open"
	StatusClaimed Status = "claimed"
	StatusClosed  Status = "closed"
)

// Task is one unit of tracked work. ParentID builds the dependency tree.
type Task struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	ClaimedBy string    `json:"claimed_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store provides task persistence and queries.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// Claim marks one open task as claimed by a session. Claiming a task
	// already claimed by another session fails with ErrAlreadyClaimed.
	Claim(ctx context.Context, id, sessionID string) error
	CloseTask(ctx context.Context, id string) error
	// ActiveFor returns the task currently claimed by one session, nil when
	// none is.
	ActiveFor(ctx context.Context, sessionID string) (*Task, error)
	List(ctx context.Context, parentID string) ([]*Task, error)
	// TreeComplete reports whether every task in the subtree rooted at id is
	// closed.
	TreeComplete(ctx context.Context, id string) (bool, error)
}
