// Package session holds platform session records: the engine's stable
// session identity, distinct from any single CLI's native identifier. A
// session may be resumed, forked, or bridged across CLI-native ids; the
// platform id is the join key everything else hangs off.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/sessionkit/conductor/kernel/hookevent"
)

var ErrSessionNotFound = errors.New("session: not found")

// Status is one session lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Session is one platform session record.
type Session struct {
	ID        string           `json:"id"`
	Source    hookevent.Source `json:"source"`
	NativeID  string           `json:"native_id"`
	ParentID  string           `json:"parent_id,omitempty"`
	Status    Status           `json:"status"`
	Workflow  string           `json:"workflow,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store provides session CRUD plus the native-id bridge adapters use to
// resolve platform ids.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	SetStatus(ctx context.Context, id string, status Status) error
	Children(ctx context.Context, parentID string) ([]*Session, error)

	// ResolveNative returns the session currently bridged to one CLI-native
	// id, ErrSessionNotFound when none is.
	ResolveNative(ctx context.Context, source hookevent.Source, nativeID string) (*Session, error)
	// BridgeNative points one CLI-native id at a platform session. Rebinding
	// an id (resume, fork) overwrites the previous bridge.
	BridgeNative(ctx context.Context, id string, source hookevent.Source, nativeID string) error
}
