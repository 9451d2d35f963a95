// Package adapter translates CLI-native hook payloads to normalized events
// and engine responses back to CLI-native output. Each supported CLI ships
// its own translator; this package holds the shared contract and the
// platform session resolution every translator needs.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sessionkit/conductor/kernel/hookevent"
	"github.com/sessionkit/conductor/kernel/session"
)

// Adapter is one CLI translator. Decode returns an event whose SessionID is
// still the CLI-native id; callers run SessionResolver.Resolve before handing
// the event to the engine.
type Adapter interface {
	Source() hookevent.Source
	Decode(payload []byte) (hookevent.Event, error)
	Encode(ev *hookevent.Event, resp hookevent.Response) ([]byte, error)
}

// Registry maps source names to translators.
type Registry struct {
	bySource map[hookevent.Source]Adapter
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{bySource: map[hookevent.Source]Adapter{}}
	for _, a := range adapters {
		if _, exists := r.bySource[a.Source()]; exists {
			return nil, fmt.Errorf("adapter: duplicate adapter for source %q", a.Source())
		}
		r.bySource[a.Source()] = a
	}
	return r, nil
}

// For returns the translator for one source.
func (r *Registry) For(source hookevent.Source) (Adapter, bool) {
	a, ok := r.bySource[source]
	return a, ok
}

// SessionResolver maps CLI-native session ids to stable platform ids via the
// session store's native bridge, creating the session record on first sight.
type SessionResolver struct {
	sessions session.Store
	log      *slog.Logger
}

func NewSessionResolver(sessions session.Store, log *slog.Logger) *SessionResolver {
	if log == nil {
		log = slog.Default()
	}
	return &SessionResolver{sessions: sessions, log: log}
}

// Resolve stamps the event's platform session id metadata. Without a session
// store the native id doubles as the platform id.
func (r *SessionResolver) Resolve(ctx context.Context, ev *hookevent.Event) error {
	if ev.PlatformSessionID() != "" {
		return nil
	}
	if ev.SessionID == "" {
		return fmt.Errorf("adapter: event carries no native session id")
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}
	if r.sessions == nil {
		ev.Metadata[hookevent.MetaPlatformSessionID] = ev.SessionID
		return nil
	}

	sess, err := r.sessions.ResolveNative(ctx, ev.Source, ev.SessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		sess, err = r.createSession(ctx, ev)
	}
	if err != nil {
		return fmt.Errorf("adapter: resolve session: %w", err)
	}
	ev.Metadata[hookevent.MetaPlatformSessionID] = sess.ID
	return nil
}

func (r *SessionResolver) createSession(ctx context.Context, ev *hookevent.Event) (*session.Session, error) {
	parentID, _ := ev.Metadata[hookevent.MetaParentSessionID].(string)
	workflowName, _ := ev.Metadata[hookevent.MetaWorkflowName].(string)
	sess := &session.Session{
		ID:       uuid.NewString(),
		Source:   ev.Source,
		NativeID: ev.SessionID,
		ParentID: parentID,
		Status:   session.StatusActive,
		Workflow: workflowName,
	}
	if err := r.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	if err := r.sessions.BridgeNative(ctx, sess.ID, ev.Source, ev.SessionID); err != nil {
		return nil, err
	}
	r.log.Info("bridged new session",
		"platform_session_id", sess.ID, "source", string(ev.Source), "native_id", ev.SessionID)
	return sess, nil
}
