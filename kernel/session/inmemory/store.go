// Package inmemory provides a map-backed session store for tests.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sessionkit/conductor/kernel/hookevent"
	"github.com/sessionkit/conductor/kernel/session"
)

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	bridges  map[string]string // source:native_id -> platform id
}

func New() *Store {
	return &Store{
		sessions: map[string]*session.Session{},
		bridges:  map[string]string{},
	}
}

func bridgeKey(source hookevent.Source, nativeID string) string {
	return string(source) + ":" + nativeID
}

func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) Put(ctx context.Context, sess *session.Session) error {
	_ = ctx
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("inmemory: session with id is required")
	}
	cp := *sess
	cp.UpdatedAt = time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) SetStatus(ctx context.Context, id string, status session.Status) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	sess.Status = status
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *Store) Children(ctx context.Context, parentID string) ([]*session.Session, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*session.Session
	for _, sess := range s.sessions {
		if sess.ParentID == parentID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ResolveNative(ctx context.Context, source hookevent.Source, nativeID string) (*session.Session, error) {
	s.mu.RLock()
	id, ok := s.bridges[bridgeKey(source, nativeID)]
	s.mu.RUnlock()
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return s.Get(ctx, id)
}

func (s *Store) BridgeNative(ctx context.Context, id string, source hookevent.Source, nativeID string) error {
	_ = ctx
	if id == "" || nativeID == "" {
		return fmt.Errorf("inmemory: id and native_id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bridges[bridgeKey(source, nativeID)] = id
	return nil
}
