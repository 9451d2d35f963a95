// Package sqlstore persists platform session records to sqlite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sessionkit/conductor/kernel/hookevent"
	"github.com/sessionkit/conductor/kernel/session"
)

const (
	driver = "sqlite"
	dsnOpt = "?_pragma=busy_timeout(3000)&_pragma=journal_mode(WAL)"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	native_id  TEXT NOT NULL,
	parent_id  TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	workflow   TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_id);
CREATE TABLE IF NOT EXISTS native_bridge (
	source      TEXT NOT NULL,
	native_id   TEXT NOT NULL,
	platform_id TEXT NOT NULL,
	PRIMARY KEY (source, native_id)
);`

type Store struct {
	db *sqlx.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("session sqlstore: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("session sqlstore: create dir: %w", err)
	}
	db, err := sqlx.Connect(driver, path+dsnOpt)
	if err != nil {
		return nil, fmt.Errorf("session sqlstore: open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type row struct {
	ID        string `db:"id"`
	Source    string `db:"source"`
	NativeID  string `db:"native_id"`
	ParentID  string `db:"parent_id"`
	Status    string `db:"status"`
	Workflow  string `db:"workflow"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r row) toSession() *session.Session {
	return &session.Session{
		ID:        r.ID,
		Source:    hookevent.Source(r.Source),
		NativeID:  r.NativeID,
		ParentID:  r.ParentID,
		Status:    session.Status(r.Status),
		Workflow:  r.Workflow,
		CreatedAt: time.UnixMilli(r.CreatedAt),
		UpdatedAt: time.UnixMilli(r.UpdatedAt),
	}
}

func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT * FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session sqlstore: get: %w", err)
	}
	return r.toSession(), nil
}

func (s *Store) Put(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session sqlstore: session with id is required")
	}
	now := time.Now()
	created := sess.CreatedAt
	if created.IsZero() {
		created = now
	}
	const q = `
INSERT INTO sessions (id, source, native_id, parent_id, status, workflow, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	source = excluded.source,
	native_id = excluded.native_id,
	parent_id = excluded.parent_id,
	status = excluded.status,
	workflow = excluded.workflow,
	updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, q,
		sess.ID, string(sess.Source), sess.NativeID, sess.ParentID,
		string(sess.Status), sess.Workflow, created.UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("session sqlstore: put: %w", err)
	}
	return nil
}

func (s *Store) SetStatus(ctx context.Context, id string, status session.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("session sqlstore: set status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session sqlstore: set status: %w", err)
	}
	if affected == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

func (s *Store) Children(ctx context.Context, parentID string) ([]*session.Session, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM sessions WHERE parent_id = ? ORDER BY created_at`, parentID)
	if err != nil {
		return nil, fmt.Errorf("session sqlstore: children: %w", err)
	}
	out := make([]*session.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toSession())
	}
	return out, nil
}

func (s *Store) ResolveNative(ctx context.Context, source hookevent.Source, nativeID string) (*session.Session, error) {
	var platformID string
	err := s.db.GetContext(ctx, &platformID,
		`SELECT platform_id FROM native_bridge WHERE source = ? AND native_id = ?`,
		string(source), nativeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session sqlstore: resolve native: %w", err)
	}
	return s.Get(ctx, platformID)
}

func (s *Store) BridgeNative(ctx context.Context, id string, source hookevent.Source, nativeID string) error {
	if id == "" || nativeID == "" {
		return fmt.Errorf("session sqlstore: id and native_id are required")
	}
	const q = `
INSERT INTO native_bridge (source, native_id, platform_id) VALUES (?, ?, ?)
ON CONFLICT(source, native_id) DO UPDATE SET platform_id = excluded.platform_id`
	_, err := s.db.ExecContext(ctx, q, string(source), nativeID, id)
	if err != nil {
		return fmt.Errorf("session sqlstore: bridge native: %w", err)
	}
	return nil
}
