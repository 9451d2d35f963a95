package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	driver = "sqlite"
	dsnOpt = "?_pragma=busy_timeout(3000)&_pragma=journal_mode(WAL)"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	parent_id  TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL,
	status     TEXT NOT NULL,
	claimed_by TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_claimed ON tasks(claimed_by);`

// SQLStore is the sqlite-backed task store.
type SQLStore struct {
	db *sqlx.DB
}

func Open(path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("task: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("task: create dir: %w", err)
	}
	db, err := sqlx.Connect(driver, path+dsnOpt)
	if err != nil {
		return nil, fmt.Errorf("task: open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("task: migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type row struct {
	ID        string `db:"id"`
	ParentID  string `db:"parent_id"`
	Title     string `db:"title"`
	Status    string `db:"status"`
	ClaimedBy string `db:"claimed_by"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r row) toTask() *Task {
	return &Task{
		ID:        r.ID,
		ParentID:  r.ParentID,
		Title:     r.Title,
		Status:    Status(r.Status),
		ClaimedBy: r.ClaimedBy,
		CreatedAt: time.UnixMilli(r.CreatedAt),
		UpdatedAt: time.UnixMilli(r.UpdatedAt),
	}
}

func (s *SQLStore) Create(ctx context.Context, t *Task) error {
	if t == nil || strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task: title is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, parent_id, title, status, claimed_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ParentID, t.Title, string(t.Status), t.ClaimedBy,
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("task: create: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Task, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT * FROM tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("task: get: %w", err)
	}
	return r.toTask(), nil
}

func (s *SQLStore) Claim(ctx context.Context, id, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("task: session_id is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, claimed_by = ?, updated_at = ?
		 WHERE id = ? AND (status = ? OR claimed_by = ?)`,
		string(StatusClaimed), sessionID, time.Now().UnixMilli(),
		id, string(StatusOpen), sessionID)
	if err != nil {
		return fmt.Errorf("task: claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("task: claim: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrAlreadyClaimed
	}
	return nil
}

func (s *SQLStore) CloseTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(StatusClosed), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("task: close: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("task: close: %w", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *SQLStore) ActiveFor(ctx context.Context, sessionID string) (*Task, error) {
	var r row
	err := s.db.GetContext(ctx, &r,
		`SELECT * FROM tasks WHERE claimed_by = ? AND status = ? ORDER BY updated_at DESC LIMIT 1`,
		sessionID, string(StatusClaimed))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("task: active for: %w", err)
	}
	return r.toTask(), nil
}

func (s *SQLStore) List(ctx context.Context, parentID string) ([]*Task, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM tasks WHERE parent_id = ? ORDER BY created_at`, parentID)
	if err != nil {
		return nil, fmt.Errorf("task: list: %w", err)
	}
	out := make([]*Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTask())
	}
	return out, nil
}

func (s *SQLStore) TreeComplete(ctx context.Context, id string) (bool, error) {
	const q = `
WITH RECURSIVE subtree(id) AS (
	SELECT id FROM tasks WHERE id = ?
	UNION ALL
	SELECT t.id FROM tasks t JOIN subtree s ON t.parent_id = s.id
)
SELECT COUNT(*) FROM tasks WHERE id IN (SELECT id FROM subtree) AND status <> ?`
	var open int
	if err := s.db.GetContext(ctx, &open, q, id, string(StatusClosed)); err != nil {
		return false, fmt.Errorf("task: tree complete: %w", err)
	}
	if open > 0 {
		return false, nil
	}
	// An empty subtree means the root does not exist.
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}
