// Package sqlstore persists workflow state to a local sqlite database.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sessionkit/conductor/kernel/state"
)

const (
	driver = "sqlite"
	dsnOpt = "?_pragma=busy_timeout(3000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflow_state (
	session_id       TEXT PRIMARY KEY,
	workflow_name    TEXT NOT NULL,
	step             TEXT NOT NULL,
	step_entered_at  INTEGER NOT NULL,
	variables        TEXT NOT NULL DEFAULT '{}',
	context_injected INTEGER NOT NULL DEFAULT 0,
	stop_signal      INTEGER NOT NULL DEFAULT 0,
	turns_in_step    INTEGER NOT NULL DEFAULT 0,
	updated_at       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS observations (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	obs_id     TEXT NOT NULL,
	at         INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	body       TEXT NOT NULL DEFAULT '',
	data       TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (session_id, seq)
);`

// Store is a sqlx/sqlite-backed state.Store.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating when needed) the state database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlstore: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlstore: create dir: %w", err)
	}
	db, err := sqlx.Connect(driver, path+dsnOpt)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type stateRow struct {
	SessionID       string `db:"session_id"`
	WorkflowName    string `db:"workflow_name"`
	Step            string `db:"step"`
	StepEnteredAt   int64  `db:"step_entered_at"`
	Variables       string `db:"variables"`
	ContextInjected bool   `db:"context_injected"`
	StopSignal      bool   `db:"stop_signal"`
	TurnsInStep     int    `db:"turns_in_step"`
	UpdatedAt       int64  `db:"updated_at"`
}

type observationRow struct {
	SessionID string `db:"session_id"`
	Seq       int    `db:"seq"`
	ObsID     string `db:"obs_id"`
	At        int64  `db:"at"`
	Kind      string `db:"kind"`
	Body      string `db:"body"`
	Data      string `db:"data"`
}

func (s *Store) Get(ctx context.Context, sessionID string) (*state.WorkflowState, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("sqlstore: session_id is required")
	}
	var row stateRow
	err := s.db.GetContext(ctx, &row,
		`SELECT session_id, workflow_name, step, step_entered_at, variables,
			context_injected, stop_signal, turns_in_step, updated_at
		 FROM workflow_state WHERE session_id = ?`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, state.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get state: %w", err)
	}

	vars := map[string]any{}
	if err := json.Unmarshal([]byte(row.Variables), &vars); err != nil {
		return nil, fmt.Errorf("sqlstore: decode variables: %w", err)
	}
	st := &state.WorkflowState{
		SessionID:       row.SessionID,
		WorkflowName:    row.WorkflowName,
		Step:            row.Step,
		StepEnteredAt:   time.UnixMilli(row.StepEnteredAt),
		Variables:       vars,
		ContextInjected: row.ContextInjected,
		StopSignal:      row.StopSignal,
		TurnsInStep:     row.TurnsInStep,
		UpdatedAt:       time.UnixMilli(row.UpdatedAt),
	}

	var obsRows []observationRow
	err = s.db.SelectContext(ctx, &obsRows,
		`SELECT session_id, seq, obs_id, at, kind, body, data
		 FROM observations WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list observations: %w", err)
	}
	st.Observations = make([]state.Observation, 0, len(obsRows))
	for _, or := range obsRows {
		data := map[string]any{}
		if or.Data != "" {
			if err := json.Unmarshal([]byte(or.Data), &data); err != nil {
				return nil, fmt.Errorf("sqlstore: decode observation %s: %w", or.ObsID, err)
			}
		}
		if len(data) == 0 {
			data = nil
		}
		st.Observations = append(st.Observations, state.Observation{
			ID:   or.ObsID,
			Time: time.UnixMilli(or.At),
			Kind: or.Kind,
			Text: or.Body,
			Data: data,
		})
	}
	return st, nil
}

func (s *Store) Save(ctx context.Context, st *state.WorkflowState) error {
	if st == nil || strings.TrimSpace(st.SessionID) == "" {
		return fmt.Errorf("sqlstore: state with session_id is required")
	}
	rawVars, err := json.Marshal(st.Variables)
	if err != nil {
		return fmt.Errorf("sqlstore: encode variables: %w", err)
	}
	now := time.Now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
INSERT INTO workflow_state (
	session_id, workflow_name, step, step_entered_at, variables,
	context_injected, stop_signal, turns_in_step, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	workflow_name = excluded.workflow_name,
	step = excluded.step,
	step_entered_at = excluded.step_entered_at,
	variables = excluded.variables,
	context_injected = excluded.context_injected,
	stop_signal = excluded.stop_signal,
	turns_in_step = excluded.turns_in_step,
	updated_at = excluded.updated_at`
	_, err = tx.ExecContext(ctx, upsert,
		st.SessionID, st.WorkflowName, st.Step, st.StepEnteredAt.UnixMilli(),
		string(rawVars), st.ContextInjected, st.StopSignal, st.TurnsInStep,
		now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: upsert state: %w", err)
	}

	// The observation log is append-only: persist only rows past the stored
	// high-water mark.
	var stored int
	if err := tx.GetContext(ctx, &stored,
		`SELECT COUNT(*) FROM observations WHERE session_id = ?`, st.SessionID); err != nil {
		return fmt.Errorf("sqlstore: count observations: %w", err)
	}
	for seq := stored; seq < len(st.Observations); seq++ {
		obs := st.Observations[seq]
		rawData := "{}"
		if obs.Data != nil {
			encoded, err := json.Marshal(obs.Data)
			if err != nil {
				return fmt.Errorf("sqlstore: encode observation %s: %w", obs.ID, err)
			}
			rawData = string(encoded)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO observations (session_id, seq, obs_id, at, kind, body, data)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			st.SessionID, seq, obs.ID, obs.Time.UnixMilli(), obs.Kind, obs.Text, rawData)
		if err != nil {
			return fmt.Errorf("sqlstore: append observation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit save: %w", err)
	}
	return nil
}
