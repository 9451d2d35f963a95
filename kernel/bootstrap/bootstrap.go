// Package bootstrap assembles the engine and its collaborators from one
// options struct. The daemon and the one-shot hook command both go through
// Assemble so they agree on wiring.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sessionkit/conductor/kernel/action"
	"github.com/sessionkit/conductor/kernel/behavior"
	"github.com/sessionkit/conductor/kernel/condition"
	"github.com/sessionkit/conductor/kernel/engine"
	"github.com/sessionkit/conductor/kernel/llm"
	"github.com/sessionkit/conductor/kernel/plugin"
	"github.com/sessionkit/conductor/kernel/prompt"
	"github.com/sessionkit/conductor/kernel/session"
	sessioninmem "github.com/sessionkit/conductor/kernel/session/inmemory"
	sessionsql "github.com/sessionkit/conductor/kernel/session/sqlstore"
	"github.com/sessionkit/conductor/kernel/spawn"
	"github.com/sessionkit/conductor/kernel/state"
	stateinmem "github.com/sessionkit/conductor/kernel/state/inmemory"
	statesql "github.com/sessionkit/conductor/kernel/state/sqlstore"
	"github.com/sessionkit/conductor/kernel/task"
	"github.com/sessionkit/conductor/kernel/workflow"
)

// Options describes one assembly.
type Options struct {
	// DataDir holds the sqlite files. Empty selects in-memory stores, which
	// only makes sense for tests and dry runs.
	DataDir string

	Bundled    fs.FS
	UserDir    string
	ProjectDir string

	// WorkTree is the repository the git enforcement actions inspect.
	WorkTree string

	// LLM is optional; without it llm_generate fails with a dependency error.
	LLM *llm.Config

	// Plugins contributes extra behaviors, actions, and predicates.
	Plugins *plugin.Registry

	Log *slog.Logger
	Now func() time.Time
}

// System is the assembled runtime.
type System struct {
	Engine    *engine.Engine
	Workflows *workflow.Store
	States    state.Store
	Sessions  session.Store
	Tasks     task.Store

	closers []io.Closer
}

// Close releases every store the assembly opened.
func (s *System) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Assemble builds the full engine stack.
func Assemble(opts Options) (*System, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	sys := &System{}
	if err := assembleStores(opts, sys); err != nil {
		return nil, err
	}

	loader := workflow.NewLoader(workflow.Sources{
		Bundled:    opts.Bundled,
		UserDir:    opts.UserDir,
		ProjectDir: opts.ProjectDir,
	}, log)
	workflows, err := workflow.NewStore(loader, log)
	if err != nil {
		_ = sys.Close()
		return nil, fmt.Errorf("bootstrap: load workflows: %w", err)
	}
	sys.Workflows = workflows

	behaviors := behavior.NewRegistry(log)
	if err := behavior.RegisterBuiltins(behaviors); err != nil {
		_ = sys.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	actions := action.NewRegistry(log)
	if err := action.RegisterBuiltins(actions); err != nil {
		_ = sys.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	conditions := condition.NewEvaluator(log)
	bindTaskTreePredicate(conditions, sys.Tasks)

	if opts.Plugins != nil {
		if err := opts.Plugins.Install(behaviors, actions, conditions); err != nil {
			_ = sys.Close()
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	var client llm.Client
	if opts.LLM != nil {
		client, err = llm.New(*opts.LLM)
		if err != nil {
			_ = sys.Close()
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	eng, err := engine.New(engine.Config{
		Workflows:  workflows,
		States:     sys.States,
		Behaviors:  behaviors,
		Conditions: conditions,
		Actions:    actions,
		Sessions:   sys.Sessions,
		Tasks:      sys.Tasks,
		LLM:        client,
		Spawner:    spawn.NewExecSpawner(),
		Renderer:   prompt.NewRenderer(),
		WorkTree:   opts.WorkTree,
		Log:        log,
		Now:        opts.Now,
	})
	if err != nil {
		_ = sys.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	sys.Engine = eng
	return sys, nil
}

func assembleStores(opts Options, sys *System) error {
	if opts.DataDir == "" {
		sys.States = stateinmem.New()
		sys.Sessions = sessioninmem.New()
		return nil
	}
	states, err := statesql.Open(filepath.Join(opts.DataDir, "state.db"))
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	sys.States = states
	sys.closers = append(sys.closers, states)

	sessions, err := sessionsql.Open(filepath.Join(opts.DataDir, "sessions.db"))
	if err != nil {
		_ = sys.Close()
		return fmt.Errorf("bootstrap: %w", err)
	}
	sys.Sessions = sessions
	sys.closers = append(sys.closers, sessions)

	tasks, err := task.Open(filepath.Join(opts.DataDir, "tasks.db"))
	if err != nil {
		_ = sys.Close()
		return fmt.Errorf("bootstrap: %w", err)
	}
	sys.Tasks = tasks
	sys.closers = append(sys.closers, tasks)
	return nil
}

// bindTaskTreePredicate replaces the false-returning default with a live
// query against the task store. The root task id comes from args.task_id or
// the session's active_task_id variable.
func bindTaskTreePredicate(conditions *condition.Evaluator, tasks task.Store) {
	if tasks == nil {
		return
	}
	conditions.Register(condition.TaskTreePredicate, func(in condition.Input, args map[string]any) bool {
		id, _ := args["task_id"].(string)
		if id == "" && in.State != nil {
			if v, ok := in.State.Variable(behavior.VarActiveTaskID); ok {
				id, _ = v.(string)
			}
		}
		if id == "" {
			return false
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done, err := tasks.TreeComplete(ctx, id)
		return err == nil && done
	})
}
