// Package spawn launches child agent CLI processes. The engine only sees the
// Spawner interface; the exec implementation detaches the child so the daemon
// never blocks on an interactive session.
package spawn

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
)

// Request describes one child process launch.
type Request struct {
	// Command is the CLI binary, e.g. "claude" or "gemini".
	Command string
	Args    []string
	Dir     string
	// Env entries are appended to the daemon environment.
	Env map[string]string
}

// Handle identifies a launched child.
type Handle struct {
	PID int
}

// Spawner launches child processes.
type Spawner interface {
	Spawn(ctx context.Context, req Request) (Handle, error)
}

// ExecSpawner starts the child in its own process group and releases it, so
// daemon shutdown does not tear the child down.
type ExecSpawner struct{}

func NewExecSpawner() *ExecSpawner {
	return &ExecSpawner{}
}

func (s *ExecSpawner) Spawn(ctx context.Context, req Request) (Handle, error) {
	if strings.TrimSpace(req.Command) == "" {
		return Handle{}, fmt.Errorf("spawn: command is required")
	}
	_ = ctx

	cmd := exec.Command(req.Command, req.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if req.Dir != "" {
		cmd.Dir = req.Dir
	}
	cmd.Env = composeEnv(req.Env)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return Handle{}, fmt.Errorf("spawn: start %s: %w", req.Command, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return Handle{PID: pid}, fmt.Errorf("spawn: release %s: %w", req.Command, err)
	}
	return Handle{PID: pid}, nil
}

func composeEnv(extra map[string]string) []string {
	env := append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"NO_COLOR=1",
	)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
