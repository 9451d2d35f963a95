package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// claudeHookEvents are the settings.json sections conductord subscribes to.
// Tool events carry a wildcard matcher; lifecycle events take none.
var claudeHookEvents = []struct {
	name    string
	matcher string
}{
	{"SessionStart", ""},
	{"SessionEnd", ""},
	{"PreToolUse", "*"},
	{"PostToolUse", "*"},
	{"UserPromptSubmit", ""},
	{"Stop", ""},
	{"SubagentStop", ""},
	{"PreCompact", ""},
}

func installHooksCmd() *cobra.Command {
	var settingsPath string
	var binary string
	cmd := &cobra.Command{
		Use:   "install-hooks",
		Short: "Register conductord in Claude Code settings.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if settingsPath == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("resolve home: %w", err)
				}
				settingsPath = filepath.Join(home, ".claude", "settings.json")
			}
			changed, backup, err := installClaudeHooks(settingsPath, binary)
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen)
			if !changed {
				green.Fprintf(cmd.OutOrStdout(), "hooks already installed in %s\n", settingsPath)
				return nil
			}
			if backup != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "previous settings backed up to %s\n", backup)
			}
			green.Fprintf(cmd.OutOrStdout(), "hooks installed in %s\n", settingsPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&settingsPath, "settings", "", "settings.json path (default ~/.claude/settings.json)")
	cmd.Flags().StringVar(&binary, "command", "conductord hook claude_code", "hook command to register")
	return cmd
}

// installClaudeHooks merges the conductord hook entries into settings.json,
// backing the previous file up first. Existing unrelated hooks are kept.
func installClaudeHooks(path, command string) (changed bool, backup string, err error) {
	settings := map[string]any{}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &settings); err != nil {
			return false, "", fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		raw = nil
	default:
		return false, "", fmt.Errorf("read %s: %w", path, err)
	}

	hooks, _ := settings["hooks"].(map[string]any)
	if hooks == nil {
		hooks = map[string]any{}
	}
	for _, ev := range claudeHookEvents {
		entries, _ := hooks[ev.name].([]any)
		if hasCommand(entries, command) {
			continue
		}
		hook := map[string]any{"type": "command", "command": command}
		entry := map[string]any{"hooks": []any{hook}}
		if ev.matcher != "" {
			entry["matcher"] = ev.matcher
		}
		hooks[ev.name] = append(entries, entry)
		changed = true
	}
	if !changed {
		return false, "", nil
	}
	settings["hooks"] = hooks

	if raw != nil {
		backup = fmt.Sprintf("%s.bak.%s", path, time.Now().Format("20060102-150405"))
		if err := os.WriteFile(backup, raw, 0o644); err != nil {
			return false, "", fmt.Errorf("write backup: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, "", fmt.Errorf("create settings dir: %w", err)
	}
	out, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return false, "", err
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return false, "", fmt.Errorf("write %s: %w", path, err)
	}
	return changed, backup, nil
}

// hasCommand reports whether one hook entry list already invokes command.
func hasCommand(entries []any, command string) bool {
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		inner, _ := entry["hooks"].([]any)
		for _, rawHook := range inner {
			hook, ok := rawHook.(map[string]any)
			if !ok {
				continue
			}
			cmd, _ := hook["command"].(string)
			if strings.TrimSpace(cmd) == command {
				return true
			}
		}
	}
	return false
}
