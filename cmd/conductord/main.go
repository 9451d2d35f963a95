// Command conductord is the workflow control plane for coding agent CLIs.
// It runs either as a long-lived daemon (serve) or as a one-shot hook
// command reading a payload from stdin (hook).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sessionkit/conductor/internal/adapter"
	"github.com/sessionkit/conductor/internal/adapter/claudecode"
	"github.com/sessionkit/conductor/internal/adapter/codex"
	"github.com/sessionkit/conductor/internal/adapter/gemini"
	"github.com/sessionkit/conductor/internal/envload"
	"github.com/sessionkit/conductor/internal/logging"
	"github.com/sessionkit/conductor/internal/version"
	"github.com/sessionkit/conductor/kernel/bootstrap"
	"github.com/sessionkit/conductor/kernel/llm"
	"github.com/sessionkit/conductor/workflows"
)

var (
	flagDataDir    string
	flagUserDir    string
	flagProjectDir string
	flagWorkTree   string
	flagInMemory   bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "conductord",
		Short:         "Workflow control plane for coding agent CLIs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup()
			if path, err := envload.LoadNearest(); err == nil && path != "" {
				cmd.PrintErrf("loaded environment from %s\n", path)
			}
		},
	}
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", defaultDataDir(), "directory for sqlite state")
	root.PersistentFlags().StringVar(&flagUserDir, "user-workflows", defaultUserWorkflowDir(), "user tier workflow directory")
	root.PersistentFlags().StringVar(&flagProjectDir, "project-workflows", filepath.Join(".conductor", "workflows"), "project tier workflow directory")
	root.PersistentFlags().StringVar(&flagWorkTree, "worktree", ".", "repository directory for git enforcement actions")
	root.PersistentFlags().BoolVar(&flagInMemory, "in-memory", false, "use in-memory stores (state is lost on exit)")

	root.AddCommand(serveCmd())
	root.AddCommand(hookCmd())
	root.AddCommand(installHooksCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "conductord "+version.String())
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conductor"
	}
	return filepath.Join(home, ".conductor")
}

func defaultUserWorkflowDir() string {
	return filepath.Join(defaultDataDir(), "workflows")
}

// assemble builds the engine stack from the persistent flags plus the
// CONDUCTOR_* / provider environment.
func assemble() (*bootstrap.System, error) {
	dataDir := flagDataDir
	if flagInMemory {
		dataDir = ""
	}
	return bootstrap.Assemble(bootstrap.Options{
		DataDir:    dataDir,
		Bundled:    workflows.FS,
		UserDir:    flagUserDir,
		ProjectDir: flagProjectDir,
		WorkTree:   flagWorkTree,
		LLM:        llmConfigFromEnv(),
	})
}

// llmConfigFromEnv builds the optional LLM client config. No model means no
// client; llm_generate rules then fail with a dependency error.
func llmConfigFromEnv() *llm.Config {
	model := os.Getenv("CONDUCTOR_LLM_MODEL")
	if model == "" {
		return nil
	}
	cfg := &llm.Config{
		API:     os.Getenv("CONDUCTOR_LLM_API"),
		Model:   model,
		BaseURL: os.Getenv("CONDUCTOR_LLM_BASE_URL"),
		APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("CONDUCTOR_LLM_API_KEY")
	}
	if raw := os.Getenv("CONDUCTOR_LLM_TIMEOUT_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			cfg.Timeout = time.Duration(secs) * time.Second
		}
	}
	return cfg
}

func adapterRegistry() (*adapter.Registry, error) {
	return adapter.NewRegistry(claudecode.New(), gemini.New(), codex.New())
}
