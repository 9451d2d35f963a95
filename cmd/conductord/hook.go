package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sessionkit/conductor/internal/adapter"
	"github.com/sessionkit/conductor/kernel/hookevent"
)

// hookCmd is the settings-file integration mode: the CLI pipes one payload to
// stdin and reads the native response from stdout. Exit code stays zero even
// on engine errors; the error rides inside the response so the CLI never
// interprets a daemon bug as a hook crash.
func hookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hook <source>",
		Short: "Process one hook payload from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adapters, err := adapterRegistry()
			if err != nil {
				return err
			}
			a, ok := adapters.For(hookevent.Source(args[0]))
			if !ok {
				return fmt.Errorf("unknown source %q", args[0])
			}

			sys, err := assemble()
			if err != nil {
				return err
			}
			defer sys.Close()

			payload, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			ev, err := a.Decode(payload)
			if err != nil {
				return err
			}
			resolver := adapter.NewSessionResolver(sys.Sessions, slog.Default())
			if err := resolver.Resolve(cmd.Context(), &ev); err != nil {
				return err
			}
			resp := sys.Engine.Process(cmd.Context(), ev)
			out, err := a.Encode(&ev, resp)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}
