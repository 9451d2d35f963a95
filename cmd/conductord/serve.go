package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/sessionkit/conductor/internal/adapter"
	"github.com/sessionkit/conductor/kernel/bootstrap"
	"github.com/sessionkit/conductor/kernel/hookevent"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hook daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := assemble()
			if err != nil {
				return err
			}
			defer sys.Close()

			adapters, err := adapterRegistry()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), sys, adapters, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7817", "listen address")
	return cmd
}

func runServer(ctx context.Context, sys *bootstrap.System, adapters *adapter.Registry, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolver := adapter.NewSessionResolver(sys.Sessions, slog.Default())

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":    "ok",
			"workflows": sys.Workflows.Snapshot().WorkflowNames(),
		})
	})

	e.POST("/hooks/:source", func(c echo.Context) error {
		source := hookevent.Source(c.Param("source"))
		a, ok := adapters.For(source)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "unknown source")
		}
		payload, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "cannot read payload")
		}
		ev, err := a.Decode(payload)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if err := resolver.Resolve(c.Request().Context(), &ev); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		resp := sys.Engine.Process(c.Request().Context(), ev)
		out, err := a.Encode(&ev, resp)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSONBlob(http.StatusOK, out)
	})

	// Definition hot reload runs until shutdown.
	go func() {
		if err := sys.Workflows.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("definition watcher stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()
	slog.Info("conductord listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
