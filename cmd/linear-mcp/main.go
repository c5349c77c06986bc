// Command linear-mcp serves the Linear tool surface over the MCP streamable
// HTTP transport.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halcyonic/linear-mcp/auth"
	"github.com/halcyonic/linear-mcp/internal/config"
	"github.com/halcyonic/linear-mcp/internal/logctx"
	"github.com/halcyonic/linear-mcp/linear"
	"github.com/halcyonic/linear-mcp/sessions"
	"github.com/halcyonic/linear-mcp/streaminghttp"
)

const serverVersion = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	log := slog.New(logctx.Handler{
		Handler: slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := linear.NewClient(cfg.LinearAPIKey, linear.WithAPIURL(cfg.LinearAPIURL))
	if err != nil {
		return err
	}
	tools, err := linear.Tools(client)
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}

	var registryOpts []sessions.RegistryOption
	registryOpts = append(registryOpts, sessions.WithLogger(log))
	if cfg.SessionIdleTimeout > 0 {
		registryOpts = append(registryOpts, sessions.WithIdleTimeout(cfg.SessionIdleTimeout))
	}
	registry := sessions.NewRegistry(registryOpts...)

	handlerOpts := []streaminghttp.Option{
		streaminghttp.WithServerName("linear-mcp"),
		streaminghttp.WithServerVersion(serverVersion),
		streaminghttp.WithLogger(log),
		streaminghttp.WithInstructions("Tools for reading and writing Linear issues, comments, and projects."),
	}
	if cfg.AuthSecret != "" {
		authenticator, err := auth.NewSharedSecret(cfg.AuthSecret)
		if err != nil {
			return err
		}
		handlerOpts = append(handlerOpts, streaminghttp.WithAuthenticator(authenticator))
	}

	handler, err := streaminghttp.New(registry, tools, handlerOpts...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := registry.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("sessions.run.fail", slog.String("err", err.Error()))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("http.listen", slog.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("http.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
