package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eachlabs/chorus/internal/relay"
)

var (
	serveHost string
	servePort int
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the streaming relay server",
	Long: `Run the relay HTTP server.

Endpoints:
  POST /api/chat/stream   normalized SSE stream (meta, delta, error, [DONE])
  POST /api/chat          single-shot completion
  GET  /healthz

Requests without their own key use OPENROUTER_API_KEY.

Examples:
  chorus serve
  chorus serve --port 9000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Relay.Host = serveHost
	}
	if servePort != 0 {
		cfg.Relay.Port = servePort
	}

	logger, closer, err := newLogger(cfg, cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	defer closer.Close()

	router, err := newRouter(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up providers: %w", err)
	}
	if cfg.SharedKey() == "" {
		logger.Warn("OPENROUTER_API_KEY not set, requests must carry their own key")
	}

	srv := relay.NewServer(newRelay(cfg, logger), router, logger)
	httpServer := &http.Server{
		Addr:              cfg.Relay.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay listening", "addr", httpServer.Addr, "upstream", cfg.Relay.UpstreamURL)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	fmt.Fprintln(os.Stderr, mutedStyle.Render("shutting down relay..."))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
