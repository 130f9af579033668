package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hashtagemy/guard/internal/config"
	"github.com/hashtagemy/guard/internal/guardconfig"
	"github.com/hashtagemy/guard/internal/ingest"
	"github.com/hashtagemy/guard/internal/registry"
	"github.com/hashtagemy/guard/internal/store"
	"github.com/hashtagemy/guard/internal/version"
)

// serveCmd starts the HTTP/WebSocket service: C1 store, the agent
// registry, runtime config (hot-reloaded), the retention sweep, and
// C5's REST + WebSocket surface. Grounded on tarsy's cmd/tarsy/main.go
// wiring order (load config, connect storage, build services, start
// server), swapped from Postgres/gin onto the file store and echo/v5.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest/broadcast HTTP+WebSocket service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	}

	bootCfg, err := config.Load(filepath.Join(configDir, "guard.yaml"))
	if err != nil {
		return err
	}

	slog.Info("starting guardd", "version", version.Build().String(), "listen_addr", bootCfg.ListenAddr, "log_root", bootCfg.LogRoot)

	st, err := store.New(bootCfg.LogRoot)
	if err != nil {
		return err
	}

	runtimeCfg, err := guardconfig.Load(filepath.Join(bootCfg.LogRoot, "config.json"))
	if err != nil {
		return err
	}
	runtimeCfg.Watch()
	defer runtimeCfg.Close()

	reg := registry.New(st)
	hub := ingest.NewHub(st)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub.StartPeriodicSnapshot(ctx)

	retentionCron := bootCfg.RetentionCron
	if retentionCron == "" {
		retentionCron = "0 3 * * *"
	}
	scheduler := store.NewRetentionScheduler(st, retentionCron, func() int { return runtimeCfg.Get().LogRetentionDays })
	scheduler.Start(ctx)
	defer scheduler.Stop()

	srv := ingest.NewServer(st, reg, runtimeCfg, hub, bootCfg.APIKey, bootCfg.CORSOrigins, bootCfg.LogRoot)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", bootCfg.ListenAddr)
		errCh <- srv.Start(bootCfg.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
