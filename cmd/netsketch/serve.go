package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"netsketch/internal/adapter"
	"netsketch/internal/config"
	"netsketch/internal/handler"
	"netsketch/internal/hub"
	"netsketch/internal/service"
	"netsketch/internal/watcher"
)

var (
	serveAddr string
	serveDB   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with live event streams",
	Long: `Starts the HTTP API. Scan lifecycle events are pushed to /events (SSE)
and /ws (WebSocket). When a config file is in use it is watched and probe
settings are reloaded on change.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "SQLite database path (overrides database.path)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	dbPath := cfg.Database.Path
	if serveDB != "" {
		dbPath = serveDB
	}

	bus := service.NewEventBus()
	svc, closeRepo, err := newService(ctx, dbPath, bus)
	if err != nil {
		return err
	}
	defer closeRepo()
	logger.Info("database opened", zap.String("path", dbPath))

	events := hub.New(logger)
	go events.Run(ctx)

	monitor := service.NewMonitor(svc, cfg.Monitor.Interval.Duration(), logger)
	go monitor.Run(ctx)

	// Connect event bus to the hub
	eventChan := make(chan service.Event, 100)
	bus.Subscribe(eventChan)
	defer bus.Unsubscribe(eventChan)
	go func() {
		for {
			select {
			case event := <-eventChan:
				events.Broadcast(event)
			case <-ctx.Done():
				return
			}
		}
	}()

	if cfgFrom != "" {
		go func() {
			err := watcher.WatchConfig(ctx, cfgFrom, logger, func(next *config.Config) {
				probe := next.EffectiveProbe()
				svc.SetProber(adapter.NewProber(probe, nil, logger))
				logger.Info("config reloaded", zap.String("posture", string(next.Posture)))
				bus.Publish(service.Event{
					Type:    service.EventConfigReload,
					Payload: map[string]any{"posture": next.Posture, "probe": probe},
				})
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("config watcher stopped", zap.Error(err))
			}
		}()
	}

	server := &http.Server{
		Addr:        addr,
		Handler:     handler.New(svc, events, logger).WithMonitor(monitor).Routes(),
		ReadTimeout: 10 * time.Second,
		// No write timeout: event streams stay open indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}
