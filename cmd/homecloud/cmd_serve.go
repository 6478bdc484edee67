package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/slipstream/homecloud/internal/api"
	"github.com/slipstream/homecloud/internal/auth"
	"github.com/slipstream/homecloud/internal/database"
	"github.com/slipstream/homecloud/internal/health"
	"github.com/slipstream/homecloud/internal/history"
	"github.com/slipstream/homecloud/internal/remote"
	"github.com/slipstream/homecloud/internal/scheduler"
	"github.com/slipstream/homecloud/internal/scheduler/tasks"
	"github.com/slipstream/homecloud/internal/watcher"
	"github.com/slipstream/homecloud/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API, progress websocket and scheduled tasks",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := newRemoteClient(ctx)
	if err != nil {
		return err
	}
	// The HTTP handlers and the watcher share one session.
	remoteAPI := remote.NewLocked(client)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	historySvc := history.NewService(db.Conn(), log.Logger)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub(log.Logger)
	go hub.Run(hubCtx)

	healthSvc := health.NewService(log.Logger)
	healthSvc.SetBroadcaster(hub)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return err
	}

	deps := api.Dependencies{
		Remote:    remoteAPI,
		History:   historySvc,
		Scheduler: sched,
		Hub:       hub,
		Health:    healthSvc,
	}

	if cfg.Server.JWTSecret != "" {
		authSvc, err := auth.NewService(cfg.Server.JWTSecret)
		if err != nil {
			return err
		}
		deps.Auth = authSvc
	}

	if cfg.Watch.Enabled {
		categories, err := cfg.Watch.ListTypes()
		if err != nil {
			return err
		}
		watcherSvc := watcher.NewService(remoteAPI, hub, watcher.Config{
			PeerID:     cfg.Watch.PeerID,
			Categories: categories,
			Limit:      cfg.Watch.Limit,
		}, log.Logger)

		if err := tasks.RegisterTaskProgressTask(sched, watcherSvc, cfg.Watch.Cron); err != nil {
			return err
		}
		watcherSvc.SetStatusReporter(healthSvc)
		hub.SetRefreshHandler(watcherSvc.Poll)
		deps.Progress = watcherSvc
	}

	if cfg.Database.RetentionDays > 0 {
		if err := tasks.RegisterHistoryCleanupTask(sched, historySvc, cfg.Database.RetentionDays); err != nil {
			return err
		}
	}

	if err := tasks.RegisterHealthCheckTask(sched, healthSvc, remoteAPI); err != nil {
		return err
	}

	server := api.NewServer(deps, cfg, log.Logger)
	if err := tasks.RegisterRateLimitCleanupTask(sched, server.Limiter()); err != nil {
		return err
	}

	sched.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Server.Address())
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	log.Info().Msg("server stopped")
	return nil
}
