package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/coinstats/internal/pipeline"
	"github.com/alanyoungcy/coinstats/internal/server"
	"github.com/alanyoungcy/coinstats/internal/server/handler"
	"github.com/alanyoungcy/coinstats/internal/server/ws"
	"github.com/alanyoungcy/coinstats/internal/service"
)

const shutdownTimeout = 10 * time.Second

// ServerMode serves the HTTP API and the live feed only. Snapshots are
// written by a separate poller process sharing the same database and Redis.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// PollerMode runs the scheduled jobs without an HTTP listener.
func (a *App) PollerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting poller mode")

	orch := a.buildOrchestrator(deps)
	if orch == nil {
		return errors.New("poller mode: no jobs enabled")
	}
	return orch.Run(ctx)
}

// FullMode runs the jobs and the HTTP API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runAll(ctx, deps)
}

// LocalMode is FullMode on in-memory storage; nothing survives a restart.
func (a *App) LocalMode(ctx context.Context, deps *Dependencies) error {
	a.logger.WarnContext(ctx, "starting local mode: snapshots are kept in memory only")
	return a.runAll(ctx, deps)
}

func (a *App) runAll(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	if orch := a.buildOrchestrator(deps); orch != nil {
		g.Go(func() error {
			return orch.Run(ctx)
		})
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// buildOrchestrator returns nil when neither job is enabled.
func (a *App) buildOrchestrator(deps *Dependencies) *pipeline.Orchestrator {
	var poller *pipeline.SnapshotPoller
	if a.cfg.Poller.Enabled {
		poller = pipeline.NewSnapshotPoller(deps.Provider, deps.Store,
			pipeline.PollerDeps{
				Cache:    deps.Cache,
				Bus:      deps.Bus,
				Locks:    deps.Locks,
				Notifier: deps.Notifier,
				Metrics:  deps.Metrics,
			},
			pipeline.PollerConfig{
				Schedule:    a.cfg.Poller.Schedule,
				RunOnStart:  a.cfg.Poller.RunOnStart,
				TickTimeout: a.cfg.Poller.TickTimeout.Duration,
				LockTTL:     a.cfg.Poller.LockTTL.Duration,
			},
			a.base,
		)
	}

	var archive *pipeline.ArchiveJob
	if a.cfg.Archive.Enabled {
		if deps.Archiver == nil {
			a.logger.Warn("archive enabled but s3 is not configured; archive job disabled")
		} else {
			archive = pipeline.NewArchiveJob(deps.Archiver, a.cfg.Archive.Schedule, deps.Notifier, deps.Metrics, a.base)
		}
	}

	if poller == nil && archive == nil {
		return nil
	}
	return pipeline.NewOrchestrator(poller, archive, a.base)
}

// startHTTPServer adds the HTTP server, its WebSocket hub and a shutdown
// watcher to g. The server drains in-flight requests when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	svc := service.NewSnapshotService(deps.Store, deps.Cache, a.base)
	hub := ws.NewHub(deps.Bus, a.cfg.Server.CORSOrigins, a.base)

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		},
		server.Handlers{
			Coin:   handler.NewCoinHandler(svc, a.base),
			Health: handler.NewHealthHandler(deps.Checks, svc, a.base),
		},
		server.Deps{
			Hub:     hub,
			Limiter: deps.RateLimiter,
			Metrics: deps.Metrics,
		},
		a.base,
	)

	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("ws hub: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
