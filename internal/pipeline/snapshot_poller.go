package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/coinstats/internal/domain"
	"github.com/alanyoungcy/coinstats/internal/metrics"
	"github.com/alanyoungcy/coinstats/internal/notify"
)

// tickLockKey is shared by every poller replica.
const tickLockKey = "poller:tick"

// PollerConfig controls scheduling of the SnapshotPoller.
type PollerConfig struct {
	Schedule    string
	RunOnStart  bool
	TickTimeout time.Duration
	LockTTL     time.Duration
}

// TickResult summarises one poll cycle.
type TickResult struct {
	TickID   string
	Written  []domain.Snapshot
	Missing  []domain.Asset
	Duration time.Duration
}

// SnapshotPoller fetches quotes for every tracked asset and appends one
// snapshot per reported asset. Cache, bus, locks, notifier and metrics are
// optional and may be nil.
type SnapshotPoller struct {
	provider domain.QuoteProvider
	store    domain.SnapshotStore
	cache    domain.LatestCache
	bus      domain.SignalBus
	locks    domain.LockManager
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	cfg      PollerConfig
	logger   *slog.Logger

	running atomic.Bool
}

// PollerDeps groups the optional collaborators of a SnapshotPoller.
type PollerDeps struct {
	Cache    domain.LatestCache
	Bus      domain.SignalBus
	Locks    domain.LockManager
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics
}

// NewSnapshotPoller creates a poller. Zero config values fall back to
// "@every 2h" and a 60s tick timeout.
func NewSnapshotPoller(
	provider domain.QuoteProvider,
	store domain.SnapshotStore,
	deps PollerDeps,
	cfg PollerConfig,
	logger *slog.Logger,
) *SnapshotPoller {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 2h"
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 60 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.TickTimeout
	}
	return &SnapshotPoller{
		provider: provider,
		store:    store,
		cache:    deps.Cache,
		bus:      deps.Bus,
		locks:    deps.Locks,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "poller")),
	}
}

// Tick runs one poll cycle. It returns domain.ErrTickInProgress when another
// tick of this poller is running and domain.ErrLockHeld when another replica
// holds the tick lock. A fetch or write failure stops the cycle; snapshots
// written before the failure are kept and listed in the result.
func (p *SnapshotPoller) Tick(ctx context.Context) (TickResult, error) {
	if !p.running.CompareAndSwap(false, true) {
		p.metrics.ObserveTick(metrics.ResultSkipped, 0)
		p.logger.WarnContext(ctx, "tick skipped, previous tick still running")
		return TickResult{}, fmt.Errorf("pipeline: tick: %w", domain.ErrTickInProgress)
	}
	defer p.running.Store(false)

	res := TickResult{TickID: uuid.NewString()}
	logger := p.logger.With(slog.String("tick_id", res.TickID))
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.TickTimeout)
	defer cancel()

	if p.locks != nil {
		unlock, err := p.locks.Acquire(ctx, tickLockKey, p.cfg.LockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			p.metrics.ObserveTick(metrics.ResultSkipped, 0)
			logger.InfoContext(ctx, "tick skipped, lock held by another poller")
			return res, fmt.Errorf("pipeline: tick: %w", err)
		case err != nil:
			// Polling does not depend on Redis being up.
			logger.WarnContext(ctx, "tick lock unavailable, continuing unlocked", slog.String("error", err.Error()))
		default:
			defer unlock()
		}
	}

	err := p.poll(ctx, logger, &res)
	res.Duration = time.Since(start)
	if err != nil {
		p.metrics.ObserveTick(metrics.ResultError, res.Duration)
		logger.ErrorContext(ctx, "tick failed",
			slog.Int("written", len(res.Written)),
			slog.Duration("duration", res.Duration),
			slog.String("error", err.Error()),
		)
		p.alert(res, err)
		return res, err
	}

	p.metrics.ObserveTick(metrics.ResultOK, res.Duration)
	logger.InfoContext(ctx, "data fetched and stored successfully",
		slog.Int("written", len(res.Written)),
		slog.Int("missing", len(res.Missing)),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

func (p *SnapshotPoller) poll(ctx context.Context, logger *slog.Logger, res *TickResult) error {
	assets := domain.AllAssets()

	quotes, err := p.provider.FetchQuotes(ctx, assets)
	if err != nil {
		return fmt.Errorf("pipeline: fetch quotes: %w", err)
	}

	for _, asset := range assets {
		q, ok := quotes[asset]
		if !ok {
			res.Missing = append(res.Missing, asset)
			logger.DebugContext(ctx, "asset missing from provider response", slog.String("asset", asset.String()))
			continue
		}

		snap, err := p.store.Write(ctx, asset, q.ToSnapshot())
		if err != nil {
			return fmt.Errorf("pipeline: write %s snapshot: %w", asset, err)
		}
		res.Written = append(res.Written, snap)
		p.metrics.SnapshotStored(asset.String(), snap.CurrentPrice)
		logger.InfoContext(ctx, "snapshot stored",
			slog.String("asset", asset.String()),
			slog.Float64("price", snap.CurrentPrice),
			slog.Int64("id", snap.ID),
		)

		p.fanOut(ctx, logger, snap)
	}
	return nil
}

// fanOut refreshes the latest cache and announces the snapshot. Failures here
// never fail the tick.
func (p *SnapshotPoller) fanOut(ctx context.Context, logger *slog.Logger, snap domain.Snapshot) {
	if p.cache != nil {
		if err := p.cache.Set(ctx, snap); err != nil {
			logger.WarnContext(ctx, "latest cache update failed",
				slog.String("asset", snap.Asset.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	if p.bus != nil {
		payload, err := json.Marshal(snap)
		if err != nil {
			logger.WarnContext(ctx, "marshal snapshot event failed", slog.String("error", err.Error()))
			return
		}
		if err := p.bus.Publish(ctx, domain.SnapshotChannel, payload); err != nil {
			logger.WarnContext(ctx, "publish snapshot event failed",
				slog.String("asset", snap.Asset.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *SnapshotPoller) alert(res TickResult, tickErr error) {
	if !p.notifier.Enabled() {
		return
	}
	// The tick context may already be past its deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	msg := fmt.Sprintf("tick %s failed after %d snapshot(s): %v", res.TickID, len(res.Written), tickErr)
	if err := p.notifier.Notify(ctx, notify.EventPollFailed, "Snapshot poll failed", msg); err != nil {
		p.logger.Warn("poll failure alert not delivered", slog.String("error", err.Error()))
	}
}

// Run schedules Tick on cfg.Schedule until ctx is cancelled. With RunOnStart
// the first tick fires immediately.
func (p *SnapshotPoller) Run(ctx context.Context) error {
	c := newCron(p.logger)
	if _, err := c.AddFunc(p.cfg.Schedule, func() { _, _ = p.Tick(ctx) }); err != nil {
		return fmt.Errorf("pipeline: schedule poller %q: %w", p.cfg.Schedule, err)
	}

	p.logger.Info("poller started",
		slog.String("schedule", p.cfg.Schedule),
		slog.Bool("run_on_start", p.cfg.RunOnStart),
		slog.Duration("tick_timeout", p.cfg.TickTimeout),
	)

	c.Start()
	if p.cfg.RunOnStart {
		go func() { _, _ = p.Tick(ctx) }()
	}

	<-ctx.Done()
	<-c.Stop().Done()
	p.logger.Info("poller stopped")
	return ctx.Err()
}
