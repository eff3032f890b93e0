package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/coinstats/internal/domain"
	"github.com/alanyoungcy/coinstats/internal/metrics"
	"github.com/alanyoungcy/coinstats/internal/notify"
)

// ArchiveJob periodically exports each asset's snapshot history up to the
// start of the current UTC day into cold storage.
type ArchiveJob struct {
	archiver domain.Archiver
	schedule string
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewArchiveJob creates an ArchiveJob. An empty schedule means daily at 03:00.
func NewArchiveJob(archiver domain.Archiver, schedule string, notifier *notify.Notifier, m *metrics.Metrics, logger *slog.Logger) *ArchiveJob {
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	return &ArchiveJob{
		archiver: archiver,
		schedule: schedule,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With(slog.String("component", "archiver")),
		now:      time.Now,
	}
}

// RunOnce exports every asset. One asset failing does not stop the others;
// all failures are returned joined.
func (j *ArchiveJob) RunOnce(ctx context.Context) error {
	cutoff := j.now().UTC().Truncate(24 * time.Hour)
	j.logger.InfoContext(ctx, "starting archive run", slog.Time("cutoff", cutoff))

	var errs []error
	var total int64
	for _, asset := range domain.AllAssets() {
		n, err := j.archiver.ArchiveSnapshots(ctx, asset, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", asset, err))
			j.logger.ErrorContext(ctx, "archive asset failed",
				slog.String("asset", asset.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		total += n
		j.metrics.RowsArchived(asset.String(), n)
		j.logger.InfoContext(ctx, "archived snapshots",
			slog.String("asset", asset.String()),
			slog.Int64("rows", n),
		)
	}

	if err := errors.Join(errs...); err != nil {
		j.alert(err)
		return fmt.Errorf("pipeline: archive run: %w", err)
	}
	j.logger.InfoContext(ctx, "archive run complete", slog.Int64("rows", total))
	return nil
}

func (j *ArchiveJob) alert(runErr error) {
	if !j.notifier.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := j.notifier.Notify(ctx, notify.EventArchiveFailed, "Snapshot archive failed", runErr.Error()); err != nil {
		j.logger.Warn("archive failure alert not delivered", slog.String("error", err.Error()))
	}
}

// Run executes RunOnce on the configured schedule until ctx is cancelled.
func (j *ArchiveJob) Run(ctx context.Context) error {
	c := newCron(j.logger)
	if _, err := c.AddFunc(j.schedule, func() { _ = j.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("pipeline: schedule archiver %q: %w", j.schedule, err)
	}

	j.logger.Info("archiver started", slog.String("schedule", j.schedule))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Info("archiver stopped")
	return ctx.Err()
}
