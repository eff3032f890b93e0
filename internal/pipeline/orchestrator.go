package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the background jobs: the snapshot poller and, when
// configured, the archive job. Either may be nil.
type Orchestrator struct {
	poller  *SnapshotPoller
	archive *ArchiveJob
	logger  *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(poller *SnapshotPoller, archive *ArchiveJob, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		poller:  poller,
		archive: archive,
		logger:  logger.With(slog.String("component", "orchestrator")),
	}
}

// Run blocks until ctx is cancelled or a job fails to start. Cancellation is
// a clean shutdown and returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Bool("poller", o.poller != nil),
		slog.Bool("archiver", o.archive != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.poller != nil {
		g.Go(func() error {
			err := o.poller.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("poller: %w", err)
		})
	}

	if o.archive != nil {
		g.Go(func() error {
			err := o.archive.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
