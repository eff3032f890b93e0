package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/coinstats/internal/domain"
)

// ArchiveLog is an in-memory domain.ArchiveLog.
type ArchiveLog struct {
	mu      sync.Mutex
	records []domain.ArchiveRecord
}

// NewArchiveLog returns an empty log.
func NewArchiveLog() *ArchiveLog {
	return &ArchiveLog{}
}

func (l *ArchiveLog) Record(_ context.Context, rec domain.ArchiveRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec.ID = int64(len(l.records) + 1)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *ArchiveLog) LastCutoff(_ context.Context, asset domain.Asset) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var last time.Time
	for _, r := range l.records {
		if r.Asset == asset && r.Before.After(last) {
			last = r.Before
		}
	}
	return last, nil
}

// Records returns a copy of everything recorded so far.
func (l *ArchiveLog) Records() []domain.ArchiveRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.ArchiveRecord, len(l.records))
	copy(out, l.records)
	return out
}

var _ domain.ArchiveLog = (*ArchiveLog)(nil)
