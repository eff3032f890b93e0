package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver copies snapshot history into cold storage. It never removes rows
// from the primary store.
type Archiver interface {
	ArchiveSnapshots(ctx context.Context, asset Asset, before time.Time) (int64, error)
}

// ArchiveRecord describes one completed export of an asset's history.
type ArchiveRecord struct {
	ID        int64
	Asset     Asset
	Path      string
	RowCount  int64
	Before    time.Time
	CreatedAt time.Time
}

// ArchiveLog persists the export history so each run only copies rows newer
// than the previous cutoff.
type ArchiveLog interface {
	Record(ctx context.Context, rec ArchiveRecord) error
	// LastCutoff returns the Before of the most recent export for asset, or
	// the zero time when nothing has been exported yet.
	LastCutoff(ctx context.Context, asset Asset) (time.Time, error)
}
