package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/coinstats/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"

	// multipartThreshold switches uploads to the multipart manager.
	multipartThreshold = 16 * 1024 * 1024
)

// SnapshotArchiver implements domain.Archiver. Each run exports the rows
// between the previous cutoff recorded in the archive log and the new one,
// so repeated runs never upload a row twice. Rows stay in the primary store.
type SnapshotArchiver struct {
	writer domain.BlobWriter
	store  domain.SnapshotStore
	log    domain.ArchiveLog
	prefix string
	now    func() time.Time
}

// NewArchiver creates a SnapshotArchiver. prefix is prepended to every object
// key, e.g. "prod/".
func NewArchiver(writer domain.BlobWriter, store domain.SnapshotStore, log domain.ArchiveLog, prefix string) *SnapshotArchiver {
	return &SnapshotArchiver{
		writer: writer,
		store:  store,
		log:    log,
		prefix: prefix,
		now:    time.Now,
	}
}

// ArchiveSnapshots uploads asset's snapshots older than before and not yet
// exported, returning the number of rows written.
func (a *SnapshotArchiver) ArchiveSnapshots(ctx context.Context, asset domain.Asset, before time.Time) (int64, error) {
	if !asset.Valid() {
		return 0, fmt.Errorf("s3blob: archive: %w: %q", domain.ErrUnknownAsset, string(asset))
	}

	from, err := a.log.LastCutoff(ctx, asset)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s cutoff: %w", asset, err)
	}
	if !from.Before(before) {
		return 0, nil
	}

	snaps, err := a.store.ListRange(ctx, asset, from, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s query: %w", asset, err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(snaps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", asset, err)
	}

	path := a.prefix + archivePath(asset, before, a.now())
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", asset, err)
	}

	count := int64(len(snaps))
	if err := a.log.Record(ctx, domain.ArchiveRecord{
		Asset:    asset,
		Path:     path,
		RowCount: count,
		Before:   before,
	}); err != nil {
		// The object exists; the next run re-exports the same range to a new key.
		return count, fmt.Errorf("s3blob: archive %s record: %w", asset, err)
	}
	return count, nil
}

// marshalJSONL serialises items as newline-delimited JSON.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return nil, fmt.Errorf("encode item %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// archivePath builds the object key, partitioned by asset and cutoff month:
//
//	archive/bitcoin/2025-01/20250115T000000Z-1736899200.jsonl
//
// The run time suffix keeps a re-export after a failed Record from
// overwriting the earlier object.
func archivePath(asset domain.Asset, before, runAt time.Time) string {
	before = before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s-%d.jsonl",
		asset, before.Format("2006-01"), before.Format("20060102T150405Z"), runAt.Unix())
}
