// Package export dumps persisted snapshot records as zstd-compressed JSONL
// for archival. One line per record, compacted, in symbol order.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/dealerflow/structure-pipeline/internal/store"
)

// Exporter streams one snapshot time's records into a .jsonl.zst file.
type Exporter struct {
	store  store.Store
	logger *zap.Logger
}

func New(st store.Store, logger *zap.Logger) *Exporter {
	return &Exporter{store: st, logger: logger}
}

// Export writes every record stored at the given snapshot time to path.
// Returns the number of records written; zero records still produces a
// valid empty archive.
func (e *Exporter) Export(ctx context.Context, at time.Time, path string) (int, error) {
	records, err := e.store.SnapshotsAt(ctx, at)
	if err != nil {
		return 0, fmt.Errorf("loading records: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating archive: %w", err)
	}
	defer func() { _ = out.Close() }()

	n, err := e.write(out, records)
	if err != nil {
		return n, err
	}

	e.logger.Info("export complete",
		zap.Time("snapshot_time", at),
		zap.String("path", path),
		zap.Int("records", n),
	)
	return n, nil
}

func (e *Exporter) write(out io.Writer, records []store.SnapshotRecord) (int, error) {
	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("create zstd encoder: %w", err)
	}

	for i, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			_ = enc.Close()
			return i, fmt.Errorf("encoding record %s: %w", rec.Symbol, err)
		}
		if _, err := enc.Write(append(line, '\n')); err != nil {
			_ = enc.Close()
			return i, fmt.Errorf("writing record %s: %w", rec.Symbol, err)
		}
	}

	if err := enc.Close(); err != nil {
		return len(records), fmt.Errorf("flushing archive: %w", err)
	}
	return len(records), nil
}
