package export

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/dealerflow/structure-pipeline/internal/gex"
	"github.com/dealerflow/structure-pipeline/internal/store"
	"github.com/dealerflow/structure-pipeline/internal/wyckoff"
)

func seedRecord(t *testing.T, mem *store.Memory, symbol string, at time.Time) {
	t.Helper()

	net := 140.0
	rec := store.SnapshotRecord{
		Symbol:       symbol,
		SnapshotTime: at,
		DealerMetrics: gex.DealerMetrics{
			Symbol:       symbol,
			SnapshotTime: at,
			GexNet:       &net,
			Position:     gex.PositionLongGamma,
			Confidence:   gex.ConfidenceMedium,
			Status:       gex.StatusLimited,
		},
		Events: []wyckoff.Event{},
		Regime: wyckoff.NewState(symbol),
	}
	if err := mem.CommitSymbol(context.Background(), rec, wyckoff.NewState(symbol)); err != nil {
		t.Fatalf("seeding record: %v", err)
	}
}

func readArchive(t *testing.T, path string) []store.SnapshotRecord {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer func() { _ = f.Close() }()

	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("creating decoder: %v", err)
	}
	defer dec.Close()

	var records []store.SnapshotRecord
	scanner := bufio.NewScanner(dec)
	for scanner.Scan() {
		var rec store.SnapshotRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decoding line: %v", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanning archive: %v", err)
	}
	return records
}

func TestExportRoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	seedRecord(t, mem, "SPY", at)
	seedRecord(t, mem, "QQQ", at)
	// A record at another time must not be exported.
	seedRecord(t, mem, "SPY", at.Add(24*time.Hour))

	path := filepath.Join(t.TempDir(), "2025-06-02.jsonl.zst")
	exporter := New(mem, zap.NewNop())

	n, err := exporter.Export(context.Background(), at, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 records, got %d", n)
	}

	records := readArchive(t, path)
	if len(records) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(records))
	}
	if records[0].Symbol != "QQQ" || records[1].Symbol != "SPY" {
		t.Errorf("expected symbol order [QQQ SPY], got [%s %s]", records[0].Symbol, records[1].Symbol)
	}
	if records[1].DealerMetrics.GexNet == nil || *records[1].DealerMetrics.GexNet != 140.0 {
		t.Errorf("round trip lost gex_net: %+v", records[1].DealerMetrics)
	}
}

func TestExportEmptyDayIsValidArchive(t *testing.T) {
	mem := store.NewMemory()
	path := filepath.Join(t.TempDir(), "empty.jsonl.zst")
	exporter := New(mem, zap.NewNop())

	n, err := exporter.Export(context.Background(), time.Now(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 records, got %d", n)
	}

	if records := readArchive(t, path); len(records) != 0 {
		t.Errorf("expected empty archive, got %d records", len(records))
	}
}
