package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dealerflow/structure-pipeline/internal/wyckoff"
)

// Memory is an in-process Store used by tests and the dry-run tooling.
type Memory struct {
	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	snapshots map[string]SnapshotRecord
	states    map[string]wyckoff.State

	// Commits counts CommitSymbol calls, letting tests assert that dry
	// runs perform no writes.
	Commits int

	// PingErr, when set, is returned by Ping to simulate an unreachable
	// store.
	PingErr error
}

func NewMemory() *Memory {
	return &Memory{
		locks:     map[string]*sync.Mutex{},
		snapshots: map[string]SnapshotRecord{},
		states:    map[string]wyckoff.State{},
	}
}

func snapshotKey(symbol string, at time.Time) string {
	return symbol + "|" + at.UTC().Format(time.RFC3339)
}

func (m *Memory) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *Memory) Acquire(symbol string) func() {
	m.mu.Lock()
	lock, ok := m.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[symbol] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (m *Memory) RegimeState(ctx context.Context, symbol string) (wyckoff.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.states[symbol]; ok {
		return st, nil
	}
	return wyckoff.NewState(symbol), nil
}

func (m *Memory) CommitSymbol(ctx context.Context, rec SnapshotRecord, state wyckoff.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := snapshotKey(rec.Symbol, rec.SnapshotTime)
	if prev, ok := m.snapshots[key]; ok {
		// Additive semantics: sibling fields survive the upsert.
		rec.Indicators = prev.Indicators
	}
	m.snapshots[key] = rec
	m.states[rec.Symbol] = state
	m.Commits++
	return nil
}

func (m *Memory) Snapshot(ctx context.Context, symbol string, at time.Time) (*SnapshotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.snapshots[snapshotKey(symbol, at)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) SnapshotsAt(ctx context.Context, at time.Time) ([]SnapshotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := at.UTC().Format(time.RFC3339)
	var out []SnapshotRecord
	for _, rec := range m.snapshots {
		if rec.SnapshotTime.UTC().Format(time.RFC3339) == want {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *Memory) Close() error { return nil }
