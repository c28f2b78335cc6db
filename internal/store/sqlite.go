package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/dealerflow/structure-pipeline/internal/wyckoff"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	symbol         TEXT NOT NULL,
	snapshot_time  TEXT NOT NULL,
	dealer_metrics TEXT,
	wyckoff_events TEXT,
	regime         TEXT,
	indicators     TEXT,
	PRIMARY KEY (symbol, snapshot_time)
);

CREATE TABLE IF NOT EXISTS regime_states (
	symbol TEXT PRIMARY KEY,
	state  TEXT NOT NULL
);
`

// Upsert touches only the columns this pipeline owns. Sibling columns such
// as indicators keep whatever another producer wrote there.
const upsertSnapshot = `
INSERT INTO snapshots (symbol, snapshot_time, dealer_metrics, wyckoff_events, regime)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (symbol, snapshot_time) DO UPDATE SET
	dealer_metrics = excluded.dealer_metrics,
	wyckoff_events = excluded.wyckoff_events,
	regime         = excluded.regime
`

const upsertState = `
INSERT INTO regime_states (symbol, state)
VALUES (?, ?)
ON CONFLICT (symbol) DO UPDATE SET state = excluded.state
`

type snapshotRow struct {
	Symbol        string         `db:"symbol"`
	SnapshotTime  string         `db:"snapshot_time"`
	DealerMetrics sql.NullString `db:"dealer_metrics"`
	WyckoffEvents sql.NullString `db:"wyckoff_events"`
	Regime        sql.NullString `db:"regime"`
	Indicators    sql.NullString `db:"indicators"`
}

// SQLite is the production Store. Snapshot times are stored as RFC3339 UTC
// strings so identical records upsert to identical rows.
type SQLite struct {
	db     *sqlx.DB
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func OpenSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_journal=WAL&_busy_timeout=5000&_fk=true")
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing snapshot schema: %w", err)
	}

	logger.Info("snapshot store ready", zap.String("path", path))
	return &SQLite{
		db:     db,
		logger: logger,
		locks:  map[string]*sync.Mutex{},
	}, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Acquire serializes read-modify-write cycles per symbol. Concurrent work on
// distinct symbols proceeds in parallel.
func (s *SQLite) Acquire(symbol string) func() {
	s.mu.Lock()
	lock, ok := s.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[symbol] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (s *SQLite) RegimeState(ctx context.Context, symbol string) (wyckoff.State, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT state FROM regime_states WHERE symbol = ?`, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return wyckoff.NewState(symbol), nil
	}
	if err != nil {
		return wyckoff.State{}, fmt.Errorf("loading regime state for %s: %w", symbol, err)
	}

	var st wyckoff.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return wyckoff.State{}, fmt.Errorf("decoding regime state for %s: %w", symbol, err)
	}
	return st, nil
}

func (s *SQLite) CommitSymbol(ctx context.Context, rec SnapshotRecord, state wyckoff.State) error {
	metrics, err := json.Marshal(rec.DealerMetrics)
	if err != nil {
		return fmt.Errorf("encoding dealer metrics: %w", err)
	}
	events, err := json.Marshal(rec.Events)
	if err != nil {
		return fmt.Errorf("encoding events: %w", err)
	}
	regime, err := json.Marshal(rec.Regime)
	if err != nil {
		return fmt.Errorf("encoding regime: %w", err)
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding regime state: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning commit for %s: %w", rec.Symbol, err)
	}
	defer func() { _ = tx.Rollback() }()

	at := rec.SnapshotTime.UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, upsertSnapshot,
		rec.Symbol, at, string(metrics), string(events), string(regime)); err != nil {
		return fmt.Errorf("upserting snapshot %s@%s: %w", rec.Symbol, at, err)
	}
	if _, err := tx.ExecContext(ctx, upsertState, rec.Symbol, string(stateJSON)); err != nil {
		return fmt.Errorf("saving regime state for %s: %w", rec.Symbol, err)
	}

	return tx.Commit()
}

func (s *SQLite) Snapshot(ctx context.Context, symbol string, at time.Time) (*SnapshotRecord, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM snapshots WHERE symbol = ? AND snapshot_time = ?`,
		symbol, at.UTC().Format(time.RFC3339))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", symbol, err)
	}

	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLite) SnapshotsAt(ctx context.Context, at time.Time) ([]SnapshotRecord, error) {
	var rows []snapshotRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM snapshots WHERE snapshot_time = ? ORDER BY symbol`,
		at.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	out := make([]SnapshotRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (r snapshotRow) record() (SnapshotRecord, error) {
	at, err := time.Parse(time.RFC3339, r.SnapshotTime)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("parsing snapshot time %q: %w", r.SnapshotTime, err)
	}

	rec := SnapshotRecord{Symbol: r.Symbol, SnapshotTime: at}
	if r.DealerMetrics.Valid {
		if err := json.Unmarshal([]byte(r.DealerMetrics.String), &rec.DealerMetrics); err != nil {
			return SnapshotRecord{}, fmt.Errorf("decoding dealer metrics for %s: %w", r.Symbol, err)
		}
	}
	if r.WyckoffEvents.Valid {
		if err := json.Unmarshal([]byte(r.WyckoffEvents.String), &rec.Events); err != nil {
			return SnapshotRecord{}, fmt.Errorf("decoding events for %s: %w", r.Symbol, err)
		}
	}
	if r.Regime.Valid {
		if err := json.Unmarshal([]byte(r.Regime.String), &rec.Regime); err != nil {
			return SnapshotRecord{}, fmt.Errorf("decoding regime for %s: %w", r.Symbol, err)
		}
	}
	if r.Indicators.Valid {
		rec.Indicators = json.RawMessage(r.Indicators.String)
	}
	return rec, nil
}
