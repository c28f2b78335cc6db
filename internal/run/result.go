package run

import (
	"fmt"
	"time"

	"github.com/dealerflow/structure-pipeline/internal/gex"
	"github.com/dealerflow/structure-pipeline/internal/store"
)

// Result is the tally for one run. Records carries the computed snapshot
// record per successful symbol; on a dry run these are the values that would
// have been persisted.
type Result struct {
	TraceID  string
	Mode     Mode
	DryRun   bool
	Total    int
	Success  int
	Degraded int
	Failed   int
	Duration time.Duration
	Errors   []string
	Records  map[string]store.SnapshotRecord
}

// symbolResult is one worker's outcome for one symbol.
type symbolResult struct {
	Symbol string
	Status gex.Status
	Record store.SnapshotRecord
	Err    error
}

func (r *Result) record(sr symbolResult) {
	if sr.Err != nil {
		r.Failed++
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", sr.Symbol, sr.Err))
		return
	}
	if r.Records == nil {
		r.Records = map[string]store.SnapshotRecord{}
	}
	r.Records[sr.Symbol] = sr.Record
	switch sr.Status {
	case gex.StatusFull:
		r.Success++
	case gex.StatusLimited:
		r.Degraded++
	default:
		// INVALID still persisted, counted as success with degraded data.
		r.Degraded++
	}
}

// Summary is the one-line human rendering used by logs and notifications.
func (r *Result) Summary() string {
	return fmt.Sprintf("%d symbols: %d full, %d degraded, %d failed in %s",
		r.Total, r.Success, r.Degraded, r.Failed, r.Duration.Round(time.Millisecond))
}
