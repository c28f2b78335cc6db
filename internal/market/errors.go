package market

import (
	"fmt"
	"time"
)

// BarOrderError reports a violation of the strict bar-ordering precondition.
type BarOrderError struct {
	Index int
	Prev  time.Time
	Curr  time.Time
}

func (e *BarOrderError) Error() string {
	return fmt.Sprintf("bars out of order at index %d: %s followed by %s",
		e.Index, e.Prev.Format(time.RFC3339), e.Curr.Format(time.RFC3339))
}
