package backtest

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned for execution options outside the supported set.
var ErrInvalidRequest = errors.New("invalid backtest request")

// SimulationError reports an internal invariant violation while simulating
// one request. Index is the bar being processed, or -1 before the bar loop.
type SimulationError struct {
	RequestID string
	Index     int
	Reason    string
}

func (e *SimulationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("simulate request %q: %s", e.RequestID, e.Reason)
	}
	return fmt.Sprintf("simulate request %q at bar %d: %s", e.RequestID, e.Index, e.Reason)
}
