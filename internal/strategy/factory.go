package strategy

import (
	"errors"
	"fmt"
	"strings"

	"backtest-lab/internal/condition"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
)

// Builder errors
var (
	ErrUnknownRole = errors.New("unknown condition role")
)

// StrategyBuildError wraps the first failure met while building a request.
// Index is the position of the offending condition in the request.
type StrategyBuildError struct {
	RequestID string
	Index     int
	Err       error
}

func (e *StrategyBuildError) Error() string {
	return fmt.Sprintf("build strategy for request %q: condition %d: %v", e.RequestID, e.Index, e.Err)
}

func (e *StrategyBuildError) Unwrap() error { return e.Err }

// Build resolves every condition config of req and partitions them by role.
// Any failure aborts the build; no partial strategy is returned.
func Build(req domain.BackTestRequest) (*Strategy, error) {
	s := &Strategy{}

	for i, sc := range req.Conditions {
		c, err := condition.FromConfig(sc.Condition)
		if err != nil {
			return nil, &StrategyBuildError{RequestID: req.ID, Index: i, Err: err}
		}

		switch domain.Role(strings.ToLower(string(sc.Role))) {
		case domain.RoleEntry:
			s.entry = append(s.entry, c)
		case domain.RoleExit:
			s.exit = append(s.exit, c)
		default:
			return nil, &StrategyBuildError{
				RequestID: req.ID,
				Index:     i,
				Err:       fmt.Errorf("%w: %q", ErrUnknownRole, sc.Role),
			}
		}
	}

	s.id = idhash.StrategyID(s.Describe())
	return s, nil
}
