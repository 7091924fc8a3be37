// Package condition implements the closed set of trading predicates that
// strategies are composed from. Every condition can be evaluated at a single
// bar or as a boolean vector over a whole series, and both paths agree.
package condition

import (
	"backtest-lab/internal/domain"
	"backtest-lab/internal/marketdata"
)

// Condition types
const (
	TypeThreshold    = "threshold"
	TypeMACrossover  = "ma_crossover"
	TypeVolumeFilter = "volume_filter"
	TypeAnd          = "and"
	TypeOr           = "or"
)

// Condition is a pure predicate over a market data series.
type Condition interface {
	// Type returns the config type name.
	Type() string

	// Evaluate reports whether the condition holds at bar i.
	// Bars whose lookback window starts before index 0 evaluate to false,
	// as does any i outside the series.
	Evaluate(s *marketdata.Series, i int) bool

	// EvaluateVector returns one value per bar, equal to Evaluate(s, i).
	EvaluateVector(s *marketdata.Series) []bool

	// Describe returns the canonical config the condition was built from.
	Describe() domain.ConditionConfig
}

// Conjunction returns the element-wise AND of conds over s.
// An empty set yields an all-false vector.
func Conjunction(s *marketdata.Series, conds []Condition) []bool {
	out := make([]bool, s.Len())
	if len(conds) == 0 {
		return out
	}

	copy(out, conds[0].EvaluateVector(s))
	for _, c := range conds[1:] {
		v := c.EvaluateVector(s)
		for i := range out {
			out[i] = out[i] && v[i]
		}
	}
	return out
}

func inRange(s *marketdata.Series, i int) bool {
	return i >= 0 && i < s.Len()
}
