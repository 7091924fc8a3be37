// Package strategy compiles backtest requests into executable strategies:
// an entry condition set and an exit condition set, each evaluated as a
// conjunction over a market data series.
package strategy

import (
	"backtest-lab/internal/condition"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/marketdata"
)

// Strategy is an immutable pair of entry and exit condition sets.
// It is built per request and safe for concurrent use.
type Strategy struct {
	id    string
	entry []condition.Condition
	exit  []condition.Condition
}

// ID returns the strategy identifier (a hash of its canonical conditions).
func (s *Strategy) ID() string {
	return s.id
}

// EntrySignals returns the AND of all entry conditions per bar.
// A strategy without entry conditions never enters.
func (s *Strategy) EntrySignals(series *marketdata.Series) []bool {
	return condition.Conjunction(series, s.entry)
}

// ExitSignals returns the AND of all exit conditions per bar.
// A strategy without exit conditions only leaves positions through risk
// rules or end of data.
func (s *Strategy) ExitSignals(series *marketdata.Series) []bool {
	return condition.Conjunction(series, s.exit)
}

// EntryConditions returns the number of entry conditions.
func (s *Strategy) EntryConditions() int { return len(s.entry) }

// ExitConditions returns the number of exit conditions.
func (s *Strategy) ExitConditions() int { return len(s.exit) }

// Describe returns the canonical role-tagged configs, entries first.
func (s *Strategy) Describe() []domain.StrategyCondition {
	out := make([]domain.StrategyCondition, 0, len(s.entry)+len(s.exit))
	for _, c := range s.entry {
		out = append(out, domain.StrategyCondition{Role: domain.RoleEntry, Condition: c.Describe()})
	}
	for _, c := range s.exit {
		out = append(out, domain.StrategyCondition{Role: domain.RoleExit, Condition: c.Describe()})
	}
	return out
}
