package condition

import (
	"backtest-lab/internal/domain"
	"backtest-lab/internal/marketdata"
)

// Crossover directions
const (
	DirectionAbove = "above" // fast crosses from at-or-below to above slow
	DirectionBelow = "below" // fast crosses from at-or-above to below slow
)

// MACrossover fires on the bar where the fast moving average crosses the slow
// one in Direction. It needs both averages on the previous bar, so bars with
// index below Slow are false.
type MACrossover struct {
	Fast      int
	Slow      int
	Kind      string
	Direction string
	Field     marketdata.Field
}

func (c *MACrossover) Type() string { return TypeMACrossover }

// Evaluate recomputes the averages over bars [0, i].
func (c *MACrossover) Evaluate(s *marketdata.Series, i int) bool {
	if !inRange(s, i) || i < c.warmup() {
		return false
	}
	col := s.Column(c.Field)
	fast := movingAverage(c.Kind, col, c.Fast, i+1)
	slow := movingAverage(c.Kind, col, c.Slow, i+1)
	return c.crossed(fast[i-1], slow[i-1], fast[i], slow[i])
}

func (c *MACrossover) EvaluateVector(s *marketdata.Series) []bool {
	n := s.Len()
	out := make([]bool, n)
	col := s.Column(c.Field)
	fast := movingAverage(c.Kind, col, c.Fast, n)
	slow := movingAverage(c.Kind, col, c.Slow, n)
	for i := c.warmup(); i < n; i++ {
		out[i] = c.crossed(fast[i-1], slow[i-1], fast[i], slow[i])
	}
	return out
}

func (c *MACrossover) Describe() domain.ConditionConfig {
	return domain.ConditionConfig{
		Type: TypeMACrossover,
		Parameters: map[string]any{
			"fast":      c.Fast,
			"slow":      c.Slow,
			"kind":      c.Kind,
			"direction": c.Direction,
			"field":     string(c.Field),
		},
	}
}

func (c *MACrossover) warmup() int {
	return max(c.Fast, c.Slow)
}

func (c *MACrossover) crossed(prevFast, prevSlow, fast, slow float64) bool {
	if c.Direction == DirectionBelow {
		return prevFast >= prevSlow && fast < slow
	}
	return prevFast <= prevSlow && fast > slow
}
