package condition

import (
	"backtest-lab/internal/domain"
	"backtest-lab/internal/marketdata"
)

// Composite combines child conditions with AND or OR. With no children it
// never fires, matching Conjunction.
type Composite struct {
	Op       string // TypeAnd or TypeOr
	Children []Condition
}

func (c *Composite) Type() string { return c.Op }

func (c *Composite) Evaluate(s *marketdata.Series, i int) bool {
	if !inRange(s, i) || len(c.Children) == 0 {
		return false
	}
	for _, child := range c.Children {
		v := child.Evaluate(s, i)
		if c.Op == TypeOr && v {
			return true
		}
		if c.Op == TypeAnd && !v {
			return false
		}
	}
	return c.Op == TypeAnd
}

func (c *Composite) EvaluateVector(s *marketdata.Series) []bool {
	out := make([]bool, s.Len())
	if len(c.Children) == 0 {
		return out
	}
	copy(out, c.Children[0].EvaluateVector(s))
	for _, child := range c.Children[1:] {
		v := child.EvaluateVector(s)
		for i := range out {
			if c.Op == TypeOr {
				out[i] = out[i] || v[i]
			} else {
				out[i] = out[i] && v[i]
			}
		}
	}
	return out
}

func (c *Composite) Describe() domain.ConditionConfig {
	children := make([]domain.ConditionConfig, len(c.Children))
	for i, child := range c.Children {
		children[i] = child.Describe()
	}
	return domain.ConditionConfig{
		Type:       c.Op,
		Parameters: map[string]any{"conditions": children},
	}
}
