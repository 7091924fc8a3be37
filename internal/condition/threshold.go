package condition

import (
	"backtest-lab/internal/domain"
	"backtest-lab/internal/marketdata"
)

// Comparison operators
const (
	OpGreater      = "gt"
	OpGreaterEqual = "gte"
	OpLess         = "lt"
	OpLessEqual    = "lte"
)

var opAliases = map[string]string{
	"gt": OpGreater, ">": OpGreater,
	"gte": OpGreaterEqual, ">=": OpGreaterEqual,
	"lt": OpLess, "<": OpLess,
	"lte": OpLessEqual, "<=": OpLessEqual,
}

// Threshold compares one column of the current bar against a constant.
type Threshold struct {
	Field marketdata.Field
	Op    string
	Value float64
}

func (c *Threshold) Type() string { return TypeThreshold }

func (c *Threshold) Evaluate(s *marketdata.Series, i int) bool {
	if !inRange(s, i) {
		return false
	}
	return compare(c.Op, s.Column(c.Field)[i], c.Value)
}

func (c *Threshold) EvaluateVector(s *marketdata.Series) []bool {
	col := s.Column(c.Field)
	out := make([]bool, len(col))
	for i, v := range col {
		out[i] = compare(c.Op, v, c.Value)
	}
	return out
}

func (c *Threshold) Describe() domain.ConditionConfig {
	return domain.ConditionConfig{
		Type: TypeThreshold,
		Parameters: map[string]any{
			"field": string(c.Field),
			"op":    c.Op,
			"value": c.Value,
		},
	}
}

func compare(op string, a, b float64) bool {
	switch op {
	case OpGreater:
		return a > b
	case OpGreaterEqual:
		return a >= b
	case OpLess:
		return a < b
	case OpLessEqual:
		return a <= b
	default:
		return false
	}
}
