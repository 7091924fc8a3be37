package condition

import (
	"backtest-lab/internal/domain"
	"backtest-lab/internal/marketdata"
)

// VolumeFilter requires the bar's volume to be at least MinVolume and, when
// Lookback is positive, at least Multiplier times the mean volume of the
// Lookback bars before it.
type VolumeFilter struct {
	MinVolume  float64
	Lookback   int
	Multiplier float64
}

func (c *VolumeFilter) Type() string { return TypeVolumeFilter }

func (c *VolumeFilter) Evaluate(s *marketdata.Series, i int) bool {
	if !inRange(s, i) || i < c.Lookback {
		return false
	}
	vol := s.Volumes()
	if c.Lookback == 0 {
		return vol[i] >= c.MinVolume
	}
	avg := movingAverage(KindSMA, vol, c.Lookback, i)
	return c.pass(vol[i], avg[i-1])
}

func (c *VolumeFilter) EvaluateVector(s *marketdata.Series) []bool {
	vol := s.Volumes()
	out := make([]bool, len(vol))
	if c.Lookback == 0 {
		for i, v := range vol {
			out[i] = v >= c.MinVolume
		}
		return out
	}

	avg := movingAverage(KindSMA, vol, c.Lookback, len(vol))
	for i := c.Lookback; i < len(vol); i++ {
		out[i] = c.pass(vol[i], avg[i-1])
	}
	return out
}

func (c *VolumeFilter) Describe() domain.ConditionConfig {
	return domain.ConditionConfig{
		Type: TypeVolumeFilter,
		Parameters: map[string]any{
			"min_volume": c.MinVolume,
			"lookback":   c.Lookback,
			"multiplier": c.Multiplier,
		},
	}
}

func (c *VolumeFilter) pass(v, mean float64) bool {
	return v >= c.MinVolume && v >= c.Multiplier*mean
}
