package domain

import "time"

// Bar is one OHLCV observation of a market data series.
// Bars are value types and are never mutated after parsing.
type Bar struct {
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
	Open             float64   `json:"open" yaml:"open"`
	High             float64   `json:"high" yaml:"high"`
	Low              float64   `json:"low" yaml:"low"`
	Close            float64   `json:"close" yaml:"close"`
	AdjustedClose    float64   `json:"adjusted_close" yaml:"adjusted_close"`
	Volume           float64   `json:"volume" yaml:"volume"`
	DividendAmount   float64   `json:"dividend_amount" yaml:"dividend_amount"`
	SplitCoefficient float64   `json:"split_coefficient" yaml:"split_coefficient"`
}
