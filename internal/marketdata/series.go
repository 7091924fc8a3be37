// Package marketdata holds the immutable, column-oriented market data series
// shared read-only by every backtest over a dataset.
package marketdata

import (
	"fmt"
	"math"
	"strings"
	"time"

	"backtest-lab/internal/domain"
)

// Field names a numeric column of a series.
type Field string

// Series columns
const (
	FieldOpen          Field = "open"
	FieldHigh          Field = "high"
	FieldLow           Field = "low"
	FieldClose         Field = "close"
	FieldAdjustedClose Field = "adjusted_close"
	FieldVolume        Field = "volume"
)

// ParseField maps a column name to a Field.
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldOpen, FieldHigh, FieldLow, FieldClose, FieldAdjustedClose, FieldVolume:
		return f, nil
	default:
		return "", fmt.Errorf("unknown field %q", s)
	}
}

// InvalidSeriesError reports a dataset that cannot be turned into a series.
// Index is -1 for errors that are not tied to a single bar.
type InvalidSeriesError struct {
	Index  int
	Reason string
}

func (e *InvalidSeriesError) Error() string {
	if e.Index < 0 {
		return "invalid series: " + e.Reason
	}
	return fmt.Sprintf("invalid series at bar %d: %s", e.Index, e.Reason)
}

// Series is an immutable, time-ordered OHLCV dataset.
// Timestamps are strictly increasing. Column slices returned by the accessors
// are shared between callers and must not be modified.
type Series struct {
	timestamps []time.Time
	open       []float64
	high       []float64
	low        []float64
	close      []float64
	adjClose   []float64
	volume     []float64
	dividend   []float64
	split      []float64
}

// NewSeries validates bars and copies them into a new Series.
func NewSeries(bars []domain.Bar) (*Series, error) {
	n := len(bars)
	if n == 0 {
		return nil, &InvalidSeriesError{Index: -1, Reason: "empty series"}
	}

	s := &Series{
		timestamps: make([]time.Time, n),
		open:       make([]float64, n),
		high:       make([]float64, n),
		low:        make([]float64, n),
		close:      make([]float64, n),
		adjClose:   make([]float64, n),
		volume:     make([]float64, n),
		dividend:   make([]float64, n),
		split:      make([]float64, n),
	}

	for i, b := range bars {
		if b.Timestamp.IsZero() {
			return nil, &InvalidSeriesError{Index: i, Reason: "missing timestamp"}
		}
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return nil, &InvalidSeriesError{Index: i, Reason: "timestamps not strictly increasing"}
		}
		if err := checkFinite(b); err != "" {
			return nil, &InvalidSeriesError{Index: i, Reason: err}
		}
		if b.Volume < 0 {
			return nil, &InvalidSeriesError{Index: i, Reason: "negative volume"}
		}

		s.timestamps[i] = b.Timestamp
		s.open[i] = b.Open
		s.high[i] = b.High
		s.low[i] = b.Low
		s.close[i] = b.Close
		s.adjClose[i] = b.AdjustedClose
		s.volume[i] = b.Volume
		s.dividend[i] = b.DividendAmount
		s.split[i] = b.SplitCoefficient
	}

	return s, nil
}

func checkFinite(b domain.Bar) string {
	values := [...]struct {
		name string
		v    float64
	}{
		{"open", b.Open},
		{"high", b.High},
		{"low", b.Low},
		{"close", b.Close},
		{"adjusted_close", b.AdjustedClose},
		{"volume", b.Volume},
		{"dividend_amount", b.DividendAmount},
		{"split_coefficient", b.SplitCoefficient},
	}
	for _, f := range values {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return "non-finite " + f.name
		}
	}
	return ""
}

// Len returns the number of bars.
func (s *Series) Len() int {
	return len(s.timestamps)
}

// At reassembles bar i. It panics if i is out of range.
func (s *Series) At(i int) domain.Bar {
	return domain.Bar{
		Timestamp:        s.timestamps[i],
		Open:             s.open[i],
		High:             s.high[i],
		Low:              s.low[i],
		Close:            s.close[i],
		AdjustedClose:    s.adjClose[i],
		Volume:           s.volume[i],
		DividendAmount:   s.dividend[i],
		SplitCoefficient: s.split[i],
	}
}

// Timestamp returns the time of bar i.
func (s *Series) Timestamp(i int) time.Time {
	return s.timestamps[i]
}

// Timestamps returns the shared timestamp column.
func (s *Series) Timestamps() []time.Time {
	return s.timestamps
}

// Column returns the shared column for f, or nil for an unknown field.
func (s *Series) Column(f Field) []float64 {
	switch f {
	case FieldOpen:
		return s.open
	case FieldHigh:
		return s.high
	case FieldLow:
		return s.low
	case FieldClose:
		return s.close
	case FieldAdjustedClose:
		return s.adjClose
	case FieldVolume:
		return s.volume
	default:
		return nil
	}
}

// Opens returns the open column. The slice is shared and must not be modified.
func (s *Series) Opens() []float64 { return s.open }

// Closes returns the close column. The slice is shared and must not be modified.
func (s *Series) Closes() []float64 { return s.close }

// Volumes returns the volume column. The slice is shared and must not be modified.
func (s *Series) Volumes() []float64 { return s.volume }

// First returns the timestamp of the oldest bar.
func (s *Series) First() time.Time {
	return s.timestamps[0]
}

// Last returns the timestamp of the newest bar.
func (s *Series) Last() time.Time {
	return s.timestamps[len(s.timestamps)-1]
}
