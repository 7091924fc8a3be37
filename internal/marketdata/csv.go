package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"backtest-lab/internal/domain"
)

// ErrMissingColumn is returned when a required CSV column is absent.
var ErrMissingColumn = errors.New("missing required column")

// ParseError locates a malformed CSV cell. Line is 1-based and counts the header.
type ParseError struct {
	Line   int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("csv line %d column %s: %v", e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// header aliases accepted for each logical column
var columnAliases = map[string]string{
	"timestamp":         "timestamp",
	"date":              "timestamp",
	"time":              "timestamp",
	"open":              "open",
	"high":              "high",
	"low":               "low",
	"close":             "close",
	"adjusted_close":    "adjusted_close",
	"adj_close":         "adjusted_close",
	"adjusted close":    "adjusted_close",
	"volume":            "volume",
	"dividend_amount":   "dividend_amount",
	"dividend":          "dividend_amount",
	"split_coefficient": "split_coefficient",
	"split":             "split_coefficient",
}

var requiredColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

var timestampLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseCSV reads daily-adjusted OHLCV rows with a header line.
// Rows may be newest-first; the result is always in chronological order.
// Missing optional columns default to adjusted_close = close,
// split_coefficient = 1 and dividend_amount = 0.
func ParseCSV(r io.Reader) ([]domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Line: 1, Column: "header", Err: io.ErrUnexpectedEOF}
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if canonical, ok := columnAliases[name]; ok {
			cols[canonical] = i
		}
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, &ParseError{Line: 1, Column: c, Err: ErrMissingColumn}
		}
	}

	var bars []domain.Bar
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		bar, err := parseRecord(record, cols, line)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}

	if len(bars) > 1 && bars[0].Timestamp.After(bars[len(bars)-1].Timestamp) {
		for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
			bars[i], bars[j] = bars[j], bars[i]
		}
	}

	return bars, nil
}

func parseRecord(record []string, cols map[string]int, line int) (domain.Bar, error) {
	var bar domain.Bar

	ts, err := parseTimestamp(cell(record, cols["timestamp"]))
	if err != nil {
		return bar, &ParseError{Line: line, Column: "timestamp", Err: err}
	}
	bar.Timestamp = ts

	num := func(name string, dst *float64) error {
		v, err := strconv.ParseFloat(cell(record, cols[name]), 64)
		if err != nil {
			return &ParseError{Line: line, Column: name, Err: err}
		}
		*dst = v
		return nil
	}

	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
		{"volume", &bar.Volume},
	} {
		if err := num(f.name, f.dst); err != nil {
			return bar, err
		}
	}

	bar.AdjustedClose = bar.Close
	bar.SplitCoefficient = 1
	if _, ok := cols["adjusted_close"]; ok {
		if err := num("adjusted_close", &bar.AdjustedClose); err != nil {
			return bar, err
		}
	}
	if _, ok := cols["dividend_amount"]; ok {
		if err := num("dividend_amount", &bar.DividendAmount); err != nil {
			return bar, err
		}
	}
	if _, ok := cols["split_coefficient"]; ok {
		if err := num("split_coefficient", &bar.SplitCoefficient); err != nil {
			return bar, err
		}
	}

	return bar, nil
}

func cell(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
