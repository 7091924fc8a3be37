// Package verification replays persisted backtest results against stored
// bars and reports every field where the replay diverges.
package verification

import (
	"context"
	"fmt"
	"math"
	"time"

	"backtest-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string `json:"field"`
	Expected any    `json:"expected"` // stored value
	Actual   any    `json:"actual"`   // replayed value
}

// VerificationResult contains the result of verifying a single result.
type VerificationResult struct {
	ResultID    string            `json:"result_id"`
	RequestID   string            `json:"request_id"`
	Match       bool              `json:"match"`
	Divergences []FieldDivergence `json:"divergences,omitempty"`
}

// VerificationReport contains results for one symbol's stored dataset.
type VerificationReport struct {
	Symbol    string               `json:"symbol"`
	DatasetID string               `json:"dataset_id"`
	Total     int                  `json:"total"`     // requests considered
	Matched   int                  `json:"matched"`   // replayed identically
	Divergent int                  `json:"divergent"` // replay differs or failed
	Missing   int                  `json:"missing"`   // never persisted
	Results   []VerificationResult `json:"results"`
}

// Verifier replays stored results.
type Verifier interface {
	// VerifySymbol rebuilds the dataset for symbol from stored bars, re-runs
	// every known request and compares against the persisted results.
	VerifySymbol(ctx context.Context, symbol string) (*VerificationReport, error)
}

// CompareResults compares two results and returns divergences.
// Uses FloatTolerance for float64 comparisons. Request naming is ignored.
func CompareResults(stored, replayed *domain.BackTestResult) []FieldDivergence {
	var d divergences

	d.eqString("ResultID", stored.ResultID, replayed.ResultID)
	d.eqString("DatasetID", stored.DatasetID, replayed.DatasetID)
	d.eqString("StrategyID", stored.StrategyID, replayed.StrategyID)
	d.eqInt("Bars", stored.Bars, replayed.Bars)

	if !d.eqInt("Trades", len(stored.Trades), len(replayed.Trades)) {
		for i := range stored.Trades {
			compareTrade(&d, fmt.Sprintf("Trades[%d].", i), stored.Trades[i], replayed.Trades[i])
		}
	}

	if !d.eqInt("Discarded", len(stored.Discarded), len(replayed.Discarded)) {
		for i := range stored.Discarded {
			p := fmt.Sprintf("Discarded[%d].", i)
			d.eqInt(p+"Index", stored.Discarded[i].Index, replayed.Discarded[i].Index)
			d.eqString(p+"Reason", stored.Discarded[i].Reason, replayed.Discarded[i].Reason)
		}
	}

	s, r := stored.Summary, replayed.Summary
	d.eqInt("Summary.TotalTrades", s.TotalTrades, r.TotalTrades)
	d.eqInt("Summary.Wins", s.Wins, r.Wins)
	d.eqInt("Summary.Losses", s.Losses, r.Losses)
	d.eqFloat("Summary.TotalPnL", s.TotalPnL, r.TotalPnL)
	d.eqFloat("Summary.WinRate", s.WinRate, r.WinRate)
	d.eqFloat("Summary.MaxDrawdown", s.MaxDrawdown, r.MaxDrawdown)
	d.eqFloat("Summary.ProfitFactor", s.ProfitFactor, r.ProfitFactor)
	d.eqFloat("Summary.FinalEquity", s.FinalEquity, r.FinalEquity)

	return d
}

func compareTrade(d *divergences, p string, stored, replayed domain.Trade) {
	d.eqInt(p+"EntryIndex", stored.EntryIndex, replayed.EntryIndex)
	d.eqInt(p+"ExitIndex", stored.ExitIndex, replayed.ExitIndex)
	d.eqTime(p+"EntryDate", stored.EntryDate, replayed.EntryDate)
	d.eqTime(p+"ExitDate", stored.ExitDate, replayed.ExitDate)
	d.eqFloat(p+"EntryPrice", stored.EntryPrice, replayed.EntryPrice)
	d.eqFloat(p+"ExitPrice", stored.ExitPrice, replayed.ExitPrice)
	d.eqFloat(p+"PositionSize", stored.PositionSize, replayed.PositionSize)
	d.eqFloat(p+"PnL", stored.PnL, replayed.PnL)
	d.eqString(p+"ExitReason", stored.ExitReason, replayed.ExitReason)
}

type divergences []FieldDivergence

func (d *divergences) add(field string, expected, actual any) {
	*d = append(*d, FieldDivergence{Field: field, Expected: expected, Actual: actual})
}

func (d *divergences) eqString(field, expected, actual string) {
	if expected != actual {
		d.add(field, expected, actual)
	}
}

// eqInt records a mismatch and reports whether there was one.
func (d *divergences) eqInt(field string, expected, actual int) bool {
	if expected != actual {
		d.add(field, expected, actual)
		return true
	}
	return false
}

func (d *divergences) eqFloat(field string, expected, actual float64) {
	if !floatEquals(expected, actual) {
		d.add(field, expected, actual)
	}
}

func (d *divergences) eqTime(field string, expected, actual time.Time) {
	if !expected.Equal(actual) {
		d.add(field, expected, actual)
	}
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
