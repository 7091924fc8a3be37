// Package reporting renders backtest outcomes as text, Markdown, CSV or JSON.
package reporting

import (
	"time"

	"backtest-lab/internal/domain"
)

// Report is a render-ready view of one or more datasets' results.
type Report struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Datasets    []DatasetSection `json:"datasets"`
}

// DatasetSection holds every result computed over one dataset.
type DatasetSection struct {
	DatasetID string       `json:"dataset_id"`
	Bars      int          `json:"bars"`
	Rows      []ResultRow  `json:"results"` // ranked best first
	Failures  []FailureRow `json:"failures,omitempty"`
}

// ResultRow is one ranked result.
type ResultRow struct {
	Rank       int            `json:"rank"`
	RequestID  string         `json:"request_id"`
	Name       string         `json:"name,omitempty"`
	ResultID   string         `json:"result_id"`
	StrategyID string         `json:"strategy_id"`
	Summary    domain.Summary `json:"summary"`
	Trades     []domain.Trade `json:"trades"`
	Discarded  int            `json:"discarded"`
}

// FailureRow records a request that produced no result.
type FailureRow struct {
	Index     int    `json:"index"`
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

// TotalTrades sums trades across every row in the report.
func (r *Report) TotalTrades() int {
	total := 0
	for _, ds := range r.Datasets {
		for _, row := range ds.Rows {
			total += row.Summary.TotalTrades
		}
	}
	return total
}
