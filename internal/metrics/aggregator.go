package metrics

import (
	"sort"

	"backtest-lab/internal/domain"
)

// Ranking is one row of a cross-strategy comparison over a dataset.
type Ranking struct {
	Rank      int
	RequestID string
	Name      string
	Summary   domain.Summary
}

// Rank orders results by total pnl DESC, then max drawdown ASC, then
// request id ASC so ties are deterministic. Nil results are skipped.
func Rank(results []*domain.BackTestResult) []Ranking {
	rows := make([]Ranking, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		rows = append(rows, Ranking{RequestID: r.RequestID, Name: r.Name, Summary: r.Summary})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Summary, rows[j].Summary
		if a.TotalPnL != b.TotalPnL {
			return a.TotalPnL > b.TotalPnL
		}
		if a.MaxDrawdown != b.MaxDrawdown {
			return a.MaxDrawdown < b.MaxDrawdown
		}
		return rows[i].RequestID < rows[j].RequestID
	})

	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
