package reporting

import (
	"context"
	"sort"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/metrics"
	"backtest-lab/internal/orchestrator"
	"backtest-lab/internal/storage"
)

// Generator produces reports from orchestration outcomes or stored results.
type Generator struct {
	now func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator() *Generator {
	return &Generator{
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// FromOutcomes builds a single-dataset report. Failed outcomes are listed
// in input order after the ranked results.
func (g *Generator) FromOutcomes(datasetID string, outcomes []orchestrator.Outcome) *Report {
	var results []*domain.BackTestResult
	var failures []FailureRow
	for _, out := range outcomes {
		if out.OK() {
			results = append(results, out.Result)
			continue
		}
		failures = append(failures, FailureRow{
			Index:     out.Index,
			RequestID: out.RequestID,
			Error:     out.Err.Error(),
		})
	}

	section := buildSection(datasetID, results)
	section.Failures = failures
	return &Report{GeneratedAt: g.now(), Datasets: []DatasetSection{section}}
}

// FromStore builds a report over persisted results: one dataset when
// datasetID is set, otherwise every dataset in id order.
func (g *Generator) FromStore(ctx context.Context, store storage.ResultStore, datasetID string) (*Report, error) {
	var (
		results []*domain.BackTestResult
		err     error
	)
	if datasetID != "" {
		results, err = store.GetByDataset(ctx, datasetID)
	} else {
		results, err = store.GetAll(ctx)
	}
	if err != nil {
		return nil, err
	}

	byDataset := make(map[string][]*domain.BackTestResult)
	for _, r := range results {
		byDataset[r.DatasetID] = append(byDataset[r.DatasetID], r)
	}
	ids := make([]string, 0, len(byDataset))
	for id := range byDataset {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report := &Report{GeneratedAt: g.now()}
	for _, id := range ids {
		report.Datasets = append(report.Datasets, buildSection(id, byDataset[id]))
	}
	return report, nil
}

func buildSection(datasetID string, results []*domain.BackTestResult) DatasetSection {
	section := DatasetSection{DatasetID: datasetID}

	used := make([]bool, len(results))
	for _, rank := range metrics.Rank(results) {
		r := claim(results, used, rank)
		if r == nil {
			continue
		}
		if r.Bars > section.Bars {
			section.Bars = r.Bars
		}
		section.Rows = append(section.Rows, ResultRow{
			Rank:       rank.Rank,
			RequestID:  r.RequestID,
			Name:       r.Name,
			ResultID:   r.ResultID,
			StrategyID: r.StrategyID,
			Summary:    r.Summary,
			Trades:     r.Trades,
			Discarded:  len(r.Discarded),
		})
	}
	return section
}

// claim returns the first unused result matching a ranking. Stored results
// may repeat a request id under different fingerprints, so the summary is
// compared as well.
func claim(results []*domain.BackTestResult, used []bool, rank metrics.Ranking) *domain.BackTestResult {
	for i, r := range results {
		if used[i] || r == nil || r.RequestID != rank.RequestID || r.Summary != rank.Summary {
			continue
		}
		used[i] = true
		return r
	}
	for i, r := range results {
		if !used[i] && r != nil && r.RequestID == rank.RequestID {
			used[i] = true
			return r
		}
	}
	return nil
}
