package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/orchestrator"
	"backtest-lab/internal/storage/memory"
)

func testBars(closes ...float64) []domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Timestamp:        start.AddDate(0, 0, i),
			Open:             c,
			High:             c,
			Low:              c,
			Close:            c,
			AdjustedClose:    c,
			Volume:           1000,
			SplitCoefficient: 1,
		}
	}
	return bars
}

func testRequest(id string, entryAbove, exitBelow float64) domain.BackTestRequest {
	return domain.BackTestRequest{
		ID: id,
		Conditions: []domain.StrategyCondition{
			{Role: domain.RoleEntry, Condition: domain.ConditionConfig{Type: "threshold", Parameters: map[string]any{"op": "gt", "value": entryAbove}}},
			{Role: domain.RoleExit, Condition: domain.ConditionConfig{Type: "threshold", Parameters: map[string]any{"op": "lt", "value": exitBelow}}},
		},
	}
}

// setup stores bars for AAPL and persists results for the given requests.
func setup(t *testing.T, persisted ...domain.BackTestRequest) (*memory.BarStore, *memory.ResultStore) {
	t.Helper()
	ctx := context.Background()

	bars := memory.NewBarStore()
	data := testBars(10, 12, 13, 10, 9, 14, 15)
	if err := bars.InsertBulk(ctx, "AAPL", data); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	results := memory.NewResultStore()
	orch := orchestrator.New(orchestrator.Options{ResultStore: results})
	outcomes, err := orch.RunBars(ctx, idhash.DatasetIDFromBars("AAPL", data), data, persisted)
	if err != nil {
		t.Fatalf("RunBars failed: %v", err)
	}
	for _, out := range outcomes {
		if !out.OK() {
			t.Fatalf("request %s failed: %v", out.RequestID, out.Err)
		}
	}
	return bars, results
}

func TestVerifySymbol_AllMatch(t *testing.T) {
	reqs := []domain.BackTestRequest{testRequest("a", 11, 11), testRequest("b", 12.5, 9.5)}
	bars, results := setup(t, reqs...)

	v := NewReplayVerifier(ReplayVerifierOptions{BarStore: bars, ResultStore: results, Requests: reqs})
	report, err := v.VerifySymbol(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("VerifySymbol failed: %v", err)
	}

	if report.Total != 2 || report.Matched != 2 || report.Divergent != 0 || report.Missing != 0 {
		t.Errorf("unexpected counts: %+v", report)
	}
	for _, r := range report.Results {
		if !r.Match {
			t.Errorf("result %s diverged: %+v", r.RequestID, r.Divergences)
		}
	}
}

func TestVerifySymbol_Missing(t *testing.T) {
	stored := testRequest("a", 11, 11)
	bars, results := setup(t, stored)

	reqs := []domain.BackTestRequest{stored, testRequest("never-run", 11, 11)}
	v := NewReplayVerifier(ReplayVerifierOptions{BarStore: bars, ResultStore: results, Requests: reqs})
	report, err := v.VerifySymbol(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("VerifySymbol failed: %v", err)
	}

	if report.Missing != 1 || report.Matched != 1 {
		t.Errorf("expected 1 missing and 1 matched, got %+v", report)
	}
	if len(report.Results) != 1 {
		t.Errorf("missing results should not be listed, got %d", len(report.Results))
	}
}

func TestVerifySymbol_Divergent(t *testing.T) {
	ctx := context.Background()
	req := testRequest("a", 11, 11)
	bars, results := setup(t, req)

	stored, err := results.GetAll(ctx)
	if err != nil || len(stored) != 1 {
		t.Fatalf("GetAll: %v, %d results", err, len(stored))
	}

	// Rewrite the stored result with a tampered pnl.
	tampered := *stored[0]
	tampered.Trades = append([]domain.Trade(nil), stored[0].Trades...)
	tampered.Trades[0].PnL += 1
	tampered.Summary.TotalPnL += 1

	forged := memory.NewResultStore()
	if err := forged.Insert(ctx, &tampered); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	v := NewReplayVerifier(ReplayVerifierOptions{BarStore: bars, ResultStore: forged, Requests: []domain.BackTestRequest{req}})
	report, err := v.VerifySymbol(ctx, "AAPL")
	if err != nil {
		t.Fatalf("VerifySymbol failed: %v", err)
	}

	if report.Divergent != 1 {
		t.Fatalf("expected 1 divergent, got %+v", report)
	}
	fields := map[string]bool{}
	for _, d := range report.Results[0].Divergences {
		fields[d.Field] = true
	}
	if !fields["Trades[0].PnL"] || !fields["Summary.TotalPnL"] {
		t.Errorf("expected pnl divergences, got %+v", report.Results[0].Divergences)
	}
}

func TestVerifySymbol_NoBars(t *testing.T) {
	v := NewReplayVerifier(ReplayVerifierOptions{
		BarStore:    memory.NewBarStore(),
		ResultStore: memory.NewResultStore(),
	})

	_, err := v.VerifySymbol(context.Background(), "NONE")
	if !errors.Is(err, ErrNoBars) {
		t.Errorf("expected ErrNoBars, got %v", err)
	}
}

func TestCompareResults_TradeCountMismatch(t *testing.T) {
	stored := &domain.BackTestResult{StrategyID: "s", Trades: []domain.Trade{{PnL: 1}}}
	replayed := &domain.BackTestResult{StrategyID: "s"}

	divs := CompareResults(stored, replayed)
	if len(divs) != 1 || divs[0].Field != "Trades" {
		t.Errorf("expected only a Trades count divergence, got %+v", divs)
	}
}

func TestCompareResults_WithinTolerance(t *testing.T) {
	stored := &domain.BackTestResult{Summary: domain.Summary{TotalPnL: 1.0}}
	replayed := &domain.BackTestResult{Summary: domain.Summary{TotalPnL: 1.0 + FloatTolerance/2}}

	if divs := CompareResults(stored, replayed); len(divs) != 0 {
		t.Errorf("expected no divergences, got %+v", divs)
	}
}

func TestCompareResults_IgnoresName(t *testing.T) {
	stored := &domain.BackTestResult{RequestID: "a", Name: "old"}
	replayed := &domain.BackTestResult{RequestID: "a", Name: "new"}

	if divs := CompareResults(stored, replayed); len(divs) != 0 {
		t.Errorf("expected no divergences, got %+v", divs)
	}
}
