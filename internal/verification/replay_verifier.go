package verification

import (
	"context"
	"errors"
	"fmt"

	"backtest-lab/internal/backtest"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/marketdata"
	"backtest-lab/internal/storage"
)

// ErrNoBars is returned when a symbol has no stored bars.
var ErrNoBars = errors.New("no stored bars")

// ReplayVerifier implements Verifier over stored bars and results.
type ReplayVerifier struct {
	barStore    storage.BarStore
	resultStore storage.ResultStore
	service     *backtest.Service

	// requests are the request definitions results were produced from.
	// Stored results carry only the request id.
	requests []domain.BackTestRequest
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	BarStore    storage.BarStore
	ResultStore storage.ResultStore
	Requests    []domain.BackTestRequest
}

// NewReplayVerifier creates a new ReplayVerifier. Replays bypass every
// cache.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		barStore:    opts.BarStore,
		resultStore: opts.ResultStore,
		service:     backtest.NewService(nil),
		requests:    opts.Requests,
	}
}

var _ Verifier = (*ReplayVerifier)(nil)

// VerifySymbol replays every request over the symbol's stored bars.
// Requests without a persisted result are counted as missing.
func (v *ReplayVerifier) VerifySymbol(ctx context.Context, symbol string) (*VerificationReport, error) {
	bars, err := v.barStore.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("load bars for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoBars, symbol)
	}

	series, err := marketdata.NewSeries(bars)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		Symbol:    symbol,
		DatasetID: idhash.DatasetIDFromBars(symbol, bars),
		Results:   make([]VerificationResult, 0, len(v.requests)),
	}

	for _, req := range v.requests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Total++

		resultID := idhash.ComputeResultID(report.DatasetID, req.ID, idhash.RequestFingerprint(req))
		stored, err := v.resultStore.GetByID(ctx, resultID)
		if errors.Is(err, storage.ErrNotFound) {
			report.Missing++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load result %s: %w", resultID, err)
		}

		result := VerificationResult{ResultID: resultID, RequestID: req.ID}

		replayed, err := v.service.Run(ctx, series, req)
		if err != nil {
			// Record error as divergence
			result.Divergences = []FieldDivergence{{Field: "Error", Expected: nil, Actual: err.Error()}}
		} else {
			replayed.DatasetID = report.DatasetID
			replayed.ResultID = resultID
			result.Divergences = CompareResults(stored, replayed)
		}

		result.Match = len(result.Divergences) == 0
		if result.Match {
			report.Matched++
		} else {
			report.Divergent++
		}
		report.Results = append(report.Results, result)
	}

	return report, nil
}
