package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/storage"
)

// WarmStarter re-runs a fixed request set over stored bars whenever an
// ingestion batch completes.
type WarmStarter struct {
	orch     *Orchestrator
	bars     storage.BarStore
	requests []domain.BackTestRequest
	logger   *zap.Logger

	// current maps each symbol to the dataset id of its latest run so the
	// cached series it replaces can be evicted.
	mu      sync.Mutex
	current map[string]string

	// OnOutcomes, when set, receives every symbol's outcomes.
	OnOutcomes func(symbol, datasetID string, outcomes []Outcome)
}

// NewWarmStarter creates a WarmStarter.
func NewWarmStarter(orch *Orchestrator, bars storage.BarStore, requests []domain.BackTestRequest, logger *zap.Logger) *WarmStarter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WarmStarter{
		orch:     orch,
		bars:     bars,
		requests: requests,
		logger:   logger.Named("warmstart"),
		current:  make(map[string]string),
	}
}

// Handle runs the request set for every symbol in ev, or for every stored
// symbol when ev names none. Symbols are processed sequentially; each one
// fans out through the orchestrator. Per-symbol failures are joined.
func (w *WarmStarter) Handle(ctx context.Context, ev domain.IngestionCompleted) error {
	if len(w.requests) == 0 {
		return nil
	}

	symbols := ev.Symbols
	if len(symbols) == 0 {
		var err error
		symbols, err = w.bars.Symbols(ctx)
		if err != nil {
			return fmt.Errorf("list symbols: %w", err)
		}
	}

	var errs []error
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.runSymbol(ctx, ev.ID, symbol); err != nil {
			errs = append(errs, fmt.Errorf("symbol %s: %w", symbol, err))
		}
	}
	return errors.Join(errs...)
}

func (w *WarmStarter) runSymbol(ctx context.Context, eventID, symbol string) error {
	bars, err := w.bars.GetBySymbol(ctx, symbol)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	if len(bars) == 0 {
		w.logger.Warn("no stored bars for symbol", zap.String("event_id", eventID), zap.String("symbol", symbol))
		return nil
	}

	datasetID := idhash.DatasetIDFromBars(symbol, bars)
	outcomes, err := w.orch.RunBars(ctx, datasetID, bars, w.requests)
	if err != nil {
		return err
	}

	w.mu.Lock()
	previous := w.current[symbol]
	w.current[symbol] = datasetID
	w.mu.Unlock()
	if previous != datasetID {
		w.orch.EvictSeries(ctx, previous)
	}

	var failed int
	for _, out := range outcomes {
		if !out.OK() {
			failed++
		}
	}
	w.logger.Info("warm start finished",
		zap.String("event_id", eventID),
		zap.String("symbol", symbol),
		zap.String("dataset_id", datasetID),
		zap.Int("bars", len(bars)),
		zap.Int("requests", len(outcomes)),
		zap.Int("failed", failed),
	)

	if w.OnOutcomes != nil {
		w.OnOutcomes(symbol, datasetID, outcomes)
	}
	return nil
}
