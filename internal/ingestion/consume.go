package ingestion

import (
	"context"

	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
)

// Consume feeds events from src to handle, one at a time, until the source
// is exhausted or ctx is done. Handler errors are logged and counted; they
// never stop consumption. Duplicate event ids are skipped.
func Consume(ctx context.Context, src Source, handle Handler, logger *zap.Logger, metrics *observability.Metrics) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	seen := make(map[string]struct{})

	for {
		var ev domain.IngestionCompleted
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok = <-src.Events():
			if !ok {
				return nil
			}
		}

		if _, dup := seen[ev.ID]; dup {
			metrics.RecordIngestionEvent("duplicate")
			logger.Debug("skipping duplicate ingestion event", zap.String("event_id", ev.ID))
			continue
		}
		seen[ev.ID] = struct{}{}

		logger.Info("ingestion completed",
			zap.String("event_id", ev.ID),
			zap.Int("market_count", ev.MarketCount),
			zap.Time("completed_at", ev.CompletedAt),
			zap.Strings("symbols", ev.Symbols),
		)

		if err := handle(ctx, ev); err != nil {
			metrics.RecordIngestionEvent("failed")
			logger.Error("ingestion event handler failed", zap.String("event_id", ev.ID), zap.Error(err))
			continue
		}
		metrics.RecordIngestionEvent("handled")
	}
}
