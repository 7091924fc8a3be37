package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/storage"
	"backtest-lab/internal/storage/postgres"
)

func createTestResult(resultID, datasetID, requestID string) *domain.BackTestResult {
	entry := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	exit := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	return &domain.BackTestResult{
		ResultID:   resultID,
		RequestID:  requestID,
		Name:       "crossover",
		DatasetID:  datasetID,
		StrategyID: "abc123",
		Bars:       10,
		Trades: []domain.Trade{
			{
				EntryIndex: 2, ExitIndex: 4, EntryDate: entry, ExitDate: exit,
				EntryPrice: 10, ExitPrice: 12, PositionSize: 1, PnL: 2, ReturnPct: 0.2,
				ExitReason: domain.ExitReasonSignal,
			},
			{
				EntryIndex: 6, ExitIndex: 9, EntryDate: entry.AddDate(0, 0, 4), ExitDate: exit.AddDate(0, 0, 5),
				EntryPrice: 12, ExitPrice: 11, PositionSize: 1, PnL: -1, ReturnPct: -1.0 / 12,
				ExitReason: domain.ExitReasonEndOfData,
			},
		},
		Summary: domain.Summary{TotalTrades: 2, Wins: 1, Losses: 1, TotalPnL: 1, WinRate: 0.5, MaxDrawdown: 1},
	}
}

func TestResultStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	reg := prometheus.NewRegistry()
	store := postgres.NewResultStore(pool).WithMetrics(observability.NewMetrics("test", reg))

	r := createTestResult("res-001", "ds-1", "req-1")
	r.Discarded = []domain.DiscardedSignal{{Index: 9, Timestamp: r.Trades[1].ExitDate, Reason: domain.DiscardNoNextBar}}
	require.NoError(t, store.Insert(ctx, r))

	got, err := store.GetByID(ctx, "res-001")
	require.NoError(t, err)

	assert.Equal(t, r.RequestID, got.RequestID)
	assert.Equal(t, r.Name, got.Name)
	assert.Equal(t, r.StrategyID, got.StrategyID)
	assert.Equal(t, r.Bars, got.Bars)
	assert.Equal(t, r.Summary, got.Summary)
	require.Len(t, got.Trades, 2)
	assert.Equal(t, r.Trades[0].EntryIndex, got.Trades[0].EntryIndex)
	assert.True(t, r.Trades[1].ExitDate.Equal(got.Trades[1].ExitDate))
	assert.InDelta(t, r.Trades[1].ReturnPct, got.Trades[1].ReturnPct, 1e-12)
	assert.Equal(t, r.Trades[1].ExitReason, got.Trades[1].ExitReason)
	require.Len(t, got.Discarded, 1)
	assert.Equal(t, domain.DiscardNoNextBar, got.Discarded[0].Reason)
}

func TestResultStore_DuplicateAndNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewResultStore(pool)

	r := createTestResult("res-dup", "ds-1", "req-1")
	require.NoError(t, store.Insert(ctx, r))
	assert.ErrorIs(t, store.Insert(ctx, r), storage.ErrDuplicateKey)

	_, err := store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.Insert(ctx, &domain.BackTestResult{}), storage.ErrInvalidInput)
}

func TestResultStore_GetByDatasetAndAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewResultStore(pool)

	noTrades := createTestResult("res-c", "ds-2", "req-a")
	noTrades.Trades = nil
	for _, r := range []*domain.BackTestResult{
		createTestResult("res-b", "ds-1", "req-b"),
		createTestResult("res-a", "ds-1", "req-a"),
		noTrades,
	} {
		require.NoError(t, store.Insert(ctx, r))
	}

	ds1, err := store.GetByDataset(ctx, "ds-1")
	require.NoError(t, err)
	require.Len(t, ds1, 2)
	assert.Equal(t, "req-a", ds1[0].RequestID)
	assert.Equal(t, "req-b", ds1[1].RequestID)
	assert.Len(t, ds1[0].Trades, 2)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ds-2", all[2].DatasetID)
	assert.Empty(t, all[2].Trades)
}
