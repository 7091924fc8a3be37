package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/marketdata"
	"backtest-lab/internal/strategy"
)

func series(t *testing.T, closes ...float64) *marketdata.Series {
	t.Helper()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Timestamp:     start.AddDate(0, 0, i),
			Open:          c - 0.5,
			High:          c + 1,
			Low:           c - 1,
			Close:         c,
			AdjustedClose: c,
			Volume:        1000,
		}
	}
	s, err := marketdata.NewSeries(bars)
	require.NoError(t, err)
	return s
}

func signals(entry, exit string) *StaticSignals {
	parse := func(s string) []bool {
		out := make([]bool, len(s))
		for i, c := range s {
			out[i] = c == '1'
		}
		return out
	}
	return &StaticSignals{Entry: parse(entry), Exit: parse(exit)}
}

func crossoverRequest(endOfData string) domain.BackTestRequest {
	return domain.BackTestRequest{
		ID: "cross",
		Conditions: []domain.StrategyCondition{{
			Role: domain.RoleEntry,
			Condition: domain.ConditionConfig{
				Type:       "ma_crossover",
				Parameters: map[string]any{"fast": 1, "slow": 2, "kind": "sma", "direction": "above"},
			},
		}},
		Sizing:    domain.Sizing{Mode: domain.SizingUnits, Value: 10},
		EndOfData: endOfData,
	}
}

func TestService_CrossoverForceClose(t *testing.T) {
	s := series(t, 10, 9, 8, 11, 12)

	res, err := NewService(nil).Run(context.Background(), s, crossoverRequest(domain.EndOfDataForceClose))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, 3, tr.EntryIndex)
	assert.Equal(t, 4, tr.ExitIndex)
	assert.Equal(t, 11.0, tr.EntryPrice)
	assert.Equal(t, 12.0, tr.ExitPrice)
	assert.Equal(t, 10.0, tr.PositionSize)
	assert.Equal(t, 10.0, tr.PnL)
	assert.Equal(t, domain.ExitReasonEndOfData, tr.ExitReason)
	assert.Equal(t, s.Timestamp(4), tr.ExitDate)

	assert.Equal(t, 1, res.Summary.TotalTrades)
	assert.Equal(t, 10.0, res.Summary.TotalPnL)
	assert.Equal(t, 1.0, res.Summary.WinRate)
	assert.Equal(t, 5, res.Bars)
	assert.NotEmpty(t, res.StrategyID)
}

func TestService_CrossoverDiscard(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := series(t, 10, 9, 8, 11, 12)

	res, err := NewService(zap.New(core)).Run(context.Background(), s, crossoverRequest(domain.EndOfDataDiscard))
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	require.Len(t, res.Discarded, 1)
	assert.Equal(t, 3, res.Discarded[0].Index)
	assert.Equal(t, domain.DiscardOpenAtEndData, res.Discarded[0].Reason)
	assert.Equal(t, 1, logs.FilterMessage("discarding open position at end of data").Len())
}

func TestService_BuildError(t *testing.T) {
	req := domain.BackTestRequest{
		ID: "bad",
		Conditions: []domain.StrategyCondition{{
			Role:      domain.RoleEntry,
			Condition: domain.ConditionConfig{Type: "nope"},
		}},
	}

	_, err := NewService(nil).Run(context.Background(), series(t, 1, 2), req)
	var buildErr *strategy.StrategyBuildError
	assert.True(t, errors.As(err, &buildErr))
}

func TestService_NoEntryConditions(t *testing.T) {
	req := domain.BackTestRequest{
		ID: "exits-only",
		Conditions: []domain.StrategyCondition{{
			Role:      domain.RoleExit,
			Condition: domain.ConditionConfig{Type: "threshold", Parameters: map[string]any{"op": "gt", "value": 0}},
		}},
	}

	res, err := NewService(nil).Run(context.Background(), series(t, 1, 2, 3), req)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Empty(t, res.Discarded)
}

func TestSimulator_ExitTakesPrecedenceAndNoReentry(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := series(t, 10, 11, 12, 13, 14)

	res, err := NewSimulator(zap.New(core)).Run(context.Background(), s, signals("10100", "00100"), domain.BackTestRequest{ID: "r"})
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, 0, res.Trades[0].EntryIndex)
	assert.Equal(t, 2, res.Trades[0].ExitIndex)
	assert.Equal(t, domain.ExitReasonSignal, res.Trades[0].ExitReason)
	assert.Equal(t, 2.0, res.Trades[0].PnL)

	require.Len(t, res.Discarded, 1)
	assert.Equal(t, 2, res.Discarded[0].Index)
	assert.Equal(t, s.Timestamp(2), res.Discarded[0].Timestamp)
	assert.Equal(t, domain.DiscardOnExitBar, res.Discarded[0].Reason)

	entries := logs.FilterMessage("discarding entry signal").All()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.DiscardOnExitBar, entries[0].ContextMap()["reason"])
}

func TestSimulator_StopLossExitDiscardsSameBarEntry(t *testing.T) {
	s := series(t, 10, 9, 12)
	req := domain.BackTestRequest{ID: "r", Risk: domain.Risk{StopLossPct: 0.05}}

	res, err := NewSimulator(nil).Run(context.Background(), s, signals("110", "000"), req)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, domain.ExitReasonStopLoss, res.Trades[0].ExitReason)
	require.Len(t, res.Discarded, 1)
	assert.Equal(t, 1, res.Discarded[0].Index)
	assert.Equal(t, domain.DiscardOnExitBar, res.Discarded[0].Reason)
}

func TestSimulator_HoldingIgnoresRepeatedEntry(t *testing.T) {
	s := series(t, 10, 11, 12, 13)

	res, err := NewSimulator(nil).Run(context.Background(), s, signals("1110", "0001"), domain.BackTestRequest{ID: "r"})
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Empty(t, res.Discarded)
}

func TestSimulator_NoExitOnEntryBar(t *testing.T) {
	s := series(t, 10, 11, 12, 13, 14)

	res, err := NewSimulator(nil).Run(context.Background(), s, signals("10000", "10010"), domain.BackTestRequest{ID: "r"})
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, 3, res.Trades[0].ExitIndex)
	assert.Equal(t, 13.0, res.Trades[0].ExitPrice)
}

func TestSimulator_MultipleRoundTrips(t *testing.T) {
	s := series(t, 10, 12, 11, 9, 10, 13)

	res, err := NewSimulator(nil).Run(context.Background(), s, signals("100100", "010001"), domain.BackTestRequest{ID: "r"})
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, 2.0, res.Trades[0].PnL)
	assert.Equal(t, 4.0, res.Trades[1].PnL)
	assert.True(t, res.Trades[0].ExitIndex < res.Trades[1].EntryIndex)
	assert.Equal(t, 6.0, res.Summary.TotalPnL)
}

func TestSimulator_NextOpenFill(t *testing.T) {
	s := series(t, 10, 11, 12, 13, 14)
	req := domain.BackTestRequest{ID: "r", FillPolicy: domain.FillNextOpen}

	res, err := NewSimulator(nil).Run(context.Background(), s, signals("01000", "00010"), req)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, 2, res.Trades[0].EntryIndex)
	assert.Equal(t, 11.5, res.Trades[0].EntryPrice)
	assert.Equal(t, 13.0, res.Trades[0].ExitPrice)
	assert.Equal(t, 1.5, res.Trades[0].PnL)
}

func TestSimulator_NextOpenIgnoresExitOnFillBar(t *testing.T) {
	s := series(t, 10, 11, 12, 13, 14)
	req := domain.BackTestRequest{ID: "r", FillPolicy: domain.FillNextOpen}

	res, err := NewSimulator(nil).Run(context.Background(), s, signals("01000", "00100"), req)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, 4, res.Trades[0].ExitIndex)
	assert.Equal(t, domain.ExitReasonEndOfData, res.Trades[0].ExitReason)
}

func TestSimulator_NextOpenDiscardsEntryOnFillBar(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := series(t, 10, 11, 12, 13, 14)
	req := domain.BackTestRequest{ID: "r", FillPolicy: domain.FillNextOpen}

	res, err := NewSimulator(zap.New(core)).Run(context.Background(), s, signals("01100", "00010"), req)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, 2, res.Trades[0].EntryIndex)
	require.Len(t, res.Discarded, 1)
	assert.Equal(t, 2, res.Discarded[0].Index)
	assert.Equal(t, domain.DiscardOnFillBar, res.Discarded[0].Reason)
	assert.Equal(t, 1, logs.FilterMessage("discarding entry signal").Len())
}

func TestSimulator_NextOpenSignalOnLastBar(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := series(t, 10, 11, 12)
	req := domain.BackTestRequest{ID: "r", FillPolicy: domain.FillNextOpen}

	res, err := NewSimulator(zap.New(core)).Run(context.Background(), s, signals("001", "000"), req)
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	require.Len(t, res.Discarded, 1)
	assert.Equal(t, 2, res.Discarded[0].Index)
	assert.Equal(t, domain.DiscardNoNextBar, res.Discarded[0].Reason)
	assert.Equal(t, 1, logs.Len())
}

func TestSimulator_StopLoss(t *testing.T) {
	s := series(t, 10, 9.4, 9, 12)
	req := domain.BackTestRequest{ID: "r", Risk: domain.Risk{StopLossPct: 0.05}}

	res, err := NewSimulator(nil).Run(context.Background(), s, signals("1000", "0000"), req)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, 1, res.Trades[0].ExitIndex)
	assert.Equal(t, domain.ExitReasonStopLoss, res.Trades[0].ExitReason)
	assert.InDelta(t, -0.6, res.Trades[0].PnL, 1e-9)
}

func TestSimulator_TakeProfit(t *testing.T) {
	s := series(t, 10, 10.5, 11.5, 12)
	req := domain.BackTestRequest{ID: "r", Risk: domain.Risk{TakeProfitPct: 0.1}}

	res, err := NewSimulator(nil).Run(context.Background(), s, signals("1000", "0000"), req)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, 2, res.Trades[0].ExitIndex)
	assert.Equal(t, domain.ExitReasonTakeProfit, res.Trades[0].ExitReason)
}

func TestSimulator_NotionalSizing(t *testing.T) {
	s := series(t, 10, 12)
	req := domain.BackTestRequest{
		ID:             "r",
		Sizing:         domain.Sizing{Mode: domain.SizingNotional, Value: 1000},
		InitialCapital: 5000,
	}

	res, err := NewSimulator(nil).Run(context.Background(), s, signals("10", "01"), req)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, 100.0, res.Trades[0].PositionSize)
	assert.Equal(t, 200.0, res.Trades[0].PnL)
	assert.InDelta(t, 0.2, res.Trades[0].ReturnPct, 1e-12)
	assert.Equal(t, 5200.0, res.Summary.FinalEquity)
}

func TestSimulator_LengthMismatch(t *testing.T) {
	s := series(t, 10, 11, 12)

	_, err := NewSimulator(nil).Run(context.Background(), s, signals("10", "000"), domain.BackTestRequest{ID: "r"})
	var simErr *SimulationError
	require.True(t, errors.As(err, &simErr))
	assert.Equal(t, "r", simErr.RequestID)
}

func TestSimulator_InvalidRequest(t *testing.T) {
	tests := []domain.BackTestRequest{
		{ID: "mode", Sizing: domain.Sizing{Mode: "shares", Value: 1}},
		{ID: "value", Sizing: domain.Sizing{Mode: domain.SizingUnits, Value: -1}},
		{ID: "fill", FillPolicy: "vwap"},
		{ID: "eod", EndOfData: "keep"},
		{ID: "stop", Risk: domain.Risk{StopLossPct: 1.5}},
	}

	for _, req := range tests {
		t.Run(req.ID, func(t *testing.T) {
			_, err := NewSimulator(nil).Run(context.Background(), series(t, 1, 2), signals("10", "00"), req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestSimulator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSimulator(nil).Run(ctx, series(t, 1, 2), signals("10", "00"), domain.BackTestRequest{ID: "r"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulator_DoesNotMutateSeries(t *testing.T) {
	s := series(t, 10, 9, 8, 11, 12)
	before := append([]float64(nil), s.Closes()...)

	_, err := NewService(nil).Run(context.Background(), s, crossoverRequest(domain.EndOfDataForceClose))
	require.NoError(t, err)
	assert.Equal(t, before, s.Closes())
}

func TestService_RepeatedRunsAreIdentical(t *testing.T) {
	s := series(t, 10, 9, 8, 11, 12, 10, 9, 13, 14, 11, 10, 15)
	req := domain.BackTestRequest{
		ID: "swing",
		Conditions: []domain.StrategyCondition{
			{Role: domain.RoleEntry, Condition: domain.ConditionConfig{
				Type:       "ma_crossover",
				Parameters: map[string]any{"fast": 1, "slow": 2, "direction": "above"},
			}},
			{Role: domain.RoleExit, Condition: domain.ConditionConfig{
				Type:       "ma_crossover",
				Parameters: map[string]any{"fast": 1, "slow": 2, "direction": "below"},
			}},
		},
		Sizing: domain.Sizing{Mode: domain.SizingNotional, Value: 1000},
	}

	svc := NewService(nil)
	first, err := svc.Run(context.Background(), s, req)
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), s, req)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(first.Trades), 2)
	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.Discarded, second.Discarded)
}
