// Package backtest walks a market data series bar by bar, holding at most one
// long position, and turns entry and exit signals into realized trades.
package backtest

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/marketdata"
	"backtest-lab/internal/metrics"
)

// cancellation is checked every this many bars
const checkInterval = 1024

// Signals produces the per-bar entry and exit vectors of a strategy.
// *strategy.Strategy implements it.
type Signals interface {
	ID() string
	EntrySignals(s *marketdata.Series) []bool
	ExitSignals(s *marketdata.Series) []bool
}

// Simulator executes signals against a series. It holds no per-run state
// and is safe for concurrent use.
type Simulator struct {
	logger *zap.Logger
}

// NewSimulator creates a simulator. A nil logger disables logging.
func NewSimulator(logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{logger: logger}
}

// position is the open long position, if any.
type position struct {
	index int
	price float64
	size  float64
}

// Run simulates req over series.
//
// Fill rules: entries fill at the signal bar's close, or at the next bar's
// open under the next_open policy. Exits (signal, stop-loss, take-profit)
// fill at the close and are not evaluated on the bar a position was opened.
// No new entry is taken on the bar a position was closed, nor on the bar a
// next_open entry fills; such signals are recorded as discarded. A position still
// open after the last bar is force-closed at the final close or discarded,
// depending on the request's end-of-data policy.
func (sim *Simulator) Run(ctx context.Context, series *marketdata.Series, signals Signals, req domain.BackTestRequest) (*domain.BackTestResult, error) {
	req = req.WithDefaults()
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	n := series.Len()
	entry := signals.EntrySignals(series)
	exit := signals.ExitSignals(series)
	if len(entry) != n || len(exit) != n {
		return nil, &SimulationError{
			RequestID: req.ID,
			Index:     -1,
			Reason:    fmt.Sprintf("signal length mismatch: entry=%d exit=%d bars=%d", len(entry), len(exit), n),
		}
	}

	logger := sim.logger.With(zap.String("request_id", req.ID), zap.String("strategy_id", signals.ID()))
	opens := series.Opens()
	closes := series.Closes()

	result := &domain.BackTestResult{
		RequestID:  req.ID,
		Name:       req.Name,
		StrategyID: signals.ID(),
		Bars:       n,
		Trades:     []domain.Trade{},
	}

	var (
		pos     *position
		pending bool
	)

	discard := func(i int, reason string) {
		logger.Warn("discarding entry signal",
			zap.Int("index", i),
			zap.Time("timestamp", series.Timestamp(i)),
			zap.String("reason", reason))
		result.Discarded = append(result.Discarded, domain.DiscardedSignal{
			Index:     i,
			Timestamp: series.Timestamp(i),
			Reason:    reason,
		})
	}

	closePosition := func(i int, reason string) {
		exitPrice := closes[i]
		t := domain.Trade{
			EntryIndex:   pos.index,
			ExitIndex:    i,
			EntryDate:    series.Timestamp(pos.index),
			ExitDate:     series.Timestamp(i),
			EntryPrice:   pos.price,
			ExitPrice:    exitPrice,
			PositionSize: pos.size,
			PnL:          (exitPrice - pos.price) * pos.size,
			ExitReason:   reason,
		}
		if pos.price != 0 {
			t.ReturnPct = exitPrice/pos.price - 1
		}
		result.Trades = append(result.Trades, t)
		pos = nil
	}

	for i := 0; i < n; i++ {
		if i%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if pending {
			pending = false
			p, err := openPosition(req, i, opens[i])
			if err != nil {
				return nil, err
			}
			pos = p
			if entry[i] {
				discard(i, domain.DiscardOnFillBar)
			}
			continue
		}

		if pos != nil {
			if i == pos.index {
				continue
			}
			if reason := exitReason(req.Risk, pos.price, closes[i], exit[i]); reason != "" {
				closePosition(i, reason)
				if entry[i] {
					discard(i, domain.DiscardOnExitBar)
				}
			}
			continue
		}

		if !entry[i] {
			continue
		}

		if req.FillPolicy == domain.FillNextOpen {
			if i == n-1 {
				discard(i, domain.DiscardNoNextBar)
				continue
			}
			pending = true
			continue
		}

		p, err := openPosition(req, i, closes[i])
		if err != nil {
			return nil, err
		}
		pos = p
	}

	if pos != nil {
		if req.EndOfData == domain.EndOfDataDiscard {
			logger.Warn("discarding open position at end of data",
				zap.Int("entry_index", pos.index),
				zap.Float64("entry_price", pos.price))
			result.Discarded = append(result.Discarded, domain.DiscardedSignal{
				Index:     pos.index,
				Timestamp: series.Timestamp(pos.index),
				Reason:    domain.DiscardOpenAtEndData,
			})
		} else {
			closePosition(n-1, domain.ExitReasonEndOfData)
		}
	}

	result.Summary = metrics.Summarize(result.Trades, req.InitialCapital)

	logger.Debug("simulation complete",
		zap.Int("bars", n),
		zap.Int("trades", len(result.Trades)),
		zap.Int("discarded", len(result.Discarded)),
		zap.Float64("total_pnl", result.Summary.TotalPnL))

	return result, nil
}

// exitReason returns the reason to close at price, or "" to stay long.
// Stop-loss wins over take-profit, which wins over the exit signal.
func exitReason(risk domain.Risk, entryPrice, price float64, signal bool) string {
	switch {
	case risk.StopLossPct > 0 && price <= entryPrice*(1-risk.StopLossPct):
		return domain.ExitReasonStopLoss
	case risk.TakeProfitPct > 0 && price >= entryPrice*(1+risk.TakeProfitPct):
		return domain.ExitReasonTakeProfit
	case signal:
		return domain.ExitReasonSignal
	default:
		return ""
	}
}

func openPosition(req domain.BackTestRequest, i int, price float64) (*position, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, &SimulationError{RequestID: req.ID, Index: i, Reason: "non-finite fill price"}
	}

	size := req.Sizing.Value
	if req.Sizing.Mode == domain.SizingNotional {
		if price <= 0 {
			return nil, &SimulationError{RequestID: req.ID, Index: i, Reason: fmt.Sprintf("non-positive fill price %g for notional sizing", price)}
		}
		size = req.Sizing.Value / price
	}
	if !(size > 0) || math.IsInf(size, 0) {
		return nil, &SimulationError{RequestID: req.ID, Index: i, Reason: fmt.Sprintf("invalid position size %g", size)}
	}

	return &position{index: i, price: price, size: size}, nil
}

func validateRequest(req domain.BackTestRequest) error {
	switch req.Sizing.Mode {
	case domain.SizingUnits, domain.SizingNotional:
	default:
		return fmt.Errorf("%w: request %q: unknown sizing mode %q", ErrInvalidRequest, req.ID, req.Sizing.Mode)
	}
	if !(req.Sizing.Value > 0) || math.IsInf(req.Sizing.Value, 0) {
		return fmt.Errorf("%w: request %q: sizing value must be positive", ErrInvalidRequest, req.ID)
	}
	switch req.FillPolicy {
	case domain.FillClose, domain.FillNextOpen:
	default:
		return fmt.Errorf("%w: request %q: unknown fill policy %q", ErrInvalidRequest, req.ID, req.FillPolicy)
	}
	switch req.EndOfData {
	case domain.EndOfDataForceClose, domain.EndOfDataDiscard:
	default:
		return fmt.Errorf("%w: request %q: unknown end-of-data policy %q", ErrInvalidRequest, req.ID, req.EndOfData)
	}
	if req.Risk.StopLossPct < 0 || req.Risk.StopLossPct >= 1 {
		return fmt.Errorf("%w: request %q: stop_loss_pct must be in [0, 1)", ErrInvalidRequest, req.ID)
	}
	if req.Risk.TakeProfitPct < 0 {
		return fmt.Errorf("%w: request %q: take_profit_pct must not be negative", ErrInvalidRequest, req.ID)
	}
	return nil
}
