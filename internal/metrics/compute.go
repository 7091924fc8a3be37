package metrics

import (
	"math"
	"sort"

	"backtest-lab/internal/domain"
)

// Summarize calculates summary statistics from the trades of one backtest.
// Trades are ordered by EntryIndex ASC, ExitIndex ASC before computing
// order-dependent metrics (MaxDrawdown, MaxConsecutiveLosses).
func Summarize(trades []domain.Trade, initialCapital float64) domain.Summary {
	n := len(trades)
	if n == 0 {
		return domain.Summary{
			InitialCapital: initialCapital,
			FinalEquity:    initialCapital,
		}
	}

	sorted := make([]domain.Trade, n)
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].EntryIndex != sorted[j].EntryIndex {
			return sorted[i].EntryIndex < sorted[j].EntryIndex
		}
		return sorted[i].ExitIndex < sorted[j].ExitIndex
	})

	pnls := make([]float64, n)
	wins := 0
	grossProfit := 0.0
	grossLoss := 0.0
	for i, t := range sorted {
		pnls[i] = t.PnL
		if t.IsWin() {
			wins++
			grossProfit += t.PnL
		} else {
			grossLoss -= t.PnL
		}
	}

	total := computeSum(pnls)
	mean := computeMean(pnls)
	best, worst := computeRange(pnls)

	return domain.Summary{
		TotalTrades:          n,
		Wins:                 wins,
		Losses:               n - wins,
		TotalPnL:             total,
		WinRate:              computeWinRate(wins, n),
		MaxDrawdown:          computeMaxDrawdown(pnls),
		ProfitFactor:         computeProfitFactor(grossProfit, grossLoss),
		AvgTradePnL:          mean,
		BestTrade:            best,
		WorstTrade:           worst,
		PnLStddev:            computeStddev(pnls, mean),
		MaxConsecutiveLosses: computeMaxConsecutiveLosses(pnls),
		InitialCapital:       initialCapital,
		FinalEquity:          initialCapital + total,
	}
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

func computeSum(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

// computeMean calculates arithmetic mean of outcomes.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return computeSum(values) / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

func computeRange(values []float64) (best, worst float64) {
	if len(values) == 0 {
		return 0, 0
	}
	best, worst = values[0], values[0]
	for _, v := range values[1:] {
		best = math.Max(best, v)
		worst = math.Min(worst, v)
	}
	return best, worst
}

// computeProfitFactor is gross profit over gross loss, 0 when there are no losses.
func computeProfitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		return 0
	}
	return grossProfit / grossLoss
}

// computeMaxDrawdown calculates worst peak-to-trough on cumulative pnl.
// max_drawdown = MAX(peak_cumulative - trough_cumulative), with the peak
// starting at zero so an opening loss counts as drawdown.
// Values must be in chronological order.
func computeMaxDrawdown(pnls []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, p := range pnls {
		cumulative += p
		if cumulative > peak {
			peak = cumulative
		}
		if drawdown := peak - cumulative; drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds longest streak of pnl <= 0.
// Values must be in chronological order.
func computeMaxConsecutiveLosses(pnls []float64) int {
	maxStreak := 0
	currentStreak := 0

	for _, p := range pnls {
		if p <= 0 {
			currentStreak++
			maxStreak = max(maxStreak, currentStreak)
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
