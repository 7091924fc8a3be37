package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
	"time"
)

var rankingHeader = []string{
	"dataset_id", "rank", "request_id", "name", "result_id", "strategy_id",
	"total_trades", "wins", "losses", "win_rate", "total_pnl", "max_drawdown",
	"profit_factor", "avg_trade_pnl", "max_consecutive_losses", "final_equity", "discarded",
}

var tradeHeader = []string{
	"dataset_id", "request_id", "entry_index", "exit_index", "entry_date", "exit_date",
	"entry_price", "exit_price", "position_size", "pnl", "return_pct", "exit_reason",
}

// RenderCSV renders ranked results of every dataset as CSV string.
func RenderCSV(r *Report) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write(rankingHeader)
	for _, ds := range r.Datasets {
		for _, row := range ds.Rows {
			s := row.Summary
			_ = w.Write([]string{
				ds.DatasetID,
				strconv.Itoa(row.Rank),
				row.RequestID,
				row.Name,
				row.ResultID,
				row.StrategyID,
				strconv.Itoa(s.TotalTrades),
				strconv.Itoa(s.Wins),
				strconv.Itoa(s.Losses),
				formatFloat(s.WinRate),
				formatFloat(s.TotalPnL),
				formatFloat(s.MaxDrawdown),
				formatFloat(s.ProfitFactor),
				formatFloat(s.AvgTradePnL),
				strconv.Itoa(s.MaxConsecutiveLosses),
				formatFloat(s.FinalEquity),
				strconv.Itoa(row.Discarded),
			})
		}
	}

	w.Flush()
	return sb.String()
}

// RenderTradesCSV renders every trade of every result as CSV string, in
// ranking order.
func RenderTradesCSV(r *Report) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write(tradeHeader)
	for _, ds := range r.Datasets {
		for _, row := range ds.Rows {
			for _, t := range row.Trades {
				_ = w.Write([]string{
					ds.DatasetID,
					row.RequestID,
					strconv.Itoa(t.EntryIndex),
					strconv.Itoa(t.ExitIndex),
					t.EntryDate.UTC().Format(time.RFC3339),
					t.ExitDate.UTC().Format(time.RFC3339),
					formatFloat(t.EntryPrice),
					formatFloat(t.ExitPrice),
					formatFloat(t.PositionSize),
					formatFloat(t.PnL),
					formatFloat(t.ReturnPct),
					t.ExitReason,
				})
			}
		}
	}

	w.Flush()
	return sb.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
