package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Datasets: %d | Total Trades: %d\n\n", len(r.Datasets), r.TotalTrades()))

	for _, ds := range r.Datasets {
		sb.WriteString(fmt.Sprintf("## Dataset %s\n\n", ds.DatasetID))
		sb.WriteString(fmt.Sprintf("Bars: %d | Results: %d | Failures: %d\n\n", ds.Bars, len(ds.Rows), len(ds.Failures)))

		sb.WriteString("### Rankings\n\n")
		if len(ds.Rows) > 0 {
			sb.WriteString("| Rank | Request | Name | Trades | WinRate | TotalPnL | MaxDD | ProfitFactor | AvgPnL | MaxConsecLosses | FinalEquity |\n")
			sb.WriteString("|------|---------|------|--------|---------|----------|-------|--------------|--------|-----------------|-------------|\n")
			for _, row := range ds.Rows {
				s := row.Summary
				sb.WriteString(fmt.Sprintf("| %d | %s | %s | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %d | %.4f |\n",
					row.Rank, escapeCell(row.RequestID), escapeCell(row.Name),
					s.TotalTrades, s.WinRate, s.TotalPnL, s.MaxDrawdown, s.ProfitFactor,
					s.AvgTradePnL, s.MaxConsecutiveLosses, s.FinalEquity))
			}
		} else {
			sb.WriteString("No results available.\n")
		}
		sb.WriteString("\n")

		if len(ds.Failures) > 0 {
			sb.WriteString("### Failures\n\n")
			sb.WriteString("| Index | Request | Error |\n")
			sb.WriteString("|-------|---------|-------|\n")
			for _, f := range ds.Failures {
				sb.WriteString(fmt.Sprintf("| %d | %s | %s |\n", f.Index, escapeCell(f.RequestID), escapeCell(f.Error)))
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
