package reporting

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// RenderText renders report as an aligned plain-text table for terminals.
func RenderText(r *Report) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Backtest report generated %s\n", r.GeneratedAt.Format(time.RFC3339))
	for _, ds := range r.Datasets {
		fmt.Fprintf(&sb, "\nDataset %s (%d bars)\n", ds.DatasetID, ds.Bars)

		tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RANK\tREQUEST\tTRADES\tWIN%\tPNL\tMAX_DD\tPF\tEQUITY")
		for _, row := range ds.Rows {
			s := row.Summary
			fmt.Fprintf(tw, "%d\t%s\t%d\t%.1f\t%.4f\t%.4f\t%.2f\t%.2f\n",
				row.Rank, label(row), s.TotalTrades, s.WinRate*100,
				s.TotalPnL, s.MaxDrawdown, s.ProfitFactor, s.FinalEquity)
		}
		_ = tw.Flush()

		for _, f := range ds.Failures {
			fmt.Fprintf(&sb, "FAILED #%d %s: %s\n", f.Index, f.RequestID, f.Error)
		}
	}

	return sb.String()
}

// RenderJSON renders report as indented JSON.
func RenderJSON(r *Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func label(row ResultRow) string {
	if row.Name == "" || row.Name == row.RequestID {
		return row.RequestID
	}
	return row.RequestID + " (" + row.Name + ")"
}
