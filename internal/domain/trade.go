package domain

import "time"

// Trade is one realized round trip of a long position.
type Trade struct {
	EntryIndex   int       `json:"entry_index"`
	ExitIndex    int       `json:"exit_index"`
	EntryDate    time.Time `json:"entry_date"`
	ExitDate     time.Time `json:"exit_date"` // the trade date
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	PositionSize float64   `json:"position_size"`
	PnL          float64   `json:"pnl"`        // (exit - entry) * size
	ReturnPct    float64   `json:"return_pct"` // exit / entry - 1
	ExitReason   string    `json:"exit_reason"`
}

// Exit reason codes
const (
	ExitReasonSignal     = "signal"
	ExitReasonStopLoss   = "stop_loss"
	ExitReasonTakeProfit = "take_profit"
	ExitReasonEndOfData  = "end_of_data"
)

// IsWin reports whether the trade realized a profit.
func (t Trade) IsWin() bool {
	return t.PnL > 0
}

// DiscardedSignal records a signal or open position the simulator dropped.
type DiscardedSignal struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// Discard reasons
const (
	DiscardNoNextBar     = "entry_signal_on_last_bar"
	DiscardOpenAtEndData = "open_position_at_end_of_data"
	DiscardOnExitBar     = "entry_signal_on_exit_bar"
	DiscardOnFillBar     = "entry_signal_on_fill_bar"
)
