package domain

// Summary holds aggregate statistics over the trades of one backtest.
type Summary struct {
	TotalTrades          int     `json:"total_trades"`
	Wins                 int     `json:"wins"`
	Losses               int     `json:"losses"`
	TotalPnL             float64 `json:"total_pnl"`
	WinRate              float64 `json:"win_rate"`      // wins / total, 0 when no trades
	MaxDrawdown          float64 `json:"max_drawdown"`  // worst peak-to-trough of cumulative pnl
	ProfitFactor         float64 `json:"profit_factor"` // gross profit / gross loss, 0 when undefined
	AvgTradePnL          float64 `json:"avg_trade_pnl"`
	BestTrade            float64 `json:"best_trade"`
	WorstTrade           float64 `json:"worst_trade"`
	PnLStddev            float64 `json:"pnl_stddev"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	InitialCapital       float64 `json:"initial_capital"`
	FinalEquity          float64 `json:"final_equity"`
}

// BackTestResult is the outcome of simulating one request over one dataset.
type BackTestResult struct {
	ResultID   string            `json:"result_id"`
	RequestID  string            `json:"request_id"`
	Name       string            `json:"name,omitempty"`
	DatasetID  string            `json:"dataset_id"`
	StrategyID string            `json:"strategy_id"`
	Bars       int               `json:"bars"`
	Trades     []Trade           `json:"trades"`
	Discarded  []DiscardedSignal `json:"discarded,omitempty"`
	Summary    Summary           `json:"summary"`
}
