package domain

// ConditionConfig is the declarative description of one condition.
// Parameters are decoded from JSON or YAML, so numeric values may arrive as
// int, float64 or json.Number.
type ConditionConfig struct {
	Type       string         `json:"type" yaml:"type"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Role marks a condition as part of the entry or the exit set.
type Role string

// Condition roles
const (
	RoleEntry Role = "entry"
	RoleExit  Role = "exit"
)

// StrategyCondition is a condition config together with its declared role.
type StrategyCondition struct {
	Role      Role            `json:"role" yaml:"role"`
	Condition ConditionConfig `json:"condition" yaml:"condition"`
}

// Sizing modes
const (
	SizingUnits    = "units"    // fixed number of units per trade
	SizingNotional = "notional" // fixed cash amount per trade, units = value / fill price
)

// Fill policies for entries. Exits always fill at the bar close.
const (
	FillClose    = "close"     // fill at the signal bar's close
	FillNextOpen = "next_open" // fill at the following bar's open
)

// End-of-data policies for a position still open after the last bar.
const (
	EndOfDataForceClose = "force_close"
	EndOfDataDiscard    = "discard"
)

// Sizing describes how many units a trade buys.
type Sizing struct {
	Mode  string  `json:"mode" yaml:"mode"`
	Value float64 `json:"value" yaml:"value"`
}

// Risk holds optional protective exits. Zero disables a rule.
// Both are fractions of the entry price (0.05 = 5%).
type Risk struct {
	StopLossPct   float64 `json:"stop_loss_pct,omitempty" yaml:"stop_loss_pct,omitempty"`
	TakeProfitPct float64 `json:"take_profit_pct,omitempty" yaml:"take_profit_pct,omitempty"`
}

// BackTestRequest is one strategy to evaluate against a dataset.
type BackTestRequest struct {
	ID             string              `json:"id" yaml:"id"`
	Name           string              `json:"name,omitempty" yaml:"name,omitempty"`
	Conditions     []StrategyCondition `json:"conditions" yaml:"conditions"`
	Sizing         Sizing              `json:"sizing" yaml:"sizing"`
	Risk           Risk                `json:"risk" yaml:"risk"`
	FillPolicy     string              `json:"fill_policy,omitempty" yaml:"fill_policy,omitempty"`
	EndOfData      string              `json:"end_of_data,omitempty" yaml:"end_of_data,omitempty"`
	InitialCapital float64             `json:"initial_capital,omitempty" yaml:"initial_capital,omitempty"`
}

// WithDefaults returns a copy of r with unset execution options filled in.
func (r BackTestRequest) WithDefaults() BackTestRequest {
	if r.Sizing.Mode == "" {
		r.Sizing.Mode = SizingUnits
	}
	if r.Sizing.Value == 0 {
		r.Sizing.Value = 1
	}
	if r.FillPolicy == "" {
		r.FillPolicy = FillClose
	}
	if r.EndOfData == "" {
		r.EndOfData = EndOfDataForceClose
	}
	return r
}
