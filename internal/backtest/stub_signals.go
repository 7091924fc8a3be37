package backtest

import "backtest-lab/internal/marketdata"

// StaticSignals replays fixed entry/exit vectors.
// Used to drive the simulator without building conditions.
type StaticSignals struct {
	Name  string
	Entry []bool
	Exit  []bool
}

func (s *StaticSignals) ID() string {
	if s.Name == "" {
		return "static"
	}
	return s.Name
}

func (s *StaticSignals) EntrySignals(_ *marketdata.Series) []bool { return s.Entry }
func (s *StaticSignals) ExitSignals(_ *marketdata.Series) []bool  { return s.Exit }

// Ensure StaticSignals implements Signals
var _ Signals = (*StaticSignals)(nil)
