package backtest

import (
	"context"

	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/marketdata"
	"backtest-lab/internal/strategy"
)

// Service builds the strategy for a request and simulates it.
type Service struct {
	sim *Simulator
}

// NewService creates a backtest service.
func NewService(logger *zap.Logger) *Service {
	return &Service{sim: NewSimulator(logger)}
}

// Run executes one backtest. Build failures are returned as
// *strategy.StrategyBuildError.
func (s *Service) Run(ctx context.Context, series *marketdata.Series, req domain.BackTestRequest) (*domain.BackTestResult, error) {
	strat, err := strategy.Build(req)
	if err != nil {
		return nil, err
	}
	return s.sim.Run(ctx, series, strat, req)
}
