// Package ingestion consumes ingestion-completion events that trigger
// warm-start backtests over freshly stored market data.
package ingestion

import (
	"context"
	"sync"

	"backtest-lab/internal/domain"
)

// Source delivers ingestion completion events. Events is closed when the
// source is exhausted or closed.
type Source interface {
	Events() <-chan domain.IngestionCompleted
	Close() error
}

// StaticSource replays a fixed list of events, then closes its channel.
// Used offline and in tests.
type StaticSource struct {
	ch   chan domain.IngestionCompleted
	once sync.Once
}

// NewStaticSource creates a source that yields events in order.
func NewStaticSource(events ...domain.IngestionCompleted) *StaticSource {
	ch := make(chan domain.IngestionCompleted, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return &StaticSource{ch: ch}
}

var _ Source = (*StaticSource)(nil)

func (s *StaticSource) Events() <-chan domain.IngestionCompleted { return s.ch }

func (s *StaticSource) Close() error { return nil }

// Handler reacts to one event. Returning an error does not stop consumption.
type Handler func(ctx context.Context, ev domain.IngestionCompleted) error
