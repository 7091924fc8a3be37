package storage

import (
	"context"
	"time"

	"backtest-lab/internal/domain"
)

// BarStore provides access to market_bars storage, keyed by (symbol, timestamp).
type BarStore interface {
	// InsertBulk adds bars for a symbol. Fails the entire batch with
	// ErrDuplicateKey if any (symbol, timestamp) already exists or repeats
	// inside the batch.
	InsertBulk(ctx context.Context, symbol string, bars []domain.Bar) error

	// GetBySymbol retrieves all bars for a symbol, ordered by timestamp ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]domain.Bar, error)

	// GetByTimeRange retrieves bars for a symbol within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// Symbols lists every stored symbol in ascending order.
	Symbols(ctx context.Context) ([]string, error)
}

// ResultStore provides access to backtest_results storage.
type ResultStore interface {
	// Insert adds a result with its trades. Returns ErrDuplicateKey if result_id exists.
	Insert(ctx context.Context, r *domain.BackTestResult) error

	// GetByID retrieves a result by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, resultID string) (*domain.BackTestResult, error)

	// GetByDataset retrieves all results for a dataset, ordered by request_id, result_id.
	GetByDataset(ctx context.Context, datasetID string) ([]*domain.BackTestResult, error)

	// GetAll retrieves all results ordered by dataset_id, request_id, result_id.
	GetAll(ctx context.Context) ([]*domain.BackTestResult, error)
}

// KVStore is a byte-oriented key-value store backing the cache facade.
// Unlike the other stores it is mutable: Set overwrites.
type KVStore interface {
	// Get returns the value for key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Contains(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
}
