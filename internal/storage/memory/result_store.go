package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ResultStore is an in-memory implementation of storage.ResultStore.
type ResultStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BackTestResult // keyed by result_id
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		data: make(map[string]*domain.BackTestResult),
	}
}

// Compile-time interface check.
var _ storage.ResultStore = (*ResultStore)(nil)

// Insert adds a new result. Returns ErrDuplicateKey if result_id exists.
func (s *ResultStore) Insert(_ context.Context, r *domain.BackTestResult) error {
	if r == nil || r.ResultID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ResultID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[r.ResultID] = copyResult(r)
	return nil
}

// GetByID retrieves a result by its ID. Returns ErrNotFound if not exists.
func (s *ResultStore) GetByID(_ context.Context, resultID string) (*domain.BackTestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[resultID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyResult(r), nil
}

// GetByDataset retrieves all results for a dataset.
func (s *ResultStore) GetByDataset(_ context.Context, datasetID string) ([]*domain.BackTestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BackTestResult
	for _, r := range s.data {
		if r.DatasetID == datasetID {
			result = append(result, copyResult(r))
		}
	}
	sortResults(result)
	return result, nil
}

// GetAll retrieves all results.
func (s *ResultStore) GetAll(_ context.Context) ([]*domain.BackTestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.BackTestResult, 0, len(s.data))
	for _, r := range s.data {
		result = append(result, copyResult(r))
	}
	sortResults(result)
	return result, nil
}

func copyResult(r *domain.BackTestResult) *domain.BackTestResult {
	c := *r
	c.Trades = slices.Clone(r.Trades)
	c.Discarded = slices.Clone(r.Discarded)
	return &c
}

// sortResults orders by (dataset_id, request_id, result_id) ASC.
func sortResults(results []*domain.BackTestResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.DatasetID != b.DatasetID {
			return a.DatasetID < b.DatasetID
		}
		if a.RequestID != b.RequestID {
			return a.RequestID < b.RequestID
		}
		return a.ResultID < b.ResultID
	})
}
