package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/storage"
)

// ResultStore implements storage.ResultStore using PostgreSQL.
// Trades live in backtest_trades, ordered by seq.
type ResultStore struct {
	pool    *Pool
	metrics *observability.Metrics
}

// NewResultStore creates a new ResultStore.
func NewResultStore(pool *Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// WithMetrics records query duration and errors on m.
func (s *ResultStore) WithMetrics(m *observability.Metrics) *ResultStore {
	s.metrics = m
	return s
}

// Compile-time interface check.
var _ storage.ResultStore = (*ResultStore)(nil)

var tradeColumns = []string{
	"result_id", "seq", "entry_index", "exit_index", "entry_date", "exit_date",
	"entry_price", "exit_price", "position_size", "pnl", "return_pct", "exit_reason",
}

// Insert adds a result and its trades atomically. Returns ErrDuplicateKey if result_id exists.
func (s *ResultStore) Insert(ctx context.Context, r *domain.BackTestResult) (err error) {
	if r == nil || r.ResultID == "" {
		return storage.ErrInvalidInput
	}
	defer s.observe("insert_result", time.Now(), &err)

	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	discarded := r.Discarded
	if discarded == nil {
		discarded = []domain.DiscardedSignal{}
	}
	discardedJSON, err := json.Marshal(discarded)
	if err != nil {
		return fmt.Errorf("marshal discarded: %w", err)
	}

	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO backtest_results (
				result_id, request_id, name, dataset_id, strategy_id, bars, summary, discarded
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		_, err := tx.Exec(ctx, query,
			r.ResultID, r.RequestID, r.Name, r.DatasetID, r.StrategyID, r.Bars, summary, discardedJSON,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert backtest result: %w", err)
		}

		if len(r.Trades) == 0 {
			return nil
		}
		rows := make([][]any, len(r.Trades))
		for i, t := range r.Trades {
			rows[i] = []any{
				r.ResultID, i, t.EntryIndex, t.ExitIndex, t.EntryDate, t.ExitDate,
				t.EntryPrice, t.ExitPrice, t.PositionSize, t.PnL, t.ReturnPct, t.ExitReason,
			}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"backtest_trades"}, tradeColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy backtest trades: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a result by its ID. Returns ErrNotFound if not exists.
func (s *ResultStore) GetByID(ctx context.Context, resultID string) (_ *domain.BackTestResult, err error) {
	defer s.observe("get_result", time.Now(), &err)

	query := `
		SELECT result_id, request_id, name, dataset_id, strategy_id, bars, summary, discarded
		FROM backtest_results
		WHERE result_id = $1
	`

	r, err := scanResult(s.pool.QueryRow(ctx, query, resultID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get backtest result by id: %w", err)
	}

	if err := s.loadTrades(ctx, []*domain.BackTestResult{r}); err != nil {
		return nil, err
	}
	return r, nil
}

// GetByDataset retrieves all results for a dataset.
func (s *ResultStore) GetByDataset(ctx context.Context, datasetID string) (_ []*domain.BackTestResult, err error) {
	defer s.observe("get_results_by_dataset", time.Now(), &err)

	query := `
		SELECT result_id, request_id, name, dataset_id, strategy_id, bars, summary, discarded
		FROM backtest_results
		WHERE dataset_id = $1
		ORDER BY request_id ASC, result_id ASC
	`
	return s.queryResults(ctx, query, datasetID)
}

// GetAll retrieves all results.
func (s *ResultStore) GetAll(ctx context.Context) (_ []*domain.BackTestResult, err error) {
	defer s.observe("get_all_results", time.Now(), &err)

	query := `
		SELECT result_id, request_id, name, dataset_id, strategy_id, bars, summary, discarded
		FROM backtest_results
		ORDER BY dataset_id ASC, request_id ASC, result_id ASC
	`
	return s.queryResults(ctx, query)
}

func (s *ResultStore) queryResults(ctx context.Context, query string, args ...any) ([]*domain.BackTestResult, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query backtest results: %w", err)
	}
	defer rows.Close()

	var results []*domain.BackTestResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backtest result row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest results: %w", err)
	}

	if err := s.loadTrades(ctx, results); err != nil {
		return nil, err
	}
	return results, nil
}

// loadTrades fills Trades for every result with a single query.
func (s *ResultStore) loadTrades(ctx context.Context, results []*domain.BackTestResult) error {
	if len(results) == 0 {
		return nil
	}

	ids := make([]string, len(results))
	byID := make(map[string]*domain.BackTestResult, len(results))
	for i, r := range results {
		ids[i] = r.ResultID
		byID[r.ResultID] = r
	}

	query := `
		SELECT result_id, entry_index, exit_index, entry_date, exit_date,
			entry_price, exit_price, position_size, pnl, return_pct, exit_reason
		FROM backtest_trades
		WHERE result_id = ANY($1)
		ORDER BY result_id ASC, seq ASC
	`
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("query backtest trades: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var resultID string
		var t domain.Trade
		err := rows.Scan(
			&resultID, &t.EntryIndex, &t.ExitIndex, &t.EntryDate, &t.ExitDate,
			&t.EntryPrice, &t.ExitPrice, &t.PositionSize, &t.PnL, &t.ReturnPct, &t.ExitReason,
		)
		if err != nil {
			return fmt.Errorf("scan backtest trade row: %w", err)
		}
		t.EntryDate = t.EntryDate.UTC()
		t.ExitDate = t.ExitDate.UTC()
		if r, ok := byID[resultID]; ok {
			r.Trades = append(r.Trades, t)
		}
	}
	return rows.Err()
}

func (s *ResultStore) observe(op string, start time.Time, err *error) {
	s.metrics.RecordDBQuery("postgres", op, time.Since(start).Seconds(), *err)
}

// scanResult scans a single row into a BackTestResult.
func scanResult(row pgx.Row) (*domain.BackTestResult, error) {
	var r domain.BackTestResult
	var summary, discarded []byte

	err := row.Scan(
		&r.ResultID, &r.RequestID, &r.Name, &r.DatasetID, &r.StrategyID, &r.Bars, &summary, &discarded,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(summary, &r.Summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	if err := json.Unmarshal(discarded, &r.Discarded); err != nil {
		return nil, fmt.Errorf("unmarshal discarded: %w", err)
	}
	if len(r.Discarded) == 0 {
		r.Discarded = nil
	}
	return &r, nil
}
