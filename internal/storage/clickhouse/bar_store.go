package clickhouse

import (
	"context"
	"fmt"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
type BarStore struct {
	conn    *Conn
	metrics *observability.Metrics
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// WithMetrics records query duration and errors on m.
func (s *BarStore) WithMetrics(m *observability.Metrics) *BarStore {
	s.metrics = m
	return s
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertBulk adds bars for a symbol. Fails entire batch on duplicate (symbol, ts).
// MergeTree does not enforce uniqueness, so duplicates are checked before insert.
func (s *BarStore) InsertBulk(ctx context.Context, symbol string, bars []domain.Bar) (err error) {
	if symbol == "" {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}
	defer s.observe("insert_bars", time.Now(), &err)

	// Check for intra-batch duplicates
	seen := make(map[int64]struct{}, len(bars))
	minTs, maxTs := bars[0].Timestamp, bars[0].Timestamp
	for _, b := range bars {
		if b.Timestamp.IsZero() {
			return storage.ErrInvalidInput
		}
		k := b.Timestamp.UnixMilli()
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		if b.Timestamp.Before(minTs) {
			minTs = b.Timestamp
		}
		if b.Timestamp.After(maxTs) {
			maxTs = b.Timestamp
		}
	}

	// Check for duplicates against existing rows in the batch's span
	existing, err := s.timestampsInRange(ctx, symbol, minTs, maxTs)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	for _, ts := range existing {
		if _, dup := seen[ts.UnixMilli()]; dup {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_bars (
			symbol, ts, open, high, low, close,
			adjusted_close, volume, dividend_amount, split_coefficient
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			symbol, b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close,
			b.AdjustedClose, b.Volume, b.DividendAmount, b.SplitCoefficient,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySymbol retrieves all bars for a symbol, ordered by timestamp ASC.
func (s *BarStore) GetBySymbol(ctx context.Context, symbol string) (_ []domain.Bar, err error) {
	defer s.observe("get_bars", time.Now(), &err)

	query := `
		SELECT ts, open, high, low, close, adjusted_close, volume, dividend_amount, split_coefficient
		FROM market_bars
		WHERE symbol = ?
		ORDER BY ts ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query by symbol: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// GetByTimeRange retrieves bars for a symbol within [start, end] (inclusive).
func (s *BarStore) GetByTimeRange(ctx context.Context, symbol string, start, end time.Time) (_ []domain.Bar, err error) {
	defer s.observe("get_bars_range", time.Now(), &err)

	query := `
		SELECT ts, open, high, low, close, adjusted_close, volume, dividend_amount, split_coefficient
		FROM market_bars
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// Symbols lists every stored symbol in ascending order.
func (s *BarStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT symbol FROM market_bars ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

func (s *BarStore) timestampsInRange(ctx context.Context, symbol string, start, end time.Time) ([]time.Time, error) {
	query := `
		SELECT ts FROM market_bars
		WHERE symbol = ? AND ts >= ? AND ts <= ?
	`

	rows, err := s.conn.Query(ctx, query, symbol, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (s *BarStore) observe(op string, start time.Time, err *error) {
	s.metrics.RecordDBQuery("clickhouse", op, time.Since(start).Seconds(), *err)
}

// scanBars scans multiple rows.
func scanBars(rows chRows) ([]domain.Bar, error) {
	var bars []domain.Bar

	for rows.Next() {
		var b domain.Bar
		err := rows.Scan(
			&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close,
			&b.AdjustedClose, &b.Volume, &b.DividendAmount, &b.SplitCoefficient,
		)
		if err != nil {
			return nil, fmt.Errorf("scan market bar row: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market bar rows: %w", err)
	}

	return bars, nil
}
