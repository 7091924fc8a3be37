package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func testBar(d int, close float64) domain.Bar {
	return domain.Bar{
		Timestamp:        day(d),
		Open:             close,
		High:             close + 1,
		Low:              close - 1,
		Close:            close,
		AdjustedClose:    close,
		Volume:           1000,
		SplitCoefficient: 1,
	}
}

func TestBarStore_InsertBulkAndGet(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	// Inserted out of order, returned ascending.
	bars := []domain.Bar{testBar(3, 12), testBar(1, 10), testBar(2, 11)}
	if err := store.InsertBulk(ctx, "AAPL", bars); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetBySymbol(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetBySymbol failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 bars, got %d", len(result))
	}
	for i, want := range []float64{10, 11, 12} {
		if result[i].Close != want {
			t.Errorf("bar %d: expected close %v, got %v", i, want, result[i].Close)
		}
	}

	other, err := store.GetBySymbol(ctx, "MSFT")
	if err != nil {
		t.Fatalf("GetBySymbol failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected no bars for unknown symbol, got %d", len(other))
	}
}

func TestBarStore_DuplicateKey(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, "AAPL", []domain.Bar{testBar(1, 10)}); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, "AAPL", []domain.Bar{testBar(2, 11), testBar(1, 10)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Batch is atomic: day 2 must not have been stored.
	result, _ := store.GetBySymbol(ctx, "AAPL")
	if len(result) != 1 {
		t.Errorf("Expected 1 bar after failed batch, got %d", len(result))
	}

	// Same timestamp under another symbol is fine.
	if err := store.InsertBulk(ctx, "MSFT", []domain.Bar{testBar(1, 10)}); err != nil {
		t.Errorf("Insert for other symbol failed: %v", err)
	}
}

func TestBarStore_IntraBatchDuplicate(t *testing.T) {
	store := NewBarStore()

	err := store.InsertBulk(context.Background(), "AAPL", []domain.Bar{testBar(1, 10), testBar(1, 11)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestBarStore_InvalidInput(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, "", []domain.Bar{testBar(1, 10)}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty symbol, got %v", err)
	}
	if err := store.InsertBulk(ctx, "AAPL", []domain.Bar{{Close: 1}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero timestamp, got %v", err)
	}
}

func TestBarStore_GetByTimeRange(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	bars := []domain.Bar{testBar(1, 10), testBar(2, 11), testBar(3, 12), testBar(4, 13)}
	if err := store.InsertBulk(ctx, "AAPL", bars); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByTimeRange(ctx, "AAPL", day(2), day(3))
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 bars (inclusive range), got %d", len(result))
	}
	if !result[0].Timestamp.Equal(day(2)) || !result[1].Timestamp.Equal(day(3)) {
		t.Errorf("Unexpected range: %v, %v", result[0].Timestamp, result[1].Timestamp)
	}
}

func TestBarStore_Symbols(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	for _, sym := range []string{"MSFT", "AAPL", "GOOG"} {
		if err := store.InsertBulk(ctx, sym, []domain.Bar{testBar(1, 10)}); err != nil {
			t.Fatalf("InsertBulk %s failed: %v", sym, err)
		}
	}

	symbols, err := store.Symbols(ctx)
	if err != nil {
		t.Fatalf("Symbols failed: %v", err)
	}
	want := []string{"AAPL", "GOOG", "MSFT"}
	if len(symbols) != len(want) {
		t.Fatalf("Expected %v, got %v", want, symbols)
	}
	for i := range want {
		if symbols[i] != want[i] {
			t.Errorf("symbols[%d] = %s, want %s", i, symbols[i], want[i])
		}
	}
}
