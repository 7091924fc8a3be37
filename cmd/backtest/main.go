package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/marketdata"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/orchestrator"
	"backtest-lab/internal/reporting"
	"backtest-lab/internal/storage"
	chstore "backtest-lab/internal/storage/clickhouse"
	"backtest-lab/internal/storage/memory"
	"backtest-lab/internal/storage/migrations"
	pgstore "backtest-lab/internal/storage/postgres"
)

func main() {
	// Input
	dataPath := flag.String("data", "", "Path to OHLCV CSV dataset (required)")
	requestsPath := flag.String("requests", "", "Path to JSON array of backtest requests (required)")
	datasetID := flag.String("dataset-id", "", "Dataset ID (default: base58 SHA256 of the CSV bytes)")

	// Execution
	workers := flag.Int("workers", 0, "Concurrent backtests (default: number of CPUs)")

	// Storage
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (with --symbol, stores the bars)")
	symbol := flag.String("symbol", "", "Symbol to store the bars under in ClickHouse")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")
	persist := flag.Bool("persist", false, "Persist results to storage")

	// Output
	outputJSON := flag.Bool("json", false, "Output as JSON")
	outputCSV := flag.Bool("csv", false, "Output rankings as CSV")
	outputTrades := flag.Bool("trades", false, "With --csv, output every trade instead of rankings")
	logLevel := flag.String("log-level", "warn", "Log level: debug, info, warn, error")

	flag.Parse()

	logger := log.New(os.Stderr, "[backtest] ", log.LstdFlags)

	if *dataPath == "" {
		logger.Fatal("--data is required")
	}
	if *requestsPath == "" {
		logger.Fatal("--requests is required")
	}
	if *outputJSON && *outputCSV {
		logger.Fatal("--json and --csv are mutually exclusive")
	}

	zlog, err := observability.NewLogger(*logLevel, "console")
	if err != nil {
		logger.Fatalf("create logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling...", sig)
		cancel()
	}()

	raw, err := os.ReadFile(*dataPath)
	if err != nil {
		logger.Fatalf("read dataset: %v", err)
	}
	bars, err := marketdata.ParseCSV(bytes.NewReader(raw))
	if err != nil {
		logger.Fatalf("parse dataset: %v", err)
	}
	if *datasetID == "" {
		*datasetID = idhash.DatasetID(raw)
	}

	requests, err := loadRequests(*requestsPath)
	if err != nil {
		logger.Fatalf("load requests: %v", err)
	}

	var resultStore storage.ResultStore
	if *persist {
		if *useMemory {
			resultStore = memory.NewResultStore()
		} else {
			if *postgresDSN == "" {
				logger.Fatal("--postgres-dsn is required with --persist unless --use-memory is set")
			}
			pool, err := pgstore.NewPool(ctx, *postgresDSN)
			if err != nil {
				logger.Fatalf("connect to postgres: %v", err)
			}
			defer pool.Close()

			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				logger.Fatalf("postgres migrations: %v", err)
			}
			resultStore = pgstore.NewResultStore(pool)
		}
	}

	if *symbol != "" && *clickhouseDSN != "" && !*useMemory {
		if err := storeBars(ctx, *clickhouseDSN, *symbol, bars); err != nil {
			logger.Fatalf("store bars: %v", err)
		}
		logger.Printf("Stored %d bars for %s", len(bars), *symbol)
	}

	orch := orchestrator.New(orchestrator.Options{
		Workers:     *workers,
		ResultStore: resultStore,
		Logger:      zlog,
	})

	logger.Printf("Running %d backtests on dataset %s (%d bars, %d workers)",
		len(requests), *datasetID, len(bars), orch.Workers())

	outcomes, err := orch.RunBars(ctx, *datasetID, bars, requests)
	if err != nil {
		logger.Fatalf("backtest failed: %v", err)
	}

	report := reporting.NewGenerator().FromOutcomes(*datasetID, outcomes)

	switch {
	case *outputJSON:
		output, err := reporting.RenderJSON(report)
		if err != nil {
			logger.Fatalf("render json: %v", err)
		}
		fmt.Println(string(output))
	case *outputCSV && *outputTrades:
		fmt.Print(reporting.RenderTradesCSV(report))
	case *outputCSV:
		fmt.Print(reporting.RenderCSV(report))
	default:
		fmt.Print(reporting.RenderText(report))
	}

	failed := 0
	for _, out := range outcomes {
		if !out.OK() {
			failed++
			zlog.Debug("request failed", zap.String("request_id", out.RequestID), zap.Error(out.Err))
		}
	}
	if failed == len(outcomes) && failed > 0 {
		logger.Printf("All %d requests failed", failed)
		os.Exit(1)
	}
}

// loadRequests reads a JSON array of requests.
func loadRequests(path string) ([]domain.BackTestRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var requests []domain.BackTestRequest
	if err := json.Unmarshal(data, &requests); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(requests) == 0 {
		return nil, errors.New("no requests")
	}
	return requests, nil
}

// storeBars writes bars to ClickHouse so the server can warm-start on them.
// Bars already stored are left as they are.
func storeBars(ctx context.Context, dsn, symbol string, bars []domain.Bar) error {
	conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close()

	err = chstore.NewBarStore(conn).InsertBulk(ctx, symbol, bars)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	return err
}
