package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"backtest-lab/internal/cache"
	"backtest-lab/internal/config"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/ingestion"
	"backtest-lab/internal/marketdata"
	"backtest-lab/internal/metrics"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/orchestrator"
	"backtest-lab/internal/storage"
	chstore "backtest-lab/internal/storage/clickhouse"
	"backtest-lab/internal/storage/memory"
	"backtest-lab/internal/storage/migrations"
	pgstore "backtest-lab/internal/storage/postgres"
	"backtest-lab/internal/verification"
)

// Server holds all components of the backtest service.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	registry *prometheus.Registry

	stores *stores
	orch   *orchestrator.Orchestrator
	warm   *orchestrator.WarmStarter
	verify verification.Verifier

	// newSource opens the ingestion feed; nil disables ingestion.
	newSource func(ctx context.Context) (ingestion.Source, error)

	// State
	mu            sync.Mutex
	started       time.Time
	source        ingestion.Source
	eventsHandled int
	lastEvent     *domain.IngestionCompleted
	lastEventAt   time.Time
	lastError     string
	symbols       map[string]SymbolStatus
}

// stores holds the storage implementations selected by configuration.
type stores struct {
	bars    storage.BarStore
	results storage.ResultStore
	kv      storage.KVStore

	// healthy reports database reachability. Nil for memory stores.
	healthy func(ctx context.Context) error
}

// NewServer loads configuration and wires stores, caches and the ingestion
// feed. The returned cleanup closes database connections.
func NewServer(ctx context.Context, configPath string) (*Server, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}

	registry := prometheus.NewRegistry()
	m := observability.NewMetrics("", registry)

	st, closeStores, err := createStores(ctx, cfg, m)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("create stores: %w", err)
	}

	s := newServer(cfg, st, logger, m, registry)
	if cfg.Ingestion.Endpoint != "" {
		s.newSource = func(ctx context.Context) (ingestion.Source, error) {
			sc := ingestion.DefaultSubscriberConfig()
			sc.ReconnectDelay = cfg.Ingestion.ReconnectMin
			sc.MaxReconnectDelay = cfg.Ingestion.ReconnectMax
			return ingestion.NewSubscriber(ctx, cfg.Ingestion.Endpoint, &sc, logger, m)
		}
	}

	cleanup := func() {
		closeStores()
		_ = logger.Sync()
	}
	return s, cleanup, nil
}

// newServer builds the orchestration layer over already-created stores.
func newServer(cfg *config.Config, st *stores, logger *zap.Logger, m *observability.Metrics, registry *prometheus.Registry) *Server {
	opts := orchestrator.Options{
		Workers:     cfg.Backtest.Workers,
		SeriesCache: cache.NewMemory[*marketdata.Series](),
		ResultStore: st.results,
		Metrics:     m,
		Logger:      logger,
	}
	if cfg.Backtest.CacheResults {
		opts.ResultCache = cache.NewCodec[*domain.BackTestResult](st.kv, "result:")
	}
	orch := orchestrator.New(opts)

	s := &Server{
		cfg:      cfg,
		logger:   logger.Named("server"),
		metrics:  m,
		registry: registry,
		stores:   st,
		orch:     orch,
		symbols:  make(map[string]SymbolStatus),
	}
	s.warm = orchestrator.NewWarmStarter(orch, st.bars, cfg.Backtest.Requests, logger)
	s.warm.OnOutcomes = s.recordOutcomes
	s.verify = verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		BarStore:    st.bars,
		ResultStore: st.results,
		Requests:    cfg.Backtest.Requests,
	})
	return s
}

// createStores creates all required stores.
func createStores(ctx context.Context, cfg *config.Config, m *observability.Metrics) (*stores, func(), error) {
	if cfg.Storage.UseMemory {
		return &stores{
			bars:    memory.NewBarStore(),
			results: memory.NewResultStore(),
			kv:      memory.NewKVStore(),
		}, func() {}, nil
	}

	// PostgreSQL
	// Each worker may persist a result at the same time as the
	// warm-start reads, so leave a couple of spare connections.
	var poolOpts []pgstore.PoolOption
	if cfg.Backtest.Workers > 0 {
		poolOpts = append(poolOpts, pgstore.WithMaxConns(int32(cfg.Backtest.Workers)+2))
	}
	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN, poolOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse
	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	st := &stores{
		results: pgstore.NewResultStore(pool).WithMetrics(m),
		kv:      pgstore.NewKVStore(pool),
		bars:    chstore.NewBarStore(chConn).WithMetrics(m),
		healthy: func(ctx context.Context) error {
			if err := pool.Healthy(ctx); err != nil {
				return err
			}
			return chConn.Healthy(ctx)
		},
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return st, cleanup, nil
}

// Run serves HTTP and consumes the ingestion feed until ctx is cancelled or
// a component fails.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting server",
		zap.String("addr", s.cfg.Server.Addr),
		zap.Int("workers", s.orch.Workers()),
		zap.Int("requests", len(s.cfg.Backtest.Requests)),
		zap.Bool("ingestion", s.newSource != nil))

	errCh := make(chan error, 2)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if s.newSource != nil {
		src, err := s.newSource(ctx)
		if err != nil {
			_ = httpServer.Close()
			return fmt.Errorf("open ingestion feed: %w", err)
		}
		s.mu.Lock()
		s.source = src
		s.mu.Unlock()
		defer src.Close()

		go func() {
			err := ingestion.Consume(ctx, src, s.handleEvent, s.logger, s.metrics)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("ingestion: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	return runErr
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if s.stores.healthy != nil {
			if err := s.stores.healthy(r.Context()); err != nil {
				s.logger.Warn("health check failed", zap.Error(err))
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.HandlerFor(s.registry))
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/verify", s.handleVerify)

	return mux
}

// handleEvent runs the warm start for one completion event.
func (s *Server) handleEvent(ctx context.Context, ev domain.IngestionCompleted) error {
	err := s.warm.Handle(ctx, ev)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventsHandled++
	evCopy := ev
	s.lastEvent = &evCopy
	s.lastEventAt = time.Now()
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	return err
}

// recordOutcomes keeps the latest per-symbol summary for /status.
func (s *Server) recordOutcomes(symbol, datasetID string, outcomes []orchestrator.Outcome) {
	st := SymbolStatus{DatasetID: datasetID, UpdatedAt: time.Now()}

	var results []*domain.BackTestResult
	for _, out := range outcomes {
		if out.OK() {
			results = append(results, out.Result)
		} else {
			st.Failures++
		}
	}
	st.Results = len(results)
	if ranked := metrics.Rank(results); len(ranked) > 0 {
		st.BestRequest = ranked[0].RequestID
		st.BestPnL = ranked[0].Summary.TotalPnL
	}

	s.mu.Lock()
	s.symbols[symbol] = st
	s.mu.Unlock()
}

// SymbolStatus summarizes the latest warm start of one symbol.
type SymbolStatus struct {
	DatasetID   string    `json:"dataset_id"`
	Results     int       `json:"results"`
	Failures    int       `json:"failures"`
	BestRequest string    `json:"best_request,omitempty"`
	BestPnL     float64   `json:"best_pnl"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string                  `json:"status"`
	Uptime        string                  `json:"uptime"`
	Started       time.Time               `json:"started"`
	Workers       int                     `json:"workers"`
	Requests      int                     `json:"requests"`
	Ingestion     bool                    `json:"ingestion"`
	Reconnects    int64                   `json:"reconnects"`
	EventsHandled int                     `json:"events_handled"`
	LastEventID   string                  `json:"last_event_id,omitempty"`
	LastEventAt   time.Time               `json:"last_event_at,omitempty"`
	LastError     string                  `json:"last_error,omitempty"`
	Symbols       []string                `json:"symbols"`
	Results       map[string]SymbolStatus `json:"results"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		Started:       s.started,
		Workers:       s.orch.Workers(),
		Requests:      len(s.cfg.Backtest.Requests),
		Ingestion:     s.newSource != nil,
		EventsHandled: s.eventsHandled,
		LastEventAt:   s.lastEventAt,
		LastError:     s.lastError,
		Results:       make(map[string]SymbolStatus, len(s.symbols)),
	}
	if s.lastEvent != nil {
		resp.LastEventID = s.lastEvent.ID
	}
	if sub, ok := s.source.(*ingestion.Subscriber); ok {
		resp.Reconnects = sub.Reconnects()
	}
	for sym, st := range s.symbols {
		resp.Results[sym] = st
	}
	s.mu.Unlock()

	symbols, err := s.stores.bars.Symbols(r.Context())
	if err != nil {
		s.logger.Warn("list symbols for status", zap.Error(err))
	}
	sort.Strings(symbols)
	if symbols == nil {
		symbols = []string{}
	}
	resp.Symbols = symbols

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleVerify replays the stored results of one symbol and reports
// divergences as JSON.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	report, err := s.verify.VerifySymbol(r.Context(), symbol)
	switch {
	case errors.Is(err, verification.ErrNoBars):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error("verify", zap.String("symbol", symbol), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if report.Divergent > 0 {
		s.logger.Warn("replay divergence",
			zap.String("symbol", symbol),
			zap.Int("divergent", report.Divergent),
			zap.Int("matched", report.Matched))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}
