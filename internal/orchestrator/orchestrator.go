// Package orchestrator fans a list of backtest requests out over one dataset.
// Outcomes come back in input order regardless of completion order, and one
// request's failure never aborts its siblings.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"backtest-lab/internal/backtest"
	"backtest-lab/internal/cache"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/marketdata"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/storage"
)

// ErrNoSeries is returned when a dataset carries no series.
var ErrNoSeries = errors.New("dataset has no series")

// Runner executes one backtest. *backtest.Service satisfies it.
type Runner interface {
	Run(ctx context.Context, series *marketdata.Series, req domain.BackTestRequest) (*domain.BackTestResult, error)
}

// Dataset is a validated series with its id. The series is shared read-only
// by every task of a job.
type Dataset struct {
	ID     string
	Series *marketdata.Series
}

// Outcome is the per-request result slot. Exactly one of Result and Err is set.
type Outcome struct {
	Index     int
	RequestID string
	Result    *domain.BackTestResult
	Err       error
}

// OK reports whether the request produced a result.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Options for creating Orchestrator.
type Options struct {
	// Runner defaults to backtest.NewService(Logger).
	Runner Runner

	// Workers bounds concurrent tasks. Defaults to runtime.NumCPU().
	Workers int

	// Optional collaborators
	SeriesCache cache.Cache[*marketdata.Series]
	ResultCache cache.Cache[*domain.BackTestResult]
	ResultStore storage.ResultStore
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// Orchestrator runs batches of backtests over a shared dataset.
type Orchestrator struct {
	runner      Runner
	workers     int
	seriesCache cache.Cache[*marketdata.Series]
	resultCache cache.Cache[*domain.BackTestResult]
	resultStore storage.ResultStore
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = backtest.NewService(logger)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Orchestrator{
		runner:      runner,
		workers:     workers,
		seriesCache: opts.SeriesCache,
		resultCache: opts.ResultCache,
		resultStore: opts.ResultStore,
		metrics:     opts.Metrics,
		logger:      logger.Named("orchestrator"),
	}
}

// Workers returns the effective pool size.
func (o *Orchestrator) Workers() int {
	return o.workers
}

// Job is an in-flight orchestration.
type Job struct {
	ID        uuid.UUID
	DatasetID string
	Requests  int

	done     chan struct{}
	outcomes []Outcome
	err      error
}

// Done is closed once every outcome slot is filled.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx is done. Cancelling ctx here
// only stops waiting; the job keeps the context it was started with.
func (j *Job) Wait(ctx context.Context) ([]Outcome, error) {
	select {
	case <-j.done:
		return j.outcomes, j.err
	default:
	}

	select {
	case <-j.done:
		return j.outcomes, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start launches one task per request and returns immediately.
func (o *Orchestrator) Start(ctx context.Context, ds Dataset, reqs []domain.BackTestRequest) *Job {
	job := &Job{
		ID:        uuid.New(),
		DatasetID: ds.ID,
		Requests:  len(reqs),
		done:      make(chan struct{}),
		outcomes:  make([]Outcome, len(reqs)),
	}

	if ds.Series == nil {
		job.outcomes = nil
		job.err = ErrNoSeries
		close(job.done)
		return job
	}

	go o.execute(ctx, job, ds, reqs)
	return job
}

// Run is Start followed by Wait. Cancelling ctx stops the job, not the wait,
// so the caller always gets every outcome slot back.
func (o *Orchestrator) Run(ctx context.Context, ds Dataset, reqs []domain.BackTestRequest) ([]Outcome, error) {
	return o.Start(ctx, ds, reqs).Wait(context.WithoutCancel(ctx))
}

// RunBars validates bars into a series and runs reqs over it. An invalid
// series aborts the whole call with *marketdata.InvalidSeriesError. An empty
// datasetID is derived from the bars.
func (o *Orchestrator) RunBars(ctx context.Context, datasetID string, bars []domain.Bar, reqs []domain.BackTestRequest) ([]Outcome, error) {
	if datasetID == "" {
		datasetID = idhash.DatasetIDFromBars("", bars)
	}

	series, err := o.series(ctx, datasetID, bars)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, Dataset{ID: datasetID, Series: series}, reqs)
}

func (o *Orchestrator) series(ctx context.Context, datasetID string, bars []domain.Bar) (*marketdata.Series, error) {
	if o.seriesCache != nil {
		s, ok, err := o.seriesCache.Get(ctx, datasetID)
		if err != nil {
			o.logger.Warn("series cache lookup failed", zap.String("dataset_id", datasetID), zap.Error(err))
		}
		o.metrics.RecordCache("series", ok)
		if ok {
			return s, nil
		}
	}

	series, err := marketdata.NewSeries(bars)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, err)
	}
	o.metrics.RecordSeriesBuild()

	if o.seriesCache != nil {
		if err := o.seriesCache.Set(ctx, datasetID, series); err != nil {
			o.logger.Warn("series cache store failed", zap.String("dataset_id", datasetID), zap.Error(err))
		}
	}
	return series, nil
}

// EvictSeries drops a superseded dataset from the series cache.
func (o *Orchestrator) EvictSeries(ctx context.Context, datasetID string) {
	if o.seriesCache == nil || datasetID == "" {
		return
	}
	if err := o.seriesCache.Delete(ctx, datasetID); err != nil {
		o.logger.Warn("series cache evict failed", zap.String("dataset_id", datasetID), zap.Error(err))
	}
}

func (o *Orchestrator) execute(ctx context.Context, job *Job, ds Dataset, reqs []domain.BackTestRequest) {
	defer close(job.done)

	start := time.Now()
	o.metrics.JobStarted()
	defer o.metrics.JobFinished()

	logger := o.logger.With(zap.String("job_id", job.ID.String()), zap.String("dataset_id", ds.ID))
	logger.Info("orchestration started",
		zap.Int("requests", len(reqs)),
		zap.Int("bars", ds.Series.Len()),
		zap.Int("workers", o.workers),
	)

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i := range reqs {
		g.Go(func() error {
			// Each task owns slot i; tasks never fail the group.
			job.outcomes[i] = o.runOne(ctx, ds, i, reqs[i])
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, out := range job.outcomes {
		if !out.OK() {
			failed++
		}
	}

	status := observability.StatusOK
	if ctx.Err() != nil {
		status = observability.StatusCancelled
	}
	elapsed := time.Since(start)
	o.metrics.RecordRun(status, elapsed.Seconds(), time.Now().Unix())

	logger.Info("orchestration finished",
		zap.Int("succeeded", len(reqs)-failed),
		zap.Int("failed", failed),
		zap.Duration("duration", elapsed),
	)
}

func (o *Orchestrator) runOne(ctx context.Context, ds Dataset, index int, req domain.BackTestRequest) (out Outcome) {
	out = Outcome{Index: index, RequestID: req.ID}

	if err := ctx.Err(); err != nil {
		out.Err = err
		o.metrics.RecordBacktest(observability.StatusCancelled, 0, 0)
		return out
	}

	defer func() {
		if r := recover(); r != nil {
			out.Result = nil
			out.Err = &backtest.SimulationError{
				RequestID: req.ID,
				Index:     -1,
				Reason:    fmt.Sprintf("panic: %v", r),
			}
			o.metrics.RecordBacktest(observability.StatusFailed, 0, 0)
			o.logger.Error("backtest panicked",
				zap.String("request_id", req.ID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	fingerprint := idhash.RequestFingerprint(req)
	resultID := idhash.ComputeResultID(ds.ID, req.ID, fingerprint)
	cacheKey := ds.ID + ":" + fingerprint

	if cached := o.cached(ctx, cacheKey); cached != nil {
		res := copyResult(cached)
		res.RequestID = req.ID
		res.Name = req.Name
		res.ResultID = resultID
		res.DatasetID = ds.ID
		o.metrics.RecordBacktest(observability.StatusCached, 0, len(res.Trades))
		out.Result = res
		return out
	}

	start := time.Now()
	res, err := o.runner.Run(ctx, ds.Series, req)
	if err != nil {
		status := observability.StatusFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = observability.StatusCancelled
		}
		o.metrics.RecordBacktest(status, 0, 0)
		o.logger.Warn("backtest failed", zap.String("request_id", req.ID), zap.Error(err))
		out.Err = err
		return out
	}

	res.DatasetID = ds.ID
	res.ResultID = resultID
	o.metrics.RecordBacktest(observability.StatusOK, time.Since(start).Seconds(), len(res.Trades))

	o.remember(ctx, cacheKey, res)
	o.persist(ctx, res)

	out.Result = res
	return out
}

func (o *Orchestrator) cached(ctx context.Context, key string) *domain.BackTestResult {
	if o.resultCache == nil {
		return nil
	}
	res, ok, err := o.resultCache.Get(ctx, key)
	if err != nil {
		o.logger.Warn("result cache lookup failed", zap.String("key", key), zap.Error(err))
	}
	hit := ok && res != nil
	o.metrics.RecordCache("result", hit)
	if !hit {
		return nil
	}
	return res
}

func (o *Orchestrator) remember(ctx context.Context, key string, res *domain.BackTestResult) {
	if o.resultCache == nil {
		return
	}
	if err := o.resultCache.Set(ctx, key, copyResult(res)); err != nil {
		o.logger.Warn("result cache store failed", zap.String("key", key), zap.Error(err))
	}
}

// persist stores res; a duplicate key means an identical run was already stored.
func (o *Orchestrator) persist(ctx context.Context, res *domain.BackTestResult) {
	if o.resultStore == nil {
		return
	}
	err := o.resultStore.Insert(ctx, res)
	if err == nil || errors.Is(err, storage.ErrDuplicateKey) {
		return
	}
	o.logger.Error("persist result failed",
		zap.String("request_id", res.RequestID),
		zap.String("result_id", res.ResultID),
		zap.Error(err),
	)
}

func copyResult(r *domain.BackTestResult) *domain.BackTestResult {
	c := *r
	c.Trades = slices.Clone(r.Trades)
	c.Discarded = slices.Clone(r.Discarded)
	return &c
}
