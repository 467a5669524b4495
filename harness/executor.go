package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weiihann/logbench/backend"
	"github.com/weiihann/logbench/workload"
)

// Executor runs timed trials against one adapter at a time.
type Executor struct {
	Logger *slog.Logger
}

// NewExecutor creates an Executor that logs through logger.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{Logger: logger}
}

// RunTrial runs a discarded warmup phase followed by a measured phase and
// returns the measurement.
//
// If ctx is cancelled during measurement, RunTrial returns the partial result
// together with ctx.Err(). A phase whose workers do not stop within the grace
// period yields a *TimeoutError and no result.
func (e *Executor) RunTrial(
	ctx context.Context,
	adapter backend.Adapter,
	cfg TrialConfig,
) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sim, err := workload.New(cfg.Workload)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", adapter.Name(), err)
	}

	logger := e.Logger.With(slog.String("backend", adapter.Name()))
	warmup, measurement := cfg.phases()

	logger.DebugContext(ctx, "warmup started",
		slog.Int("threads", cfg.Threads),
		slog.String("mode", string(cfg.Mode)),
	)

	if _, err := e.runPhase(ctx, adapter, sim, cfg, warmup); err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "measurement started")

	out, err := e.runPhase(ctx, adapter, sim, cfg, measurement)
	if out == nil {
		return nil, err
	}

	res := out.result(adapter.Name())

	if err != nil {
		res.Interrupted = true

		logger.WarnContext(ctx, "measurement interrupted",
			slog.Int64("completed", res.Completed),
			slog.Duration("elapsed", res.Elapsed),
		)

		return res, err
	}

	if res.Failed > 0 {
		logger.WarnContext(ctx, "emit failures during measurement",
			slog.Int64("failed", res.Failed),
			slog.String("first_error", res.FirstError),
		)
	}

	logger.InfoContext(ctx, "trial finished",
		slog.Int64("completed", res.Completed),
		slog.Duration("elapsed", res.Elapsed),
		slog.Float64("ops_per_sec", res.Throughput()),
	)

	return res, nil
}

type phaseOutcome struct {
	workers []*worker
	issued  int64
	elapsed time.Duration
}

func (o *phaseOutcome) result(name string) *Result {
	res := &Result{
		Backend: name,
		Threads: len(o.workers),
		Issued:  o.issued,
		Elapsed: o.elapsed,
		Workers: make([]int64, len(o.workers)),
	}

	for i, w := range o.workers {
		res.Workers[i] = w.completed
		res.Completed += w.completed
		res.Failed += w.failed
		res.Abandoned += w.abandoned

		if res.FirstError == "" && w.firstErr != nil {
			res.FirstError = w.firstErr.Error()
		}
	}

	return res
}

// runPhase starts cfg.Threads workers behind a start barrier and waits for
// all of them to return. The outcome is nil if the grace period expires.
func (e *Executor) runPhase(
	parent context.Context,
	adapter backend.Adapter,
	sim *workload.Simulator,
	cfg TrialConfig,
	p phase,
) (*phaseOutcome, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		g        errgroup.Group
		seq      atomic.Int64
		budget   *atomic.Int64
		running  atomic.Int64
		ready    sync.WaitGroup
		start    = make(chan struct{})
		stopped  = make(chan struct{})
		stopOnce sync.Once
	)

	stop := func() { stopOnce.Do(func() { close(stopped) }) }
	defer context.AfterFunc(ctx, stop)()

	if p.iterations > 0 {
		budget = new(atomic.Int64)
		budget.Store(p.iterations)
	}

	workers := make([]*worker, cfg.Threads)
	ready.Add(cfg.Threads)
	running.Store(int64(cfg.Threads))

	for i := range workers {
		w := &worker{
			adapter:   adapter,
			sim:       sim,
			template:  cfg.Template,
			seq:       &seq,
			budget:    budget,
			exhausted: stop,
		}
		workers[i] = w

		g.Go(func() error {
			defer running.Add(-1)

			ready.Done()
			<-start

			w.run(ctx)

			return nil
		})
	}

	ready.Wait()

	begin := time.Now()

	if p.duration > 0 {
		timer := time.AfterFunc(p.duration, cancel)
		defer timer.Stop()
	}

	close(start)

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-stopped:
		grace := time.NewTimer(cfg.GracePeriod)
		defer grace.Stop()

		select {
		case <-done:
		case <-grace.C:
			return nil, &TimeoutError{
				Backend: adapter.Name(),
				Phase:   p.name,
				Grace:   cfg.GracePeriod,
				Running: running.Load(),
			}
		}
	}

	elapsed := time.Since(begin)

	out := &phaseOutcome{
		workers: workers,
		issued:  seq.Load(),
		elapsed: elapsed,
	}

	return out, parent.Err()
}

// worker owns its counters; they are read only after the errgroup returns.
type worker struct {
	adapter   backend.Adapter
	sim       *workload.Simulator
	template  string
	seq       *atomic.Int64
	budget    *atomic.Int64
	exhausted func()

	completed int64
	failed    int64
	abandoned int64
	firstErr  error
}

// run issues operations until ctx is done or the budget runs out. An emit
// failure is counted as failed even when the phase stops during its workload;
// otherwise an interrupted workload abandons the operation.
func (w *worker) run(ctx context.Context) {
	for ctx.Err() == nil {
		if w.budget != nil && w.budget.Add(-1) < 0 {
			w.exhausted()

			return
		}

		emitErr := w.emit(w.seq.Add(1))

		// Run fails only with ctx.Err(), which also ends the loop.
		workErr := w.sim.Run(ctx)

		switch {
		case emitErr != nil:
			w.failed++
			if w.firstErr == nil {
				w.firstErr = emitErr
			}
		case workErr != nil:
			w.abandoned++
		default:
			w.completed++
		}
	}
}

func (w *worker) emit(n int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &EmitError{Backend: w.adapter.Name(), Panic: r}
		}
	}()

	if err := w.adapter.Emit(w.template, n); err != nil {
		return &EmitError{Backend: w.adapter.Name(), Err: err}
	}

	return nil
}
