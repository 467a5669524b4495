package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/weiihann/logbench/backend"
)

// Candidate is one entry of a run: an adapter, the configuration to drive it
// with, and how many trials to record.
//
// When Adapter is nil the coordinator calls New right before the candidate's
// first trial and shuts the adapter down after its last one, so a backend's
// background goroutines never exist while another backend is measured.
type Candidate struct {
	Adapter backend.Adapter
	New     func() (backend.Adapter, error)
	Config  TrialConfig
	Trials  int
}

// Observer receives trial results and shutdown outcomes as they happen.
type Observer interface {
	ObserveTrial(Result)
	ObserveShutdown(backend string, err error)
}

// Coordinator sequences trials and shuts every adapter down exactly once,
// right after the last candidate that uses it.
type Coordinator struct {
	Executor        *Executor
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
	Observer        Observer
}

// NewCoordinator creates a Coordinator with its own Executor.
func NewCoordinator(logger *slog.Logger, shutdownTimeout time.Duration) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		Executor:        NewExecutor(logger),
		Logger:          logger,
		ShutdownTimeout: shutdownTimeout,
	}
}

// RunAll runs every candidate in order and returns one Result per trial.
//
// Shutdown failures are logged and recorded on the adapter's last result
// without stopping the run. Any other trial error is fatal: the remaining
// live adapters are shut down, except one whose workers may still be
// emitting, and the error is returned along with the results gathered so far.
func (c *Coordinator) RunAll(ctx context.Context, candidates []Candidate) ([]Result, error) {
	last := make(map[backend.Adapter]int, len(candidates))
	live := make([]backend.Adapter, 0, len(candidates))

	for i, cand := range candidates {
		if cand.Adapter == nil {
			continue
		}

		if _, seen := last[cand.Adapter]; !seen {
			live = append(live, cand.Adapter)
		}

		last[cand.Adapter] = i
	}

	results := make([]Result, 0, len(candidates))

	for i, cand := range candidates {
		adapter := cand.Adapter
		owned := adapter == nil

		if owned {
			if cand.New == nil {
				err := fmt.Errorf("%w: candidate %d has neither adapter nor constructor",
					ErrInvalidConfig, i)

				return results, c.abort(ctx, live, nil, err)
			}

			var err error

			adapter, err = cand.New()
			if err != nil {
				return results, c.abort(ctx, live, nil, err)
			}

			live = append(live, adapter)
		}

		trials := max(cand.Trials, 1)

		for t := 1; t <= trials; t++ {
			res, err := c.Executor.RunTrial(ctx, adapter, cand.Config)
			if res != nil {
				res.Trial = t
				results = append(results, *res)
				c.observeTrial(*res)
			}

			if err != nil {
				c.Logger.ErrorContext(ctx, "trial failed",
					slog.String("backend", adapter.Name()),
					slog.Int("trial", t),
					slog.String("error", err.Error()),
				)

				var running backend.Adapter
				if errors.Is(err, ErrWorkerTimeout) {
					running = adapter
				}

				return results, c.abort(ctx, live, running, err)
			}
		}

		if !owned && last[adapter] != i {
			continue
		}

		live = remove(live, adapter)

		if err := c.shutdown(ctx, adapter); err != nil && len(results) > 0 {
			results[len(results)-1].ShutdownError = err.Error()
		}

		runtime.GC()
	}

	return results, nil
}

// abort shuts down every live adapter except running and joins any shutdown
// failure onto cause.
func (c *Coordinator) abort(
	ctx context.Context,
	live []backend.Adapter,
	running backend.Adapter,
	cause error,
) error {
	var shutdownErrs *multierror.Error

	for _, a := range live {
		if a == running {
			c.Logger.WarnContext(ctx, "skipping shutdown of backend with running workers",
				slog.String("backend", a.Name()),
			)

			continue
		}

		if err := c.shutdown(ctx, a); err != nil {
			shutdownErrs = multierror.Append(shutdownErrs, err)
		}
	}

	if shutdownErrs == nil {
		return cause
	}

	return multierror.Append(cause, shutdownErrs.Errors...)
}

func remove(live []backend.Adapter, a backend.Adapter) []backend.Adapter {
	for i, l := range live {
		if l == a {
			return append(live[:i], live[i+1:]...)
		}
	}

	return live
}

func (c *Coordinator) shutdown(ctx context.Context, a backend.Adapter) error {
	ctx = context.WithoutCancel(ctx)

	if c.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ShutdownTimeout)
		defer cancel()
	}

	start := time.Now()
	err := a.Shutdown(ctx)

	if c.Observer != nil {
		c.Observer.ObserveShutdown(a.Name(), err)
	}

	if err != nil {
		c.Logger.WarnContext(ctx, "backend shutdown failed",
			slog.String("backend", a.Name()),
			slog.String("error", err.Error()),
		)

		return &ShutdownError{Backend: a.Name(), Err: err}
	}

	c.Logger.DebugContext(ctx, "backend shut down",
		slog.String("backend", a.Name()),
		slog.Duration("took", time.Since(start)),
	)

	return nil
}

func (c *Coordinator) observeTrial(res Result) {
	if c.Observer != nil {
		c.Observer.ObserveTrial(res)
	}
}
