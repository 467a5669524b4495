package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/logbench/backend"
	"github.com/weiihann/logbench/workload"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func durationConfig(threads int, measurement time.Duration) TrialConfig {
	return TrialConfig{
		Threads:     threads,
		Mode:        ModeDuration,
		Warmup:      50 * time.Millisecond,
		Measurement: measurement,
		Template:    DefaultTemplate,
		GracePeriod: time.Second,
	}
}

func iterationConfig(threads int, warmup, measurement int64) TrialConfig {
	return TrialConfig{
		Threads:               threads,
		Mode:                  ModeIterations,
		WarmupIterations:      warmup,
		MeasurementIterations: measurement,
		Template:              DefaultTemplate,
		GracePeriod:           time.Second,
	}
}

func newNullAdapter(t *testing.T) backend.Adapter {
	t.Helper()

	a, err := backend.New(backend.Null, backend.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	return a
}

func assertAccounting(t *testing.T, res *Result) {
	t.Helper()

	var sum int64
	for _, n := range res.Workers {
		sum += n
	}

	assert.Equal(t, res.Completed, sum, "completed must equal the sum of worker counts")
	assert.Equal(t, res.Issued, res.Completed+res.Failed+res.Abandoned,
		"every issued sequence number is accounted for exactly once")
	assert.LessOrEqual(t, res.Abandoned, int64(res.Threads))
}

func TestRunTrialNullBaseline(t *testing.T) {
	exec := NewExecutor(testLogger())
	adapter := newNullAdapter(t)
	cfg := durationConfig(10, 500*time.Millisecond)

	first, err := exec.RunTrial(context.Background(), adapter, cfg)
	require.NoError(t, err)

	assert.Equal(t, backend.Null, first.Backend)
	assert.Equal(t, 10, first.Threads)
	assert.Len(t, first.Workers, 10)
	assert.Positive(t, first.Completed)
	assert.Zero(t, first.Failed)
	assert.False(t, first.Interrupted)
	assert.GreaterOrEqual(t, first.Elapsed, 500*time.Millisecond)
	assert.Less(t, first.Elapsed, 800*time.Millisecond)
	assertAccounting(t, first)

	second, err := exec.RunTrial(context.Background(), adapter, cfg)
	require.NoError(t, err)

	ratio := first.Throughput() / second.Throughput()
	assert.Greater(t, ratio, 0.2, "throughput should be reproducible: %f vs %f",
		first.Throughput(), second.Throughput())
	assert.Less(t, ratio, 5.0, "throughput should be reproducible: %f vs %f",
		first.Throughput(), second.Throughput())
}

func TestRunTrialIterationBudget(t *testing.T) {
	exec := NewExecutor(testLogger())
	adapter := newTestAdapter("counted", nil)

	cfg := iterationConfig(8, 50, 1000)
	cfg.Workload = workload.Spec{CPUTokens: 100}

	res, err := exec.RunTrial(context.Background(), adapter, cfg)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), res.Completed)
	assert.Equal(t, int64(1000), res.Issued, "warmup counts must not leak into measurement")
	assert.Zero(t, res.Abandoned)
	assert.Equal(t, int64(1050), adapter.emits.Load())
	assertAccounting(t, res)
}

func TestRunTrialInterrupted(t *testing.T) {
	exec := NewExecutor(testLogger())
	adapter := newTestAdapter("slow", nil)

	cfg := durationConfig(20, time.Minute)
	cfg.Warmup = 10 * time.Millisecond
	cfg.Workload = workload.Spec{IOBlockMicros: 50_000}
	cfg.GracePeriod = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := exec.RunTrial(ctx, adapter, cfg)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, res)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, res.Interrupted)
	assert.Positive(t, res.Abandoned)
	assertAccounting(t, res)
}

func TestRunTrialInterruptedDuringWarmup(t *testing.T) {
	exec := NewExecutor(testLogger())
	adapter := newTestAdapter("slow", nil)

	cfg := durationConfig(4, time.Second)
	cfg.Warmup = time.Minute
	cfg.Workload = workload.Spec{IOBlockMicros: 10_000}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := exec.RunTrial(ctx, adapter, cfg)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, res)
}

func TestRunTrialGraceTimeout(t *testing.T) {
	exec := NewExecutor(testLogger())
	adapter := newTestAdapter("stuck", nil)
	adapter.block = make(chan struct{})
	t.Cleanup(func() { close(adapter.block) })

	cfg := durationConfig(4, time.Second)
	cfg.Warmup = 20 * time.Millisecond
	cfg.GracePeriod = 100 * time.Millisecond

	start := time.Now()
	res, err := exec.RunTrial(context.Background(), adapter, cfg)

	require.ErrorIs(t, err, ErrWorkerTimeout)
	assert.Nil(t, res)
	assert.Less(t, time.Since(start), 2*time.Second)

	var terr *TimeoutError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "stuck", terr.Backend)
	assert.Equal(t, "warmup", terr.Phase)
	assert.Equal(t, int64(4), terr.Running)
	assert.Contains(t, err.Error(), "stuck")
}

func TestRunTrialEmitErrorsAreCounted(t *testing.T) {
	exec := NewExecutor(testLogger())
	adapter := newTestAdapter("flaky", nil)
	adapter.emitErr = func(arg int64) error {
		if arg%2 == 0 {
			return fmt.Errorf("disk full at %d", arg)
		}
		return nil
	}

	res, err := exec.RunTrial(context.Background(), adapter, iterationConfig(10, 10, 1000))
	require.NoError(t, err)

	assert.Equal(t, int64(500), res.Completed)
	assert.Equal(t, int64(500), res.Failed)
	assert.Contains(t, res.FirstError, "backend flaky")
	assert.Contains(t, res.FirstError, "disk full")
	assertAccounting(t, res)
}

func TestRunTrialEmitFailureOutlivesInterruptedWorkload(t *testing.T) {
	exec := NewExecutor(testLogger())
	adapter := newTestAdapter("broken", nil)
	adapter.emitErr = func(int64) error { return errors.New("sink closed") }

	cfg := durationConfig(10, 100*time.Millisecond)
	cfg.Warmup = 10 * time.Millisecond
	cfg.Workload = workload.Spec{IOBlockMicros: 30_000}

	res, err := exec.RunTrial(context.Background(), adapter, cfg)
	require.NoError(t, err)

	assert.Zero(t, res.Completed)
	assert.Zero(t, res.Abandoned, "an operation whose emit failed is never abandoned")
	assert.Equal(t, res.Issued, res.Failed)
	assert.Contains(t, res.FirstError, "sink closed")
	assertAccounting(t, res)
}

func TestRunTrialEmitPanicIsContained(t *testing.T) {
	exec := NewExecutor(testLogger())
	adapter := newTestAdapter("panicky", nil)
	adapter.panicOnEmit = true

	res, err := exec.RunTrial(context.Background(), adapter, iterationConfig(4, 4, 100))
	require.NoError(t, err)

	assert.Zero(t, res.Completed)
	assert.Equal(t, int64(100), res.Failed)
	assert.Contains(t, res.FirstError, "panicked")
	assertAccounting(t, res)
}

func TestRunTrialBaselineDominance(t *testing.T) {
	exec := NewExecutor(testLogger())

	cfg := durationConfig(10, 300*time.Millisecond)
	cfg.Workload = workload.Spec{CPUTokens: 1_000, IOBlockMicros: 1_000}

	baseline, err := exec.RunTrial(context.Background(), newNullAdapter(t), cfg)
	require.NoError(t, err)

	slow := newTestAdapter("slow", nil)
	slow.delay = 2 * time.Millisecond

	measured, err := exec.RunTrial(context.Background(), slow, cfg)
	require.NoError(t, err)

	assert.Greater(t, baseline.Throughput(), measured.Throughput())
}

func TestRunTrialBaselineDominatesRealBackends(t *testing.T) {
	exec := NewExecutor(testLogger())

	cfg := durationConfig(4, 200*time.Millisecond)
	cfg.Workload = workload.Spec{CPUTokens: 100}

	baseline, err := exec.RunTrial(context.Background(), newNullAdapter(t), cfg)
	require.NoError(t, err)

	for _, name := range []string{backend.Logrus, backend.Slog} {
		t.Run(name, func(t *testing.T) {
			opts := backend.DefaultOptions()
			opts.Output = "discard"

			adapter, err := backend.New(name, opts)
			require.NoError(t, err)
			t.Cleanup(func() { _ = adapter.Shutdown(context.Background()) })

			measured, err := exec.RunTrial(context.Background(), adapter, cfg)
			require.NoError(t, err)

			assert.Positive(t, measured.Completed)
			assert.Greater(t, baseline.Throughput(), measured.Throughput(),
				"null %.0f ops/s vs %s %.0f ops/s",
				baseline.Throughput(), name, measured.Throughput())
		})
	}
}

func TestRunTrialRejectsInvalidInput(t *testing.T) {
	exec := NewExecutor(testLogger())
	adapter := newTestAdapter("unused", nil)

	_, err := exec.RunTrial(context.Background(), adapter, TrialConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := durationConfig(1, time.Second)
	cfg.Workload = workload.Spec{CPUTokens: -1}

	_, err = exec.RunTrial(context.Background(), adapter, cfg)

	var werr *workload.Error
	assert.True(t, errors.As(err, &werr))
	assert.Zero(t, adapter.emits.Load())
}
