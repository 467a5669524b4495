// Package workload simulates the application work that surrounds a log call:
// a deterministic amount of CPU burn and a bounded, interruptible block that
// stands in for IO.
package workload

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Spec describes the synthetic work performed once per operation.
// A zero field skips that step entirely.
type Spec struct {
	CPUTokens     int64 `json:"cpu_tokens"`
	IOBlockMicros int64 `json:"io_block_micros"`
}

// IsZero reports whether the spec performs no work at all.
func (s Spec) IsZero() bool {
	return s.CPUTokens == 0 && s.IOBlockMicros == 0
}

// IOBlock returns the IO block as a duration.
func (s Spec) IOBlock() time.Duration {
	return time.Duration(s.IOBlockMicros) * time.Microsecond
}

// Error reports a broken workload. It is never caused by cancellation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("workload %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Simulator runs a validated Spec.
type Simulator struct {
	spec     Spec
	firstCPU int64
	lastCPU  int64
	block    time.Duration
}

// New validates spec and returns a Simulator for it.
func New(spec Spec) (*Simulator, error) {
	if spec.CPUTokens < 0 {
		return nil, &Error{
			Op:  "validate",
			Err: fmt.Errorf("cpu tokens must be non-negative, got %d", spec.CPUTokens),
		}
	}

	if spec.IOBlockMicros < 0 {
		return nil, &Error{
			Op:  "validate",
			Err: fmt.Errorf("io block must be non-negative, got %dµs", spec.IOBlockMicros),
		}
	}

	half := spec.CPUTokens / 2

	return &Simulator{
		spec:     spec,
		firstCPU: half,
		lastCPU:  spec.CPUTokens - half,
		block:    spec.IOBlock(),
	}, nil
}

// Spec returns the spec the simulator was built from.
func (s *Simulator) Spec() Spec {
	return s.spec
}

// Run performs one operation's worth of work: half the CPU tokens, the IO
// block, then the remaining tokens. If ctx is cancelled during the block,
// Run returns ctx.Err() without burning the second half.
func (s *Simulator) Run(ctx context.Context) error {
	ConsumeCPU(s.firstCPU)

	if err := Block(ctx, s.block); err != nil {
		return err
	}

	ConsumeCPU(s.lastCPU)

	return nil
}

// sink is written only when the accumulator hits a value the loop almost
// never produces, so the compiler cannot prove the loop result unused.
var sink atomic.Int64

// ConsumeCPU burns tokens units of fixed-cost arithmetic.
func ConsumeCPU(tokens int64) {
	if tokens <= 0 {
		return
	}

	t := sink.Load()
	for i := tokens; i > 0; i-- {
		t += (t*0x5DEECE66D + 0xB + i) & 0xFFFFFFFFFFFF
	}

	if t == 42 {
		sink.Add(t)
	}
}

// Block waits for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when interrupted.
func Block(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
