package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/weiihann/logbench/workload"
)

// Mode selects the stop condition of each phase.
type Mode string

const (
	ModeDuration   Mode = "duration"
	ModeIterations Mode = "iterations"
)

// DefaultTemplate is the record written on every operation.
const DefaultTemplate = "Simple log message with counter: %d"

// TrialConfig configures one warmup plus measurement run of a backend.
type TrialConfig struct {
	Threads int
	Mode    Mode

	Warmup      time.Duration
	Measurement time.Duration

	WarmupIterations      int64
	MeasurementIterations int64

	Workload workload.Spec
	Template string

	// GracePeriod bounds how long a phase waits for its workers once the
	// stop condition has fired.
	GracePeriod time.Duration
}

// DefaultTrialConfig returns the reference setup: 100 threads, a short
// warmup, five seconds of measurement, and 1M CPU tokens around a 20ms block.
// The iteration budgets apply only in ModeIterations.
func DefaultTrialConfig() TrialConfig {
	return TrialConfig{
		Threads:     100,
		Mode:        ModeDuration,
		Warmup:      200 * time.Millisecond,
		Measurement: 5 * time.Second,

		WarmupIterations:      1_000,
		MeasurementIterations: 10_000,

		Workload: workload.Spec{
			CPUTokens:     1_000_000,
			IOBlockMicros: 20_000,
		},
		Template:    DefaultTemplate,
		GracePeriod: 5 * time.Second,
	}
}

// Validate checks the configuration invariants.
func (c TrialConfig) Validate() error {
	if c.Threads <= 0 {
		return fmt.Errorf("%w: threads must be positive, got %d", ErrInvalidConfig, c.Threads)
	}

	switch c.Mode {
	case ModeDuration:
		if c.Warmup <= 0 || c.Measurement <= 0 {
			return fmt.Errorf("%w: warmup and measurement must be positive, got %s and %s",
				ErrInvalidConfig, c.Warmup, c.Measurement)
		}
	case ModeIterations:
		if c.WarmupIterations <= 0 || c.MeasurementIterations <= 0 {
			return fmt.Errorf("%w: warmup and measurement iterations must be positive, got %d and %d",
				ErrInvalidConfig, c.WarmupIterations, c.MeasurementIterations)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}

	if c.GracePeriod <= 0 {
		return fmt.Errorf("%w: grace period must be positive, got %s", ErrInvalidConfig, c.GracePeriod)
	}

	if strings.Count(c.Template, "%d") != 1 {
		return fmt.Errorf("%w: template must contain exactly one %%d, got %q", ErrInvalidConfig, c.Template)
	}

	return nil
}

type phase struct {
	name       string
	duration   time.Duration
	iterations int64
}

func (c TrialConfig) phases() (warmup, measurement phase) {
	warmup = phase{name: "warmup"}
	measurement = phase{name: "measurement"}

	if c.Mode == ModeIterations {
		warmup.iterations = c.WarmupIterations
		measurement.iterations = c.MeasurementIterations
	} else {
		warmup.duration = c.Warmup
		measurement.duration = c.Measurement
	}

	return warmup, measurement
}
