// Package metrics exports trial results as Prometheus metrics, written to a
// node-exporter textfile once a run finishes.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/weiihann/logbench/harness"
)

const namespace = "logbench"

// Recorder implements harness.Observer on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	throughput *prometheus.GaugeVec
	elapsed    *prometheus.GaugeVec
	trials     *prometheus.CounterVec
	shutdowns  *prometheus.CounterVec
}

var _ harness.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Measured operations per backend, by outcome.",
			},
			[]string{"backend", "outcome"},
		),
		throughput: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "throughput_ops_per_second",
				Help:      "Throughput of the most recent trial per backend.",
			},
			[]string{"backend"},
		),
		elapsed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "trial_elapsed_seconds",
				Help:      "Measurement phase length of the most recent trial per backend.",
			},
			[]string{"backend"},
		),
		trials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trials_total",
				Help:      "Completed trials per backend.",
			},
			[]string{"backend"},
		),
		shutdowns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shutdowns_total",
				Help:      "Backend shutdowns, by result.",
			},
			[]string{"backend", "result"},
		),
	}

	r.registry.MustRegister(r.operations, r.throughput, r.elapsed, r.trials, r.shutdowns)

	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveTrial records one trial result.
func (r *Recorder) ObserveTrial(res harness.Result) {
	r.operations.WithLabelValues(res.Backend, "completed").Add(float64(res.Completed))
	r.operations.WithLabelValues(res.Backend, "failed").Add(float64(res.Failed))
	r.operations.WithLabelValues(res.Backend, "abandoned").Add(float64(res.Abandoned))
	r.throughput.WithLabelValues(res.Backend).Set(res.Throughput())
	r.elapsed.WithLabelValues(res.Backend).Set(res.Elapsed.Seconds())
	r.trials.WithLabelValues(res.Backend).Inc()
}

// ObserveShutdown records the outcome of a backend shutdown.
func (r *Recorder) ObserveShutdown(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	r.shutdowns.WithLabelValues(backend, result).Inc()
}

// WriteTextfile atomically writes all metrics to path in the text
// exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}

	return nil
}
