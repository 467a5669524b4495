// Package harness drives logging backends under a concurrent synthetic
// workload and sequences their lifecycles between trials.
package harness

import "time"

// Result holds the measurement phase of one trial.
type Result struct {
	Backend string `json:"backend"`
	Trial   int    `json:"trial"`
	Threads int    `json:"threads"`
	// Completed counts operations whose emit succeeded and whose workload ran
	// to completion.
	Completed int64 `json:"completed_operations"`
	// Failed counts operations whose emit returned an error or panicked.
	Failed int64 `json:"failed_operations"`
	// Abandoned counts operations cut short by the end of the phase.
	Abandoned int64 `json:"abandoned_operations"`
	// Issued is the final value of the shared sequence counter.
	Issued        int64         `json:"issued_operations"`
	Workers       []int64       `json:"worker_operations,omitempty"`
	Elapsed       time.Duration `json:"elapsed_ns"`
	Interrupted   bool          `json:"interrupted,omitempty"`
	FirstError    string        `json:"first_error,omitempty"`
	ShutdownError string        `json:"shutdown_error,omitempty"`
}

// Throughput returns completed operations per second.
func (r Result) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}

	return float64(r.Completed) / r.Elapsed.Seconds()
}
