// Package report formats trial results, one record per backend per trial.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/weiihann/logbench/backend"
	"github.com/weiihann/logbench/harness"
)

// Format names accepted by Write.
const (
	FormatMarkdown = "markdown"
	FormatTable    = "table"
	FormatJSON     = "json"
)

// Formats lists the supported output formats.
func Formats() []string {
	return []string{FormatMarkdown, FormatTable, FormatJSON}
}

// Write renders results in the named format.
func Write(w io.Writer, format string, results []harness.Result) error {
	switch format {
	case FormatMarkdown, "":
		return Generate(w, results)
	case FormatTable:
		return GenerateTable(w, results)
	case FormatJSON:
		return GenerateJSON(w, results)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// Generate writes a markdown comparison table for the given results.
func Generate(w io.Writer, results []harness.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	baseline := findBaseline(results)

	fmt.Fprintln(w, "## Benchmark Results")
	fmt.Fprintln(w)

	if baseline > 0 {
		fmt.Fprintf(w, "Baseline (%s): **%s ops/s**\n", backend.Null, formatRate(baseline))
	} else {
		fmt.Fprintln(w, "Baseline: **not measured**")
	}

	fmt.Fprintln(w)

	fmt.Fprintln(w, "| Backend | Trial | Threads | Completed | Failed "+
		"| Elapsed | Throughput | vs Baseline |")
	fmt.Fprintln(w, "|---------|-------|---------|-----------|--------"+
		"|---------|------------|-------------|")

	for _, r := range results {
		fmt.Fprintf(w, "| %s | %d | %d | %d | %d | %s | %s ops/s | %s |\n",
			r.Backend,
			r.Trial,
			r.Threads,
			r.Completed,
			r.Failed,
			formatDuration(r.Elapsed),
			formatRate(r.Throughput()),
			formatRatio(r.Throughput(), baseline),
		)
	}

	notes := collectNotes(results)
	if len(notes) > 0 {
		fmt.Fprintln(w)

		for _, n := range notes {
			fmt.Fprintf(w, "  - %s\n", n)
		}
	}

	return nil
}

// GenerateTable writes an aligned plain-text table.
func GenerateTable(w io.Writer, results []harness.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	baseline := findBaseline(results)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"Backend", "Trial", "Threads", "Completed", "Failed",
		"Elapsed", "Ops/s", "vs Baseline",
	})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, r := range results {
		table.Append([]string{
			r.Backend,
			strconv.Itoa(r.Trial),
			strconv.Itoa(r.Threads),
			strconv.FormatInt(r.Completed, 10),
			strconv.FormatInt(r.Failed, 10),
			formatDuration(r.Elapsed),
			formatRate(r.Throughput()),
			formatRatio(r.Throughput(), baseline),
		})
	}

	table.Render()

	for _, n := range collectNotes(results) {
		fmt.Fprintln(w, n)
	}

	return nil
}

type record struct {
	harness.Result
	Throughput float64 `json:"throughput_ops_per_sec"`
}

// GenerateJSON writes results as JSON to w.
func GenerateJSON(w io.Writer, results []harness.Result) error {
	records := make([]record, len(results))
	for i, r := range results {
		records[i] = record{Result: r, Throughput: r.Throughput()}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(records)
}

// findBaseline returns the best null-backend throughput, or 0.
func findBaseline(results []harness.Result) float64 {
	var best float64

	for _, r := range results {
		if r.Backend == backend.Null && r.Throughput() > best {
			best = r.Throughput()
		}
	}

	return best
}

func collectNotes(results []harness.Result) []string {
	var notes []string

	for _, r := range results {
		if r.Interrupted {
			notes = append(notes, fmt.Sprintf("%s trial %d: interrupted, partial counts", r.Backend, r.Trial))
		}
		if r.FirstError != "" {
			notes = append(notes, fmt.Sprintf("%s trial %d: %s", r.Backend, r.Trial, r.FirstError))
		}
		if r.ShutdownError != "" {
			notes = append(notes, fmt.Sprintf("%s: %s", r.Backend, r.ShutdownError))
		}
	}

	return notes
}

func formatRatio(v, baseline float64) string {
	if baseline <= 0 {
		return "-"
	}

	return fmt.Sprintf("%.2fx", v/baseline)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	return fmt.Sprintf("%.2fs", d.Seconds())
}

func formatRate(v float64) string {
	units := []string{"", "K", "M", "G"}
	unit := 0

	for v >= 1000 && unit < len(units)-1 {
		v /= 1000
		unit++
	}

	return fmt.Sprintf("%.2f%s", v, units[unit])
}
