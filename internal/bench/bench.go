// Package bench provides benchmarking primitives for the ekman bench command.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/example/go-ekman/internal/emotion"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and outcome of a single analyze call.
type RunResult struct {
	Index    int
	Cold     bool // true for the first run (cold-start)
	Duration time.Duration
	Dominant string
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Runs   int
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	StdDev time.Duration
	P50    time.Duration
	P95    time.Duration
}

// ComputeStats calculates the distribution of durations. An empty slice
// yields zero Stats; a single run has zero deviation.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	xs := make([]float64, len(durations))
	for i, d := range durations {
		xs[i] = float64(d)
	}

	slices.Sort(xs)

	mean, std := stat.MeanStdDev(xs, nil)
	if math.IsNaN(std) {
		std = 0
	}

	return Stats{
		Runs:   len(xs),
		Min:    time.Duration(xs[0]),
		Max:    time.Duration(xs[len(xs)-1]),
		Mean:   time.Duration(mean),
		StdDev: time.Duration(std),
		P50:    time.Duration(stat.Quantile(0.5, stat.Empirical, xs, nil)),
		P95:    time.Duration(stat.Quantile(0.95, stat.Empirical, xs, nil)),
	}
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// AnalyzeFunc is the call being measured, normally (*analyzer.Analyzer).Analyze.
type AnalyzeFunc func(ctx context.Context, text string) (emotion.Report, error)

// Run calls analyze runs times on text and records each duration. The first
// run is marked cold. It stops at the first error or when ctx is done.
func Run(ctx context.Context, analyze AnalyzeFunc, text string, runs int) ([]RunResult, error) {
	if runs < 1 {
		return nil, fmt.Errorf("runs must be >= 1, got %d", runs)
	}

	if analyze == nil {
		return nil, errors.New("analyze func is required")
	}

	results := make([]RunResult, 0, runs)

	for i := range runs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := time.Now()
		report, err := analyze(ctx, text)
		elapsed := time.Since(start)

		if err != nil {
			return results, fmt.Errorf("run %d: %w", i+1, err)
		}

		results = append(results, RunResult{
			Index:    i,
			Cold:     i == 0,
			Duration: elapsed,
			Dominant: report.DominantLabel,
		})
	}

	return results, nil
}

// Durations extracts the per-run durations.
func Durations(runs []RunResult) []time.Duration {
	out := make([]time.Duration, len(runs))
	for i, r := range runs {
		out[i] = r.Duration
	}

	return out
}

// ---------------------------------------------------------------------------
// Latency threshold gate
// ---------------------------------------------------------------------------

// CheckMeanThreshold returns an error if mean exceeds maxMeanMS milliseconds.
// A threshold of 0 disables the gate.
func CheckMeanThreshold(mean time.Duration, maxMeanMS float64) error {
	if maxMeanMS <= 0 {
		return nil
	}

	meanMS := ms(mean)
	if meanMS > maxMeanMS {
		return fmt.Errorf("mean latency %.3fms exceeds threshold %.3fms", meanMS, maxMeanMS)
	}

	return nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %-10s\n", "Run", "Cold", "MS", "Dominant")
	fmt.Fprintln(sb, strings.Repeat("-", 36))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}

		fmt.Fprintf(sb, "%-5d  %-5s  %10.3f  %-10s\n", r.Index+1, cold, ms(r.Duration), r.Dominant)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 36))

	for _, row := range []struct {
		name string
		d    time.Duration
	}{
		{"min", stats.Min},
		{"p50", stats.P50},
		{"mean", stats.Mean},
		{"p95", stats.P95},
		{"max", stats.Max},
		{"stddev", stats.StdDev},
	} {
		fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (%s)\n", "", "", ms(row.d), row.name)
	}

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	Dominant   string  `json:"dominant"`
}

type jsonStats struct {
	Runs     int     `json:"runs"`
	MinMS    float64 `json:"min_ms"`
	MeanMS   float64 `json:"mean_ms"`
	MaxMS    float64 `json:"max_ms"`
	StdDevMS float64 `json:"stddev_ms"`
	P50MS    float64 `json:"p50_ms"`
	P95MS    float64 `json:"p95_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) error {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			Runs:     stats.Runs,
			MinMS:    ms(stats.Min),
			MeanMS:   ms(stats.Mean),
			MaxMS:    ms(stats.Max),
			StdDevMS: ms(stats.StdDev),
			P50MS:    ms(stats.P50),
			P95MS:    ms(stats.P95),
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: ms(r.Duration),
			Dominant:   r.Dominant,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(jr)
}
