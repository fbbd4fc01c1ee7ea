package main

import (
	"fmt"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-ekman/internal/bench"
)

func newBenchCmd() *cobra.Command {
	var (
		text       string
		runs       int
		format     string
		maxMeanMS  float64
		cpuprofile string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark analyze latency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--text is required for bench")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != formatTable && format != formatJSON {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			a, _, err := openAnalyzer(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if cpuprofile != "" {
				f, err := os.Create(cpuprofile)
				if err != nil {
					return fmt.Errorf("create cpu profile: %w", err)
				}
				defer f.Close()

				if err := pprof.StartCPUProfile(f); err != nil {
					return fmt.Errorf("start cpu profile: %w", err)
				}
				defer pprof.StopCPUProfile()
			}

			results, err := bench.Run(cmd.Context(), a.Analyze, text, runs)
			if err != nil {
				return err
			}

			stats := bench.ComputeStats(bench.Durations(results))

			out := cmd.OutOrStdout()
			switch format {
			case formatJSON:
				if err := bench.FormatJSON(results, stats, out); err != nil {
					return err
				}
			default:
				bench.FormatTable(results, stats, out)
			}

			return bench.CheckMeanThreshold(stats.Mean, maxMeanMS)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to analyze on every run")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of analyze runs")
	cmd.Flags().StringVar(&format, "format", formatTable, "Output format: table|json")
	cmd.Flags().Float64Var(&maxMeanMS, "max-mean-ms", 0, "Fail when mean latency exceeds this many milliseconds (0 = off)")
	cmd.Flags().StringVar(&cpuprofile, "cpuprofile", "", "Write a CPU profile of the measured runs")

	return cmd
}
