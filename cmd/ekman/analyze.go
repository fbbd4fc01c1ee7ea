package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/go-ekman/internal/emotion"
	"github.com/example/go-ekman/internal/export"
)

// Output formats accepted by analyze.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatArrow = "arrow"
)

type reportAnalyzer interface {
	Analyze(ctx context.Context, text string) (emotion.Report, error)
}

func newAnalyzeCmd() *cobra.Command {
	var (
		text   string
		lines  bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze text and print its ranked emotion profile",
		Long: "Analyze text given with --text, or read from stdin when --text is empty. " +
			"With --lines every non-empty input line is analyzed separately.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if format != formatTable && format != formatJSON && format != formatArrow {
				return fmt.Errorf("--format must be %q, %q or %q", formatTable, formatJSON, formatArrow)
			}

			if text == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			inputs := splitInputs(text, lines)
			if len(inputs) == 0 {
				return errors.New("no input text")
			}

			a, plan, err := openAnalyzer(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rows, err := analyzeAll(cmd.Context(), a, inputs)
			if err != nil {
				return err
			}

			return writeReports(cmd.OutOrStdout(), format, plan.Taxonomy, rows, lines)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to analyze (default: read stdin)")
	cmd.Flags().BoolVar(&lines, "lines", false, "Analyze each non-empty line separately")
	cmd.Flags().StringVar(&format, "format", formatTable, "Output format: table|json|arrow")

	return cmd
}

// splitInputs returns the texts to analyze. Without lines the whole text is
// one input, trailing newlines removed.
func splitInputs(text string, lines bool) []string {
	if !lines {
		return []string{strings.TrimRight(text, "\r\n")}
	}

	var out []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}

	return out
}

func analyzeAll(ctx context.Context, a reportAnalyzer, inputs []string) ([]export.Row, error) {
	rows := make([]export.Row, 0, len(inputs))

	for i, in := range inputs {
		report, err := a.Analyze(ctx, in)
		if err != nil {
			if len(inputs) > 1 {
				return nil, fmt.Errorf("input %d: %w", i+1, err)
			}
			return nil, err
		}
		rows = append(rows, export.Row{Text: in, Report: report})
	}

	return rows, nil
}

type jsonRow struct {
	Text   string         `json:"text"`
	Report emotion.Report `json:"report"`
}

func writeReports(w io.Writer, format string, tax emotion.Taxonomy, rows []export.Row, multi bool) error {
	switch format {
	case formatArrow:
		return export.Write(w, tax.Labels(), rows)
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if !multi {
			return enc.Encode(rows[0].Report)
		}
		out := make([]jsonRow, len(rows))
		for i, r := range rows {
			out[i] = jsonRow{Text: r.Text, Report: r.Report}
		}
		return enc.Encode(out)
	default:
		for i, r := range rows {
			if multi {
				if i > 0 {
					_, _ = fmt.Fprintln(w)
				}
				_, _ = fmt.Fprintf(w, "> %s\n", r.Text)
			}
			if err := writeTable(w, tax, r.Report); err != nil {
				return err
			}
		}
		return nil
	}
}

func writeTable(w io.Writer, tax emotion.Taxonomy, report emotion.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range report.Scores {
		mark := ""
		if s.Label == report.DominantLabel {
			mark = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s %s\t%.4f\n", mark, tax.Emoji(s.Label), s.Label, s.Probability)
	}
	return tw.Flush()
}
