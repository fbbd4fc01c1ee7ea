package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/go-ekman/internal/emotion"
	"github.com/example/go-ekman/internal/service"
)

func newLabelsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Print the classifier index to emotion label table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			plan, err := service.Resolve(cfg)
			if err != nil {
				return err
			}

			return writeLabels(cmd.OutOrStdout(), format, plan.Taxonomy)
		},
	}

	cmd.Flags().StringVar(&format, "format", formatTable, "Output format: table|json")

	return cmd
}

func writeLabels(w io.Writer, format string, tax emotion.Taxonomy) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tax.Classes())
	case formatTable:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "INDEX\tLABEL\tEMOJI")
		for _, c := range tax.Classes() {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", c.Index, c.Label, c.Emoji)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("--format must be %q or %q", formatTable, formatJSON)
	}
}
