package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/optimizer"
)

func newTracesCmd(flags *globalFlags) *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "traces",
		Short: "Summarise the optimizer trace file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return summariseTrace(cfg.Optimizer.TracePath, tail, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", 5, "number of most recent records to print")
	return cmd
}

func summariseTrace(path string, tail int, out io.Writer) error {
	records, skipped, err := optimizer.ReadTrace(path)
	if err != nil {
		return err
	}

	var sum float64
	var learned string
	for _, r := range records {
		sum += r.Score
		if r.NewPrompt != "" {
			learned = r.NewPrompt
		}
	}

	fmt.Fprintf(out, "Trace:    %s\n", path)
	fmt.Fprintf(out, "Records:  %s (%d skipped)\n", humanize.Comma(int64(len(records))), skipped)
	if len(records) == 0 {
		return nil
	}
	fmt.Fprintf(out, "Mean:     %.2f\n", sum/float64(len(records)))
	if learned != "" {
		fmt.Fprintf(out, "Learned prompt:\n%s\n", learned)
	}

	start := max(len(records)-tail, 0)
	if tail > 0 {
		fmt.Fprintln(out, "\nRecent:")
	}
	for _, r := range records[start:] {
		fmt.Fprintf(out, "  %s  score=%.0f  %s\n", humanize.Time(r.Timestamp), r.Score, shorten(r.ObservationSummary, 70))
	}
	return nil
}
