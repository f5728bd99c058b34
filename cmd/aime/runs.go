package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/persistence"
)

func newRunsCmd(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer store.Close()
			return listRuns(cmd.Context(), store, limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list (0 for all)")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the JSON report of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer store.Close()

			body, err := store.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return err
		},
	}
	cmd.AddCommand(show)
	return cmd
}

func openStore(ctx context.Context, flags *globalFlags) (persistence.Store, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	return persistence.NewSQLiteStore(ctx, cfg.Store.Path)
}

func listRuns(ctx context.Context, store persistence.Store, limit int, out io.Writer) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "No runs recorded.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tITER\tSTARTED\tGOAL")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.State, r.Iterations, humanize.Time(r.StartedAt), shorten(r.Goal, 60))
	}
	return w.Flush()
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
