package main

import (
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-grader/internal/report"
	"github.com/ahrav/go-grader/internal/store"
	"github.com/ahrav/go-grader/internal/worker"
)

func newWorkerCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Serve grading workflows from the configured Temporal task queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			completer, release, err := a.newCompleter(a.cfg)
			if err != nil {
				return err
			}
			defer release()
			return worker.Run(cmd.Context(), a.cfg, completer, slog.Default())
		},
	}
}

func newHistoryCommand(a *app) *cobra.Command {
	var (
		storePath string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or print one stored report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := openStore(cmd.Context(), storePath, a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer closeStore()
			if st == nil {
				return errors.New("no history store: pass --store or set store.path")
			}

			if len(args) == 1 {
				r, err := st.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return report.WriteJSON(cmd.OutOrStdout(), r)
			}

			runs, err := st.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printRuns(cmd, runs)
		},
	}
	cmd.Flags().StringVar(&storePath, "store", "", "SQLite history database (default from config)")
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultListLimit, "Number of runs to list")
	return cmd
}

func printRuns(cmd *cobra.Command, runs []store.RunSummary) error {
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tCREATED\tPOLICY\tSCORE\tGRADE\tQUESTIONS\tREQUESTS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f/%d (%.1f%%)\t%s\t%d\t%d\n",
			r.RunID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Policy,
			r.TotalObtained, r.TotalMax, r.OverallPercentage, r.Grade, r.Questions, r.APIRequests)
	}
	return tw.Flush()
}
