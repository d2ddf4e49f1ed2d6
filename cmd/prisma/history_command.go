package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/use-agent/prisma/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "List recent runs, or the pages of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("run history is disabled (history.enabled = false)")
			}
			st, err := store.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				results, err := st.RunScrapes(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(results) == 0 {
					return fmt.Errorf("run %s not found", args[0])
				}
				fmt.Fprintln(out, resultsTable(results))
				return nil
			}

			runs, err := st.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}
			fmt.Fprintln(out, runsTable(runs))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	return cmd
}

func runsTable(runs []store.RunRecord) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		report := "-"
		switch {
		case r.HasReport && r.ReportOK:
			report = fmt.Sprintf("ok (%d tokens)", r.TokensUsed)
		case r.HasReport:
			report = "failed"
		}
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Topic,
			fmt.Sprintf("%d/%d", r.Succeeded, r.Total),
			formatDuration(r.Duration),
			report,
		})
	}
	return renderTable(
		[]string{"Run", "Started", "Topic", "Pages", "Time", "Report"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
