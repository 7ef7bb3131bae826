package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"foundry/internal/cache"
	"foundry/internal/journal"
	"foundry/internal/logging"
	"foundry/internal/report"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var showActivity bool
	var activityLimit int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show deployment progress from the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := cache.Open(cfg.CachePath(), cfg.Ledger.ProgramID, cfg.Ledger.CollectionID, logging.NewNop())
			if err != nil {
				return err
			}
			summary := report.Build(store)

			out := cmd.OutOrStdout()
			if summary.Total == 0 {
				fmt.Fprintln(out, "No deployment state recorded yet.")
				return nil
			}

			if summary.CollectionID != "" {
				fmt.Fprintf(out, "Collection: %s\n", summary.CollectionID)
			}
			rows := make([][]string, 0, len(summary.Counts))
			for _, status := range cache.AllStatuses() {
				if count := summary.Counts[status]; count > 0 {
					rows = append(rows, []string{string(status), strconv.Itoa(count)})
				}
			}
			fmt.Fprintln(out, renderTable([]string{"Status", "Items"}, rows, []columnAlignment{alignLeft, alignRight}))

			if summary.Complete() {
				fmt.Fprintf(out, "All %d items confirmed.\n", summary.Total)
			} else {
				fmt.Fprintf(out, "%d of %d items still incomplete.\n", len(summary.Incomplete), summary.Total)
			}

			if !showActivity {
				return nil
			}

			jnl, err := journal.Open(cfg.JournalPath())
			if err != nil {
				return err
			}
			defer jnl.Close()

			activity, err := report.BuildActivity(cmd.Context(), jnl, activityLimit)
			if err != nil {
				return err
			}
			if len(activity.Recent) == 0 {
				fmt.Fprintln(out, "No submissions journalled.")
				return nil
			}

			activityRows := make([][]string, 0, len(activity.Recent))
			for _, record := range activity.Recent {
				scope := strconv.Itoa(record.AssetIndex)
				if record.Kind == journal.KindWriteBatch {
					scope = fmt.Sprintf("%d-%d", record.StartIndex, record.EndIndex)
				}
				activityRows = append(activityRows, []string{
					record.CreatedAt.Format("2006-01-02 15:04:05"),
					record.Kind,
					scope,
					strconv.Itoa(record.Attempt),
					record.Outcome,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Time", "Kind", "Scope", "Attempt", "Outcome"},
				activityRows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showActivity, "activity", false, "Include recent submission history")
	cmd.Flags().IntVar(&activityLimit, "limit", 20, "Number of journal rows to show")
	return cmd
}
