package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"foundry/internal/cache"
	"foundry/internal/pipeline"
)

func newDeployCommand(ctx *commandContext) *cobra.Command {
	var forceRetry []int
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Validate, upload, and write the asset set to the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var opts []pipeline.Option
			if len(forceRetry) > 0 {
				opts = append(opts, pipeline.WithForceRetry(forceRetry))
			}
			p, err := pipeline.New(cfg, logger, opts...)
			if err != nil {
				return err
			}
			outcome, err := p.Run(runCtx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			renderOutcome(out, outcome)
			if outcome.State != pipeline.StateDone {
				return fmt.Errorf("deployment finished in state %s", outcome.State)
			}
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&forceRetry, "force-retry", nil,
		"asset indices to reset to pending before the run (discards their uploads)")
	return cmd
}

func renderOutcome(out io.Writer, outcome pipeline.Outcome) {
	fmt.Fprintf(out, "Deployment state: %s\n", colorizeState(string(outcome.State), outcome.State == pipeline.StateDone))
	if outcome.Summary.CollectionID != "" {
		fmt.Fprintf(out, "Collection: %s\n", outcome.Summary.CollectionID)
	}

	headers := []string{"Status", "Items"}
	rows := make([][]string, 0, len(outcome.Summary.Counts))
	for _, status := range cache.AllStatuses() {
		if count := outcome.Summary.Counts[status]; count > 0 {
			rows = append(rows, []string{string(status), strconv.Itoa(count)})
		}
	}
	fmt.Fprintln(out, renderTable(headers, rows, []columnAlignment{alignLeft, alignRight}))

	if len(outcome.UploadFailures) > 0 {
		indices := make([]int, 0, len(outcome.UploadFailures))
		for _, failure := range outcome.UploadFailures {
			indices = append(indices, failure.Index)
		}
		sort.Ints(indices)
		fmt.Fprintf(out, "Upload failures: %v\n", indices)
	}
	for _, blocked := range outcome.BlockedBatches {
		fmt.Fprintf(out, "Blocked batch %d-%d: %v\n", blocked.StartIndex, blocked.EndIndex, blocked.Err)
	}
	for _, fault := range outcome.Faults {
		fmt.Fprintf(out, "Consistency fault at %d: %s\n", fault.Index, fault.Detail)
	}
}
