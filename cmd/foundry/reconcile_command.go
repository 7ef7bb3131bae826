package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"foundry/internal/pipeline"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare the cache against the on-chain state and repair divergence",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			p, err := pipeline.New(cfg, logger)
			if err != nil {
				return err
			}
			result, summary, err := p.Reconcile(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Clean() {
				fmt.Fprintln(out, "Cache and ledger are consistent.")
			}
			if len(result.Actions) > 0 {
				rows := make([][]string, 0, len(result.Actions))
				for _, action := range result.Actions {
					rows = append(rows, []string{strconv.Itoa(action.Index), string(action.Kind), action.Detail})
				}
				fmt.Fprintln(out, renderTable([]string{"Index", "Action", "Detail"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft}))
			}
			for _, fault := range result.Faults {
				fmt.Fprintf(out, "Consistency fault at %d: %s\n", fault.Index, fault.Detail)
			}

			fmt.Fprintf(out, "Confirmed: %d of %d\n", summary.Total-len(summary.Incomplete), summary.Total)
			if len(result.Faults) > 0 {
				return fmt.Errorf("%d consistency faults found", len(result.Faults))
			}
			return nil
		},
	}
	return cmd
}
