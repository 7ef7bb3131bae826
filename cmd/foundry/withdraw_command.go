package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"foundry/internal/pipeline"
)

func newWithdrawCommand(ctx *commandContext) *cobra.Command {
	var collectionID string
	var force bool
	var list bool

	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Drain a collection account's funds back to the payer",
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

			out := cmd.OutOrStdout()
			if list {
				collections, err := p.ListCollections(cmd.Context())
				if err != nil {
					return err
				}
				if len(collections) == 0 {
					fmt.Fprintln(out, "No collection accounts found.")
					return nil
				}
				rows := make([][]string, 0, len(collections))
				for _, collection := range collections {
					rows = append(rows, []string{collection.Address, strconv.FormatUint(collection.Lamports, 10)})
				}
				fmt.Fprintln(out, renderTable([]string{"Collection", "Balance"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			}

			signature, lamports, err := p.Withdraw(cmd.Context(), collectionID, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Withdrew %d (transaction %s)\n", lamports, signature)
			return nil
		},
	}

	cmd.Flags().StringVar(&collectionID, "collection", "", "Collection account to drain (defaults to the cached one)")
	cmd.Flags().BoolVar(&force, "force", false, "Withdraw even when the deployment is incomplete")
	cmd.Flags().BoolVar(&list, "list", false, "List collection accounts instead of withdrawing")
	return cmd
}
