package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"foundry/internal/assets"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the asset directory without deploying",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			set, err := assets.Scan(cfg.Paths.AssetsDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Asset set OK: %d pairs in %s (%d bytes to upload)\n",
				set.Len(), set.Dir(), set.TotalUploadBytes())

			animated := 0
			for _, pair := range set.Pairs() {
				if pair.HasAnimation() {
					animated++
				}
			}
			if animated > 0 {
				fmt.Fprintf(out, "%d pairs carry animation files\n", animated)
			}
			return nil
		},
	}
}
