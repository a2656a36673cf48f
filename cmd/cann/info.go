package main

import (
	"github.com/spf13/cobra"
)

func newInfoCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the devices and their memory usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {

			ctx, err := openContext(gf)

			if err != nil {
				return err
			}

			defer closeContext(ctx)

			return ctx.Query(cmd.OutOrStdout())
		},
	}
}
