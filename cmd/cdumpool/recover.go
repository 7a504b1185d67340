package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/d3zd3z/cdump/pool"
)

func newRecoverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover <path>",
		Short: "Rebuild every data file's index by scanning its chunk frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := pool.RecoverIndex(path); err != nil {
				return fmt.Errorf("recover index at %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recovered indexes at %s\n", path)
			return nil
		},
	}
	return cmd
}
