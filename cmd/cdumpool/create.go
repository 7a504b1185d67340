package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/d3zd3z/cdump/pool"
)

func newCreateCommand() *cobra.Command {
	var (
		limit   uint32
		newFile bool
	)

	cmd := &cobra.Command{
		Use:   "create <path>",
		Short: "Create a new, empty storage pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := pool.Create(path, limit, newFile, nil); err != nil {
				return fmt.Errorf("create pool at %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created pool at %s\n", path)
			return nil
		},
	}

	addCreateFlags(cmd.Flags(), &limit, &newFile)

	return cmd
}

// addCreateFlags declares the create subcommand's flags directly against
// a *pflag.FlagSet, the same flag package cobra's own Command.Flags()
// returns.
func addCreateFlags(flags *pflag.FlagSet, limit *uint32, newFile *bool) {
	flags.Uint32Var(limit, "limit", pool.DefaultLimit, "maximum size in bytes of a single data file")
	flags.BoolVar(newFile, "newfile", false, "always roll to a new data file on each open")
}
