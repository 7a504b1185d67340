package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/d3zd3z/cdump/pool"
)

func newStatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stat <path>",
		Short: "Report file count, total size, and backup count for a pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			p, err := pool.Open(path, false)
			if err != nil {
				return fmt.Errorf("open pool at %s: %w", path, err)
			}
			defer p.Close()

			backups, err := p.Backups()
			if err != nil {
				return fmt.Errorf("read backups for %s: %w", path, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "files:   %d\n", p.FileCount())
			fmt.Fprintf(out, "size:    %s\n", humanize.Bytes(p.TotalSize()))
			fmt.Fprintf(out, "chunks:  %d\n", p.ChunkCount())
			fmt.Fprintf(out, "backups: %d\n", len(backups))
			return nil
		},
	}
	return cmd
}
