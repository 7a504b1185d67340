package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "cdumpool",
		Short:   "Administrative tool for cdump storage pools",
		Long:    "cdumpool creates, recovers, and reports on cdump content-addressed backup pools.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	}

	rootCmd.AddCommand(
		newCreateCommand(),
		newRecoverCommand(),
		newStatCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
