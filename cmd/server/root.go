package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "meshwatch",
		Short:         "Tailnet reachability monitor",
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(buildServeCmd())
	rootCmd.AddCommand(buildCheckCmd())
	rootCmd.AddCommand(buildTokenCmd())
	return rootCmd
}
