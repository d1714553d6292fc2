package main

import (
	"fmt"

	"github.com/aretw0/keeper"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of keeper",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "keeper version %s\n", keeper.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
