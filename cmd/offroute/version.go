// ABOUTME: Version command
// ABOUTME: Prints the build version

package main

import (
	"fmt"

	"github.com/harper/offroute/internal/session"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "offroute %s\n", session.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
