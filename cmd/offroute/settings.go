// ABOUTME: Settings command: opens the location settings
// ABOUTME: On a desktop host that is the offroute config file in $EDITOR

package main

import (
	"fmt"

	"github.com/harper/offroute/internal/config"
	"github.com/harper/offroute/internal/provider"
	"github.com/harper/offroute/internal/session"
	"github.com/spf13/cobra"
)

var settingsPath bool

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Open the location settings",
	Long: `Open the offroute config file in $VISUAL or $EDITOR.

Examples:
  offroute settings
  offroute settings --path`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetConfigPath()
		if settingsPath {
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		}

		sess, err := session.New(session.Options{
			Provider: provider.NewManual(),
			Settings: provider.EditorSettings{Path: path},
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		return sess.OpenSettings()
	},
}

func init() {
	settingsCmd.Flags().BoolVar(&settingsPath, "path", false, "print the settings file path instead of opening it")

	rootCmd.AddCommand(settingsCmd)
}
