// ABOUTME: Import command for restoring the journal from a YAML backup
// ABOUTME: Adds the backup's tracks to the configured backend

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/harper/offroute/internal/storage"
	"github.com/spf13/cobra"
)

var importConfirm bool

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import tracks from a YAML backup",
	Long: `Import tracks, fixes, and alerts from a YAML backup file created with
'offroute export --format yaml'.

WARNING: This adds to the existing journal, it does not replace it.

Examples:
  offroute import journal.yaml
  offroute import ~/backups/offroute-20241214.yaml --confirm`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := args[0]
		out := cmd.OutOrStdout()

		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		if !importConfirm {
			fmt.Fprintf(out, "Import tracks from '%s'? [y/N] ", filename)
			reader := bufio.NewReader(cmd.InOrStdin())
			response, _ := reader.ReadString('\n')
			response = strings.TrimSpace(strings.ToLower(response))
			if response != "y" && response != "yes" {
				fmt.Fprintln(out, "Canceled.")
				return nil
			}
		}

		repo, err := openJournal()
		if err != nil {
			return err
		}
		summary, err := storage.ImportFromYAML(repo, data)
		if err != nil {
			return fmt.Errorf("failed to import: %w", err)
		}

		fmt.Fprintln(out, color.GreenString("Import complete"))
		fmt.Fprintf(out, "  %d tracks, %d fixes, %d alerts\n", summary.Tracks, summary.Fixes, summary.Alerts)
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importConfirm, "confirm", false, "skip confirmation prompt")

	rootCmd.AddCommand(importCmd)
}
