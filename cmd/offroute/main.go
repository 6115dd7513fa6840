// ABOUTME: Entry point for the offroute CLI
// ABOUTME: Executes the root cobra command

package main

import "os"

func main() {
	err := rootCmd.Execute()
	// PersistentPostRunE is skipped when a command fails.
	_ = closeJournal()
	if err != nil {
		os.Exit(1)
	}
}
