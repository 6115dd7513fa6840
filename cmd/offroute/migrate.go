// ABOUTME: Migration command for moving the journal between storage backends
// ABOUTME: Copies every track from the configured backend into sqlite, charm, or badger

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/harper/offroute/internal/config"
	"github.com/harper/offroute/internal/storage"
	"github.com/spf13/cobra"
)

var (
	migrateTo      string
	migrateDataDir string
	migrateForce   bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the journal between storage backends",
	Long: `Copy every track, fix, and alert from the configured backend to another one.

Does NOT update the config file; verify the migration, then set "backend"
in config.json yourself.

Examples:
  offroute migrate --to badger
  offroute migrate --to sqlite --data-dir ~/offroute-sqlite
  offroute migrate --to charm --force`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "target backend (sqlite, charm, or badger)")
	migrateCmd.Flags().StringVar(&migrateDataDir, "data-dir", "", "target data directory (defaults to current config data_dir)")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "allow writing into a non-empty target directory")
	_ = migrateCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	source := cfg.GetBackend()

	switch migrateTo {
	case config.BackendSQLite, config.BackendCharm, config.BackendBadger:
	default:
		return fmt.Errorf("invalid target backend %q: must be sqlite, charm, or badger", migrateTo)
	}
	if migrateTo == source {
		return fmt.Errorf("target backend %q is the same as the current backend", migrateTo)
	}

	targetDir := cfg.GetDataDir()
	if migrateDataDir != "" {
		targetDir = config.ExpandPath(migrateDataDir)
	}

	// Charm keeps its data under CHARM_DATA_DIR, so there is nothing to check.
	if path := config.BackendPath(migrateTo, targetDir); path != "" {
		occupied, err := targetOccupied(path)
		if err != nil {
			return fmt.Errorf("check target: %w", err)
		}
		if occupied && !migrateForce {
			return fmt.Errorf("target %q already holds a journal; use --force to write into it", path)
		}
	}

	src, err := openJournal()
	if err != nil {
		return fmt.Errorf("open source journal (%s): %w", source, err)
	}

	dst, err := config.OpenBackend(migrateTo, targetDir)
	if err != nil {
		return fmt.Errorf("open target journal (%s): %w", migrateTo, err)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: closing target journal: %v\n", cerr)
		}
	}()

	fmt.Fprintln(out, color.YellowString("Migrating journal:"))
	fmt.Fprintf(out, "  Source:  %s (%s)\n", source, cfg.GetDataDir())
	fmt.Fprintf(out, "  Target:  %s (%s)\n", migrateTo, targetDir)
	fmt.Fprintln(out)

	summary, err := storage.MigrateData(src, dst)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintln(out, color.GreenString("Migration complete!"))
	fmt.Fprintf(out, "  Tracks: %d\n", summary.Tracks)
	fmt.Fprintf(out, "  Fixes:  %d\n", summary.Fixes)
	fmt.Fprintf(out, "  Alerts: %d\n", summary.Alerts)
	fmt.Fprintln(out)
	fmt.Fprintln(out, color.YellowString("Note: config.json was NOT updated. To switch to the new backend, edit:"))
	fmt.Fprintf(out, "  %s\n", config.GetConfigPath())
	fmt.Fprintf(out, "  Set \"backend\": %q", migrateTo)
	if migrateDataDir != "" {
		fmt.Fprintf(out, " and \"data_dir\": %q", migrateDataDir)
	}
	fmt.Fprintln(out)
	return nil
}

// targetOccupied reports whether a file exists at path or a directory there has entries.
func targetOccupied(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return true, nil
	}
	return storage.IsDirNonEmpty(path)
}
