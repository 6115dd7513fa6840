// ABOUTME: Root Cobra command and global flags
// ABOUTME: Loads config and the logger, and opens the journal on demand

package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/harper/offroute/internal/config"
	"github.com/harper/offroute/internal/logging"
	"github.com/harper/offroute/internal/storage"
	"github.com/spf13/cobra"
)

var (
	cfg      *config.Config
	logger   *log.Logger
	journal  storage.Repository
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "offroute",
	Short: "Alerts when you leave your planned route",
	Long: `
 ██████╗ ███████╗███████╗██████╗  ██████╗ ██╗   ██╗████████╗███████╗
██╔═══██╗██╔════╝██╔════╝██╔══██╗██╔═══██╗██║   ██║╚══██╔══╝██╔════╝
██║   ██║█████╗  █████╗  ██████╔╝██║   ██║██║   ██║   ██║   █████╗
██║   ██║██╔══╝  ██╔══╝  ██╔══██╗██║   ██║██║   ██║   ██║   ██╔══╝
╚██████╔╝██║     ██║     ██║  ██║╚██████╔╝╚██████╔╝   ██║   ███████╗
 ╚═════╝ ╚═╝     ╚═╝     ╚═╝  ╚═╝ ╚═════╝  ╚═════╝    ╚═╝   ╚══════╝

     Track a trip against a planned route and sound an alert on departure

Examples:
  offroute track walk.jsonl --route commute.yaml --sound beep.wav
  offroute distance --route commute.yaml --lat 40.72 --lng -74.01
  offroute history
  offroute export --format geojson <track-id>
  offroute mcp`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.GetLogLevel()
		if logLevel != "" {
			level = logLevel
		}
		logger, err = logging.New(os.Stderr, level)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeJournal()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// openJournal opens the configured journal backend once per process.
func openJournal() (storage.Repository, error) {
	if journal != nil {
		return journal, nil
	}
	repo, err := cfg.OpenStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	journal = repo
	return journal, nil
}

func closeJournal() error {
	if journal == nil {
		return nil
	}
	err := journal.Close()
	journal = nil
	return err
}
