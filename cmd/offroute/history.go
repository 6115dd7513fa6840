// ABOUTME: History command: lists journaled tracks
// ABOUTME: Shows one track's alerts in detail, or deletes it

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/harper/offroute/internal/storage"
	"github.com/harper/offroute/internal/ui"
	"github.com/spf13/cobra"
)

var historyDelete bool

var historyCmd = &cobra.Command{
	Use:     "history [track-id]",
	Aliases: []string{"ls"},
	Short:   "List recorded tracks",
	Long: `List recorded tracks, newest first. With a track ID (or a unique prefix),
show the alerts fired during that track.

Examples:
  offroute history
  offroute history 3f2a9c1e
  offroute history 3f2a9c1e --delete`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openJournal()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			if historyDelete {
				return fmt.Errorf("--delete needs a track ID")
			}
			tracks, err := storage.LoadTracks(repo)
			if err != nil {
				return err
			}
			if len(tracks) == 0 {
				fmt.Fprintln(out, "No tracks recorded.")
				return nil
			}
			for _, t := range tracks {
				fmt.Fprintln(out, ui.FormatTrack(t.Track, len(t.Fixes), len(t.Alerts)))
			}
			return nil
		}

		track, err := storage.FindTrack(repo, args[0])
		if err != nil {
			return fmt.Errorf("track %s: %w", args[0], err)
		}

		if historyDelete {
			if err := repo.DeleteTrack(track.ID); err != nil {
				return fmt.Errorf("failed to delete track: %w", err)
			}
			fmt.Fprintln(out, color.GreenString("Deleted track %s", track.ID.String()[:8]))
			return nil
		}

		rec, err := storage.LoadTrack(repo, track)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.FormatTrack(rec.Track, len(rec.Fixes), len(rec.Alerts)))
		for _, a := range rec.Alerts {
			fmt.Fprintln(out, ui.FormatAlert(a))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyDelete, "delete", false, "delete the track")

	rootCmd.AddCommand(historyCmd)
}
