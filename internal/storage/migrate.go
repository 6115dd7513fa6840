// ABOUTME: Data migration between journal storage backends
// ABOUTME: Copies tracks with their fixes and alerts from source to destination repository

package storage

import (
	"fmt"
	"os"

	"github.com/harper/offroute/internal/models"
)

// MigrateSummary holds counts of migrated entities.
type MigrateSummary struct {
	Tracks int
	Fixes  int
	Alerts int
}

// MigrateData copies all data from src to dst storage. The destination should be
// empty before calling this function.
func MigrateData(src, dst Repository) (*MigrateSummary, error) {
	summary := &MigrateSummary{}

	tracks, err := src.ListTracks()
	if err != nil {
		return nil, fmt.Errorf("list source tracks: %w", err)
	}

	// Oldest first so the destination fills in the order the journal was written.
	for i := len(tracks) - 1; i >= 0; i-- {
		t := tracks[i]
		fixes, err := src.GetFixes(t.ID)
		if err != nil {
			return nil, fmt.Errorf("get fixes for track %s: %w", t.ID, err)
		}
		alerts, err := src.GetAlerts(t.ID)
		if err != nil {
			return nil, fmt.Errorf("get alerts for track %s: %w", t.ID, err)
		}

		if err := copyTrack(dst, t, fixes, alerts); err != nil {
			return nil, err
		}
		summary.Tracks++
		summary.Fixes += len(fixes)
		summary.Alerts += len(alerts)
	}

	return summary, nil
}

// copyTrack writes a track and its records. Ended tracks are created open and
// ended last, since closed tracks refuse new records.
func copyTrack(dst Repository, t *models.Track, fixes []*models.Fix, alerts []*models.Alert) error {
	open := *t
	open.EndedAt = nil
	if err := dst.CreateTrack(&open); err != nil {
		return fmt.Errorf("create track %s: %w", t.ID, err)
	}
	for _, f := range fixes {
		if err := dst.CreateFix(f); err != nil {
			return fmt.Errorf("create fix in track %s: %w", t.ID, err)
		}
	}
	for _, a := range alerts {
		if err := dst.CreateAlert(a); err != nil {
			return fmt.Errorf("create alert in track %s: %w", t.ID, err)
		}
	}
	if t.EndedAt != nil {
		if err := dst.EndTrack(t.ID, *t.EndedAt); err != nil {
			return fmt.Errorf("end track %s: %w", t.ID, err)
		}
	}
	return nil
}

// IsDirNonEmpty checks whether a directory exists and contains any files or subdirectories.
// Returns false if the directory does not exist or is empty.
func IsDirNonEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read directory %q: %w", path, err)
	}
	return len(entries) > 0, nil
}
