// ABOUTME: Repository interfaces for the tracking journal
// ABOUTME: Tracks, the fixes delivered during them, and the alerts they fired

package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harper/offroute/internal/models"
)

// TrackRepository manages journaled tracking sessions.
type TrackRepository interface {
	CreateTrack(track *models.Track) error
	EndTrack(id uuid.UUID, at time.Time) error
	GetTrack(id uuid.UUID) (*models.Track, error)
	// ListTracks returns tracks newest first.
	ListTracks() ([]*models.Track, error)
	// DeleteTrack removes a track with its fixes and alerts.
	DeleteTrack(id uuid.UUID) error
}

// FixRepository manages accepted fixes.
type FixRepository interface {
	CreateFix(fix *models.Fix) error
	// GetFixes returns a track's fixes oldest first.
	GetFixes(trackID uuid.UUID) ([]*models.Fix, error)
}

// AlertRepository manages fired alerts.
type AlertRepository interface {
	CreateAlert(alert *models.Alert) error
	// GetAlerts returns a track's alerts oldest first.
	GetAlerts(trackID uuid.UUID) ([]*models.Alert, error)
}

// Repository combines the journal with lifecycle management.
type Repository interface {
	TrackRepository
	FixRepository
	AlertRepository
	Close() error
	Sync() error
	Reset() error
	IsReadOnly() bool
}

// FindTrack resolves a full track ID or a unique prefix of one, as printed by the CLI.
func FindTrack(repo Repository, ref string) (*models.Track, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return repo.GetTrack(id)
	}

	tracks, err := repo.ListTracks()
	if err != nil {
		return nil, err
	}
	var match *models.Track
	for _, t := range tracks {
		if ref != "" && strings.HasPrefix(t.ID.String(), ref) {
			if match != nil {
				return nil, fmt.Errorf("track prefix %q is ambiguous", ref)
			}
			match = t
		}
	}
	if match == nil {
		return nil, ErrNotFound
	}
	return match, nil
}
