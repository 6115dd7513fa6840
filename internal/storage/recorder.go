// ABOUTME: Journals session events into a repository
// ABOUTME: One recorder per track; location events become fixes, alerted ones also alerts

package storage

import (
	"fmt"
	"time"

	"github.com/harper/offroute/internal/models"
)

// Recorder writes the events of one tracking session to the journal.
// It is not safe for concurrent use.
type Recorder struct {
	repo  Repository
	track *models.Track

	fixes  int
	alerts int
	errors int
}

// NewRecorder creates track in repo and returns a recorder for it.
func NewRecorder(repo Repository, track *models.Track) (*Recorder, error) {
	if repo.IsReadOnly() {
		return nil, ErrReadOnly
	}
	if err := repo.CreateTrack(track); err != nil {
		return nil, fmt.Errorf("create track: %w", err)
	}
	return &Recorder{repo: repo, track: track}, nil
}

// Track returns the track being recorded.
func (r *Recorder) Track() *models.Track {
	return r.track
}

// Record journals one event. Error events are only counted.
func (r *Recorder) Record(ev models.Event) error {
	if ev.IsError() {
		r.errors++
		return nil
	}
	if ev.Location == nil {
		return nil
	}

	if err := r.repo.CreateFix(models.NewFix(r.track.ID, *ev.Location, ev.Deviation)); err != nil {
		return fmt.Errorf("record fix: %w", err)
	}
	r.fixes++

	if ev.Deviation != nil && ev.Deviation.Alerted {
		if err := r.repo.CreateAlert(models.NewAlert(r.track.ID, *ev.Location, ev.Deviation.Distance)); err != nil {
			return fmt.Errorf("record alert: %w", err)
		}
		r.alerts++
	}
	return nil
}

// Finish ends the track.
func (r *Recorder) Finish(at time.Time) error {
	if err := r.repo.EndTrack(r.track.ID, at); err != nil {
		return fmt.Errorf("end track: %w", err)
	}
	end := at
	r.track.EndedAt = &end
	return nil
}

// Counts returns how many fixes, alerts, and errors were recorded.
func (r *Recorder) Counts() (fixes, alerts, errors int) {
	return r.fixes, r.alerts, r.errors
}
