// ABOUTME: Conformance tests shared by every journal backend
// ABOUTME: Each backend test file runs the same suite against its own store

package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harper/offroute/internal/models"
)

var journalStart = time.Date(2024, 12, 14, 15, 0, 0, 0, time.UTC)

func newTestTrack(offset time.Duration) *models.Track {
	t := models.NewTrack(50, 12, "walk.jsonl")
	t.StartedAt = journalStart.Add(offset)
	return t
}

func newTestFix(trackID uuid.UUID, lng, lat float64, offset time.Duration, dev *models.DeviationReport) *models.Fix {
	loc := models.NewLocation(lng, lat, 5, journalStart.Add(offset)).WithMotion(90, 1.2)
	return models.NewFix(trackID, loc, dev)
}

func runRepositorySuite(t *testing.T, open func(t *testing.T) Repository) {
	t.Run("tracks_newest_first", func(t *testing.T) {
		repo := open(t)
		older := newTestTrack(0)
		newer := newTestTrack(time.Hour)
		for _, tr := range []*models.Track{older, newer} {
			if err := repo.CreateTrack(tr); err != nil {
				t.Fatalf("create track: %v", err)
			}
		}

		tracks, err := repo.ListTracks()
		if err != nil {
			t.Fatalf("list tracks: %v", err)
		}
		if len(tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(tracks))
		}
		if tracks[0].ID != newer.ID {
			t.Errorf("expected newest track first")
		}
		if tracks[1].Source != "walk.jsonl" || tracks[1].RoutePoints != 12 {
			t.Errorf("track fields not preserved: %+v", tracks[1])
		}
	})

	t.Run("get_missing_track", func(t *testing.T) {
		repo := open(t)
		if _, err := repo.GetTrack(uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("fixes_and_alerts_in_time_order", func(t *testing.T) {
		repo := open(t)
		tr := newTestTrack(0)
		if err := repo.CreateTrack(tr); err != nil {
			t.Fatalf("create track: %v", err)
		}

		late := newTestFix(tr.ID, -74.0, 40.8, 20*time.Second, &models.DeviationReport{Distance: 9670, OffRoute: true, Alerted: true})
		early := newTestFix(tr.ID, -74.0, 40.7, 10*time.Second, nil)
		for _, f := range []*models.Fix{late, early} {
			if err := repo.CreateFix(f); err != nil {
				t.Fatalf("create fix: %v", err)
			}
		}
		alert := models.NewAlert(tr.ID, late.Location, 9670)
		if err := repo.CreateAlert(alert); err != nil {
			t.Fatalf("create alert: %v", err)
		}

		fixes, err := repo.GetFixes(tr.ID)
		if err != nil {
			t.Fatalf("get fixes: %v", err)
		}
		if len(fixes) != 2 {
			t.Fatalf("expected 2 fixes, got %d", len(fixes))
		}
		if fixes[0].ID != early.ID {
			t.Errorf("expected oldest fix first")
		}
		if fixes[0].Distance != nil {
			t.Errorf("expected no distance on plain fix")
		}
		if fixes[1].Distance == nil || *fixes[1].Distance != 9670 || !fixes[1].OffRoute {
			t.Errorf("deviation not preserved: %+v", fixes[1])
		}
		if fixes[1].Location.Bearing == nil || *fixes[1].Location.Bearing != 90 {
			t.Errorf("bearing not preserved")
		}
		if fixes[1].Location.Altitude != nil {
			t.Errorf("expected absent altitude")
		}

		alerts, err := repo.GetAlerts(tr.ID)
		if err != nil {
			t.Fatalf("get alerts: %v", err)
		}
		if len(alerts) != 1 || alerts[0].Distance != 9670 {
			t.Fatalf("unexpected alerts: %+v", alerts)
		}
		if !alerts[0].FiredAt.Equal(late.Location.Time()) {
			t.Errorf("expected fired at %v, got %v", late.Location.Time(), alerts[0].FiredAt)
		}
	})

	t.Run("ended_track_refuses_records", func(t *testing.T) {
		repo := open(t)
		tr := newTestTrack(0)
		if err := repo.CreateTrack(tr); err != nil {
			t.Fatalf("create track: %v", err)
		}
		end := journalStart.Add(time.Minute)
		if err := repo.EndTrack(tr.ID, end); err != nil {
			t.Fatalf("end track: %v", err)
		}

		got, err := repo.GetTrack(tr.ID)
		if err != nil {
			t.Fatalf("get track: %v", err)
		}
		if got.EndedAt == nil || !got.EndedAt.Equal(end) {
			t.Errorf("expected ended at %v, got %v", end, got.EndedAt)
		}

		if err := repo.EndTrack(tr.ID, end); !errors.Is(err, ErrTrackEnded) {
			t.Errorf("expected ErrTrackEnded on second end, got %v", err)
		}
		if err := repo.CreateFix(newTestFix(tr.ID, 0, 0, time.Hour, nil)); !errors.Is(err, ErrTrackEnded) {
			t.Errorf("expected ErrTrackEnded on fix, got %v", err)
		}
		if err := repo.CreateFix(newTestFix(uuid.New(), 0, 0, 0, nil)); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown track, got %v", err)
		}
	})

	t.Run("delete_track_removes_records", func(t *testing.T) {
		repo := open(t)
		keep := newTestTrack(0)
		drop := newTestTrack(time.Hour)
		for _, tr := range []*models.Track{keep, drop} {
			if err := repo.CreateTrack(tr); err != nil {
				t.Fatalf("create track: %v", err)
			}
			if err := repo.CreateFix(newTestFix(tr.ID, 1, 1, time.Second, nil)); err != nil {
				t.Fatalf("create fix: %v", err)
			}
		}

		if err := repo.DeleteTrack(drop.ID); err != nil {
			t.Fatalf("delete track: %v", err)
		}
		if _, err := repo.GetTrack(drop.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected deleted track to be gone, got %v", err)
		}
		fixes, err := repo.GetFixes(drop.ID)
		if err != nil {
			t.Fatalf("get fixes: %v", err)
		}
		if len(fixes) != 0 {
			t.Errorf("expected fixes to be deleted, got %d", len(fixes))
		}
		kept, err := repo.GetFixes(keep.ID)
		if err != nil || len(kept) != 1 {
			t.Errorf("expected other track untouched, got %d fixes (%v)", len(kept), err)
		}

		if err := repo.DeleteTrack(uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound deleting unknown track, got %v", err)
		}
	})

	t.Run("find_by_prefix", func(t *testing.T) {
		repo := open(t)
		tr := newTestTrack(0)
		if err := repo.CreateTrack(tr); err != nil {
			t.Fatalf("create track: %v", err)
		}

		got, err := FindTrack(repo, tr.ID.String()[:8])
		if err != nil {
			t.Fatalf("find track: %v", err)
		}
		if got.ID != tr.ID {
			t.Errorf("found wrong track")
		}
		if _, err := FindTrack(repo, tr.ID.String()); err != nil {
			t.Errorf("find by full id: %v", err)
		}
		if _, err := FindTrack(repo, "zzzz"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("reset", func(t *testing.T) {
		repo := open(t)
		if err := repo.CreateTrack(newTestTrack(0)); err != nil {
			t.Fatalf("create track: %v", err)
		}
		if err := repo.Reset(); err != nil {
			t.Fatalf("reset: %v", err)
		}
		tracks, err := repo.ListTracks()
		if err != nil {
			t.Fatalf("list tracks: %v", err)
		}
		if len(tracks) != 0 {
			t.Errorf("expected empty journal after reset, got %d tracks", len(tracks))
		}
	})
}
