// ABOUTME: Export and import of the tracking journal
// ABOUTME: YAML backup format for restores and a markdown summary for humans

package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/harper/offroute/internal/models"
	"gopkg.in/yaml.v3"
)

// BackupVersion is the current backup format version.
const BackupVersion = "1.0"

// BackupTool identifies backups written by this tool.
const BackupTool = "offroute"

// Backup represents the YAML backup format.
type Backup struct {
	Version    string        `yaml:"version"`
	ExportedAt time.Time     `yaml:"exported_at"`
	Tool       string        `yaml:"tool"`
	Tracks     []TrackBackup `yaml:"tracks"`
}

// TrackBackup is a track with everything recorded during it.
type TrackBackup struct {
	Track  models.Track    `yaml:"track"`
	Fixes  []*models.Fix   `yaml:"fixes,omitempty"`
	Alerts []*models.Alert `yaml:"alerts,omitempty"`
}

// TrackWithRecords groups a track with its fixes and alerts.
type TrackWithRecords struct {
	Track  *models.Track
	Fixes  []*models.Fix
	Alerts []*models.Alert
}

// LoadTrack reads a track's fixes and alerts.
func LoadTrack(repo Repository, t *models.Track) (*TrackWithRecords, error) {
	fixes, err := repo.GetFixes(t.ID)
	if err != nil {
		return nil, fmt.Errorf("get fixes for %s: %w", t.ID, err)
	}
	alerts, err := repo.GetAlerts(t.ID)
	if err != nil {
		return nil, fmt.Errorf("get alerts for %s: %w", t.ID, err)
	}
	return &TrackWithRecords{Track: t, Fixes: fixes, Alerts: alerts}, nil
}

// LoadTracks reads every track with its records, newest first.
func LoadTracks(repo Repository) ([]*TrackWithRecords, error) {
	tracks, err := repo.ListTracks()
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	out := make([]*TrackWithRecords, 0, len(tracks))
	for _, t := range tracks {
		twr, err := LoadTrack(repo, t)
		if err != nil {
			return nil, err
		}
		out = append(out, twr)
	}
	return out, nil
}

// ExportToYAML exports the whole journal.
func ExportToYAML(repo Repository) ([]byte, error) {
	tracks, err := LoadTracks(repo)
	if err != nil {
		return nil, err
	}

	backup := Backup{
		Version:    BackupVersion,
		ExportedAt: time.Now().UTC(),
		Tool:       BackupTool,
		Tracks:     make([]TrackBackup, len(tracks)),
	}
	for i, twr := range tracks {
		backup.Tracks[i] = TrackBackup{Track: *twr.Track, Fixes: twr.Fixes, Alerts: twr.Alerts}
	}

	return yaml.Marshal(backup)
}

// ImportFromYAML restores a backup into repo.
func ImportFromYAML(repo Repository, data []byte) (*MigrateSummary, error) {
	var backup Backup
	if err := yaml.Unmarshal(data, &backup); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if backup.Version != BackupVersion {
		return nil, fmt.Errorf("unsupported backup version: %s (expected %s)", backup.Version, BackupVersion)
	}
	if backup.Tool != BackupTool {
		return nil, fmt.Errorf("wrong tool: %s (expected %s)", backup.Tool, BackupTool)
	}

	summary := &MigrateSummary{}
	for i := range backup.Tracks {
		tb := &backup.Tracks[i]
		if err := copyTrack(repo, &tb.Track, tb.Fixes, tb.Alerts); err != nil {
			return nil, err
		}
		summary.Tracks++
		summary.Fixes += len(tb.Fixes)
		summary.Alerts += len(tb.Alerts)
	}
	return summary, nil
}

// ExportToMarkdown renders a per-track summary with its alerts.
func ExportToMarkdown(tracks []*TrackWithRecords) []byte {
	var sb strings.Builder

	now := time.Now().UTC()
	sb.WriteString(fmt.Sprintf("# Offroute Journal - %s\n\n", now.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", now.Format(time.RFC3339)))

	if len(tracks) == 0 {
		sb.WriteString("No tracks recorded.\n")
		return []byte(sb.String())
	}

	for _, twr := range tracks {
		t := twr.Track
		sb.WriteString(fmt.Sprintf("## Track %s\n\n", t.ID.String()[:8]))
		sb.WriteString(fmt.Sprintf("- Started: %s\n", t.StartedAt.Format("2006-01-02 15:04:05")))
		if t.EndedAt != nil {
			sb.WriteString(fmt.Sprintf("- Ended: %s\n", t.EndedAt.Format("2006-01-02 15:04:05")))
		}
		sb.WriteString(fmt.Sprintf("- Threshold: %.0f m over %d route points\n", t.Threshold, t.RoutePoints))
		if t.Source != "" {
			sb.WriteString(fmt.Sprintf("- Source: %s\n", t.Source))
		}
		sb.WriteString(fmt.Sprintf("- Fixes: %d\n\n", len(twr.Fixes)))

		if len(twr.Alerts) == 0 {
			sb.WriteString("No departures.\n\n")
			continue
		}

		sb.WriteString("| Time | Coordinates | Distance |\n")
		sb.WriteString("|------|-------------|----------|\n")
		for _, a := range twr.Alerts {
			sb.WriteString(fmt.Sprintf("| %s | (%.5f, %.5f) | %.0f m |\n",
				a.FiredAt.Format("15:04:05"), a.Point.Latitude, a.Point.Longitude, a.Distance))
		}
		sb.WriteString("\n")
	}

	return []byte(sb.String())
}
