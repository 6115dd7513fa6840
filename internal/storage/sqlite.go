// ABOUTME: SQLite storage implementation for the tracking journal
// ABOUTME: Provides local-only persistence using pure Go SQLite driver

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/harper/offroute/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteDB implements Repository with a local SQLite database.
type SQLiteDB struct {
	db   *sql.DB
	path string
}

// Compile-time check that SQLiteDB implements Repository.
var _ Repository = (*SQLiteDB)(nil)

// NewSQLiteDB creates a new SQLite database at the given path.
// Creates the directory and database file if they don't exist.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil { //nolint:gosec // 0750 is appropriate for user data directory
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteDB{db: db, path: path}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteDB) Path() string {
	return s.path
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tracks (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			threshold REAL NOT NULL,
			route_points INTEGER NOT NULL DEFAULT 0,
			stale INTEGER NOT NULL DEFAULT 0,
			distance_filter REAL NOT NULL DEFAULT 0,
			source TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS fixes (
			id TEXT PRIMARY KEY,
			track_id TEXT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			longitude REAL NOT NULL,
			latitude REAL NOT NULL,
			accuracy REAL NOT NULL,
			altitude REAL,
			altitude_accuracy REAL,
			bearing REAL,
			speed REAL,
			simulated INTEGER NOT NULL DEFAULT 0,
			recorded_ms INTEGER NOT NULL,
			distance REAL,
			off_route INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			track_id TEXT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			longitude REAL NOT NULL,
			latitude REAL NOT NULL,
			distance REAL NOT NULL,
			fired_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_fixes_track ON fixes(track_id, recorded_ms);
		CREATE INDEX IF NOT EXISTS idx_alerts_track ON alerts(track_id, fired_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Sync is a no-op for local SQLite.
func (s *SQLiteDB) Sync() error {
	return nil
}

// IsReadOnly is always false for SQLite.
func (s *SQLiteDB) IsReadOnly() bool {
	return false
}

// Reset clears all data from the database.
func (s *SQLiteDB) Reset() error {
	_, err := s.db.Exec("DELETE FROM alerts; DELETE FROM fixes; DELETE FROM tracks;")
	return err
}

// CreateTrack inserts a new track.
func (s *SQLiteDB) CreateTrack(t *models.Track) error {
	_, err := s.db.Exec(
		`INSERT INTO tracks (id, started_at, ended_at, threshold, route_points, stale, distance_filter, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.StartedAt, nullTime(t.EndedAt), t.Threshold, t.RoutePoints,
		t.AllowStale, t.DistanceFilter, t.Source,
	)
	if err != nil {
		return fmt.Errorf("insert track: %w", err)
	}
	return nil
}

// EndTrack stamps a track's end time.
func (s *SQLiteDB) EndTrack(id uuid.UUID, at time.Time) error {
	t, err := s.GetTrack(id)
	if err != nil {
		return err
	}
	if t.EndedAt != nil {
		return ErrTrackEnded
	}
	if _, err := s.db.Exec("UPDATE tracks SET ended_at = ? WHERE id = ?", at, id.String()); err != nil {
		return fmt.Errorf("end track: %w", err)
	}
	return nil
}

const trackColumns = "id, started_at, ended_at, threshold, route_points, stale, distance_filter, source"

// GetTrack retrieves a track by its UUID.
func (s *SQLiteDB) GetTrack(id uuid.UUID) (*models.Track, error) {
	row := s.db.QueryRow("SELECT "+trackColumns+" FROM tracks WHERE id = ?", id.String())
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListTracks returns all tracks, newest first.
func (s *SQLiteDB) ListTracks() ([]*models.Track, error) {
	rows, err := s.db.Query("SELECT " + trackColumns + " FROM tracks ORDER BY started_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tracks []*models.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// DeleteTrack removes a track (fixes and alerts cascade delete automatically).
func (s *SQLiteDB) DeleteTrack(id uuid.UUID) error {
	res, err := s.db.Exec("DELETE FROM tracks WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete track: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateFix inserts a fix into an open track.
func (s *SQLiteDB) CreateFix(f *models.Fix) error {
	if err := s.checkOpen(f.TrackID); err != nil {
		return err
	}

	loc := f.Location
	_, err := s.db.Exec(
		`INSERT INTO fixes (id, track_id, longitude, latitude, accuracy, altitude, altitude_accuracy,
		                    bearing, speed, simulated, recorded_ms, distance, off_route, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID.String(), f.TrackID.String(), loc.Longitude, loc.Latitude, loc.Accuracy,
		nullFloat(loc.Altitude), nullFloat(loc.AltitudeAccuracy), nullFloat(loc.Bearing), nullFloat(loc.Speed),
		loc.Simulated, loc.Timestamp, nullFloat(f.Distance), f.OffRoute, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fix: %w", err)
	}
	return nil
}

// GetFixes returns a track's fixes, oldest first.
func (s *SQLiteDB) GetFixes(trackID uuid.UUID) ([]*models.Fix, error) {
	rows, err := s.db.Query(
		`SELECT id, track_id, longitude, latitude, accuracy, altitude, altitude_accuracy,
		        bearing, speed, simulated, recorded_ms, distance, off_route, created_at
		 FROM fixes WHERE track_id = ? ORDER BY recorded_ms, created_at`,
		trackID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query fixes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var fixes []*models.Fix
	for rows.Next() {
		var idStr, trackStr string
		var f models.Fix
		var alt, altAcc, bearing, speed, dist sql.NullFloat64
		err := rows.Scan(&idStr, &trackStr, &f.Location.Longitude, &f.Location.Latitude, &f.Location.Accuracy,
			&alt, &altAcc, &bearing, &speed, &f.Location.Simulated, &f.Location.Timestamp,
			&dist, &f.OffRoute, &f.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan fix: %w", err)
		}
		f.ID, _ = uuid.Parse(idStr)
		f.TrackID, _ = uuid.Parse(trackStr)
		f.Location.Altitude = floatPtr(alt)
		f.Location.AltitudeAccuracy = floatPtr(altAcc)
		f.Location.Bearing = floatPtr(bearing)
		f.Location.Speed = floatPtr(speed)
		f.Distance = floatPtr(dist)
		fixes = append(fixes, &f)
	}
	return fixes, rows.Err()
}

// CreateAlert inserts an alert into an open track.
func (s *SQLiteDB) CreateAlert(a *models.Alert) error {
	if err := s.checkOpen(a.TrackID); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO alerts (id, track_id, longitude, latitude, distance, fired_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.TrackID.String(), a.Point.Longitude, a.Point.Latitude, a.Distance, a.FiredAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// GetAlerts returns a track's alerts, oldest first.
func (s *SQLiteDB) GetAlerts(trackID uuid.UUID) ([]*models.Alert, error) {
	rows, err := s.db.Query(
		`SELECT id, track_id, longitude, latitude, distance, fired_at
		 FROM alerts WHERE track_id = ? ORDER BY fired_at`,
		trackID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []*models.Alert
	for rows.Next() {
		var idStr, trackStr string
		var a models.Alert
		if err := rows.Scan(&idStr, &trackStr, &a.Point.Longitude, &a.Point.Latitude, &a.Distance, &a.FiredAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.ID, _ = uuid.Parse(idStr)
		a.TrackID, _ = uuid.Parse(trackStr)
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteDB) checkOpen(trackID uuid.UUID) error {
	t, err := s.GetTrack(trackID)
	if err != nil {
		return err
	}
	if t.EndedAt != nil {
		return ErrTrackEnded
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(row scanner) (*models.Track, error) {
	var idStr string
	var t models.Track
	var ended sql.NullTime
	err := row.Scan(&idStr, &t.StartedAt, &ended, &t.Threshold, &t.RoutePoints,
		&t.AllowStale, &t.DistanceFilter, &t.Source)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan track: %w", err)
	}
	t.ID, _ = uuid.Parse(idStr)
	if ended.Valid {
		e := ended.Time
		t.EndedAt = &e
	}
	return &t, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
