// ABOUTME: Recorded fix traces for replay providers
// ABOUTME: Decodes JSON lines traces and loads trace files or GTFS-RT snapshot directories

package provider

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harper/offroute/internal/models"
	"github.com/harper/offroute/internal/session"
)

// Record is one step of a trace: a fix or a provider error.
type Record struct {
	Location *models.Location
	Err      error
}

// line is the JSON lines wire form. Negative bearing or speed means unknown.
type line struct {
	Longitude        *float64 `json:"longitude"`
	Latitude         *float64 `json:"latitude"`
	Accuracy         float64  `json:"accuracy"`
	Altitude         *float64 `json:"altitude"`
	AltitudeAccuracy *float64 `json:"altitude_accuracy"`
	Bearing          *float64 `json:"bearing"`
	Speed            *float64 `json:"speed"`
	Simulated        bool     `json:"simulated"`
	Time             int64    `json:"time"`
	Error            string   `json:"error"`
}

// ErrorFromMarker maps an error marker from a trace or a push to the provider error it
// stands for.
func ErrorFromMarker(marker string) error {
	switch strings.ToLower(strings.TrimSpace(marker)) {
	case "denied", "permission_denied", "not_authorized":
		return fmt.Errorf("reported denial: %w", session.ErrPermissionDenied)
	case "no_fix", "unknown", "location_unknown":
		return fmt.Errorf("reported: %w", session.ErrNoFix)
	default:
		return errors.New(marker)
	}
}

// ReadJSONL decodes one record per non-blank line.
func ReadJSONL(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var l line
		if err := json.Unmarshal([]byte(text), &l); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if l.Error != "" {
			records = append(records, Record{Err: ErrorFromMarker(l.Error)})
			continue
		}
		if l.Longitude == nil || l.Latitude == nil {
			return nil, fmt.Errorf("line %d: longitude and latitude are required", n)
		}
		if err := models.ValidateCoordinates(*l.Latitude, *l.Longitude); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}

		loc := models.Location{
			Longitude: *l.Longitude,
			Latitude:  *l.Latitude,
			Accuracy:  l.Accuracy,
			Simulated: l.Simulated,
			Timestamp: l.Time,
		}
		bearing, speed := -1.0, -1.0
		if l.Bearing != nil {
			bearing = *l.Bearing
		}
		if l.Speed != nil {
			speed = *l.Speed
		}
		loc = loc.WithMotion(bearing, speed)
		if l.Altitude != nil {
			acc := 0.0
			if l.AltitudeAccuracy != nil {
				acc = *l.AltitudeAccuracy
			}
			loc = loc.WithAltitude(*l.Altitude, acc)
		}
		records = append(records, Record{Location: &loc})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return records, nil
}

// WriteJSONL encodes fixes in the form ReadJSONL accepts.
func WriteJSONL(w io.Writer, fixes []models.Location) error {
	enc := json.NewEncoder(w)
	for _, loc := range fixes {
		if err := enc.Encode(loc); err != nil {
			return fmt.Errorf("encode fix: %w", err)
		}
	}
	return nil
}

// LoadFile reads a trace. Files ending in .pb, .pbf or .gtfsrt are GTFS-realtime feeds
// filtered to vehicleID; a directory is read as a sequence of such feeds in name order.
// Anything else is JSON lines.
func LoadFile(path, vehicleID string) ([]Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	if info.IsDir() {
		return loadFeedDir(path, vehicleID)
	}

	if isFeedFile(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read feed: %w", err)
		}
		return DecodeFeed(data, vehicleID)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadJSONL(f)
}

func isFeedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pb", ".pbf", ".gtfsrt":
		return true
	}
	return false
}

func loadFeedDir(dir, vehicleID string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read feed directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isFeedFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var records []Record
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read feed %s: %w", name, err)
		}
		recs, err := DecodeFeed(data, vehicleID)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", name, err)
		}
		records = append(records, recs...)
	}
	return records, nil
}
