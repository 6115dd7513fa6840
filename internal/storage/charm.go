// ABOUTME: Charm KV storage implementation for the tracking journal
// ABOUTME: Short-lived transactional connections with prefix-ordered keys per track

package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/charm/kv"
	"github.com/google/uuid"
	"github.com/harper/offroute/internal/models"
)

// DefaultCharmDB is the charm KV database name for the journal.
const DefaultCharmDB = "offroute"

// Key prefixes. Fix and alert keys embed the track ID and a zero-padded millisecond
// timestamp so a prefix scan returns one track's records in time order.
const (
	trackPrefix = "track:"
	fixPrefix   = "fix:"
	alertPrefix = "alert:"
)

// CharmStore implements Repository on a local charm KV database. It holds no
// connection; each operation opens the database, runs, and closes it, so several
// processes can share the journal.
type CharmStore struct {
	dbName string
}

// Compile-time check that CharmStore implements Repository.
var _ Repository = (*CharmStore)(nil)

// NewCharmStore returns a store for the named database. The data directory follows
// CHARM_DATA_DIR.
func NewCharmStore(dbName string) *CharmStore {
	if dbName == "" {
		dbName = DefaultCharmDB
	}
	return &CharmStore{dbName: dbName}
}

func trackKey(id uuid.UUID) []byte {
	return []byte(trackPrefix + id.String())
}

func fixKey(f *models.Fix) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", fixPrefix, f.TrackID, f.Location.Timestamp, f.ID))
}

func alertKey(a *models.Alert) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", alertPrefix, a.TrackID, a.FiredAt.UnixMilli(), a.ID))
}

func getJSON(k *kv.KV, key []byte, v any) error {
	data, err := k.Get(key)
	if errors.Is(err, kv.ErrMissingKey) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func setJSON(k *kv.KV, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := k.Set(key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// scanPrefix calls fn with the key and value of every entry under prefix, in key order.
func scanPrefix(k *kv.KV, prefix string, fn func(key, val []byte) error) error {
	keys, err := k.Keys()
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	p := []byte(prefix)
	matched := keys[:0]
	for _, key := range keys {
		if bytes.HasPrefix(key, p) {
			matched = append(matched, key)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return bytes.Compare(matched[i], matched[j]) < 0
	})

	for _, key := range matched {
		val, err := k.Get(key)
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}

func (c *CharmStore) write(fn func(k *kv.KV) error) error {
	return kv.Do(c.dbName, func(k *kv.KV) error {
		if k.IsReadOnly() {
			return ErrReadOnly
		}
		return fn(k)
	})
}

// Close is a no-op; connections are closed after each operation.
func (c *CharmStore) Close() error {
	return nil
}

// Sync is a no-op. The journal never leaves the machine.
func (c *CharmStore) Sync() error {
	return nil
}

// Reset clears all data.
func (c *CharmStore) Reset() error {
	return kv.Do(c.dbName, func(k *kv.KV) error {
		return k.Reset()
	})
}

// IsReadOnly reports whether another process holds the write lock.
func (c *CharmStore) IsReadOnly() bool {
	ro := false
	err := kv.DoReadOnly(c.dbName, func(k *kv.KV) error {
		ro = k.IsReadOnly()
		return nil
	})
	return ro || err != nil
}

// CreateTrack stores a new track.
func (c *CharmStore) CreateTrack(t *models.Track) error {
	return c.write(func(k *kv.KV) error {
		return setJSON(k, trackKey(t.ID), t)
	})
}

// EndTrack stamps a track's end time.
func (c *CharmStore) EndTrack(id uuid.UUID, at time.Time) error {
	return c.write(func(k *kv.KV) error {
		var t models.Track
		if err := getJSON(k, trackKey(id), &t); err != nil {
			return err
		}
		if t.EndedAt != nil {
			return ErrTrackEnded
		}
		t.EndedAt = &at
		return setJSON(k, trackKey(id), &t)
	})
}

// GetTrack retrieves a track by its UUID.
func (c *CharmStore) GetTrack(id uuid.UUID) (*models.Track, error) {
	var t models.Track
	err := kv.DoReadOnly(c.dbName, func(k *kv.KV) error {
		return getJSON(k, trackKey(id), &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTracks returns all tracks, newest first.
func (c *CharmStore) ListTracks() ([]*models.Track, error) {
	var tracks []*models.Track
	err := kv.DoReadOnly(c.dbName, func(k *kv.KV) error {
		return scanPrefix(k, trackPrefix, func(key, val []byte) error {
			var t models.Track
			if err := json.Unmarshal(val, &t); err != nil {
				return fmt.Errorf("unmarshal %s: %w", key, err)
			}
			tracks = append(tracks, &t)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}

	sort.Slice(tracks, func(i, j int) bool {
		return tracks[i].StartedAt.After(tracks[j].StartedAt)
	})
	return tracks, nil
}

// DeleteTrack removes a track with its fixes and alerts.
func (c *CharmStore) DeleteTrack(id uuid.UUID) error {
	return c.write(func(k *kv.KV) error {
		var t models.Track
		if err := getJSON(k, trackKey(id), &t); err != nil {
			return err
		}

		keys := [][]byte{trackKey(id)}
		collect := func(key, _ []byte) error {
			keys = append(keys, key)
			return nil
		}
		for _, prefix := range []string{fixPrefix, alertPrefix} {
			if err := scanPrefix(k, prefix+id.String()+":", collect); err != nil {
				return fmt.Errorf("scan %s: %w", prefix, err)
			}
		}

		for _, key := range keys {
			if err := k.Delete(key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

func checkOpen(k *kv.KV, trackID uuid.UUID) error {
	var t models.Track
	if err := getJSON(k, trackKey(trackID), &t); err != nil {
		return err
	}
	if t.EndedAt != nil {
		return ErrTrackEnded
	}
	return nil
}

// CreateFix stores a fix in an open track.
func (c *CharmStore) CreateFix(f *models.Fix) error {
	return c.write(func(k *kv.KV) error {
		if err := checkOpen(k, f.TrackID); err != nil {
			return err
		}
		return setJSON(k, fixKey(f), f)
	})
}

// GetFixes returns a track's fixes, oldest first.
func (c *CharmStore) GetFixes(trackID uuid.UUID) ([]*models.Fix, error) {
	var fixes []*models.Fix
	err := kv.DoReadOnly(c.dbName, func(k *kv.KV) error {
		return scanPrefix(k, fixPrefix+trackID.String()+":", func(key, val []byte) error {
			var f models.Fix
			if err := json.Unmarshal(val, &f); err != nil {
				return fmt.Errorf("unmarshal %s: %w", key, err)
			}
			fixes = append(fixes, &f)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get fixes: %w", err)
	}
	return fixes, nil
}

// CreateAlert stores an alert in an open track.
func (c *CharmStore) CreateAlert(a *models.Alert) error {
	return c.write(func(k *kv.KV) error {
		if err := checkOpen(k, a.TrackID); err != nil {
			return err
		}
		return setJSON(k, alertKey(a), a)
	})
}

// GetAlerts returns a track's alerts, oldest first.
func (c *CharmStore) GetAlerts(trackID uuid.UUID) ([]*models.Alert, error) {
	var alerts []*models.Alert
	err := kv.DoReadOnly(c.dbName, func(k *kv.KV) error {
		return scanPrefix(k, alertPrefix+trackID.String()+":", func(key, val []byte) error {
			var a models.Alert
			if err := json.Unmarshal(val, &a); err != nil {
				return fmt.Errorf("unmarshal %s: %w", key, err)
			}
			alerts = append(alerts, &a)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get alerts: %w", err)
	}
	return alerts, nil
}
