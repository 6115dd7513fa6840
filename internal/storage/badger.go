// ABOUTME: Badger storage implementation for the tracking journal
// ABOUTME: Embedded LSM store sharing the charm key layout, with native prefix iteration

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/harper/offroute/internal/models"
)

// BadgerDB implements Repository on an embedded badger database. Unlike CharmStore it
// keeps the database open, so only one process may use the directory at a time.
type BadgerDB struct {
	db  *badger.DB
	dir string
}

// Compile-time check that BadgerDB implements Repository.
var _ Repository = (*BadgerDB)(nil)

// NewBadgerDB opens or creates a badger database in dir.
func NewBadgerDB(dir string) (*BadgerDB, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerDB{db: db, dir: dir}, nil
}

// Path returns the database directory.
func (b *BadgerDB) Path() string {
	return b.dir
}

// Close closes the database.
func (b *BadgerDB) Close() error {
	return b.db.Close()
}

// Sync flushes pending writes to disk.
func (b *BadgerDB) Sync() error {
	return b.db.Sync()
}

// IsReadOnly reports whether the database was opened read-only.
func (b *BadgerDB) IsReadOnly() bool {
	return b.db.Opts().ReadOnly
}

// Reset clears all data.
func (b *BadgerDB) Reset() error {
	return b.db.DropAll()
}

func txnGet(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, v); err != nil {
			return fmt.Errorf("unmarshal %s: %w", key, err)
		}
		return nil
	})
}

func txnSet(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := txn.Set(key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// txnScan calls fn for every entry under prefix, in key order.
func txnScan(txn *badger.Txn, prefix string, fn func(key, val []byte) error) error {
	p := []byte(prefix)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: p, PrefetchValues: true, PrefetchSize: 100})
	defer it.Close()

	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}

func txnCheckOpen(txn *badger.Txn, trackID uuid.UUID) error {
	var t models.Track
	if err := txnGet(txn, trackKey(trackID), &t); err != nil {
		return err
	}
	if t.EndedAt != nil {
		return ErrTrackEnded
	}
	return nil
}

// CreateTrack stores a new track.
func (b *BadgerDB) CreateTrack(t *models.Track) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txnSet(txn, trackKey(t.ID), t)
	})
}

// EndTrack stamps a track's end time.
func (b *BadgerDB) EndTrack(id uuid.UUID, at time.Time) error {
	return b.db.Update(func(txn *badger.Txn) error {
		var t models.Track
		if err := txnGet(txn, trackKey(id), &t); err != nil {
			return err
		}
		if t.EndedAt != nil {
			return ErrTrackEnded
		}
		t.EndedAt = &at
		return txnSet(txn, trackKey(id), &t)
	})
}

// GetTrack retrieves a track by its UUID.
func (b *BadgerDB) GetTrack(id uuid.UUID) (*models.Track, error) {
	var t models.Track
	err := b.db.View(func(txn *badger.Txn) error {
		return txnGet(txn, trackKey(id), &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTracks returns all tracks, newest first.
func (b *BadgerDB) ListTracks() ([]*models.Track, error) {
	var tracks []*models.Track
	err := b.db.View(func(txn *badger.Txn) error {
		return txnScan(txn, trackPrefix, func(key, val []byte) error {
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
func (b *BadgerDB) DeleteTrack(id uuid.UUID) error {
	return b.db.Update(func(txn *badger.Txn) error {
		var t models.Track
		if err := txnGet(txn, trackKey(id), &t); err != nil {
			return err
		}

		keys := [][]byte{trackKey(id)}
		collect := func(key, _ []byte) error {
			keys = append(keys, key)
			return nil
		}
		for _, prefix := range []string{fixPrefix, alertPrefix} {
			if err := txnScan(txn, prefix+id.String()+":", collect); err != nil {
				return fmt.Errorf("scan %s: %w", prefix, err)
			}
		}

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// CreateFix stores a fix in an open track.
func (b *BadgerDB) CreateFix(f *models.Fix) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txnCheckOpen(txn, f.TrackID); err != nil {
			return err
		}
		return txnSet(txn, fixKey(f), f)
	})
}

// GetFixes returns a track's fixes, oldest first.
func (b *BadgerDB) GetFixes(trackID uuid.UUID) ([]*models.Fix, error) {
	var fixes []*models.Fix
	err := b.db.View(func(txn *badger.Txn) error {
		return txnScan(txn, fixPrefix+trackID.String()+":", func(key, val []byte) error {
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
func (b *BadgerDB) CreateAlert(a *models.Alert) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txnCheckOpen(txn, a.TrackID); err != nil {
			return err
		}
		return txnSet(txn, alertKey(a), a)
	})
}

// GetAlerts returns a track's alerts, oldest first.
func (b *BadgerDB) GetAlerts(trackID uuid.UUID) ([]*models.Alert, error) {
	var alerts []*models.Alert
	err := b.db.View(func(txn *badger.Txn) error {
		return txnScan(txn, alertPrefix+trackID.String()+":", func(key, val []byte) error {
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
