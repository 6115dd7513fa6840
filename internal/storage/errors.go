// ABOUTME: Common journal storage errors
// ABOUTME: Shared by the SQLite and charm backends so callers can match with errors.Is

package storage

import "errors"

// ErrNotFound is returned when a requested track, fix, or alert does not exist.
var ErrNotFound = errors.New("not found")

// ErrReadOnly is returned when attempting to write to a read-only store.
var ErrReadOnly = errors.New("storage is read-only")

// ErrTrackEnded is returned when appending to or ending a track that already ended.
var ErrTrackEnded = errors.New("track already ended")
