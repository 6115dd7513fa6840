// ABOUTME: Staleness gate for incoming fixes
// ABOUTME: Drops fixes recorded before the session started unless stale fixes are allowed

package session

import (
	"time"

	"github.com/harper/offroute/internal/models"
)

// LocationValidator decides whether a fix may be delivered.
type LocationValidator struct {
	start      time.Time
	hasStart   bool
	allowStale bool
}

// NewLocationValidator returns a validator for a session that started at start.
func NewLocationValidator(start time.Time, allowStale bool) LocationValidator {
	return LocationValidator{start: start, hasStart: true, allowStale: allowStale}
}

// IsValid reports whether loc is fresh enough for this session.
// Without a recorded start time only the stale policy decides.
func (v LocationValidator) IsValid(loc models.Location) bool {
	if !v.hasStart {
		return v.allowStale
	}
	return v.allowStale || loc.Timestamp >= v.start.UnixMilli()
}
