// ABOUTME: Error taxonomy for tracking sessions and their collaborators
// ABOUTME: Sentinels are matched with errors.Is at the session boundary

package session

import (
	"errors"

	"github.com/harper/offroute/internal/models"
)

// ErrAlreadyStarted is returned by Start while a session is active.
var ErrAlreadyStarted = errors.New("location tracking already started")

// ErrNotAuthorized is delivered to the consumer when location permission is denied.
var ErrNotAuthorized = errors.New("permission denied")

// ErrPermissionDenied is wrapped by providers when the platform refuses access.
var ErrPermissionDenied = errors.New("location permission denied")

// ErrNoFix is wrapped by providers when no fix is available yet. It is never surfaced.
var ErrNoFix = errors.New("no location fix yet")

// ErrMissingSoundFile is returned when SetPlannedRoute gets no sound asset.
var ErrMissingSoundFile = errors.New("sound file is required")

// ErrAssetNotFound is returned by resolvers when the sound asset does not exist.
var ErrAssetNotFound = errors.New("sound file not found")

// ErrDecode is returned by resolvers when the sound asset cannot be loaded.
var ErrDecode = errors.New("could not load the sound file")

// ErrNoSettings is returned when the platform has no settings surface.
var ErrNoSettings = errors.New("no link to settings available")

// ErrorCode maps an error to the code reported on consumer events.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrPermissionDenied):
		return models.CodeNotAuthorized
	case errors.Is(err, ErrAlreadyStarted):
		return models.CodeAlreadyStarted
	default:
		return models.CodeProviderError
	}
}
