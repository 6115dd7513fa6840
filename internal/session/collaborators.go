// ABOUTME: Interfaces the session uses to reach platform adapters
// ABOUTME: Providers, permission authority, sound resolver, power and settings

package session

import (
	"context"

	"github.com/harper/offroute/internal/models"
)

// Accuracy is the accuracy/power hint passed to providers.
type Accuracy int

const (
	// AccuracyBest is used on battery.
	AccuracyBest Accuracy = iota
	// AccuracyNavigation is used while on external power.
	AccuracyNavigation
)

func (a Accuracy) String() string {
	if a == AccuracyNavigation {
		return "navigation"
	}
	return "best"
}

// DistanceFilterNone disables the provider's minimum-movement filter.
const DistanceFilterNone = -1.0

// Hints tell a provider how to deliver fixes. Providers may treat them as best effort.
type Hints struct {
	Accuracy Accuracy
	// DistanceFilter is the minimum movement in meters, or DistanceFilterNone.
	DistanceFilter      float64
	Background          bool
	NotificationTitle   string
	NotificationMessage string
}

// Handler receives fixes and errors from a provider. Session implements it.
type Handler interface {
	OnFix(loc models.Location)
	OnProviderError(err error)
}

// Provider is a push-based source of fixes.
type Provider interface {
	Subscribe(h Handler, hints Hints) error
	Unsubscribe() error
}

// LastKnownProvider is implemented by providers that can report a cached fix.
type LastKnownProvider interface {
	LastKnown() (models.Location, bool)
}

// Authority reports and escalates location permission. Results of a request arrive
// asynchronously through Session.OnAuthorizationChanged.
type Authority interface {
	Status() models.AuthorizationStatus
	RequestAuthorization(level models.AuthorizationStatus)
}

// SoundResource is a loaded, playable alert sound.
type SoundResource interface {
	Play() error
	Release() error
}

// SoundResolver turns an asset identifier into a playable resource.
type SoundResolver interface {
	Resolve(ctx context.Context, asset string) (SoundResource, error)
}

// PowerSource reports whether the device is on external power.
type PowerSource interface {
	ExternalPower() bool
}

// SettingsOpener opens the platform's location settings.
type SettingsOpener interface {
	OpenSettings() error
}

// Consumer receives every event of an active session.
type Consumer func(models.Event)
