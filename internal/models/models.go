// ABOUTME: Core data models for points, fixes, routes, and session configuration
// ABOUTME: Provides constructors and coordinate validation shared by every layer

package models

import (
	"fmt"
	"math"
	"time"
)

// DefaultThreshold is the deviation threshold in meters used when none is given.
const DefaultThreshold = 50.0

// DefaultNotificationTitle is shown by background adapters when no title is configured.
const DefaultNotificationTitle = "Using your location"

// ValidateCoordinates checks if latitude and longitude are within valid ranges.
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return fmt.Errorf("coordinates cannot be NaN")
	}
	if math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return fmt.Errorf("coordinates cannot be infinite")
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90")
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude must be between -180 and 180")
	}
	return nil
}

// Point is a WGS-84 coordinate in degrees.
type Point struct {
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
}

// Pt builds a Point from longitude and latitude, in that order.
func Pt(lng, lat float64) Point {
	return Point{Longitude: lng, Latitude: lat}
}

// Validate reports whether the point lies within WGS-84 bounds.
func (p Point) Validate() error {
	return ValidateCoordinates(p.Latitude, p.Longitude)
}

// Location is a single fix reported by a location provider.
type Location struct {
	Longitude        float64  `json:"longitude" yaml:"longitude"`
	Latitude         float64  `json:"latitude" yaml:"latitude"`
	Accuracy         float64  `json:"accuracy" yaml:"accuracy"`
	Altitude         *float64 `json:"altitude" yaml:"altitude"`
	AltitudeAccuracy *float64 `json:"altitude_accuracy" yaml:"altitude_accuracy"`
	Bearing          *float64 `json:"bearing" yaml:"bearing"`
	Speed            *float64 `json:"speed" yaml:"speed"`
	Simulated        bool     `json:"simulated" yaml:"simulated"`
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64 `json:"time" yaml:"time"`
}

// NewLocation creates a fix at the given coordinates and time.
func NewLocation(lng, lat, accuracy float64, at time.Time) Location {
	return Location{
		Longitude: lng,
		Latitude:  lat,
		Accuracy:  accuracy,
		Timestamp: at.UnixMilli(),
	}
}

// WithMotion sets bearing and speed, leaving either absent when the source
// reports a negative (unknown) value.
func (l Location) WithMotion(bearing, speed float64) Location {
	l.Bearing = nonNegative(bearing)
	l.Speed = nonNegative(speed)
	return l
}

// WithAltitude sets altitude and its accuracy. A negative accuracy marks both unknown.
func (l Location) WithAltitude(altitude, accuracy float64) Location {
	if accuracy < 0 {
		l.Altitude = nil
		l.AltitudeAccuracy = nil
		return l
	}
	l.Altitude = &altitude
	l.AltitudeAccuracy = &accuracy
	return l
}

// Point returns the location's coordinate.
func (l Location) Point() Point {
	return Point{Longitude: l.Longitude, Latitude: l.Latitude}
}

// Time returns the fix timestamp as a time.Time.
func (l Location) Time() time.Time {
	return time.UnixMilli(l.Timestamp)
}

func nonNegative(v float64) *float64 {
	if v < 0 || math.IsNaN(v) {
		return nil
	}
	return &v
}

// Route is an ordered polyline of waypoints. Routes are replaced wholesale, never mutated.
type Route []Point

// SegmentCount returns the number of consecutive-pair segments in the route.
func (r Route) SegmentCount() int {
	if len(r) < 2 {
		return 0
	}
	return len(r) - 1
}

// Clone returns an independent copy of the route.
func (r Route) Clone() Route {
	if r == nil {
		return nil
	}
	out := make(Route, len(r))
	copy(out, r)
	return out
}

// Validate checks every waypoint.
func (r Route) Validate() error {
	for i, p := range r {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("waypoint %d: %w", i, err)
		}
	}
	return nil
}

// SessionConfig holds the caller's tracking options.
type SessionConfig struct {
	// Background asks the adapter to keep delivering fixes while the app is backgrounded.
	Background          bool   `json:"background" yaml:"background"`
	NotificationTitle   string `json:"notification_title,omitempty" yaml:"notification_title,omitempty"`
	NotificationMessage string `json:"notification_message,omitempty" yaml:"notification_message,omitempty"`
	// AllowStale accepts fixes timestamped before the session started.
	AllowStale bool `json:"stale" yaml:"stale"`
	// DistanceFilter is the minimum movement in meters between fixes; 0 disables filtering.
	DistanceFilter     float64 `json:"distance_filter" yaml:"distance_filter"`
	RequestPermissions bool    `json:"request_permissions" yaml:"request_permissions"`
}

// DefaultSessionConfig returns a foreground config that requests permissions.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{RequestPermissions: true}
}

// Title returns the notification title, falling back to the default.
func (c SessionConfig) Title() string {
	if c.NotificationTitle == "" {
		return DefaultNotificationTitle
	}
	return c.NotificationTitle
}

// AuthorizationStatus mirrors the platform permission states.
type AuthorizationStatus int

const (
	AuthorizationUndetermined AuthorizationStatus = iota
	AuthorizationDenied
	AuthorizationRestricted
	AuthorizationWhenInUse
	AuthorizationAlways
)

func (s AuthorizationStatus) String() string {
	switch s {
	case AuthorizationDenied:
		return "denied"
	case AuthorizationRestricted:
		return "restricted"
	case AuthorizationWhenInUse:
		return "when_in_use"
	case AuthorizationAlways:
		return "always"
	default:
		return "undetermined"
	}
}

// ParseAuthorizationStatus parses the names produced by String.
func ParseAuthorizationStatus(s string) (AuthorizationStatus, error) {
	switch s {
	case "undetermined", "":
		return AuthorizationUndetermined, nil
	case "denied":
		return AuthorizationDenied, nil
	case "restricted":
		return AuthorizationRestricted, nil
	case "when_in_use", "wheninuse":
		return AuthorizationWhenInUse, nil
	case "always":
		return AuthorizationAlways, nil
	}
	return AuthorizationUndetermined, fmt.Errorf("unknown authorization status %q", s)
}

// Granted reports whether fixes may be delivered under this status.
func (s AuthorizationStatus) Granted() bool {
	return s == AuthorizationWhenInUse || s == AuthorizationAlways
}
