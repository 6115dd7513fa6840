// ABOUTME: Consumer events and journal records
// ABOUTME: Event is the location-or-error union delivered by a tracking session

package models

import (
	"time"

	"github.com/google/uuid"
)

// Error codes reported alongside event errors.
const (
	CodeAlreadyStarted = "ALREADY_STARTED"
	CodeNotAuthorized  = "NOT_AUTHORIZED"
	CodeProviderError  = "PROVIDER_ERROR"
)

// DeviationReport describes where a fix sits relative to the planned route.
type DeviationReport struct {
	Distance  float64 `json:"distance_m" yaml:"distance_m"`
	Threshold float64 `json:"threshold_m" yaml:"threshold_m"`
	OffRoute  bool    `json:"off_route" yaml:"off_route"`
	Alerted   bool    `json:"alerted" yaml:"alerted"`
}

// Event is delivered to a session consumer. Exactly one of Location or Err is set.
type Event struct {
	Location  *Location        `json:"location,omitempty" yaml:"location,omitempty"`
	Deviation *DeviationReport `json:"deviation,omitempty" yaml:"deviation,omitempty"`
	Err       error            `json:"-" yaml:"-"`
	// ErrCode classifies Err; empty for location events.
	ErrCode string `json:"code,omitempty" yaml:"code,omitempty"`
}

// LocationEvent wraps an accepted fix.
func LocationEvent(loc Location, dev *DeviationReport) Event {
	return Event{Location: &loc, Deviation: dev}
}

// ErrorEvent wraps a surfaced error with its code.
func ErrorEvent(err error, code string) Event {
	return Event{Err: err, ErrCode: code}
}

// IsError reports whether the event carries an error.
func (e Event) IsError() bool {
	return e.Err != nil
}

// Track is a journaled tracking session.
type Track struct {
	ID             uuid.UUID  `json:"id" yaml:"id"`
	StartedAt      time.Time  `json:"started_at" yaml:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	Threshold      float64    `json:"threshold_m" yaml:"threshold_m"`
	RoutePoints    int        `json:"route_points" yaml:"route_points"`
	AllowStale     bool       `json:"stale" yaml:"stale"`
	DistanceFilter float64    `json:"distance_filter_m" yaml:"distance_filter_m"`
	Source         string     `json:"source,omitempty" yaml:"source,omitempty"`
}

// NewTrack creates a track starting now.
func NewTrack(threshold float64, routePoints int, source string) *Track {
	return &Track{
		ID:          uuid.New(),
		StartedAt:   time.Now(),
		Threshold:   threshold,
		RoutePoints: routePoints,
		Source:      source,
	}
}

// Fix is a journaled, accepted location.
type Fix struct {
	ID        uuid.UUID `json:"id" yaml:"id"`
	TrackID   uuid.UUID `json:"track_id" yaml:"track_id"`
	Location  Location  `json:"location" yaml:"location"`
	Distance  *float64  `json:"distance_m,omitempty" yaml:"distance_m,omitempty"`
	OffRoute  bool      `json:"off_route" yaml:"off_route"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// NewFix records a delivered location and its deviation verdict, if any.
func NewFix(trackID uuid.UUID, loc Location, dev *DeviationReport) *Fix {
	f := &Fix{
		ID:        uuid.New(),
		TrackID:   trackID,
		Location:  loc,
		CreatedAt: time.Now(),
	}
	if dev != nil {
		d := dev.Distance
		f.Distance = &d
		f.OffRoute = dev.OffRoute
	}
	return f
}

// Alert is a journaled route departure.
type Alert struct {
	ID       uuid.UUID `json:"id" yaml:"id"`
	TrackID  uuid.UUID `json:"track_id" yaml:"track_id"`
	Point    Point     `json:"point" yaml:"point"`
	Distance float64   `json:"distance_m" yaml:"distance_m"`
	FiredAt  time.Time `json:"fired_at" yaml:"fired_at"`
}

// NewAlert records a departure detected at loc.
func NewAlert(trackID uuid.UUID, loc Location, distance float64) *Alert {
	return &Alert{
		ID:       uuid.New(),
		TrackID:  trackID,
		Point:    loc.Point(),
		Distance: distance,
		FiredAt:  loc.Time(),
	}
}
