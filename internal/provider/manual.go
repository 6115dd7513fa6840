// ABOUTME: Manual provider driven by explicit pushes
// ABOUTME: Used by the MCP server and tests to feed fixes into a session

package provider

import (
	"errors"
	"sync"

	"github.com/harper/offroute/internal/models"
	"github.com/harper/offroute/internal/session"
)

// ErrNotSubscribed is returned when pushing into a provider nobody listens to.
var ErrNotSubscribed = errors.New("no active subscription")

// Manual forwards pushed fixes to the subscribed handler on the caller's goroutine.
type Manual struct {
	mu      sync.Mutex
	handler session.Handler
	hints   session.Hints
	gate    *distanceGate
	last    *models.Location
}

// NewManual creates an unsubscribed manual provider.
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Subscribe(h session.Handler, hints session.Hints) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
	m.hints = hints
	m.gate = newDistanceGate(hints)
	return nil
}

func (m *Manual) Unsubscribe() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = nil
	m.gate = nil
	return nil
}

// Subscribed reports whether a handler is attached.
func (m *Manual) Subscribed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler != nil
}

// Hints returns the hints of the current subscription.
func (m *Manual) Hints() session.Hints {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hints
}

// Push delivers loc. It returns false when the distance filter suppressed it.
func (m *Manual) Push(loc models.Location) (bool, error) {
	m.mu.Lock()
	h := m.handler
	if h == nil {
		m.mu.Unlock()
		return false, ErrNotSubscribed
	}
	if !m.gate.Allow(loc.Point()) {
		m.mu.Unlock()
		return false, nil
	}
	m.last = &loc
	m.mu.Unlock()

	// Called without the lock so the handler may unsubscribe.
	h.OnFix(loc)
	return true, nil
}

// PushError delivers err as a provider error.
func (m *Manual) PushError(err error) error {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()

	if h == nil {
		return ErrNotSubscribed
	}
	h.OnProviderError(err)
	return nil
}

// LastKnown returns the most recently pushed fix.
func (m *Manual) LastKnown() (models.Location, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return models.Location{}, false
	}
	return *m.last, true
}
