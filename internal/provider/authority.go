// ABOUTME: Static permission authority for hosts without a permission dialog
// ABOUTME: Answers requests with a configured decision, reported asynchronously

package provider

import (
	"fmt"
	"sync"

	"github.com/harper/offroute/internal/models"
	"github.com/harper/offroute/internal/session"
)

// StaticAuthority starts at an initial status and resolves every request to answer,
// capped at the requested level. Decisions reach the listener from a new goroutine.
type StaticAuthority struct {
	mu       sync.Mutex
	status   models.AuthorizationStatus
	answer   models.AuthorizationStatus
	listener func(models.AuthorizationStatus)
	wg       sync.WaitGroup
}

// NewStaticAuthority creates an authority in status that grants answer on request.
func NewStaticAuthority(status, answer models.AuthorizationStatus) *StaticAuthority {
	return &StaticAuthority{status: status, answer: answer}
}

// SetListener registers the function told about decisions, normally
// Session.OnAuthorizationChanged.
func (a *StaticAuthority) SetListener(fn func(models.AuthorizationStatus)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listener = fn
}

func (a *StaticAuthority) Status() models.AuthorizationStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *StaticAuthority) RequestAuthorization(level models.AuthorizationStatus) {
	a.mu.Lock()
	decision := a.answer
	if decision.Granted() && level < decision {
		decision = level
	}
	a.status = decision
	fn := a.listener
	a.mu.Unlock()

	if fn == nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(decision)
	}()
}

// Wait blocks until every pending decision has been reported.
func (a *StaticAuthority) Wait() {
	a.wg.Wait()
}

// Guarded refuses to subscribe its provider unless the authority has granted access.
// A refusal is reported to the handler asynchronously, as a platform would.
type Guarded struct {
	Provider  session.Provider
	Authority session.Authority

	mu         sync.Mutex
	subscribed bool
}

func (g *Guarded) Subscribe(h session.Handler, hints session.Hints) error {
	status := g.Authority.Status()
	if !status.Granted() {
		go h.OnProviderError(fmt.Errorf("location access %s: %w", status, session.ErrPermissionDenied))
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.Provider.Subscribe(h, hints); err != nil {
		return err
	}
	g.subscribed = true
	return nil
}

func (g *Guarded) Unsubscribe() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.subscribed {
		return nil
	}
	g.subscribed = false
	return g.Provider.Unsubscribe()
}

// LastKnown passes through to the wrapped provider while access is granted.
func (g *Guarded) LastKnown() (models.Location, bool) {
	if !g.Authority.Status().Granted() {
		return models.Location{}, false
	}
	if lk, ok := g.Provider.(session.LastKnownProvider); ok {
		return lk.LastKnown()
	}
	return models.Location{}, false
}
