// ABOUTME: Tracking session state machine
// ABOUTME: Routes provider fixes through the validator and deviation detector to one consumer

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harper/offroute/internal/deviation"
	"github.com/harper/offroute/internal/models"
)

// Version is reported by Session.Version. Overridden at build time with -ldflags.
var Version = "0.3.0"

// State is the session lifecycle state.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Options wires a session to its platform adapters. Only Provider is required.
type Options struct {
	Provider  Provider
	Authority Authority
	Sounds    SoundResolver
	Power     PowerSource
	Settings  SettingsOpener
	Logger    *log.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Session is a single tracking session. All entry points are safe for concurrent use;
// state changes, route evaluation, and consumer delivery happen under one lock, so once
// Stop returns the consumer is never called again. Consumers must not call back into
// the session synchronously.
type Session struct {
	mu sync.Mutex

	provider  Provider
	authority Authority
	sounds    SoundResolver
	power     PowerSource
	settings  SettingsOpener
	log       *log.Logger
	now       func() time.Time

	state      State
	consumer   Consumer
	validator  LocationValidator
	createdAt  time.Time
	hints      Hints
	subscribed bool

	detector *deviation.Detector
	sound    SoundResource
}

// New creates an idle session.
func New(opts Options) (*Session, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("location provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		provider:  opts.Provider,
		authority: opts.Authority,
		sounds:    opts.Sounds,
		power:     opts.Power,
		settings:  opts.Settings,
		log:       logger,
		now:       now,
		detector:  deviation.New(),
	}, nil
}

// Start moves the session from Idle to Active and registers consumer as the only
// receiver of events. It fails with ErrAlreadyStarted, and changes nothing, when the
// session is already active.
func (s *Session) Start(cfg models.SessionConfig, consumer Consumer) error {
	if consumer == nil {
		return fmt.Errorf("consumer is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Active {
		return ErrAlreadyStarted
	}

	s.createdAt = s.now()
	s.validator = NewLocationValidator(s.createdAt, cfg.AllowStale)
	s.consumer = consumer
	s.state = Active
	s.hints = s.hintsFor(cfg)

	s.log.Info("session started",
		"accuracy", s.hints.Accuracy,
		"distance_filter", s.hints.DistanceFilter,
		"background", cfg.Background,
		"stale", cfg.AllowStale)

	if cfg.RequestPermissions && s.authority != nil {
		level := models.AuthorizationWhenInUse
		if cfg.Background {
			level = models.AuthorizationAlways
		}
		switch status := s.authority.Status(); status {
		case models.AuthorizationUndetermined, models.AuthorizationDenied, models.AuthorizationRestricted:
			s.log.Info("requesting authorization", "status", status, "level", level)
			s.authority.RequestAuthorization(level)
			// Updates begin once the authority reports a decision.
			return nil
		case models.AuthorizationWhenInUse:
			if cfg.Background {
				s.log.Info("escalating authorization", "level", level)
				s.authority.RequestAuthorization(level)
			}
		}
	}

	if err := s.subscribeLocked(); err != nil {
		s.resetLocked()
		return err
	}

	if cfg.AllowStale {
		if lk, ok := s.provider.(LastKnownProvider); ok {
			if loc, ok := lk.LastKnown(); ok {
				s.handleFixLocked(loc)
			}
		}
	}
	return nil
}

func (s *Session) hintsFor(cfg models.SessionConfig) Hints {
	accuracy := AccuracyBest
	if s.power != nil && s.power.ExternalPower() {
		accuracy = AccuracyNavigation
	}

	// A zero filter must mean "no filter", never "filter everything".
	filter := cfg.DistanceFilter
	if filter <= 0 {
		filter = DistanceFilterNone
	}

	hints := Hints{
		Accuracy:       accuracy,
		DistanceFilter: filter,
		Background:     cfg.Background,
	}
	if cfg.Background {
		hints.NotificationTitle = cfg.Title()
		hints.NotificationMessage = cfg.NotificationMessage
	}
	return hints
}

// Stop returns the session to Idle. It is a no-op when already idle.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Idle {
		return
	}
	s.unsubscribeLocked()
	s.resetLocked()
	s.log.Info("session stopped")
}

func (s *Session) resetLocked() {
	s.state = Idle
	s.consumer = nil
	s.createdAt = time.Time{}
	s.validator = LocationValidator{}
	s.hints = Hints{}
}

func (s *Session) subscribeLocked() error {
	if s.subscribed {
		return nil
	}
	if err := s.provider.Subscribe(s, s.hints); err != nil {
		return fmt.Errorf("subscribe to location updates: %w", err)
	}
	s.subscribed = true
	return nil
}

func (s *Session) unsubscribeLocked() {
	if !s.subscribed {
		return
	}
	if err := s.provider.Unsubscribe(); err != nil {
		s.log.Warn("unsubscribe failed", "err", err)
	}
	s.subscribed = false
}

// OnFix handles a fix pushed by the provider.
func (s *Session) OnFix(loc models.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Active {
		return
	}
	s.handleFixLocked(loc)
}

func (s *Session) handleFixLocked(loc models.Location) {
	if !s.validator.IsValid(loc) {
		s.log.Debug("dropping stale fix", "time", loc.Time())
		return
	}

	var report *models.DeviationReport
	if s.detector.Installed() && s.sound != nil {
		decision, r := s.detector.Report(loc.Point())
		report = &r
		if decision == deviation.Fire {
			s.log.Warn("left planned route", "distance", r.Distance, "threshold", r.Threshold)
			if err := s.sound.Play(); err != nil {
				s.log.Error("alert playback failed", "err", err)
			}
		}
	}

	s.consumer(models.LocationEvent(loc, report))
}

// OnProviderError handles an error pushed by the provider.
func (s *Session) OnProviderError(err error) {
	if err == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Active || errors.Is(err, ErrNoFix) {
		return
	}

	if errors.Is(err, ErrPermissionDenied) {
		s.log.Warn("location permission denied, stopping", "err", err)
		s.unsubscribeLocked()
		s.consumer(models.ErrorEvent(fmt.Errorf("%w: %w", ErrNotAuthorized, err), models.CodeNotAuthorized))
		s.resetLocked()
		return
	}

	s.log.Error("provider error", "err", err)
	s.consumer(models.ErrorEvent(err, ErrorCode(err)))
}

// OnAuthorizationChanged starts updates once the user has decided on a permission.
// Repeated calls never subscribe twice.
func (s *Session) OnAuthorizationChanged(status models.AuthorizationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == models.AuthorizationUndetermined || s.state != Active {
		return
	}
	s.log.Debug("authorization changed", "status", status)
	if err := s.subscribeLocked(); err != nil {
		s.log.Error("could not start updates", "err", err)
		s.consumer(models.ErrorEvent(err, models.CodeProviderError))
	}
}

// SetPlannedRoute resolves soundAsset and installs it with route and threshold. It works
// in either state. On failure the previously installed route and sound stay in place.
// A threshold that is not positive falls back to models.DefaultThreshold.
func (s *Session) SetPlannedRoute(ctx context.Context, soundAsset string, route models.Route, threshold float64) error {
	if soundAsset == "" {
		return ErrMissingSoundFile
	}
	if err := route.Validate(); err != nil {
		return fmt.Errorf("invalid route: %w", err)
	}
	if s.sounds == nil {
		return fmt.Errorf("%w: no sound resolver configured", ErrAssetNotFound)
	}

	// Decoding can be slow; keep it outside the lock so fixes keep flowing.
	res, err := s.sounds.Resolve(ctx, soundAsset)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = res.Release()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sound != nil {
		if err := s.sound.Release(); err != nil {
			s.log.Warn("releasing previous sound failed", "err", err)
		}
	}
	s.sound = res
	s.detector.SetRoute(route, threshold)

	s.log.Info("planned route set",
		"points", len(route),
		"segments", route.SegmentCount(),
		"threshold", s.detector.Threshold(),
		"sound", soundAsset)
	return nil
}

// DistanceToRoute returns the distance from p to the installed route.
func (s *Session) DistanceToRoute(p models.Point) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.DistanceToRoute(p)
}

// OpenSettings opens the platform's location settings.
func (s *Session) OpenSettings() error {
	if s.settings == nil {
		return ErrNoSettings
	}
	return s.settings.OpenSettings()
}

// Version returns the build version.
func (s *Session) Version() string {
	return Version
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribed reports whether the provider is currently delivering fixes.
func (s *Session) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

// StartedAt returns when the active session started, or the zero time when idle.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// Route returns the installed route and threshold.
func (s *Session) Route() (models.Route, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.Route(), s.detector.Threshold()
}

// Close stops the session and releases the loaded sound.
func (s *Session) Close() error {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sound == nil {
		return nil
	}
	err := s.sound.Release()
	s.sound = nil
	return err
}
