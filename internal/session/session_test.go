// ABOUTME: Tests for the tracking session state machine
// ABOUTME: Uses in-memory provider, authority, and sound fakes

package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/harper/offroute/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionStart = time.Date(2024, 12, 14, 15, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu           sync.Mutex
	handler      Handler
	hints        Hints
	subscribes   int
	unsubscribes int
	subErr       error
}

func (p *fakeProvider) Subscribe(h Handler, hints Hints) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subErr != nil {
		return p.subErr
	}
	p.handler = h
	p.hints = hints
	p.subscribes++
	return nil
}

func (p *fakeProvider) Unsubscribe() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = nil
	p.unsubscribes++
	return nil
}

type lastKnownProvider struct {
	fakeProvider
	loc models.Location
}

func (p *lastKnownProvider) LastKnown() (models.Location, bool) {
	return p.loc, true
}

type fakeAuthority struct {
	status   models.AuthorizationStatus
	requests []models.AuthorizationStatus
}

func (a *fakeAuthority) Status() models.AuthorizationStatus { return a.status }

func (a *fakeAuthority) RequestAuthorization(level models.AuthorizationStatus) {
	a.requests = append(a.requests, level)
}

type fakeSound struct {
	mu       sync.Mutex
	plays    int
	releases int
}

func (s *fakeSound) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
	return nil
}

func (s *fakeSound) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	return nil
}

func (s *fakeSound) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays, s.releases
}

type fakeResolver struct {
	sounds map[string]*fakeSound
}

func (r *fakeResolver) Resolve(_ context.Context, asset string) (SoundResource, error) {
	s, ok := r.sounds[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, asset)
	}
	return s, nil
}

type fakePower bool

func (p fakePower) ExternalPower() bool { return bool(p) }

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) consume(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

func newTestSession(t *testing.T, opts Options) (*Session, *fakeProvider) {
	t.Helper()
	p, ok := opts.Provider.(*fakeProvider)
	if opts.Provider == nil {
		p = &fakeProvider{}
		opts.Provider = p
		ok = true
	}
	if !ok {
		p = nil
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return sessionStart }
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s, p
}

func fixAt(lng, lat float64, offset time.Duration) models.Location {
	return models.NewLocation(lng, lat, 5, sessionStart.Add(offset))
}

func foreground() models.SessionConfig {
	return models.SessionConfig{}
}

func TestNew_RequiresProvider(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestStart_SubscribesWithHints(t *testing.T) {
	s, p := newTestSession(t, Options{Power: fakePower(true)})

	cfg := models.SessionConfig{Background: true, NotificationMessage: "tracking"}
	require.NoError(t, s.Start(cfg, func(models.Event) {}))

	assert.Equal(t, Active, s.State())
	assert.True(t, s.Subscribed())
	assert.Equal(t, 1, p.subscribes)
	assert.Equal(t, AccuracyNavigation, p.hints.Accuracy)
	assert.Equal(t, DistanceFilterNone, p.hints.DistanceFilter)
	assert.Equal(t, models.DefaultNotificationTitle, p.hints.NotificationTitle)
	assert.Equal(t, "tracking", p.hints.NotificationMessage)
	assert.Equal(t, sessionStart, s.StartedAt())
}

func TestStart_BatteryUsesBestAccuracy(t *testing.T) {
	s, p := newTestSession(t, Options{Power: fakePower(false)})

	require.NoError(t, s.Start(models.SessionConfig{DistanceFilter: 25}, func(models.Event) {}))

	assert.Equal(t, AccuracyBest, p.hints.Accuracy)
	assert.Equal(t, 25.0, p.hints.DistanceFilter)
	assert.Empty(t, p.hints.NotificationTitle)
}

func TestStart_TwiceKeepsFirstConsumer(t *testing.T) {
	s, p := newTestSession(t, Options{})

	first := &recorder{}
	second := &recorder{}
	require.NoError(t, s.Start(foreground(), first.consume))

	err := s.Start(foreground(), second.consume)
	require.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Equal(t, models.CodeAlreadyStarted, ErrorCode(err))
	assert.Equal(t, 1, p.subscribes)

	s.OnFix(fixAt(1, 1, time.Second))

	assert.Len(t, first.all(), 1)
	assert.Empty(t, second.all())
}

func TestStart_ConcurrentCallersOneWins(t *testing.T) {
	s, _ := newTestSession(t, Options{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Start(foreground(), func(models.Event) {}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestStart_RequiresConsumer(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	assert.Error(t, s.Start(foreground(), nil))
	assert.Equal(t, Idle, s.State())
}

func TestStart_SubscribeFailureStaysIdle(t *testing.T) {
	p := &fakeProvider{subErr: errors.New("no hardware")}
	s, _ := newTestSession(t, Options{Provider: p})

	err := s.Start(foreground(), func(models.Event) {})
	require.Error(t, err)
	assert.Equal(t, Idle, s.State())
	assert.False(t, s.Subscribed())
}

func TestStart_PermissionEscalation(t *testing.T) {
	tests := []struct {
		name          string
		status        models.AuthorizationStatus
		background    bool
		request       bool
		wantRequests  []models.AuthorizationStatus
		wantSubscribe bool
	}{
		{"undetermined_foreground", models.AuthorizationUndetermined, false, true,
			[]models.AuthorizationStatus{models.AuthorizationWhenInUse}, false},
		{"undetermined_background", models.AuthorizationUndetermined, true, true,
			[]models.AuthorizationStatus{models.AuthorizationAlways}, false},
		{"denied", models.AuthorizationDenied, false, true,
			[]models.AuthorizationStatus{models.AuthorizationWhenInUse}, false},
		{"restricted", models.AuthorizationRestricted, true, true,
			[]models.AuthorizationStatus{models.AuthorizationAlways}, false},
		{"when_in_use_background", models.AuthorizationWhenInUse, true, true,
			[]models.AuthorizationStatus{models.AuthorizationAlways}, true},
		{"when_in_use_foreground", models.AuthorizationWhenInUse, false, true, nil, true},
		{"always", models.AuthorizationAlways, true, true, nil, true},
		{"requests_disabled", models.AuthorizationDenied, true, false, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &fakeAuthority{status: tt.status}
			s, p := newTestSession(t, Options{Authority: auth})

			cfg := models.SessionConfig{Background: tt.background, RequestPermissions: tt.request}
			require.NoError(t, s.Start(cfg, func(models.Event) {}))

			assert.Equal(t, tt.wantRequests, auth.requests)
			assert.Equal(t, tt.wantSubscribe, s.Subscribed())
			assert.Equal(t, Active, s.State())
			if tt.wantSubscribe {
				assert.Equal(t, 1, p.subscribes)
			}
		})
	}
}

func TestOnAuthorizationChanged_SubscribesOnce(t *testing.T) {
	auth := &fakeAuthority{status: models.AuthorizationUndetermined}
	s, p := newTestSession(t, Options{Authority: auth})

	require.NoError(t, s.Start(models.DefaultSessionConfig(), func(models.Event) {}))
	require.False(t, s.Subscribed())

	s.OnAuthorizationChanged(models.AuthorizationUndetermined)
	assert.False(t, s.Subscribed())

	s.OnAuthorizationChanged(models.AuthorizationWhenInUse)
	s.OnAuthorizationChanged(models.AuthorizationAlways)
	assert.True(t, s.Subscribed())
	assert.Equal(t, 1, p.subscribes)
}

func TestOnAuthorizationChanged_IdleIgnored(t *testing.T) {
	s, p := newTestSession(t, Options{})
	s.OnAuthorizationChanged(models.AuthorizationAlways)
	assert.Equal(t, 0, p.subscribes)
}

func TestOnFix_StaleFixes(t *testing.T) {
	t.Run("dropped_by_default", func(t *testing.T) {
		s, _ := newTestSession(t, Options{})
		rec := &recorder{}
		require.NoError(t, s.Start(foreground(), rec.consume))

		s.OnFix(fixAt(1, 1, -time.Second))
		s.OnFix(fixAt(1, 1, 0))
		s.OnFix(fixAt(1, 1, time.Second))

		assert.Len(t, rec.all(), 2)
	})

	t.Run("accepted_with_stale", func(t *testing.T) {
		s, _ := newTestSession(t, Options{})
		rec := &recorder{}
		require.NoError(t, s.Start(models.SessionConfig{AllowStale: true}, rec.consume))

		s.OnFix(fixAt(1, 1, -time.Hour))

		assert.Len(t, rec.all(), 1)
	})
}

func TestStart_StaleDeliversLastKnown(t *testing.T) {
	p := &lastKnownProvider{loc: fixAt(2, 3, -time.Minute)}
	s, err := New(Options{Provider: p, Now: func() time.Time { return sessionStart }})
	require.NoError(t, err)

	rec := &recorder{}
	require.NoError(t, s.Start(models.SessionConfig{AllowStale: true}, rec.consume))

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, 2.0, events[0].Location.Longitude)

	s.Stop()
	rec2 := &recorder{}
	require.NoError(t, s.Start(foreground(), rec2.consume))
	assert.Empty(t, rec2.all())
}

func TestOnFix_IdleIgnored(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	s.OnFix(fixAt(1, 1, time.Second))
	assert.Equal(t, Idle, s.State())
}

func TestOnFix_WithoutRouteHasNoDeviation(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	rec := &recorder{}
	require.NoError(t, s.Start(foreground(), rec.consume))

	s.OnFix(fixAt(1, 1, time.Second))

	events := rec.all()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Deviation)
	assert.False(t, events[0].IsError())
}

func TestOnFix_EmptyRouteHasNoDeviation(t *testing.T) {
	alarm := &fakeSound{}
	s, _ := newTestSession(t, Options{Sounds: &fakeResolver{sounds: map[string]*fakeSound{"alarm.wav": alarm}}})
	require.NoError(t, s.SetPlannedRoute(context.Background(), "alarm.wav", models.Route{}, 50))

	rec := &recorder{}
	require.NoError(t, s.Start(foreground(), rec.consume))
	s.OnFix(fixAt(-74, 40.7, time.Second))
	s.OnFix(fixAt(-74, 41.7, 2*time.Second))

	events := rec.all()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Nil(t, ev.Deviation)
	}
	plays, _ := alarm.counts()
	assert.Equal(t, 0, plays)
	assert.True(t, math.IsInf(s.DistanceToRoute(models.Pt(-74, 40.7)), 1))
}

func TestDeviation_FiresOncePerDeparture(t *testing.T) {
	alarm := &fakeSound{}
	s, _ := newTestSession(t, Options{Sounds: &fakeResolver{sounds: map[string]*fakeSound{"alarm.wav": alarm}}})

	route := models.Route{models.Pt(0, 0), models.Pt(1, 0)}
	require.NoError(t, s.SetPlannedRoute(context.Background(), "alarm.wav", route, 50))

	rec := &recorder{}
	require.NoError(t, s.Start(foreground(), rec.consume))

	// Roughly 1.1 km north of the segment per 0.01 degrees of latitude.
	samples := []models.Location{
		fixAt(0.5, 0.01, 1*time.Second), // off, but first after install
		fixAt(0.5, 0, 2*time.Second),    // on
		fixAt(0.5, 0.01, 3*time.Second), // off: fire
		fixAt(0.5, 0.02, 4*time.Second), // still off
		fixAt(0.6, 0, 5*time.Second),    // back on
		fixAt(0.7, 0.01, 6*time.Second), // off: fire
	}
	for _, loc := range samples {
		s.OnFix(loc)
	}

	plays, _ := alarm.counts()
	assert.Equal(t, 2, plays)

	events := rec.all()
	require.Len(t, events, len(samples))
	var alerted []bool
	for _, ev := range events {
		require.NotNil(t, ev.Deviation)
		alerted = append(alerted, ev.Deviation.Alerted)
	}
	assert.Equal(t, []bool{false, false, true, false, false, true}, alerted)
	assert.InDelta(t, 1111.95, events[2].Deviation.Distance, 1)
	assert.Equal(t, 50.0, events[2].Deviation.Threshold)
}

func TestDeviation_NewRouteNeverFiresOnFirstFix(t *testing.T) {
	alarm := &fakeSound{}
	s, _ := newTestSession(t, Options{Sounds: &fakeResolver{sounds: map[string]*fakeSound{"alarm.wav": alarm}}})
	ctx := context.Background()
	route := models.Route{models.Pt(0, 0), models.Pt(1, 0)}

	require.NoError(t, s.SetPlannedRoute(ctx, "alarm.wav", route, 50))
	require.NoError(t, s.Start(foreground(), func(models.Event) {}))

	s.OnFix(fixAt(0.5, 0, time.Second))
	require.NoError(t, s.SetPlannedRoute(ctx, "alarm.wav", route, 50))
	s.OnFix(fixAt(0.5, 0.01, 2*time.Second))

	plays, _ := alarm.counts()
	assert.Equal(t, 0, plays)
}

func TestSetPlannedRoute_Errors(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	ctx := context.Background()

	assert.ErrorIs(t, s.SetPlannedRoute(ctx, "", nil, 50), ErrMissingSoundFile)
	assert.ErrorIs(t, s.SetPlannedRoute(ctx, "alarm.wav", nil, 50), ErrAssetNotFound)
	assert.Error(t, s.SetPlannedRoute(ctx, "alarm.wav", models.Route{models.Pt(0, 120)}, 50))
}

func TestSetPlannedRoute_FailureKeepsPrevious(t *testing.T) {
	alarm := &fakeSound{}
	s, _ := newTestSession(t, Options{Sounds: &fakeResolver{sounds: map[string]*fakeSound{"alarm.wav": alarm}}})
	ctx := context.Background()

	route := models.Route{models.Pt(0, 0), models.Pt(1, 0)}
	require.NoError(t, s.SetPlannedRoute(ctx, "alarm.wav", route, 75))

	err := s.SetPlannedRoute(ctx, "missing.wav", models.Route{models.Pt(5, 5)}, 10)
	require.ErrorIs(t, err, ErrAssetNotFound)

	got, threshold := s.Route()
	assert.Equal(t, route, got)
	assert.Equal(t, 75.0, threshold)
	_, releases := alarm.counts()
	assert.Equal(t, 0, releases)

	// The kept sound still plays.
	require.NoError(t, s.Start(foreground(), func(models.Event) {}))
	s.OnFix(fixAt(0.5, 0, time.Second))
	s.OnFix(fixAt(0.5, 0.01, 2*time.Second))
	plays, _ := alarm.counts()
	assert.Equal(t, 1, plays)
}

func TestSetPlannedRoute_ReleasesPreviousSound(t *testing.T) {
	first := &fakeSound{}
	second := &fakeSound{}
	s, _ := newTestSession(t, Options{Sounds: &fakeResolver{sounds: map[string]*fakeSound{
		"a.wav": first,
		"b.wav": second,
	}}})
	ctx := context.Background()

	require.NoError(t, s.SetPlannedRoute(ctx, "a.wav", nil, 50))
	require.NoError(t, s.SetPlannedRoute(ctx, "b.wav", nil, 50))

	_, released := first.counts()
	assert.Equal(t, 1, released)

	require.NoError(t, s.Close())
	_, released = second.counts()
	assert.Equal(t, 1, released)
}

func TestSetPlannedRoute_DefaultThreshold(t *testing.T) {
	s, _ := newTestSession(t, Options{Sounds: &fakeResolver{sounds: map[string]*fakeSound{"a.wav": {}}}})

	require.NoError(t, s.SetPlannedRoute(context.Background(), "a.wav", models.Route{models.Pt(0, 0)}, 0))

	_, threshold := s.Route()
	assert.Equal(t, models.DefaultThreshold, threshold)
	assert.InDelta(t, 111195, s.DistanceToRoute(models.Pt(1, 0)), 1)
}

func TestSetPlannedRoute_CancelledContext(t *testing.T) {
	alarm := &fakeSound{}
	s, _ := newTestSession(t, Options{Sounds: &fakeResolver{sounds: map[string]*fakeSound{"a.wav": alarm}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SetPlannedRoute(ctx, "a.wav", nil, 50)
	require.ErrorIs(t, err, context.Canceled)
	_, released := alarm.counts()
	assert.Equal(t, 1, released)
}

func TestOnProviderError(t *testing.T) {
	t.Run("no_fix_swallowed", func(t *testing.T) {
		s, _ := newTestSession(t, Options{})
		rec := &recorder{}
		require.NoError(t, s.Start(foreground(), rec.consume))

		s.OnProviderError(fmt.Errorf("gps warming up: %w", ErrNoFix))

		assert.Empty(t, rec.all())
		assert.Equal(t, Active, s.State())
	})

	t.Run("generic_delivered", func(t *testing.T) {
		s, _ := newTestSession(t, Options{})
		rec := &recorder{}
		require.NoError(t, s.Start(foreground(), rec.consume))

		s.OnProviderError(errors.New("receiver unplugged"))

		events := rec.all()
		require.Len(t, events, 1)
		assert.True(t, events[0].IsError())
		assert.Equal(t, models.CodeProviderError, events[0].ErrCode)
		assert.Equal(t, Active, s.State())
	})

	t.Run("permission_denied_stops", func(t *testing.T) {
		s, p := newTestSession(t, Options{})
		rec := &recorder{}
		require.NoError(t, s.Start(foreground(), rec.consume))

		s.OnProviderError(fmt.Errorf("location services disabled: %w", ErrPermissionDenied))

		events := rec.all()
		require.Len(t, events, 1)
		assert.ErrorIs(t, events[0].Err, ErrNotAuthorized)
		assert.Equal(t, models.CodeNotAuthorized, events[0].ErrCode)
		assert.Equal(t, Idle, s.State())
		assert.False(t, s.Subscribed())
		assert.Equal(t, 1, p.unsubscribes)

		s.OnFix(fixAt(1, 1, time.Second))
		assert.Len(t, rec.all(), 1)
	})

	t.Run("idle_ignored", func(t *testing.T) {
		s, _ := newTestSession(t, Options{})
		s.OnProviderError(errors.New("boom"))
		s.OnProviderError(nil)
		assert.Equal(t, Idle, s.State())
	})
}

func TestStop(t *testing.T) {
	s, p := newTestSession(t, Options{})
	rec := &recorder{}
	require.NoError(t, s.Start(foreground(), rec.consume))

	s.Stop()
	s.Stop()

	assert.Equal(t, Idle, s.State())
	assert.Equal(t, 1, p.unsubscribes)
	assert.True(t, s.StartedAt().IsZero())

	s.OnFix(fixAt(1, 1, time.Second))
	s.OnProviderError(errors.New("late"))
	assert.Empty(t, rec.all())

	// A stopped session can be started again.
	require.NoError(t, s.Start(foreground(), rec.consume))
	assert.Equal(t, 2, p.subscribes)
}

func TestStop_ConcurrentWithFixes(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	rec := &recorder{}
	require.NoError(t, s.Start(foreground(), rec.consume))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.OnFix(fixAt(float64(i), 0, time.Duration(j)*time.Second))
			}
		}(i)
	}
	s.Stop()
	after := len(rec.all())
	wg.Wait()

	assert.Equal(t, after, len(rec.all()))
}

func TestOpenSettingsAndVersion(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	assert.ErrorIs(t, s.OpenSettings(), ErrNoSettings)
	assert.Equal(t, Version, s.Version())
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, models.CodeNotAuthorized, ErrorCode(fmt.Errorf("x: %w", ErrPermissionDenied)))
	assert.Equal(t, models.CodeAlreadyStarted, ErrorCode(ErrAlreadyStarted))
	assert.Equal(t, models.CodeProviderError, ErrorCode(errors.New("other")))
}
