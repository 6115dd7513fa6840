// ABOUTME: Replay provider that pushes a recorded trace into a session
// ABOUTME: One goroutine per subscription, paced by the recorded timestamps

package provider

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harper/offroute/internal/models"
	"github.com/harper/offroute/internal/session"
)

// ReplayOptions controls how a trace is replayed.
type ReplayOptions struct {
	// Speed divides the recorded gaps between fixes; 0 replays without waiting.
	Speed float64
	// Retime shifts timestamps so the first fix is stamped with the subscription time.
	Retime bool
	Logger *log.Logger
	Now    func() time.Time
}

// Replay implements session.Provider and session.LastKnownProvider over a trace.
type Replay struct {
	records []Record
	opts    ReplayOptions
	log     *log.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	last     *models.Location
	finished chan struct{}
	once     sync.Once
}

// NewReplay creates a replay provider for records.
func NewReplay(records []Record, opts ReplayOptions) *Replay {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Replay{
		records:  records,
		opts:     opts,
		log:      opts.Logger,
		finished: make(chan struct{}),
	}
}

// Subscribe starts replaying from the first record. The handler is only called from the
// replay goroutine.
func (r *Replay) Subscribe(h session.Handler, hints session.Hints) error {
	if h == nil {
		return fmt.Errorf("handler is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.log.Debug("replay subscribed",
		"records", len(r.records),
		"accuracy", hints.Accuracy,
		"distance_filter", hints.DistanceFilter)

	go r.run(ctx, h, newDistanceGate(hints), r.offset())
	return nil
}

// Unsubscribe cancels the running replay without waiting for it.
func (r *Replay) Unsubscribe() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return nil
}

// LastKnown returns the most recent fix this provider delivered.
func (r *Replay) LastKnown() (models.Location, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.last == nil {
		return models.Location{}, false
	}
	return *r.last, true
}

// Finished is closed once a subscription has delivered every record.
func (r *Replay) Finished() <-chan struct{} {
	return r.finished
}

func (r *Replay) offset() int64 {
	if !r.opts.Retime {
		return 0
	}
	for _, rec := range r.records {
		if rec.Location != nil {
			return r.opts.Now().UnixMilli() - rec.Location.Timestamp
		}
	}
	return 0
}

func (r *Replay) run(ctx context.Context, h session.Handler, gate *distanceGate, offset int64) {
	var prevTS int64
	havePrev := false

	for _, rec := range r.records {
		if rec.Location != nil {
			if havePrev && !r.wait(ctx, rec.Location.Timestamp-prevTS) {
				return
			}
			prevTS = rec.Location.Timestamp
			havePrev = true
		}
		if ctx.Err() != nil {
			return
		}

		if rec.Err != nil {
			h.OnProviderError(rec.Err)
			continue
		}

		loc := *rec.Location
		loc.Timestamp += offset
		if !gate.Allow(loc.Point()) {
			r.log.Debug("fix filtered", "lng", loc.Longitude, "lat", loc.Latitude)
			continue
		}

		r.mu.Lock()
		if ctx.Err() != nil {
			r.mu.Unlock()
			return
		}
		r.last = &loc
		r.mu.Unlock()

		h.OnFix(loc)
	}

	r.log.Info("replay finished", "records", len(r.records))
	r.once.Do(func() { close(r.finished) })
}

func (r *Replay) wait(ctx context.Context, gapMillis int64) bool {
	if r.opts.Speed <= 0 || gapMillis <= 0 {
		return ctx.Err() == nil
	}

	d := time.Duration(float64(gapMillis) / r.opts.Speed * float64(time.Millisecond))
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
