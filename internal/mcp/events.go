// ABOUTME: Bounded buffer of recent session events
// ABOUTME: Assigns sequence numbers so agents can poll for what is new

package mcp

import "github.com/harper/offroute/internal/models"

type sequencedEvent struct {
	seq int64
	ev  models.Event
}

// eventRing keeps the last size events. Not safe for concurrent use.
type eventRing struct {
	buf  []sequencedEvent
	size int
	next int64
}

func newEventRing(size int) *eventRing {
	return &eventRing{size: size, next: 1}
}

func (r *eventRing) push(ev models.Event) {
	r.buf = append(r.buf, sequencedEvent{seq: r.next, ev: ev})
	r.next++
	if len(r.buf) > r.size {
		r.buf = r.buf[len(r.buf)-r.size:]
	}
}

// lastSeq returns the sequence number of the newest event, or 0.
func (r *eventRing) lastSeq() int64 {
	return r.next - 1
}

// since returns events with seq > after, oldest first, keeping at most limit of the
// newest ones when limit > 0.
func (r *eventRing) since(after int64, limit int) []sequencedEvent {
	var out []sequencedEvent
	for _, e := range r.buf {
		if e.seq > after {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
