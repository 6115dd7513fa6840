// ABOUTME: MCP server initialization and configuration
// ABOUTME: Drives one tracking session from AI agents through a manual location feed

package mcp

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harper/offroute/internal/models"
	"github.com/harper/offroute/internal/provider"
	"github.com/harper/offroute/internal/session"
	"github.com/harper/offroute/internal/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DefaultEventBuffer is how many recent events the server keeps for recent_events.
const DefaultEventBuffer = 256

// Options configures a Server. Every field is optional.
type Options struct {
	// Defaults seeds start_tracking; tool arguments override individual fields.
	Defaults models.SessionConfig
	// Sound is the alert asset used when set_planned_route names none.
	Sound string
	// Journal records each tracking run as a track when set.
	Journal storage.Repository
	// EventBuffer bounds recent_events. Defaults to DefaultEventBuffer.
	EventBuffer int
	Logger      *log.Logger
	Now         func() time.Time
}

// Server exposes a tracking session as MCP tools. Fixes arrive through feed, which must
// be the session's provider (directly or behind provider.Guarded).
type Server struct {
	mcp     *mcp.Server
	session *session.Session
	feed    *provider.Manual
	opts    Options
	log     *log.Logger
	now     func() time.Time

	// mu guards the fields below. It may be taken while the session lock is held
	// (from consume), so code holding mu must not call into the session.
	mu     sync.Mutex
	events *eventRing
	rec    *storage.Recorder
}

// NewServer creates MCP server with all capabilities.
func NewServer(sess *session.Session, feed *provider.Manual, opts Options) (*Server, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is required")
	}
	if feed == nil {
		return nil, fmt.Errorf("manual location feed is required")
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "offroute",
			Version: sess.Version(),
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		session: sess,
		feed:    feed,
		opts:    opts,
		log:     logger,
		now:     now,
		events:  newEventRing(opts.EventBuffer),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Serve starts the MCP server in stdio mode. The session is stopped and any open
// track finished when the client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	defer s.shutdown()
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) shutdown() {
	s.session.Stop()
	s.finishTrack()
}

// consume is the session consumer. It runs under the session lock, so it must never
// call back into the session.
func (s *Server) consume(ev models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events.push(ev)

	if s.rec == nil {
		return
	}
	if err := s.rec.Record(ev); err != nil {
		s.log.Warn("journal write failed", "err", err)
	}
	// The session stops itself when permission is withdrawn.
	if ev.ErrCode == models.CodeNotAuthorized {
		s.finishTrackLocked()
	}
}

func (s *Server) finishTrack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishTrackLocked()
}

func (s *Server) finishTrackLocked() {
	if s.rec == nil {
		return
	}
	if err := s.rec.Finish(s.now()); err != nil {
		s.log.Warn("could not end track", "err", err)
	}
	s.rec = nil
}
