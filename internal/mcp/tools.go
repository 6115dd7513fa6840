// ABOUTME: MCP tool definitions and handlers
// ABOUTME: Start, stop, route, push, and query operations on the tracking session

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/harper/offroute/internal/models"
	"github.com/harper/offroute/internal/provider"
	"github.com/harper/offroute/internal/session"
	"github.com/harper/offroute/internal/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerTools() {
	s.registerStartTrackingTool()
	s.registerStopTrackingTool()
	s.registerSetPlannedRouteTool()
	s.registerPushFixTool()
	s.registerPushErrorTool()
	s.registerDistanceToRouteTool()
	s.registerRecentEventsTool()
	s.registerGetVersionTool()
}

func textResult(v any) *mcp.CallToolResult {
	jsonBytes, _ := json.MarshalIndent(v, "", "  ") //nolint:errchkjson // output is always serializable
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(jsonBytes)}},
	}
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

// EventOutput is one session event as reported to agents.
type EventOutput struct {
	Seq       int64                   `json:"seq"`
	Kind      string                  `json:"kind"`
	Location  *models.Location        `json:"location,omitempty"`
	Deviation *models.DeviationReport `json:"deviation,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Code      string                  `json:"code,omitempty"`
}

func toEventOutput(e sequencedEvent) EventOutput {
	out := EventOutput{Seq: e.seq, Kind: "location", Location: e.ev.Location, Deviation: e.ev.Deviation}
	if e.ev.IsError() {
		out.Kind = "error"
		out.Error = e.ev.Err.Error()
		out.Code = e.ev.ErrCode
	}
	return out
}

// SessionOutput describes the tracking session.
type SessionOutput struct {
	State       string     `json:"state"`
	Subscribed  bool       `json:"subscribed"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	RoutePoints int        `json:"route_points"`
	Segments    int        `json:"segments"`
	ThresholdM  float64    `json:"threshold_m"`
	LastSeq     int64      `json:"last_seq"`
	TrackID     string     `json:"track_id,omitempty"`
	Version     string     `json:"version"`
}

func (s *Server) snapshot() SessionOutput {
	route, threshold := s.session.Route()
	out := SessionOutput{
		State:       s.session.State().String(),
		Subscribed:  s.session.Subscribed(),
		RoutePoints: len(route),
		Segments:    route.SegmentCount(),
		ThresholdM:  threshold,
		Version:     s.session.Version(),
	}
	if started := s.session.StartedAt(); !started.IsZero() {
		out.StartedAt = &started
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out.LastSeq = s.events.lastSeq()
	if s.rec != nil {
		out.TrackID = s.rec.Track().ID.String()
	}
	return out
}

// StartTrackingInput defines input for start_tracking tool. Unset fields keep the
// server defaults.
type StartTrackingInput struct {
	Background          *bool    `json:"background,omitempty"`
	AllowStale          *bool    `json:"allow_stale,omitempty"`
	DistanceFilterM     *float64 `json:"distance_filter_m,omitempty"`
	RequestPermissions  *bool    `json:"request_permissions,omitempty"`
	NotificationTitle   *string  `json:"notification_title,omitempty"`
	NotificationMessage *string  `json:"notification_message,omitempty"`
}

func (in StartTrackingInput) apply(cfg models.SessionConfig) models.SessionConfig {
	if in.Background != nil {
		cfg.Background = *in.Background
	}
	if in.AllowStale != nil {
		cfg.AllowStale = *in.AllowStale
	}
	if in.DistanceFilterM != nil {
		cfg.DistanceFilter = *in.DistanceFilterM
	}
	if in.RequestPermissions != nil {
		cfg.RequestPermissions = *in.RequestPermissions
	}
	if in.NotificationTitle != nil {
		cfg.NotificationTitle = *in.NotificationTitle
	}
	if in.NotificationMessage != nil {
		cfg.NotificationMessage = *in.NotificationMessage
	}
	return cfg
}

func (s *Server) registerStartTrackingTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "start_tracking",
		Description: "Start the tracking session. Fixes pushed with push_fix are then checked against the planned route and reported as events.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"background":           prop("boolean", "Request background tracking (asks for 'always' permission)"),
				"allow_stale":          prop("boolean", "Accept fixes timestamped before the session started"),
				"distance_filter_m":    prop("number", "Minimum movement in meters between fixes (0 = none)"),
				"request_permissions":  prop("boolean", "Ask for location permission if not yet granted"),
				"notification_title":   prop("string", "Background notification title"),
				"notification_message": prop("string", "Background notification message"),
			},
		},
	}, s.handleStartTracking)
}

func (s *Server) handleStartTracking(_ context.Context, _ *mcp.CallToolRequest, input StartTrackingInput) (*mcp.CallToolResult, SessionOutput, error) {
	cfg := input.apply(s.opts.Defaults)
	if cfg.DistanceFilter < 0 {
		return nil, SessionOutput{}, fmt.Errorf("distance_filter_m must not be negative")
	}

	// The recorder exists before Start so a stale last-known fix delivered during
	// Start is journaled too.
	created, err := s.openTrack(cfg)
	if err != nil {
		return nil, SessionOutput{}, err
	}

	if err := s.session.Start(cfg, s.consume); err != nil {
		if created {
			s.abandonTrack()
		}
		return nil, SessionOutput{}, fmt.Errorf("%s: %w", session.ErrorCode(err), err)
	}

	output := s.snapshot()
	return textResult(output), output, nil
}

func (s *Server) openTrack(cfg models.SessionConfig) (bool, error) {
	if s.opts.Journal == nil {
		return false, nil
	}

	// Read the session before taking s.mu; the consumer takes them in the other order.
	route, threshold := s.session.Route()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec != nil {
		return false, nil
	}

	track := models.NewTrack(threshold, len(route), "mcp")
	track.StartedAt = s.now()
	track.AllowStale = cfg.AllowStale
	track.DistanceFilter = cfg.DistanceFilter

	rec, err := storage.NewRecorder(s.opts.Journal, track)
	if err != nil {
		return false, fmt.Errorf("open journal track: %w", err)
	}
	s.rec = rec
	return true, nil
}

func (s *Server) abandonTrack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return
	}
	if err := s.opts.Journal.DeleteTrack(s.rec.Track().ID); err != nil {
		s.log.Warn("could not remove unused track", "err", err)
	}
	s.rec = nil
}

// StopTrackingOutput summarizes a finished tracking run.
type StopTrackingOutput struct {
	State   string `json:"state"`
	TrackID string `json:"track_id,omitempty"`
	Fixes   int    `json:"fixes"`
	Alerts  int    `json:"alerts"`
	Errors  int    `json:"errors"`
}

// StopTrackingInput defines input for stop_tracking tool.
type StopTrackingInput struct{}

func (s *Server) registerStopTrackingTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "stop_tracking",
		Description: "Stop the tracking session. Safe to call when already stopped.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}, s.handleStopTracking)
}

func (s *Server) handleStopTracking(_ context.Context, _ *mcp.CallToolRequest, _ StopTrackingInput) (*mcp.CallToolResult, StopTrackingOutput, error) {
	s.session.Stop()
	output := StopTrackingOutput{State: s.session.State().String()}

	s.mu.Lock()
	if s.rec != nil {
		output.TrackID = s.rec.Track().ID.String()
		output.Fixes, output.Alerts, output.Errors = s.rec.Counts()
	}
	s.finishTrackLocked()
	s.mu.Unlock()

	return textResult(output), output, nil
}

// SetPlannedRouteInput defines input for set_planned_route tool.
type SetPlannedRouteInput struct {
	Sound      string      `json:"sound,omitempty"`
	Points     [][]float64 `json:"points"`
	ThresholdM float64     `json:"threshold_m,omitempty"`
}

// RouteOutput describes the installed route.
type RouteOutput struct {
	Points     int     `json:"points"`
	Segments   int     `json:"segments"`
	ThresholdM float64 `json:"threshold_m"`
	Sound      string  `json:"sound"`
}

func (s *Server) registerSetPlannedRouteTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "set_planned_route",
		Description: "Install the planned route and alert sound. Leaving the route by more than the threshold plays the sound once per departure.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"sound": prop("string", "Alert sound asset name (defaults to the configured sound)"),
				"points": map[string]interface{}{
					"type":        "array",
					"description": "Waypoints as [longitude, latitude] pairs, in travel order",
					"items": map[string]interface{}{
						"type":     "array",
						"items":    map[string]interface{}{"type": "number"},
						"minItems": 2,
						"maxItems": 2,
					},
				},
				"threshold_m": prop("number", "Deviation threshold in meters (default 50)"),
			},
			"required": []string{"points"},
		},
	}, s.handleSetPlannedRoute)
}

func (s *Server) handleSetPlannedRoute(ctx context.Context, _ *mcp.CallToolRequest, input SetPlannedRouteInput) (*mcp.CallToolResult, RouteOutput, error) {
	sound := input.Sound
	if sound == "" {
		sound = s.opts.Sound
	}

	route := make(models.Route, len(input.Points))
	for i, p := range input.Points {
		if len(p) != 2 {
			return nil, RouteOutput{}, fmt.Errorf("point %d: expected [longitude, latitude]", i)
		}
		route[i] = models.Pt(p[0], p[1])
	}

	if err := s.session.SetPlannedRoute(ctx, sound, route, input.ThresholdM); err != nil {
		return nil, RouteOutput{}, err
	}

	installed, threshold := s.session.Route()
	output := RouteOutput{
		Points:     len(installed),
		Segments:   installed.SegmentCount(),
		ThresholdM: threshold,
		Sound:      sound,
	}
	return textResult(output), output, nil
}

// PushFixInput defines input for push_fix tool.
type PushFixInput struct {
	Longitude        float64  `json:"longitude"`
	Latitude         float64  `json:"latitude"`
	Accuracy         float64  `json:"accuracy,omitempty"`
	Altitude         *float64 `json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `json:"altitude_accuracy,omitempty"`
	Bearing          *float64 `json:"bearing,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`
	Simulated        bool     `json:"simulated,omitempty"`
	At               *string  `json:"at,omitempty"`
}

func (in PushFixInput) location(now time.Time) (models.Location, error) {
	if err := models.ValidateCoordinates(in.Latitude, in.Longitude); err != nil {
		return models.Location{}, err
	}
	if in.Accuracy < 0 {
		return models.Location{}, fmt.Errorf("accuracy must not be negative")
	}

	at := now
	if in.At != nil {
		parsed, err := time.Parse(time.RFC3339, *in.At)
		if err != nil {
			return models.Location{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		at = parsed
	}

	bearing, speed := -1.0, -1.0
	if in.Bearing != nil {
		bearing = *in.Bearing
	}
	if in.Speed != nil {
		speed = *in.Speed
	}
	loc := models.NewLocation(in.Longitude, in.Latitude, in.Accuracy, at).WithMotion(bearing, speed)
	if in.Altitude != nil {
		acc := 0.0
		if in.AltitudeAccuracy != nil {
			acc = *in.AltitudeAccuracy
		}
		loc = loc.WithAltitude(*in.Altitude, acc)
	}
	loc.Simulated = in.Simulated
	return loc, nil
}

// PushOutput reports what a push produced.
type PushOutput struct {
	// Filtered is true when the distance filter dropped the fix before the session saw it.
	Filtered bool          `json:"filtered"`
	Events   []EventOutput `json:"events"`
}

func (s *Server) registerPushFixTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "push_fix",
		Description: "Feed one location fix into the active session. Returns the events it produced; an empty list means the fix was rejected as stale.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"longitude":         prop("number", "Longitude coordinate (-180 to 180)"),
				"latitude":          prop("number", "Latitude coordinate (-90 to 90)"),
				"accuracy":          prop("number", "Horizontal accuracy in meters"),
				"altitude":          prop("number", "Altitude in meters"),
				"altitude_accuracy": prop("number", "Altitude accuracy in meters"),
				"bearing":           prop("number", "Bearing in degrees; negative means unknown"),
				"speed":             prop("number", "Speed in m/s; negative means unknown"),
				"simulated":         prop("boolean", "Whether the fix comes from a simulator"),
				"at":                prop("string", "Fix time in RFC3339 format (defaults to now)"),
			},
			"required": []string{"longitude", "latitude"},
		},
	}, s.handlePushFix)
}

func (s *Server) handlePushFix(_ context.Context, _ *mcp.CallToolRequest, input PushFixInput) (*mcp.CallToolResult, PushOutput, error) {
	loc, err := input.location(s.now())
	if err != nil {
		return nil, PushOutput{}, err
	}

	before := s.lastSeq()
	delivered, err := s.feed.Push(loc)
	if err != nil {
		return nil, PushOutput{}, notTracking(err)
	}

	output := PushOutput{Filtered: !delivered, Events: s.eventsSince(before, 0)}
	return textResult(output), output, nil
}

// PushErrorInput defines input for push_error tool.
type PushErrorInput struct {
	Kind string `json:"kind"`
}

func (s *Server) registerPushErrorTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "push_error",
		Description: "Report a location provider failure. 'denied' withdraws permission and stops the session; 'no_fix' is ignored; anything else is reported as a provider error.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"kind": prop("string", "'denied', 'no_fix', or a free-form error message"),
			},
			"required": []string{"kind"},
		},
	}, s.handlePushError)
}

func (s *Server) handlePushError(_ context.Context, _ *mcp.CallToolRequest, input PushErrorInput) (*mcp.CallToolResult, PushOutput, error) {
	if input.Kind == "" {
		return nil, PushOutput{}, fmt.Errorf("kind is required")
	}

	before := s.lastSeq()
	if err := s.feed.PushError(provider.ErrorFromMarker(input.Kind)); err != nil {
		return nil, PushOutput{}, notTracking(err)
	}

	output := PushOutput{Events: s.eventsSince(before, 0)}
	return textResult(output), output, nil
}

func notTracking(err error) error {
	if errors.Is(err, provider.ErrNotSubscribed) {
		return fmt.Errorf("tracking is not running or still waiting for permission: %w", err)
	}
	return err
}

// DistanceInput defines input for distance_to_route tool.
type DistanceInput struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// DistanceOutput reports the distance from a point to the planned route.
type DistanceOutput struct {
	// DistanceM is absent when no route is installed.
	DistanceM   *float64 `json:"distance_m,omitempty"`
	ThresholdM  float64  `json:"threshold_m"`
	OffRoute    bool     `json:"off_route"`
	RoutePoints int      `json:"route_points"`
}

func (s *Server) registerDistanceToRouteTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "distance_to_route",
		Description: "Measure how far a point is from the planned route, without affecting alerts.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"longitude": prop("number", "Longitude coordinate (-180 to 180)"),
				"latitude":  prop("number", "Latitude coordinate (-90 to 90)"),
			},
			"required": []string{"longitude", "latitude"},
		},
	}, s.handleDistanceToRoute)
}

func (s *Server) handleDistanceToRoute(_ context.Context, _ *mcp.CallToolRequest, input DistanceInput) (*mcp.CallToolResult, DistanceOutput, error) {
	if err := models.ValidateCoordinates(input.Latitude, input.Longitude); err != nil {
		return nil, DistanceOutput{}, err
	}

	route, threshold := s.session.Route()
	output := DistanceOutput{ThresholdM: threshold, RoutePoints: len(route)}

	d := s.session.DistanceToRoute(models.Pt(input.Longitude, input.Latitude))
	if !math.IsInf(d, 1) {
		output.DistanceM = &d
		output.OffRoute = d > threshold
	}
	return textResult(output), output, nil
}

// RecentEventsInput defines input for recent_events tool.
type RecentEventsInput struct {
	After int64 `json:"after,omitempty"`
	Limit int   `json:"limit,omitempty"`
}

// RecentEventsOutput lists buffered events.
type RecentEventsOutput struct {
	Events  []EventOutput `json:"events"`
	Count   int           `json:"count"`
	LastSeq int64         `json:"last_seq"`
}

func (s *Server) registerRecentEventsTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "recent_events",
		Description: "List recent session events, oldest first. Pass the last seen seq as 'after' to poll for new ones.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"after": prop("integer", "Only return events with a higher sequence number"),
				"limit": prop("integer", "Maximum number of (newest) events to return"),
			},
		},
	}, s.handleRecentEvents)
}

func (s *Server) handleRecentEvents(_ context.Context, _ *mcp.CallToolRequest, input RecentEventsInput) (*mcp.CallToolResult, RecentEventsOutput, error) {
	if input.Limit < 0 {
		return nil, RecentEventsOutput{}, fmt.Errorf("limit must not be negative")
	}

	events := s.eventsSince(input.After, input.Limit)
	output := RecentEventsOutput{Events: events, Count: len(events), LastSeq: s.lastSeq()}
	return textResult(output), output, nil
}

// VersionInput defines input for get_version tool.
type VersionInput struct{}

// VersionOutput reports the build version.
type VersionOutput struct {
	Version string `json:"version"`
}

func (s *Server) registerGetVersionTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_version",
		Description: "Report the offroute version.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}, s.handleGetVersion)
}

func (s *Server) handleGetVersion(_ context.Context, _ *mcp.CallToolRequest, _ VersionInput) (*mcp.CallToolResult, VersionOutput, error) {
	output := VersionOutput{Version: s.session.Version()}
	return textResult(output), output, nil
}

func (s *Server) lastSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.lastSeq()
}

func (s *Server) eventsSince(after int64, limit int) []EventOutput {
	s.mu.Lock()
	defer s.mu.Unlock()

	buffered := s.events.since(after, limit)
	out := make([]EventOutput, len(buffered))
	for i, e := range buffered {
		out[i] = toEventOutput(e)
	}
	return out
}
