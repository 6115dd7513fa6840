// ABOUTME: Track command: replays a trace through a tracking session
// ABOUTME: Prints every event, sounds alerts on departure, and journals the run

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/harper/offroute/internal/config"
	"github.com/harper/offroute/internal/models"
	"github.com/harper/offroute/internal/provider"
	"github.com/harper/offroute/internal/routefile"
	"github.com/harper/offroute/internal/session"
	"github.com/harper/offroute/internal/sound"
	"github.com/harper/offroute/internal/storage"
	"github.com/harper/offroute/internal/ui"
	"github.com/spf13/cobra"
)

var (
	trackRoute      string
	trackSound      string
	trackThreshold  float64
	trackSpeed      float64
	trackRetime     bool
	trackVehicle    string
	trackBackground bool
	trackStale      bool
	trackFilter     float64
	trackPermission string
	trackGrant      string
	trackNoJournal  bool
	trackPower      string
)

var trackCmd = &cobra.Command{
	Use:   "track <trace>",
	Short: "Replay a trace against a planned route",
	Long: `Replay a recorded trace through a tracking session.

The trace is JSON lines (one fix per line), a GTFS-realtime feed (.pb, .pbf,
.gtfsrt), or a directory of feeds. Every accepted fix is printed with its
distance from the route, and the alert sound plays each time the trace
leaves the route.

Examples:
  offroute track walk.jsonl --route commute.yaml
  offroute track feeds/ --vehicle bus-12 --route line12.geojson --speed 10
  offroute track walk.jsonl --route commute.yaml --permission undetermined --grant denied`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runTrack(ctx, cmd, args[0])
	},
}

func init() {
	f := trackCmd.Flags()
	f.StringVarP(&trackRoute, "route", "r", "", "planned route file (.yaml, .geojson)")
	f.StringVarP(&trackSound, "sound", "s", "", "alert sound asset (default from route file or config)")
	f.Float64VarP(&trackThreshold, "threshold", "t", 0, "deviation threshold in meters (default from route file or config)")
	f.Float64Var(&trackSpeed, "speed", 0, "replay speed multiplier; 0 replays without waiting")
	f.BoolVar(&trackRetime, "retime", true, "stamp the first fix with the start time")
	f.StringVar(&trackVehicle, "vehicle", "", "vehicle ID to follow in GTFS-realtime feeds")
	f.BoolVar(&trackBackground, "background", false, "request background updates")
	f.BoolVar(&trackStale, "stale", false, "accept fixes recorded before the session started")
	f.Float64Var(&trackFilter, "filter", 0, "minimum movement in meters between fixes")
	f.StringVar(&trackPermission, "permission", "always", "initial location permission")
	f.StringVar(&trackGrant, "grant", "always", "answer to permission requests")
	f.BoolVar(&trackNoJournal, "no-journal", false, "do not record the run")
	f.StringVar(&trackPower, "power", "auto", "external power: auto, on, or off")
	_ = trackCmd.MarkFlagRequired("route")

	rootCmd.AddCommand(trackCmd)
}

func powerSource(mode string) (session.PowerSource, error) {
	switch mode {
	case "auto", "":
		return provider.SysfsPower{Dir: provider.DefaultPowerSupplyDir}, nil
	case "on":
		return provider.FixedPower(true), nil
	case "off":
		return provider.FixedPower(false), nil
	}
	return nil, fmt.Errorf("unknown power mode %q (use auto, on, or off)", mode)
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func newResolver(c *config.Config, bell io.Writer) *sound.Resolver {
	return &sound.Resolver{
		Dir:     c.GetAssetDir(),
		Command: c.PlayerCommand,
		Bell:    bell,
		Logger:  logger,
	}
}

func runTrack(ctx context.Context, cmd *cobra.Command, tracePath string) error {
	out := cmd.OutOrStdout()

	if trackFilter < 0 {
		return fmt.Errorf("--filter must not be negative")
	}
	status, err := models.ParseAuthorizationStatus(trackPermission)
	if err != nil {
		return fmt.Errorf("--permission: %w", err)
	}
	answer, err := models.ParseAuthorizationStatus(trackGrant)
	if err != nil {
		return fmt.Errorf("--grant: %w", err)
	}
	power, err := powerSource(trackPower)
	if err != nil {
		return err
	}

	rf, err := routefile.Load(trackRoute)
	if err != nil {
		return err
	}
	records, err := provider.LoadFile(tracePath, trackVehicle)
	if err != nil {
		return err
	}

	replay := provider.NewReplay(records, provider.ReplayOptions{
		Speed:  trackSpeed,
		Retime: trackRetime,
		Logger: logger,
	})
	authority := provider.NewStaticAuthority(status, answer)

	sess, err := session.New(session.Options{
		Provider:  &provider.Guarded{Provider: replay, Authority: authority},
		Authority: authority,
		Sounds:    newResolver(cfg, cmd.ErrOrStderr()),
		Power:     power,
		Settings:  provider.EditorSettings{Path: config.GetConfigPath()},
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()
	authority.SetListener(sess.OnAuthorizationChanged)

	threshold := firstPositive(trackThreshold, rf.Threshold, cfg.GetThreshold())
	asset := firstNonEmpty(trackSound, rf.Sound, cfg.SoundAsset)
	if err := sess.SetPlannedRoute(ctx, asset, rf.Route, threshold); err != nil {
		return err
	}

	sc := cfg.SessionConfig()
	sc.Background = sc.Background || trackBackground
	sc.AllowStale = sc.AllowStale || trackStale
	if trackFilter > 0 {
		sc.DistanceFilter = trackFilter
	}

	var rec *storage.Recorder
	if !trackNoJournal {
		repo, err := openJournal()
		if err != nil {
			return err
		}
		track := models.NewTrack(threshold, len(rf.Route), "replay")
		track.AllowStale = sc.AllowStale
		track.DistanceFilter = sc.DistanceFilter
		rec, err = storage.NewRecorder(repo, track)
		if err != nil {
			return err
		}
	}

	// The consumer runs under the session lock, so it only hands events over.
	events := make(chan models.Event, 1024)
	if err := sess.Start(sc, func(ev models.Event) { events <- ev }); err != nil {
		return fmt.Errorf("%s: %w", session.ErrorCode(err), err)
	}

	fmt.Fprintf(out, "Tracking %s against %s (%d points, threshold %s)\n",
		tracePath, firstNonEmpty(rf.Name, trackRoute), len(rf.Route), ui.FormatDistance(threshold))

	handle := func(ev models.Event) bool {
		fmt.Fprintln(out, ui.FormatEvent(ev))
		if rec != nil {
			if err := rec.Record(ev); err != nil {
				logger.Error("journal write failed", "err", err)
			}
		}
		return ev.ErrCode == models.CodeNotAuthorized
	}

	ended := false
loop:
	for {
		select {
		case ev := <-events:
			if handle(ev) {
				ended = true
				break loop
			}
		case <-replay.Finished():
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	// Stop may wait on a consumer call blocked on a full channel; keep draining.
	stopped := make(chan struct{})
	go func() {
		sess.Stop()
		close(stopped)
	}()
	for done := false; !done; {
		select {
		case ev := <-events:
			if !ended {
				handle(ev)
			}
		case <-stopped:
			done = true
		}
	}
	authority.Wait()
	for drained := false; !drained; {
		select {
		case ev := <-events:
			if !ended {
				handle(ev)
			}
		default:
			drained = true
		}
	}

	if rec == nil {
		return nil
	}
	if err := rec.Finish(time.Now()); err != nil {
		return err
	}
	fixes, alerts, errs := rec.Counts()
	fmt.Fprintln(out, color.GreenString("Recorded track %s: %d fixes, %d alerts, %d errors",
		rec.Track().ID.String()[:8], fixes, alerts, errs))
	return nil
}
