// ABOUTME: Tests for CLI commands
// ABOUTME: Covers command metadata and end-to-end runs against a temporary journal

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// testEnv points config, data, and charm directories at a temp dir.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("CHARM_DATA_DIR", filepath.Join(dir, "charm"))
	t.Setenv("VISUAL", "")
	t.Setenv("EDITOR", "")
	color.NoColor = true
	return dir
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the CLI with args and returns what it printed to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	if cerr := closeJournal(); cerr != nil {
		t.Errorf("close journal: %v", cerr)
	}
	return out.String(), err
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeFixtures writes a New York to Los Angeles route, a silent WAV, and a trace that
// starts on the route, leaves it, and comes back.
func writeFixtures(t *testing.T, dir string) (route, wav, trace string) {
	t.Helper()
	route = writeFile(t, filepath.Join(dir, "commute.yaml"), []byte(`name: commute
threshold_m: 100
points:
  - [-74.0060, 40.7128]
  - [-118.2437, 34.0522]
`))
	wav = writeFile(t, filepath.Join(dir, "beep.wav"),
		[]byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x44\xac\x00\x00\x88\x58\x01\x00\x02\x00\x10\x00data\x00\x00\x00\x00"))

	var b strings.Builder
	for i, p := range [][2]float64{{-74.0060, 40.7128}, {-74.006, 41.0}, {-74.006, 41.1}, {-74.0060, 40.7128}} {
		fmt.Fprintf(&b, `{"longitude":%f,"latitude":%f,"accuracy":5,"time":%d}`+"\n", p[0], p[1], 1734188400000+int64(i)*1000)
	}
	trace = writeFile(t, filepath.Join(dir, "walk.jsonl"), []byte(b.String()))
	return route, wav, trace
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

func TestRootCmd_Metadata(t *testing.T) {
	if rootCmd.Use != "offroute" {
		t.Errorf("expected Use 'offroute', got %q", rootCmd.Use)
	}
	if !strings.Contains(rootCmd.Long, "sound an alert on departure") {
		t.Error("expected description in Long")
	}

	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"track", "distance", "history", "export", "import", "migrate", "mcp", "settings", "version", "install-skill"} {
		if !contains(names, want) {
			t.Errorf("expected subcommand %q", want)
		}
	}
}

func TestTrackCmd_Flags(t *testing.T) {
	for _, name := range []string{"route", "sound", "threshold", "speed", "retime", "vehicle", "background",
		"stale", "filter", "permission", "grant", "no-journal", "power"} {
		if trackCmd.Flags().Lookup(name) == nil {
			t.Errorf("flag %q not found", name)
		}
	}
	if f := trackCmd.Flags().Lookup("route"); f.Shorthand != "r" {
		t.Errorf("expected shorthand 'r' for route, got %q", f.Shorthand)
	}
	if f := trackCmd.Flags().Lookup("retime"); f.DefValue != "true" {
		t.Errorf("expected retime on by default, got %q", f.DefValue)
	}
}

func TestHistoryCmd_Metadata(t *testing.T) {
	if !contains(historyCmd.Aliases, "ls") {
		t.Error("expected alias 'ls'")
	}
	if historyCmd.Flags().Lookup("delete") == nil {
		t.Error("delete flag not found")
	}
}

func TestExportCmd_Flags(t *testing.T) {
	f := exportCmd.Flags().Lookup("format")
	if f == nil || f.Shorthand != "f" || f.DefValue != "yaml" {
		t.Errorf("unexpected format flag: %+v", f)
	}
	if exportCmd.Flags().Lookup("output") == nil {
		t.Error("output flag not found")
	}
}

func TestPowerSource(t *testing.T) {
	on, err := powerSource("on")
	if err != nil || !on.ExternalPower() {
		t.Errorf("expected external power, got %v %v", on, err)
	}
	off, err := powerSource("off")
	if err != nil || off.ExternalPower() {
		t.Errorf("expected battery, got %v %v", off, err)
	}
	if _, err := powerSource("maybe"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestFirstNonEmptyAndPositive(t *testing.T) {
	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Errorf("firstNonEmpty = %q", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("firstNonEmpty = %q", got)
	}
	if got := firstPositive(0, -1, 75, 50); got != 75 {
		t.Errorf("firstPositive = %v", got)
	}
}

func TestVersionCmd(t *testing.T) {
	testEnv(t)
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "offroute ") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestSettingsCmd(t *testing.T) {
	dir := testEnv(t)

	out, err := execute(t, "settings", "--path")
	if err != nil {
		t.Fatalf("settings --path: %v", err)
	}
	want := filepath.Join(dir, "config", "offroute", "config.json")
	if strings.TrimSpace(out) != want {
		t.Errorf("expected %s, got %q", want, out)
	}

	if _, err := execute(t, "settings"); err == nil {
		t.Error("expected error without an editor")
	}
}

func TestDistanceCmd(t *testing.T) {
	dir := testEnv(t)
	route, _, _ := writeFixtures(t, dir)

	out, err := execute(t, "distance", "--route", route, "--lat", "40.7128", "--lng", "-74.0060")
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if !strings.Contains(out, "on route") || !strings.Contains(out, "threshold 100 m") {
		t.Errorf("expected on route within 100 m, got %q", out)
	}

	out, err = execute(t, "distance", "--route", route, "--lat", "41.0", "--lng", "-74.006")
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if !strings.Contains(out, "off route") || !strings.Contains(out, "km") {
		t.Errorf("expected off route in km, got %q", out)
	}

	if _, err := execute(t, "distance", "--route", route, "--lat", "95", "--lng", "0"); err == nil {
		t.Error("expected error for invalid latitude")
	}
}

func TestTrack_EndToEnd(t *testing.T) {
	dir := testEnv(t)
	route, wav, trace := writeFixtures(t, dir)

	out, err := execute(t, "track", trace, "--route", route, "--sound", wav, "--power", "off")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if n := strings.Count(out, "OFF ROUTE"); n != 1 {
		t.Errorf("expected exactly one alert, got %d in:\n%s", n, out)
	}
	if !strings.Contains(out, "off route") {
		t.Errorf("expected the second off-route fix to be reported, got:\n%s", out)
	}
	if !strings.Contains(out, "Recorded track") || !strings.Contains(out, "4 fixes, 1 alerts, 0 errors") {
		t.Errorf("unexpected summary:\n%s", out)
	}

	out, err = execute(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "1 alert") {
		t.Errorf("expected one alert in history, got %q", out)
	}
	trackID := strings.Fields(out)[0]

	out, err = execute(t, "history", trackID)
	if err != nil {
		t.Fatalf("history %s: %v", trackID, err)
	}
	if !strings.Contains(out, "(41.00000, -74.00600)") {
		t.Errorf("expected the alert location, got %q", out)
	}

	out, err = execute(t, "export", trackID, "--format", "geojson")
	if err != nil {
		t.Fatalf("export geojson: %v", err)
	}
	if !strings.Contains(out, `"LineString"`) || !strings.Contains(out, `"Point"`) {
		t.Errorf("expected a line and an alert point, got %s", out)
	}

	out, err = execute(t, "export", trackID, "--format", "jsonl")
	if err != nil {
		t.Fatalf("export jsonl: %v", err)
	}
	if n := strings.Count(out, "\n"); n != 4 {
		t.Errorf("expected 4 trace lines, got %d", n)
	}

	feed := filepath.Join(dir, "walk.pb")
	if _, err := execute(t, "export", trackID, "--format", "gtfsrt", "-o", feed); err != nil {
		t.Fatalf("export gtfsrt: %v", err)
	}
	if info, err := os.Stat(feed); err != nil || info.Size() == 0 {
		t.Errorf("expected a feed file, got %v %v", info, err)
	}
	if _, err := execute(t, "export", trackID, "--format", "gtfsrt"); err == nil {
		t.Error("expected error writing a binary feed to stdout")
	}

	if _, err := execute(t, "history", trackID, "--delete"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	out, err = execute(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No tracks recorded.") {
		t.Errorf("expected empty history, got %q", out)
	}
}

func TestTrack_PermissionDenied(t *testing.T) {
	dir := testEnv(t)
	route, wav, trace := writeFixtures(t, dir)

	out, err := execute(t, "track", trace, "--route", route, "--sound", wav,
		"--permission", "undetermined", "--grant", "denied", "--power", "off")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if !strings.Contains(out, "NOT_AUTHORIZED") {
		t.Errorf("expected NOT_AUTHORIZED, got:\n%s", out)
	}
	if !strings.Contains(out, "0 fixes, 0 alerts, 1 errors") {
		t.Errorf("unexpected summary:\n%s", out)
	}
}

func TestTrack_Errors(t *testing.T) {
	dir := testEnv(t)
	route, wav, trace := writeFixtures(t, dir)

	tests := []struct {
		name string
		args []string
	}{
		{"missing_route_flag", []string{"track", trace}},
		{"missing_sound", []string{"track", trace, "--route", route, "--no-journal"}},
		{"sound_not_found", []string{"track", trace, "--route", route, "--sound", filepath.Join(dir, "nope.wav"), "--no-journal"}},
		{"bad_permission", []string{"track", trace, "--route", route, "--sound", wav, "--permission", "maybe"}},
		{"bad_power", []string{"track", trace, "--route", route, "--sound", wav, "--power", "maybe"}},
		{"negative_filter", []string{"track", trace, "--route", route, "--sound", wav, "--filter=-5"}},
		{"missing_trace", []string{"track", filepath.Join(dir, "nope.jsonl"), "--route", route, "--sound", wav}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExportImport_YAML(t *testing.T) {
	dir := testEnv(t)
	route, wav, trace := writeFixtures(t, dir)

	if _, err := execute(t, "track", trace, "--route", route, "--sound", wav, "--power", "off"); err != nil {
		t.Fatalf("track: %v", err)
	}

	backup := filepath.Join(dir, "journal.yaml")
	if _, err := execute(t, "export", "--format", "yaml", "-o", backup); err != nil {
		t.Fatalf("export: %v", err)
	}

	out, err := execute(t, "export", "--format", "markdown")
	if err != nil {
		t.Fatalf("export markdown: %v", err)
	}
	if !strings.Contains(out, "# Offroute Journal") {
		t.Errorf("unexpected markdown: %q", out)
	}

	// A fresh data directory imports the backup.
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "restored"))

	out, err = execute(t, "import", backup)
	if err != nil {
		t.Fatalf("import without confirm: %v", err)
	}
	if !strings.Contains(out, "Canceled.") {
		t.Errorf("expected the prompt to cancel, got %q", out)
	}

	out, err = execute(t, "import", backup, "--confirm")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "1 tracks, 4 fixes, 1 alerts") {
		t.Errorf("unexpected import summary: %q", out)
	}
}

func TestExportRoute(t *testing.T) {
	dir := testEnv(t)
	route, _, _ := writeFixtures(t, dir)

	out, err := execute(t, "export", "--format", "geojson", "--route", route)
	if err != nil {
		t.Fatalf("export route: %v", err)
	}
	if !strings.Contains(out, `"LineString"`) {
		t.Errorf("expected a LineString, got %s", out)
	}

	if _, err := execute(t, "export", "--format", "yaml", "--route", route); err == nil {
		t.Error("expected error exporting a route as yaml")
	}
	if _, err := execute(t, "export", "--format", "csv"); err == nil {
		t.Error("expected error for unsupported format")
	}
	if _, err := execute(t, "export", "--format", "geojson"); err == nil {
		t.Error("expected error without a track ID")
	}
}

func TestMigrateCmd(t *testing.T) {
	dir := testEnv(t)
	route, wav, trace := writeFixtures(t, dir)

	if _, err := execute(t, "track", trace, "--route", route, "--sound", wav, "--power", "off"); err != nil {
		t.Fatalf("track: %v", err)
	}

	if _, err := execute(t, "migrate", "--to", "sqlite"); err == nil {
		t.Error("expected error migrating to the current backend")
	}
	if _, err := execute(t, "migrate", "--to", "markdown"); err == nil {
		t.Error("expected error for unknown backend")
	}

	out, err := execute(t, "migrate", "--to", "badger")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "Tracks: 1") || !strings.Contains(out, "Alerts: 1") {
		t.Errorf("unexpected migrate output: %q", out)
	}
	if !strings.Contains(out, `Set "backend": "badger"`) {
		t.Errorf("expected a config hint, got %q", out)
	}

	if _, err := execute(t, "migrate", "--to", "badger"); err == nil {
		t.Error("expected error writing into an existing journal")
	}
}
