// ABOUTME: Export command for the journal and planned routes
// ABOUTME: Writes YAML backups, markdown, GeoJSON, GTFS-realtime feeds, and JSON-lines traces

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/harper/offroute/internal/geojson"
	"github.com/harper/offroute/internal/models"
	"github.com/harper/offroute/internal/provider"
	"github.com/harper/offroute/internal/routefile"
	"github.com/harper/offroute/internal/storage"
	"github.com/spf13/cobra"
)

var (
	exportFormat  string
	exportOutput  string
	exportRoute   string
	exportVehicle string
)

var exportCmd = &cobra.Command{
	Use:     "export [track-id]",
	Aliases: []string{"e"},
	Short:   "Export tracks and routes",
	Long: `Export the journal or a single track.

Formats:
  yaml      full journal backup, restorable with 'offroute import'
  markdown  human-readable summary of all tracks, or of one track
  geojson   one track as a LineString with alert points, or --route as a map
  jsonl     one track's fixes as a trace for 'offroute track'
  gtfsrt    one track's fixes as a GTFS-realtime feed (needs --output)

Examples:
  offroute export --format yaml -o journal.yaml
  offroute export 3f2a9c1e --format geojson -o walk.geojson
  offroute export --format geojson --route commute.yaml
  offroute export 3f2a9c1e --format jsonl > walk.jsonl
  offroute export 3f2a9c1e --format gtfsrt --vehicle me -o walk.pb`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, what, err := renderExport(args)
		if err != nil {
			return err
		}

		if exportOutput != "" {
			if err := os.WriteFile(exportOutput, data, 0644); err != nil { //nolint:gosec // 0644 is intentional for data export files
				return fmt.Errorf("failed to write file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s to %s\n", what, exportOutput)
			return nil
		}
		if exportFormat == "gtfsrt" {
			return fmt.Errorf("gtfsrt output is binary; use --output")
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "yaml", "output format (yaml, markdown, geojson, jsonl, gtfsrt)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVarP(&exportRoute, "route", "r", "", "export a route file instead of a track (geojson only)")
	exportCmd.Flags().StringVar(&exportVehicle, "vehicle", "offroute", "vehicle ID for gtfsrt feeds")

	rootCmd.AddCommand(exportCmd)
}

// renderExport builds the export and a short description of it.
func renderExport(args []string) ([]byte, string, error) {
	if exportRoute != "" {
		if exportFormat != "geojson" {
			return nil, "", fmt.Errorf("--route only exports as geojson")
		}
		rf, err := routefile.Load(exportRoute)
		if err != nil {
			return nil, "", err
		}
		data, err := geojson.FromRoute(rf.Route, rf.Threshold).ToJSONIndent()
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate GeoJSON: %w", err)
		}
		return append(data, '\n'), fmt.Sprintf("route with %d points", len(rf.Route)), nil
	}

	switch exportFormat {
	case "yaml", "markdown", "geojson", "jsonl", "gtfsrt":
	default:
		return nil, "", fmt.Errorf("unsupported format: %s (use 'yaml', 'markdown', 'geojson', 'jsonl', or 'gtfsrt')", exportFormat)
	}

	repo, err := openJournal()
	if err != nil {
		return nil, "", err
	}

	if exportFormat == "yaml" {
		if len(args) > 0 {
			return nil, "", fmt.Errorf("yaml backups cover the whole journal; drop the track ID")
		}
		data, err := storage.ExportToYAML(repo)
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate YAML: %w", err)
		}
		return data, "YAML", nil
	}

	if exportFormat == "markdown" && len(args) == 0 {
		tracks, err := storage.LoadTracks(repo)
		if err != nil {
			return nil, "", err
		}
		return storage.ExportToMarkdown(tracks), "markdown", nil
	}

	if len(args) == 0 {
		return nil, "", fmt.Errorf("%s export needs a track ID", exportFormat)
	}
	track, err := storage.FindTrack(repo, args[0])
	if err != nil {
		return nil, "", fmt.Errorf("track %s: %w", args[0], err)
	}
	rec, err := storage.LoadTrack(repo, track)
	if err != nil {
		return nil, "", err
	}

	switch exportFormat {
	case "markdown":
		return storage.ExportToMarkdown([]*storage.TrackWithRecords{rec}), "markdown", nil
	case "geojson":
		data, err := geojson.FromTrack(rec.Track, rec.Fixes, rec.Alerts).ToJSONIndent()
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate GeoJSON: %w", err)
		}
		return append(data, '\n'), fmt.Sprintf("%d fixes", len(rec.Fixes)), nil
	case "jsonl":
		var buf bytes.Buffer
		if err := writeTrace(&buf, rec.Fixes); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), fmt.Sprintf("%d fixes", len(rec.Fixes)), nil
	default:
		data, err := provider.EncodeFeed(exportVehicle, locations(rec.Fixes))
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode feed: %w", err)
		}
		return data, fmt.Sprintf("feed with %d fixes", len(rec.Fixes)), nil
	}
}

func locations(fixes []*models.Fix) []models.Location {
	locs := make([]models.Location, len(fixes))
	for i, f := range fixes {
		locs[i] = f.Location
	}
	return locs
}

func writeTrace(w io.Writer, fixes []*models.Fix) error {
	return provider.WriteJSONL(w, locations(fixes))
}
