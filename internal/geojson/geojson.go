// ABOUTME: GeoJSON conversion for routes and recorded tracks
// ABOUTME: Builds FeatureCollections for export and parses planned routes from GeoJSON

package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harper/offroute/internal/models"
)

// ErrNoRoute is returned when a document has no usable route geometry.
var ErrNoRoute = errors.New("no LineString or MultiPoint geometry found")

// FeatureCollection represents a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature represents a GeoJSON Feature.
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// Geometry represents a GeoJSON Geometry.
type Geometry struct {
	Type        string      `json:"type"`
	Coordinates interface{} `json:"coordinates"`
}

// PointCoordinates represents [longitude, latitude] for a Point.
type PointCoordinates [2]float64

// LineCoordinates represents [[lng, lat], [lng, lat], ...] for a LineString.
type LineCoordinates []PointCoordinates

func pointFeature(p models.Point, props map[string]interface{}) Feature {
	return Feature{
		Type: "Feature",
		Geometry: Geometry{
			Type:        "Point",
			Coordinates: PointCoordinates{p.Longitude, p.Latitude},
		},
		Properties: props,
	}
}

func lineFeature(coords LineCoordinates, props map[string]interface{}) Feature {
	return Feature{
		Type: "Feature",
		Geometry: Geometry{
			Type:        "LineString",
			Coordinates: coords,
		},
		Properties: props,
	}
}

func collection(features []Feature) *FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return &FeatureCollection{Type: "FeatureCollection", Features: features}
}

// FromRoute converts a planned route to a FeatureCollection. A single waypoint becomes
// a Point; an empty route yields no features.
func FromRoute(route models.Route, threshold float64) *FeatureCollection {
	props := map[string]interface{}{
		"kind":      "route",
		"threshold": threshold,
		"segments":  route.SegmentCount(),
	}

	switch len(route) {
	case 0:
		return collection(nil)
	case 1:
		return collection([]Feature{pointFeature(route[0], props)})
	}

	coords := make(LineCoordinates, len(route))
	for i, p := range route {
		coords[i] = PointCoordinates{p.Longitude, p.Latitude}
	}
	return collection([]Feature{lineFeature(coords, props)})
}

// FromTrack converts a recorded track to a FeatureCollection: one LineString for the
// travelled path (when at least two fixes exist) and one Point per alert.
func FromTrack(track *models.Track, fixes []*models.Fix, alerts []*models.Alert) *FeatureCollection {
	var features []Feature

	if len(fixes) >= 2 {
		coords := make(LineCoordinates, len(fixes))
		offRoute := 0
		for i, f := range fixes {
			coords[i] = PointCoordinates{f.Location.Longitude, f.Location.Latitude}
			if f.OffRoute {
				offRoute++
			}
		}
		props := map[string]interface{}{
			"kind":        "track",
			"track_id":    track.ID.String(),
			"started_at":  track.StartedAt.Format(time.RFC3339),
			"threshold":   track.Threshold,
			"point_count": len(fixes),
			"off_route":   offRoute,
		}
		if track.EndedAt != nil {
			props["ended_at"] = track.EndedAt.Format(time.RFC3339)
		}
		features = append(features, lineFeature(coords, props))
	}

	for _, a := range alerts {
		features = append(features, pointFeature(a.Point, map[string]interface{}{
			"kind":     "alert",
			"track_id": track.ID.String(),
			"distance": a.Distance,
			"fired_at": a.FiredAt.Format(time.RFC3339),
		}))
	}

	return collection(features)
}

// ToJSON serializes a FeatureCollection to JSON.
func (fc *FeatureCollection) ToJSON() ([]byte, error) {
	return json.Marshal(fc)
}

// ToJSONIndent serializes a FeatureCollection to indented JSON.
func (fc *FeatureCollection) ToJSONIndent() ([]byte, error) {
	return json.MarshalIndent(fc, "", "  ")
}

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type rawObject struct {
	Type     string       `json:"type"`
	Geometry *rawGeometry `json:"geometry"`
	Features []struct {
		Geometry *rawGeometry `json:"geometry"`
	} `json:"features"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// ParseRoute reads the first LineString or MultiPoint from a FeatureCollection, a
// Feature, or a bare geometry. Positions beyond [lng, lat] (altitude) are ignored.
func ParseRoute(data []byte) (models.Route, error) {
	var obj rawObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	var geoms []*rawGeometry
	switch obj.Type {
	case "FeatureCollection":
		for _, f := range obj.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		geoms = append(geoms, obj.Geometry)
	default:
		geoms = append(geoms, &rawGeometry{Type: obj.Type, Coordinates: obj.Coordinates})
	}

	for _, g := range geoms {
		if g == nil || (g.Type != "LineString" && g.Type != "MultiPoint") {
			continue
		}
		var positions [][]float64
		if err := json.Unmarshal(g.Coordinates, &positions); err != nil {
			return nil, fmt.Errorf("parse %s coordinates: %w", g.Type, err)
		}
		route := make(models.Route, 0, len(positions))
		for i, pos := range positions {
			if len(pos) < 2 {
				return nil, fmt.Errorf("position %d: expected [lng, lat]", i)
			}
			route = append(route, models.Pt(pos[0], pos[1]))
		}
		if err := route.Validate(); err != nil {
			return nil, err
		}
		return route, nil
	}
	return nil, ErrNoRoute
}
