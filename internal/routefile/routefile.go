// ABOUTME: Loads planned routes from YAML or GeoJSON files
// ABOUTME: YAML files can carry a threshold and alert sound alongside the waypoints

package routefile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/harper/offroute/internal/geojson"
	"github.com/harper/offroute/internal/models"
	"gopkg.in/yaml.v3"
)

// File is a planned route with optional alert settings.
type File struct {
	Name      string       `yaml:"name,omitempty"`
	Threshold float64      `yaml:"threshold_m,omitempty" validate:"gte=0"`
	Sound     string       `yaml:"sound,omitempty"`
	Points    [][]float64  `yaml:"points" validate:"dive,len=2"`
	Route     models.Route `yaml:"-"`
}

// Load reads a route file. Files ending in .geojson or .json are parsed as GeoJSON;
// everything else as YAML.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		route, err := geojson.ParseRoute(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return &File{Name: name, Route: route}, nil
	default:
		f, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return f, nil
	}
}

// Parse decodes and validates a YAML route document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := validator.New().Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid route file: %w", err)
	}

	f.Route = make(models.Route, len(f.Points))
	for i, p := range f.Points {
		f.Route[i] = models.Pt(p[0], p[1])
	}
	if err := f.Route.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Marshal renders route as a YAML route document.
func Marshal(name string, route models.Route, threshold float64, sound string) ([]byte, error) {
	f := File{Name: name, Threshold: threshold, Sound: sound, Points: make([][]float64, len(route))}
	for i, p := range route {
		f.Points[i] = []float64{p.Longitude, p.Latitude}
	}
	return yaml.Marshal(&f)
}
