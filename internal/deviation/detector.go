// ABOUTME: Route deviation detector with edge-triggered alerting
// ABOUTME: Tracks off-route status so an alert fires once per departure

package deviation

import (
	"math"

	"github.com/harper/offroute/internal/geo"
	"github.com/harper/offroute/internal/models"
)

// Decision is the outcome of evaluating one fix against the route.
type Decision int

const (
	// None means no alert should be raised.
	None Decision = iota
	// Fire means the device just left the route corridor.
	Fire
)

func (d Decision) String() string {
	if d == Fire {
		return "fire"
	}
	return "none"
}

// Detector owns a route, a threshold, and the hysteresis state between fixes.
// It is not safe for concurrent use; the session serializes access.
type Detector struct {
	route      models.Route
	threshold  float64
	isOffRoute bool
}

// New returns a detector with no route installed.
func New() *Detector {
	return &Detector{threshold: models.DefaultThreshold, isOffRoute: true}
}

// SetRoute replaces the route and threshold and resets the off-route state to true,
// so the next evaluation cannot fire.
func (d *Detector) SetRoute(route models.Route, threshold float64) {
	if threshold <= 0 || math.IsNaN(threshold) {
		threshold = models.DefaultThreshold
	}
	d.route = route.Clone()
	d.threshold = threshold
	d.isOffRoute = true
}

// Installed reports whether a route with at least one point is set. An empty route is
// accepted by SetRoute but never evaluated.
func (d *Detector) Installed() bool {
	return len(d.route) > 0
}

// Route returns a copy of the installed route.
func (d *Detector) Route() models.Route {
	return d.route.Clone()
}

// Threshold returns the deviation threshold in meters.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// IsOffRoute returns the status recorded by the last evaluation.
func (d *Detector) IsOffRoute() bool {
	return d.isOffRoute
}

// SegmentCount returns the number of route segments.
func (d *Detector) SegmentCount() int {
	return d.route.SegmentCount()
}

// DistanceToRoute returns the minimum distance in meters from p to the route.
func (d *Detector) DistanceToRoute(p models.Point) float64 {
	return DistanceToRoute(d.route, p)
}

// DistanceToRoute returns the minimum distance in meters from p to route.
// An empty route is infinitely far away; a single waypoint is treated as a point.
func DistanceToRoute(route models.Route, p models.Point) float64 {
	switch len(route) {
	case 0:
		return math.Inf(1)
	case 1:
		return geo.GreatCircleDistance(p, route[0])
	}

	best := math.Inf(1)
	for i := 0; i < len(route)-1; i++ {
		if dist := geo.DistancePointToSegment(p, route[i], route[i+1]); dist < best {
			best = dist
		}
	}
	return best
}

// Evaluate updates the off-route state for p and reports whether an alert should fire.
func (d *Detector) Evaluate(p models.Point) Decision {
	decision, _ := d.evaluate(p)
	return decision
}

// Report evaluates p like Evaluate and also returns the distance details.
func (d *Detector) Report(p models.Point) (Decision, models.DeviationReport) {
	decision, dist := d.evaluate(p)
	return decision, models.DeviationReport{
		Distance:  dist,
		Threshold: d.threshold,
		OffRoute:  d.isOffRoute,
		Alerted:   decision == Fire,
	}
}

func (d *Detector) evaluate(p models.Point) (Decision, float64) {
	dist := d.DistanceToRoute(p)
	offRoute := dist > d.threshold

	decision := None
	if offRoute && !d.isOffRoute {
		decision = Fire
	}
	d.isOffRoute = offRoute

	return decision, dist
}
