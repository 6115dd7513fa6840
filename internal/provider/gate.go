// ABOUTME: Distance filter shared by providers
// ABOUTME: Suppresses fixes that moved less than the hinted minimum distance

package provider

import (
	"github.com/harper/offroute/internal/geo"
	"github.com/harper/offroute/internal/models"
	"github.com/harper/offroute/internal/session"
)

type distanceGate struct {
	min  float64
	last *models.Point
}

func newDistanceGate(hints session.Hints) *distanceGate {
	minDist := hints.DistanceFilter
	if minDist < 0 {
		minDist = 0
	}
	return &distanceGate{min: minDist}
}

// Allow reports whether p is far enough from the last allowed fix, and records it if so.
func (g *distanceGate) Allow(p models.Point) bool {
	if g.min > 0 && g.last != nil && geo.GreatCircleDistance(*g.last, p) < g.min {
		return false
	}
	g.last = &p
	return true
}
