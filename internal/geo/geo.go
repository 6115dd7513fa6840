// ABOUTME: Great-circle geometry for route deviation
// ABOUTME: Haversine distance and point-to-segment distance on the sphere

package geo

import (
	"math"

	"github.com/harper/offroute/internal/models"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371000.0

// epsilon keeps the segment formula branch-free when a side length is zero.
const epsilon = 2.220446049250313e-16

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// GreatCircleDistance returns the haversine distance between two points in meters.
func GreatCircleDistance(p1, p2 models.Point) float64 {
	dLat := toRadians(p2.Latitude - p1.Latitude)
	dLon := toRadians(p2.Longitude - p1.Longitude)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(p1.Latitude))*math.Cos(toRadians(p2.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// DistancePointToSegment returns the distance in meters from p to the segment [a, b].
//
// Side lengths are great-circle distances; the closest point is then classified on
// the planar triangle they form. The Law of Cosines decides whether the foot of the
// perpendicular falls outside the segment (an obtuse angle at either end), and Heron's
// formula gives the height otherwise. The approximation holds while the threshold is
// small compared to the Earth's radius.
func DistancePointToSegment(p, a, b models.Point) float64 {
	pa := GreatCircleDistance(p, a)
	pb := GreatCircleDistance(p, b)
	ab := GreatCircleDistance(a, b)

	if ab == 0 {
		return pa
	}

	cosA := (pa*pa + ab*ab - pb*pb) / (2*pa*ab + epsilon)
	if cosA < 0 {
		return pa
	}

	cosB := (pb*pb + ab*ab - pa*pa) / (2*pb*ab + epsilon)
	if cosB < 0 {
		return pb
	}

	s := (pa + pb + ab) / 2
	area := math.Sqrt(math.Max(0, s*(s-pa)*(s-pb)*(s-ab)))

	return 2 * area / (ab + epsilon)
}
