// Package geospatial holds the rectangular-region predicates used to select
// sources and filter entrance records. Bounds follow orb's convention:
// x is longitude, y is latitude.
package geospatial

import (
	"math"

	"github.com/paulmach/orb"
)

// RegionsOverlap reports whether two rectangles intersect, edge-touching included.
// A bound holding NaN never overlaps anything.
func RegionsOverlap(a, b orb.Bound) bool {
	if hasNaN(a) || hasNaN(b) {
		return false
	}
	return a.Intersects(b)
}

// PointInRegion reports whether (lat, lon) lies inside box, bounds inclusive.
// NaN coordinates or bounds are treated as outside.
func PointInRegion(lat, lon float64, box orb.Bound) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || hasNaN(box) {
		return false
	}
	return box.Contains(orb.Point{lon, lat})
}

// ValidCoordinate reports whether lat/lon are finite WGS 84 degrees.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ClampToWorld intersects box with the valid coordinate range.
func ClampToWorld(box orb.Bound) orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Max(box.Min[0], -180), math.Max(box.Min[1], -90)},
		Max: orb.Point{math.Min(box.Max[0], 180), math.Min(box.Max[1], 90)},
	}
}

// Round6 rounds a coordinate to 6 decimal places (~0.11 m).
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func hasNaN(b orb.Bound) bool {
	return math.IsNaN(b.Min[0]) || math.IsNaN(b.Min[1]) ||
		math.IsNaN(b.Max[0]) || math.IsNaN(b.Max[1])
}
