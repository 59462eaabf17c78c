package domain

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/samirrijal/venuefinder/internal/pkg/geospatial"
)

// BoundingBox is an axis-aligned latitude/longitude rectangle (WGS 84).
// It describes both a source's coverage area and a query's region of interest.
type BoundingBox struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
}

// Unrestricted returns the box with all-infinite bounds.
func Unrestricted() BoundingBox {
	return BoundingBox{
		LatMin: math.Inf(-1),
		LatMax: math.Inf(1),
		LonMin: math.Inf(-1),
		LonMax: math.Inf(1),
	}
}

// BoxFromBounds builds a region from optional bounds. Each missing bound keeps
// its unrestricted default, so a caller may constrain only one side.
func BoxFromBounds(latMin, latMax, lonMin, lonMax *float64) BoundingBox {
	b := Unrestricted()
	if latMin != nil {
		b.LatMin = *latMin
	}
	if latMax != nil {
		b.LatMax = *latMax
	}
	if lonMin != nil {
		b.LonMin = *lonMin
	}
	if lonMax != nil {
		b.LonMax = *lonMax
	}
	return b.Normalize()
}

// Normalize swaps inverted bounds so that LatMin <= LatMax and LonMin <= LonMax.
func (b BoundingBox) Normalize() BoundingBox {
	if b.LatMin > b.LatMax {
		b.LatMin, b.LatMax = b.LatMax, b.LatMin
	}
	if b.LonMin > b.LonMax {
		b.LonMin, b.LonMax = b.LonMax, b.LonMin
	}
	return b
}

// IsUnrestricted reports whether every bound is infinite.
func (b BoundingBox) IsUnrestricted() bool {
	return math.IsInf(b.LatMin, -1) && math.IsInf(b.LatMax, 1) &&
		math.IsInf(b.LonMin, -1) && math.IsInf(b.LonMax, 1)
}

// WithDefaults fills each unbounded side of b from base. A side is unbounded
// when it holds the infinity BoxFromBounds leaves for a missing bound.
func (b BoundingBox) WithDefaults(base BoundingBox) BoundingBox {
	if math.IsInf(b.LatMin, -1) {
		b.LatMin = base.LatMin
	}
	if math.IsInf(b.LatMax, 1) {
		b.LatMax = base.LatMax
	}
	if math.IsInf(b.LonMin, -1) {
		b.LonMin = base.LonMin
	}
	if math.IsInf(b.LonMax, 1) {
		b.LonMax = base.LonMax
	}
	return b
}

// IsEmpty reports whether no point can lie inside b.
func (b BoundingBox) IsEmpty() bool {
	return !(b.LatMin <= b.LatMax) || !(b.LonMin <= b.LonMax)
}

// Bound converts the box to an orb.Bound (x = longitude, y = latitude).
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.LonMin, b.LatMin},
		Max: orb.Point{b.LonMax, b.LatMax},
	}
}

// Overlaps reports whether b and other intersect, edges included.
func (b BoundingBox) Overlaps(other BoundingBox) bool {
	return geospatial.RegionsOverlap(b.Bound(), other.Bound())
}

// Contains reports whether the point lies inside b, edges included.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return geospatial.PointInRegion(lat, lon, b.Bound())
}
