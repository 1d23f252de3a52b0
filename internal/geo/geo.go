// Package geo provides great-circle distance math and geofence checks.
package geo

import "math"

const earthRadiusMeters = 6371_000.0

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// DistanceMeters returns the great-circle distance between two points using
// the haversine formula with a fixed 6371 km Earth radius.
func DistanceMeters(a, b Point) float64 {
	latA := radians(a.Lat)
	latB := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// FenceResult reports the outcome of a geofence check. DistanceMeters is
// populated on rejection as well, so callers can report how far outside the
// fence the observed point was.
type FenceResult struct {
	Within         bool
	DistanceMeters float64
}

// WithinFence reports whether observed lies inside the circular fence around
// center. A non-positive radius never passes.
func WithinFence(observed, center Point, radiusMeters float64) FenceResult {
	d := DistanceMeters(observed, center)
	return FenceResult{
		Within:         radiusMeters > 0 && d <= radiusMeters,
		DistanceMeters: d,
	}
}
