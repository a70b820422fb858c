// Package geo provides the coordinate primitives shared by the zone
// tracker, heartbeat enforcer, and kill verifier: haversine distance and
// conversion between the contract's fixed-point integer coordinates
// (degrees × 1,000,000) and floating-point degrees.
package geo

import "math"

// earthRadiusMeters is the mean radius used for haversine distance.
const earthRadiusMeters = 6371000.0

// FixedPointScale is the contract's coordinate scale: integer degrees are
// stored as degrees × 1,000,000.
const FixedPointScale = 1_000_000

// Point is a WGS-84 coordinate in floating-point degrees.
type Point struct {
	Lat float64
	Lng float64
}

// FromFixed converts contract-integer coordinates to a Point.
func FromFixed(latFixed, lngFixed int64) Point {
	return Point{
		Lat: float64(latFixed) / FixedPointScale,
		Lng: float64(lngFixed) / FixedPointScale,
	}
}

// ToFixed converts a Point to contract-integer coordinates.
func (p Point) ToFixed() (latFixed, lngFixed int64) {
	return int64(p.Lat * FixedPointScale), int64(p.Lng * FixedPointScale)
}

// HaversineMeters returns the great-circle distance between a and b in
// meters.
func HaversineMeters(a, b Point) float64 {
	const degToRad = math.Pi / 180

	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad
	dLat := (b.Lat - a.Lat) * degToRad
	dLng := (b.Lng - a.Lng) * degToRad

	sinDLat := math.Sin(dLat / 2)
	sinDLng := math.Sin(dLng / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLng*sinDLng
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// WithinRadius reports whether b lies within radiusMeters of center,
// inclusive of the boundary.
func WithinRadius(center, b Point, radiusMeters float64) bool {
	return HaversineMeters(center, b) <= radiusMeters
}
