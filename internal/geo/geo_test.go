package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineZeroDistance(t *testing.T) {
	p := Point{Lat: 10, Lng: 20}
	assert.InDelta(t, 0, HaversineMeters(p, p), 1e-6)
}

func TestHaversineKnownDistance(t *testing.T) {
	// ~0.001 degrees of latitude is ~111 meters.
	center := Point{Lat: 0, Lng: 0}
	p := Point{Lat: 0.001, Lng: 0}

	d := HaversineMeters(center, p)
	assert.InDelta(t, 111.2, d, 1.0)
}

func TestFixedPointRoundTrip(t *testing.T) {
	latFixed, lngFixed := int64(37_774_900), int64(-122_419_400)
	p := FromFixed(latFixed, lngFixed)

	gotLat, gotLng := p.ToFixed()
	require.Equal(t, latFixed, gotLat)
	require.Equal(t, lngFixed, gotLng)
}

func TestWithinRadiusBoundary(t *testing.T) {
	center := Point{Lat: 0, Lng: 0}
	p := Point{Lat: 0.001, Lng: 0} // ~111.2m away

	assert.True(t, WithinRadius(center, p, 112))
	assert.False(t, WithinRadius(center, p, 100))
}
