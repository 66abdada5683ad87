package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolygon(t *testing.T) {
	text := "LAT...LON 4150 8152 4155 8130 4139 8128 4136 8150\nTIME...MOT...LOC 1930Z 245DEG 30KT 4145 8140"

	ring := ParsePolygon(text)
	require.Len(t, ring, 5, "ring is closed with a duplicated first vertex")

	assert.Equal(t, LatLon{Lat: 41.50, Lon: -81.52}, ring[0])
	assert.Equal(t, LatLon{Lat: 41.36, Lon: -81.50}, ring[3])
	assert.Equal(t, ring[0], ring[4])
}

func TestParsePolygonFiveDigitLongitude(t *testing.T) {
	ring := ParsePolygon("LAT...LON 3012 10315 3020 10290 3005 10280\n\nremainder")
	require.Len(t, ring, 4)

	assert.Equal(t, LatLon{Lat: 30.12, Lon: -103.15}, ring[0])
}

func TestParsePolygonRejectsOutOfBounds(t *testing.T) {
	// Two implausible vertices leave only two valid ones, so no polygon.
	ring := ParsePolygon("LAT...LON 4150 8152 4155 8130 9999 8128 4139 20\n\n")
	assert.Nil(t, ring)
}

func TestParsePolygonAbsent(t *testing.T) {
	assert.Nil(t, ParsePolygon("no polygon in this product"))
}

func TestPolygonCentroid(t *testing.T) {
	ring := []LatLon{
		{Lat: 41.00, Lon: -81.00},
		{Lat: 42.00, Lon: -81.00},
		{Lat: 42.00, Lon: -82.00},
		{Lat: 41.00, Lon: -82.00},
		{Lat: 41.00, Lon: -81.00},
	}

	c := PolygonCentroid(ring)
	require.NotNil(t, c)
	assert.InDelta(t, 41.5, c.Lat, 0.001)
	assert.InDelta(t, -81.5, c.Lon, 0.001)

	assert.Nil(t, PolygonCentroid(nil))
}
