package domain

import (
	"regexp"
	"strconv"
)

var (
	// polygonPattern captures the digit block after a LAT...LON tag, up to
	// the motion tag or the end of the segment.
	polygonPattern = regexp.MustCompile(`LAT\.\.\.LON\s+([\d\s]+?)(?:TIME\.\.\.MOT|\n\n|\$\$|&&|$)`)

	polygonValuePattern = regexp.MustCompile(`\d{4,5}`)
)

// ParsePolygon extracts the warning polygon from product text. Values are
// hundredths of a degree with longitude given as positive west, so the pair
// 4189 8152 decodes to (41.89, -81.52).
// Vertices outside lat 20..60 / lon -130..-60 are discarded; fewer than
// three surviving vertices means no polygon. The returned ring is closed.
func ParsePolygon(text string) []LatLon {
	m := polygonPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	values := polygonValuePattern.FindAllString(m[1], -1)
	var ring []LatLon
	for i := 0; i+1 < len(values); i += 2 {
		lat := parseHundredths(values[i])
		lon := -parseHundredths(values[i+1])
		if lat < 20 || lat > 60 || lon < -130 || lon > -60 {
			continue
		}
		ring = append(ring, LatLon{Lat: lat, Lon: lon})
	}
	if len(ring) < 3 {
		return nil
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

func parseHundredths(s string) float64 {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return float64(n) / 100
}

// PolygonCentroid returns the vertex mean of a closed ring, ignoring the
// duplicated closing vertex. Nil input yields nil.
func PolygonCentroid(ring []LatLon) *LatLon {
	if len(ring) == 0 {
		return nil
	}
	open := ring
	if len(open) > 1 && open[0] == open[len(open)-1] {
		open = open[:len(open)-1]
	}
	var lat, lon float64
	for _, p := range open {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(open))
	return &LatLon{Lat: lat / n, Lon: lon / n}
}
