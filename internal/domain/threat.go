package domain

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Threat extraction runs in two passes. A cheap keyword scan first tags each
// line with the hazard classes it may describe, then the numeric patterns run
// only against the lines tagged for their class. This keeps "UP TO ONE INCH
// OF SNOW" from ever reaching the hail patterns.

type threatClass int

const (
	classTornado threatClass = iota
	classWind
	classHail
	classSnow
	classIce
	classFlood
	classMotion
	numThreatClasses
)

var classKeywords = [numThreatClasses][]string{
	classTornado: {"TORNADO"},
	classWind:    {"WIND", "GUST"},
	classHail:    {"HAIL", "SIZE"},
	classSnow:    {"SNOW", "ACCUMULATION"},
	classIce:     {"ICE", "ICING", "FREEZING RAIN"},
	classFlood:   {"FLASH FLOOD", "FLOODING"},
	classMotion:  {"TIME...MOT...LOC", "MOVING"},
}

// tagLines groups product lines by the hazard classes their keywords suggest.
func tagLines(text string) [numThreatClasses]string {
	var grouped [numThreatClasses][]string
	for _, line := range strings.Split(text, "\n") {
		upper := strings.ToUpper(line)
		for class, keywords := range classKeywords {
			for _, kw := range keywords {
				if strings.Contains(upper, kw) {
					grouped[class] = append(grouped[class], upper)
					break
				}
			}
		}
	}
	var out [numThreatClasses]string
	for class, lines := range grouped {
		out[class] = strings.Join(lines, "\n")
	}
	return out
}

var (
	tornadoDetectionPattern = regexp.MustCompile(`TORNADO\.\.\.(RADAR\s+INDICATED|OBSERVED|POSSIBLE|CONFIRMED)`)

	// damageThreatPatterns match the IBW impact tags, e.g.
	// TORNADO DAMAGE THREAT...CONSIDERABLE.
	tornadoDamagePattern = regexp.MustCompile(`TORNADO\s+DAMAGE\s+THREAT\.\.\.(CONSIDERABLE|DESTRUCTIVE|CATASTROPHIC)`)
	windDamagePattern    = regexp.MustCompile(`WIND\s+DAMAGE\s+THREAT\.\.\.(CONSIDERABLE|DESTRUCTIVE|CATASTROPHIC)`)
	hailDamagePattern    = regexp.MustCompile(`HAIL\s+DAMAGE\s+THREAT\.\.\.(CONSIDERABLE|DESTRUCTIVE|CATASTROPHIC)`)
	floodDamagePattern   = regexp.MustCompile(`FLASH\s+FLOOD\s+DAMAGE\s+THREAT\.\.\.(CONSIDERABLE|DESTRUCTIVE|CATASTROPHIC)`)

	floodDetectionPattern = regexp.MustCompile(`FLASH\s+FLOOD\.\.\.(RADAR\s+INDICATED|RADAR AND GAUGE INDICATED|OBSERVED)`)

	// windGustPatterns cover the tag form and the several prose forms gusts
	// appear in. The unit is taken from the matched text itself.
	windGustPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:MAX\s+)?WIND\s+GUSTS?\.\.\.(\d{2,3})\s*(MPH|KT)`),
		regexp.MustCompile(`HAZARD\.\.\.(\d{2,3})\s*(MPH|KT)\s+WIND\s+GUSTS`),
		regexp.MustCompile(`WIND\s+GUSTS?\s+(?:UP\s+TO|OF|TO)\s+(\d{2,3})\s*(MPH|KT)`),
		regexp.MustCompile(`GUSTS?\s+(?:UP\s+TO|OF|TO|AS\s+HIGH\s+AS)\s+(\d{2,3})\s*(MPH|KT)`),
		regexp.MustCompile(`WIND\.\.\.(\d{2,3})\s*(MPH|KT)`),
	}

	sustainedWindPattern = regexp.MustCompile(`(?:[NSEW]{1,3}\s+)?WINDS?\s+(?:OF\s+)?(\d{2,3})\s+TO\s+(\d{2,3})\s*(MPH|KT)`)

	// Hail comes either tagged (HAIL...1.75IN) or in prose. Named sizes use
	// the conventional object table.
	hailTagPattern   = regexp.MustCompile(`(?:HAIL|SIZE)\.\.\.(\d+\.?\d*)\s*IN`)
	hailProsePattern = regexp.MustCompile(`(\d+\.?\d*)\s*INCH\s+(?:DIAMETER\s+)?HAIL`)
	hailNamedPattern = regexp.MustCompile(`(PEA|MARBLE|DIME|PENNY|NICKEL|QUARTER|HALF\s+DOLLAR|PING\s+PONG\s+BALL|GOLF\s+BALL|HEN\s+EGG|TENNIS\s+BALL|BASEBALL|APPLE|SOFTBALL|GRAPEFRUIT)[\s-]+SIZED?(?:\s+HAIL)?`)

	snowPatterns = []*regexp.Regexp{
		regexp.MustCompile(`SNOW\s+ACCUMULATIONS?\s+OF\s+(\d+\.?\d*)\s+TO\s+(\d+\.?\d*)\s+INCHES`),
		regexp.MustCompile(`(\d+\.?\d*)\s+TO\s+(\d+\.?\d*)\s+INCHES\s+OF\s+SNOW`),
		regexp.MustCompile(`SNOW\.\.\.(\d+\.?\d*)(?:\s+TO\s+(\d+\.?\d*))?\s*IN`),
		regexp.MustCompile(`SNOW\s+ACCUMULATIONS?\s+OF\s+UP\s+TO\s+(\d+\.?\d*)\s+INCH(?:ES)?`),
		// Single amount, optionally with an adjective between OF and SNOW,
		// e.g. "UP TO 1 INCH OF QUICK SNOW". Range forms above win first.
		regexp.MustCompile(`(?:UP\s+TO\s+)?(\d+\.?\d*)\s+INCH(?:ES)?\s+OF\s+(?:[A-Z]+\s+)?SNOW`),
	}

	icePatterns = []*regexp.Regexp{
		regexp.MustCompile(`ICE\s+ACCUMULATIONS?\s+OF\s+(?:(\d+\.?\d*)\s+TO\s+)?(\d+\.?\d*)\s+(?:OF\s+AN\s+)?INCH`),
		regexp.MustCompile(`ICE\.\.\.(\d+\.?\d*)\s*IN`),
	}

	motionTagPattern   = regexp.MustCompile(`TIME\.\.\.MOT\.\.\.LOC\s+\d{4}Z\s+(\d{3})DEG\s+(\d+)KT`)
	motionProsePattern = regexp.MustCompile(`MOVING\s+(?:TO\s+THE\s+)?([NSEW]{1,3})\s+AT\s+(\d+)\s*(MPH|KT)`)
)

var namedHailSizes = map[string]float64{
	"PEA":            0.25,
	"MARBLE":         0.50,
	"DIME":           0.50,
	"PENNY":          0.75,
	"NICKEL":         0.88,
	"QUARTER":        1.00,
	"HALF DOLLAR":    1.25,
	"PING PONG BALL": 1.50,
	"GOLF BALL":      1.75,
	"HEN EGG":        2.00,
	"TENNIS BALL":    2.50,
	"BASEBALL":       2.75,
	"APPLE":          3.00,
	"SOFTBALL":       4.00,
	"GRAPEFRUIT":     4.50,
}

// cardinalFromDegrees maps a movement cardinal (the direction the storm is
// heading toward) to the meteorological from-direction in degrees.
var cardinalFromDegrees = map[string]int{
	"N": 180, "NNE": 203, "NE": 225, "ENE": 248,
	"E": 270, "ESE": 293, "SE": 315, "SSE": 338,
	"S": 0, "SSW": 23, "SW": 45, "WSW": 68,
	"W": 90, "WNW": 113, "NW": 135, "NNW": 158,
}

var compassPoints = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// DegreesToCardinal snaps a bearing to the nearest 16-point compass name.
func DegreesToCardinal(deg int) string {
	idx := int(math.Round(float64(deg)/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return compassPoints[idx]
}

func knotsFromMPH(mph int) int { return int(math.Round(float64(mph) * 0.868976)) }
func mphFromKnots(kt int) int  { return int(math.Round(float64(kt) * 1.15078)) }

// ExtractThreat pulls all hazard fields from product text.
func ExtractThreat(text string) Threat {
	tagged := tagLines(text)
	var t Threat

	if m := tornadoDetectionPattern.FindStringSubmatch(tagged[classTornado]); m != nil {
		t.TornadoDetection = strings.Join(strings.Fields(m[1]), " ")
	}
	if m := tornadoDamagePattern.FindStringSubmatch(tagged[classTornado]); m != nil {
		t.TornadoDamageThreat = m[1]
	}
	if m := windDamagePattern.FindStringSubmatch(tagged[classWind]); m != nil {
		t.WindDamageThreat = m[1]
	}
	if m := hailDamagePattern.FindStringSubmatch(tagged[classHail]); m != nil {
		t.HailDamageThreat = m[1]
	}
	if m := floodDamagePattern.FindStringSubmatch(tagged[classFlood]); m != nil {
		t.FlashFloodDamageThreat = m[1]
	}
	if m := floodDetectionPattern.FindStringSubmatch(tagged[classFlood]); m != nil {
		t.FlashFloodDetection = strings.Join(strings.Fields(m[1]), " ")
	}

	extractWind(tagged[classWind], &t)
	extractHail(tagged[classHail], &t)
	extractSnow(tagged[classSnow], &t)
	extractIce(tagged[classIce], &t)
	t.StormMotion = extractMotion(tagged[classMotion])
	return t
}

func extractWind(text string, t *Threat) {
	for _, p := range windGustPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		val, _ := strconv.Atoi(m[1])
		mph := val
		if m[2] == "KT" {
			mph = mphFromKnots(val)
		}
		if mph < 20 || mph > 300 {
			continue
		}
		t.MaxWindGustMPH = mph
		t.MaxWindGustKT = knotsFromMPH(mph)
		break
	}

	if m := sustainedWindPattern.FindStringSubmatch(text); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		if m[3] == "KT" {
			lo, hi = mphFromKnots(lo), mphFromKnots(hi)
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		if lo >= 20 && hi <= 300 {
			t.SustainedWindMinMPH = lo
			t.SustainedWindMaxMPH = hi
		}
	}
}

func extractHail(text string, t *Threat) {
	for _, p := range []*regexp.Regexp{hailTagPattern, hailProsePattern} {
		if m := p.FindStringSubmatch(text); m != nil {
			size, err := strconv.ParseFloat(m[1], 64)
			if err == nil && size >= 0.25 && size <= 6.0 {
				t.MaxHailSizeInches = size
				return
			}
		}
	}
	if m := hailNamedPattern.FindStringSubmatch(text); m != nil {
		name := strings.Join(strings.Fields(m[1]), " ")
		if size, ok := namedHailSizes[name]; ok {
			t.MaxHailSizeInches = size
		}
	}
}

func extractSnow(text string, t *Threat) {
	for _, p := range snowPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		lo, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		hi := lo
		if len(m) > 2 && m[2] != "" {
			if v, err := strconv.ParseFloat(m[2], 64); err == nil {
				hi = v
			}
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		if lo < 0.1 || hi > 60 {
			continue
		}
		t.SnowAmountMinInches = lo
		t.SnowAmountMaxInches = hi
		return
	}
}

func extractIce(text string, t *Threat) {
	for _, p := range icePatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		max := 0.0
		for _, g := range m[1:] {
			if g == "" {
				continue
			}
			if v, err := strconv.ParseFloat(g, 64); err == nil && v > max {
				max = v
			}
		}
		if max >= 0.01 && max <= 3.0 {
			t.IceAccumulationInches = max
			return
		}
	}
}

func extractMotion(text string) *StormMotion {
	if m := motionTagPattern.FindStringSubmatch(text); m != nil {
		deg, _ := strconv.Atoi(m[1])
		kt, _ := strconv.Atoi(m[2])
		return &StormMotion{
			DirectionDegrees: deg,
			DirectionFrom:    DegreesToCardinal(deg),
			SpeedKT:          kt,
			SpeedMPH:         mphFromKnots(kt),
		}
	}
	if m := motionProsePattern.FindStringSubmatch(text); m != nil {
		deg, ok := cardinalFromDegrees[m[1]]
		if !ok {
			return nil
		}
		speed, _ := strconv.Atoi(m[2])
		mph := speed
		if m[3] == "KT" {
			mph = mphFromKnots(speed)
		}
		return &StormMotion{
			DirectionDegrees: deg,
			DirectionFrom:    DegreesToCardinal(deg),
			SpeedMPH:         mph,
			SpeedKT:          knotsFromMPH(mph),
		}
	}
	return nil
}
