package domain

// Numeric display priorities. Lower sorts first. These mirror the ranking
// used by NWS-facing dashboards: life-threatening convective products at the
// top, long-fuse winter products in the middle, everything else at the bottom.
const (
	PriorityTornadoWarning           = 1
	PrioritySevereThunderstormWarning = 2
	PriorityTornadoWatch             = 3
	PriorityFlashFloodWarning        = 4
	PrioritySevereThunderstormWatch  = 5
	PriorityWinterStormWarning       = 6
	PriorityBlizzardWarning          = 7
	PriorityIceStormWarning          = 8
	PriorityFlashFloodWatch          = 9
	PriorityWinterStormWatch         = 10
	PriorityWindChillWarning         = 11
	PrioritySpecialWeatherStatement  = 12
	PriorityWinterWeatherAdvisory    = 13
	PriorityOther                    = 99
)

// phenomenonNames maps the two-letter VTEC phenomenon code to its event name.
// SPS is a pseudo-code used for Special Weather Statements, which carry no VTEC.
var phenomenonNames = map[string]string{
	"TO":  "Tornado",
	"SV":  "Severe Thunderstorm",
	"FF":  "Flash Flood",
	"FL":  "Flood",
	"FA":  "Areal Flood",
	"MA":  "Marine",
	"SS":  "Storm Surge",
	"HU":  "Hurricane",
	"TR":  "Tropical Storm",
	"TY":  "Typhoon",
	"EW":  "Extreme Wind",
	"WS":  "Winter Storm",
	"BZ":  "Blizzard",
	"IS":  "Ice Storm",
	"LE":  "Lake Effect Snow",
	"WW":  "Winter Weather",
	"WC":  "Wind Chill",
	"EC":  "Extreme Cold",
	"HZ":  "Hard Freeze",
	"FZ":  "Freeze",
	"FR":  "Frost",
	"HW":  "High Wind",
	"WI":  "Wind",
	"LW":  "Lake Wind",
	"DS":  "Dust Storm",
	"DU":  "Blowing Dust",
	"EH":  "Excessive Heat",
	"HT":  "Heat",
	"FW":  "Fire Weather",
	"FG":  "Dense Fog",
	"SM":  "Dense Smoke",
	"ZF":  "Freezing Fog",
	"AF":  "Ashfall",
	"AS":  "Air Stagnation",
	"AV":  "Avalanche",
	"CF":  "Coastal Flood",
	"LS":  "Lakeshore Flood",
	"SU":  "High Surf",
	"RP":  "Rip Current",
	"BH":  "Beach Hazard",
	"GL":  "Gale",
	"SR":  "Storm",
	"HF":  "Hurricane Force Wind",
	"SC":  "Small Craft",
	"SW":  "Small Craft Hazardous Seas",
	"RB":  "Small Craft Rough Bar",
	"SI":  "Small Craft Winds",
	"SE":  "Hazardous Seas",
	"UP":  "Freezing Spray",
	"TS":  "Tsunami",
	"SQ":  "Snow Squall",
	"SPS": "Special Weather Statement",
}

// significanceNames maps the VTEC significance letter to its suffix.
var significanceNames = map[Significance]string{
	SignificanceWarning:   "Warning",
	SignificanceWatch:     "Watch",
	SignificanceAdvisory:  "Advisory",
	SignificanceStatement: "Statement",
	SignificanceOutlook:   "Outlook",
	SignificanceSynopsis:  "Synopsis",
	SignificanceForecast:  "Forecast",
}

// warningPriorities and watchPriorities rank phenomena within their
// significance class; anything unlisted falls through to PriorityOther.
var warningPriorities = map[string]int{
	"TO": PriorityTornadoWarning,
	"SV": PrioritySevereThunderstormWarning,
	"FF": PriorityFlashFloodWarning,
	"WS": PriorityWinterStormWarning,
	"BZ": PriorityBlizzardWarning,
	"IS": PriorityIceStormWarning,
	"WC": PriorityWindChillWarning,
}

var watchPriorities = map[string]int{
	"TO": PriorityTornadoWatch,
	"SV": PrioritySevereThunderstormWatch,
	"FF": PriorityFlashFloodWatch,
	"WS": PriorityWinterStormWatch,
}

// PriorityFor ranks a phenomenon/significance pair for display ordering.
func PriorityFor(phenomenon string, significance Significance) int {
	switch significance {
	case SignificanceWarning:
		if p, ok := warningPriorities[phenomenon]; ok {
			return p
		}
	case SignificanceWatch:
		if p, ok := watchPriorities[phenomenon]; ok {
			return p
		}
	case SignificanceAdvisory:
		if phenomenon == "WW" {
			return PriorityWinterWeatherAdvisory
		}
	}
	if phenomenon == "SPS" {
		return PrioritySpecialWeatherStatement
	}
	return PriorityOther
}

// EventNameFor builds the human-readable event name, e.g. "Tornado Warning".
// The SPS pseudo-phenomenon already reads as a full name, so no suffix is
// appended for it.
func EventNameFor(phenomenon string, significance Significance) string {
	base, ok := phenomenonNames[phenomenon]
	if !ok {
		base = phenomenon
	}
	if phenomenon == "SPS" {
		return base
	}
	suffix, ok := significanceNames[significance]
	if !ok {
		return base
	}
	return base + " " + suffix
}
