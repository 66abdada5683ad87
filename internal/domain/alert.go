package domain

import (
	"time"
)

// Status tracks an alert through its lifecycle in the active set.
type Status string

const (
	StatusActive    Status = "active"
	StatusUpdated   Status = "updated"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Significance is the one-letter VTEC severity class.
type Significance string

const (
	SignificanceWarning   Significance = "W"
	SignificanceWatch     Significance = "A"
	SignificanceAdvisory  Significance = "Y"
	SignificanceStatement Significance = "S"
	SignificanceOutlook   Significance = "O"
	SignificanceSynopsis  Significance = "N"
	SignificanceForecast  Significance = "F"
)

// Action is the three-letter VTEC action code.
type Action string

const (
	ActionNew       Action = "NEW" // new event
	ActionContinue  Action = "CON" // continuing, no change
	ActionExtend    Action = "EXT" // extended in time
	ActionExpandA   Action = "EXA" // expanded in area
	ActionExpandB   Action = "EXB" // extended and expanded
	ActionUpgrade   Action = "UPG" // upgraded, e.g. watch to warning
	ActionCancel    Action = "CAN"
	ActionExpire    Action = "EXP"
	ActionCorrect   Action = "COR"
	ActionRoutine   Action = "ROU"
)

// VTEC is the decoded Valid Time Event Code carried by most warning products.
type VTEC struct {
	ProductClass        string       `json:"product_class"` // O, T, E, or X
	Action              Action       `json:"action"`
	Office              string       `json:"office"` // 4-char WFO, e.g. KCLE
	Phenomenon          string       `json:"phenomenon"`
	Significance        Significance `json:"significance"`
	EventTrackingNumber int          `json:"event_tracking_number"`
	BeginTime           time.Time    `json:"begin_time,omitzero"`
	EndTime             time.Time    `json:"end_time,omitzero"`
	Raw                 string       `json:"raw_vtec"`
}

// IsCancellation reports whether this VTEC ends the referenced event.
func (v *VTEC) IsCancellation() bool {
	return v.Action == ActionCancel || v.Action == ActionExpire
}

// IsUpdate reports whether this VTEC modifies an existing event.
func (v *VTEC) IsUpdate() bool {
	switch v.Action {
	case ActionContinue, ActionExtend, ActionExpandA, ActionExpandB, ActionUpgrade, ActionCorrect:
		return true
	}
	return false
}

// EventKey identifies a single tracked event across its product updates.
// Watches share an SPC-assigned tracking number across offices, so the office
// is blanked for them to let products from different offices merge.
type EventKey struct {
	Office       string
	Phenomenon   string
	Significance Significance
	TrackingNum  int
}

// Key derives the tracked-event identity from a VTEC.
func (v *VTEC) Key() EventKey {
	k := EventKey{
		Office:       v.Office,
		Phenomenon:   v.Phenomenon,
		Significance: v.Significance,
		TrackingNum:  v.EventTrackingNumber,
	}
	if v.Significance == SignificanceWatch {
		k.Office = ""
	}
	return k
}

// StormMotion is the storm movement vector extracted from a product.
// Direction is the bearing the storm is moving toward, in degrees.
type StormMotion struct {
	DirectionDegrees int    `json:"direction_degrees"`
	DirectionFrom    string `json:"direction_from,omitempty"`
	SpeedMPH         int    `json:"speed_mph"`
	SpeedKT          int    `json:"speed_kts"`
}

// Threat holds the hazard fields extracted from a product's free-form text.
// Zero values mean the field was not present in the product.
type Threat struct {
	TornadoDetection    string `json:"tornado_detection,omitempty"` // RADAR INDICATED, OBSERVED, POSSIBLE, CONFIRMED
	TornadoDamageThreat string `json:"tornado_damage_threat,omitempty"`

	SustainedWindMinMPH int    `json:"sustained_wind_min_mph,omitempty"`
	SustainedWindMaxMPH int    `json:"sustained_wind_max_mph,omitempty"`
	MaxWindGustMPH      int    `json:"max_wind_gust_mph,omitempty"`
	MaxWindGustKT       int    `json:"max_wind_gust_kts,omitempty"`
	WindDamageThreat    string `json:"wind_damage_threat,omitempty"`

	MaxHailSizeInches float64 `json:"max_hail_size_inches,omitempty"`
	HailDamageThreat  string  `json:"hail_damage_threat,omitempty"`

	SnowAmountMinInches   float64 `json:"snow_amount_min_inches,omitempty"`
	SnowAmountMaxInches   float64 `json:"snow_amount_max_inches,omitempty"`
	IceAccumulationInches float64 `json:"ice_accumulation_inches,omitempty"`

	FlashFloodDetection    string `json:"flash_flood_detection,omitempty"`
	FlashFloodDamageThreat string `json:"flash_flood_damage_threat,omitempty"`

	StormMotion *StormMotion `json:"storm_motion,omitempty"`
}

// HasTornado reports whether any tornado signature was extracted.
func (t *Threat) HasTornado() bool { return t.TornadoDetection != "" }

// LatLon is a WGS-84 coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Alert is the normalized record produced by the parser and owned by the
// store after insertion.
type Alert struct {
	ProductID string `json:"product_id"`
	MessageID string `json:"message_id,omitempty"`
	Source    string `json:"source"` // "push" or "pull"

	VTEC *VTEC `json:"vtec,omitempty"`

	Phenomenon   string       `json:"phenomenon"`
	Significance Significance `json:"significance"`
	EventName    string       `json:"event_name"`
	Headline     string       `json:"headline,omitempty"`
	Description  string       `json:"description,omitempty"`
	Instruction  string       `json:"instruction,omitempty"`

	// KeySections holds the bulleted WHAT/WHERE/WHEN/IMPACTS sections from
	// long-fuse products, keyed by lowercased section name.
	KeySections map[string]string `json:"key_sections,omitempty"`

	IssuedTime     time.Time `json:"issued_time,omitzero"`
	EffectiveTime  time.Time `json:"effective_time,omitzero"`
	OnsetTime      time.Time `json:"onset_time,omitzero"`
	ExpirationTime time.Time `json:"expiration_time,omitzero"`

	AffectedAreas    []string `json:"affected_areas"`
	FIPSCodes        []string `json:"fips_codes,omitempty"`
	DisplayLocations string   `json:"display_locations,omitempty"`
	Polygon          []LatLon `json:"polygon,omitempty"`
	Centroid         *LatLon  `json:"centroid,omitempty"`

	SenderOffice string `json:"sender_office,omitempty"`
	SenderName   string `json:"sender_name,omitempty"`

	Threat Threat `json:"threat"`

	Status   Status `json:"status"`
	Priority int    `json:"priority"`

	ParsedAt    time.Time `json:"parsed_at,omitzero"`
	LastUpdated time.Time `json:"last_updated,omitzero"`
	UpdateCount int       `json:"update_count"`
}

// Key returns the tracked-event identity, or a zero key when the alert
// carries no VTEC.
func (a *Alert) Key() EventKey {
	if a.VTEC == nil {
		return EventKey{}
	}
	return a.VTEC.Key()
}

// IsExpired reports whether the alert's event window has passed.
// Alerts without an expiration never expire on their own.
func (a *Alert) IsExpired(now time.Time) bool {
	if a.ExpirationTime.IsZero() {
		return false
	}
	return !now.Before(a.ExpirationTime)
}

// IsWatch reports whether this alert is a watch.
func (a *Alert) IsWatch() bool { return a.Significance == SignificanceWatch }

// IsWarning reports whether this alert is a warning.
func (a *Alert) IsWarning() bool { return a.Significance == SignificanceWarning }

// MarkUpdated bumps the update accounting after the store merges new fields.
func (a *Alert) MarkUpdated(now time.Time) {
	a.LastUpdated = now
	a.UpdateCount++
}

// States returns the distinct two-letter state codes covered by the alert's
// geographic codes, in first-seen order.
func (a *Alert) States() []string {
	seen := make(map[string]bool, 2)
	var states []string
	for _, ugc := range a.AffectedAreas {
		if len(ugc) < 2 {
			continue
		}
		st := ugc[:2]
		if !seen[st] {
			seen[st] = true
			states = append(states, st)
		}
	}
	return states
}

// TouchesState reports whether any affected area lies in the given state.
func (a *Alert) TouchesState(state string) bool {
	for _, ugc := range a.AffectedAreas {
		if len(ugc) >= 2 && ugc[:2] == state {
			return true
		}
	}
	return false
}
