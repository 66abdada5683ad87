package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// wmoHeaderPattern matches the abbreviated WMO heading line, e.g.
	// WUUS53 KCLE 241930.
	wmoHeaderPattern = regexp.MustCompile(`^([A-Z]{4}\d{2})\s+([A-Z]{4})\s+(\d{6})`)

	// issuedLinePattern matches the local issuance line NWS products carry,
	// e.g. "339 PM CDT MON AUG 8 2022".
	issuedLinePattern = regexp.MustCompile(`(?m)^(\d{3,4})\s+(AM|PM)\s+([A-Z]{3,4})\s+[A-Z]{3}\s+([A-Z]{3})\s+(\d{1,2})\s+(\d{4})\s*$`)

	headlinePattern = regexp.MustCompile(`(?m)^\.\.\.(.+?)\.\.\.\s*$`)

	hwoPILPattern = regexp.MustCompile(`HWO[A-Z]{2,4}`)

	// keySectionPattern opens a bulleted key section, e.g. "* WHAT...60 mph
	// wind gusts." The section runs until a blank line or the next bullet.
	keySectionPattern = regexp.MustCompile(`(?i)^\*\s*(WHAT|WHERE|WHEN|IMPACTS|ADDITIONAL DETAILS)\.\.\.\s*(.*)$`)

	spsExclusionPattern = regexp.MustCompile(`FIRE|SMOKE|\bFOG\b|HEAT|RIP CURRENT|BEACH HAZARD|MARINE|AIR QUALITY|DUST`)
)

// spsInclusionKeywords mark a Special Weather Statement as convective enough
// to relay.
var spsInclusionKeywords = []string{
	"THUNDERSTORM", "SEVERE", "WIND", "HAIL", "LIGHTNING",
	"GUSTY", "DAMAGING", "STRONG STORM",
}

// eventNamePhenomena recovers a phenomenon code from headline text for
// products that carry no VTEC.
var eventNamePhenomena = []struct {
	name string
	code string
	sig  Significance
}{
	{"TORNADO WARNING", "TO", SignificanceWarning},
	{"SEVERE THUNDERSTORM WARNING", "SV", SignificanceWarning},
	{"FLASH FLOOD WARNING", "FF", SignificanceWarning},
	{"TORNADO WATCH", "TO", SignificanceWatch},
	{"SEVERE THUNDERSTORM WATCH", "SV", SignificanceWatch},
	{"SEVERE WEATHER STATEMENT", "SV", SignificanceStatement},
	{"SPECIAL WEATHER STATEMENT", "SPS", SignificanceStatement},
}

// targetedPhenomena get a default one-hour lifetime when a product carries no
// usable expiration, so short-fuse events never linger indefinitely.
var targetedPhenomena = map[string]bool{
	"TO": true, "SV": true, "FF": true, "SS": true,
	"EW": true, "SQ": true, "MA": true, "SPS": true,
}

// DefaultLifetime is applied to targeted phenomena without an expiration.
const DefaultLifetime = 60 * time.Minute

// tzOffsets resolves the timezone abbreviations used on issuance lines.
var tzOffsets = map[string]int{
	"AST": -4, "ADT": -3,
	"EST": -5, "EDT": -4,
	"CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6,
	"PST": -8, "PDT": -7,
	"AKST": -9, "AKDT": -8,
	"HST": -10, "SST": -11,
	"CHST": 10, "GMT": 0, "UTC": 0,
}

var monthNumbers = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// ParseProduct turns raw product text into a normalized Alert. Informational
// products return ErrFilteredOut; structurally unusable products return one
// of the other parse sentinels. Source is "push" or "pull"; messageID is the
// transport-level id when the source has one.
func ParseProduct(text, source, messageID string) (*Alert, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyBody
	}
	upper := strings.ToUpper(trimmed)

	if err := filterInformational(upper); err != nil {
		return nil, err
	}

	now := clock.Now().UTC()
	alert := &Alert{
		MessageID: messageID,
		Source:    source,
		Status:    StatusActive,
		ParsedAt:  now,
	}

	if m := wmoHeaderPattern.FindStringSubmatch(upper); m != nil {
		alert.SenderOffice = m[2]
	}
	alert.IssuedTime = parseIssuedLine(upper)
	if m := headlinePattern.FindStringSubmatch(trimmed); m != nil {
		alert.Headline = strings.Join(strings.Fields(m[1]), " ")
	}

	vtec, err := ParseVTEC(upper)
	if err != nil {
		return nil, err
	}
	if vtec == nil {
		vtec = FallbackWatchVTEC(upper)
	}

	if vtec != nil {
		alert.VTEC = vtec
		alert.Phenomenon = vtec.Phenomenon
		alert.Significance = vtec.Significance
		alert.ProductID = vtec.ProductID()
		alert.ExpirationTime = vtec.EndTime
		alert.EffectiveTime = vtec.BeginTime
		if alert.SenderOffice == "" {
			alert.SenderOffice = vtec.Office
		}
		if vtec.IsCancellation() {
			alert.Status = StatusCancelled
		}
	} else {
		phen, sig, ok := matchEventName(upper)
		if !ok {
			return nil, fmt.Errorf("%w: no vtec and no recognizable event name", ErrMalformedHeader)
		}
		alert.Phenomenon = phen
		alert.Significance = sig
	}

	if alert.Phenomenon == "SPS" {
		if err := filterSPS(upper); err != nil {
			return nil, err
		}
	}

	reference := alert.IssuedTime
	if reference.IsZero() {
		reference = now
	}
	ugc, err := ParseUGC(upper, reference)
	if err != nil {
		return nil, err
	}
	alert.AffectedAreas = ugc.Codes
	alert.FIPSCodes = FIPSCodes(ugc.Codes)
	if alert.ExpirationTime.IsZero() {
		alert.ExpirationTime = ugc.PurgeTime
	}

	if alert.ProductID == "" {
		issued := alert.IssuedTime
		if issued.IsZero() {
			issued = now
		}
		alert.ProductID = AdhocProductID(alert.Phenomenon, issued, ugc.Codes)
	}

	if alert.ExpirationTime.IsZero() && targetedPhenomena[alert.Phenomenon] {
		alert.ExpirationTime = now.Add(DefaultLifetime)
	}

	alert.EventName = EventNameFor(alert.Phenomenon, alert.Significance)
	alert.Priority = PriorityFor(alert.Phenomenon, alert.Significance)
	alert.Polygon = ParsePolygon(upper)
	alert.Centroid = PolygonCentroid(alert.Polygon)
	alert.Threat = ExtractThreat(upper)
	alert.Description, alert.Instruction = splitNarrative(trimmed)
	alert.KeySections = parseKeySections(trimmed)
	alert.LastUpdated = now
	return alert, nil
}

// ParseProducts parses a full product, one alert per "$$"-delimited segment.
// Each segment shares the product header above the first UGC line, so a
// statement that cancels one warning and continues another yields both
// alerts. Returns the first error when no segment produces an alert.
func ParseProducts(text, source, messageID string) ([]*Alert, error) {
	var alerts []*Alert
	var firstErr error
	for _, seg := range splitSegments(text) {
		a, err := ParseProduct(seg, source, messageID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		alerts = append(alerts, a)
	}
	if len(alerts) == 0 {
		if firstErr == nil {
			firstErr = ErrEmptyBody
		}
		return nil, firstErr
	}
	return alerts, nil
}

// splitSegments cuts a product at its "$$" markers. The first chunk carries
// the header; later chunks get it prepended. Chunks without a UGC line, the
// forecaster-initials footer usually, are dropped.
func splitSegments(text string) []string {
	chunks := strings.Split(text, "$$")
	var nonEmpty []string
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	if len(nonEmpty) <= 1 {
		return []string{text}
	}
	header := segmentHeader(nonEmpty[0])
	segments := []string{nonEmpty[0]}
	for _, c := range nonEmpty[1:] {
		if !hasUGCLine(c) {
			continue
		}
		segments = append(segments, header+"\n"+c)
	}
	return segments
}

// segmentHeader is everything above the first chunk's UGC line: WMO heading,
// PIL, office block, and issuance line.
func segmentHeader(first string) string {
	lines := strings.Split(first, "\n")
	for i, line := range lines {
		if ugcStartPattern.MatchString(strings.ToUpper(strings.TrimSpace(line))) {
			return strings.Join(lines[:i], "\n")
		}
	}
	return first
}

func hasUGCLine(chunk string) bool {
	for _, line := range strings.Split(chunk, "\n") {
		if ugcStartPattern.MatchString(strings.ToUpper(strings.TrimSpace(line))) {
			return true
		}
	}
	return false
}

// parseKeySections collects the bulleted WHAT/WHERE/WHEN/IMPACTS sections
// long-fuse products carry. Returns nil when the product has none.
func parseKeySections(text string) map[string]string {
	var sections map[string]string
	var key string
	var buf []string
	flush := func() {
		if key != "" && len(buf) > 0 {
			if sections == nil {
				sections = make(map[string]string)
			}
			sections[key] = strings.Join(buf, " ")
		}
		key, buf = "", nil
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if m := keySectionPattern.FindStringSubmatch(line); m != nil {
			flush()
			key = strings.ReplaceAll(strings.ToLower(m[1]), " ", "_")
			if rest := strings.TrimSpace(m[2]); rest != "" {
				buf = append(buf, rest)
			}
			continue
		}
		if key == "" {
			continue
		}
		if line == "" || strings.HasPrefix(line, "*") {
			flush()
			continue
		}
		buf = append(buf, line)
	}
	flush()
	return sections
}

// filterInformational drops outlook and forecast-discussion products that
// share wire formats with warnings but carry no actionable alert.
func filterInformational(upper string) error {
	head := upper
	if len(head) > 200 {
		head = head[:200]
	}
	switch {
	case strings.Contains(upper, "HAZARDOUS WEATHER OUTLOOK"):
		return fmt.Errorf("%w: hazardous weather outlook", ErrFilteredOut)
	case strings.Contains(firstN(upper, 100), "FLUS"):
		return fmt.Errorf("%w: forecast product", ErrFilteredOut)
	case hwoPILPattern.MatchString(head):
		return fmt.Errorf("%w: hwo product", ErrFilteredOut)
	case strings.Contains(firstN(upper, 50), "NOUS"), strings.Contains(firstN(upper, 50), "FPUS"):
		return fmt.Errorf("%w: administrative product", ErrFilteredOut)
	}
	return nil
}

// filterSPS keeps only thunderstorm-relevant Special Weather Statements.
func filterSPS(upper string) error {
	if spsExclusionPattern.MatchString(upper) {
		return fmt.Errorf("%w: non-convective statement", ErrFilteredOut)
	}
	for _, kw := range spsInclusionKeywords {
		if strings.Contains(upper, kw) {
			return nil
		}
	}
	return fmt.Errorf("%w: statement without convective keywords", ErrFilteredOut)
}

func firstN(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func matchEventName(upper string) (string, Significance, bool) {
	for _, e := range eventNamePhenomena {
		if strings.Contains(upper, e.name) {
			return e.code, e.sig, true
		}
	}
	return "", "", false
}

// PhenomenonForEvent recovers a phenomenon code and significance from a CAP
// event name such as "Severe Thunderstorm Warning". It reports false when the
// event does not correspond to a known product type.
func PhenomenonForEvent(event string) (string, Significance, bool) {
	want := strings.ToUpper(strings.TrimSpace(event))
	if want == "" {
		return "", "", false
	}
	if want == "SPECIAL WEATHER STATEMENT" {
		return "SPS", SignificanceStatement, true
	}
	sigs := []Significance{
		SignificanceWarning, SignificanceWatch,
		SignificanceAdvisory, SignificanceStatement,
	}
	for code := range phenomenonNames {
		for _, sig := range sigs {
			if strings.ToUpper(EventNameFor(code, sig)) == want {
				return code, sig, true
			}
		}
	}
	return "", "", false
}

// parseIssuedLine decodes the local issuance line to UTC. Returns the zero
// time when the line is absent or its timezone is unknown.
func parseIssuedLine(upper string) time.Time {
	m := issuedLinePattern.FindStringSubmatch(upper)
	if m == nil {
		return time.Time{}
	}
	offset, ok := tzOffsets[m[3]]
	if !ok {
		return time.Time{}
	}
	clockVal, _ := strconv.Atoi(m[1])
	hour, minute := clockVal/100, clockVal%100
	if m[2] == "PM" && hour != 12 {
		hour += 12
	} else if m[2] == "AM" && hour == 12 {
		hour = 0
	}
	month, ok := monthNumbers[m[4]]
	if !ok {
		return time.Time{}
	}
	day, _ := strconv.Atoi(m[5])
	year, _ := strconv.Atoi(m[6])
	loc := time.FixedZone(m[3], offset*3600)
	return time.Date(year, month, day, hour, minute, 0, 0, loc).UTC()
}

// splitNarrative separates the free-text body into description and the
// preparedness-actions instruction section.
func splitNarrative(text string) (description, instruction string) {
	const marker = "PRECAUTIONARY/PREPAREDNESS ACTIONS"
	body := text
	if i := strings.Index(body, "$$"); i >= 0 {
		body = body[:i]
	}
	if i := strings.Index(strings.ToUpper(body), marker); i >= 0 {
		description = strings.TrimSpace(body[:i])
		instruction = strings.TrimSpace(body[i+len(marker):])
		instruction = strings.TrimLeft(instruction, ". \n")
		if j := strings.Index(instruction, "&&"); j >= 0 {
			instruction = strings.TrimSpace(instruction[:j])
		}
		return description, instruction
	}
	return strings.TrimSpace(body), ""
}

// FilterToStates trims the alert's coverage to the given states. It reports
// false when nothing remains, meaning the alert should be discarded. An empty
// state list keeps everything.
func FilterToStates(a *Alert, states []string) bool {
	if len(states) == 0 {
		return true
	}
	allowed := make(map[string]bool, len(states))
	for _, s := range states {
		allowed[strings.ToUpper(s)] = true
	}
	var kept []string
	for _, ugc := range a.AffectedAreas {
		if len(ugc) >= 2 && allowed[ugc[:2]] {
			kept = append(kept, ugc)
		}
	}
	if len(kept) == 0 {
		return false
	}
	a.AffectedAreas = kept
	a.FIPSCodes = FIPSCodes(kept)
	return true
}
