package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// vtecPattern matches the P-VTEC string embedded in product text, e.g.
	// /O.NEW.KCLE.SV.W.0123.250824T1930Z-250824T2030Z/.
	vtecPattern = regexp.MustCompile(`/([OTEX])\.([A-Z]{3})\.([A-Z]{4})\.([A-Z]{2})\.([WAYSONF])\.(\d{4})\.(\d{6}T\d{4}Z)-(\d{6}T\d{4}Z)/`)

	// watchNumberPattern recovers the watch number from headline text when a
	// watch product arrives without VTEC (SPC WOU relays sometimes do).
	watchNumberPattern = regexp.MustCompile(`(TORNADO|SEVERE THUNDERSTORM) WATCH (?:NUMBER )?(\d{1,4})`)
)

var validActions = map[string]bool{
	"NEW": true, "CON": true, "EXT": true, "EXA": true, "EXB": true,
	"UPG": true, "CAN": true, "EXP": true, "COR": true, "ROU": true,
}

// ParseVTEC extracts the first P-VTEC string from product text. It returns
// nil when no VTEC is present, and ErrInvalidVTEC when a VTEC-shaped string
// exists but carries an unknown action code.
func ParseVTEC(text string) (*VTEC, error) {
	m := vtecPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, nil
	}
	if !validActions[m[2]] {
		return nil, fmt.Errorf("%w: action %q", ErrInvalidVTEC, m[2])
	}
	etn, err := strconv.Atoi(m[6])
	if err != nil {
		return nil, fmt.Errorf("%w: tracking number %q", ErrInvalidVTEC, m[6])
	}
	v := &VTEC{
		ProductClass:        m[1],
		Action:              Action(m[2]),
		Office:              m[3],
		Phenomenon:          m[4],
		Significance:        Significance(m[5]),
		EventTrackingNumber: etn,
		BeginTime:           parseVTECTime(m[7]),
		EndTime:             parseVTECTime(m[8]),
		Raw:                 m[0],
	}
	return v, nil
}

// parseVTECTime decodes a yymmddThhmmZ VTEC timestamp. The all-zero date
// "000000T0000Z" means open-ended and decodes to the zero time.
func parseVTECTime(s string) time.Time {
	if strings.HasPrefix(s, "0000") {
		return time.Time{}
	}
	t, err := time.Parse("060102T1504Z", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ProductID derives the stable deduplication identity for a VTEC-bearing
// product. Watches omit the office because their tracking numbers are
// assigned nationally by SPC; warnings scope the number to the issuing
// office, with the conventional leading K stripped.
func (v *VTEC) ProductID() string {
	if v.Significance == SignificanceWatch {
		return fmt.Sprintf("%sA.%04d", v.Phenomenon, v.EventTrackingNumber)
	}
	office := v.Office
	if len(office) == 4 && office[0] == 'K' {
		office = office[1:]
	}
	return fmt.Sprintf("%s.%s.%04d", v.Phenomenon, office, v.EventTrackingNumber)
}

// FallbackWatchVTEC builds a synthetic VTEC for a watch product that arrived
// without one, using the watch number printed in the headline. Returns nil
// when no watch headline is found.
func FallbackWatchVTEC(text string) *VTEC {
	m := watchNumberPattern.FindStringSubmatch(strings.ToUpper(text))
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return nil
	}
	phen := "TO"
	if m[1] == "SEVERE THUNDERSTORM" {
		phen = "SV"
	}
	return &VTEC{
		ProductClass:        "O",
		Action:              ActionNew,
		Office:              "KWNS",
		Phenomenon:          phen,
		Significance:        SignificanceWatch,
		EventTrackingNumber: n,
	}
}

// AdhocProductID builds the identity for a no-VTEC product (SPS and similar)
// from its issue time and covered zones. Products re-transmitted with the
// same zones and issuance hash to the same id.
func AdhocProductID(phenomenon string, issued time.Time, ugcCodes []string) string {
	codes := append([]string(nil), ugcCodes...)
	sort.Strings(codes)
	sum := sha1.Sum([]byte(strings.Join(codes, "")))
	return fmt.Sprintf("%s.adhoc.%s.%s",
		phenomenon, issued.UTC().Format("200601021504"), hex.EncodeToString(sum[:])[:8])
}
