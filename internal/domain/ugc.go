package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ugcStartPattern matches the opening of a Universal Geographic Code
	// block, e.g. OHC001-003-093-041500-.
	ugcStartPattern = regexp.MustCompile(`^[A-Z]{2}[CZ]\d{3}`)

	// ugcContinuationPattern matches follow-on lines that carry only codes,
	// ranges, and the purge time under the state/kind prefix of an earlier
	// line.
	ugcContinuationPattern = regexp.MustCompile(`^[\dA-Z>\-]+-\s*$`)

	// ugcPurgePattern is the trailing DDHHMM purge time that closes a block.
	ugcPurgePattern = regexp.MustCompile(`-(\d{6})-?\s*$`)

	ugcPrefixPattern = regexp.MustCompile(`^([A-Z]{2}[CZ])(.*)$`)
	ugcRangePattern  = regexp.MustCompile(`(\d{3})>(\d{3})`)
	ugcCodePattern   = regexp.MustCompile(`(\d{3})`)
)

// stateFIPS maps postal state codes to their two-digit FIPS prefix, used to
// turn county (C) codes into full five-digit FIPS identifiers.
var stateFIPS = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06", "CO": "08",
	"CT": "09", "DE": "10", "DC": "11", "FL": "12", "GA": "13", "HI": "15",
	"ID": "16", "IL": "17", "IN": "18", "IA": "19", "KS": "20", "KY": "21",
	"LA": "22", "ME": "23", "MD": "24", "MA": "25", "MI": "26", "MN": "27",
	"MS": "28", "MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38", "OH": "39",
	"OK": "40", "OR": "41", "PA": "42", "RI": "44", "SC": "45", "SD": "46",
	"TN": "47", "TX": "48", "UT": "49", "VT": "50", "VA": "51", "WA": "53",
	"WV": "54", "WI": "55", "WY": "56", "PR": "72",
}

// UGCBlock is the decoded geographic coverage of a product.
type UGCBlock struct {
	// Codes are the full six-character UGC codes, deduplicated and sorted.
	Codes []string
	// PurgeTime is the DDHHMM product purge time resolved to UTC, or zero
	// when the block carried none.
	PurgeTime time.Time
}

// ParseUGC locates and decodes the UGC block in product text. The reference
// time anchors the month and year of the DDHHMM purge time; a purge day
// earlier in the calendar than the reference rolls into the next month.
func ParseUGC(text string, reference time.Time) (*UGCBlock, error) {
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if ugcStartPattern.MatchString(strings.TrimSpace(line)) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrMissingUGC
	}

	// Blocks wrap across lines; every line of a block ends with a hyphen.
	var joined strings.Builder
	for i := start; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if i > start && !ugcContinuationPattern.MatchString(line) && !ugcStartPattern.MatchString(line) {
			break
		}
		joined.WriteString(line)
		if !strings.HasSuffix(line, "-") {
			break
		}
	}
	block := joined.String()

	var purge time.Time
	if m := ugcPurgePattern.FindStringSubmatch(block); m != nil {
		purge = resolvePurgeTime(m[1], reference)
		block = block[:len(block)-len(m[0])]
	}

	seen := make(map[string]bool)
	prefix := ""
	for _, token := range strings.Split(block, "-") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if m := ugcPrefixPattern.FindStringSubmatch(token); m != nil {
			prefix = m[1]
			token = m[2]
		}
		if prefix == "" {
			continue
		}
		rest := token
		for _, r := range ugcRangePattern.FindAllStringSubmatch(token, -1) {
			lo, _ := strconv.Atoi(r[1])
			hi, _ := strconv.Atoi(r[2])
			if lo > hi {
				lo, hi = hi, lo
			}
			for n := lo; n <= hi; n++ {
				seen[fmt.Sprintf("%s%03d", prefix, n)] = true
			}
		}
		rest = ugcRangePattern.ReplaceAllString(rest, "")
		for _, c := range ugcCodePattern.FindAllString(rest, -1) {
			seen[prefix+c] = true
		}
	}
	if len(seen) == 0 {
		return nil, ErrMissingUGC
	}

	codes := make([]string, 0, len(seen))
	for c := range seen {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return &UGCBlock{Codes: codes, PurgeTime: purge}, nil
}

// resolvePurgeTime anchors a DDHHMM value against a reference instant.
func resolvePurgeTime(ddhhmm string, reference time.Time) time.Time {
	day, _ := strconv.Atoi(ddhhmm[0:2])
	hour, _ := strconv.Atoi(ddhhmm[2:4])
	minute, _ := strconv.Atoi(ddhhmm[4:6])
	if day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}
	}
	ref := reference.UTC()
	t := time.Date(ref.Year(), ref.Month(), day, hour, minute, 0, 0, time.UTC)
	if t.Before(ref) {
		t = t.AddDate(0, 1, 0)
	}
	return t
}

// FIPSCodes converts county UGC codes to five-digit FIPS codes. Zone (Z)
// codes have no FIPS equivalent and are skipped.
func FIPSCodes(ugcCodes []string) []string {
	var fips []string
	for _, code := range ugcCodes {
		if len(code) != 6 || code[2] != 'C' {
			continue
		}
		prefix, ok := stateFIPS[code[:2]]
		if !ok {
			continue
		}
		fips = append(fips, prefix+code[3:])
	}
	return fips
}
