// Package ugcref resolves UGC codes to human-readable place names from a
// bundled JSON reference file.
package ugcref

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/storm-alert-relay/internal/domain"
)

// displayLimit caps how many place names appear before the remainder is
// summarized as a count.
const displayLimit = 5

// Table maps six-character UGC codes (OHC035, MDZ509) to display names.
// Some historical entries use the five-character form without the C/Z kind
// letter; Lookup falls back to that form when the full code is absent.
type Table struct {
	names map[string]string
}

// Load reads a JSON object of code-to-name pairs. A missing file is an
// error; an empty table is not.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ugc map: %w", err)
	}
	names := make(map[string]string)
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("decoding ugc map %s: %w", path, err)
	}
	upper := make(map[string]string, len(names))
	for code, name := range names {
		upper[strings.ToUpper(code)] = name
	}
	return &Table{names: upper}, nil
}

// Empty returns a table with no entries, for when no reference file is
// configured. Lookups fall through to the raw codes.
func Empty() *Table {
	return &Table{names: map[string]string{}}
}

// Len reports the number of reference entries.
func (t *Table) Len() int { return len(t.names) }

// Lookup resolves a UGC code, trying the legacy five-character form
// (MD509 for MDZ509) before giving up.
func (t *Table) Lookup(code string) (string, bool) {
	code = strings.ToUpper(code)
	if name, ok := t.names[code]; ok {
		return name, true
	}
	if len(code) == 6 {
		if name, ok := t.names[code[:2]+code[3:]]; ok {
			return name, true
		}
	}
	return "", false
}

// Name resolves a code or echoes it back when unknown.
func (t *Table) Name(code string) string {
	if name, ok := t.Lookup(code); ok {
		return name
	}
	return code
}

// DisplayLocations renders a coverage list for compact display: up to five
// distinct resolved names joined with "; ", then "+N more". Codes resolving
// to the same name (a county and its zone, say) collapse to one entry.
func (t *Table) DisplayLocations(codes []string) string {
	if len(codes) == 0 {
		return ""
	}
	seen := make(map[string]bool, len(codes))
	var names []string
	for _, code := range codes {
		name := t.Name(code)
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	shown := names
	if len(shown) > displayLimit {
		shown = shown[:displayLimit]
	}
	out := strings.Join(shown, "; ")
	if extra := len(names) - displayLimit; extra > 0 {
		out += fmt.Sprintf(" +%d more", extra)
	}
	return out
}

// Decorate fills the alert's display fields from the reference table.
func (t *Table) Decorate(a *domain.Alert) {
	a.DisplayLocations = t.DisplayLocations(a.AffectedAreas)
}
