// Command parseproduct runs the product parser over raw NWS text product
// files and prints the normalized alerts as JSON. It is a debugging aid for
// checking how a captured product decodes without running the full relay.
//
// Usage:
//
//	go run ./cmd/parseproduct [-ugc-map data/ugc_map.json] product.txt [more.txt...]
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/couchcryptid/storm-alert-relay/internal/domain"
	"github.com/couchcryptid/storm-alert-relay/internal/ugcref"
)

func main() {
	ugcMapPath := flag.String("ugc-map", "", "optional UGC reference table for location names")
	compact := flag.Bool("compact", false, "one-line JSON per alert instead of indented")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	refs := ugcref.Empty()
	if *ugcMapPath != "" {
		loaded, err := ugcref.Load(*ugcMapPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load ugc map: %v\n", err)
			os.Exit(1)
		}
		refs = loaded
	}

	failures := 0
	for _, path := range flag.Args() {
		if err := parseFile(path, refs, *compact); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failures++
		}
	}
	if failures > 0 {
		os.Exit(1)
	}
}

func parseFile(path string, refs *ugcref.Table, compact bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	alerts, err := domain.ParseProducts(string(data), "cli", path)
	if err != nil {
		if errors.Is(err, domain.ErrFilteredOut) {
			fmt.Fprintf(os.Stderr, "%s: filtered: %v\n", path, err)
			return nil
		}
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	if !compact {
		enc.SetIndent("", "  ")
	}
	for _, alert := range alerts {
		refs.Decorate(alert)
		if err := enc.Encode(alert); err != nil {
			return err
		}
	}
	return nil
}
