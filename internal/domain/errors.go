package domain

import "errors"

// Parse failures are classified so callers can count and log them by reason
// without string matching.
var (
	ErrEmptyBody       = errors.New("empty product body")
	ErrMalformedHeader = errors.New("malformed product header")
	ErrInvalidVTEC     = errors.New("invalid vtec")
	ErrMissingUGC      = errors.New("no ugc block")
	ErrFilteredOut     = errors.New("product filtered out")
)
