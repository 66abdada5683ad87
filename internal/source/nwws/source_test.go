package nwws

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-alert-relay/internal/domain"
	"github.com/couchcryptid/storm-alert-relay/internal/observability"
	"github.com/couchcryptid/storm-alert-relay/internal/store"
	"github.com/couchcryptid/storm-alert-relay/internal/ugcref"
)

var nwwsTestNow = time.Date(2025, 8, 24, 19, 31, 0, 0, time.UTC)

const warningProduct = `261
WUUS53 KCLE 241930
SVRCLE

Severe Thunderstorm Warning
National Weather Service Cleveland OH
330 PM EDT SUN AUG 24 2025

OHC035-055-241945-
/O.NEW.KCLE.SV.W.0123.250824T1930Z-250824T2015Z/

...A SEVERE THUNDERSTORM WARNING IS IN EFFECT UNTIL 415 PM EDT...

HAZARD...60 MPH WIND GUSTS AND QUARTER SIZE HAIL.

LAT...LON 4150 8152 4155 8130 4139 8128 4136 8150

$$
`

func newTestSource(t *testing.T, cfg Config) (*Source, *store.Store) {
	t.Helper()
	fake := clockwork.NewFakeClockAt(nwwsTestNow)
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	st := store.New(logger, metrics, store.Options{Clock: fake})
	return New(cfg, logger, metrics, fake, st, ugcref.Empty()), st
}

func TestHandleProductInserts(t *testing.T) {
	src, st := newTestSource(t, Config{})

	src.handleProduct(warningProduct, "14872.101")

	require.Equal(t, 1, st.Len())
	_, ok := st.Get("SV.CLE.0123")
	assert.True(t, ok)

	recent := st.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "inserted", recent[0].Outcome)
	assert.Equal(t, "push", recent[0].Source)
	assert.Equal(t, "14872.101", recent[0].MessageID)
}

func TestHandleProductMultiSegment(t *testing.T) {
	src, st := newTestSource(t, Config{})
	src.handleProduct(warningProduct, "14872.110")
	require.Equal(t, 1, st.Len())

	// One statement cancels 0123 and continues a second warning.
	statement := `WWUS53 KCLE 242000
SVSCLE

Severe Weather Statement
National Weather Service Cleveland OH
400 PM EDT SUN AUG 24 2025

OHC035-242015-
/O.CAN.KCLE.SV.W.0123.000000T0000Z-250824T2015Z/

...THE SEVERE THUNDERSTORM WARNING HAS BEEN CANCELLED...

$$

OHC055-242015-
/O.CON.KCLE.SV.W.0124.000000T0000Z-250824T2015Z/

...A SEVERE THUNDERSTORM WARNING REMAINS IN EFFECT UNTIL 415 PM EDT...

$$
`
	src.handleProduct(statement, "14872.111")

	_, ok := st.Get("SV.CLE.0123")
	assert.False(t, ok, "the cancellation segment retires the first warning")
	_, ok = st.Get("SV.CLE.0124")
	assert.True(t, ok, "the continuation segment carries the second warning")

	recent := st.Recent()
	require.Len(t, recent, 3, "each segment is recorded")
}

func TestHandleProductFilteredInformational(t *testing.T) {
	src, st := newTestSource(t, Config{})

	src.handleProduct("FLUS43 KCLE 241930\nHWOCLE\n\nHAZARDOUS WEATHER OUTLOOK\n", "14872.102")

	assert.Zero(t, st.Len())
	recent := st.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "filtered", recent[0].Outcome)
	assert.Empty(t, recent[0].Error)
}

func TestHandleProductParseError(t *testing.T) {
	src, st := newTestSource(t, Config{})

	src.handleProduct("not a weather product at all", "14872.103")

	assert.Zero(t, st.Len())
	recent := st.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "parse_error", recent[0].Outcome)
	assert.NotEmpty(t, recent[0].Error)
}

func TestHandleProductStateFilter(t *testing.T) {
	src, st := newTestSource(t, Config{FilterStates: []string{"TX"}})

	src.handleProduct(warningProduct, "14872.104")

	assert.Zero(t, st.Len(), "an Ohio warning is outside the configured states")
	recent := st.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "filtered", recent[0].Outcome)
	assert.Equal(t, "SV.CLE.0123", recent[0].ProductID)
}

func TestIsAuthFailure(t *testing.T) {
	assert.True(t, isAuthFailure(errors.New("auth failure: not-authorized")))
	assert.True(t, isAuthFailure(errors.New("sasl: Not-Authorized")))
	assert.False(t, isAuthFailure(errors.New("read tcp: connection reset by peer")),
		"transport drops keep the retry loop going")
}

func TestOIMessageSequenceID(t *testing.T) {
	m := OIMessage{ID: "14872.6"}
	process, seq, err := m.SequenceID()
	require.NoError(t, err)
	assert.Equal(t, "14872", process)
	assert.Equal(t, 6, seq)

	for _, bad := range []string{"", "14872", "14872.six"} {
		m := OIMessage{ID: bad}
		_, _, err := m.SequenceID()
		assert.Error(t, err, bad)
	}
}

func TestTrackSequenceDetectsGaps(t *testing.T) {
	src, _ := newTestSource(t, Config{})

	src.trackSequence(&OIMessage{ID: "14872.1"})
	src.trackSequence(&OIMessage{ID: "14872.2"})
	assert.Equal(t, 2, src.lastSeq)

	src.trackSequence(&OIMessage{ID: "14872.5"})
	assert.Equal(t, 5, src.lastSeq)

	// A new ingest process restarts the sequence without a spurious gap.
	src.trackSequence(&OIMessage{ID: "20001.1"})
	assert.Equal(t, "20001", src.lastProcess)
	assert.Equal(t, 1, src.lastSeq)
}
