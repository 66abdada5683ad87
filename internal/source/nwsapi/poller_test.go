package nwsapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-alert-relay/internal/observability"
	"github.com/couchcryptid/storm-alert-relay/internal/store"
	"github.com/couchcryptid/storm-alert-relay/internal/ugcref"
)

const singleWarningFixture = `{
  "features": [
    {
      "properties": {
        "id": "urn:oid:2.49.0.1.840.0.abc123",
        "event": "Severe Thunderstorm Warning",
        "sent": "2025-08-24T15:25:00-04:00",
        "ends": "2025-08-24T16:00:00-04:00",
        "geocode": {"UGC": ["OHC035"]},
        "parameters": {"VTEC": ["/O.NEW.KCLE.SV.W.0123.250824T1925Z-250824T2000Z/"]}
      },
      "geometry": null
    }
  ]
}`

func TestPollerReconciles(t *testing.T) {
	var mu sync.Mutex
	payload := singleWarningFixture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)

	fake := clockwork.NewFakeClockAt(apiTestNow)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	st := store.New(logger, metrics, store.Options{Clock: fake})
	client := NewClient(srv.URL, "test-agent", logger, fake)
	p := NewPoller(client, st, ugcref.Empty(), nil, 5*time.Minute, logger, metrics, fake)

	ctx := context.Background()
	p.poll(ctx)
	assert.Equal(t, 1, st.Len())
	_, ok := st.Get("SV.CLE.0123")
	assert.True(t, ok)
	assert.Equal(t, apiTestNow, p.LastSuccess())

	// The alert disappears from the API while still live; it is kept until
	// its window passes.
	mu.Lock()
	payload = `{"features": []}`
	mu.Unlock()

	p.poll(ctx)
	assert.Equal(t, 1, st.Len(), "an absent but unexpired alert survives the cycle")

	fake.Advance(31 * time.Minute) // past the 20:00Z end time
	p.poll(ctx)
	assert.Zero(t, st.Len(), "absent and expired alerts are reconciled away")
}

func TestPollerStateFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(singleWarningFixture))
	}))
	t.Cleanup(srv.Close)

	fake := clockwork.NewFakeClockAt(apiTestNow)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	st := store.New(logger, metrics, store.Options{Clock: fake})
	client := NewClient(srv.URL, "test-agent", logger, fake)
	p := NewPoller(client, st, ugcref.Empty(), []string{"TX"}, 5*time.Minute, logger, metrics, fake)

	p.poll(context.Background())
	assert.Zero(t, st.Len(), "an Ohio warning is outside the configured states")
}

func TestPollerKeepsStoreOnError(t *testing.T) {
	var failing bool
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(singleWarningFixture))
	}))
	t.Cleanup(srv.Close)

	fake := clockwork.NewFakeClockAt(apiTestNow)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	st := store.New(logger, metrics, store.Options{Clock: fake})
	client := NewClient(srv.URL, "test-agent", logger, fake)
	p := NewPoller(client, st, ugcref.Empty(), nil, 5*time.Minute, logger, metrics, fake)

	ctx := context.Background()
	p.poll(ctx)
	require.Equal(t, 1, st.Len())

	mu.Lock()
	failing = true
	mu.Unlock()

	p.poll(ctx)
	assert.Equal(t, 1, st.Len(), "a failed cycle must not wipe the active set")
}
