package httpapi_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-alert-relay/internal/adapter/httpapi"
	"github.com/couchcryptid/storm-alert-relay/internal/domain"
	"github.com/couchcryptid/storm-alert-relay/internal/hub"
	"github.com/couchcryptid/storm-alert-relay/internal/observability"
	"github.com/couchcryptid/storm-alert-relay/internal/store"
)

var apiTestNow = time.Date(2025, 8, 24, 19, 30, 0, 0, time.UTC)

type mockPush struct {
	connected bool
	received  uint64
}

func (m *mockPush) Connected() bool  { return m.connected }
func (m *mockPush) Received() uint64 { return m.received }

type mockPull struct {
	last time.Time
}

func (m *mockPull) LastSuccess() time.Time { return m.last }

func warningAlert(etn int, phenomenon, state string) *domain.Alert {
	sig := domain.SignificanceWarning
	v := &domain.VTEC{
		ProductClass:        "O",
		Action:              domain.ActionNew,
		Office:              "KCLE",
		Phenomenon:          phenomenon,
		Significance:        sig,
		EventTrackingNumber: etn,
		EndTime:             apiTestNow.Add(time.Hour),
	}
	return &domain.Alert{
		ProductID:      v.ProductID(),
		Source:         "push",
		VTEC:           v,
		Phenomenon:     phenomenon,
		Significance:   sig,
		EventName:      domain.EventNameFor(phenomenon, sig),
		Priority:       domain.PriorityFor(phenomenon, sig),
		ExpirationTime: v.EndTime,
		AffectedAreas:  []string{state + "C035"},
		Status:         domain.StatusActive,
	}
}

func newTestServer(t *testing.T) (*httpapi.Server, *store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	fake := clockwork.NewFakeClockAt(apiTestNow)

	st := store.New(logger, metrics, store.Options{Clock: fake})
	h := hub.New(logger, metrics, fake, st, nil)
	push := &mockPush{connected: true, received: 42}
	pull := &mockPull{last: apiTestNow.Add(-time.Minute)}
	return httpapi.NewServer(":0", st, h, push, pull, logger, fake), st
}

func doJSON(t *testing.T, srv *httpapi.Server, method, path string, dst any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	srv.ServeHTTP(rec, req)
	if dst != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
	}
	return rec.Code
}

type alertsResponse struct {
	Alerts []domain.Alert `json:"alerts"`
	Count  int            `json:"count"`
}

func TestListAlertsSortedByPriority(t *testing.T) {
	srv, st := newTestServer(t)
	require.Equal(t, store.OutcomeInserted, st.Upsert(warningAlert(1, "SV", "OH")))
	require.Equal(t, store.OutcomeInserted, st.Upsert(warningAlert(2, "TO", "OH")))

	var body alertsResponse
	code := doJSON(t, srv, http.MethodGet, "/api/alerts", &body)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "TO.CLE.0002", body.Alerts[0].ProductID, "tornado warnings sort first")
	assert.Equal(t, "SV.CLE.0001", body.Alerts[1].ProductID)
}

func TestListAlertsFilters(t *testing.T) {
	srv, st := newTestServer(t)
	require.Equal(t, store.OutcomeInserted, st.Upsert(warningAlert(1, "SV", "OH")))
	require.Equal(t, store.OutcomeInserted, st.Upsert(warningAlert(2, "TO", "TX")))

	var body alertsResponse
	code := doJSON(t, srv, http.MethodGet, "/api/alerts?phenomenon=to", &body)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "TO", body.Alerts[0].Phenomenon)

	code = doJSON(t, srv, http.MethodGet, "/api/alerts?state=tx", &body)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "TO.CLE.0002", body.Alerts[0].ProductID)

	code = doJSON(t, srv, http.MethodGet, "/api/alerts?state=ca", &body)
	require.Equal(t, http.StatusOK, code)
	assert.Zero(t, body.Count)
}

func TestGetAlert(t *testing.T) {
	srv, st := newTestServer(t)
	require.Equal(t, store.OutcomeInserted, st.Upsert(warningAlert(1, "SV", "OH")))

	var alert domain.Alert
	code := doJSON(t, srv, http.MethodGet, "/api/alerts/SV.CLE.0001", &alert)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Severe Thunderstorm Warning", alert.EventName)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts/SV.CLE.9999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var errBody map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "alert not found", errBody["error"])
}

func TestDeleteAlert(t *testing.T) {
	srv, st := newTestServer(t)
	require.Equal(t, store.OutcomeInserted, st.Upsert(warningAlert(1, "SV", "OH")))

	code := doJSON(t, srv, http.MethodDelete, "/api/alerts/SV.CLE.0001", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Zero(t, st.Len())

	code = doJSON(t, srv, http.MethodDelete, "/api/alerts/SV.CLE.0001", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStats(t *testing.T) {
	srv, st := newTestServer(t)
	require.Equal(t, store.OutcomeInserted, st.Upsert(warningAlert(1, "SV", "OH")))

	var stats store.Stats
	code := doJSON(t, srv, http.MethodGet, "/api/stats", &stats)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, stats.ActiveAlerts)
	assert.Equal(t, 1, stats.Warnings)
	assert.Equal(t, 1, stats.ByPhenomenon["SV"])
}

func TestRecent(t *testing.T) {
	srv, st := newTestServer(t)
	st.RecordProduct(store.ProductRecord{Source: "push", ProductID: "SV.CLE.0001", Outcome: "inserted"})

	var body struct {
		Products []store.ProductRecord `json:"products"`
		Count    int                   `json:"count"`
	}
	code := doJSON(t, srv, http.MethodGet, "/api/recent", &body)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "inserted", body.Products[0].Outcome)
}

func TestStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]any
	code := doJSON(t, srv, http.MethodGet, "/api/status", &body)
	require.Equal(t, http.StatusOK, code)

	push, ok := body["push"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, push["enabled"])
	assert.Equal(t, true, push["connected"])
	assert.Equal(t, float64(42), push["products_received"])

	pull, ok := body["pull"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, pull["enabled"])
	assert.NotEmpty(t, pull["last_success"])
}

func TestHealthEndpoints(t *testing.T) {
	srv, st := newTestServer(t)
	require.Equal(t, store.OutcomeInserted, st.Upsert(warningAlert(1, "SV", "OH")))

	for _, path := range []string{"/health", "/healthz"} {
		var body map[string]any
		code := doJSON(t, srv, http.MethodGet, path, &body)
		assert.Equal(t, http.StatusOK, code, path)
		assert.Equal(t, "healthy", body["status"], path)
		assert.Equal(t, float64(1), body["alert_count"], path)

		push, ok := body["push"].(map[string]any)
		require.True(t, ok, path)
		assert.Equal(t, true, push["connected"], path)

		pull, ok := body["pull"].(map[string]any)
		require.True(t, ok, path)
		assert.Equal(t, true, pull["enabled"], path)
		assert.NotEmpty(t, pull["last_success"], path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
