// Package nwsapi polls api.weather.gov for the active alert set. It is the
// slower, authoritative complement to the push stream: the poller reconciles
// the store against each batch so pull-only alerts that disappear from the
// API get retired.
package nwsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-alert-relay/internal/domain"
)

const (
	fetchAttempts    = 3
	initialRetryWait = time.Second
	requestTimeout   = 30 * time.Second
)

// Client fetches active alerts from the NWS API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
	clock      clockwork.Clock
}

// NewClient creates an NWS API client. The API requires a contact-bearing
// User-Agent and returns 403 without one.
func NewClient(baseURL, userAgent string, logger *slog.Logger, clock clockwork.Clock) *Client {
	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With("component", "nwsapi"),
		clock:      clock,
	}
}

// FetchActive retrieves and normalizes the current active alert set. Transient
// failures (429, 5xx, transport errors) are retried twice with doubling
// backoff; other client errors fail the cycle immediately.
func (c *Client) FetchActive(ctx context.Context) ([]*domain.Alert, error) {
	wait := initialRetryWait
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		alerts, retryable, err := c.fetchOnce(ctx)
		if err == nil {
			return alerts, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		if attempt < fetchAttempts {
			c.logger.Warn("active alerts fetch failed, retrying",
				"attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.clock.After(wait):
			}
			wait *= 2
		}
	}
	return nil, fmt.Errorf("fetch active alerts: %w", lastErr)
}

func (c *Client) fetchOnce(ctx context.Context) (alerts []*domain.Alert, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/alerts/active", nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("active alerts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("nws api status %d: %s", resp.StatusCode, body)
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, transient, err
	}

	var payload activeAlertsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("decode active alerts: %w", err)
	}

	for _, f := range payload.Features {
		alert := featureToAlert(f, c.clock.Now().UTC())
		if alert == nil {
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, false, nil
}

// NWS API GeoJSON response types.

type activeAlertsResponse struct {
	Features []feature `json:"features"`
}

type feature struct {
	Properties properties `json:"properties"`
	Geometry   *geometry  `json:"geometry"`
}

type properties struct {
	ID          string `json:"id"`
	Event       string `json:"event"`
	Headline    string `json:"headline"`
	Description string `json:"description"`
	Instruction string `json:"instruction"`
	SenderName  string `json:"senderName"`

	Sent      time.Time `json:"sent"`
	Effective time.Time `json:"effective"`
	Onset     time.Time `json:"onset"`
	Expires   time.Time `json:"expires"`
	Ends      time.Time `json:"ends"`

	Geocode struct {
		UGC []string `json:"UGC"`
	} `json:"geocode"`
	Parameters struct {
		VTEC []string `json:"VTEC"`
	} `json:"parameters"`
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// featureToAlert converts one CAP feature into a normalized Alert. Features
// for event types outside the relay's scope return nil.
func featureToAlert(f feature, now time.Time) *domain.Alert {
	p := f.Properties

	alert := &domain.Alert{
		MessageID:   p.ID,
		Source:      "pull",
		Status:      domain.StatusActive,
		Headline:    p.Headline,
		Description: p.Description,
		Instruction: p.Instruction,
		SenderName:  p.SenderName,
		IssuedTime:  p.Sent.UTC(),
		ParsedAt:    now,
		LastUpdated: now,
	}
	if !p.Effective.IsZero() {
		alert.EffectiveTime = p.Effective.UTC()
	}
	if !p.Onset.IsZero() {
		alert.OnsetTime = p.Onset.UTC()
	}
	switch {
	case !p.Ends.IsZero():
		alert.ExpirationTime = p.Ends.UTC()
	case !p.Expires.IsZero():
		alert.ExpirationTime = p.Expires.UTC()
	}

	if len(p.Parameters.VTEC) > 0 {
		if vtec, err := domain.ParseVTEC(p.Parameters.VTEC[0]); err == nil && vtec != nil {
			alert.VTEC = vtec
			alert.Phenomenon = vtec.Phenomenon
			alert.Significance = vtec.Significance
			alert.ProductID = vtec.ProductID()
			alert.SenderOffice = vtec.Office
			if alert.ExpirationTime.IsZero() {
				alert.ExpirationTime = vtec.EndTime
			}
		}
	}
	if alert.Phenomenon == "" {
		phen, sig, ok := domain.PhenomenonForEvent(p.Event)
		if !ok {
			return nil
		}
		alert.Phenomenon = phen
		alert.Significance = sig
	}

	alert.AffectedAreas = p.Geocode.UGC
	alert.FIPSCodes = domain.FIPSCodes(p.Geocode.UGC)
	if alert.ProductID == "" {
		issued := alert.IssuedTime
		if issued.IsZero() {
			issued = now
		}
		alert.ProductID = domain.AdhocProductID(alert.Phenomenon, issued, p.Geocode.UGC)
	}

	alert.EventName = domain.EventNameFor(alert.Phenomenon, alert.Significance)
	alert.Priority = domain.PriorityFor(alert.Phenomenon, alert.Significance)
	alert.Polygon = parseGeometry(f.Geometry)
	alert.Centroid = domain.PolygonCentroid(alert.Polygon)
	if p.Description != "" {
		alert.Threat = domain.ExtractThreat(strings.ToUpper(p.Description))
	}
	return alert
}

// parseGeometry extracts the outer ring of a Polygon geometry. MultiPolygon
// and point geometries are ignored; the UGC zones still locate the alert.
func parseGeometry(g *geometry) []domain.LatLon {
	if g == nil || g.Type != "Polygon" {
		return nil
	}
	var rings [][][2]float64
	if err := json.Unmarshal(g.Coordinates, &rings); err != nil || len(rings) == 0 {
		return nil
	}
	outer := rings[0]
	ring := make([]domain.LatLon, 0, len(outer))
	for _, pt := range outer {
		// GeoJSON is lon,lat order.
		ring = append(ring, domain.LatLon{Lat: pt[1], Lon: pt[0]})
	}
	if len(ring) < 3 {
		return nil
	}
	return ring
}
