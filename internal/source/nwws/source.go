// Package nwws ingests raw text products from the NWWS-OI XMPP feed. It
// joins the operations MUC room, hands each product to the parser, and
// applies the result to the alert store.
package nwws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"gosrc.io/xmpp"
	"gosrc.io/xmpp/stanza"

	"github.com/couchcryptid/storm-alert-relay/internal/domain"
	"github.com/couchcryptid/storm-alert-relay/internal/observability"
	"github.com/couchcryptid/storm-alert-relay/internal/store"
	"github.com/couchcryptid/storm-alert-relay/internal/ugcref"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 60 * time.Second

	// connectTimeout is seconds, per the xmpp.Config convention.
	connectTimeout = 15

	// leaveGrace lets the unavailable presence flush before the TCP teardown.
	leaveGrace = 2 * time.Second
)

// ErrAuthFailed marks a rejected login. Retrying bad credentials only gets
// the account locked out, so Run surfaces it instead of reconnecting.
var ErrAuthFailed = errors.New("nwws authentication rejected")

// Config holds the NWWS-OI connection settings.
type Config struct {
	Host         string
	Port         int
	Username     string
	Password     string
	Room         string // bare room JID, e.g. nwws@conference.nwws-oi.weather.gov
	Nickname     string
	FilterStates []string
}

// Source is the push ingestion worker. Run owns the connection lifecycle;
// Connected and Received are safe from any goroutine.
type Source struct {
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	store   *store.Store
	refs    *ugcref.Table

	connected atomic.Bool
	sessionUp atomic.Bool
	received  atomic.Uint64

	// Sequence tracking. Only touched from the router goroutine.
	lastProcess string
	lastSeq     int
}

// New builds a Source. refs may be the empty table.
func New(cfg Config, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock, st *store.Store, refs *ugcref.Table) *Source {
	return &Source{
		cfg:     cfg,
		logger:  logger.With("component", "nwws"),
		metrics: metrics,
		clock:   clock,
		store:   st,
		refs:    refs,
	}
}

// Connected reports whether a session is up and the room has been joined.
func (s *Source) Connected() bool { return s.connected.Load() }

// Received is the count of products taken off the stream since start.
func (s *Source) Received() uint64 { return s.received.Load() }

// Run connects and reconnects until the context ends. Backoff doubles from
// 2s to a 60s cap with full jitter, and resets after any session that got
// as far as joining the room. A rejected login ends Run with ErrAuthFailed.
func (s *Source) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		sessionUp, err := s.runSession(ctx)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sessionUp {
			backoff = initialBackoff
		}

		s.metrics.PushReconnects.Inc()
		wait := time.Duration(rand.Int63n(int64(backoff + 1)))
		s.logger.Warn("nwws session ended, reconnecting", "wait", wait.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(wait):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// runSession runs one connection attempt to completion. It reports whether
// the session got far enough to join the room; a non-nil error means the
// failure is not worth retrying.
func (s *Source) runSession(ctx context.Context) (bool, error) {
	s.sessionUp.Store(false)
	defer s.connected.Store(false)

	router := xmpp.NewRouter()
	router.HandleFunc("message", s.handleMessage)

	config := &xmpp.Config{
		TransportConfiguration: xmpp.TransportConfiguration{
			Address: fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
			Domain:  s.cfg.Host,
		},
		Jid:            fmt.Sprintf("%s@%s/%s", s.cfg.Username, s.cfg.Host, s.cfg.Nickname),
		Credential:     xmpp.Password(s.cfg.Password),
		ConnectTimeout: connectTimeout,
	}

	client, err := xmpp.NewClient(config, router, func(err error) {
		s.logger.Warn("xmpp stream error", "error", err)
	})
	if err != nil {
		s.logger.Error("building xmpp client failed", "error", err)
		return false, nil
	}

	sm := xmpp.NewStreamManager(client, s.postConnect)
	done := make(chan error, 1)
	go func() { done <- sm.Run() }()

	select {
	case <-ctx.Done():
		s.leaveRoom(client)
		sm.Stop()
		return s.sessionUp.Load(), nil
	case err := <-done:
		if err != nil {
			if isAuthFailure(err) {
				s.logger.Error("nwws login rejected, check the credentials", "error", err)
				return false, fmt.Errorf("%w: %v", ErrAuthFailed, err)
			}
			s.logger.Warn("nwws stream closed", "error", err)
		}
		return s.sessionUp.Load(), nil
	}
}

// isAuthFailure recognizes a SASL rejection, which the xmpp library reports
// as a text error from the connect handshake.
func isAuthFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "auth failure") || strings.Contains(msg, "not-authorized")
}

// postConnect joins the room with zero history so a reconnect does not
// replay products the store already saw.
func (s *Source) postConnect(c xmpp.Sender) {
	err := c.Send(stanza.Presence{
		Attrs: stanza.Attrs{To: s.roomJID()},
		Extensions: []stanza.PresExtension{
			stanza.MucPresence{
				History: stanza.History{MaxStanzas: stanza.NewNullableInt(0)},
			},
		},
	})
	if err != nil {
		s.logger.Error("joining the nwws room failed", "room", s.cfg.Room, "error", err)
		return
	}
	s.connected.Store(true)
	s.sessionUp.Store(true)
	s.logger.Info("joined the nwws room", "room", s.cfg.Room)
}

// leaveRoom announces departure so the server releases the nickname promptly.
func (s *Source) leaveRoom(client *xmpp.Client) {
	if !s.connected.Load() {
		return
	}
	err := client.Send(stanza.Presence{Attrs: stanza.Attrs{
		To:   s.roomJID(),
		Type: stanza.PresenceTypeUnavailable,
	}})
	if err != nil {
		s.logger.Warn("sending unavailable presence failed", "error", err)
		return
	}
	s.clock.Sleep(leaveGrace)
}

func (s *Source) roomJID() string {
	return s.cfg.Room + "/" + s.cfg.Nickname
}

func (s *Source) handleMessage(_ xmpp.Sender, p stanza.Packet) {
	msg, ok := p.(stanza.Message)
	if !ok {
		return
	}

	body := msg.Body
	messageID := msg.Id
	var ext OIMessage
	if msg.Get(&ext) {
		// The extension chardata is the full raw product; the plain body is
		// only a one-line summary.
		if strings.TrimSpace(ext.Text) != "" {
			body = ext.Text
		}
		if ext.ID != "" {
			messageID = ext.ID
		}
		s.trackSequence(&ext)
	}
	if strings.TrimSpace(body) == "" {
		return
	}

	s.received.Add(1)
	s.metrics.ProductsReceived.WithLabelValues("push").Inc()
	s.handleProduct(body, messageID)
}

// trackSequence watches the per-process counter on the <x> id attribute.
// A jump means the upstream ingest dropped products before we saw them.
func (s *Source) trackSequence(ext *OIMessage) {
	process, seq, err := ext.SequenceID()
	if err != nil {
		return
	}
	if process == s.lastProcess && s.lastSeq != 0 && seq > s.lastSeq+1 {
		s.logger.Warn("gap in the nwws product sequence",
			"missed", seq-s.lastSeq-1, "last", s.lastSeq, "current", seq)
	}
	s.lastProcess, s.lastSeq = process, seq
}

func (s *Source) handleProduct(text, messageID string) {
	alerts, err := domain.ParseProducts(text, "push", messageID)
	if err != nil {
		rec := store.ProductRecord{Source: "push", MessageID: messageID}
		if errors.Is(err, domain.ErrFilteredOut) {
			rec.Outcome = "filtered"
		} else {
			rec.Outcome = "parse_error"
			rec.Error = err.Error()
			s.metrics.ParseFailures.WithLabelValues(failureReason(err)).Inc()
			s.logger.Debug("product did not parse", "message_id", messageID, "error", err)
		}
		s.store.RecordProduct(rec)
		return
	}

	for _, alert := range alerts {
		s.applyAlert(alert, messageID)
	}
}

func (s *Source) applyAlert(alert *domain.Alert, messageID string) {
	if !domain.FilterToStates(alert, s.cfg.FilterStates) {
		s.store.RecordProduct(store.ProductRecord{
			Source: "push", MessageID: messageID,
			ProductID: alert.ProductID, Outcome: "filtered",
		})
		return
	}

	s.refs.Decorate(alert)
	outcome := s.store.Upsert(alert)
	s.store.RecordProduct(store.ProductRecord{
		Source: "push", MessageID: messageID,
		ProductID: alert.ProductID, Outcome: string(outcome),
	})
	s.logger.Info("product applied",
		"product_id", alert.ProductID, "event", alert.EventName, "outcome", outcome)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyBody):
		return "empty_body"
	case errors.Is(err, domain.ErrMalformedHeader):
		return "malformed_header"
	case errors.Is(err, domain.ErrInvalidVTEC):
		return "invalid_vtec"
	case errors.Is(err, domain.ErrMissingUGC):
		return "missing_ugc"
	default:
		return "other"
	}
}
