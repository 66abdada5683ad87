package nwsapi

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-alert-relay/internal/domain"
	"github.com/couchcryptid/storm-alert-relay/internal/observability"
	"github.com/couchcryptid/storm-alert-relay/internal/store"
	"github.com/couchcryptid/storm-alert-relay/internal/ugcref"
)

// Poller drives periodic pulls and reconciles the store against each batch.
type Poller struct {
	client       *Client
	store        *store.Store
	refs         *ugcref.Table
	filterStates []string
	interval     time.Duration
	logger       *slog.Logger
	metrics      *observability.Metrics
	clock        clockwork.Clock

	lastSuccess atomic.Int64 // unix seconds, 0 until the first good poll
}

// NewPoller builds a Poller. refs may be the empty table.
func NewPoller(client *Client, st *store.Store, refs *ugcref.Table, filterStates []string, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Poller {
	return &Poller{
		client:       client,
		store:        st,
		refs:         refs,
		filterStates: filterStates,
		interval:     interval,
		logger:       logger.With("component", "poller"),
		metrics:      metrics,
		clock:        clock,
	}
}

// LastSuccess is the time of the most recent successful poll, zero if none.
func (p *Poller) LastSuccess() time.Time {
	s := p.lastSuccess.Load()
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(s, 0).UTC()
}

// Run polls immediately, then on every interval tick until the context ends.
func (p *Poller) Run(ctx context.Context) {
	p.poll(ctx)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	start := p.clock.Now()
	alerts, err := p.client.FetchActive(ctx)
	p.metrics.PollDuration.Observe(p.clock.Since(start).Seconds())
	if err != nil {
		p.metrics.PullPolls.WithLabelValues("error").Inc()
		p.logger.Error("poll cycle failed", "error", err)
		return
	}

	p.metrics.ProductsReceived.WithLabelValues("pull").Add(float64(len(alerts)))

	batch := alerts[:0]
	for _, a := range alerts {
		if !domain.FilterToStates(a, p.filterStates) {
			continue
		}
		p.refs.Decorate(a)
		batch = append(batch, a)
	}

	applied, removed := p.store.ReconcilePull(batch)
	p.metrics.PullPolls.WithLabelValues("success").Inc()
	p.lastSuccess.Store(p.clock.Now().Unix())
	p.logger.Info("poll cycle complete",
		"fetched", len(alerts), "kept", len(batch),
		"applied", applied, "removed", removed)
}
