// Package store owns the active alert set. All mutation funnels through a
// single mutex, and every change is published to listeners as a sequenced
// event so consumers can join with a consistent snapshot and never miss or
// double-see a change.
package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-alert-relay/internal/domain"
	"github.com/couchcryptid/storm-alert-relay/internal/observability"
)

// EventType classifies a change to the active set.
type EventType string

const (
	EventNew    EventType = "new"
	EventUpdate EventType = "update"
	EventRemove EventType = "remove"
)

// Event is one sequenced change. Sequence is strictly increasing across all
// event types; Alert is a value copy safe to hold after the call returns.
type Event struct {
	Sequence uint64
	Type     EventType
	Alert    domain.Alert
	Reason   string // remove events: cancelled, expired, deleted, reconciled
}

// Listener receives events synchronously under the store lock. It must not
// block and must not call back into the store.
type Listener func(Event)

// Outcome reports what an upsert did with a product.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeUpdated   Outcome = "updated"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRemoved   Outcome = "removed"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeStale     Outcome = "stale"
)

// Options tune the store. Zero values pick the defaults below.
type Options struct {
	Clock            clockwork.Clock
	ExpirationGrace  time.Duration
	EvictionInterval time.Duration
	PersistPath      string
	PersistInterval  time.Duration
}

const (
	defaultGrace            = 60 * time.Second
	defaultEvictionInterval = 10 * time.Second
	defaultPersistInterval  = time.Minute
)

// Store is the in-memory active alert set.
type Store struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock

	grace            time.Duration
	evictionInterval time.Duration
	persistPath      string
	persistInterval  time.Duration

	mu        sync.Mutex
	alerts    map[string]*domain.Alert
	byEvent   map[domain.EventKey]string
	expiry    expiryHeap
	seq       uint64
	listeners []Listener

	recent           productRing
	productsReceived uint64
	parseFailures    uint64
	evicted          uint64
	lastProductAt    time.Time
}

// New builds a Store. Run must be started for eviction and persistence.
func New(logger *slog.Logger, metrics *observability.Metrics, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.ExpirationGrace <= 0 {
		opts.ExpirationGrace = defaultGrace
	}
	if opts.EvictionInterval <= 0 {
		opts.EvictionInterval = defaultEvictionInterval
	}
	if opts.PersistInterval <= 0 {
		opts.PersistInterval = defaultPersistInterval
	}
	return &Store{
		logger:           logger.With("component", "store"),
		metrics:          metrics,
		clock:            opts.Clock,
		grace:            opts.ExpirationGrace,
		evictionInterval: opts.EvictionInterval,
		persistPath:      opts.PersistPath,
		persistInterval:  opts.PersistInterval,
		alerts:           make(map[string]*domain.Alert),
		byEvent:          make(map[domain.EventKey]string),
	}
}

// Subscribe registers a listener and returns the current snapshot together
// with the sequence of the last event already applied to it. Events delivered
// to the listener always carry a higher sequence, with no gap.
func (s *Store) Subscribe(fn Listener) ([]domain.Alert, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
	return s.snapshotLocked(), s.seq
}

// Snapshot returns value copies of all active alerts sorted by priority,
// then expiration.
func (s *Store) Snapshot() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SnapshotWithSeq returns the snapshot plus the sequence of the last event
// already reflected in it, so a consumer can discard older buffered events.
func (s *Store) SnapshotWithSeq() ([]domain.Alert, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), s.seq
}

func (s *Store) snapshotLocked() []domain.Alert {
	out := make([]domain.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if !out[i].ExpirationTime.Equal(out[j].ExpirationTime) {
			return out[i].ExpirationTime.Before(out[j].ExpirationTime)
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

// Get returns a copy of one alert.
func (s *Store) Get(productID string) (domain.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[productID]
	if !ok {
		return domain.Alert{}, false
	}
	return *a, true
}

// Len reports the active alert count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

// Upsert applies one parsed product to the active set.
//
// Cancellation actions (CAN, EXP) and upgrades (UPG) remove the referenced
// event and discard the incoming product. NEW products deduplicate on product
// id; no-VTEC products sharing an id refresh the entry unless the re-receipt
// is identical. Continuations and corrections merge onto the existing alert,
// keeping the original issue time and bumping the update count. Products
// whose window already passed the grace period are dropped.
func (s *Store) Upsert(incoming *domain.Alert) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UTC()

	v := incoming.VTEC
	if v != nil && (v.IsCancellation() || v.Action == domain.ActionUpgrade) {
		status := domain.StatusCancelled
		reason := "cancelled"
		if v.Action == domain.ActionExpire {
			status = domain.StatusExpired
			reason = "expired"
		}
		if id, ok := s.byEvent[v.Key()]; ok {
			s.removeLocked(id, reason, status)
			s.countOp(OutcomeRemoved)
			return OutcomeRemoved
		}
		s.countOp(OutcomeDiscarded)
		return OutcomeDiscarded
	}

	if !incoming.ExpirationTime.IsZero() && now.After(incoming.ExpirationTime.Add(s.grace)) {
		s.countOp(OutcomeStale)
		return OutcomeStale
	}

	if v != nil && v.IsUpdate() {
		if id, ok := s.byEvent[v.Key()]; ok {
			s.updateLocked(id, incoming, now)
			s.countOp(OutcomeUpdated)
			return OutcomeUpdated
		}
		// An update for an event never seen, typically after a restart
		// mid-event. Treat as a fresh insert.
		s.insertLocked(incoming, now)
		s.countOp(OutcomeInserted)
		return OutcomeInserted
	}

	if existing, ok := s.alerts[incoming.ProductID]; ok {
		// A re-issued no-VTEC product (an SPS retransmitted with changed
		// text) refreshes the entry; only an identical re-receipt is a
		// duplicate. VTEC products dedupe strictly on product id.
		if v == nil && !existing.LastUpdated.Equal(incoming.LastUpdated) {
			s.updateLocked(incoming.ProductID, incoming, now)
			s.countOp(OutcomeUpdated)
			return OutcomeUpdated
		}
		s.countOp(OutcomeDuplicate)
		return OutcomeDuplicate
	}
	s.insertLocked(incoming, now)
	s.countOp(OutcomeInserted)
	return OutcomeInserted
}

// Delete removes an alert by id, for the administrative endpoint.
func (s *Store) Delete(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[productID]; !ok {
		return false
	}
	s.removeLocked(productID, "deleted", domain.StatusCancelled)
	s.countOp(OutcomeRemoved)
	return true
}

// ReconcilePull applies a full active-set batch from the pull source. Every
// batch member is upserted; alerts absent from the batch, whatever their
// source, are removed once their expiration has passed. Absent-but-unexpired
// alerts stay until the API catches up or they expire, so a lagging upstream
// feed never drops a live warning.
func (s *Store) ReconcilePull(batch []*domain.Alert) (applied, removed int) {
	present := make(map[string]bool, len(batch))
	for _, a := range batch {
		present[a.ProductID] = true
		switch s.Upsert(a) {
		case OutcomeInserted, OutcomeUpdated:
			applied++
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UTC()
	var gone []string
	for id, a := range s.alerts {
		if !present[id] && a.IsExpired(now) {
			gone = append(gone, id)
		}
	}
	for _, id := range gone {
		s.removeLocked(id, "reconciled", domain.StatusExpired)
		s.countOp(OutcomeRemoved)
	}
	return applied, len(gone)
}

// EvictExpired removes alerts whose expiration plus grace has passed.
func (s *Store) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UTC()

	n := 0
	for len(s.expiry) > 0 {
		top := s.expiry[0]
		if now.Before(top.at.Add(s.grace)) {
			break
		}
		s.popExpiry()
		a, ok := s.alerts[top.id]
		if !ok || !a.ExpirationTime.Equal(top.at) {
			// Stale heap entry from a removed or re-timed alert.
			continue
		}
		s.removeLocked(top.id, "expired", domain.StatusExpired)
		s.countOp(OutcomeRemoved)
		s.evicted++
		n++
	}
	return n
}

// Run drives eviction and periodic persistence until the context ends. A
// final snapshot is written on shutdown when persistence is configured.
func (s *Store) Run(ctx context.Context) {
	evict := s.clock.NewTicker(s.evictionInterval)
	defer evict.Stop()

	var persistCh <-chan time.Time
	if s.persistPath != "" {
		persist := s.clock.NewTicker(s.persistInterval)
		defer persist.Stop()
		persistCh = persist.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			if s.persistPath != "" {
				s.persist()
			}
			return
		case <-evict.Chan():
			if n := s.EvictExpired(); n > 0 {
				s.logger.Info("evicted expired alerts", "count", n)
			}
		case <-persistCh:
			s.persist()
		}
	}
}

func (s *Store) insertLocked(incoming *domain.Alert, now time.Time) {
	cp := *incoming
	if cp.Status != domain.StatusActive {
		cp.Status = domain.StatusActive
	}
	cp.UpdateCount = 0
	cp.LastUpdated = now
	s.alerts[cp.ProductID] = &cp
	if cp.VTEC != nil {
		s.byEvent[cp.VTEC.Key()] = cp.ProductID
	}
	s.pushExpiry(&cp)
	s.emitLocked(EventNew, &cp, "")
}

func (s *Store) updateLocked(id string, incoming *domain.Alert, now time.Time) {
	existing := s.alerts[id]
	cp := *incoming
	cp.ProductID = id
	if !existing.IssuedTime.IsZero() {
		cp.IssuedTime = existing.IssuedTime
	}
	cp.Status = domain.StatusUpdated
	cp.UpdateCount = existing.UpdateCount
	cp.MarkUpdated(now)
	s.alerts[id] = &cp
	if cp.VTEC != nil {
		s.byEvent[cp.VTEC.Key()] = id
	}
	s.pushExpiry(&cp)
	s.emitLocked(EventUpdate, &cp, "")
}

func (s *Store) removeLocked(id, reason string, status domain.Status) {
	a := s.alerts[id]
	delete(s.alerts, id)
	if a.VTEC != nil && s.byEvent[a.VTEC.Key()] == id {
		delete(s.byEvent, a.VTEC.Key())
	}
	cp := *a
	cp.Status = status
	s.emitLocked(EventRemove, &cp, reason)
}

func (s *Store) emitLocked(typ EventType, a *domain.Alert, reason string) {
	s.seq++
	ev := Event{Sequence: s.seq, Type: typ, Alert: *a, Reason: reason}
	for _, fn := range s.listeners {
		fn(ev)
	}
	s.metrics.ActiveAlerts.Set(float64(len(s.alerts)))
}

func (s *Store) countOp(o Outcome) {
	s.metrics.StoreOps.WithLabelValues(string(o)).Inc()
}
