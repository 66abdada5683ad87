package store

import (
	"time"
)

// recentCapacity bounds the diagnostic ring of recently received products.
const recentCapacity = 64

// ProductRecord is one received raw product and what became of it.
type ProductRecord struct {
	ReceivedAt time.Time `json:"received_at"`
	Source     string    `json:"source"`
	MessageID  string    `json:"message_id,omitempty"`
	ProductID  string    `json:"product_id,omitempty"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
}

type productRing struct {
	buf  [recentCapacity]ProductRecord
	next int
	size int
}

func (r *productRing) add(rec ProductRecord) {
	r.buf[r.next] = rec
	r.next = (r.next + 1) % recentCapacity
	if r.size < recentCapacity {
		r.size++
	}
}

// list returns records newest first.
func (r *productRing) list() []ProductRecord {
	out := make([]ProductRecord, 0, r.size)
	for i := 1; i <= r.size; i++ {
		out = append(out, r.buf[(r.next-i+recentCapacity)%recentCapacity])
	}
	return out
}

// RecordProduct notes a received product in the diagnostic ring and the
// running counters. Outcome is a store Outcome string, "parse_error", or
// "filtered".
func (s *Store) RecordProduct(rec ProductRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = s.clock.Now().UTC()
	}
	s.recent.add(rec)
	s.productsReceived++
	s.lastProductAt = rec.ReceivedAt
	if rec.Outcome == "parse_error" {
		s.parseFailures++
	}
}

// Recent returns the diagnostic ring, newest first.
func (s *Store) Recent() []ProductRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recent.list()
}

// Stats summarizes the active set and ingestion counters.
type Stats struct {
	ActiveAlerts     int            `json:"active_alerts"`
	Warnings         int            `json:"warnings"`
	Watches          int            `json:"watches"`
	ByPhenomenon     map[string]int `json:"by_phenomenon"`
	BySource         map[string]int `json:"by_source"`
	ProductsReceived uint64         `json:"products_received"`
	ParseFailures    uint64         `json:"parse_failures"`
	Evicted          uint64         `json:"evicted"`
	LastProductAt    time.Time      `json:"last_product_at,omitzero"`
}

// Stats computes the current summary.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		ActiveAlerts:     len(s.alerts),
		ByPhenomenon:     make(map[string]int),
		BySource:         make(map[string]int),
		ProductsReceived: s.productsReceived,
		ParseFailures:    s.parseFailures,
		Evicted:          s.evicted,
		LastProductAt:    s.lastProductAt,
	}
	for _, a := range s.alerts {
		st.ByPhenomenon[a.Phenomenon]++
		st.BySource[a.Source]++
		if a.IsWarning() {
			st.Warnings++
		}
		if a.IsWatch() {
			st.Watches++
		}
	}
	return st
}
