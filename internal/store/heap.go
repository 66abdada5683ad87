package store

import (
	"container/heap"
	"time"

	"github.com/couchcryptid/storm-alert-relay/internal/domain"
)

// expiryEntry pairs an alert id with the expiration it was scheduled under.
// Entries are never updated in place; re-timed alerts push a fresh entry and
// the stale one is skipped when it surfaces.
type expiryEntry struct {
	id string
	at time.Time
}

type expiryHeap []expiryEntry

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any) { *h = append(*h, x.(expiryEntry)) }

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (s *Store) pushExpiry(a *domain.Alert) {
	if a.ExpirationTime.IsZero() {
		return
	}
	heap.Push(&s.expiry, expiryEntry{id: a.ProductID, at: a.ExpirationTime})
}

func (s *Store) popExpiry() expiryEntry {
	return heap.Pop(&s.expiry).(expiryEntry)
}
