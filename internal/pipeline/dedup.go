package pipeline

import (
	"sync"
	"time"
)

// RecentSends remembers the authoritative ids of messages this client just
// inserted, so the changefeed echo of the same insert is recognized and
// consumed instead of appended as a duplicate. Entries have a bounded
// lifetime: consumed on first hit or swept after the TTL, so the table
// never grows without bound.
type RecentSends struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[uint64]time.Time // id → expiry
	now     func() time.Time
}

// NewRecentSends creates a dedup table with the given entry lifetime.
func NewRecentSends(ttl time.Duration) *RecentSends {
	return &RecentSends{
		ttl:     ttl,
		entries: make(map[uint64]time.Time),
		now:     time.Now,
	}
}

// Remember records an id just written by this client.
func (r *RecentSends) Remember(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	r.entries[id] = r.now().Add(r.ttl)
}

// Consume reports whether the id was recently sent by this client, removing
// it so the echo is only absorbed once.
func (r *RecentSends) Consume(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// Len reports the live entry count (after sweeping), mainly for tests.
func (r *RecentSends) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	return len(r.entries)
}

func (r *RecentSends) sweepLocked() {
	now := r.now()
	for id, expiry := range r.entries {
		if now.After(expiry) {
			delete(r.entries, id)
		}
	}
}
