package correlator

import (
	"sync"
	"time"
)

// PendingRequest is one published request still waiting for its outcome.
type PendingRequest struct {
	ID        string
	CreatedAt time.Time
	Deadline  time.Time
	slot      *resultSlot
}

// Expired reports whether the deadline has passed at now.
func (p *PendingRequest) Expired(now time.Time) bool {
	return !now.Before(p.Deadline)
}

// PendingTable maps correlation ids to pending requests. An id is present only
// between registration and the first of resolution, timeout or cancellation.
type PendingTable struct {
	mu      sync.Mutex
	entries map[string]*PendingRequest
}

func NewPendingTable() *PendingTable {
	return &PendingTable{entries: make(map[string]*PendingRequest)}
}

// Insert registers p. It returns false and leaves the table unchanged if the id is taken.
func (t *PendingTable) Insert(p *PendingRequest) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[p.ID]; exists {
		return false
	}
	t.entries[p.ID] = p
	return true
}

// Take removes and returns the entry for id. Of any number of concurrent callers, at most one gets it.
func (t *PendingTable) Take(id string) (*PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return p, ok
}

// RemoveIf removes the entry for id only if it is still p.
func (t *PendingTable) RemoveIf(id string, p *PendingRequest) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.entries[id]; ok && cur == p {
		delete(t.entries, id)
		return true
	}
	return false
}

// TakeExpired removes and returns every entry whose deadline is not after now.
func (t *PendingTable) TakeExpired(now time.Time) []*PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*PendingRequest
	for id, p := range t.entries {
		if p.Expired(now) {
			delete(t.entries, id)
			out = append(out, p)
		}
	}
	return out
}

// Drain removes and returns every entry.
func (t *PendingTable) Drain() []*PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*PendingRequest, 0, len(t.entries))
	for _, p := range t.entries {
		out = append(out, p)
	}
	t.entries = make(map[string]*PendingRequest)
	return out
}

func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *PendingTable) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}
