package idempotency

import (
	"context"
	"sync"
	"time"

	x402 "github.com/x402go/x402"
)

// settlementEntry is one key's state: either an in-flight marker (done is
// open, response nil) or a cached result (done closed, response set,
// expiresAt bounding its lifetime).
type settlementEntry struct {
	response  *x402.SettleResponse
	expiresAt time.Time
	done      chan struct{}
	inFlight  bool
}

// InMemoryStore is the single-process SettlementStore: one mutex-guarded
// map of per-key entries. Deployments that share settlement state across
// instances (load-balanced facilitators) swap in a SettlementStore backed
// by Redis or a database instead.
//
// Expired results are reaped lazily, whenever a Complete touches the map;
// there is no background goroutine to leak.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]*settlementEntry
	ttl     time.Duration
}

// NewInMemoryStore creates an in-memory settlement store. ttl bounds how
// long a successful settlement is replayed; a few minutes covers the
// client-retry window without holding results forever.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]*settlementEntry),
		ttl:     ttl,
	}
}

// liveEntryLocked returns the entry for key, dropping it first if it
// holds an expired result. Caller holds the mutex.
func (s *InMemoryStore) liveEntryLocked(key string) *settlementEntry {
	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !entry.inFlight && time.Now().After(entry.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return entry
}

// CheckAndMark atomically resolves a key's state:
//   - StatusCached with the result when a live cached response exists,
//   - StatusInFlight with the waiter channel when another request owns
//     the key,
//   - StatusNotFound with a fresh done channel otherwise, with the key
//     now marked in-flight for this caller.
func (s *InMemoryStore) CheckAndMark(key string) (SettlementStatus, *x402.SettleResponse, chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry := s.liveEntryLocked(key); entry != nil {
		if entry.inFlight {
			return StatusInFlight, nil, entry.done
		}
		return StatusCached, entry.response, nil
	}

	done := make(chan struct{})
	s.entries[key] = &settlementEntry{done: done, inFlight: true}
	return StatusNotFound, nil, done
}

// WaitForResult blocks until the in-flight owner finishes (or ctx ends),
// then returns whatever result it cached — nil when the owner failed and
// the caller should retry.
func (s *InMemoryStore) WaitForResult(ctx context.Context, key string, done chan struct{}) (*x402.SettleResponse, error) {
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry := s.liveEntryLocked(key); entry != nil && !entry.inFlight {
		return entry.response, nil
	}
	return nil, nil
}

// Complete caches the settlement result for the TTL window, releases the
// in-flight marker, and wakes every waiter. The reap of other expired
// entries piggybacks here.
func (s *InMemoryStore) Complete(key string, response *x402.SettleResponse, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &settlementEntry{
		response:  response,
		expiresAt: time.Now().Add(s.ttl),
		done:      done,
	}
	close(done)

	now := time.Now()
	for k, entry := range s.entries {
		if !entry.inFlight && now.After(entry.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// Fail drops the in-flight marker without caching anything, so waiters
// (and future calls) retry the settlement.
func (s *InMemoryStore) Fail(key string, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	close(done)
}

var _ SettlementStore = (*InMemoryStore)(nil)
