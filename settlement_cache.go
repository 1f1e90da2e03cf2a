package x402

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Settlement idempotency. A client that times out mid-settle retries the
// same payload; without dedup the facilitator would broadcast twice and
// the second transaction would burn gas just to revert on the used nonce.
// The store serializes concurrent settles per payload (single-flight) and
// replays the finished result for the TTL window — this is how invariant
// "the same authorization settles exactly once" is enforced before the
// chain ever sees a duplicate.

// SettlementStore is the pluggable dedup backend. The built-in
// SettlementCache is in-memory and single-process; a facilitator running
// multiple instances behind a balancer supplies an implementation over a
// shared store (Redis, a database) so retries landing anywhere see the
// same markers.
type SettlementStore interface {
	CheckAndMark(key string) (SettlementStatus, *SettleResponse, chan struct{})
	WaitForResult(ctx context.Context, key string, done chan struct{}) (*SettleResponse, error)
	Complete(key string, response *SettleResponse, done chan struct{})
	Fail(key string, done chan struct{})
}

// SettlementStatus is the outcome of CheckAndMark.
type SettlementStatus int

const (
	// StatusNotFound: the caller now owns the in-flight slot and must
	// finish with Complete or Fail.
	StatusNotFound SettlementStatus = iota
	// StatusCached: a finished settlement's response is available.
	StatusCached
	// StatusInFlight: another request is settling this payload.
	StatusInFlight
)

// GenerateSettlementKey derives the dedup key: SHA-256 over the payload
// bytes. Signature and nonce are in there, so independent payments never
// collide while byte-identical retries always do.
func GenerateSettlementKey(payloadBytes []byte) string {
	sum := sha256.Sum256(payloadBytes)
	return hex.EncodeToString(sum[:])
}

// settlementRecord is one key's state: in-flight (done open, response
// nil) or finished (response cached until expiresAt).
type settlementRecord struct {
	response  *SettleResponse
	expiresAt time.Time
	done      chan struct{}
	inFlight  bool
}

// SettlementCache is the built-in in-memory SettlementStore: one
// mutex-guarded map of per-key records, with expired results reaped
// lazily on Complete (no background goroutine).
type SettlementCache struct {
	mu      sync.Mutex
	records map[string]*settlementRecord
	ttl     time.Duration
}

// NewSettlementCache creates a cache whose finished settlements replay
// for ttl.
func NewSettlementCache(ttl time.Duration) *SettlementCache {
	return &SettlementCache{
		records: make(map[string]*settlementRecord),
		ttl:     ttl,
	}
}

var _ SettlementStore = (*SettlementCache)(nil)

// liveRecordLocked returns the record for key, dropping it first when it
// holds an expired result. Caller holds the mutex.
func (c *SettlementCache) liveRecordLocked(key string) *settlementRecord {
	record, ok := c.records[key]
	if !ok {
		return nil
	}
	if !record.inFlight && time.Now().After(record.expiresAt) {
		delete(c.records, key)
		return nil
	}
	return record
}

// CheckAndMark atomically resolves the key's state, claiming the
// in-flight slot on StatusNotFound.
func (c *SettlementCache) CheckAndMark(key string) (SettlementStatus, *SettleResponse, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if record := c.liveRecordLocked(key); record != nil {
		if record.inFlight {
			return StatusInFlight, nil, record.done
		}
		return StatusCached, record.response, nil
	}

	done := make(chan struct{})
	c.records[key] = &settlementRecord{done: done, inFlight: true}
	return StatusNotFound, nil, done
}

// WaitForResult blocks until the in-flight owner finishes or ctx ends.
// A nil result with nil error means the owner failed; the caller retries.
func (c *SettlementCache) WaitForResult(ctx context.Context, key string, done chan struct{}) (*SettleResponse, error) {
	select {
	case <-done:
		return c.Get(key)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the live cached response for key, or nil.
func (c *SettlementCache) Get(key string) (*SettleResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if record := c.liveRecordLocked(key); record != nil && !record.inFlight {
		return record.response, nil
	}
	return nil, nil
}

// Complete caches the response for the TTL window, releases the slot,
// wakes waiters, and reaps whatever else has expired.
func (c *SettlementCache) Complete(key string, response *SettleResponse, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records[key] = &settlementRecord{
		response:  response,
		expiresAt: time.Now().Add(c.ttl),
		done:      done,
	}
	close(done)

	now := time.Now()
	for k, record := range c.records {
		if !record.inFlight && now.After(record.expiresAt) {
			delete(c.records, k)
		}
	}
}

// Fail releases the slot without caching, so waiters and future calls
// retry.
func (c *SettlementCache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.records, key)
	close(done)
}
