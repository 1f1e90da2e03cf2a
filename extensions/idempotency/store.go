package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	x402 "github.com/x402go/x402"
)

// SettlementStatus is the outcome of asking the store about a key.
type SettlementStatus int

const (
	// StatusNotFound: nothing cached, nobody working on it — the caller
	// now owns the in-flight slot.
	StatusNotFound SettlementStatus = iota
	// StatusCached: a prior settlement's result is available for replay.
	StatusCached
	// StatusInFlight: another request is settling this payment right now.
	StatusInFlight
)

// SettlementStore is the dedup substrate behind IdempotentFacilitator.
// The contract is single-flight per key: exactly one caller at a time
// gets StatusNotFound (and must later call Complete or Fail with the same
// done channel), everyone else either replays the cached result or waits.
//
// The in-memory implementation suits one process; a multi-instance
// facilitator supplies a shared backend (Redis, a database) so a retry
// landing on a different instance still sees the marker.
type SettlementStore interface {
	// CheckAndMark atomically resolves the key's state and, on
	// StatusNotFound, claims the in-flight slot. The returned channel is
	// the completion signal for waiters (nil on StatusCached).
	CheckAndMark(key string) (SettlementStatus, *x402.SettleResponse, chan struct{})

	// WaitForResult blocks until the in-flight owner finishes or ctx
	// ends; nil result with nil error means the owner failed and the
	// caller should retry.
	WaitForResult(ctx context.Context, key string, done chan struct{}) (*x402.SettleResponse, error)

	// Complete caches the result, releases the slot, and wakes waiters.
	Complete(key string, response *x402.SettleResponse, done chan struct{})

	// Fail releases the slot without caching, so the settlement can be
	// retried.
	Fail(key string, done chan struct{})
}

// KeyGenerator derives the dedup key from the payment payload's bytes.
type KeyGenerator func(payloadBytes []byte) string

// DefaultKeyGenerator hashes the full payload with SHA-256. The payload
// carries the authorization signature and nonce, so distinct payment
// attempts hash apart while byte-for-byte retries collide — exactly the
// dedup we want.
func DefaultKeyGenerator(payloadBytes []byte) string {
	sum := sha256.Sum256(payloadBytes)
	return hex.EncodeToString(sum[:])
}
