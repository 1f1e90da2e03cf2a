// Package idempotency wraps a facilitator with settlement deduplication.
//
// A client whose settle request times out will retry the identical
// payload; without deduplication the facilitator broadcasts twice and
// burns gas on a transaction that can only revert. Wrap intercepts
// Settle with a single-flight-plus-cache discipline keyed by the
// payload's hash:
//
//   - a finished settlement within the TTL window replays its cached
//     result,
//   - a settlement in flight blocks the retry until the first attempt
//     finishes,
//   - failures are never cached, so a genuine retry goes through.
//
// Everything else (Verify, GetSupported, hook and scheme registration)
// passes to the wrapped facilitator untouched.
//
// This lives as an opt-in decorator rather than a core behavior because
// the right backend is deployment-shaped: the default in-memory store
// suits a single process, while a load-balanced facilitator needs a
// shared SettlementStore (Redis, a database) so a retry landing on a
// different instance still finds the marker.
//
//	baseFacilitator := x402.Newx402Facilitator()
//	baseFacilitator.RegisterScheme(network, evmScheme)
//
//	facilitator := idempotency.Wrap(baseFacilitator,
//	    idempotency.WithTTL(30 * time.Minute),
//	)
//
//	// Or with a shared backend:
//	facilitator := idempotency.Wrap(baseFacilitator,
//	    idempotency.WithStore(NewRedisStore(redisClient, 10*time.Minute)),
//	)
package idempotency
