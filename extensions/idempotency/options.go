package idempotency

import "time"

// config collects the Wrap knobs before the store is constructed.
type config struct {
	ttl          time.Duration
	store        SettlementStore
	keyGenerator KeyGenerator
}

// Option configures Wrap.
type Option func(*config)

// WithTTL sets how long successful settlements are cached for replay.
// Only meaningful with the default in-memory store; a custom store
// manages its own TTL and this option is ignored. Default: 10 minutes.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.ttl = ttl
	}
}

// WithStore swaps in a custom SettlementStore — the hook for distributed
// backends:
//
//	redisStore := NewRedisStore(redisClient, 10*time.Minute)
//	facilitator := idempotency.Wrap(baseFacilitator,
//	    idempotency.WithStore(redisStore),
//	)
func WithStore(store SettlementStore) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithKeyGenerator swaps the dedup key derivation. The key must uniquely
// identify a settlement attempt — two different payments mapping to one
// key would silently replay the wrong result.
func WithKeyGenerator(gen KeyGenerator) Option {
	return func(c *config) {
		c.keyGenerator = gen
	}
}
