package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	x402 "github.com/x402go/x402"
)

// IdempotentFacilitator decorates a facilitator with settlement
// deduplication: Settle goes through the single-flight store, everything
// else passes straight through. See the package comment for why this is
// a decorator rather than core behavior.
type IdempotentFacilitator struct {
	inner        *x402.X402Facilitator
	store        SettlementStore
	keyGenerator KeyGenerator
}

// Wrap decorates facilitator with settlement deduplication. Defaults: an
// in-memory store with a ten-minute TTL and the SHA-256 key generator;
// WithTTL / WithStore / WithKeyGenerator override them.
func Wrap(facilitator *x402.X402Facilitator, opts ...Option) *IdempotentFacilitator {
	settings := &config{
		ttl:          10 * time.Minute,
		keyGenerator: DefaultKeyGenerator,
	}
	for _, opt := range opts {
		opt(settings)
	}

	store := settings.store
	if store == nil {
		store = NewInMemoryStore(settings.ttl)
	}

	return &IdempotentFacilitator{
		inner:        facilitator,
		store:        store,
		keyGenerator: settings.keyGenerator,
	}
}

// Settle runs the single-flight discipline around the wrapped
// facilitator's Settle: replay a cached result, wait out a concurrent
// attempt, or claim the slot and settle. Only successes are cached —
// a failed settlement must stay retryable.
func (f *IdempotentFacilitator) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return x402.SettleResponse{}, fmt.Errorf("failed to fingerprint payment payload: %w", err)
	}
	key := f.keyGenerator(payloadBytes)

	status, cached, done := f.store.CheckAndMark(key)
	switch status {
	case StatusCached:
		return *cached, nil

	case StatusInFlight:
		waited, waitErr := f.store.WaitForResult(ctx, key, done)
		if waitErr != nil {
			return x402.SettleResponse{}, &x402.SettleError{Scheme: requirements.Scheme, Network: requirements.Network, Err: waitErr}
		}
		if waited != nil {
			return *waited, nil
		}
		// The in-flight owner failed; take a fresh slot and retry.
		return f.Settle(ctx, payload, requirements)
	}

	// StatusNotFound: this call owns the slot.
	result, settleErr := f.inner.Settle(ctx, payload, requirements)
	if settleErr != nil || !result.Success {
		f.store.Fail(key, done)
		return result, settleErr
	}

	f.store.Complete(key, &result, done)
	return result, nil
}

// Verify passes straight through; verification is read-only and needs no
// deduplication.
func (f *IdempotentFacilitator) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	return f.inner.Verify(ctx, payload, requirements)
}

// GetSupported delegates to the wrapped facilitator.
func (f *IdempotentFacilitator) GetSupported() x402.SupportedResponse {
	return f.inner.GetSupported()
}

// Inner exposes the wrapped facilitator for anything the delegates below
// don't cover.
func (f *IdempotentFacilitator) Inner() *x402.X402Facilitator {
	return f.inner
}

// ============================================================================
// Registration and hook delegates
// ============================================================================

// The wrapper stays registration-transparent: every builder-style method
// of the underlying facilitator is mirrored here, delegating through and
// returning the wrapper so construction chains read the same with or
// without idempotency.

func (f *IdempotentFacilitator) RegisterScheme(network x402.Network, facilitator x402.SchemeNetworkFacilitator) *IdempotentFacilitator {
	f.inner.RegisterScheme(network, facilitator)
	return f
}

func (f *IdempotentFacilitator) RegisterSchemeV1(network x402.Network, facilitator x402.SchemeNetworkFacilitator) *IdempotentFacilitator {
	f.inner.RegisterSchemeV1(network, facilitator)
	return f
}

func (f *IdempotentFacilitator) RegisterExtension(extension string) *IdempotentFacilitator {
	f.inner.RegisterExtension(extension)
	return f
}

func (f *IdempotentFacilitator) OnBeforeVerify(hook x402.FacilitatorBeforeVerifyHook) *IdempotentFacilitator {
	f.inner.OnBeforeVerify(hook)
	return f
}

func (f *IdempotentFacilitator) OnAfterVerify(hook x402.FacilitatorAfterVerifyHook) *IdempotentFacilitator {
	f.inner.OnAfterVerify(hook)
	return f
}

func (f *IdempotentFacilitator) OnVerifyFailure(hook x402.FacilitatorOnVerifyFailureHook) *IdempotentFacilitator {
	f.inner.OnVerifyFailure(hook)
	return f
}

func (f *IdempotentFacilitator) OnBeforeSettle(hook x402.FacilitatorBeforeSettleHook) *IdempotentFacilitator {
	f.inner.OnBeforeSettle(hook)
	return f
}

func (f *IdempotentFacilitator) OnAfterSettle(hook x402.FacilitatorAfterSettleHook) *IdempotentFacilitator {
	f.inner.OnAfterSettle(hook)
	return f
}

func (f *IdempotentFacilitator) OnSettleFailure(hook x402.FacilitatorOnSettleFailureHook) *IdempotentFacilitator {
	f.inner.OnSettleFailure(hook)
	return f
}
