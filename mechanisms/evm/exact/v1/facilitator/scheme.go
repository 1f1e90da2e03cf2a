// Package facilitator adapts the legacy v1 wire shapes to the v1 exact
// EVM facilitator mechanism: it exists for callers sitting directly on
// the v1 wire (raw PaymentPayloadV1/PaymentRequirementsV1 bodies), lifts
// them into the unified representation at the boundary, and delegates
// every check to the one implementation in mechanisms/evm/v1.
package facilitator

import (
	"context"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/mechanisms/evm"
	evmv1 "github.com/x402go/x402/mechanisms/evm/v1"
	"github.com/x402go/x402/types"
)

// ExactEvmSchemeV1 verifies and settles legacy exact EVM payments
// arriving in their raw v1 wire form.
type ExactEvmSchemeV1 struct {
	inner *evmv1.ExactEvmFacilitatorV1
}

// NewExactEvmSchemeV1 creates the wire-boundary facilitator.
func NewExactEvmSchemeV1(signer evm.FacilitatorEvmSigner) *ExactEvmSchemeV1 {
	return &ExactEvmSchemeV1{inner: evmv1.NewExactEvmFacilitatorV1(signer)}
}

// Scheme returns the scheme identifier.
func (f *ExactEvmSchemeV1) Scheme() string {
	return evm.SchemeExact
}

// lift converts the raw wire pair into the unified representation the
// mechanism operates on. The payload keeps scheme/network at its top
// level (the v1 convention the mechanism checks), and the requirement's
// amount rides in MaxAmountRequired.
func lift(payload types.PaymentPayloadV1, requirements types.PaymentRequirementsV1) (x402.PaymentPayload, x402.PaymentRequirements) {
	lifted := payload.Lift()
	if lifted.X402Version == 0 {
		lifted.X402Version = 1
	}
	return lifted, requirements.Lift()
}

// Verify checks a raw v1 payment.
func (f *ExactEvmSchemeV1) Verify(
	ctx context.Context,
	payload types.PaymentPayloadV1,
	requirements types.PaymentRequirementsV1,
) (x402.VerifyResponse, error) {
	liftedPayload, liftedRequirements := lift(payload, requirements)
	return f.inner.Verify(ctx, liftedPayload, liftedRequirements)
}

// Settle executes a raw v1 payment (verification happens inside the
// mechanism's Settle).
func (f *ExactEvmSchemeV1) Settle(
	ctx context.Context,
	payload types.PaymentPayloadV1,
	requirements types.PaymentRequirementsV1,
) (x402.SettleResponse, error) {
	liftedPayload, liftedRequirements := lift(payload, requirements)
	return f.inner.Settle(ctx, liftedPayload, liftedRequirements)
}
