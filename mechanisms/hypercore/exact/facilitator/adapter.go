package facilitator

import (
	"context"

	x402 "github.com/x402go/x402"
)

// NetworkFacilitator adapts ExactHypercoreScheme to the registry's
// SchemeNetworkFacilitator interface.
type NetworkFacilitator struct {
	scheme *ExactHypercoreScheme
}

var _ x402.SchemeNetworkFacilitator = (*NetworkFacilitator)(nil)
var _ x402.SignersProvider = (*NetworkFacilitator)(nil)

// NewNetworkFacilitator creates a registry-compatible Hypercore facilitator
// mechanism. Pass "" for apiURL to use the built-in network defaults.
func NewNetworkFacilitator(apiURL ...string) *NetworkFacilitator {
	return &NetworkFacilitator{scheme: NewExactHypercoreScheme(apiURL...)}
}

// Scheme returns the payment scheme identifier.
func (f *NetworkFacilitator) Scheme() string {
	return f.scheme.Scheme()
}

// GetExtra returns scheme-specific metadata for SupportedKind.Extra.
func (f *NetworkFacilitator) GetExtra(network x402.Network) map[string]interface{} {
	return f.scheme.GetExtra(network)
}

// GetSigners returns the facilitator-controlled addresses for network.
func (f *NetworkFacilitator) GetSigners(network x402.Network) []string {
	return f.scheme.GetSigners(network)
}

// Verify delegates to the scheme, flattening its pointer result into the
// registry's value shape.
func (f *NetworkFacilitator) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	resp, err := f.scheme.Verify(ctx, payload, requirements)
	if resp == nil {
		reason := "verification failed"
		if err != nil {
			reason = err.Error()
		}
		return x402.VerifyResponse{IsValid: false, InvalidReason: reason}, err
	}
	return *resp, err
}

// Settle delegates to the scheme, flattening its pointer result.
func (f *NetworkFacilitator) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	resp, err := f.scheme.Settle(ctx, payload, requirements)
	if resp == nil {
		reason := "settlement failed"
		if err != nil {
			reason = err.Error()
		}
		return x402.SettleResponse{Success: false, ErrorReason: reason, Network: requirements.Network}, err
	}
	return *resp, err
}
