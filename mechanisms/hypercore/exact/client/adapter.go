package client

import (
	"context"
	"fmt"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/mechanisms/hypercore"
)

// NetworkClient adapts ExactHypercoreScheme to the registry's
// SchemeNetworkClient interface so it can be registered on an x402 client
// alongside the EVM and SVM mechanisms.
type NetworkClient struct {
	scheme *ExactHypercoreScheme
}

var _ x402.SchemeNetworkClient = (*NetworkClient)(nil)

// NewNetworkClient creates a registry-compatible Hypercore client mechanism.
func NewNetworkClient(signer hypercore.HyperliquidSigner) *NetworkClient {
	return &NetworkClient{scheme: NewExactHypercoreScheme(signer)}
}

// Scheme returns the payment scheme identifier.
func (c *NetworkClient) Scheme() string {
	return c.scheme.Scheme()
}

// CreatePaymentPayload builds the signed SendAsset authorization and
// returns it in the partial form the core client wraps.
func (c *NetworkClient) CreatePaymentPayload(ctx context.Context, version int, requirements x402.PaymentRequirements) (x402.PartialPaymentPayload, error) {
	if version != 2 {
		return x402.PartialPaymentPayload{}, fmt.Errorf("hypercore exact only supports x402 version 2")
	}

	payload, err := c.scheme.CreatePaymentPayload(ctx, requirements)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	return x402.PartialPaymentPayload{
		X402Version: version,
		Payload:     payload.Payload,
	}, nil
}
