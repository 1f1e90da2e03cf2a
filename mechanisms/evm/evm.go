// Package evm implements the exact payment scheme for EVM chains: the
// client signs an EIP-3009 TransferWithAuthorization (or a Permit2
// witness authorization, via the exact subpackages), the facilitator
// verifies it against the accepted requirements and on-chain state, then
// submits it. One mechanism instance registered under the eip155:*
// wildcard serves every configured chain.
package evm

import (
	"context"

	x402 "github.com/x402go/x402"
)

// Register wires the exact EVM mechanism into whichever components are
// non-nil, deriving the roles from what the signer can do: a
// ClientEvmSigner registers the client half, a FacilitatorEvmSigner the
// facilitator half. Empty networks means every configured network.
func Register(
	client *x402.X402Client,
	facilitator *x402.X402Facilitator,
	server *x402.X402ResourceServer,
	signer interface{},
	networks []string,
) error {
	clientSigner, _ := signer.(ClientEvmSigner)
	facilitatorSigner, _ := signer.(FacilitatorEvmSigner)

	if len(networks) == 0 {
		for network := range NetworkConfigs {
			networks = append(networks, network)
		}
	}

	if client != nil && clientSigner != nil {
		mechanism := NewExactEvmClient(clientSigner)
		for _, network := range networks {
			if IsValidNetwork(network) {
				client.RegisterScheme(x402.Network(network), mechanism)
			}
		}
	}

	if facilitator != nil && facilitatorSigner != nil {
		mechanism := NewExactEvmFacilitator(facilitatorSigner)
		for _, network := range networks {
			if IsValidNetwork(network) {
				facilitator.RegisterScheme(x402.Network(network), mechanism)
			}
		}
	}

	// The server half needs no signer; it registers through the options
	// RegisterServer returns, at server construction time.
	_ = server

	return nil
}

// RegisterClient registers the client half for the given networks.
func RegisterClient(client *x402.X402Client, signer ClientEvmSigner, networks ...string) error {
	return Register(client, nil, nil, signer, networks)
}

// RegisterFacilitator registers the facilitator half for the given networks.
func RegisterFacilitator(facilitator *x402.X402Facilitator, signer FacilitatorEvmSigner, networks ...string) error {
	return Register(nil, facilitator, nil, signer, networks)
}

// RegisterServer returns the resource-server options registering the
// server half for the given networks (every configured network when none
// are named).
func RegisterServer(networks ...string) []x402.ResourceServerOption {
	if len(networks) == 0 {
		for network := range NetworkConfigs {
			networks = append(networks, network)
		}
	}

	service := NewExactEvmService()
	opts := make([]x402.ResourceServerOption, 0, len(networks))
	for _, network := range networks {
		if IsValidNetwork(network) {
			opts = append(opts, x402.WithSchemeService(x402.Network(network), service))
		}
	}
	return opts
}

// One-shot helpers for callers that don't want a registered component.

// CreateExactPayload signs a single exact payment.
func CreateExactPayload(
	ctx context.Context,
	signer ClientEvmSigner,
	requirements x402.PaymentRequirements,
	version int,
) (x402.PartialPaymentPayload, error) {
	return NewExactEvmClient(signer).CreatePaymentPayload(ctx, version, requirements)
}

// VerifyExactPayload verifies a single exact payment.
func VerifyExactPayload(
	ctx context.Context,
	signer FacilitatorEvmSigner,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (x402.VerifyResponse, error) {
	return NewExactEvmFacilitator(signer).Verify(ctx, payload, requirements)
}

// SettleExactPayload settles a single exact payment.
func SettleExactPayload(
	ctx context.Context,
	signer FacilitatorEvmSigner,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (x402.SettleResponse, error) {
	return NewExactEvmFacilitator(signer).Settle(ctx, payload, requirements)
}
