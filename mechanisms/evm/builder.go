package evm

import (
	x402 "github.com/x402go/x402"
)

// V1Networks lists the legacy network names this mechanism registers for
// protocol v1. The list lives here, not in the v1 subpackage, so that
// NewEvmClient can use it without an import cycle (v1 imports this
// package for its shared types).
var V1Networks = []string{
	"abstract",
	"abstract-testnet",
	"base-sepolia",
	"base",
	"avalanche-fuji",
	"avalanche",
	"iotex",
	"sei",
	"sei-testnet",
	"polygon",
	"polygon-amoy",
	"peaq",
	"story",
	"educhain",
	"skale-base-sepolia",
}

// EvmClientConfig configures NewEvmClient. NewEvmClientV1 is a factory
// rather than a value for the same cycle-avoidance reason as V1Networks:
// the caller (who can import both packages) injects the v1 constructor.
type EvmClientConfig struct {
	Signer                      ClientEvmSigner
	PaymentRequirementsSelector x402.PaymentRequirementsSelector
	Policies                    []x402.PaymentPolicy

	// NewEvmClientV1, when set, enables legacy v1 registrations:
	//
	//	NewEvmClientV1: func(s evm.ClientEvmSigner) x402.SchemeNetworkClient {
	//	    return evmv1.NewExactEvmClientV1(s)
	//	},
	NewEvmClientV1 func(ClientEvmSigner) x402.SchemeNetworkClient
}

// NewEvmClient builds a payment client wired for EVM: the v2 mechanism
// under the eip155:* wildcard (one registration covers every EVM chain),
// and — when the v1 factory is supplied — the legacy mechanism under each
// bare v1 network name.
func NewEvmClient(config EvmClientConfig) *x402.X402Client {
	opts := make([]x402.ClientOption, 0, len(config.Policies)+1)
	if config.PaymentRequirementsSelector != nil {
		opts = append(opts, x402.WithPaymentSelector(config.PaymentRequirementsSelector))
	}
	for _, policy := range config.Policies {
		opts = append(opts, x402.WithPolicy(policy))
	}

	client := x402.Newx402Client(opts...)
	client.RegisterScheme("eip155:*", NewExactEvmClient(config.Signer))

	if config.NewEvmClientV1 != nil {
		legacy := config.NewEvmClientV1(config.Signer)
		for _, network := range V1Networks {
			client.RegisterSchemeV1(x402.Network(network), legacy)
		}
	}

	return client
}
