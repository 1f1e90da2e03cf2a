package svm

import (
	x402 "github.com/x402go/x402"
)

// V1Networks lists the legacy network names this mechanism registers for
// protocol v1; kept here instead of the v1 subpackage to avoid an import
// cycle (v1 imports this package for its shared types).
var V1Networks = []string{
	"solana",
	"solana-devnet",
	"solana-testnet",
}

// SvmClientConfig configures NewSvmClient. NewSvmClientV1 is an injected
// factory for the same cycle-avoidance reason as V1Networks.
type SvmClientConfig struct {
	Signer                      ClientSvmSigner
	PaymentRequirementsSelector x402.PaymentRequirementsSelector
	Policies                    []x402.PaymentPolicy

	// ClientConfig overrides the per-network RPC defaults when set.
	ClientConfig *ClientConfig

	// NewSvmClientV1, when set, enables legacy v1 registrations:
	//
	//	NewSvmClientV1: func(s svm.ClientSvmSigner) x402.SchemeNetworkClient {
	//	    return svmv1.NewExactSvmClientV1(s)
	//	},
	NewSvmClientV1 func(ClientSvmSigner) x402.SchemeNetworkClient
}

// NewSvmClient builds a payment client wired for Solana: the v2
// mechanism under the solana:* wildcard and, when the v1 factory is
// supplied, the legacy mechanism under each bare v1 network name.
func NewSvmClient(config SvmClientConfig) *x402.X402Client {
	opts := make([]x402.ClientOption, 0, len(config.Policies)+1)
	if config.PaymentRequirementsSelector != nil {
		opts = append(opts, x402.WithPaymentSelector(config.PaymentRequirementsSelector))
	}
	for _, policy := range config.Policies {
		opts = append(opts, x402.WithPolicy(policy))
	}

	client := x402.Newx402Client(opts...)

	if config.ClientConfig != nil {
		client.RegisterScheme("solana:*", NewExactSvmClient(config.Signer, config.ClientConfig))
	} else {
		client.RegisterScheme("solana:*", NewExactSvmClient(config.Signer))
	}

	if config.NewSvmClientV1 != nil {
		legacy := config.NewSvmClientV1(config.Signer)
		for _, network := range V1Networks {
			client.RegisterSchemeV1(x402.Network(network), legacy)
		}
	}

	return client
}
