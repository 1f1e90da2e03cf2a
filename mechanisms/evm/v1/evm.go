// Package v1 provides the V1 implementation of the EVM mechanism for x402
package v1

import (
	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/mechanisms/evm"
)

// RegisterClient registers the V1 EVM client with an x402Client, one scheme
// registration per legacy network name.
func RegisterClient(client *x402.X402Client, signer evm.ClientEvmSigner, networks ...string) *x402.X402Client {
	evmClient := NewExactEvmClientV1(signer)
	if len(networks) == 0 {
		for network := range NetworkConfigs {
			networks = append(networks, network)
		}
	}
	for _, network := range networks {
		client.RegisterSchemeV1(x402.Network(network), evmClient)
	}
	return client
}

// RegisterFacilitator registers the V1 EVM facilitator with an x402Facilitator,
// one scheme registration per legacy network name.
func RegisterFacilitator(facilitator *x402.X402Facilitator, signer evm.FacilitatorEvmSigner, networks ...string) *x402.X402Facilitator {
	evmFacilitator := NewExactEvmFacilitatorV1(signer)
	if len(networks) == 0 {
		for network := range NetworkConfigs {
			networks = append(networks, network)
		}
	}
	for _, network := range networks {
		facilitator.RegisterSchemeV1(x402.Network(network), evmFacilitator)
	}
	return facilitator
}

// RegisterService returns the options to register the V1 EVM service with an
// x402ResourceServer, one per legacy network name.
func RegisterService(networks ...string) []x402.ResourceServiceOption {
	evmService := NewExactEvmServiceV1()
	if len(networks) == 0 {
		for network := range NetworkConfigs {
			networks = append(networks, network)
		}
	}
	opts := make([]x402.ResourceServiceOption, 0, len(networks))
	for _, network := range networks {
		opts = append(opts, x402.WithSchemeService(x402.Network(network), evmService))
	}
	return opts
}
