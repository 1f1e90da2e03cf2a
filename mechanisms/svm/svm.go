// Package svm implements the exact payment scheme for Solana: the client
// assembles and partially signs a versioned transaction (compute budget,
// optional ATA creation, transfer_checked, and a uniqueness memo), the
// facilitator validates it instruction by instruction, co-signs as fee
// payer, and submits it. The v1 subpackage carries the legacy bare-alias
// variant.
package svm

import (
	x402 "github.com/x402go/x402"
)

// allNetworks is the default registration set.
func allNetworks() []string {
	return []string{
		SolanaMainnetCAIP2,
		SolanaDevnetCAIP2,
		SolanaTestnetCAIP2,
	}
}

// Register wires the exact SVM mechanism into whichever components are
// non-nil, deriving the roles from what the signer can do: a
// ClientSvmSigner registers the client half, a FacilitatorSvmSigner the
// facilitator half. Empty networks means every Solana cluster.
func Register(
	client *x402.X402Client,
	facilitator *x402.X402Facilitator,
	service *x402.X402ResourceService,
	signer interface{},
	networks []string,
) error {
	clientSigner, _ := signer.(ClientSvmSigner)
	facilitatorSigner, _ := signer.(FacilitatorSvmSigner)

	if len(networks) == 0 {
		networks = allNetworks()
	}

	if client != nil && clientSigner != nil {
		mechanism := NewExactSvmClient(clientSigner, nil)
		for _, network := range networks {
			if IsValidNetwork(network) {
				client.RegisterScheme(x402.Network(network), mechanism)
			}
		}
	}

	if facilitator != nil && facilitatorSigner != nil {
		mechanism := NewExactSvmFacilitator(facilitatorSigner)
		for _, network := range networks {
			if IsValidNetwork(network) {
				facilitator.RegisterScheme(x402.Network(network), mechanism)
			}
		}
	}

	// The service half needs no signer; it registers through the options
	// RegisterService returns, at service construction time.
	_ = service

	return nil
}

// RegisterClient registers the client half for the given networks.
func RegisterClient(client *x402.X402Client, signer ClientSvmSigner, networks ...string) error {
	return Register(client, nil, nil, signer, networks)
}

// RegisterFacilitator registers the facilitator half for the given networks.
func RegisterFacilitator(facilitator *x402.X402Facilitator, signer FacilitatorSvmSigner, networks ...string) error {
	return Register(nil, facilitator, nil, signer, networks)
}

// RegisterService returns the resource-service options registering the
// server half for the given networks (every Solana cluster when none are
// named).
func RegisterService(networks ...string) []x402.ResourceServiceOption {
	if len(networks) == 0 {
		networks = allNetworks()
	}

	service := NewExactSvmService()
	opts := make([]x402.ResourceServiceOption, 0, len(networks))
	for _, network := range networks {
		if IsValidNetwork(network) {
			opts = append(opts, x402.WithSchemeService(x402.Network(network), service))
		}
	}
	return opts
}
