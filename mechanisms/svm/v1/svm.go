// Package v1 carries the legacy (protocol v1) SVM mechanism: the same
// SPL transfer flow as v2, registered under the bare network aliases the
// v1 wire speaks ("solana", "solana-devnet", "solana-testnet").
package v1

import (
	x402 "github.com/x402go/x402"
	svm "github.com/x402go/x402/mechanisms/svm"
)

// legacyNetworks is the default v1 registration set.
func legacyNetworks() []string {
	return []string{
		svm.SolanaMainnetV1,
		svm.SolanaDevnetV1,
		svm.SolanaTestnetV1,
	}
}

// RegisterClient registers the legacy client mechanism under the given
// (or all) v1 network names.
func RegisterClient(client *x402.X402Client, signer svm.ClientSvmSigner, networks ...string) *x402.X402Client {
	mechanism := NewExactSvmClientV1(signer, nil)

	if len(networks) == 0 {
		networks = legacyNetworks()
	}
	for _, network := range networks {
		if svm.IsValidNetwork(network) {
			client.RegisterSchemeV1(x402.Network(network), mechanism)
		}
	}

	return client
}

// RegisterFacilitator registers the legacy facilitator mechanism under
// the given (or all) v1 network names.
func RegisterFacilitator(facilitator *x402.X402Facilitator, signer svm.FacilitatorSvmSigner, networks ...string) *x402.X402Facilitator {
	mechanism := NewExactSvmFacilitatorV1(signer)

	if len(networks) == 0 {
		networks = legacyNetworks()
	}
	for _, network := range networks {
		if svm.IsValidNetwork(network) {
			facilitator.RegisterSchemeV1(x402.Network(network), mechanism)
		}
	}

	return facilitator
}
