package svm

import (
	"context"
	"encoding/json"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// ExactSvmPayload is the wire representation of a Solana exact-scheme payment:
// a partially (client-signed) or fully (client+facilitator-signed) versioned
// transaction, base64-encoded.
type ExactSvmPayload struct {
	Transaction string `json:"transaction"`
}

// ToMap converts an ExactSvmPayload to a map for JSON marshaling into PaymentPayload.Payload.
func (p *ExactSvmPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"transaction": p.Transaction,
	}
}

// PayloadFromMap reconstructs an ExactSvmPayload from a generic payload map.
func PayloadFromMap(data map[string]interface{}) (*ExactSvmPayload, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload data: %w", err)
	}

	var payload ExactSvmPayload
	if err := json.Unmarshal(jsonBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payload.Transaction == "" {
		return nil, fmt.Errorf("missing transaction field in payload")
	}

	return &payload, nil
}

// AssetInfo describes an SPL token on a given network.
type AssetInfo struct {
	Address  string
	Symbol   string
	Decimals int
}

// NetworkConfig holds the per-network configuration needed to build and
// verify Solana payment transactions.
type NetworkConfig struct {
	Name         string
	CAIP2        string
	RPCURL       string
	DefaultAsset AssetInfo
}

// ClientConfig allows overriding network defaults (e.g. a private RPC endpoint).
type ClientConfig struct {
	RPCURL string
}

// ClientSvmSigner is the client-side signing interface a payer supplies to
// create payment payloads: it owns a keypair (or a wallet connection) capable
// of partially signing a Solana transaction.
type ClientSvmSigner interface {
	// Address returns the signer's Solana public key.
	Address() solana.PublicKey

	// SignTransaction adds the signer's signature to tx at its account index.
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// FacilitatorSvmSigner is the facilitator-side interface for fee-paying,
// simulating, and submitting a payer's transaction. It supports multiple
// addresses per network for key rotation and load balancing.
type FacilitatorSvmSigner interface {
	// GetAddresses returns the fee-payer addresses this facilitator can use on network.
	GetAddresses(ctx context.Context, network string) []solana.PublicKey

	// SignTransaction adds the facilitator's fee-payer signature to tx.
	SignTransaction(ctx context.Context, tx *solana.Transaction, feePayer solana.PublicKey, network string) error

	// SimulateTransaction simulates tx against network, returning an error if it would fail.
	SimulateTransaction(ctx context.Context, tx *solana.Transaction, network string) error

	// SendTransaction submits a fully-signed tx to network.
	SendTransaction(ctx context.Context, tx *solana.Transaction, network string) (solana.Signature, error)

	// ConfirmTransaction blocks until signature reaches DefaultCommitment on network.
	ConfirmTransaction(ctx context.Context, signature solana.Signature, network string) error
}
