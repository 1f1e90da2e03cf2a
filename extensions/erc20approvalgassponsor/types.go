// Package erc20approvalgassponsor provides types and helpers for the ERC-20 Approval Gas Sponsoring extension.
//
// This extension enables gasless approval of the Permit2 contract for ERC-20 tokens
// that do NOT implement EIP-2612. Instead of an off-chain signature, the client
// creates a signed (but unbroadcast) approve(Permit2, MaxUint256) transaction.
// The facilitator broadcasts it before calling settle().
package erc20approvalgassponsor

import (
	"context"

	evm "github.com/x402go/x402/mechanisms/evm"
)

// ERC20ApprovalGasSponsoring is the extension identifier for the ERC-20 approval gas sponsoring extension.
const ERC20ApprovalGasSponsoring = "erc20ApprovalGasSponsoring"

// ERC20ApprovalGasSponsoringVersion is the current schema version for the extension info.
const ERC20ApprovalGasSponsoringVersion = "1"

// Info contains the signed approve transaction data populated by the client.
// The facilitator broadcasts this transaction before calling settle().
type Info struct {
	// From is the address of the sender (token owner).
	From string `json:"from"`
	// Asset is the address of the ERC-20 token contract.
	Asset string `json:"asset"`
	// Spender is the address being approved (Canonical Permit2).
	Spender string `json:"spender"`
	// Amount is the approval amount (uint256 as decimal string). Typically MaxUint256.
	Amount string `json:"amount"`
	// SignedTransaction is the RLP-encoded signed approve transaction as a hex string (0x-prefixed).
	SignedTransaction string `json:"signedTransaction"`
	// Version is the schema version identifier.
	Version string `json:"version"`
}

// ServerInfo is the server-side info included in PaymentRequired.
// Contains a description and version; the client populates the rest.
type ServerInfo struct {
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Extension represents the full extension object as it appears in
// PaymentRequired.extensions and PaymentPayload.extensions.
type Extension struct {
	Info   interface{}            `json:"info"`
	Schema map[string]interface{} `json:"schema"`
}

// BatchCall is a single call within an atomic smart-wallet batch transaction.
type BatchCall struct {
	// To is the target contract address of this call.
	To string
	// Data is the ABI-encoded calldata for this call.
	Data []byte
}

// SmartWalletBatchSigner broadcasts an atomic batch of calls from a smart-contract
// wallet (e.g. an ERC-4337/Coinbase Smart Wallet). The facilitator uses it to submit
// the client's pre-signed approve() transaction together with the settle() call in a
// single atomic transaction, since the payer's smart wallet (not the facilitator) is
// the one that must execute the approve step.
type SmartWalletBatchSigner interface {
	// SendBatchTransaction submits calls atomically and returns the transaction hash.
	SendBatchTransaction(ctx context.Context, calls []BatchCall) (string, error)
	// WaitForTransactionReceipt waits for the batch transaction to be mined.
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*evm.TransactionReceipt, error)
}

// FacilitatorExt carries the optional smart-wallet signer used to broadcast the
// ERC-20 approval gas sponsoring batch settle. Registered with a facilitator's
// FacilitatorContext and retrieved via its Key().
type FacilitatorExt struct {
	SmartWalletSigner SmartWalletBatchSigner
}

// NewFacilitatorExtension builds the ERC-20 approval gas sponsoring facilitator
// extension around the given smart-wallet batch signer (may be nil if this
// facilitator does not support the extension, in which case Settle rejects
// ERC-20-approval-sponsored payments with ErrErc20GasSponsoringNotConfigured).
func NewFacilitatorExtension(signer SmartWalletBatchSigner) *FacilitatorExt {
	return &FacilitatorExt{SmartWalletSigner: signer}
}

// Key returns the extension identifier.
func (e *FacilitatorExt) Key() string {
	return ERC20ApprovalGasSponsoring
}
