// Package hypercore implements the exact payment scheme for Hyperliquid's
// Hypercore L1: clients sign an EIP-712 SendAsset action, the facilitator
// checks it and submits it to the exchange API, then recovers the ledger
// hash from the non-funding ledger updates feed.
package hypercore

import "time"

const (
	// SchemeExact is the payment scheme this mechanism implements.
	SchemeExact = "exact"

	// CAIP-2 network identifiers. Hypercore has exactly two environments.
	NetworkMainnet = "hypercore:mainnet"
	NetworkTestnet = "hypercore:testnet"

	// SignatureChainID is the fixed EIP-712 chain id Hyperliquid expects
	// on user-signed actions, independent of which environment the action
	// targets.
	SignatureChainID = 999

	// MaxNonceAgeSeconds bounds how far in the past an action's
	// millisecond-timestamp nonce may lie before verification rejects it.
	MaxNonceAgeSeconds = 3600

	// Hyperliquid API endpoints per environment.
	HyperliquidAPIMainnet = "https://api.hyperliquid.xyz"
	HyperliquidAPITestnet = "https://api.hyperliquid-testnet.xyz"
)

// Settlement on Hypercore is fire-and-query: /exchange accepts the action
// but returns no transaction hash, so the facilitator polls /info's
// userNonFundingLedgerUpdates to find the ledger entry matching the
// action's nonce. These knobs bound that recovery loop.
const (
	TxHashMaxRetries     = 2
	TxHashRetryDelay     = 500 * time.Millisecond
	TxHashLookbackWindow = 5000 * time.Millisecond
)
