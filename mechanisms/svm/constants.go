package svm

import (
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

const (
	// Scheme identifier
	SchemeExact = "exact"

	// Default token decimals for USDC
	DefaultDecimals = 6

	// CAIP-2 network identifiers (Solana genesis hash truncated to 32 chars,
	// per the CAIP-2 solana namespace reference length limit)
	SolanaMainnetCAIP2 = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	SolanaDevnetCAIP2  = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
	SolanaTestnetCAIP2 = "solana:4uhcVJyU9pJkvQyS88uRDiswHXSCkY3z"

	// Legacy v1 network aliases
	SolanaMainnetV1 = "solana"
	SolanaDevnetV1  = "solana-devnet"
	SolanaTestnetV1 = "solana-testnet"

	// USDC mint addresses
	USDCMainnetAddress = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDCDevnetAddress  = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"

	// Default RPC endpoints
	MainnetRPCURL = "https://api.mainnet-beta.solana.com"
	DevnetRPCURL  = "https://api.devnet.solana.com"
	TestnetRPCURL = "https://api.testnet.solana.com"

	// Swig smart-wallet program and the secp256r1 precompile it pairs with for
	// passkey-based signatures.
	SwigProgramAddress         = "swigypWHEksbC64pWKwah1WTeh9JXwx8H1rJHLdbQ7F"
	Secp256r1PrecompileAddress = "Secp256r1SigVerify1111111111111111111111111"

	// Swig instruction discriminators (U16 little-endian, first 2 bytes of instruction data)
	SwigSignV1Discriminator uint16 = 4
	SwigSignV2Discriminator uint16 = 11

	// Optional instruction programs a facilitator will tolerate alongside the
	// required compute-budget + transfer instructions (assertion and uniqueness markers).
	LighthouseProgramAddress = "L2TExMFKdjpN9kozasaurPirfHy9P8sbXoAN1qA3S95"
	MemoProgramAddress       = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"

	// DefaultComputeUnitLimit is the compute unit budget requested by a client
	// building its own payment transaction.
	DefaultComputeUnitLimit uint32 = 200000

	// DefaultComputeUnitPrice is the microLamports/compute-unit price used when
	// a client builds its own payment transaction.
	DefaultComputeUnitPrice uint64 = 1000

	// MaxComputeUnitPrice is the ceiling, in lamports per compute unit, a
	// facilitator will accept before rejecting a transaction as overpriced.
	MaxComputeUnitPrice = 5

	// MaxConfirmAttempts and ConfirmRetryDelay bound how long a facilitator
	// polls for transaction confirmation after submission.
	MaxConfirmAttempts = 30

	// Error codes matching the TypeScript/Python implementations
	ErrMissingFeePayer        = "invalid_exact_solana_payload_missing_fee_payer"
	ErrInvalidTransaction     = "invalid_exact_solana_payload_transaction"
	ErrNoTransferInstruction  = "invalid_exact_solana_payload_no_transfer_instruction"
	ErrMintMismatch           = "invalid_exact_solana_payload_mint_mismatch"
	ErrRecipientMismatch      = "invalid_exact_solana_payload_recipient_mismatch"
	ErrAmountInsufficient     = "invalid_exact_solana_payload_amount_insufficient"
	ErrFeePayerTransferring   = "invalid_exact_solana_payload_transaction_fee_payer_transferring_funds"
	ErrSimulationFailed       = "transaction_simulation_failed"
	ErrTransactionFailed      = "transaction_failed"
	ErrConfirmationFailed     = "transaction_confirmation_failed"
	ErrUnsupportedScheme      = "unsupported_scheme"
	ErrNetworkMismatch        = "network_mismatch"
	ErrATANotFound            = "invalid_exact_solana_payload_ata_not_found"

	ErrTransactionInstructionsLength   = "invalid_exact_solana_payload_transaction_instructions_length"
	ErrUnrecognizedOptionalInstruction = "invalid_exact_solana_payload_transaction_instructions_unrecognized_optional_instruction"

	// MinTransactionInstructions and MaxTransactionInstructions bound the
	// instruction count a facilitator will accept: compute-budget (2) +
	// transfer_checked (1), plus up to 3 optional instructions (ATA
	// creation, a Lighthouse assertion, and/or a uniqueness memo).
	MinTransactionInstructions = 3
	MaxTransactionInstructions = 6
)

// ConfirmRetryDelay is the fixed delay between confirmation polling attempts.
var ConfirmRetryDelay = 500 * time.Millisecond

// DefaultCommitment is the commitment level used for simulation and confirmation polling.
var DefaultCommitment = rpc.CommitmentConfirmed

// NetworkConfigs maps both CAIP-2 identifiers and legacy v1 aliases to their
// network configuration. Kept as one map (like the EVM mechanism) so a single
// lookup serves both wire formats.
var NetworkConfigs = map[string]NetworkConfig{
	SolanaMainnetCAIP2: {
		Name:   "solana",
		CAIP2:  SolanaMainnetCAIP2,
		RPCURL: MainnetRPCURL,
		DefaultAsset: AssetInfo{
			Address:  USDCMainnetAddress,
			Symbol:   "USDC",
			Decimals: DefaultDecimals,
		},
	},
	SolanaMainnetV1: {
		Name:   "solana",
		CAIP2:  SolanaMainnetCAIP2,
		RPCURL: MainnetRPCURL,
		DefaultAsset: AssetInfo{
			Address:  USDCMainnetAddress,
			Symbol:   "USDC",
			Decimals: DefaultDecimals,
		},
	},
	SolanaDevnetCAIP2: {
		Name:   "solana-devnet",
		CAIP2:  SolanaDevnetCAIP2,
		RPCURL: DevnetRPCURL,
		DefaultAsset: AssetInfo{
			Address:  USDCDevnetAddress,
			Symbol:   "USDC",
			Decimals: DefaultDecimals,
		},
	},
	SolanaDevnetV1: {
		Name:   "solana-devnet",
		CAIP2:  SolanaDevnetCAIP2,
		RPCURL: DevnetRPCURL,
		DefaultAsset: AssetInfo{
			Address:  USDCDevnetAddress,
			Symbol:   "USDC",
			Decimals: DefaultDecimals,
		},
	},
	SolanaTestnetCAIP2: {
		Name:   "solana-testnet",
		CAIP2:  SolanaTestnetCAIP2,
		RPCURL: TestnetRPCURL,
		DefaultAsset: AssetInfo{
			Address:  USDCDevnetAddress,
			Symbol:   "USDC",
			Decimals: DefaultDecimals,
		},
	},
	SolanaTestnetV1: {
		Name:   "solana-testnet",
		CAIP2:  SolanaTestnetCAIP2,
		RPCURL: TestnetRPCURL,
		DefaultAsset: AssetInfo{
			Address:  USDCDevnetAddress,
			Symbol:   "USDC",
			Decimals: DefaultDecimals,
		},
	},
}

// V1ToV2NetworkMap maps legacy v1 network aliases to their CAIP-2 equivalent.
var V1ToV2NetworkMap = map[string]string{
	SolanaMainnetV1: SolanaMainnetCAIP2,
	SolanaDevnetV1:  SolanaDevnetCAIP2,
	SolanaTestnetV1: SolanaTestnetCAIP2,
}
