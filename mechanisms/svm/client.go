package svm

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/x402go/x402"
)

// NewUniquenessMemo returns a memo-program instruction carrying 16 random
// bytes hex-encoded to 32 characters. Identical payment requirements signed
// against the same recent blockhash would otherwise produce byte-identical
// transactions, which on-chain duplicate-transaction detection rejects; the
// memo makes every transaction's bytes distinct regardless of blockhash reuse.
func NewUniquenessMemo() (solana.Instruction, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate uniqueness memo: %w", err)
	}
	memoProgramID, err := solana.PublicKeyFromBase58(MemoProgramAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid memo program address: %w", err)
	}
	return solana.NewInstruction(memoProgramID, solana.AccountMetaSlice{}, []byte(hex.EncodeToString(raw))), nil
}

// ExactSvmClient implements the SchemeNetworkClient interface for SVM (Solana) exact payments (V2)
type ExactSvmClient struct {
	signer ClientSvmSigner
	config *ClientConfig // Optional custom RPC configuration
}

// NewExactSvmClient creates a new ExactSvmClient. config is optional; if not
// provided, the network's default RPC endpoint is used.
func NewExactSvmClient(signer ClientSvmSigner, config ...*ClientConfig) *ExactSvmClient {
	var cfg *ClientConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &ExactSvmClient{
		signer: signer,
		config: cfg,
	}
}

var _ x402.SchemeNetworkClient = (*ExactSvmClient)(nil)

// Scheme returns the scheme identifier
func (c *ExactSvmClient) Scheme() string {
	return SchemeExact
}

// CreatePaymentPayload creates a V2 payment payload for the exact scheme
func (c *ExactSvmClient) CreatePaymentPayload(
	ctx context.Context,
	version int,
	requirements x402.PaymentRequirements,
) (x402.PartialPaymentPayload, error) {
	if version != 2 {
		return x402.PartialPaymentPayload{}, fmt.Errorf("v2 only supports x402 version 2")
	}

	networkStr := string(requirements.Network)
	if !IsValidNetwork(networkStr) {
		return x402.PartialPaymentPayload{}, fmt.Errorf("unsupported network: %s", requirements.Network)
	}

	config, err := GetNetworkConfig(networkStr)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	rpcURL := config.RPCURL
	if c.config != nil && c.config.RPCURL != "" {
		rpcURL = c.config.RPCURL
	}
	rpcClient := rpc.New(rpcURL)

	mintPubkey, err := solana.PublicKeyFromBase58(requirements.Asset)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid asset address: %w", err)
	}

	mintAccount, err := rpcClient.GetAccountInfo(ctx, mintPubkey)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to get mint account: %w", err)
	}

	tokenProgramID := mintAccount.Value.Owner
	if tokenProgramID != solana.TokenProgramID && tokenProgramID != solana.Token2022ProgramID {
		return x402.PartialPaymentPayload{}, fmt.Errorf("asset was not created by a known token program")
	}

	payToPubkey, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid payTo address: %w", err)
	}

	sourceATA, _, err := solana.FindAssociatedTokenAddress(c.signer.Address(), mintPubkey)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to derive source ATA: %w", err)
	}

	destinationATA, _, err := solana.FindAssociatedTokenAddress(payToPubkey, mintPubkey)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to derive destination ATA: %w", err)
	}

	amount, err := strconv.ParseUint(requirements.Amount, 10, 64)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid amount: %w", err)
	}

	feePayerAddr, ok := requirements.Extra["feePayer"].(string)
	if !ok {
		return x402.PartialPaymentPayload{}, fmt.Errorf("feePayer is required in paymentRequirements.extra for Solana transactions")
	}

	feePayer, err := solana.PublicKeyFromBase58(feePayerAddr)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid feePayer address: %w", err)
	}

	var mintData token.Mint
	if err := bin.NewBinDecoder(mintAccount.Value.Data.GetBinary()).Decode(&mintData); err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to decode mint data: %w", err)
	}

	latestBlockhash, err := rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	cuLimit, err := computebudget.NewSetComputeUnitLimitInstructionBuilder().
		SetUnits(DefaultComputeUnitLimit).
		ValidateAndBuild()
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to build compute limit instruction: %w", err)
	}

	cuPrice, err := computebudget.NewSetComputeUnitPriceInstructionBuilder().
		SetMicroLamports(DefaultComputeUnitPrice).
		ValidateAndBuild()
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to build compute price instruction: %w", err)
	}

	transferIx, err := token.NewTransferCheckedInstructionBuilder().
		SetAmount(amount).
		SetDecimals(mintData.Decimals).
		SetSourceAccount(sourceATA).
		SetMintAccount(mintPubkey).
		SetDestinationAccount(destinationATA).
		SetOwnerAccount(c.signer.Address()).
		ValidateAndBuild()
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to build transfer instruction: %w", err)
	}

	memoIx, err := NewUniquenessMemo()
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	tx, err := solana.NewTransactionBuilder().
		AddInstruction(cuLimit).
		AddInstruction(cuPrice).
		AddInstruction(transferIx).
		AddInstruction(memoIx).
		SetRecentBlockHash(latestBlockhash.Value.Blockhash).
		SetFeePayer(feePayer).
		Build()
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	if err := c.signer.SignTransaction(ctx, tx); err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	base64Tx, err := EncodeTransaction(tx)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to encode transaction: %w", err)
	}

	svmPayload := &ExactSvmPayload{Transaction: base64Tx}

	return x402.PartialPaymentPayload{
		X402Version: version,
		Payload:     svmPayload.ToMap(),
	}, nil
}
