package v1

import (
	"context"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/x402go/x402"
	svm "github.com/x402go/x402/mechanisms/svm"
)

// ExactSvmClientV1 implements the SchemeNetworkClient interface for SVM (Solana) exact payments (V1)
type ExactSvmClientV1 struct {
	signer svm.ClientSvmSigner
	config *svm.ClientConfig // Optional custom RPC configuration
}

// NewExactSvmClientV1 creates a new ExactSvmClientV1
func NewExactSvmClientV1(signer svm.ClientSvmSigner, config *svm.ClientConfig) *ExactSvmClientV1 {
	return &ExactSvmClientV1{
		signer: signer,
		config: config,
	}
}

var _ x402.SchemeNetworkClient = (*ExactSvmClientV1)(nil)

// Scheme returns the scheme identifier
func (c *ExactSvmClientV1) Scheme() string {
	return svm.SchemeExact
}

// CreatePaymentPayload creates a payment payload for the exact scheme (V1)
func (c *ExactSvmClientV1) CreatePaymentPayload(
	ctx context.Context,
	version int,
	requirements x402.PaymentRequirements,
) (x402.PartialPaymentPayload, error) {
	if version != 1 {
		return x402.PartialPaymentPayload{}, fmt.Errorf("v1 only supports x402 version 1, got %d", version)
	}

	// Validate network (V1 uses simple names, normalize to CAIP-2 internally)
	networkStr := string(requirements.Network)
	if !svm.IsValidNetwork(networkStr) {
		return x402.PartialPaymentPayload{}, fmt.Errorf("unsupported network: %s", requirements.Network)
	}

	config, err := svm.GetNetworkConfig(networkStr)
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

	sourceAccount, err := rpcClient.GetAccountInfo(ctx, sourceATA)
	if err != nil || sourceAccount == nil || sourceAccount.Value == nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf(
			"%s: source ATA does not exist for client %s", svm.ErrATANotFound, c.signer.Address(),
		)
	}

	destAccount, err := rpcClient.GetAccountInfo(ctx, destinationATA)
	if err != nil || destAccount == nil || destAccount.Value == nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf(
			"%s: destination ATA does not exist for recipient %s", svm.ErrATANotFound, requirements.PayTo,
		)
	}

	// V1: Use MaxAmountRequired if present, fallback to Amount
	amountStr := requirements.MaxAmountRequired
	if amountStr == "" {
		amountStr = requirements.Amount
	}
	amount, err := strconv.ParseUint(amountStr, 10, 64)
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

	// Hardcoded compute units for 3 instructions (ComputeLimit + ComputePrice + TransferChecked)
	const estimatedUnits uint32 = 6500

	cuLimit, err := computebudget.NewSetComputeUnitLimitInstructionBuilder().
		SetUnits(estimatedUnits).
		ValidateAndBuild()
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to build compute limit instruction: %w", err)
	}

	cuPrice, err := computebudget.NewSetComputeUnitPriceInstructionBuilder().
		SetMicroLamports(svm.DefaultComputeUnitPrice).
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

	memoIx, err := svm.NewUniquenessMemo()
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

	base64Tx, err := svm.EncodeTransaction(tx)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to encode transaction: %w", err)
	}

	svmPayload := &svm.ExactSvmPayload{Transaction: base64Tx}

	return x402.PartialPaymentPayload{
		X402Version: 1,
		Payload:     svmPayload.ToMap(),
	}, nil
}
