package v1

import (
	"context"
	"errors"
	"strconv"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	x402 "github.com/x402go/x402"
	svm "github.com/x402go/x402/mechanisms/svm"
)

// ExactSvmFacilitatorV1 implements the SchemeNetworkFacilitator interface for
// SVM (Solana) exact payments (V1). The on-wire transaction shape is
// identical to the V2 mechanism; only the network alias and the
// MaxAmountRequired fallback differ.
type ExactSvmFacilitatorV1 struct {
	signer svm.FacilitatorSvmSigner
}

// NewExactSvmFacilitatorV1 creates a new ExactSvmFacilitatorV1.
func NewExactSvmFacilitatorV1(signer svm.FacilitatorSvmSigner) *ExactSvmFacilitatorV1 {
	return &ExactSvmFacilitatorV1{signer: signer}
}

var _ x402.SchemeNetworkFacilitator = (*ExactSvmFacilitatorV1)(nil)

// Scheme returns the scheme identifier.
func (f *ExactSvmFacilitatorV1) Scheme() string {
	return svm.SchemeExact
}

// GetExtra returns a randomly selected fee payer address for network.
func (f *ExactSvmFacilitatorV1) GetExtra(network x402.Network) map[string]interface{} {
	addresses := f.signer.GetAddresses(context.Background(), string(network))
	if len(addresses) == 0 {
		return nil
	}
	return map[string]interface{}{"feePayer": addresses[0].String()}
}

// GetSigners returns all fee payer addresses this facilitator can use on network.
func (f *ExactSvmFacilitatorV1) GetSigners(network x402.Network) []string {
	addresses := f.signer.GetAddresses(context.Background(), string(network))
	result := make([]string, len(addresses))
	for i, addr := range addresses {
		result[i] = addr.String()
	}
	return result
}

// Verify verifies a V1 payment payload against requirements.
func (f *ExactSvmFacilitatorV1) Verify(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (x402.VerifyResponse, error) {
	if payload.X402Version != 1 {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "v1 only supports x402 version 1"}, nil
	}
	if payload.Scheme != svm.SchemeExact || requirements.Scheme != svm.SchemeExact {
		return x402.VerifyResponse{IsValid: false, InvalidReason: svm.ErrUnsupportedScheme}, nil
	}
	if payload.Network != string(requirements.Network) {
		return x402.VerifyResponse{IsValid: false, InvalidReason: svm.ErrNetworkMismatch}, nil
	}

	feePayerStr, ok := requirements.Extra["feePayer"].(string)
	if !ok || feePayerStr == "" {
		return x402.VerifyResponse{IsValid: false, InvalidReason: svm.ErrMissingFeePayer}, nil
	}

	networkStr := string(requirements.Network)
	signerAddresses := f.signer.GetAddresses(ctx, networkStr)
	signerAddressStrs := make([]string, len(signerAddresses))
	feePayerManaged := false
	for i, addr := range signerAddresses {
		signerAddressStrs[i] = addr.String()
		if addr.String() == feePayerStr {
			feePayerManaged = true
		}
	}
	if !feePayerManaged {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "fee_payer_not_managed_by_facilitator"}, nil
	}

	svmPayload, err := svm.PayloadFromMap(payload.Payload)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: svm.ErrInvalidTransaction}, nil
	}
	tx, err := svm.DecodeTransaction(svmPayload.Transaction)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: svm.ErrInvalidTransaction}, nil
	}

	if len(tx.Message.Instructions) < svm.MinTransactionInstructions || len(tx.Message.Instructions) > svm.MaxTransactionInstructions {
		return x402.VerifyResponse{IsValid: false, InvalidReason: svm.ErrTransactionInstructionsLength}, nil
	}

	payer, err := svm.GetTokenPayerFromTransaction(tx)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: svm.ErrNoTransferInstruction}, nil
	}

	transferIdx, err := findTransferInstructionV1(tx)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: err.Error(), Payer: payer}, nil
	}

	// V1: use MaxAmountRequired when present, falling back to Amount.
	amountStr := requirements.MaxAmountRequired
	if amountStr == "" {
		amountStr = requirements.Amount
	}
	requiredAmount, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: svm.ErrAmountInsufficient, Payer: payer}, nil
	}

	if err := verifyTransferInstructionV1(tx, tx.Message.Instructions[transferIdx], requirements, requiredAmount, signerAddressStrs); err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: err.Error(), Payer: payer}, nil
	}

	feePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "invalid_fee_payer", Payer: payer}, nil
	}
	if err := f.signer.SignTransaction(ctx, tx, feePayer, networkStr); err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "transaction_signing_failed", Payer: payer}, nil
	}
	if err := f.signer.SimulateTransaction(ctx, tx, networkStr); err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: svm.ErrSimulationFailed, Payer: payer}, nil
	}

	return x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// Settle settles a V1 payment by submitting the transaction.
func (f *ExactSvmFacilitatorV1) Settle(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (x402.SettleResponse, error) {
	verifyResp, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		return x402.SettleResponse{}, err
	}
	if !verifyResp.IsValid {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: verifyResp.InvalidReason,
			Network:     requirements.Network,
			Payer:       verifyResp.Payer,
		}, nil
	}

	svmPayload, err := svm.PayloadFromMap(payload.Payload)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: svm.ErrInvalidTransaction, Network: requirements.Network, Payer: verifyResp.Payer}, nil
	}
	tx, err := svm.DecodeTransaction(svmPayload.Transaction)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: svm.ErrInvalidTransaction, Network: requirements.Network, Payer: verifyResp.Payer}, nil
	}

	feePayerStr, ok := requirements.Extra["feePayer"].(string)
	if !ok {
		return x402.SettleResponse{Success: false, ErrorReason: svm.ErrMissingFeePayer, Network: requirements.Network, Payer: verifyResp.Payer}, nil
	}
	expectedFeePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: "invalid_fee_payer", Network: requirements.Network, Payer: verifyResp.Payer}, nil
	}
	if len(tx.Message.AccountKeys) == 0 || tx.Message.AccountKeys[0] != expectedFeePayer {
		return x402.SettleResponse{Success: false, ErrorReason: "fee_payer_mismatch", Network: requirements.Network, Payer: verifyResp.Payer}, nil
	}

	networkStr := string(requirements.Network)
	if err := f.signer.SignTransaction(ctx, tx, expectedFeePayer, networkStr); err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: svm.ErrTransactionFailed, Network: requirements.Network, Payer: verifyResp.Payer}, nil
	}

	signature, err := f.signer.SendTransaction(ctx, tx, networkStr)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: svm.ErrTransactionFailed, Network: requirements.Network, Payer: verifyResp.Payer}, nil
	}

	if err := f.signer.ConfirmTransaction(ctx, signature, networkStr); err != nil {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: svm.ErrConfirmationFailed,
			Transaction: signature.String(),
			Network:     requirements.Network,
			Payer:       verifyResp.Payer,
		}, nil
	}

	return x402.SettleResponse{
		Success:     true,
		Transaction: signature.String(),
		Network:     requirements.Network,
		Payer:       verifyResp.Payer,
	}, nil
}

func findTransferInstructionV1(tx *solana.Transaction) (int, error) {
	found := -1
	for i, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
		if progID != solana.TokenProgramID && progID != solana.Token2022ProgramID {
			continue
		}
		accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			continue
		}
		decoded, err := token.DecodeInstruction(accounts, inst.Data)
		if err != nil {
			continue
		}
		if _, ok := decoded.Impl.(*token.TransferChecked); ok {
			if found != -1 {
				return -1, errors.New(svm.ErrNoTransferInstruction)
			}
			found = i
		}
	}
	if found == -1 {
		return -1, errors.New(svm.ErrNoTransferInstruction)
	}
	return found, nil
}

func verifyTransferInstructionV1(
	tx *solana.Transaction,
	inst solana.CompiledInstruction,
	requirements x402.PaymentRequirements,
	requiredAmount uint64,
	signerAddresses []string,
) error {
	progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
	if progID != solana.TokenProgramID && progID != solana.Token2022ProgramID {
		return errors.New(svm.ErrNoTransferInstruction)
	}

	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil || len(accounts) < 4 {
		return errors.New(svm.ErrNoTransferInstruction)
	}

	decoded, err := token.DecodeInstruction(accounts, inst.Data)
	if err != nil {
		return errors.New(svm.ErrNoTransferInstruction)
	}
	transferChecked, ok := decoded.Impl.(*token.TransferChecked)
	if !ok {
		return errors.New(svm.ErrNoTransferInstruction)
	}

	authorityAddr := accounts[3].PublicKey.String()
	for _, signerAddr := range signerAddresses {
		if authorityAddr == signerAddr {
			return errors.New(svm.ErrFeePayerTransferring)
		}
	}

	mintAddr := accounts[1].PublicKey.String()
	if mintAddr != requirements.Asset {
		return errors.New(svm.ErrMintMismatch)
	}

	payToPubkey, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return errors.New(svm.ErrRecipientMismatch)
	}
	mintPubkey, err := solana.PublicKeyFromBase58(requirements.Asset)
	if err != nil {
		return errors.New(svm.ErrMintMismatch)
	}
	expectedDestATA, _, err := solana.FindAssociatedTokenAddress(payToPubkey, mintPubkey)
	if err != nil {
		return errors.New(svm.ErrRecipientMismatch)
	}
	if transferChecked.GetDestinationAccount().PublicKey.String() != expectedDestATA.String() {
		return errors.New(svm.ErrRecipientMismatch)
	}

	if *transferChecked.Amount < requiredAmount {
		return errors.New(svm.ErrAmountInsufficient)
	}

	return nil
}
