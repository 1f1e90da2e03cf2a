package svm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"

	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"

	x402 "github.com/x402go/x402"
)

// ExactSvmFacilitator implements the SchemeNetworkFacilitator interface for SVM (Solana) exact payments (V2)
type ExactSvmFacilitator struct {
	signer FacilitatorSvmSigner
}

// NewExactSvmFacilitator creates a new ExactSvmFacilitator
func NewExactSvmFacilitator(signer FacilitatorSvmSigner) *ExactSvmFacilitator {
	return &ExactSvmFacilitator{signer: signer}
}

var _ x402.SchemeNetworkFacilitator = (*ExactSvmFacilitator)(nil)

// Scheme returns the scheme identifier
func (f *ExactSvmFacilitator) Scheme() string {
	return SchemeExact
}

// GetExtra returns a randomly selected fee payer address, distributing load
// across whichever addresses the facilitator signer manages on network.
func (f *ExactSvmFacilitator) GetExtra(network x402.Network) map[string]interface{} {
	addresses := f.signer.GetAddresses(context.Background(), string(network))
	if len(addresses) == 0 {
		return nil
	}
	return map[string]interface{}{
		"feePayer": addresses[rand.Intn(len(addresses))].String(),
	}
}

// GetSigners returns all fee payer addresses this facilitator can use on network.
func (f *ExactSvmFacilitator) GetSigners(network x402.Network) []string {
	addresses := f.signer.GetAddresses(context.Background(), string(network))
	result := make([]string, len(addresses))
	for i, addr := range addresses {
		result[i] = addr.String()
	}
	return result
}

// Verify verifies a V2 payment payload against requirements
func (f *ExactSvmFacilitator) Verify(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (x402.VerifyResponse, error) {
	if payload.X402Version != 2 {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "v2 only supports x402 version 2"}, nil
	}

	if payload.Accepted.Scheme != SchemeExact || requirements.Scheme != SchemeExact {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrUnsupportedScheme}, nil
	}

	if payload.Accepted.Network != requirements.Network {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrNetworkMismatch}, nil
	}

	if requirements.Extra == nil || requirements.Extra["feePayer"] == nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrMissingFeePayer}, nil
	}

	feePayerStr, ok := requirements.Extra["feePayer"].(string)
	if !ok {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrMissingFeePayer}, nil
	}

	networkStr := string(requirements.Network)
	signerAddresses := f.signer.GetAddresses(ctx, networkStr)
	signerAddressStrs := make([]string, len(signerAddresses))
	for i, addr := range signerAddresses {
		signerAddressStrs[i] = addr.String()
	}

	feePayerManaged := false
	for _, addr := range signerAddressStrs {
		if addr == feePayerStr {
			feePayerManaged = true
			break
		}
	}
	if !feePayerManaged {
		return x402.VerifyResponse{IsValid: false, InvalidReason: "fee_payer_not_managed_by_facilitator"}, nil
	}

	svmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidTransaction}, nil
	}

	tx, err := DecodeTransaction(svmPayload.Transaction)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidTransaction}, nil
	}

	if len(tx.Message.Instructions) < MinTransactionInstructions || len(tx.Message.Instructions) > MaxTransactionInstructions {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrTransactionInstructionsLength}, nil
	}

	if err := f.verifyComputeLimitInstruction(tx, tx.Message.Instructions[0]); err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: err.Error()}, nil
	}
	if err := f.verifyComputePriceInstruction(tx, tx.Message.Instructions[1]); err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: err.Error()}, nil
	}

	payer, err := GetTokenPayerFromTransaction(tx)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrNoTransferInstruction}, nil
	}

	transferIdx, err := f.findTransferInstruction(tx)
	if err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: err.Error(), Payer: payer}, nil
	}
	if err := f.verifyTransferInstruction(tx, tx.Message.Instructions[transferIdx], requirements, signerAddressStrs); err != nil {
		return x402.VerifyResponse{IsValid: false, InvalidReason: err.Error(), Payer: payer}, nil
	}
	if err := f.verifyOptionalInstructions(tx, transferIdx); err != nil {
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
		return x402.VerifyResponse{IsValid: false, InvalidReason: ErrSimulationFailed, Payer: payer}, nil
	}

	return x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// Settle settles a payment by submitting the transaction (V2). It signs with
// the signer matching the feePayer named in requirements.Extra, so the same
// fee payer quoted via GetExtra is the one that pays network fees.
func (f *ExactSvmFacilitator) Settle(
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

	svmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: ErrInvalidTransaction, Network: requirements.Network, Payer: verifyResp.Payer}, nil
	}

	tx, err := DecodeTransaction(svmPayload.Transaction)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: ErrInvalidTransaction, Network: requirements.Network, Payer: verifyResp.Payer}, nil
	}

	feePayerStr, ok := requirements.Extra["feePayer"].(string)
	if !ok {
		return x402.SettleResponse{Success: false, ErrorReason: ErrMissingFeePayer, Network: requirements.Network, Payer: verifyResp.Payer}, nil
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
		return x402.SettleResponse{Success: false, ErrorReason: ErrTransactionFailed, Network: requirements.Network, Payer: verifyResp.Payer}, nil
	}

	signature, err := f.signer.SendTransaction(ctx, tx, networkStr)
	if err != nil {
		return x402.SettleResponse{Success: false, ErrorReason: ErrTransactionFailed, Network: requirements.Network, Payer: verifyResp.Payer}, nil
	}

	if err := f.signer.ConfirmTransaction(ctx, signature, networkStr); err != nil {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: ErrConfirmationFailed,
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

// findTransferInstruction locates the single TransferChecked instruction
// among a transaction's instructions, tolerating an optional ATA-creation
// instruction ahead of it when the destination associated token account did
// not already exist.
func (f *ExactSvmFacilitator) findTransferInstruction(tx *solana.Transaction) (int, error) {
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
				return -1, errors.New(ErrNoTransferInstruction)
			}
			found = i
		}
	}
	if found == -1 {
		return -1, errors.New(ErrNoTransferInstruction)
	}
	return found, nil
}

// verifyOptionalInstructions checks that every instruction other than the
// two leading compute-budget instructions and the transfer_checked
// instruction is a recognized optional program: ATA creation, a Lighthouse
// assertion, or the uniqueness memo the client attaches per the payment
// mechanism's duplicate-transaction defense.
func (f *ExactSvmFacilitator) verifyOptionalInstructions(tx *solana.Transaction, transferIdx int) error {
	lighthouseProgramID, err := solana.PublicKeyFromBase58(LighthouseProgramAddress)
	if err != nil {
		return errors.New(ErrUnrecognizedOptionalInstruction)
	}
	memoProgramID, err := solana.PublicKeyFromBase58(MemoProgramAddress)
	if err != nil {
		return errors.New(ErrUnrecognizedOptionalInstruction)
	}

	for i, inst := range tx.Message.Instructions {
		if i == 0 || i == 1 || i == transferIdx {
			continue
		}
		if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			return errors.New(ErrUnrecognizedOptionalInstruction)
		}
		progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
		switch progID {
		case solana.SPLAssociatedTokenAccountProgramID, lighthouseProgramID, memoProgramID:
			continue
		default:
			return errors.New(ErrUnrecognizedOptionalInstruction)
		}
	}
	return nil
}

func (f *ExactSvmFacilitator) verifyComputeLimitInstruction(tx *solana.Transaction, inst solana.CompiledInstruction) error {
	progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
	if !progID.Equals(solana.ComputeBudget) {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	if len(inst.Data) < 1 || inst.Data[0] != 2 {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	if _, err := computebudget.DecodeInstruction(accounts, inst.Data); err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	return nil
}

func (f *ExactSvmFacilitator) verifyComputePriceInstruction(tx *solana.Transaction, inst solana.CompiledInstruction) error {
	progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
	if !progID.Equals(solana.ComputeBudget) {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}
	if len(inst.Data) < 1 || inst.Data[0] != 3 {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}
	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}
	decoded, err := computebudget.DecodeInstruction(accounts, inst.Data)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}
	priceInst, ok := decoded.Impl.(*computebudget.SetComputeUnitPrice)
	if !ok {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}
	if priceInst.MicroLamports > uint64(MaxComputeUnitPrice) {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction_too_high")
	}
	return nil
}

func (f *ExactSvmFacilitator) verifyTransferInstruction(
	tx *solana.Transaction,
	inst solana.CompiledInstruction,
	requirements x402.PaymentRequirements,
	signerAddresses []string,
) error {
	progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
	if progID != solana.TokenProgramID && progID != solana.Token2022ProgramID {
		return errors.New(ErrNoTransferInstruction)
	}

	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil || len(accounts) < 4 {
		return errors.New(ErrNoTransferInstruction)
	}

	decoded, err := token.DecodeInstruction(accounts, inst.Data)
	if err != nil {
		return errors.New(ErrNoTransferInstruction)
	}

	transferChecked, ok := decoded.Impl.(*token.TransferChecked)
	if !ok {
		return errors.New(ErrNoTransferInstruction)
	}

	// A facilitator signer must never be the authority moving its own funds.
	authorityAddr := accounts[3].PublicKey.String()
	for _, signerAddr := range signerAddresses {
		if authorityAddr == signerAddr {
			return errors.New(ErrFeePayerTransferring)
		}
	}

	mintAddr := accounts[1].PublicKey.String()
	if mintAddr != requirements.Asset {
		return errors.New(ErrMintMismatch)
	}

	payToPubkey, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return errors.New(ErrRecipientMismatch)
	}
	mintPubkey, err := solana.PublicKeyFromBase58(requirements.Asset)
	if err != nil {
		return errors.New(ErrMintMismatch)
	}
	expectedDestATA, _, err := solana.FindAssociatedTokenAddress(payToPubkey, mintPubkey)
	if err != nil {
		return errors.New(ErrRecipientMismatch)
	}
	if transferChecked.GetDestinationAccount().PublicKey.String() != expectedDestATA.String() {
		return errors.New(ErrRecipientMismatch)
	}

	requiredAmount, err := strconv.ParseUint(requirements.Amount, 10, 64)
	if err != nil {
		return errors.New(ErrAmountInsufficient)
	}
	if *transferChecked.Amount < requiredAmount {
		return errors.New(ErrAmountInsufficient)
	}

	return nil
}
