package v1

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/mechanisms/evm"
)

// ExactEvmFacilitatorV1 is the legacy (protocol v1) facilitator half of
// the exact EVM mechanism. The checks mirror v2's with the v1 quirks:
// top-level scheme/network on the payload, maxAmountRequired, a mandatory
// EIP-712 domain in the requirement's extra, and v1's legacy snake_case
// reason strings.
type ExactEvmFacilitatorV1 struct {
	signer evm.FacilitatorEvmSigner
}

// NewExactEvmFacilitatorV1 creates the legacy facilitator mechanism.
func NewExactEvmFacilitatorV1(signer evm.FacilitatorEvmSigner) *ExactEvmFacilitatorV1 {
	return &ExactEvmFacilitatorV1{signer: signer}
}

var _ x402.SchemeNetworkFacilitator = (*ExactEvmFacilitatorV1)(nil)

// Scheme returns the scheme identifier.
func (f *ExactEvmFacilitatorV1) Scheme() string {
	return evm.SchemeExact
}

// GetExtra returns scheme metadata for SupportedKind.Extra; none here.
func (f *ExactEvmFacilitatorV1) GetExtra(network x402.Network) map[string]interface{} {
	return nil
}

// rejectV1 is the non-error rejection shape, with the payer attached
// when known.
func rejectV1(reason, payer string) (x402.VerifyResponse, error) {
	return x402.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}, nil
}

// Verify checks a legacy exact EVM payment.
func (f *ExactEvmFacilitatorV1) Verify(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (x402.VerifyResponse, error) {
	if payload.X402Version != 1 {
		return rejectV1("v1 only supports x402 version 1", "")
	}

	// v1 carries scheme/network at the payload's top level.
	if payload.Scheme != evm.SchemeExact || requirements.Scheme != evm.SchemeExact {
		return rejectV1("unsupported_scheme", "")
	}
	if payload.Network != string(requirements.Network) {
		return rejectV1("network_mismatch", "")
	}

	evmPayload, err := evm.PayloadFromMap(payload.Payload)
	if err != nil {
		return rejectV1(fmt.Sprintf("invalid payload: %v", err), "")
	}
	authorization := evmPayload.Authorization
	payer := authorization.From

	if evmPayload.Signature == "" {
		return rejectV1("missing signature", "")
	}

	networkStr := string(requirements.Network)
	config, err := evm.GetNetworkConfig(networkStr)
	if err != nil {
		return x402.VerifyResponse{}, err
	}
	assetInfo, err := evm.GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return x402.VerifyResponse{}, err
	}

	// v1 requires the server to have pinned the EIP-712 domain; there is
	// no asset-table fallback on this path.
	tokenName, nameOK := "", false
	tokenVersion, versionOK := "", false
	if requirements.Extra != nil {
		tokenName, nameOK = requirements.Extra["name"].(string)
		tokenVersion, versionOK = requirements.Extra["version"].(string)
	}
	if !nameOK || !versionOK {
		return rejectV1("missing_eip712_domain", payer)
	}

	if !strings.EqualFold(authorization.To, requirements.PayTo) {
		return rejectV1("invalid_exact_evm_payload_recipient_mismatch", payer)
	}

	authValue, ok := new(big.Int).SetString(authorization.Value, 10)
	if !ok || authorization.Value == "" {
		return rejectV1(fmt.Sprintf("invalid authorization value: %s", authorization.Value), payer)
	}

	requiredValue, err := v1Amount(requirements)
	if err != nil {
		return rejectV1(err.Error(), payer)
	}
	if authValue.Cmp(requiredValue) < 0 {
		return rejectV1("invalid_exact_evm_payload_authorization_value", payer)
	}

	// Timing: validBefore must outlast now plus a block-time buffer;
	// validAfter must not be in the future.
	now := time.Now().Unix()
	validBefore, _ := new(big.Int).SetString(authorization.ValidBefore, 10)
	if validBefore.Cmp(big.NewInt(now+6)) < 0 {
		return rejectV1("invalid_exact_evm_payload_authorization_valid_before", payer)
	}
	validAfter, _ := new(big.Int).SetString(authorization.ValidAfter, 10)
	if validAfter.Cmp(big.NewInt(now)) > 0 {
		return rejectV1("invalid_exact_evm_payload_authorization_valid_after", payer)
	}

	// Balance errors are tolerated (the RPC may lag); an observed
	// shortfall is not.
	if balance, err := f.signer.GetBalance(ctx, payer, assetInfo.Address); err == nil && balance.Cmp(requiredValue) < 0 {
		return rejectV1("insufficient_funds", payer)
	}

	signatureBytes, err := evm.HexToBytes(evmPayload.Signature)
	if err != nil {
		return rejectV1("invalid signature format", payer)
	}

	message, err := evm.EIP3009AuthorizationMessage(authorization)
	if err != nil {
		return rejectV1(err.Error(), payer)
	}

	valid, err := f.signer.VerifyTypedData(
		ctx,
		payer,
		evm.EIP3009Domain(config.ChainID, assetInfo.Address, tokenName, tokenVersion),
		evm.GetEIP3009EIP712Types(),
		"TransferWithAuthorization",
		message,
		signatureBytes,
	)
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("failed to verify signature: %w", err)
	}
	if !valid {
		return rejectV1("invalid_exact_evm_payload_signature", payer)
	}

	return x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// Settle executes a legacy exact payment: re-verify, then submit
// transferWithAuthorization and await the receipt.
func (f *ExactEvmFacilitatorV1) Settle(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (x402.SettleResponse, error) {
	failed := func(reason, txHash, payer string) (x402.SettleResponse, error) {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: reason,
			Transaction: txHash,
			Network:     requirements.Network,
			Payer:       payer,
		}, nil
	}

	verifyResp, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		return x402.SettleResponse{}, err
	}
	if !verifyResp.IsValid {
		return failed(verifyResp.InvalidReason, "", "")
	}

	evmPayload, err := evm.PayloadFromMap(payload.Payload)
	if err != nil {
		return failed(fmt.Sprintf("invalid payload: %v", err), "", "")
	}
	authorization := evmPayload.Authorization

	assetInfo, err := evm.GetAssetInfo(string(requirements.Network), requirements.Asset)
	if err != nil {
		return x402.SettleResponse{}, err
	}

	signatureBytes, err := evm.HexToBytes(evmPayload.Signature)
	if err != nil {
		return failed("invalid signature format", "", "")
	}
	if len(signatureBytes) != 65 {
		return failed("invalid signature length", "", "")
	}

	value, _ := new(big.Int).SetString(authorization.Value, 10)
	validAfter, _ := new(big.Int).SetString(authorization.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(authorization.ValidBefore, 10)
	nonceBytes, _ := evm.HexToBytes(authorization.Nonce)

	txHash, err := f.signer.WriteContract(
		ctx,
		assetInfo.Address,
		evm.TransferWithAuthorizationABI,
		evm.FunctionTransferWithAuthorization,
		authorization.From,
		authorization.To,
		value,
		validAfter,
		validBefore,
		[32]byte(nonceBytes),
		signatureBytes[64],
		[32]byte(signatureBytes[0:32]),
		[32]byte(signatureBytes[32:64]),
	)
	if err != nil {
		return failed(fmt.Sprintf("transaction_failed: %v", err), "", authorization.From)
	}

	receipt, err := f.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return failed(fmt.Sprintf("failed to get receipt: %v", err), txHash, authorization.From)
	}
	if receipt.Status != evm.TxStatusSuccess {
		return failed("invalid_transaction_state", txHash, authorization.From)
	}

	return x402.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     requirements.Network,
		Payer:       authorization.From,
	}, nil
}
