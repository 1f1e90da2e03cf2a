package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	x402 "github.com/x402go/x402"
)

// ExactEvmFacilitator is the facilitator half of the exact EVM mechanism
// for the registry: it checks an EIP-3009 authorization against the
// accepted requirements and on-chain state, then broadcasts
// transferWithAuthorization. (The richer variant with Permit2 routing and
// gas sponsorship lives in mechanisms/evm/exact/facilitator.)
type ExactEvmFacilitator struct {
	signer FacilitatorEvmSigner
}

// NewExactEvmFacilitator creates the facilitator-side exact EVM mechanism.
func NewExactEvmFacilitator(signer FacilitatorEvmSigner) *ExactEvmFacilitator {
	return &ExactEvmFacilitator{signer: signer}
}

var _ x402.SchemeNetworkFacilitator = (*ExactEvmFacilitator)(nil)

// Scheme returns the scheme identifier.
func (f *ExactEvmFacilitator) Scheme() string {
	return SchemeExact
}

// GetExtra returns scheme metadata for SupportedKind.Extra; none here.
func (f *ExactEvmFacilitator) GetExtra(network x402.Network) map[string]interface{} {
	return nil
}

// invalidPayment is the non-error rejection shape: the request was
// well-formed, the payment just doesn't hold up.
func invalidPayment(reason string) (x402.VerifyResponse, error) {
	return x402.VerifyResponse{IsValid: false, InvalidReason: reason}, nil
}

// Verify checks an exact EVM payment without executing it. The checks
// run cheapest-first: wire shape, requirement matching, amounts, then
// the on-chain reads (nonce state, balance), and the signature last.
func (f *ExactEvmFacilitator) Verify(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (x402.VerifyResponse, error) {
	if payload.X402Version != 2 {
		return invalidPayment("v2 only supports x402 version 2")
	}

	// v2 carries scheme/network under Accepted.
	scheme, network := payload.EffectiveSchemeAndNetwork()
	if scheme != SchemeExact {
		return invalidPayment("invalid scheme")
	}
	if network != string(requirements.Network) {
		return invalidPayment("network mismatch")
	}

	evmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return invalidPayment(fmt.Sprintf("invalid payload: %v", err))
	}
	authorization := evmPayload.Authorization

	if evmPayload.Signature == "" {
		return invalidPayment("missing signature")
	}

	networkStr := string(requirements.Network)
	config, err := GetNetworkConfig(networkStr)
	if err != nil {
		return x402.VerifyResponse{}, err
	}
	assetInfo, err := GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return x402.VerifyResponse{}, err
	}

	if !strings.EqualFold(authorization.To, requirements.PayTo) {
		return invalidPayment("recipient mismatch")
	}

	authValue, ok := new(big.Int).SetString(authorization.Value, 10)
	if !ok {
		return invalidPayment("invalid authorization value")
	}
	requiredValue, ok := new(big.Int).SetString(requirements.Amount, 10)
	if !ok {
		return invalidPayment(fmt.Sprintf("invalid required amount: %s", requirements.Amount))
	}
	if authValue.Cmp(requiredValue) < 0 {
		return invalidPayment("insufficient amount")
	}

	// On-chain state: the nonce must be unused and the payer funded.
	nonceUsed, err := f.checkNonceUsed(ctx, authorization.From, authorization.Nonce, assetInfo.Address)
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("failed to check nonce: %w", err)
	}
	if nonceUsed {
		return invalidPayment("nonce already used")
	}

	balance, err := f.signer.GetBalance(ctx, authorization.From, assetInfo.Address)
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("failed to get balance: %w", err)
	}
	if balance.Cmp(authValue) < 0 {
		return invalidPayment("insufficient balance")
	}

	// The EIP-712 domain name/version come from the requirement's extra
	// when the server pinned them, else from the asset table.
	tokenName, tokenVersion := assetInfo.Name, assetInfo.Version
	if requirements.Extra != nil {
		if name, ok := requirements.Extra["name"].(string); ok {
			tokenName = name
		}
		if version, ok := requirements.Extra["version"].(string); ok {
			tokenVersion = version
		}
	}

	signatureBytes, err := HexToBytes(evmPayload.Signature)
	if err != nil {
		return invalidPayment("invalid signature format")
	}

	valid, err := f.verifySignature(ctx, authorization, signatureBytes, config.ChainID, assetInfo.Address, tokenName, tokenVersion)
	if err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("failed to verify signature: %w", err)
	}
	if !valid {
		return invalidPayment("invalid signature")
	}

	return x402.VerifyResponse{IsValid: true, Payer: authorization.From}, nil
}

// failedSettle is the non-error settlement rejection shape.
func failedSettle(reason string, network x402.Network) (x402.SettleResponse, error) {
	return x402.SettleResponse{Success: false, ErrorReason: reason, Network: network}, nil
}

// Settle executes a verified payment: re-verify defensively, then submit
// transferWithAuthorization with the split signature and wait for the
// receipt.
func (f *ExactEvmFacilitator) Settle(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (x402.SettleResponse, error) {
	verifyResp, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		return x402.SettleResponse{}, err
	}
	if !verifyResp.IsValid {
		return failedSettle(verifyResp.InvalidReason, requirements.Network)
	}

	evmPayload, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return failedSettle(fmt.Sprintf("invalid payload: %v", err), requirements.Network)
	}
	authorization := evmPayload.Authorization

	assetInfo, err := GetAssetInfo(string(requirements.Network), requirements.Asset)
	if err != nil {
		return x402.SettleResponse{}, err
	}

	signatureBytes, err := HexToBytes(evmPayload.Signature)
	if err != nil {
		return failedSettle("invalid signature format", requirements.Network)
	}
	if len(signatureBytes) != 65 {
		return failedSettle("invalid signature length", requirements.Network)
	}

	value, _ := new(big.Int).SetString(authorization.Value, 10)
	validAfter, _ := new(big.Int).SetString(authorization.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(authorization.ValidBefore, 10)
	nonceBytes, _ := HexToBytes(authorization.Nonce)

	txHash, err := f.signer.WriteContract(
		ctx,
		assetInfo.Address,
		TransferWithAuthorizationABI,
		FunctionTransferWithAuthorization,
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
		return failedSettle(fmt.Sprintf("failed to execute transfer: %v", err), requirements.Network)
	}

	receipt, err := f.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: fmt.Sprintf("failed to get receipt: %v", err),
			Transaction: txHash,
			Network:     requirements.Network,
		}, nil
	}
	if receipt.Status != TxStatusSuccess {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: "transaction failed",
			Transaction: txHash,
			Network:     requirements.Network,
		}, nil
	}

	return x402.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     requirements.Network,
		Payer:       authorization.From,
	}, nil
}

// checkNonceUsed reads the token's authorizationState for (payer, nonce).
func (f *ExactEvmFacilitator) checkNonceUsed(ctx context.Context, from string, nonce string, tokenAddress string) (bool, error) {
	nonceBytes, err := HexToBytes(nonce)
	if err != nil || len(nonceBytes) != 32 {
		return false, fmt.Errorf("invalid nonce format: %s", nonce)
	}

	result, err := f.signer.ReadContract(
		ctx,
		tokenAddress,
		AuthorizationStateABI,
		FunctionAuthorizationState,
		common.HexToAddress(from),
		[32]byte(nonceBytes),
	)
	if err != nil {
		return false, err
	}

	used, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected authorizationState result type: %T", result)
	}
	return used, nil
}

// verifySignature validates the typed-data signature: local recovery for
// plain 65-byte EOA signatures, the ERC-6492 universal validator for
// smart wallets (deployed or counterfactual).
func (f *ExactEvmFacilitator) verifySignature(
	ctx context.Context,
	authorization ExactEIP3009Authorization,
	signature []byte,
	chainID *big.Int,
	verifyingContract string,
	tokenName string,
	tokenVersion string,
) (bool, error) {
	message, err := EIP3009AuthorizationMessage(authorization)
	if err != nil {
		return false, err
	}

	domain := EIP3009Domain(chainID, verifyingContract, tokenName, tokenVersion)
	valid, err := f.signer.VerifyTypedData(ctx, authorization.From, domain, GetEIP3009EIP712Types(), "TransferWithAuthorization", message, signature)
	if err == nil && valid {
		return true, nil
	}

	// Non-standard signature length means a smart wallet; hand the whole
	// thing to the universal validator.
	if len(signature) != 65 {
		hash, hashErr := HashEIP3009Authorization(authorization, chainID, verifyingContract, tokenName, tokenVersion)
		if hashErr != nil {
			return false, hashErr
		}
		var hash32 [32]byte
		copy(hash32[:], hash)
		return VerifyERC6492Signature(ctx, f.signer, authorization.From, hash32, signature)
	}

	return valid, err
}
