package facilitator

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/mechanisms/evm"
	"github.com/x402go/x402/types"
)

// ExactEvmSchemeConfig configures facilitator-side behavior for the exact
// EVM scheme.
type ExactEvmSchemeConfig struct {
	// DeployERC4337WithEIP6492 lets settlement deploy an undeployed smart
	// wallet via its ERC-6492 factory data before executing the transfer.
	DeployERC4337WithEIP6492 bool
}

// ExactEvmScheme verifies and settles exact-scheme EVM payments, handling
// both the EIP-3009 transferWithAuthorization flow and the Permit2 witness
// flow (routed by payload shape).
type ExactEvmScheme struct {
	signer evm.FacilitatorEvmSigner
	config *ExactEvmSchemeConfig
}

// NewExactEvmScheme creates a new facilitator-side exact EVM scheme.
// A nil config uses defaults (no smart-wallet deployment).
func NewExactEvmScheme(signer evm.FacilitatorEvmSigner, config *ExactEvmSchemeConfig) *ExactEvmScheme {
	if config == nil {
		config = &ExactEvmSchemeConfig{}
	}
	return &ExactEvmScheme{
		signer: signer,
		config: config,
	}
}

// Scheme returns the scheme identifier.
func (f *ExactEvmScheme) Scheme() string {
	return evm.SchemeExact
}

// Verify checks an exact EVM payment without executing it. Failures are
// reported as *x402.VerifyError values whose InvalidReason carries the
// stable machine-readable reason string.
func (f *ExactEvmScheme) Verify(
	ctx context.Context,
	payload types.PaymentPayload,
	requirements types.PaymentRequirements,
	fctx *x402.FacilitatorContext,
) (*x402.VerifyResponse, error) {
	if evm.IsPermit2Payload(payload.Payload) {
		permit2Payload, err := evm.Permit2PayloadFromMap(payload.Payload)
		if err != nil {
			return nil, x402.NewVerifyError(ErrInvalidPayload, "", err.Error())
		}
		return VerifyPermit2(ctx, f.signer, payload, requirements, permit2Payload, fctx)
	}

	return f.verifyEIP3009(ctx, payload, requirements)
}

func (f *ExactEvmScheme) verifyEIP3009(
	ctx context.Context,
	payload types.PaymentPayload,
	requirements types.PaymentRequirements,
) (*x402.VerifyResponse, error) {
	scheme, network := payload.EffectiveSchemeAndNetwork()
	if scheme != evm.SchemeExact || requirements.Scheme != evm.SchemeExact {
		return nil, x402.NewVerifyError(ErrInvalidScheme, "", "scheme mismatch")
	}
	if network != "" && network != string(requirements.Network) {
		return nil, x402.NewVerifyError(ErrNetworkMismatch, "", "network mismatch")
	}

	evmPayload, err := evm.PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, x402.NewVerifyError(ErrInvalidPayload, "", err.Error())
	}
	payer := evmPayload.Authorization.From

	if evmPayload.Signature == "" {
		return nil, x402.NewVerifyError(ErrMissingSignature, payer, "missing signature")
	}

	networkStr := string(requirements.Network)
	chainID, err := evm.GetEvmChainId(networkStr)
	if err != nil {
		return nil, x402.NewVerifyError(ErrFailedToGetNetworkConfig, payer, err.Error())
	}

	tokenAddress := requirements.Asset
	tokenName, tokenVersion := "", ""
	if requirements.Extra != nil {
		tokenName, _ = requirements.Extra["name"].(string)
		tokenVersion, _ = requirements.Extra["version"].(string)
	}
	if assetInfo, lookupErr := evm.GetAssetInfo(networkStr, requirements.Asset); lookupErr == nil {
		tokenAddress = assetInfo.Address
		if tokenName == "" {
			tokenName = assetInfo.Name
		}
		if tokenVersion == "" {
			tokenVersion = assetInfo.Version
		}
	} else if !evm.IsValidAddress(tokenAddress) {
		return nil, x402.NewVerifyError(ErrFailedToGetAssetInfo, payer, lookupErr.Error())
	}

	if !strings.EqualFold(evmPayload.Authorization.To, requirements.PayTo) {
		return nil, x402.NewVerifyError(ErrRecipientMismatch, payer, "recipient mismatch")
	}

	authValue, ok := new(big.Int).SetString(evmPayload.Authorization.Value, 10)
	if !ok {
		return nil, x402.NewVerifyError(ErrInvalidAuthorizationValue, payer, "invalid authorization value")
	}
	requiredValue, ok := new(big.Int).SetString(requirements.Amount, 10)
	if !ok {
		return nil, x402.NewVerifyError(ErrInvalidRequiredAmount, payer, "invalid required amount")
	}
	if authValue.Cmp(requiredValue) < 0 {
		return nil, x402.NewVerifyError(ErrInsufficientAmount, payer, "insufficient amount")
	}

	// Timing window
	now := time.Now().Unix()
	validAfter, ok := new(big.Int).SetString(evmPayload.Authorization.ValidAfter, 10)
	if !ok {
		return nil, x402.NewVerifyError(ErrInvalidPayload, payer, "invalid validAfter")
	}
	validBefore, ok := new(big.Int).SetString(evmPayload.Authorization.ValidBefore, 10)
	if !ok {
		return nil, x402.NewVerifyError(ErrInvalidPayload, payer, "invalid validBefore")
	}
	if validAfter.Cmp(big.NewInt(now)) > 0 {
		return nil, x402.NewVerifyError(ErrValidAfterInFuture, payer, "authorization not yet valid")
	}
	if validBefore.Cmp(big.NewInt(now)) <= 0 {
		return nil, x402.NewVerifyError(ErrValidBeforeExpired, payer, "authorization expired")
	}

	// Nonce must be unused on-chain
	nonceBytes, err := evm.HexToBytes(evmPayload.Authorization.Nonce)
	if err != nil || len(nonceBytes) != 32 {
		return nil, x402.NewVerifyError(ErrInvalidPayload, payer, "invalid nonce")
	}
	nonceUsed, err := f.signer.ReadContract(
		ctx,
		tokenAddress,
		evm.AuthorizationStateABI,
		evm.FunctionAuthorizationState,
		common.HexToAddress(payer),
		[32]byte(nonceBytes),
	)
	if err != nil {
		return nil, x402.NewVerifyError(ErrFailedToCheckNonce, payer, err.Error())
	}
	if used, ok := nonceUsed.(bool); ok && used {
		return nil, x402.NewVerifyError(ErrNonceAlreadyUsed, payer, "nonce already used")
	}

	// Balance check
	balance, err := f.signer.GetBalance(ctx, payer, tokenAddress)
	if err != nil {
		return nil, x402.NewVerifyError(ErrFailedToGetBalance, payer, err.Error())
	}
	if balance.Cmp(authValue) < 0 {
		return nil, x402.NewVerifyError(ErrInsufficientBalance, payer, "insufficient balance")
	}

	// Signature check (EOA via typed-data recovery; smart wallets via
	// EIP-1271 when the payer has code)
	signatureBytes, err := evm.HexToBytes(evmPayload.Signature)
	if err != nil {
		return nil, x402.NewVerifyError(ErrInvalidSignatureFormat, payer, err.Error())
	}

	valid, err := f.verifySignature(ctx, evmPayload.Authorization, signatureBytes, chainID, tokenAddress, tokenName, tokenVersion)
	if err != nil {
		return nil, x402.NewVerifyError(ErrFailedToVerifySignature, payer, err.Error())
	}
	if !valid {
		return nil, x402.NewVerifyError(ErrInvalidSignature, payer, "invalid signature")
	}

	return &x402.VerifyResponse{
		IsValid: true,
		Payer:   payer,
	}, nil
}

// Settle executes an exact EVM payment. The EIP-3009 path submits
// transferWithAuthorization; Permit2 payloads route through SettlePermit2.
// Settle re-verifies defensively before broadcasting.
func (f *ExactEvmScheme) Settle(
	ctx context.Context,
	payload types.PaymentPayload,
	requirements types.PaymentRequirements,
	fctx *x402.FacilitatorContext,
) (*x402.SettleResponse, error) {
	if evm.IsPermit2Payload(payload.Payload) {
		permit2Payload, err := evm.Permit2PayloadFromMap(payload.Payload)
		if err != nil {
			return nil, x402.NewSettleError(ErrInvalidPayload, "", requirements.Network, "", err.Error())
		}
		return SettlePermit2(ctx, f.signer, payload, requirements, permit2Payload, fctx)
	}

	verifyResp, err := f.verifyEIP3009(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}
	payer := verifyResp.Payer

	evmPayload, err := evm.PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, x402.NewSettleError(ErrInvalidPayload, payer, requirements.Network, "", err.Error())
	}

	tokenAddress := requirements.Asset
	if assetInfo, lookupErr := evm.GetAssetInfo(string(requirements.Network), requirements.Asset); lookupErr == nil {
		tokenAddress = assetInfo.Address
	}

	signatureBytes, err := evm.HexToBytes(evmPayload.Signature)
	if err != nil || len(signatureBytes) != 65 {
		return nil, x402.NewSettleError(ErrFailedToParseSignature, payer, requirements.Network, "", "invalid signature encoding")
	}

	value, _ := new(big.Int).SetString(evmPayload.Authorization.Value, 10)
	validAfter, _ := new(big.Int).SetString(evmPayload.Authorization.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(evmPayload.Authorization.ValidBefore, 10)
	nonceBytes, _ := evm.HexToBytes(evmPayload.Authorization.Nonce)

	txHash, err := f.signer.WriteContract(
		ctx,
		tokenAddress,
		evm.TransferWithAuthorizationABI,
		evm.FunctionTransferWithAuthorization,
		evmPayload.Authorization.From,
		evmPayload.Authorization.To,
		value,
		validAfter,
		validBefore,
		[32]byte(nonceBytes),
		signatureBytes[64],
		[32]byte(signatureBytes[0:32]),
		[32]byte(signatureBytes[32:64]),
	)
	if err != nil {
		return nil, x402.NewSettleError(ErrFailedToExecuteTransfer, payer, requirements.Network, "", parsePermit2Error(err))
	}

	receipt, err := f.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, x402.NewSettleError(ErrFailedToGetReceipt, payer, requirements.Network, txHash, err.Error())
	}
	if receipt.Status != evm.TxStatusSuccess {
		return nil, x402.NewSettleError(ErrTransactionFailed, payer, requirements.Network, txHash, "transaction reverted")
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     requirements.Network,
		Payer:       payer,
	}, nil
}

// verifySignature recovers the typed-data signer for EOAs, falling back to
// an EIP-1271 isValidSignature call when the payer address has code.
func (f *ExactEvmScheme) verifySignature(
	ctx context.Context,
	authorization evm.ExactEIP3009Authorization,
	signature []byte,
	chainID *big.Int,
	verifyingContract string,
	tokenName string,
	tokenVersion string,
) (bool, error) {
	message, err := evm.EIP3009AuthorizationMessage(authorization)
	if err != nil {
		return false, err
	}

	domain := evm.EIP3009Domain(chainID, verifyingContract, tokenName, tokenVersion)
	valid, err := f.signer.VerifyTypedData(ctx, authorization.From, domain, evm.GetEIP3009EIP712Types(), "TransferWithAuthorization", message, signature)
	if err == nil && valid {
		return true, nil
	}

	// Smart wallet path: validate deployed wallets (EIP-1271) and, when
	// configured, counterfactual ERC-6492 signatures via the universal
	// validator; settlement deploys the wallet.
	if len(signature) == 65 && !isERC6492Signature(signature) {
		return valid, err
	}
	if !f.config.DeployERC4337WithEIP6492 && isERC6492Signature(signature) {
		return false, fmt.Errorf("%s", evm.ErrUndeployedSmartWallet)
	}

	hash, hashErr := evm.HashEIP3009Authorization(authorization, chainID, verifyingContract, tokenName, tokenVersion)
	if hashErr != nil {
		return false, hashErr
	}

	return evm.VerifyERC6492Signature(ctx, f.signer, authorization.From, [32]byte(hash), signature)
}

// isERC6492Signature reports whether the signature carries the ERC-6492
// wrapper suffix.
func isERC6492Signature(signature []byte) bool {
	if len(signature) < 32 {
		return false
	}
	suffix := fmt.Sprintf("0x%x", signature[len(signature)-32:])
	return strings.EqualFold(suffix, evm.ERC6492MagicValue)
}
