package v1

import (
	"context"
	"fmt"
	"math/big"
	"time"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/mechanisms/evm"
)

// ExactEvmClientV1 is the legacy (protocol v1) client half of the exact
// EVM mechanism. Same EIP-3009 flow as v2, with the v1 quirks: bare
// network aliases, the amount in maxAmountRequired, and a tighter
// validity window defaulting to ten minutes.
type ExactEvmClientV1 struct {
	signer evm.ClientEvmSigner
}

// NewExactEvmClientV1 creates the legacy client mechanism.
func NewExactEvmClientV1(signer evm.ClientEvmSigner) *ExactEvmClientV1 {
	return &ExactEvmClientV1{signer: signer}
}

var _ x402.SchemeNetworkClient = (*ExactEvmClientV1)(nil)

// Scheme returns the scheme identifier.
func (c *ExactEvmClientV1) Scheme() string {
	return evm.SchemeExact
}

// v1Amount reads the amount a v1 requirement asks for:
// maxAmountRequired, with Amount as the compatibility fallback.
func v1Amount(requirements x402.PaymentRequirements) (*big.Int, error) {
	amountStr := requirements.MaxAmountRequired
	if amountStr == "" {
		amountStr = requirements.Amount
	}

	value, ok := new(big.Int).SetString(amountStr, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", amountStr)
	}
	return value, nil
}

// v1ValidityWindow computes the legacy window: validAfter ten minutes
// back for clock skew, validBefore at the requirement's timeout (ten
// minutes when unset).
func v1ValidityWindow(timeoutSeconds int) (validAfter, validBefore *big.Int) {
	now := time.Now().Unix()

	timeout := int64(600)
	if timeoutSeconds > 0 {
		timeout = int64(timeoutSeconds)
	}

	return big.NewInt(now - 600), big.NewInt(now + timeout)
}

// CreatePaymentPayload builds and signs a legacy exact payment. The core
// client copies scheme/network to the payload's top level, as the v1
// wire format demands.
func (c *ExactEvmClientV1) CreatePaymentPayload(
	ctx context.Context,
	version int,
	requirements x402.PaymentRequirements,
) (x402.PartialPaymentPayload, error) {
	if version != 1 {
		return x402.PartialPaymentPayload{}, fmt.Errorf("v1 only supports x402 version 1, got %d", version)
	}

	networkStr := string(requirements.Network)
	if !evm.IsValidNetwork(networkStr) {
		return x402.PartialPaymentPayload{}, fmt.Errorf("unsupported network: %s", requirements.Network)
	}
	config, err := evm.GetNetworkConfig(networkStr)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}
	assetInfo, err := evm.GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	value, err := v1Amount(requirements)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	nonce, err := evm.CreateNonce()
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	validAfter, validBefore := v1ValidityWindow(requirements.MaxTimeoutSeconds)

	authorization := evm.ExactEIP3009Authorization{
		From:        c.signer.Address(),
		To:          requirements.PayTo,
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       nonce,
	}

	tokenName, tokenVersion := assetInfo.Name, assetInfo.Version
	if requirements.Extra != nil {
		if name, ok := requirements.Extra["name"].(string); ok {
			tokenName = name
		}
		if version, ok := requirements.Extra["version"].(string); ok {
			tokenVersion = version
		}
	}

	message, err := evm.EIP3009AuthorizationMessage(authorization)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	signature, err := c.signer.SignTypedData(
		ctx,
		evm.EIP3009Domain(config.ChainID, assetInfo.Address, tokenName, tokenVersion),
		evm.GetEIP3009EIP712Types(),
		"TransferWithAuthorization",
		message,
	)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to sign authorization: %w", err)
	}

	signed := &evm.ExactEIP3009Payload{
		Signature:     evm.BytesToHex(signature),
		Authorization: authorization,
	}

	return x402.PartialPaymentPayload{
		X402Version: 1,
		Payload:     signed.ToMap(),
	}, nil
}
