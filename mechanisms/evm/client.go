package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	x402 "github.com/x402go/x402"
)

// ExactEvmClient is the client half of the exact EVM mechanism: given
// accepted requirements it builds an EIP-3009 TransferWithAuthorization
// and has the injected signer sign it. One instance registered under
// eip155:* covers every EVM chain.
type ExactEvmClient struct {
	signer ClientEvmSigner
}

// NewExactEvmClient creates the client-side exact EVM mechanism.
func NewExactEvmClient(signer ClientEvmSigner) *ExactEvmClient {
	return &ExactEvmClient{signer: signer}
}

var _ x402.SchemeNetworkClient = (*ExactEvmClient)(nil)

// Scheme returns the scheme identifier.
func (c *ExactEvmClient) Scheme() string {
	return SchemeExact
}

// CreatePaymentPayload builds and signs the authorization for the
// selected requirements. The returned partial payload carries just the
// version and the signed body; the core client wraps it with
// accepted/resource/extensions.
func (c *ExactEvmClient) CreatePaymentPayload(
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
	assetInfo, err := GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	// Amount is already atomic by the time requirements reach a client.
	value, ok := new(big.Int).SetString(requirements.Amount, 10)
	if !ok {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid amount: %s", requirements.Amount)
	}

	nonce, err := CreateNonce()
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	// validAfter is backdated for clock skew; the window runs an hour.
	validAfter, validBefore := CreateValidityWindow(time.Hour)

	authorization := ExactEIP3009Authorization{
		From:        c.signer.Address(),
		To:          requirements.PayTo,
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       nonce,
	}

	// Domain name/version: the server's pinned values win over the asset
	// table.
	tokenName, tokenVersion := assetInfo.Name, assetInfo.Version
	if requirements.Extra != nil {
		if name, ok := requirements.Extra["name"].(string); ok {
			tokenName = name
		}
		if version, ok := requirements.Extra["version"].(string); ok {
			tokenVersion = version
		}
	}

	message, err := EIP3009AuthorizationMessage(authorization)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	signature, err := c.signer.SignTypedData(
		ctx,
		EIP3009Domain(config.ChainID, assetInfo.Address, tokenName, tokenVersion),
		GetEIP3009EIP712Types(),
		"TransferWithAuthorization",
		message,
	)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to sign authorization: %w", err)
	}

	signed := &ExactEIP3009Payload{
		Signature:     BytesToHex(signature),
		Authorization: authorization,
	}

	return x402.PartialPaymentPayload{
		X402Version: version,
		Payload:     signed.ToMap(),
	}, nil
}
