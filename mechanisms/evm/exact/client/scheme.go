package client

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/x402go/x402/extensions/eip2612gassponsor"
	"github.com/x402go/x402/mechanisms/evm"
	"github.com/x402go/x402/types"
)

// Error prefixes for payload-creation failures.
const (
	ErrFailedToSignPermit2Authorization = "failed_to_sign_permit2_authorization"
)

// ContractReadingSigner is the optional client-signer surface the
// gas-sponsorship paths need: reading the token's EIP-2612 nonce and the
// payer's current Permit2 allowance. Signers without chain access simply
// skip those paths.
type ContractReadingSigner interface {
	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)
}

// Eip2612Signer combines typed-data signing with contract reads, the full
// surface SignEip2612Permit needs.
type Eip2612Signer interface {
	evm.ClientEvmSigner
	ContractReadingSigner
}

// ExactEvmScheme builds exact-scheme EVM payment payloads, routing between
// the EIP-3009 transferWithAuthorization flow (default) and the Permit2
// witness flow based on the requirement's assetTransferMethod extra.
type ExactEvmScheme struct {
	signer evm.ClientEvmSigner
}

// NewExactEvmScheme creates a new ExactEvmScheme
func NewExactEvmScheme(signer evm.ClientEvmSigner) *ExactEvmScheme {
	return &ExactEvmScheme{
		signer: signer,
	}
}

// Scheme returns the scheme identifier
func (c *ExactEvmScheme) Scheme() string {
	return evm.SchemeExact
}

// CreatePaymentPayload creates a payment payload for the exact scheme (V2).
// The returned payload carries x402Version and the signed authorization;
// the caller wraps it with accepted/resource/extensions.
func (c *ExactEvmScheme) CreatePaymentPayload(
	ctx context.Context,
	requirements types.PaymentRequirements,
) (types.PaymentPayload, error) {
	return c.CreatePaymentPayloadWithExtensions(ctx, requirements, nil)
}

// CreatePaymentPayloadWithExtensions creates a payment payload and, when
// the server advertised a gas-sponsorship extension the signer can satisfy,
// attaches the corresponding extension data to the payload.
func (c *ExactEvmScheme) CreatePaymentPayloadWithExtensions(
	ctx context.Context,
	requirements types.PaymentRequirements,
	serverExtensions map[string]interface{},
) (types.PaymentPayload, error) {
	networkStr := string(requirements.Network)
	if _, err := evm.GetEvmChainId(networkStr); err != nil {
		return types.PaymentPayload{}, fmt.Errorf("unsupported network: %s", requirements.Network)
	}

	method := ""
	if requirements.Extra != nil {
		if m, ok := requirements.Extra["assetTransferMethod"].(string); ok {
			method = m
		}
	}

	if method == "permit2" {
		payload, err := CreatePermit2Payload(ctx, c.signer, requirements)
		if err != nil {
			return types.PaymentPayload{}, err
		}
		if info := c.maybeEip2612Permit(ctx, requirements, serverExtensions); info != nil {
			payload.Extensions = map[string]interface{}{
				eip2612gassponsor.EIP2612GasSponsoring: map[string]interface{}{
					"info": info,
				},
			}
		}
		return payload, nil
	}

	return c.createEIP3009Payload(ctx, requirements)
}

// createEIP3009Payload builds and signs a TransferWithAuthorization payload.
func (c *ExactEvmScheme) createEIP3009Payload(
	ctx context.Context,
	requirements types.PaymentRequirements,
) (types.PaymentPayload, error) {
	networkStr := string(requirements.Network)

	chainID, err := evm.GetEvmChainId(networkStr)
	if err != nil {
		return types.PaymentPayload{}, err
	}

	tokenAddress, tokenName, tokenVersion, err := resolveTokenMetadata(networkStr, requirements)
	if err != nil {
		return types.PaymentPayload{}, err
	}

	value, ok := new(big.Int).SetString(requirements.Amount, 10)
	if !ok {
		return types.PaymentPayload{}, fmt.Errorf("invalid amount: %s", requirements.Amount)
	}

	nonce, err := evm.CreateNonce()
	if err != nil {
		return types.PaymentPayload{}, err
	}

	validAfter, validBefore := evm.CreateValidityWindow(time.Hour)

	authorization := evm.ExactEIP3009Authorization{
		From:        c.signer.Address(),
		To:          requirements.PayTo,
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       nonce,
	}

	signature, err := c.signAuthorization(ctx, authorization, chainID, tokenAddress, tokenName, tokenVersion)
	if err != nil {
		return types.PaymentPayload{}, fmt.Errorf("failed to sign authorization: %w", err)
	}

	evmPayload := &evm.ExactEIP3009Payload{
		Signature:     evm.BytesToHex(signature),
		Authorization: authorization,
	}

	return types.PaymentPayload{
		X402Version: 2,
		Payload:     evmPayload.ToMap(),
	}, nil
}

// resolveTokenMetadata resolves the asset's address and EIP-712 domain
// name/version: explicit values in the requirement's extra win, the
// network's registered asset table fills the rest.
func resolveTokenMetadata(networkStr string, requirements types.PaymentRequirements) (address, name, version string, err error) {
	address = requirements.Asset
	if requirements.Extra != nil {
		if n, ok := requirements.Extra["name"].(string); ok {
			name = n
		}
		if v, ok := requirements.Extra["version"].(string); ok {
			version = v
		}
	}

	if name != "" && version != "" && evm.IsValidAddress(address) {
		return evm.NormalizeAddress(address), name, version, nil
	}

	assetInfo, lookupErr := evm.GetAssetInfo(networkStr, requirements.Asset)
	if lookupErr != nil {
		if evm.IsValidAddress(address) {
			// Explicit address on an unregistered network; sign with
			// whatever metadata the server provided.
			return evm.NormalizeAddress(address), name, version, nil
		}
		return "", "", "", lookupErr
	}

	if name == "" {
		name = assetInfo.Name
	}
	if version == "" {
		version = assetInfo.Version
	}
	return assetInfo.Address, name, version, nil
}

// maybeEip2612Permit signs an EIP-2612 permit for the Permit2 contract when
// the server advertised the eip2612GasSponsoring extension, the signer can
// read chain state, the token metadata is known, and the payer's current
// Permit2 allowance doesn't cover the payment. Any failure just skips the
// sponsorship path.
func (c *ExactEvmScheme) maybeEip2612Permit(
	ctx context.Context,
	requirements types.PaymentRequirements,
	serverExtensions map[string]interface{},
) *eip2612gassponsor.Info {
	if serverExtensions == nil {
		return nil
	}
	if _, ok := serverExtensions[eip2612gassponsor.EIP2612GasSponsoring]; !ok {
		return nil
	}

	var tokenName, tokenVersion string
	if requirements.Extra != nil {
		tokenName, _ = requirements.Extra["name"].(string)
		tokenVersion, _ = requirements.Extra["version"].(string)
	}
	if tokenName == "" || tokenVersion == "" {
		return nil
	}

	signer, ok := c.signer.(Eip2612Signer)
	if !ok {
		return nil
	}

	address, abi, functionName, args := GetPermit2AllowanceReadParams(Permit2AllowanceParams{
		TokenAddress: requirements.Asset,
		OwnerAddress: c.signer.Address(),
	})
	result, err := signer.ReadContract(ctx, address, abi, functionName, args...)
	if err != nil {
		return nil
	}
	allowance, ok := result.(*big.Int)
	if !ok {
		return nil
	}
	if required, ok := new(big.Int).SetString(requirements.Amount, 10); ok && allowance.Cmp(required) >= 0 {
		return nil
	}

	chainID, err := evm.GetEvmChainId(string(requirements.Network))
	if err != nil {
		return nil
	}

	timeout := requirements.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = evm.DefaultValidityPeriod
	}
	deadline := fmt.Sprintf("%d", time.Now().Unix()+int64(timeout))

	info, err := SignEip2612Permit(ctx, signer, requirements.Asset, tokenName, tokenVersion, chainID, deadline)
	if err != nil {
		return nil
	}
	return info
}

// signAuthorization signs the EIP-3009 authorization using the shared
// typed-data helpers.
func (c *ExactEvmScheme) signAuthorization(
	ctx context.Context,
	authorization evm.ExactEIP3009Authorization,
	chainID *big.Int,
	verifyingContract string,
	tokenName string,
	tokenVersion string,
) ([]byte, error) {
	message, err := evm.EIP3009AuthorizationMessage(authorization)
	if err != nil {
		return nil, err
	}

	return c.signer.SignTypedData(
		ctx,
		evm.EIP3009Domain(chainID, verifyingContract, tokenName, tokenVersion),
		evm.GetEIP3009EIP712Types(),
		"TransferWithAuthorization",
		message,
	)
}
