package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP-712 hashing. Every authorization this mechanism signs or verifies —
// EIP-3009 TransferWithAuthorization, Permit2 PermitWitnessTransferFrom,
// EIP-2612 Permit — reduces to the same digest construction:
// keccak256(0x19 0x01 || domainSeparator || structHash). HashTypedData is
// that construction; the rest of this file binds it to the concrete
// message shapes.

// toAPITypedData converts this package's domain/types/message triple into
// go-ethereum's apitypes representation, filling in the standard
// EIP712Domain type when the caller didn't declare one.
func toAPITypedData(
	domain TypedDataDomain,
	fieldTypes map[string][]TypedDataField,
	primaryType string,
	message map[string]interface{},
) apitypes.TypedData {
	typedData := apitypes.TypedData{
		Types:       make(apitypes.Types, len(fieldTypes)+1),
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: message,
	}

	for name, fields := range fieldTypes {
		converted := make([]apitypes.Type, len(fields))
		for i, field := range fields {
			converted[i] = apitypes.Type{Name: field.Name, Type: field.Type}
		}
		typedData.Types[name] = converted
	}

	if _, declared := typedData.Types["EIP712Domain"]; !declared {
		typedData.Types["EIP712Domain"] = []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		}
	}

	return typedData
}

// HashTypedData computes the EIP-712 digest for the given domain, type
// definitions, and message. The result is the 32-byte value signers sign
// and verifiers recover against.
func HashTypedData(
	domain TypedDataDomain,
	fieldTypes map[string][]TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	typedData := toAPITypedData(domain, fieldTypes, primaryType, message)

	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	digest := make([]byte, 0, 2+len(domainSeparator)+len(structHash))
	digest = append(digest, 0x19, 0x01)
	digest = append(digest, domainSeparator...)
	digest = append(digest, structHash...)

	return crypto.Keccak256(digest), nil
}

// parseUint256 parses a decimal string field of an authorization,
// reporting which field was malformed.
func parseUint256(field, value string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %s", field, value)
	}
	return parsed, nil
}

// checksummed normalizes an address into its EIP-55 checksummed form, the
// representation apitypes expects in address-typed message fields.
func checksummed(address string) string {
	return common.HexToAddress(address).Hex()
}

// HashEIP3009Authorization computes the digest of a
// TransferWithAuthorization message under the token's EIP-712 domain
// (name/version come from the token contract, not from this module).
func HashEIP3009Authorization(
	authorization ExactEIP3009Authorization,
	chainID *big.Int,
	verifyingContract string,
	tokenName string,
	tokenVersion string,
) ([]byte, error) {
	value, err := parseUint256("authorization value", authorization.Value)
	if err != nil {
		return nil, err
	}
	validAfter, err := parseUint256("validAfter", authorization.ValidAfter)
	if err != nil {
		return nil, err
	}
	validBefore, err := parseUint256("validBefore", authorization.ValidBefore)
	if err != nil {
		return nil, err
	}
	nonceBytes, err := HexToBytes(authorization.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}

	domain := TypedDataDomain{
		Name:              tokenName,
		Version:           tokenVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}

	fieldTypes := map[string][]TypedDataField{
		"TransferWithAuthorization": {
			{Name: "from", Type: "address"},
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "validAfter", Type: "uint256"},
			{Name: "validBefore", Type: "uint256"},
			{Name: "nonce", Type: "bytes32"},
		},
	}

	message := map[string]interface{}{
		"from":        checksummed(authorization.From),
		"to":          checksummed(authorization.To),
		"value":       value,
		"validAfter":  validAfter,
		"validBefore": validBefore,
		"nonce":       nonceBytes,
	}

	return HashTypedData(domain, fieldTypes, "TransferWithAuthorization", message)
}

// HashPermit2Authorization computes the digest of a
// PermitWitnessTransferFrom message carrying the x402 witness. Permit2's
// domain is fixed: name "Permit2", no version, the canonical contract as
// verifier.
func HashPermit2Authorization(
	authorization Permit2Authorization,
	chainID *big.Int,
) ([]byte, error) {
	amount, err := parseUint256("permitted amount", authorization.Permitted.Amount)
	if err != nil {
		return nil, err
	}
	nonce, err := parseUint256("nonce", authorization.Nonce)
	if err != nil {
		return nil, err
	}
	deadline, err := parseUint256("deadline", authorization.Deadline)
	if err != nil {
		return nil, err
	}
	validAfter, err := parseUint256("validAfter", authorization.Witness.ValidAfter)
	if err != nil {
		return nil, err
	}
	extraBytes, err := HexToBytes(authorization.Witness.Extra)
	if err != nil {
		return nil, fmt.Errorf("invalid witness extra: %w", err)
	}

	domain := TypedDataDomain{
		Name:              "Permit2",
		ChainID:           chainID,
		VerifyingContract: PERMIT2Address,
	}

	message := map[string]interface{}{
		"permitted": map[string]interface{}{
			"token":  checksummed(authorization.Permitted.Token),
			"amount": amount,
		},
		"spender":  checksummed(authorization.Spender),
		"nonce":    nonce,
		"deadline": deadline,
		"witness": map[string]interface{}{
			"extra":      extraBytes,
			"to":         checksummed(authorization.Witness.To),
			"validAfter": validAfter,
		},
	}

	return HashTypedData(domain, GetPermit2EIP712Types(), "PermitWitnessTransferFrom", message)
}

// GetEIP3009EIP712Types returns the EIP-712 type definitions for
// TransferWithAuthorization, shared by every signer and verifier of the
// flow so the type map is defined exactly once.
func GetEIP3009EIP712Types() map[string][]TypedDataField {
	return map[string][]TypedDataField{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"TransferWithAuthorization": {
			{Name: "from", Type: "address"},
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "validAfter", Type: "uint256"},
			{Name: "validBefore", Type: "uint256"},
			{Name: "nonce", Type: "bytes32"},
		},
	}
}

// EIP3009AuthorizationMessage renders an authorization as the typed-data
// message map for signing or verification.
func EIP3009AuthorizationMessage(authorization ExactEIP3009Authorization) (map[string]interface{}, error) {
	value, err := parseUint256("authorization value", authorization.Value)
	if err != nil {
		return nil, err
	}
	validAfter, err := parseUint256("validAfter", authorization.ValidAfter)
	if err != nil {
		return nil, err
	}
	validBefore, err := parseUint256("validBefore", authorization.ValidBefore)
	if err != nil {
		return nil, err
	}
	nonceBytes, err := HexToBytes(authorization.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}

	return map[string]interface{}{
		"from":        authorization.From,
		"to":          authorization.To,
		"value":       value,
		"validAfter":  validAfter,
		"validBefore": validBefore,
		"nonce":       nonceBytes,
	}, nil
}

// EIP3009Domain builds the token's EIP-712 domain for the flow.
func EIP3009Domain(chainID *big.Int, verifyingContract, tokenName, tokenVersion string) TypedDataDomain {
	return TypedDataDomain{
		Name:              tokenName,
		Version:           tokenVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}
}
