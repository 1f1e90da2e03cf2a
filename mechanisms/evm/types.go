package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
)

// The exact EVM scheme moves value through one of two signed
// authorizations. EIP-3009 transferWithAuthorization is the native path
// for tokens that support it (USDC); Permit2 + x402Permit2Proxy is the
// universal fallback for any ERC-20. Both travel inside
// PaymentPayload.Payload as a scheme-specific map; the structs here are
// the typed views of that map, and the *FromMap/ToMap helpers convert at
// the boundary.

// AssetTransferMethod selects which authorization a requirement asks the
// client to sign (requirements carry it in extra.assetTransferMethod).
type AssetTransferMethod string

const (
	AssetTransferMethodEIP3009 AssetTransferMethod = "eip3009"
	AssetTransferMethodPermit2 AssetTransferMethod = "permit2"
)

// ============================================================================
// EIP-3009
// ============================================================================

// ExactEIP3009Authorization is the TransferWithAuthorization message: a
// one-shot transfer the token contract executes when presented with the
// holder's signature. All numeric fields are decimal strings; the nonce
// is 32 bytes of hex.
type ExactEIP3009Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactEIP3009Payload is the signed authorization as it travels on the
// wire.
type ExactEIP3009Payload struct {
	Signature     string                    `json:"signature,omitempty"`
	Authorization ExactEIP3009Authorization `json:"authorization"`
}

// ============================================================================
// Permit2
// ============================================================================

// Permit2TokenPermissions names the token and amount a Permit2 signature
// permits.
type Permit2TokenPermissions struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// Permit2Witness is the x402Permit2Proxy witness bound into the
// signature: the proxy enforces on-chain that funds can only reach To and
// only after ValidAfter. The upper time bound is Permit2's own deadline,
// not a witness field.
type Permit2Witness struct {
	To         string `json:"to"`
	ValidAfter string `json:"validAfter"`
	Extra      string `json:"extra"`
}

// Permit2Authorization is the PermitWitnessTransferFrom message. Spender
// must be the x402Permit2Proxy; Nonce is an unordered uint256 as a
// decimal string.
type Permit2Authorization struct {
	From      string                  `json:"from"`
	Permitted Permit2TokenPermissions `json:"permitted"`
	Spender   string                  `json:"spender"`
	Nonce     string                  `json:"nonce"`
	Deadline  string                  `json:"deadline"`
	Witness   Permit2Witness          `json:"witness"`
}

// ExactPermit2Payload is the signed Permit2 authorization as it travels
// on the wire.
type ExactPermit2Payload struct {
	Signature            string               `json:"signature"`
	Permit2Authorization Permit2Authorization `json:"permit2Authorization"`
}

// ============================================================================
// Map conversions
// ============================================================================

// structToMap flattens a payload struct into the map form
// PaymentPayload.Payload carries, going through JSON so the field names
// match the wire tags exactly.
func structToMap(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	var out map[string]interface{}
	if json.Unmarshal(raw, &out) != nil {
		return map[string]interface{}{}
	}
	return out
}

// mapToStruct is the inverse of structToMap.
func mapToStruct(data map[string]interface{}, dst interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// ToMap converts the payload into its wire map form.
func (p *ExactEIP3009Payload) ToMap() map[string]interface{} {
	return structToMap(p)
}

// PayloadFromMap reads an EIP-3009 payload out of a payment payload map.
// Field-level validation is the verifier's job; this only requires the
// map to have the right shape.
func PayloadFromMap(data map[string]interface{}) (*ExactEIP3009Payload, error) {
	var payload ExactEIP3009Payload
	if err := mapToStruct(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid eip3009 payload: %w", err)
	}
	return &payload, nil
}

// ToMap converts the payload into its wire map form.
func (p *ExactPermit2Payload) ToMap() map[string]interface{} {
	return structToMap(p)
}

// Permit2PayloadFromMap reads a Permit2 payload out of a payment payload
// map, requiring every authorization field the proxy contract needs.
// A missing witness extra defaults to "0x".
func Permit2PayloadFromMap(data map[string]interface{}) (*ExactPermit2Payload, error) {
	if _, ok := data["permit2Authorization"].(map[string]interface{}); !ok {
		return nil, fmt.Errorf("missing or invalid permit2Authorization field")
	}

	var payload ExactPermit2Payload
	if err := mapToStruct(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid permit2 payload: %w", err)
	}

	auth := &payload.Permit2Authorization
	for _, field := range []struct {
		name  string
		value string
	}{
		{"permit2Authorization.from", auth.From},
		{"permit2Authorization.spender", auth.Spender},
		{"permit2Authorization.nonce", auth.Nonce},
		{"permit2Authorization.deadline", auth.Deadline},
		{"permit2Authorization.permitted.token", auth.Permitted.Token},
		{"permit2Authorization.permitted.amount", auth.Permitted.Amount},
		{"permit2Authorization.witness.to", auth.Witness.To},
		{"permit2Authorization.witness.validAfter", auth.Witness.ValidAfter},
	} {
		if field.value == "" {
			return nil, fmt.Errorf("missing or invalid %s field", field.name)
		}
	}

	if auth.Witness.Extra == "" {
		auth.Witness.Extra = "0x"
	}

	return &payload, nil
}

// IsPermit2Payload reports whether a payload map carries a Permit2
// authorization.
func IsPermit2Payload(data map[string]interface{}) bool {
	_, ok := data["permit2Authorization"]
	return ok
}

// IsEIP3009Payload reports whether a payload map carries an EIP-3009
// authorization.
func IsEIP3009Payload(data map[string]interface{}) bool {
	_, ok := data["authorization"]
	return ok
}

// ============================================================================
// Signer contracts
// ============================================================================

// ClientEvmSigner is the client-side signing surface: an address and the
// ability to sign EIP-712 typed data. Implementations live outside this
// module (hardware wallets, key services, the reference signers package).
type ClientEvmSigner interface {
	Address() string
	SignTypedData(ctx context.Context, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)
}

// FacilitatorEvmSigner is everything the facilitator half needs from its
// chain connection: a pool of sending addresses (GetAddresses exists so
// deployments can rotate keys and load-balance), read/write contract
// access, signature verification, and receipt tracking.
type FacilitatorEvmSigner interface {
	GetAddresses() []string

	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)
	WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error)

	// SendTransaction submits pre-encoded calldata, used for smart-wallet
	// deployment where the factory call can't go through an ABI.
	SendTransaction(ctx context.Context, to string, data []byte) (string, error)

	VerifyTypedData(ctx context.Context, address string, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}, signature []byte) (bool, error)
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)

	GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error)
	GetChainID(ctx context.Context) (*big.Int, error)

	// GetCode returns the bytecode at address; empty for an EOA, which is
	// how the verifier decides between ECDSA recovery and EIP-1271.
	GetCode(ctx context.Context, address string) ([]byte, error)
}

// ============================================================================
// Shared value types
// ============================================================================

// TypedDataDomain is the EIP-712 domain separator.
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField is one field of an EIP-712 type definition.
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TransactionReceipt is the subset of a mined transaction's receipt the
// settlement path inspects.
type TransactionReceipt struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}

// AssetInfo describes an ERC-20 token: its contract address, the EIP-712
// domain name/version its permit-style signatures use, and its decimals.
type AssetInfo struct {
	Address  string
	Name     string
	Version  string
	Decimals int
}

// NetworkConfig is a chain's registration: its id and the stablecoin used
// when a price doesn't name an asset.
type NetworkConfig struct {
	ChainID      *big.Int
	DefaultAsset AssetInfo
}
