package x402

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ============================================================================
// Networks
// ============================================================================

// Network is a CAIP-2 chain identifier, "namespace:reference"
// ("eip155:8453", "solana:...", "hypercore:mainnet"). Registry patterns
// use the same type: a family wildcard ("eip155:*") or the universal
// wildcard ("*:*").
type Network string

// Parse splits the identifier into its namespace and reference.
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(n), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// Match reports whether this network matches a registered pattern: exact
// equality, a family wildcard, or the universal wildcard. Matching is
// bidirectional so two wildcards (or a wildcard network against a
// wildcard pattern) compare by family.
func (n Network) Match(pattern Network) bool {
	if n == pattern || pattern == "*:*" || n == "*:*" {
		return true
	}

	nFamily, nRef, nErr := n.Parse()
	patternFamily, patternRef, patternErr := pattern.Parse()
	if nErr != nil || patternErr != nil {
		return false
	}

	if patternRef == "*" || nRef == "*" {
		return nFamily == patternFamily
	}

	return false
}

// ============================================================================
// Prices and amounts
// ============================================================================

// Price is whatever a route config expresses a price as: a human string
// ("$0.001"), a bare number, or a scheme-native AssetAmount. Scheme
// services normalize it.
type Price interface{}

// AssetAmount is the normalized form: an atomic-unit amount of one
// concrete asset, plus whatever extra the scheme wants to carry along.
type AssetAmount struct {
	Asset  string                 `json:"asset"`
	Amount string                 `json:"amount"`
	Extra  map[string]interface{} `json:"extra,omitempty"`
}

// ============================================================================
// Requirements and payloads
// ============================================================================

// PaymentRequirements is one payment option a server offers. Amount is
// the v2 field; MaxAmountRequired is its v1 spelling, kept so lifted
// legacy requirements round-trip.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	MaxAmountRequired string                 `json:"maxAmountRequired,omitempty"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Extra             map[string]interface{} `json:"extra,omitempty"`

	// X402Version tags which protocol version this requirement set was
	// built for. Not part of the wire format (the version travels at the
	// PaymentRequired/PaymentPayload level); used internally so a server
	// speaking both versions can match a payload back to the requirement
	// it was created against. Zero means unset and matches either
	// version, for requirements constructed outside
	// BuildPaymentRequirements.
	X402Version int `json:"-"`
}

// PartialPaymentPayload is what a SchemeNetworkClient returns: just the
// version and the signed scheme-specific body. The core client wraps it
// into a full PaymentPayload.
type PartialPaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
}

// PaymentPayload is the unified signed-payment representation. The two
// wire generations differ only in where scheme/network live: v2 nests
// them in Accepted, v1 carries them at the top level — both shapes share
// this struct and EffectiveSchemeAndNetwork bridges the difference.
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
	Accepted    PaymentRequirements    `json:"accepted"`
	Scheme      string                 `json:"scheme,omitempty"`
	Network     string                 `json:"network,omitempty"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// EffectiveSchemeAndNetwork returns the scheme/network a payload was
// created against, whichever generation's slot they occupy.
func (p PaymentPayload) EffectiveSchemeAndNetwork() (scheme, network string) {
	if p.Scheme != "" || p.Network != "" {
		return p.Scheme, p.Network
	}
	return p.Accepted.Scheme, string(p.Accepted.Network)
}

// ResourceInfo describes the priced resource; attached to
// PaymentRequired and echoed back in the payload.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// PaymentRequired is the 402 body: the resource, every accepted payment
// option, declared extensions, and a human-readable error for debugging
// (clients negotiate on Accepts, never on Error).
type PaymentRequired struct {
	X402Version int                    `json:"x402Version"`
	Error       string                 `json:"error,omitempty"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Accepts     []PaymentRequirements  `json:"accepts"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// ============================================================================
// Facilitator exchanges
// ============================================================================

// VerifyRequest is the facilitator /verify body.
type VerifyRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse is a verification verdict. InvalidReason is the stable
// machine-readable reason; InvalidMessage carries optional human detail
// for debugging only.
type VerifyResponse struct {
	IsValid        bool   `json:"isValid"`
	InvalidReason  string `json:"invalidReason,omitempty"`
	InvalidMessage string `json:"invalidMessage,omitempty"`
	Payer          string `json:"payer,omitempty"`
}

// SettleRequest is the facilitator /settle body.
type SettleRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// SettleResponse is a settlement outcome; Transaction is the chain's
// identifier for the broadcast (hash, signature, or ledger hash,
// depending on the scheme).
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason string  `json:"errorReason,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	Transaction string  `json:"transaction"`
	Network     Network `json:"network"`
}

// SupportedKind is one (version, scheme, network) capability a
// facilitator advertises, with scheme metadata in Extra (an SVM fee
// payer, EVM domain hints).
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     Network                `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse is the facilitator's full capability sheet. Signers
// maps each concrete network to the facilitator-controlled addresses
// that sign on it (e.g. the SVM fee-payer pool).
type SupportedResponse struct {
	Kinds      []SupportedKind     `json:"kinds"`
	Extensions []string            `json:"extensions"`
	Signers    map[string][]string `json:"signers,omitempty"`
}

// ============================================================================
// Server route configuration
// ============================================================================

// ResourceConfig is one protected resource's payment terms, the input to
// BuildPaymentRequirements.
type ResourceConfig struct {
	Scheme            string  `json:"scheme"`
	PayTo             string  `json:"payTo"`
	Price             Price   `json:"price"`
	Network           Network `json:"network"`
	MaxTimeoutSeconds int     `json:"maxTimeoutSeconds,omitempty"`

	// X402Version selects which protocol version to build requirements
	// for; zero defaults to ProtocolVersion.
	X402Version int `json:"x402Version,omitempty"`
}

// ============================================================================
// Helpers
// ============================================================================

// canonicalJSON renders a value's normalized JSON form (decode-reencode
// flattens map ordering and numeric representations).
func canonicalJSON(v interface{}) ([]byte, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var normalized interface{}
	if err := json.Unmarshal(encoded, &normalized); err != nil {
		return nil, err
	}

	return json.Marshal(normalized)
}

// DeepEqual compares two values by their canonical JSON — the protocol's
// notion of equality for wire shapes, where field order and numeric
// spelling don't matter.
func DeepEqual(a, b interface{}) bool {
	canonicalA, errA := canonicalJSON(a)
	canonicalB, errB := canonicalJSON(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(canonicalA) == string(canonicalB)
}
