package types

import (
	"encoding/json"
	"fmt"
)

// Legacy (x402 version 1) wire shapes. V1 predates CAIP-2 network ids and
// the nested "accepted" block: networks are bare aliases ("base-sepolia",
// "solana-devnet") and the payload carries scheme/network at its top
// level. These shapes exist only at the wire boundary — the Lift methods
// convert them into the unified in-memory representation immediately
// after decoding, and nothing downstream touches them again.

// PaymentPayloadV1 is the legacy retry-request body.
type PaymentPayloadV1 struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Payload     map[string]interface{} `json:"payload"`
}

// PaymentRequirementsV1 is one legacy payment option. The amount field is
// named maxAmountRequired, and resource/description/mimeType ride on the
// requirement itself rather than on a shared ResourceInfo.
type PaymentRequirementsV1 struct {
	Scheme            string           `json:"scheme"`
	Network           string           `json:"network"`
	MaxAmountRequired string           `json:"maxAmountRequired"`
	Resource          string           `json:"resource"`
	Description       string           `json:"description,omitempty"`
	MimeType          string           `json:"mimeType,omitempty"`
	PayTo             string           `json:"payTo"`
	MaxTimeoutSeconds int              `json:"maxTimeoutSeconds"`
	Asset             string           `json:"asset"`
	OutputSchema      *json.RawMessage `json:"outputSchema,omitempty"`
	Extra             *json.RawMessage `json:"extra,omitempty"`
}

// PaymentRequiredV1 is the legacy 402 body. No resource block, no
// extensions map.
type PaymentRequiredV1 struct {
	X402Version int                     `json:"x402Version"`
	Error       string                  `json:"error,omitempty"`
	Accepts     []PaymentRequirementsV1 `json:"accepts"`
}

// LegacyNetworkAliases maps the bare v1 network names to their CAIP-2
// identifiers. Aliases not listed here pass through unchanged, since a v1
// peer may use a name this module has never seen and the mechanism
// registered for it is the authority on what it means.
var LegacyNetworkAliases = map[string]string{
	"base":           "eip155:8453",
	"base-mainnet":   "eip155:8453",
	"base-sepolia":   "eip155:84532",
	"avalanche":      "eip155:43114",
	"avalanche-fuji": "eip155:43113",
	"polygon":        "eip155:137",
	"polygon-amoy":   "eip155:80002",
	"solana":         "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp",
	"solana-mainnet": "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp",
	"solana-devnet":  "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1",
	"solana-testnet": "solana:4uhcVJyU9pJkvQyS88uRDiswHXSCkY3z",
	"hypercore":      "hypercore:mainnet",
}

// TranslateLegacyNetwork resolves a v1 network alias to CAIP-2, returning
// the input unchanged when no translation is known.
func TranslateLegacyNetwork(alias string) string {
	if caip2, ok := LegacyNetworkAliases[alias]; ok {
		return caip2
	}
	return alias
}

// DecodePaymentPayloadV1 decodes legacy payload bytes, rejecting bodies
// that carry the wrong version.
func DecodePaymentPayloadV1(data []byte) (*PaymentPayloadV1, error) {
	var payload PaymentPayloadV1
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid v1 payment payload: %w", err)
	}
	if payload.X402Version != 1 {
		return nil, fmt.Errorf("expected x402 version 1, got %d", payload.X402Version)
	}
	return &payload, nil
}

// DecodePaymentRequiredV1 decodes a legacy 402 body.
func DecodePaymentRequiredV1(data []byte) (*PaymentRequiredV1, error) {
	var required PaymentRequiredV1
	if err := json.Unmarshal(data, &required); err != nil {
		return nil, fmt.Errorf("invalid v1 payment required body: %w", err)
	}
	return &required, nil
}

// Lift converts the legacy payload into the unified representation: the
// scheme/network stay at the top level (how the rest of the module tells
// the two versions apart), everything else maps field-for-field.
func (p *PaymentPayloadV1) Lift() PaymentPayload {
	return PaymentPayload{
		X402Version: p.X402Version,
		Scheme:      p.Scheme,
		Network:     p.Network,
		Payload:     p.Payload,
	}
}

// Lift converts a legacy requirement into the unified representation.
// MaxAmountRequired is preserved verbatim (v1 semantics) and also copied
// into Amount so version-agnostic callers can read one field.
func (r *PaymentRequirementsV1) Lift() PaymentRequirements {
	lifted := PaymentRequirements{
		Scheme:            r.Scheme,
		Network:           Network(r.Network),
		Asset:             r.Asset,
		Amount:            r.MaxAmountRequired,
		MaxAmountRequired: r.MaxAmountRequired,
		PayTo:             r.PayTo,
		MaxTimeoutSeconds: r.MaxTimeoutSeconds,
		X402Version:       1,
	}
	if r.Extra != nil {
		var extra map[string]interface{}
		if json.Unmarshal(*r.Extra, &extra) == nil {
			lifted.Extra = extra
		}
	}
	return lifted
}

// Lift converts a legacy 402 body into the unified PaymentRequired.
func (pr *PaymentRequiredV1) Lift() PaymentRequired {
	accepts := make([]PaymentRequirements, 0, len(pr.Accepts))
	for i := range pr.Accepts {
		accepts = append(accepts, pr.Accepts[i].Lift())
	}
	return PaymentRequired{
		X402Version: pr.X402Version,
		Error:       pr.Error,
		Accepts:     accepts,
	}
}
