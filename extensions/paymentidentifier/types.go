// Package paymentidentifier implements the payment-identifier protocol
// extension: idempotency keys a server can require so a retried payment
// replays the original result instead of settling twice.
package paymentidentifier

import (
	"regexp"
)

// PAYMENT_IDENTIFIER is the extension key in PaymentRequired.Extensions and
// PaymentPayload.Extensions.
const PAYMENT_IDENTIFIER = "payment-identifier"

// Payment ID format limits.
const (
	PAYMENT_ID_MIN_LENGTH = 16
	PAYMENT_ID_MAX_LENGTH = 128
)

// PAYMENT_ID_PATTERN matches the allowed payment ID alphabet.
var PAYMENT_ID_PATTERN = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// PaymentIdentifierInfo is the info block of the extension: the server
// declares Required; the client fills ID on its payload.
type PaymentIdentifierInfo struct {
	ID       string `json:"id,omitempty"`
	Required bool   `json:"required"`
}

// PaymentIdentifierExtension is the full extension declaration.
type PaymentIdentifierExtension struct {
	Info   PaymentIdentifierInfo  `json:"info"`
	Schema map[string]interface{} `json:"schema,omitempty"`
}

// ValidationResult reports whether an extension object passed validation.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// PaymentIdentifierSchema returns the JSON Schema the extension declares
// for its info block.
func PaymentIdentifierSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"info": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type":      "string",
						"minLength": PAYMENT_ID_MIN_LENGTH,
						"maxLength": PAYMENT_ID_MAX_LENGTH,
						"pattern":   "^[A-Za-z0-9_-]+$",
					},
					"required": map[string]interface{}{
						"type": "boolean",
					},
				},
				"required": []string{"required"},
			},
		},
		"required": []string{"info"},
	}
}

// DeclarePaymentIdentifierExtension builds the extension declaration a
// server attaches to PaymentRequired.Extensions.
func DeclarePaymentIdentifierExtension(required bool) map[string]interface{} {
	return map[string]interface{}{
		PAYMENT_IDENTIFIER: PaymentIdentifierExtension{
			Info:   PaymentIdentifierInfo{Required: required},
			Schema: PaymentIdentifierSchema(),
		},
	}
}

// AppendPaymentIdentifierToExtensions returns a copy of payloadExtensions
// with a freshly generated payment ID in the payment-identifier slot — but
// only when the server declared the extension in serverExtensions. The
// server's declared Required flag is echoed back.
func AppendPaymentIdentifierToExtensions(
	payloadExtensions map[string]interface{},
	serverExtensions map[string]interface{},
	prefix string,
) map[string]interface{} {
	if serverExtensions == nil {
		return payloadExtensions
	}
	declared, ok := serverExtensions[PAYMENT_IDENTIFIER]
	if !ok {
		return payloadExtensions
	}

	result := make(map[string]interface{}, len(payloadExtensions)+1)
	for k, v := range payloadExtensions {
		result[k] = v
	}

	result[PAYMENT_IDENTIFIER] = PaymentIdentifierExtension{
		Info: PaymentIdentifierInfo{
			ID:       GeneratePaymentID(prefix),
			Required: IsPaymentIdentifierRequired(declared),
		},
	}
	return result
}

// paymentIdentifierResourceServerExtension lets the extension participate
// in ResourceServer extension enrichment (the declaration needs no
// transport-specific fields, so it passes through unchanged).
type paymentIdentifierResourceServerExtension struct{}

func (e *paymentIdentifierResourceServerExtension) Key() string {
	return PAYMENT_IDENTIFIER
}

func (e *paymentIdentifierResourceServerExtension) EnrichDeclaration(
	declaration interface{},
	transportContext interface{},
) interface{} {
	return declaration
}

// PaymentIdentifierResourceServerExtension is the registerable extension value.
var PaymentIdentifierResourceServerExtension = &paymentIdentifierResourceServerExtension{}
