package paymentidentifier

import (
	"encoding/json"
	"fmt"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/types"
)

// Server/facilitator side of the payment-identifier extension: reading
// ids out of incoming payloads, validating them, and enforcing a server's
// required flag. The id format rules live in types.go; everything here is
// extraction and policy.

// badIDFormatMessage is the one user-facing explanation of the id rules.
var badIDFormatMessage = fmt.Sprintf(
	"Invalid payment ID format. ID must be %d-%d characters and contain only alphanumeric characters, hyphens, and underscores.",
	PAYMENT_ID_MIN_LENGTH, PAYMENT_ID_MAX_LENGTH,
)

// parseExtension decodes a raw extensions-map value into the typed
// extension (values arrive as nested maps after JSON transport).
func parseExtension(extension interface{}) (*PaymentIdentifierExtension, error) {
	raw, err := json.Marshal(extension)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extension: %w", err)
	}
	var ext PaymentIdentifierExtension
	if err := json.Unmarshal(raw, &ext); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extension: %w", err)
	}
	return &ext, nil
}

// extensionSlot returns the raw payment-identifier entry of a payload's
// extensions map, if any.
func extensionSlot(payload x402.PaymentPayload) (interface{}, bool) {
	if payload.Extensions == nil {
		return nil, false
	}
	raw, ok := payload.Extensions[PAYMENT_IDENTIFIER]
	return raw, ok
}

// IsPaymentIdentifierExtension reports whether a value has the
// extension's basic shape: an info object with a boolean required flag.
// The id format is not checked here.
func IsPaymentIdentifierExtension(extension interface{}) bool {
	if extension == nil {
		return false
	}

	raw, err := json.Marshal(extension)
	if err != nil {
		return false
	}

	var probe struct {
		Info *struct {
			Required *bool `json:"required"`
		} `json:"info"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return false
	}
	return probe.Info != nil && probe.Info.Required != nil
}

// ValidatePaymentIdentifier checks an extension object's structure and,
// when an id is present, its format.
func ValidatePaymentIdentifier(extension interface{}) ValidationResult {
	if extension == nil {
		return ValidationResult{Valid: false, Errors: []string{"Extension must be an object"}}
	}

	ext, err := parseExtension(extension)
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("Extension must have an 'info' property: %v", err)},
		}
	}

	if ext.Info.ID != "" && !IsValidPaymentID(ext.Info.ID) {
		return ValidationResult{Valid: false, Errors: []string{badIDFormatMessage}}
	}

	return ValidationResult{Valid: true}
}

// ExtractPaymentIdentifier reads the payment id off a payload. A payload
// without the extension (or carrying an id-less declaration echo) returns
// empty with no error; a malformed id errors only when validate is set.
func ExtractPaymentIdentifier(payload x402.PaymentPayload, validate bool) (string, error) {
	raw, ok := extensionSlot(payload)
	if !ok {
		return "", nil
	}

	ext, err := parseExtension(raw)
	if err != nil {
		return "", err
	}
	if ext.Info.ID == "" {
		return "", nil
	}
	if validate && !IsValidPaymentID(ext.Info.ID) {
		return "", fmt.Errorf("invalid payment ID format")
	}

	return ext.Info.ID, nil
}

// ExtractPaymentIdentifierFromBytes is the raw-bytes variant, for
// facilitators holding an undecoded payload. V1 payloads have no
// extensions and always yield empty.
func ExtractPaymentIdentifierFromBytes(payloadBytes []byte, validate bool) (string, error) {
	version, err := types.DetectVersion(payloadBytes)
	if err != nil {
		return "", fmt.Errorf("failed to detect version: %w", err)
	}
	if version == 1 {
		return "", nil
	}

	var payload x402.PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return ExtractPaymentIdentifier(payload, validate)
}

// ExtractAndValidatePaymentIdentifier reads the id and reports its
// validity in one call. A payload with no extension is valid-and-empty —
// absence only matters when the server required an id, which
// ValidatePaymentIdentifierRequirement enforces.
func ExtractAndValidatePaymentIdentifier(payload x402.PaymentPayload) (string, ValidationResult) {
	raw, ok := extensionSlot(payload)
	if !ok {
		return "", ValidationResult{Valid: true}
	}

	if result := ValidatePaymentIdentifier(raw); !result.Valid {
		return "", result
	}

	ext, err := parseExtension(raw)
	if err != nil {
		return "", ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	return ext.Info.ID, ValidationResult{Valid: true}
}

// HasPaymentIdentifier reports whether the payload carries the extension
// slot at all.
func HasPaymentIdentifier(payload x402.PaymentPayload) bool {
	_, ok := extensionSlot(payload)
	return ok
}

// IsPaymentIdentifierRequired reads the required flag off a declaration
// (from PaymentRequired, or echoed inside a payload).
func IsPaymentIdentifierRequired(extension interface{}) bool {
	if extension == nil {
		return false
	}
	ext, err := parseExtension(extension)
	if err != nil {
		return false
	}
	return ext.Info.Required
}

// ValidatePaymentIdentifierRequirement enforces a server's required flag
// against a client payload: when required, a missing or invalid id
// fails; when not required, anything passes.
func ValidatePaymentIdentifierRequirement(payload x402.PaymentPayload, serverRequired bool) ValidationResult {
	if !serverRequired {
		return ValidationResult{Valid: true}
	}

	id, err := ExtractPaymentIdentifier(payload, false)
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("Failed to extract payment identifier: %v", err)},
		}
	}
	if id == "" {
		return ValidationResult{
			Valid:  false,
			Errors: []string{"Server requires a payment identifier but none was provided"},
		}
	}
	if !IsValidPaymentID(id) {
		return ValidationResult{Valid: false, Errors: []string{badIDFormatMessage}}
	}

	return ValidationResult{Valid: true}
}

// ExtractPaymentIdentifierFromPaymentRequired reads whether a 402 body's
// declaration marks the id as required. V1 bodies have no extensions and
// yield false.
func ExtractPaymentIdentifierFromPaymentRequired(paymentRequiredBytes []byte) (bool, error) {
	version, err := types.DetectVersion(paymentRequiredBytes)
	if err != nil {
		return false, fmt.Errorf("failed to detect version: %w", err)
	}
	if version == 1 {
		return false, nil
	}

	var paymentRequired struct {
		Extensions map[string]interface{} `json:"extensions"`
	}
	if err := json.Unmarshal(paymentRequiredBytes, &paymentRequired); err != nil {
		return false, fmt.Errorf("failed to unmarshal payment required: %w", err)
	}
	if paymentRequired.Extensions == nil {
		return false, nil
	}

	declaration, ok := paymentRequired.Extensions[PAYMENT_IDENTIFIER]
	if !ok {
		return false, nil
	}
	return IsPaymentIdentifierRequired(declaration), nil
}
