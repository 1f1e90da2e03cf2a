package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/x402go/x402/types"
)

// base64Regex admits standard-alphabet base64 with optional padding.
var base64Regex = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// requireString checks a required string field of obj, reporting the
// exact wire-level failure.
func requireString(obj map[string]interface{}, field, path string) error {
	value, exists := obj[field]
	if !exists {
		return fmt.Errorf("missing required field: %s", path)
	}
	if _, ok := value.(string); !ok {
		return fmt.Errorf("invalid field type: %s must be a string", path)
	}
	return nil
}

// requireObject checks a required object field of obj and returns it.
func requireObject(obj map[string]interface{}, field, path string) (map[string]interface{}, error) {
	value, exists := obj[field]
	if !exists {
		return nil, fmt.Errorf("missing required field: %s", path)
	}
	nested, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid field type: %s must be an object", path)
	}
	return nested, nil
}

// ValidateAndDecodePaymentHeader validates a PAYMENT-SIGNATURE header
// value end to end — base64 shape, JSON shape, and the v2 payload's
// required fields — before decoding it. Validation happens on the raw
// object so a malformed header produces a precise complaint instead of a
// zero-valued struct.
func ValidateAndDecodePaymentHeader(paymentHeader string) (*types.PaymentPayload, error) {
	if paymentHeader == "" {
		return nil, fmt.Errorf("payment header is empty")
	}
	if !base64Regex.MatchString(paymentHeader) {
		return nil, fmt.Errorf("invalid payment header format: not valid base64")
	}

	decoded, err := base64.StdEncoding.DecodeString(paymentHeader)
	if err != nil {
		return nil, fmt.Errorf("invalid payment header format: base64 decoding failed - %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(decoded, &raw); err != nil {
		return nil, fmt.Errorf("invalid payment header format: not valid JSON - %v", err)
	}

	// x402Version: present, numeric, >= 1.
	versionValue, exists := raw["x402Version"]
	if !exists {
		return nil, fmt.Errorf("missing required field: x402Version")
	}
	version, ok := versionValue.(float64)
	if !ok {
		return nil, fmt.Errorf("invalid field type: x402Version must be a number")
	}
	if int(version) < 1 {
		return nil, fmt.Errorf("invalid value: x402Version must be at least 1")
	}

	// resource: an object with url/description/mimeType strings.
	resource, err := requireObject(raw, "resource", "resource")
	if err != nil {
		return nil, err
	}
	for _, field := range []string{"url", "description", "mimeType"} {
		if err := requireString(resource, field, "resource."+field); err != nil {
			return nil, err
		}
	}

	// accepted and payload: objects.
	if _, err := requireObject(raw, "accepted", "accepted"); err != nil {
		return nil, err
	}
	if _, err := requireObject(raw, "payload", "payload"); err != nil {
		return nil, err
	}

	var payload types.PaymentPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payment payload: %v", err)
	}

	return &payload, nil
}
