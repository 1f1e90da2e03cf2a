package types

import (
	"encoding/json"
	"fmt"
)

// Current (x402 version 2) wire handling. The v2 wire shape and the
// unified in-memory representation are the same thing — scheme and
// network live inside the accepted requirements, the resource block and
// extensions map are first-class — so decoding is direct, and the only
// structural work at the boundary is lifting legacy v1 bodies.

// DecodePaymentPayloadV2 decodes current-version payload bytes, rejecting
// bodies that carry the wrong version.
func DecodePaymentPayloadV2(data []byte) (*PaymentPayload, error) {
	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid v2 payment payload: %w", err)
	}
	if payload.X402Version != 2 {
		return nil, fmt.Errorf("expected x402 version 2, got %d", payload.X402Version)
	}
	return &payload, nil
}

// DecodePaymentRequiredV2 decodes a current-version 402 body.
func DecodePaymentRequiredV2(data []byte) (*PaymentRequired, error) {
	var required PaymentRequired
	if err := json.Unmarshal(data, &required); err != nil {
		return nil, fmt.Errorf("invalid v2 payment required body: %w", err)
	}
	for i := range required.Accepts {
		required.Accepts[i].X402Version = 2
	}
	return &required, nil
}

// ParsePaymentPayload decodes payment payload bytes of either protocol
// version into the unified representation: the version is detected from
// the body, v1 payloads are lifted, and unknown versions error rather
// than defaulting. This is the single parse point the wire adapters
// (HTTP headers, MCP _meta) funnel through.
func ParsePaymentPayload(data []byte) (PaymentPayload, error) {
	version, err := DetectVersion(data)
	if err != nil {
		return PaymentPayload{}, err
	}

	switch version {
	case 1:
		legacy, err := DecodePaymentPayloadV1(data)
		if err != nil {
			return PaymentPayload{}, err
		}
		return legacy.Lift(), nil
	default:
		payload, err := DecodePaymentPayloadV2(data)
		if err != nil {
			return PaymentPayload{}, err
		}
		return *payload, nil
	}
}

// ParsePaymentRequired decodes a 402 body of either protocol version into
// the unified representation, the same way ParsePaymentPayload does for
// payloads.
func ParsePaymentRequired(data []byte) (PaymentRequired, error) {
	version, err := DetectVersion(data)
	if err != nil {
		return PaymentRequired{}, err
	}

	switch version {
	case 1:
		legacy, err := DecodePaymentRequiredV1(data)
		if err != nil {
			return PaymentRequired{}, err
		}
		return legacy.Lift(), nil
	default:
		required, err := DecodePaymentRequiredV2(data)
		if err != nil {
			return PaymentRequired{}, err
		}
		return *required, nil
	}
}
