package types

import (
	"encoding/json"
	"fmt"
)

// SupportedVersions lists the protocol versions this module can parse.
var SupportedVersions = []int{1, 2}

// UnsupportedVersionError is returned when a message carries an x402Version
// this module does not implement. Version detection never defaults silently.
type UnsupportedVersionError struct {
	Version int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported x402 version: %d (supported: %v)", e.Version, SupportedVersions)
}

// DetectVersion reads the x402Version field from a raw protocol message
// (PaymentPayload, PaymentRequired, or facilitator request body) without
// committing to either wire shape. Messages with a missing or unknown
// version return an error rather than defaulting.
func DetectVersion(data []byte) (int, error) {
	var probe struct {
		X402Version *int `json:"x402Version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse message for version detection: %w", err)
	}
	if probe.X402Version == nil {
		return 0, fmt.Errorf("message has no x402Version field")
	}

	version := *probe.X402Version
	for _, supported := range SupportedVersions {
		if version == supported {
			return version, nil
		}
	}
	return 0, &UnsupportedVersionError{Version: version}
}
