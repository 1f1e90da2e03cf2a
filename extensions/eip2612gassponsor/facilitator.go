package eip2612gassponsor

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Field formats accepted by the facilitator. Every value is validated
// before any byte of it reaches an ABI encoder.
var (
	addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	numericPattern = regexp.MustCompile(`^[0-9]+$`)
	hexPattern     = regexp.MustCompile(`^0x[a-fA-F0-9]+$`)
	versionPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)
)

// decodeInfo digs the typed Info out of a raw extension value, which
// arrives as nested maps after JSON transport.
func decodeInfo(extensionValue interface{}) (*Info, error) {
	envelope, err := json.Marshal(extensionValue)
	if err != nil {
		return nil, fmt.Errorf("failed to encode eip2612GasSponsoring extension: %w", err)
	}
	var ext Extension
	if err := json.Unmarshal(envelope, &ext); err != nil {
		return nil, fmt.Errorf("malformed eip2612GasSponsoring extension: %w", err)
	}

	infoRaw, err := json.Marshal(ext.Info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode eip2612GasSponsoring info: %w", err)
	}
	var info Info
	if err := json.Unmarshal(infoRaw, &info); err != nil {
		return nil, fmt.Errorf("malformed eip2612GasSponsoring info: %w", err)
	}

	return &info, nil
}

// complete reports whether the client filled every permit field. A
// declaration-shaped info (the server's ServerInfo echoed back) leaves
// these empty and simply means no permit was attached.
func (i *Info) complete() bool {
	for _, field := range []string{i.From, i.Asset, i.Spender, i.Amount, i.Nonce, i.Deadline, i.Signature, i.Version} {
		if field == "" {
			return false
		}
	}
	return true
}

// ExtractEip2612GasSponsoringInfo pulls a completed permit out of a
// payload's extensions map. An absent extension — or one without the
// client-populated fields — returns (nil, nil): the payment simply isn't
// using gas sponsorship.
func ExtractEip2612GasSponsoringInfo(extensions map[string]interface{}) (*Info, error) {
	if extensions == nil {
		return nil, nil
	}
	raw, ok := extensions[EIP2612GasSponsoring]
	if !ok {
		return nil, nil
	}

	info, err := decodeInfo(raw)
	if err != nil {
		return nil, err
	}
	if !info.complete() {
		return nil, nil
	}
	return info, nil
}

// ExtractEip2612GasSponsoringInfoFromPayloadBytes is the raw-bytes
// variant, for callers holding an undecoded payment payload body.
func ExtractEip2612GasSponsoringInfoFromPayloadBytes(payloadBytes []byte) (*Info, error) {
	var payload struct {
		Extensions map[string]interface{} `json:"extensions"`
	}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return ExtractEip2612GasSponsoringInfo(payload.Extensions)
}

// ValidateEip2612GasSponsoringInfo checks every field against its wire
// format.
func ValidateEip2612GasSponsoringInfo(info *Info) bool {
	checks := []struct {
		pattern *regexp.Regexp
		value   string
	}{
		{addressPattern, info.From},
		{addressPattern, info.Asset},
		{addressPattern, info.Spender},
		{numericPattern, info.Amount},
		{numericPattern, info.Nonce},
		{numericPattern, info.Deadline},
		{hexPattern, info.Signature},
		{versionPattern, info.Version},
	}
	for _, check := range checks {
		if !check.pattern.MatchString(check.value) {
			return false
		}
	}
	return true
}
