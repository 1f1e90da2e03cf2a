package erc20approvalgassponsor

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Field formats accepted by the facilitator.
var (
	erc20AddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	erc20NumericPattern = regexp.MustCompile(`^[0-9]+$`)
	erc20HexPattern     = regexp.MustCompile(`^0x[a-fA-F0-9]+$`)
	erc20VersionPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)
)

// decodeInfo digs the typed Info out of a raw extension value, which
// arrives as nested maps after JSON transport.
func decodeInfo(extensionValue interface{}) (*Info, error) {
	envelope, err := json.Marshal(extensionValue)
	if err != nil {
		return nil, fmt.Errorf("failed to encode erc20ApprovalGasSponsoring extension: %w", err)
	}
	var ext Extension
	if err := json.Unmarshal(envelope, &ext); err != nil {
		return nil, fmt.Errorf("malformed erc20ApprovalGasSponsoring extension: %w", err)
	}

	infoRaw, err := json.Marshal(ext.Info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode erc20ApprovalGasSponsoring info: %w", err)
	}
	var info Info
	if err := json.Unmarshal(infoRaw, &info); err != nil {
		return nil, fmt.Errorf("malformed erc20ApprovalGasSponsoring info: %w", err)
	}

	return &info, nil
}

// complete reports whether the client populated every field; a
// declaration-shaped info means no signed approval was attached.
func (i *Info) complete() bool {
	for _, field := range []string{i.From, i.Asset, i.Spender, i.Amount, i.SignedTransaction, i.Version} {
		if field == "" {
			return false
		}
	}
	return true
}

// ExtractErc20ApprovalGasSponsoringInfo pulls a completed signed-approval
// attachment out of a payload's extensions map. Absent or incomplete
// returns (nil, nil) — the payment isn't using this sponsorship path.
func ExtractErc20ApprovalGasSponsoringInfo(extensions map[string]interface{}) (*Info, error) {
	if extensions == nil {
		return nil, nil
	}
	raw, ok := extensions[ERC20ApprovalGasSponsoring]
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

// ExtractErc20ApprovalGasSponsoringInfoFromPayloadBytes is the raw-bytes
// variant, for callers holding an undecoded payment payload body.
func ExtractErc20ApprovalGasSponsoringInfoFromPayloadBytes(payloadBytes []byte) (*Info, error) {
	var payload struct {
		Extensions map[string]interface{} `json:"extensions"`
	}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return ExtractErc20ApprovalGasSponsoringInfo(payload.Extensions)
}

// ValidateErc20ApprovalGasSponsoringInfo checks every field against its
// wire format.
func ValidateErc20ApprovalGasSponsoringInfo(info *Info) bool {
	checks := []struct {
		pattern *regexp.Regexp
		value   string
	}{
		{erc20AddressPattern, info.From},
		{erc20AddressPattern, info.Asset},
		{erc20AddressPattern, info.Spender},
		{erc20NumericPattern, info.Amount},
		{erc20HexPattern, info.SignedTransaction},
		{erc20VersionPattern, info.Version},
	}
	for _, check := range checks {
		if !check.pattern.MatchString(check.value) {
			return false
		}
	}
	return true
}
