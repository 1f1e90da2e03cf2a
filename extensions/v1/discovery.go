// Package v1 adapts legacy (x402 version 1) discovery declarations to the
// v2 extension shapes. V1 had no extensions map; discovery info rode in the
// requirement's outputSchema field.
package v1

import (
	"encoding/json"
	"fmt"

	"github.com/x402go/x402/extensions/types"
)

// ExtractDiscoveryInfoV1 pulls discovery info out of a v1 requirement's
// outputSchema field and lifts it into the v2 DiscoveryInfo shape.
//
// Accepts any requirements value (x402.PaymentRequirements,
// types.PaymentRequirementsV1, or a raw map) and inspects it through its
// JSON form, since the v1 wire format is the source of truth here. Returns
// nil with no error when the requirement carries no discovery info.
func ExtractDiscoveryInfoV1(paymentRequirements interface{}) (*types.DiscoveryInfo, error) {
	if paymentRequirements == nil {
		return nil, nil
	}

	raw, err := json.Marshal(paymentRequirements)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal requirements: %w", err)
	}

	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("failed to inspect requirements: %w", err)
	}

	outputSchema, ok := asMap["outputSchema"].(map[string]interface{})
	if !ok || len(outputSchema) == 0 {
		return nil, nil
	}

	// Modern v1 servers already nest {input, output} under outputSchema;
	// older ones put a bare response schema there.
	if _, hasInput := outputSchema["input"]; hasInput {
		infoBytes, err := json.Marshal(outputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode outputSchema: %w", err)
		}
		var info types.DiscoveryInfo
		if err := json.Unmarshal(infoBytes, &info); err != nil {
			return nil, fmt.Errorf("invalid v1 discovery info: %w", err)
		}
		return &info, nil
	}

	return &types.DiscoveryInfo{
		Input: types.QueryInput{
			Type:   "http",
			Method: types.QueryMethodGet,
		},
		Output: &types.OutputInfo{Schema: outputSchema},
	}, nil
}
