package bazaar

import (
	"encoding/json"
	"fmt"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/extensions/types"
	v1 "github.com/x402go/x402/extensions/v1"
	"github.com/xeipuuv/gojsonschema"
)

// ValidationResult is the outcome of checking a discovery declaration
// against its own schema.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// invalid builds a failed result from a single message.
func invalid(format string, args ...interface{}) ValidationResult {
	return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf(format, args...)}}
}

// ValidateDiscoveryExtension validates an extension's info block against
// the JSON Schema it declares for itself. The schema travels with the
// declaration precisely so any facilitator can validate submissions
// without knowing the resource.
func ValidateDiscoveryExtension(extension types.DiscoveryExtension) ValidationResult {
	schemaJSON, err := json.Marshal(extension.Schema)
	if err != nil {
		return invalid("Failed to marshal schema: %v", err)
	}
	infoJSON, err := json.Marshal(extension.Info)
	if err != nil {
		return invalid("Failed to marshal info: %v", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(infoJSON),
	)
	if err != nil {
		return invalid("Schema validation failed: %v", err)
	}
	if result.Valid() {
		return ValidationResult{Valid: true}
	}

	failures := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		failures = append(failures, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return ValidationResult{Valid: false, Errors: failures}
}

// decodeDiscoveryExtension reads a raw extensions-map value into the
// typed declaration.
func decodeDiscoveryExtension(raw interface{}) (*types.DiscoveryExtension, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bazaar extension: %w", err)
	}
	var extension types.DiscoveryExtension
	if err := json.Unmarshal(encoded, &extension); err != nil {
		return nil, fmt.Errorf("malformed bazaar extension: %w", err)
	}
	return &extension, nil
}

// ExtractDiscoveryInfo recovers a resource's discovery info from a
// verified payment, handling both wire generations: v2 carries the
// declaration in PaymentPayload.Extensions (echoed from PaymentRequired);
// v1 rode it in the requirement's outputSchema, which the v1 package
// lifts into the same shape. A payment with no discovery info returns
// (nil, nil) — most payments aren't discoverable and that's fine.
func ExtractDiscoveryInfo(
	paymentPayload x402.PaymentPayload,
	paymentRequirements interface{}, // unified or v1 requirements; inspected via JSON
	validate bool,
) (*types.DiscoveryInfo, error) {
	if info := extractV2DiscoveryInfo(paymentPayload, validate); info != nil {
		return info, nil
	}

	// v1 fallback (also tried for v2 payloads whose extension failed
	// validation, since a mixed deployment may populate both places).
	return v1.ExtractDiscoveryInfoV1(paymentRequirements)
}

// extractV2DiscoveryInfo pulls a valid declaration out of the payload's
// extensions map; nil when absent, malformed, or failing validation.
func extractV2DiscoveryInfo(payload x402.PaymentPayload, validate bool) *types.DiscoveryInfo {
	if payload.X402Version != 2 || payload.Extensions == nil {
		return nil
	}
	raw, ok := payload.Extensions[types.BAZAAR]
	if !ok {
		return nil
	}

	extension, err := decodeDiscoveryExtension(raw)
	if err != nil {
		return nil
	}
	if validate && !ValidateDiscoveryExtension(*extension).Valid {
		return nil
	}
	return &extension.Info
}

// ExtractDiscoveryInfoFromExtension extracts info from a declaration the
// caller already holds, optionally validating first. Validation failures
// error (unlike ExtractDiscoveryInfo, where a bad v2 declaration falls
// through to the v1 path).
func ExtractDiscoveryInfoFromExtension(
	extension types.DiscoveryExtension,
	validate bool,
) (*types.DiscoveryInfo, error) {
	if validate {
		result := ValidateDiscoveryExtension(extension)
		if !result.Valid {
			message := "Unknown error"
			if len(result.Errors) > 0 {
				message = result.Errors[0]
				for _, extra := range result.Errors[1:] {
					message += ", " + extra
				}
			}
			return nil, fmt.Errorf("invalid discovery extension: %s", message)
		}
	}
	return &extension.Info, nil
}

// ExtractionResult pairs a validation outcome with the extracted info.
type ExtractionResult struct {
	Valid  bool
	Info   *types.DiscoveryInfo
	Errors []string
}

// ValidateAndExtract validates and extracts in one step.
func ValidateAndExtract(extension types.DiscoveryExtension) ExtractionResult {
	result := ValidateDiscoveryExtension(extension)
	if !result.Valid {
		return ExtractionResult{Valid: false, Errors: result.Errors}
	}
	return ExtractionResult{Valid: true, Info: &extension.Info}
}
