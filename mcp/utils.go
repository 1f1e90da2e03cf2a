package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/types"
)

// remarshal round-trips an arbitrary decoded value into dst through JSON,
// the one conversion every _meta slot needs (meta values arrive as
// map[string]interface{} regardless of what was attached).
func remarshal(value interface{}, dst interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// ============================================================================
// Payment payload in request _meta (client → server)
// ============================================================================

// ExtractPaymentFromMeta pulls the payment payload out of a tool call's
// _meta slot. A missing slot or a value that doesn't look like a payment
// returns (nil, nil) — absence is the normal unpaid-first-call case, not
// an error.
func ExtractPaymentFromMeta(params map[string]interface{}) (*types.PaymentPayload, error) {
	meta, ok := params["_meta"].(map[string]interface{})
	if !ok {
		return nil, nil
	}

	raw, ok := meta[MCP_PAYMENT_META_KEY]
	if !ok {
		return nil, nil
	}

	var payload types.PaymentPayload
	if err := remarshal(raw, &payload); err != nil {
		return nil, nil //nolint:nilerr // malformed slot means "no payment", the server answers with 402
	}
	if payload.X402Version == 0 || payload.Payload == nil {
		return nil, nil
	}

	return &payload, nil
}

// AttachPaymentToMeta returns a copy of params with the payment payload
// placed in the _meta slot, preserving any other _meta entries.
func AttachPaymentToMeta(params map[string]interface{}, payload types.PaymentPayload) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		out[k] = v
	}

	meta := map[string]interface{}{}
	if existing, ok := out["_meta"].(map[string]interface{}); ok {
		for k, v := range existing {
			meta[k] = v
		}
	}
	meta[MCP_PAYMENT_META_KEY] = payload
	out["_meta"] = meta

	return out
}

// ============================================================================
// Settlement response in result _meta (server → client)
// ============================================================================

// ExtractPaymentResponseFromMeta pulls the settlement response out of a
// tool result's _meta. Returns (nil, nil) when absent.
func ExtractPaymentResponseFromMeta(result MCPToolResult) (*x402.SettleResponse, error) {
	if result.Meta == nil {
		return nil, nil
	}

	raw, ok := result.Meta[MCP_PAYMENT_RESPONSE_META_KEY]
	if !ok {
		return nil, nil
	}

	// The server side attaches the struct directly; over a real transport
	// it arrives as a decoded map.
	if response, ok := raw.(x402.SettleResponse); ok {
		return &response, nil
	}

	var response x402.SettleResponse
	if err := remarshal(raw, &response); err != nil {
		return nil, fmt.Errorf("failed to decode payment response: %w", err)
	}
	return &response, nil
}

// AttachPaymentResponseToMeta returns the result with the settlement
// response placed in its _meta slot.
func AttachPaymentResponseToMeta(result MCPToolResult, response x402.SettleResponse) MCPToolResult {
	if result.Meta == nil {
		result.Meta = make(map[string]interface{})
	}
	result.Meta[MCP_PAYMENT_RESPONSE_META_KEY] = response
	return result
}

// ============================================================================
// PaymentRequired in error results
// ============================================================================

// ExtractPaymentRequiredFromResult recovers a PaymentRequired from an
// isError tool result, checking structuredContent first (the canonical
// slot) and falling back to parsing content[0].text. Non-payment errors
// return (nil, nil).
func ExtractPaymentRequiredFromResult(result MCPToolResult) (*types.PaymentRequired, error) {
	if !result.IsError {
		return nil, nil
	}

	if pr := paymentRequiredFromObject(result.StructuredContent); pr != nil {
		return pr, nil
	}

	if len(result.Content) > 0 && result.Content[0].Type == "text" && result.Content[0].Text != "" {
		var parsed map[string]interface{}
		if json.Unmarshal([]byte(result.Content[0].Text), &parsed) == nil {
			if pr := paymentRequiredFromObject(parsed); pr != nil {
				return pr, nil
			}
		}
	}

	return nil, nil
}

// paymentRequiredFromObject decodes obj as a PaymentRequired when it has
// the telltale x402Version + non-empty accepts shape; anything else is
// nil.
func paymentRequiredFromObject(obj map[string]interface{}) *types.PaymentRequired {
	if obj == nil {
		return nil
	}
	if _, ok := obj["x402Version"]; !ok {
		return nil
	}
	accepts, ok := obj["accepts"].([]interface{})
	if !ok || len(accepts) == 0 {
		return nil
	}

	var pr types.PaymentRequired
	if err := remarshal(obj, &pr); err != nil {
		return nil
	}
	return &pr
}

// ============================================================================
// Small helpers
// ============================================================================

// CreateToolResourceUrl names the resource behind a tool: an explicit URL
// wins, otherwise the mcp://tool/ convention.
func CreateToolResourceUrl(toolName string, customUrl string) string {
	if customUrl != "" {
		return customUrl
	}
	return "mcp://tool/" + toolName
}

// IsObject reports whether value is a non-nil JSON object
// (map[string]interface{}).
func IsObject(value interface{}) bool {
	if value == nil {
		return false
	}
	_, ok := value.(map[string]interface{})
	return ok
}

// CreatePaymentRequiredError builds the typed 402 error the client
// surfaces when it won't (or can't) pay.
func CreatePaymentRequiredError(message string, paymentRequired *types.PaymentRequired) *PaymentRequiredError {
	return &PaymentRequiredError{
		Code:            MCP_PAYMENT_REQUIRED_CODE,
		Message:         message,
		PaymentRequired: paymentRequired,
	}
}

// IsPaymentRequiredError reports whether err is (or wraps) a
// PaymentRequiredError.
func IsPaymentRequiredError(err error) bool {
	if err == nil {
		return false
	}
	var target *PaymentRequiredError
	return errors.As(err, &target)
}

// ExtractPaymentRequiredFromError recovers a PaymentRequired from a raw
// JSON-RPC error object ({code: 402, data: {...}}), for callers holding
// the wire-level error rather than a typed one. Non-402 (or non-object)
// inputs return (nil, nil).
func ExtractPaymentRequiredFromError(err interface{}) (*types.PaymentRequired, error) {
	errObj, ok := err.(map[string]interface{})
	if !ok {
		return nil, nil
	}

	code, ok := errObj["code"].(float64)
	if !ok || int(code) != MCP_PAYMENT_REQUIRED_CODE {
		return nil, nil
	}

	data, ok := errObj["data"].(map[string]interface{})
	if !ok {
		return nil, nil
	}

	return paymentRequiredFromObject(data), nil
}
