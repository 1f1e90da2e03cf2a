package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/types"
)

// ToolHandler is the signature for map-based MCP tool handlers.
type ToolHandler func(ctx context.Context, args map[string]interface{}, context MCPToolContext) (MCPToolResult, error)

// SDKToolHandler matches the official Go MCP SDK's raw tool handler
// signature, so a wrapped handler can be passed straight to Server.AddTool.
type SDKToolHandler func(ctx context.Context, request *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error)

// PaymentWrapper gates MCP tool handlers behind x402 payment. Build one per
// paid tool (or share one across tools with the same price) and wrap the
// tool's handler with Wrap.
type PaymentWrapper struct {
	resourceServer *x402.X402ResourceServer
	config         PaymentWrapperConfig
}

// NewPaymentWrapper creates a payment wrapper around a resource server.
// Panics if config.Accepts is empty, since a paid tool with no accepted
// payment option can never be invoked.
func NewPaymentWrapper(resourceServer *x402.X402ResourceServer, config PaymentWrapperConfig) *PaymentWrapper {
	if len(config.Accepts) == 0 {
		panic("PaymentWrapperConfig.accepts must have at least one payment requirement")
	}
	return &PaymentWrapper{
		resourceServer: resourceServer,
		config:         config,
	}
}

// Wrap wraps an SDK tool handler with the payment pipeline: extract payment
// from request _meta, verify, run hooks, execute, settle, and attach the
// settlement response to result _meta. A missing or invalid payment yields
// an isError result carrying the PaymentRequired JSON in both
// structuredContent and content[0].text.
func (w *PaymentWrapper) Wrap(handler SDKToolHandler) SDKToolHandler {
	return func(ctx context.Context, request *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		toolName := request.Params.Name

		args := make(map[string]interface{})
		if len(request.Params.Arguments) > 0 {
			_ = json.Unmarshal(request.Params.Arguments, &args)
		}

		meta := make(map[string]interface{})
		if request.Params.Meta != nil {
			for k, v := range request.Params.Meta.GetMeta() {
				meta[k] = v
			}
		}

		paymentPayload, err := ExtractPaymentFromMeta(map[string]interface{}{
			"_meta": meta,
		})
		if err != nil || paymentPayload == nil {
			return w.paymentRequiredSDKResult(toolName, "Payment required to access this tool")
		}

		paymentRequirements := w.matchRequirements(*paymentPayload)

		verifyResult, err := w.resourceServer.VerifyPayment(ctx, *paymentPayload, paymentRequirements)
		if err != nil {
			return w.paymentRequiredSDKResult(toolName, fmt.Sprintf("Payment verification error: %v", err))
		}
		if !verifyResult.IsValid {
			reason := verifyResult.InvalidReason
			if reason == "" {
				reason = "Payment verification failed"
			}
			return w.paymentRequiredSDKResult(toolName, reason)
		}

		hookContext := ServerHookContext{
			ToolName:            toolName,
			Arguments:           args,
			PaymentRequirements: paymentRequirements,
			PaymentPayload:      *paymentPayload,
		}

		if w.config.Hooks != nil && w.config.Hooks.OnBeforeExecution != nil {
			proceed, hookErr := (*w.config.Hooks.OnBeforeExecution)(hookContext)
			if hookErr != nil {
				return w.paymentRequiredSDKResult(toolName, hookErr.Error())
			}
			if !proceed {
				return w.paymentRequiredSDKResult(toolName, "Execution blocked by hook")
			}
		}

		result, err := handler(ctx, request)
		if err != nil {
			return result, err
		}

		if w.config.Hooks != nil && w.config.Hooks.OnAfterExecution != nil {
			// Hook errors on the success path are non-fatal.
			_ = (*w.config.Hooks.OnAfterExecution)(AfterExecutionContext{
				ServerHookContext: hookContext,
				Result:            sdkResultToMCPToolResult(result),
			})
		}

		// Tool errors are not billed.
		if result.IsError {
			return result, nil
		}

		settleResult, err := w.resourceServer.SettlePayment(ctx, *paymentPayload, paymentRequirements)
		if err != nil || !settleResult.Success {
			reason := settleResult.ErrorReason
			if err != nil {
				reason = err.Error()
			}
			return w.settlementFailedSDKResult(toolName, reason)
		}

		if w.config.Hooks != nil && w.config.Hooks.OnAfterSettlement != nil {
			_ = (*w.config.Hooks.OnAfterSettlement)(SettlementContext{
				ServerHookContext: hookContext,
				Settlement:        settleResult,
			})
		}

		if result.Meta == nil {
			result.Meta = mcpsdk.Meta{}
		}
		result.Meta[MCP_PAYMENT_RESPONSE_META_KEY] = settleResult

		return result, nil
	}
}

// matchRequirements binds an incoming payload to one of the configured
// accepted options, falling back to the first option when no exact match
// is found so that verification still runs (and fails with a precise
// reason) rather than rejecting up front.
func (w *PaymentWrapper) matchRequirements(payload types.PaymentPayload) types.PaymentRequirements {
	if match := w.resourceServer.FindMatchingRequirements(w.config.Accepts, payload); match != nil {
		return *match
	}
	return w.config.Accepts[0]
}

func (w *PaymentWrapper) paymentRequiredSDKResult(toolName, errorMessage string) (*mcpsdk.CallToolResult, error) {
	result, err := createPaymentRequiredResult(w.resourceServer, toolName, w.config, errorMessage)
	if err != nil {
		return nil, err
	}
	return mcpToolResultToSDK(result), nil
}

func (w *PaymentWrapper) settlementFailedSDKResult(toolName, errorMessage string) (*mcpsdk.CallToolResult, error) {
	result, err := createSettlementFailedResult(w.resourceServer, toolName, w.config, errorMessage)
	if err != nil {
		return nil, err
	}
	return mcpToolResultToSDK(result), nil
}

// mcpToolResultToSDK converts a map-based MCPToolResult to the SDK shape.
// Only text content survives the conversion; the payment results this
// package builds are text plus structuredContent, so nothing is lost.
func mcpToolResultToSDK(result MCPToolResult) *mcpsdk.CallToolResult {
	content := make([]mcpsdk.Content, 0, len(result.Content))
	for _, item := range result.Content {
		content = append(content, &mcpsdk.TextContent{Text: item.Text})
	}

	out := &mcpsdk.CallToolResult{
		Content: content,
		IsError: result.IsError,
	}
	if result.StructuredContent != nil {
		out.StructuredContent = result.StructuredContent
	}
	if result.Meta != nil {
		m := make(mcpsdk.Meta, len(result.Meta))
		for k, v := range result.Meta {
			m[k] = v
		}
		out.Meta = m
	}
	return out
}

// sdkResultToMCPToolResult converts an SDK result to the map-based shape
// used by hook contexts.
func sdkResultToMCPToolResult(result *mcpsdk.CallToolResult) MCPToolResult {
	if result == nil {
		return MCPToolResult{}
	}

	content := make([]MCPContentItem, 0, len(result.Content))
	for _, item := range result.Content {
		if tc, ok := item.(*mcpsdk.TextContent); ok {
			content = append(content, MCPContentItem{Type: "text", Text: tc.Text})
		}
	}

	out := MCPToolResult{
		Content: content,
		IsError: result.IsError,
	}
	if result.StructuredContent != nil {
		if sc, ok := result.StructuredContent.(map[string]interface{}); ok {
			out.StructuredContent = sc
		}
	}
	if result.Meta != nil {
		out.Meta = make(map[string]interface{}, len(result.Meta))
		for k, v := range result.Meta {
			out.Meta[k] = v
		}
	}
	return out
}

// CreatePaymentWrapper creates a payment wrapper for map-based MCP tool
// handlers (MCPClientInterface-style servers that never touch the official
// SDK types). Returns a function that wraps tool handlers with the same
// pipeline PaymentWrapper.Wrap applies.
func CreatePaymentWrapper(
	resourceServer *x402.X402ResourceServer,
	config PaymentWrapperConfig,
) func(handler ToolHandler) ToolHandler {
	if len(config.Accepts) == 0 {
		panic("PaymentWrapperConfig.accepts must have at least one payment requirement")
	}

	return func(handler ToolHandler) ToolHandler {
		return func(ctx context.Context, args map[string]interface{}, toolContext MCPToolContext) (MCPToolResult, error) {
			meta := toolContext.Meta
			if meta == nil {
				meta = make(map[string]interface{})
			}

			toolName := toolContext.ToolName
			if toolName == "" {
				toolName = "paid_tool"
				if config.Resource != nil && config.Resource.URL != "" {
					if len(config.Resource.URL) > len("mcp://tool/") {
						toolName = config.Resource.URL[len("mcp://tool/"):]
					}
				}
			}

			paymentPayload, err := ExtractPaymentFromMeta(map[string]interface{}{
				"_meta": meta,
			})
			if err != nil || paymentPayload == nil {
				return createPaymentRequiredResult(resourceServer, toolName, config, "Payment required to access this tool")
			}

			paymentRequirements := config.Accepts[0]
			if match := resourceServer.FindMatchingRequirements(config.Accepts, *paymentPayload); match != nil {
				paymentRequirements = *match
			}

			verifyResult, err := resourceServer.VerifyPayment(ctx, *paymentPayload, paymentRequirements)
			if err != nil {
				return createPaymentRequiredResult(resourceServer, toolName, config, fmt.Sprintf("Payment verification error: %v", err))
			}

			if !verifyResult.IsValid {
				reason := verifyResult.InvalidReason
				if reason == "" {
					reason = "Payment verification failed"
				}
				return createPaymentRequiredResult(resourceServer, toolName, config, reason)
			}

			hookContext := ServerHookContext{
				ToolName:            toolName,
				Arguments:           args,
				PaymentRequirements: paymentRequirements,
				PaymentPayload:      *paymentPayload,
			}

			if config.Hooks != nil && config.Hooks.OnBeforeExecution != nil {
				proceed, hookErr := (*config.Hooks.OnBeforeExecution)(hookContext)
				if hookErr != nil {
					return createPaymentRequiredResult(resourceServer, toolName, config, hookErr.Error())
				}
				if !proceed {
					return createPaymentRequiredResult(resourceServer, toolName, config, "Execution blocked by hook")
				}
			}

			result, err := handler(ctx, args, toolContext)
			if err != nil {
				return result, err
			}

			if config.Hooks != nil && config.Hooks.OnAfterExecution != nil {
				// Hook errors on the success path are non-fatal.
				_ = (*config.Hooks.OnAfterExecution)(AfterExecutionContext{
					ServerHookContext: hookContext,
					Result:            result,
				})
			}

			// Tool errors are not billed.
			if result.IsError {
				return result, nil
			}

			settleResult, err := resourceServer.SettlePayment(ctx, *paymentPayload, paymentRequirements)
			if err != nil || !settleResult.Success {
				reason := settleResult.ErrorReason
				if err != nil {
					reason = err.Error()
				}
				return createSettlementFailedResult(resourceServer, toolName, config, reason)
			}

			if config.Hooks != nil && config.Hooks.OnAfterSettlement != nil {
				_ = (*config.Hooks.OnAfterSettlement)(SettlementContext{
					ServerHookContext: hookContext,
					Settlement:        settleResult,
				})
			}

			if result.Meta == nil {
				result.Meta = make(map[string]interface{})
			}
			result.Meta[MCP_PAYMENT_RESPONSE_META_KEY] = settleResult

			return result, nil
		}
	}
}

// createPaymentRequiredResult creates a 402 payment required result.
func createPaymentRequiredResult(
	resourceServer *x402.X402ResourceServer,
	toolName string,
	config PaymentWrapperConfig,
	errorMessage string,
) (MCPToolResult, error) {
	paymentRequired := resourceServer.CreatePaymentRequiredResponse(
		config.Accepts,
		resourceInfoForTool(toolName, config),
		errorMessage,
		nil,
	)

	paymentRequiredBytes, err := json.Marshal(paymentRequired)
	if err != nil {
		return MCPToolResult{}, fmt.Errorf("failed to marshal payment required: %w", err)
	}

	var structuredContent map[string]interface{}
	if err := json.Unmarshal(paymentRequiredBytes, &structuredContent); err != nil {
		return MCPToolResult{}, fmt.Errorf("failed to unmarshal structured content: %w", err)
	}

	return MCPToolResult{
		StructuredContent: structuredContent,
		Content: []MCPContentItem{
			{Type: "text", Text: string(paymentRequiredBytes)},
		},
		IsError: true,
	}, nil
}

// createSettlementFailedResult creates a 402 settlement failed result.
// Settlement failure after the handler already ran is surfaced as a
// follow-on payment required response carrying the failure, never a
// transport-level error.
func createSettlementFailedResult(
	resourceServer *x402.X402ResourceServer,
	toolName string,
	config PaymentWrapperConfig,
	errorMessage string,
) (MCPToolResult, error) {
	paymentRequired := resourceServer.CreatePaymentRequiredResponse(
		config.Accepts,
		resourceInfoForTool(toolName, config),
		fmt.Sprintf("Payment settlement failed: %s", errorMessage),
		nil,
	)

	settlementFailure := map[string]interface{}{
		"success":     false,
		"errorReason": errorMessage,
		"transaction": "",
		"network":     config.Accepts[0].Network,
	}

	paymentRequiredBytes, err := json.Marshal(paymentRequired)
	if err != nil {
		return MCPToolResult{}, fmt.Errorf("failed to marshal payment required: %w", err)
	}

	var errorData map[string]interface{}
	if err := json.Unmarshal(paymentRequiredBytes, &errorData); err != nil {
		return MCPToolResult{}, fmt.Errorf("failed to unmarshal error data: %w", err)
	}

	errorData[MCP_PAYMENT_RESPONSE_META_KEY] = settlementFailure

	contentTextBytes, err := json.Marshal(errorData)
	if err != nil {
		return MCPToolResult{}, fmt.Errorf("failed to marshal error data: %w", err)
	}

	return MCPToolResult{
		StructuredContent: errorData,
		Content: []MCPContentItem{
			{Type: "text", Text: string(contentTextBytes)},
		},
		IsError: true,
	}, nil
}

func resourceInfoForTool(toolName string, config PaymentWrapperConfig) types.ResourceInfo {
	if config.Resource != nil {
		return types.ResourceInfo{
			URL:         CreateToolResourceUrl(toolName, config.Resource.URL),
			Description: config.Resource.Description,
			MimeType:    config.Resource.MimeType,
		}
	}
	return types.ResourceInfo{
		URL: CreateToolResourceUrl(toolName, ""),
	}
}
