package mcp

import (
	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/types"
)

// Wire conventions for payment over MCP. Payment required travels as a
// tool result with isError=true; the signed payment rides in request
// _meta; the settlement response comes back in result _meta.
const (
	// MCP_PAYMENT_REQUIRED_CODE mirrors HTTP 402 in JSON-RPC error form.
	MCP_PAYMENT_REQUIRED_CODE = 402

	// MCP_PAYMENT_META_KEY carries the PaymentPayload, client → server.
	MCP_PAYMENT_META_KEY = "x402/payment"

	// MCP_PAYMENT_RESPONSE_META_KEY carries the SettleResponse, server → client.
	MCP_PAYMENT_RESPONSE_META_KEY = "x402/payment-response"
)

// ============================================================================
// Transport-neutral tool shapes
// ============================================================================

// MCPToolResult is the SDK-neutral tool result this package moves payment
// data through: content items, the error flag, and the two out-of-band
// channels (structuredContent for PaymentRequired, _meta for payloads and
// settlement responses).
type MCPToolResult struct {
	Content           []MCPContentItem
	IsError           bool
	Meta              map[string]interface{}
	StructuredContent map[string]interface{}
}

// MCPContentItem is one content entry of a tool result.
type MCPContentItem struct {
	Type string
	Text string
	Data map[string]interface{}
}

// MCPToolContext carries per-invocation context into a wrapped tool
// handler.
type MCPToolContext struct {
	ToolName  string
	Arguments map[string]interface{}
	Meta      map[string]interface{}
}

// MCPToolCallResult is what the payment-aware client returns: the tool
// result plus whether a payment happened and how it settled.
type MCPToolCallResult struct {
	Content         []MCPContentItem
	IsError         bool
	PaymentResponse *x402.SettleResponse
	PaymentMade     bool
}

// ============================================================================
// Client-side configuration and hooks
// ============================================================================

// Options configures the payment-aware MCP client.
type Options struct {
	// AutoPayment pays and retries automatically when a tool demands
	// payment; when false the 402 surfaces as a PaymentRequiredError.
	AutoPayment bool

	// OnPaymentRequested, when set, is asked to approve each payment
	// before it is created.
	OnPaymentRequested func(context PaymentRequiredContext) (bool, error)
}

// PaymentRequiredContext is what the client-side hooks see when a tool
// demands payment.
type PaymentRequiredContext struct {
	ToolName        string
	Arguments       map[string]interface{}
	PaymentRequired types.PaymentRequired
}

// PaymentRequiredHookResult lets an OnPaymentRequired hook abort the flow
// or supply its own pre-built payment.
type PaymentRequiredHookResult struct {
	Payment *types.PaymentPayload
	Abort   bool
}

// PaymentRequiredHook fires when a 402-style tool result arrives.
type PaymentRequiredHook func(context PaymentRequiredContext) (*PaymentRequiredHookResult, error)

// BeforePaymentHook fires just before the payment payload is created.
type BeforePaymentHook func(context PaymentRequiredContext) error

// AfterPaymentContext is handed to AfterPaymentHook once the paid retry
// completes.
type AfterPaymentContext struct {
	ToolName       string
	PaymentPayload types.PaymentPayload
	Result         MCPToolResult
	SettleResponse *x402.SettleResponse
}

// AfterPaymentHook fires after a paid tool call returns.
type AfterPaymentHook func(context AfterPaymentContext) error

// ============================================================================
// Server-side configuration and hooks
// ============================================================================

// PaymentWrapperConfig configures a payment wrapper around tool handlers.
type PaymentWrapperConfig struct {
	Accepts  []types.PaymentRequirements
	Resource *ResourceInfo
	Hooks    *PaymentWrapperHooks
}

// ResourceInfo describes the paid tool for PaymentRequired responses.
type ResourceInfo struct {
	URL         string
	Description string
	MimeType    string
}

// PaymentWrapperHooks are the optional server-side stages around tool
// execution and settlement.
type PaymentWrapperHooks struct {
	OnBeforeExecution *BeforeExecutionHook
	OnAfterExecution  *AfterExecutionHook
	OnAfterSettlement *AfterSettlementHook
}

// ServerHookContext is the shared context for the server-side hooks.
type ServerHookContext struct {
	ToolName            string
	Arguments           map[string]interface{}
	PaymentRequirements types.PaymentRequirements
	PaymentPayload      types.PaymentPayload
}

// BeforeExecutionHook runs after verification, before the tool executes;
// returning false blocks execution.
type BeforeExecutionHook func(context ServerHookContext) (bool, error)

// AfterExecutionContext extends ServerHookContext with the tool's result.
type AfterExecutionContext struct {
	ServerHookContext
	Result MCPToolResult
}

// AfterExecutionHook runs after the tool executes, before settlement.
type AfterExecutionHook func(context AfterExecutionContext) error

// SettlementContext extends ServerHookContext with the settlement result.
type SettlementContext struct {
	ServerHookContext
	Settlement x402.SettleResponse
}

// AfterSettlementHook runs after a successful settlement.
type AfterSettlementHook func(context SettlementContext) error

// ============================================================================
// Errors and dynamic pricing
// ============================================================================

// PaymentRequiredError is raised client-side when a tool demands payment
// and auto-payment is off (or a hook aborted).
type PaymentRequiredError struct {
	Code            int
	Message         string
	PaymentRequired *types.PaymentRequired
}

func (e *PaymentRequiredError) Error() string {
	return e.Message
}

// DynamicPayTo resolves the recipient per tool call.
type DynamicPayTo func(context MCPToolContext) (string, error)

// DynamicPrice resolves the price per tool call.
type DynamicPrice func(context MCPToolContext) (x402.Price, error)

// MCPToolPaymentConfig is the per-tool payment declaration used by
// adapters that derive PaymentWrapperConfig from tool metadata; PayTo and
// Price accept either literals or their Dynamic* resolver forms.
type MCPToolPaymentConfig struct {
	Scheme            string
	Network           x402.Network
	Price             interface{} // x402.Price or DynamicPrice
	PayTo             interface{} // string or DynamicPayTo
	MaxTimeoutSeconds *int
	Extra             map[string]interface{}
	Resource          *ResourceInfo
}

// SchemeRegistration pairs a network with a client mechanism when
// building a payment client from configuration.
type SchemeRegistration struct {
	Network     x402.Network
	Client      x402.SchemeNetworkClient
	X402Version int // 1 or 2 (defaults to 2)
}
