package mcp

import (
	"context"
	"fmt"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/types"
)

// X402MCPClient wraps an MCPClientInterface with the payment flow: call
// the tool, and when the result is a 402-shaped error, create a payment
// and retry with it in _meta. Hooks let callers observe or steer each
// stage.
type X402MCPClient struct {
	client        MCPClientInterface
	paymentClient *x402.X402Client
	options       Options

	onPaymentReq PaymentRequiredHook
	onBeforePay  BeforePaymentHook
	onAfterPay   AfterPaymentHook
}

// NewX402MCPClient wraps an MCP client with payment handling driven by
// the given payment client.
func NewX402MCPClient(mcpClient MCPClientInterface, paymentClient *x402.X402Client, options Options) *X402MCPClient {
	return &X402MCPClient{
		client:        mcpClient,
		paymentClient: paymentClient,
		options:       options,
	}
}

// NewX402MCPClientFromConfig builds the payment client from scheme
// registrations first.
func NewX402MCPClientFromConfig(mcpClient MCPClientInterface, schemes []SchemeRegistration, options Options) *X402MCPClient {
	paymentClient := x402.Newx402Client()
	for _, registration := range schemes {
		if registration.Client == nil {
			continue
		}
		if registration.X402Version == 1 {
			paymentClient.RegisterSchemeV1(registration.Network, registration.Client)
		} else {
			paymentClient.RegisterScheme(registration.Network, registration.Client)
		}
	}
	return NewX402MCPClient(mcpClient, paymentClient, options)
}

// WrapMCPClientWithPayment is NewX402MCPClient under its wrapping name.
func WrapMCPClientWithPayment(mcpClient MCPClientInterface, paymentClient *x402.X402Client, options Options) *X402MCPClient {
	return NewX402MCPClient(mcpClient, paymentClient, options)
}

// WrapMCPClientWithPaymentFromConfig is NewX402MCPClientFromConfig under
// its wrapping name.
func WrapMCPClientWithPaymentFromConfig(mcpClient MCPClientInterface, schemes []SchemeRegistration, options Options) *X402MCPClient {
	return NewX402MCPClientFromConfig(mcpClient, schemes, options)
}

// CreateX402MCPClient is NewX402MCPClientFromConfig under its factory
// name.
func CreateX402MCPClient(mcpClient MCPClientInterface, schemes []SchemeRegistration, options Options) *X402MCPClient {
	return NewX402MCPClientFromConfig(mcpClient, schemes, options)
}

// Client returns the wrapped MCP client.
func (c *X402MCPClient) Client() MCPClientInterface {
	return c.client
}

// PaymentClient returns the underlying payment client.
func (c *X402MCPClient) PaymentClient() *x402.X402Client {
	return c.paymentClient
}

// OnPaymentRequired registers the hook fired when a tool demands payment;
// it can abort or supply a pre-built payment.
func (c *X402MCPClient) OnPaymentRequired(hook PaymentRequiredHook) *X402MCPClient {
	c.onPaymentReq = hook
	return c
}

// OnBeforePayment registers the hook fired just before payment creation.
func (c *X402MCPClient) OnBeforePayment(hook BeforePaymentHook) *X402MCPClient {
	c.onBeforePay = hook
	return c
}

// OnAfterPayment registers the hook fired after the paid retry returns.
func (c *X402MCPClient) OnAfterPayment(hook AfterPaymentHook) *X402MCPClient {
	c.onAfterPay = hook
	return c
}

// CallTool invokes a tool, paying and retrying when it demands payment.
func (c *X402MCPClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*MCPToolCallResult, error) {
	result, err := c.client.CallTool(ctx, map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}

	// Not an error, or an error with no payment demand: done.
	if !result.IsError {
		return buildMCPToolCallResult(result, false), nil
	}
	paymentRequired, _ := ExtractPaymentRequiredFromResult(result)
	if paymentRequired == nil || len(paymentRequired.Accepts) == 0 {
		return buildMCPToolCallResult(result, false), nil
	}

	payload, err := c.approveAndCreatePayment(ctx, name, args, paymentRequired)
	if err != nil {
		return nil, err
	}

	return c.callToolWithPayload(ctx, name, args, *payload)
}

// approveAndCreatePayment runs the decision stages between the 402 and
// the paid retry: the OnPaymentRequired hook (abort / custom payment),
// the AutoPayment switch, the OnPaymentRequested approval, the
// OnBeforePayment hook, and finally payment creation through the core
// client's full selection-and-hook pipeline.
func (c *X402MCPClient) approveAndCreatePayment(
	ctx context.Context,
	name string,
	args map[string]interface{},
	paymentRequired *types.PaymentRequired,
) (*types.PaymentPayload, error) {
	prCtx := PaymentRequiredContext{
		ToolName:        name,
		Arguments:       args,
		PaymentRequired: *paymentRequired,
	}

	declined := func(message string) error {
		return &PaymentRequiredError{
			Code:            MCP_PAYMENT_REQUIRED_CODE,
			Message:         message,
			PaymentRequired: paymentRequired,
		}
	}

	if c.onPaymentReq != nil {
		hookResult, err := c.onPaymentReq(prCtx)
		if err != nil {
			return nil, fmt.Errorf("payment required hook error: %w", err)
		}
		if hookResult != nil {
			if hookResult.Abort {
				return nil, declined("Payment required")
			}
			if hookResult.Payment != nil {
				return hookResult.Payment, nil
			}
		}
	}

	if !c.options.AutoPayment {
		return nil, declined("Payment required")
	}

	if c.options.OnPaymentRequested != nil {
		approved, err := c.options.OnPaymentRequested(prCtx)
		if err != nil {
			return nil, fmt.Errorf("payment requested hook error: %w", err)
		}
		if !approved {
			return nil, declined("Payment denied by user")
		}
	}

	if c.onBeforePay != nil {
		if err := c.onBeforePay(prCtx); err != nil {
			return nil, fmt.Errorf("before payment hook error: %w", err)
		}
	}

	payload, err := c.paymentClient.CreatePaymentForRequired(ctx, *paymentRequired)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return &payload, nil
}

// CallToolWithPayment invokes a tool with a payment the caller already
// built.
func (c *X402MCPClient) CallToolWithPayment(ctx context.Context, name string, args map[string]interface{}, payload types.PaymentPayload) (*MCPToolCallResult, error) {
	return c.callToolWithPayload(ctx, name, args, payload)
}

// callToolWithPayload performs the paid call: payment into request _meta,
// settlement response out of result _meta.
func (c *X402MCPClient) callToolWithPayload(ctx context.Context, name string, args map[string]interface{}, payload types.PaymentPayload) (*MCPToolCallResult, error) {
	params := AttachPaymentToMeta(map[string]interface{}{
		"name":      name,
		"arguments": args,
	}, payload)

	result, err := c.client.CallTool(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("paid tool call failed: %w", err)
	}

	if c.onAfterPay != nil {
		if paymentResponse, _ := ExtractPaymentResponseFromMeta(result); paymentResponse != nil {
			_ = c.onAfterPay(AfterPaymentContext{
				ToolName:       name,
				PaymentPayload: payload,
				Result:         result,
				SettleResponse: paymentResponse,
			})
		}
	}

	return buildMCPToolCallResult(result, true), nil
}

// GetToolPaymentRequirements probes a tool's price without paying: the
// unpaid call's 402 carries the accepted options.
func (c *X402MCPClient) GetToolPaymentRequirements(ctx context.Context, name string, args map[string]interface{}) (*types.PaymentRequired, error) {
	result, err := c.client.CallTool(ctx, map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}

	return ExtractPaymentRequiredFromResult(result)
}

// buildMCPToolCallResult folds a tool result and its settlement response
// (when present in _meta) into the caller-facing shape.
func buildMCPToolCallResult(result MCPToolResult, paymentMade bool) *MCPToolCallResult {
	settleResponse, _ := ExtractPaymentResponseFromMeta(result)

	return &MCPToolCallResult{
		Content:         result.Content,
		IsError:         result.IsError,
		PaymentResponse: settleResponse,
		PaymentMade:     paymentMade,
	}
}
