// Package mcp provides MCP (Model Context Protocol) transport integration for the x402 payment protocol.
//
// This package enables paid tool calls in MCP servers and automatic payment handling in MCP clients.
// Payment required is surfaced as a tool result with isError=true carrying the PaymentRequired JSON;
// the client retries with the signed payment in request _meta["x402/payment"], and the settlement
// response comes back in result _meta["x402/payment-response"].
//
// # Client Usage
//
// Wrap an MCP client with payment handling:
//
//	import (
//	    "context"
//	    x402 "github.com/x402go/x402"
//	    "github.com/x402go/x402/mcp"
//	)
//
//	// Create x402 payment client
//	paymentClient := x402.Newx402Client()
//	paymentClient.RegisterScheme("eip155:84532", evmClientScheme)
//
//	// Wrap MCP client
//	x402Mcp := mcp.NewX402MCPClient(mcpClient, paymentClient, mcp.Options{AutoPayment: true})
//
//	// Call tools - payment handled automatically
//	result, err := x402Mcp.CallTool(ctx, "get_weather", map[string]interface{}{"city": "NYC"})
//
// Sessions from the official Go MCP SDK are bridged with NewMCPClientAdapter.
//
// # Server Usage
//
// Wrap tool handlers with payment:
//
//	import (
//	    "context"
//	    x402 "github.com/x402go/x402"
//	    "github.com/x402go/x402/mcp"
//	)
//
//	// Create resource server
//	resourceServer := x402.Newx402ResourceServer(
//	    x402.WithFacilitatorClient(facilitatorClient),
//	    x402.WithSchemeService("eip155:84532", evmService),
//	)
//	if err := resourceServer.Initialize(ctx); err != nil { ... }
//
//	// Build payment requirements
//	accepts, _ := resourceServer.BuildPaymentRequirements(ctx, config)
//
//	// Wrap the tool handler (official SDK handler signature)
//	wrapper := mcp.NewPaymentWrapper(resourceServer, mcp.PaymentWrapperConfig{
//	    Accepts: accepts,
//	})
//	mcpServer.AddTool(tool, wrapper.Wrap(handler))
//
// Servers that never touch the official SDK types can use CreatePaymentWrapper,
// which applies the same pipeline to map-based ToolHandler functions.
//
// # Factory Functions
//
// NewX402MCPClientFromConfig creates a client with scheme registrations:
//
//	x402Mcp := mcp.NewX402MCPClientFromConfig(mcpClient, []mcp.SchemeRegistration{
//	    {Network: "eip155:84532", Client: evmClientScheme},
//	}, mcp.Options{AutoPayment: true})
package mcp
