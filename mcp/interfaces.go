package mcp

import (
	"context"
)

// ToolCaller is the minimum surface the payment flow needs: invoking a
// tool (with _meta riding in the params map) and listing what's offered.
type ToolCaller interface {
	CallTool(ctx context.Context, params map[string]interface{}) (MCPToolResult, error)
	ListTools(ctx context.Context) (interface{}, error)
}

// ResourceBrowser covers the MCP resource operations a payment-aware
// client passes straight through.
type ResourceBrowser interface {
	ListResources(ctx context.Context) (interface{}, error)
	ReadResource(ctx context.Context, uri string) (interface{}, error)
	ListResourceTemplates(ctx context.Context) (interface{}, error)
	SubscribeResource(ctx context.Context, uri string) error
	UnsubscribeResource(ctx context.Context, uri string) error
}

// PromptBrowser covers the MCP prompt operations.
type PromptBrowser interface {
	ListPrompts(ctx context.Context) (interface{}, error)
	GetPrompt(ctx context.Context, name string) (interface{}, error)
}

// ServerIntrospection exposes what the server declared at initialize time.
type ServerIntrospection interface {
	GetServerCapabilities(ctx context.Context) (interface{}, error)
	GetServerVersion(ctx context.Context) (interface{}, error)
	GetInstructions(ctx context.Context) (string, error)
}

// MCPClientInterface is the full client surface this package wraps with
// payment handling. It deliberately mirrors a generic MCP SDK session so
// any SDK can be bridged with a thin adapter (NewMCPClientAdapter covers
// the official Go SDK); only the ToolCaller portion participates in the
// payment flow, the rest passes through untouched.
type MCPClientInterface interface {
	Connect(ctx context.Context, transport interface{}) error
	Close(ctx context.Context) error

	ToolCaller
	ResourceBrowser
	PromptBrowser
	ServerIntrospection

	Ping(ctx context.Context) error
	Complete(ctx context.Context, prompt string, cursor int) (interface{}, error)
	SetLoggingLevel(ctx context.Context, level string) error
	SendRootsListChanged(ctx context.Context) error
}
