package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// sdkSessionAdapter bridges a connected official-SDK session
// (github.com/modelcontextprotocol/go-sdk/mcp) to MCPClientInterface.
// The payment flow only exercises CallTool/ListTools; everything else is
// a passthrough to the session.
type sdkSessionAdapter struct {
	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
}

// NewMCPClientAdapter wraps an official Go MCP SDK client and its
// connected session for use with NewX402MCPClient /
// NewX402MCPClientFromConfig.
//
//	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "my-agent", Version: "1.0.0"}, nil)
//	session, err := mcpClient.Connect(ctx, transport, nil)
//	if err != nil { ... }
//
//	adapter := mcp.NewMCPClientAdapter(mcpClient, session)
//	x402Mcp := mcp.NewX402MCPClientFromConfig(adapter, schemes, options)
func NewMCPClientAdapter(client *mcpsdk.Client, session *mcpsdk.ClientSession) MCPClientInterface {
	return &sdkSessionAdapter{client: client, session: session}
}

// Connect is a no-op: the adapter is built around an already-connected
// session.
func (a *sdkSessionAdapter) Connect(ctx context.Context, transport interface{}) error {
	return nil
}

func (a *sdkSessionAdapter) Close(ctx context.Context) error {
	return a.session.Close()
}

// CallTool translates the map-based call (name/arguments/_meta) into SDK
// params and the SDK result back into the map-based shape, preserving
// structuredContent and _meta — both carry payment data.
func (a *sdkSessionAdapter) CallTool(ctx context.Context, params map[string]interface{}) (MCPToolResult, error) {
	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]interface{})

	callParams := &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	}
	if meta, ok := params["_meta"].(map[string]interface{}); ok && meta != nil {
		callParams.Meta = mcpsdk.Meta(meta)
	}

	result, err := a.session.CallTool(ctx, callParams)
	if err != nil {
		return MCPToolResult{}, err
	}

	return sdkResultToMCPToolResult(result), nil
}

func (a *sdkSessionAdapter) ListTools(ctx context.Context) (interface{}, error) {
	return a.session.ListTools(ctx, nil)
}

func (a *sdkSessionAdapter) ListResources(ctx context.Context) (interface{}, error) {
	return a.session.ListResources(ctx, nil)
}

func (a *sdkSessionAdapter) ReadResource(ctx context.Context, uri string) (interface{}, error) {
	return a.session.ReadResource(ctx, &mcpsdk.ReadResourceParams{URI: uri})
}

func (a *sdkSessionAdapter) ListResourceTemplates(ctx context.Context) (interface{}, error) {
	return a.session.ListResourceTemplates(ctx, nil)
}

func (a *sdkSessionAdapter) SubscribeResource(ctx context.Context, uri string) error {
	return a.session.Subscribe(ctx, &mcpsdk.SubscribeParams{URI: uri})
}

func (a *sdkSessionAdapter) UnsubscribeResource(ctx context.Context, uri string) error {
	return a.session.Unsubscribe(ctx, &mcpsdk.UnsubscribeParams{URI: uri})
}

func (a *sdkSessionAdapter) ListPrompts(ctx context.Context) (interface{}, error) {
	return a.session.ListPrompts(ctx, nil)
}

func (a *sdkSessionAdapter) GetPrompt(ctx context.Context, name string) (interface{}, error) {
	return a.session.GetPrompt(ctx, &mcpsdk.GetPromptParams{Name: name})
}

// initResult returns the session's initialize result, erroring when the
// handshake hasn't completed.
func (a *sdkSessionAdapter) initResult() (*mcpsdk.InitializeResult, error) {
	result := a.session.InitializeResult()
	if result == nil {
		return nil, fmt.Errorf("session not initialized")
	}
	return result, nil
}

func (a *sdkSessionAdapter) GetServerCapabilities(ctx context.Context) (interface{}, error) {
	result, err := a.initResult()
	if err != nil {
		return nil, err
	}
	return result.Capabilities, nil
}

func (a *sdkSessionAdapter) GetServerVersion(ctx context.Context) (interface{}, error) {
	result, err := a.initResult()
	if err != nil {
		return nil, err
	}
	return result.ServerInfo.Version, nil
}

func (a *sdkSessionAdapter) GetInstructions(ctx context.Context) (string, error) {
	result, err := a.initResult()
	if err != nil {
		return "", err
	}
	return result.Instructions, nil
}

func (a *sdkSessionAdapter) Ping(ctx context.Context) error {
	return a.session.Ping(ctx, &mcpsdk.PingParams{})
}

func (a *sdkSessionAdapter) Complete(ctx context.Context, prompt string, cursor int) (interface{}, error) {
	return a.session.Complete(ctx, &mcpsdk.CompleteParams{
		Ref: &mcpsdk.CompleteReference{
			Type: "ref/prompt",
			Name: prompt,
		},
		Argument: mcpsdk.CompleteParamsArgument{
			Name:  "argument",
			Value: prompt,
		},
	})
}

func (a *sdkSessionAdapter) SetLoggingLevel(ctx context.Context, level string) error {
	return a.session.SetLoggingLevel(ctx, &mcpsdk.SetLoggingLevelParams{Level: mcpsdk.LoggingLevel(level)})
}

// SendRootsListChanged is a no-op: the official SDK emits this
// notification itself from Client.AddRoots/RemoveRoots. Callers managing
// roots should hold the underlying *mcpsdk.Client.
func (a *sdkSessionAdapter) SendRootsListChanged(ctx context.Context) error {
	return nil
}
