package http

import (
	"context"
	"fmt"
	"sync"

	x402 "github.com/x402go/x402"
)

// MultiFacilitatorClient fans a resource server's facilitator traffic out
// across several facilitator clients, routing each payment to the client
// that advertised support for its (version, scheme, network) and merging
// every client's supported kinds into one response.
type MultiFacilitatorClient struct {
	clients []x402.FacilitatorClient

	mu        sync.Mutex
	supported map[int]*x402.SupportedResponse // client index -> cached GetSupported result
}

// NewMultiFacilitatorClient creates a facilitator client that routes across
// the given clients. Routing prefers the first client whose supported kinds
// match the payment; when none matches (or support is unknown), each client
// is tried in registration order.
func NewMultiFacilitatorClient(clients ...x402.FacilitatorClient) *MultiFacilitatorClient {
	return &MultiFacilitatorClient{
		clients:   clients,
		supported: make(map[int]*x402.SupportedResponse),
	}
}

// Identifier names this client for resource-server reporting.
func (m *MultiFacilitatorClient) Identifier() string {
	return fmt.Sprintf("multi(%d facilitators)", len(m.clients))
}

// Verify routes the payment to the supporting facilitator, falling back to
// trying each client in order until one accepts it.
func (m *MultiFacilitatorClient) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	if client := m.clientFor(ctx, payload, requirements); client != nil {
		return client.Verify(ctx, payload, requirements)
	}

	var lastErr error
	for _, client := range m.clients {
		resp, err := client.Verify(ctx, payload, requirements)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no facilitator clients configured")
	}
	return x402.VerifyResponse{IsValid: false, InvalidReason: "no facilitator available for verification"}, lastErr
}

// Settle routes the payment the same way Verify does.
func (m *MultiFacilitatorClient) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	if client := m.clientFor(ctx, payload, requirements); client != nil {
		return client.Settle(ctx, payload, requirements)
	}

	var lastErr error
	for _, client := range m.clients {
		resp, err := client.Settle(ctx, payload, requirements)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no facilitator clients configured")
	}
	return x402.SettleResponse{Success: false, ErrorReason: "no facilitator available for settlement", Network: requirements.Network}, lastErr
}

// GetSupported merges every client's supported kinds, extensions, and
// signers. A client whose GetSupported fails is skipped; the call only
// errors when no client responds.
func (m *MultiFacilitatorClient) GetSupported(ctx context.Context) (x402.SupportedResponse, error) {
	merged := x402.SupportedResponse{
		Kinds:      []x402.SupportedKind{},
		Extensions: []string{},
		Signers:    map[string][]string{},
	}
	seenExtensions := make(map[string]bool)

	var lastErr error
	responded := false
	for i := range m.clients {
		resp, err := m.supportedFor(ctx, i)
		if err != nil {
			lastErr = err
			continue
		}
		responded = true

		merged.Kinds = append(merged.Kinds, resp.Kinds...)
		for _, ext := range resp.Extensions {
			if !seenExtensions[ext] {
				seenExtensions[ext] = true
				merged.Extensions = append(merged.Extensions, ext)
			}
		}
		for network, signers := range resp.Signers {
			merged.Signers[network] = append(merged.Signers[network], signers...)
		}
	}

	if !responded && lastErr != nil {
		return x402.SupportedResponse{}, lastErr
	}
	return merged, nil
}

// clientFor returns the first client whose cached supported kinds cover the
// payment, or nil when no client is known to support it.
func (m *MultiFacilitatorClient) clientFor(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) x402.FacilitatorClient {
	version := payload.X402Version
	if version == 0 {
		version = x402.ProtocolVersion
	}
	scheme, network := payload.EffectiveSchemeAndNetwork()
	if scheme == "" {
		scheme = requirements.Scheme
	}
	if network == "" {
		network = string(requirements.Network)
	}

	for i, client := range m.clients {
		resp, err := m.supportedFor(ctx, i)
		if err != nil {
			continue
		}
		for _, kind := range resp.Kinds {
			if kind.X402Version == version && kind.Scheme == scheme && x402.Network(network).Match(kind.Network) {
				return client
			}
		}
	}
	return nil
}

func (m *MultiFacilitatorClient) supportedFor(ctx context.Context, index int) (x402.SupportedResponse, error) {
	m.mu.Lock()
	cached := m.supported[index]
	m.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	resp, err := m.clients[index].GetSupported(ctx)
	if err != nil {
		return x402.SupportedResponse{}, err
	}

	m.mu.Lock()
	m.supported[index] = &resp
	m.mu.Unlock()
	return resp, nil
}
