package http

import (
	"strings"

	"github.com/x402go/x402/types"
)

// Browser paywalls. When a 402 lands in an interactive browser, the
// server answers with HTML instead of JSON; which HTML depends on the
// network family of the accepted options (an EVM wallet widget is useless
// for a Solana payment). The provider/handler split below keeps that
// dispatch extensible: one handler per network family, composed into a
// provider.

// PaywallProvider renders the browser-facing 402 page. Deployments
// override the built-in EVM/SVM handling by building their own provider.
type PaywallProvider interface {
	GenerateHTML(paymentRequired types.PaymentRequired, config *PaywallConfig) string
}

// PaywallNetworkHandler renders the page for one network family.
type PaywallNetworkHandler interface {
	// Supports reports whether this handler covers the requirement's
	// network.
	Supports(requirement types.PaymentRequirements) bool

	// GenerateHTML renders the page for a requirement this handler
	// supports.
	GenerateHTML(requirement types.PaymentRequirements, paymentRequired types.PaymentRequired, config *PaywallConfig) string
}

// ============================================================================
// Built-in handlers
// ============================================================================

// EVMPaywallHandler serves eip155:* networks.
type EVMPaywallHandler struct{}

func (h *EVMPaywallHandler) Supports(requirement types.PaymentRequirements) bool {
	return strings.HasPrefix(string(requirement.Network), "eip155:")
}

func (h *EVMPaywallHandler) GenerateHTML(_ types.PaymentRequirements, paymentRequired types.PaymentRequired, config *PaywallConfig) string {
	return injectPaywallConfig(EVMPaywallTemplate, paymentRequired, config)
}

// SVMPaywallHandler serves solana:* networks.
type SVMPaywallHandler struct{}

func (h *SVMPaywallHandler) Supports(requirement types.PaymentRequirements) bool {
	return strings.HasPrefix(string(requirement.Network), "solana:")
}

func (h *SVMPaywallHandler) GenerateHTML(_ types.PaymentRequirements, paymentRequired types.PaymentRequired, config *PaywallConfig) string {
	return injectPaywallConfig(SVMPaywallTemplate, paymentRequired, config)
}

// ============================================================================
// Composition
// ============================================================================

// PaywallBuilder composes network handlers into one provider.
type PaywallBuilder struct {
	handlers []PaywallNetworkHandler
	config   *PaywallConfig
}

// NewPaywallBuilder starts an empty builder.
func NewPaywallBuilder() *PaywallBuilder {
	return &PaywallBuilder{}
}

// WithNetwork appends a network handler; order is dispatch priority.
func (b *PaywallBuilder) WithNetwork(handler PaywallNetworkHandler) *PaywallBuilder {
	b.handlers = append(b.handlers, handler)
	return b
}

// WithConfig sets the fallback paywall configuration, used when a call
// supplies none.
func (b *PaywallBuilder) WithConfig(config *PaywallConfig) *PaywallBuilder {
	b.config = config
	return b
}

// Build produces the composed provider.
func (b *PaywallBuilder) Build() PaywallProvider {
	return &compositePaywallProvider{
		handlers: b.handlers,
		config:   b.config,
	}
}

// compositePaywallProvider walks the accepted options and hands the first
// supported one to its handler; an empty string means no handler covers
// any option.
type compositePaywallProvider struct {
	handlers []PaywallNetworkHandler
	config   *PaywallConfig
}

func (p *compositePaywallProvider) GenerateHTML(paymentRequired types.PaymentRequired, config *PaywallConfig) string {
	effective := config
	if effective == nil {
		effective = p.config
	}

	for _, requirement := range paymentRequired.Accepts {
		for _, handler := range p.handlers {
			if handler.Supports(requirement) {
				return handler.GenerateHTML(requirement, paymentRequired, effective)
			}
		}
	}

	return ""
}

// DefaultPaywallProvider composes the built-in EVM and SVM handlers.
func DefaultPaywallProvider() PaywallProvider {
	return NewPaywallBuilder().
		WithNetwork(&EVMPaywallHandler{}).
		WithNetwork(&SVMPaywallHandler{}).
		Build()
}
