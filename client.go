package x402

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// x402Client manages payment mechanisms and creates payment payloads.
// This is used by applications that need to make payments (have wallets/signers).
type x402Client struct {
	mu sync.RWMutex

	// Nested map: version -> network -> scheme -> client implementation.
	// This allows multiple versions and network patterns.
	schemes map[int]map[Network]map[string]SchemeNetworkClient

	// Function to select payment requirements when multiple options exist.
	requirementsSelector PaymentRequirementsSelector

	// Policies to filter/transform payment requirements.
	policies []PaymentPolicy

	// Money parsers consulted (in order) before a scheme's own ParsePrice,
	// letting a client express amounts the resource's own scheme doesn't
	// natively understand (e.g. a human "$1.50" price routed through a
	// custom parser before it ever reaches the EVM exact mechanism).
	moneyParsers []MoneyParser

	// Lifecycle hooks.
	beforePaymentCreationHooks    []BeforePaymentCreationHook
	afterPaymentCreationHooks     []AfterPaymentCreationHook
	onPaymentCreationFailureHooks []OnPaymentCreationFailureHook

	hookTimeout time.Duration
}

// X402Client is the exported alias for x402Client, used wherever a client
// value is referenced across package boundaries (mechanisms, mcp, http, signers).
type X402Client = x402Client

// PaymentRequirementsSelector chooses which payment option to use.
type PaymentRequirementsSelector func(version int, requirements []PaymentRequirements) PaymentRequirements

// PaymentPolicy filters or transforms payment requirements.
// Policies are applied in order before the selector chooses the final option.
type PaymentPolicy func(version int, requirements []PaymentRequirements) []PaymentRequirements

// SchemeRegistration defines configuration for registering a payment scheme.
type SchemeRegistration struct {
	Network     Network
	Client      SchemeNetworkClient
	X402Version int
}

// X402ClientConfig holds configuration for creating an x402 client.
type X402ClientConfig struct {
	Schemes                     []SchemeRegistration
	Policies                    []PaymentPolicy
	PaymentRequirementsSelector PaymentRequirementsSelector
}

// ClientOption configures the client.
type ClientOption func(*x402Client)

// WithPaymentSelector sets a custom payment requirements selector.
func WithPaymentSelector(selector PaymentRequirementsSelector) ClientOption {
	return func(c *x402Client) {
		c.requirementsSelector = selector
	}
}

// WithPolicy registers a payment policy at creation time.
func WithPolicy(policy PaymentPolicy) ClientOption {
	return func(c *x402Client) {
		c.policies = append(c.policies, policy)
	}
}

// WithScheme registers a payment mechanism at creation time.
func WithScheme(version int, network Network, client SchemeNetworkClient) ClientOption {
	return func(c *x402Client) {
		c.registerScheme(version, network, client)
	}
}

// WithClientHookTimeout bounds any single hook invocation on this client.
// A non-positive value disables the bound.
func WithClientHookTimeout(timeout time.Duration) ClientOption {
	return func(c *x402Client) {
		c.hookTimeout = timeout
	}
}

// WithMoneyParser registers a money parser, tried in registration order
// before any scheme-specific default.
func WithMoneyParser(parser MoneyParser) ClientOption {
	return func(c *x402Client) {
		c.moneyParsers = append(c.moneyParsers, parser)
	}
}

// Newx402Client creates a new x402 client.
func Newx402Client(opts ...ClientOption) *x402Client {
	c := &x402Client{
		schemes:              make(map[int]map[Network]map[string]SchemeNetworkClient),
		requirementsSelector: defaultPaymentSelector,
		policies:             []PaymentPolicy{},
		hookTimeout:          DefaultHookTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Newx402ClientFromConfig creates an x402 client from a configuration object.
func Newx402ClientFromConfig(config X402ClientConfig) *x402Client {
	selector := config.PaymentRequirementsSelector
	if selector == nil {
		selector = defaultPaymentSelector
	}

	c := &x402Client{
		schemes:              make(map[int]map[Network]map[string]SchemeNetworkClient),
		requirementsSelector: selector,
		policies:             []PaymentPolicy{},
		hookTimeout:          DefaultHookTimeout,
	}

	for _, reg := range config.Schemes {
		version := reg.X402Version
		if version == 0 {
			version = ProtocolVersion
		}
		c.registerScheme(version, reg.Network, reg.Client)
	}

	c.policies = append(c.policies, config.Policies...)

	return c
}

// defaultPaymentSelector chooses the first available payment option.
func defaultPaymentSelector(version int, requirements []PaymentRequirements) PaymentRequirements {
	if len(requirements) == 0 {
		panic("no payment requirements available")
	}
	return requirements[0]
}

// RegisterScheme registers a payment mechanism for protocol v2.
func (c *x402Client) RegisterScheme(network Network, client SchemeNetworkClient) *x402Client {
	return c.registerScheme(ProtocolVersion, network, client)
}

// RegisterSchemeV1 registers a payment mechanism for protocol v1.
func (c *x402Client) RegisterSchemeV1(network Network, client SchemeNetworkClient) *x402Client {
	return c.registerScheme(ProtocolVersionV1, network, client)
}

// RegisterPolicy registers a policy to filter or transform payment requirements.
// Policies are applied in order after filtering by registered schemes
// and before the selector chooses the final payment requirement.
func (c *x402Client) RegisterPolicy(policy PaymentPolicy) *x402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies = append(c.policies, policy)
	return c
}

// OnBeforePaymentCreation registers a hook to execute before payment payload
// creation. Can abort creation by returning a result with Abort=true.
func (c *x402Client) OnBeforePaymentCreation(hook BeforePaymentCreationHook) *x402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforePaymentCreationHooks = append(c.beforePaymentCreationHooks, hook)
	return c
}

// OnAfterPaymentCreation registers a hook to execute after successful
// payment payload creation.
func (c *x402Client) OnAfterPaymentCreation(hook AfterPaymentCreationHook) *x402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterPaymentCreationHooks = append(c.afterPaymentCreationHooks, hook)
	return c
}

// OnPaymentCreationFailure registers a hook to execute when payment payload
// creation fails. Can recover from failure by returning a result with
// Recovered=true.
func (c *x402Client) OnPaymentCreationFailure(hook OnPaymentCreationFailureHook) *x402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPaymentCreationFailureHooks = append(c.onPaymentCreationFailureHooks, hook)
	return c
}

func (c *x402Client) registerScheme(version int, network Network, client SchemeNetworkClient) *x402Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schemes[version] == nil {
		c.schemes[version] = make(map[Network]map[string]SchemeNetworkClient)
	}
	if c.schemes[version][network] == nil {
		c.schemes[version][network] = make(map[string]SchemeNetworkClient)
	}

	c.schemes[version][network][client.Scheme()] = client

	return c
}

// SelectPaymentRequirements chooses which payment requirements to use.
// This filters requirements to only those the client can fulfill.
// Selection process:
//  1. Filter by registered schemes (network + scheme support)
//  2. Apply all registered policies in order
//  3. Use selector to choose final requirement
func (c *x402Client) SelectPaymentRequirements(version int, requirements []PaymentRequirements) (PaymentRequirements, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	versionSchemes, exists := c.schemes[version]
	if !exists {
		requested := Network("")
		scheme := ""
		if len(requirements) > 0 {
			requested = requirements[0].Network
			scheme = requirements[0].Scheme
		}
		return PaymentRequirements{}, &SchemeNotFoundError{Version: version, Network: requested, Scheme: scheme}
	}

	var supported []PaymentRequirements
	for _, req := range requirements {
		schemeMap := findSchemesByNetwork(versionSchemes, req.Network)
		if schemeMap != nil {
			if _, hasScheme := schemeMap[req.Scheme]; hasScheme {
				supported = append(supported, req)
			}
		}
	}

	if len(supported) == 0 {
		requested := Network("")
		scheme := ""
		if len(requirements) > 0 {
			requested = requirements[0].Network
			scheme = requirements[0].Scheme
		}
		return PaymentRequirements{}, &SchemeNotFoundError{
			Version:    version,
			Network:    requested,
			Scheme:     scheme,
			Registered: registeredSchemesFor(versionSchemes, version),
		}
	}

	filtered := supported
	for _, policy := range c.policies {
		filtered = policy(version, filtered)
		if len(filtered) == 0 {
			return PaymentRequirements{}, &NoMatchingRequirementsError{Version: version, Accepts: requirements}
		}
	}

	return c.requirementsSelector(version, filtered), nil
}

// CreatePaymentPayload creates a signed partial payment payload for the
// given requirements and wraps it into a full PaymentPayload: v2 nests
// the requirements under Accepted plus resource/extensions; v1 copies
// scheme/network to the top level.
func (c *x402Client) CreatePaymentPayload(
	ctx context.Context,
	version int,
	requirements PaymentRequirements,
	resource *ResourceInfo,
	extensions map[string]interface{},
) (PaymentPayload, error) {
	c.mu.RLock()
	versionSchemes, exists := c.schemes[version]
	c.mu.RUnlock()

	if !exists {
		return PaymentPayload{}, &SchemeNotFoundError{Version: version, Network: requirements.Network, Scheme: requirements.Scheme}
	}

	client := findByNetworkAndScheme(versionSchemes, requirements.Scheme, requirements.Network)
	if client == nil {
		return PaymentPayload{}, &SchemeNotFoundError{
			Version:    version,
			Network:    requirements.Network,
			Scheme:     requirements.Scheme,
			Registered: registeredSchemesFor(versionSchemes, version),
		}
	}

	partial, err := client.CreatePaymentPayload(ctx, version, requirements)
	if err != nil {
		return PaymentPayload{}, fmt.Errorf("failed to create payment payload: %w", err)
	}

	if version == ProtocolVersionV1 {
		return PaymentPayload{
			X402Version: partial.X402Version,
			Payload:     partial.Payload,
			Scheme:      requirements.Scheme,
			Network:     string(requirements.Network),
			Resource:    resource,
			Extensions:  extensions,
		}, nil
	}

	return PaymentPayload{
		X402Version: partial.X402Version,
		Payload:     partial.Payload,
		Accepted:    requirements,
		Resource:    resource,
		Extensions:  extensions,
	}, nil
}

// GetRegisteredSchemes returns a list of registered schemes for debugging.
func (c *x402Client) GetRegisteredSchemes() map[int][]SchemeRegistration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[int][]SchemeRegistration)

	for version, versionSchemes := range c.schemes {
		for network, schemes := range versionSchemes {
			for _, client := range schemes {
				result[version] = append(result[version], SchemeRegistration{
					Network:     network,
					Client:      client,
					X402Version: version,
				})
			}
		}
	}

	return result
}

// CanPay checks if the client can pay with any of the given requirements.
func (c *x402Client) CanPay(version int, requirements []PaymentRequirements) bool {
	_, err := c.SelectPaymentRequirements(version, requirements)
	return err == nil
}

// ParsePriceWithFallback runs registered money parsers in order, falling
// back to the scheme's own ParsePrice if none of them handle the amount.
func (c *x402Client) ParsePriceWithFallback(amount float64, network Network, fallback func(Price, Network) (AssetAmount, error)) (AssetAmount, error) {
	c.mu.RLock()
	parsers := c.moneyParsers
	c.mu.RUnlock()

	for _, parser := range parsers {
		result, err := parser(amount, network)
		if err != nil {
			return AssetAmount{}, err
		}
		if result != nil {
			return *result, nil
		}
	}

	return fallback(amount, network)
}

// CreatePaymentForRequired creates a payment for a PaymentRequired response,
// running the full before/after/failure hook pipeline described by the
// client component's lifecycle.
func (c *x402Client) CreatePaymentForRequired(ctx context.Context, required PaymentRequired) (PaymentPayload, error) {
	selected, err := c.SelectPaymentRequirements(required.X402Version, required.Accepts)
	if err != nil {
		return PaymentPayload{}, err
	}

	hookCtx := PaymentCreationContext{
		Ctx:                  ctx,
		PaymentRequired:      required,
		SelectedRequirements: selected,
	}

	c.mu.RLock()
	beforeHooks := c.beforePaymentCreationHooks
	c.mu.RUnlock()

	for _, hook := range beforeHooks {
		hook := hook
		result, hookErr := runHookBounded(c.hookTimeout, func() (*BeforeHookResult, error) { return hook(hookCtx) })
		if hookErr != nil {
			// Errors (including timeouts) in before-hooks indicate broken
			// caller code and propagate rather than being skipped.
			return PaymentPayload{}, fmt.Errorf("before-payment-creation hook failed: %w", hookErr)
		}
		if result != nil && result.Abort {
			return PaymentPayload{}, &PaymentAbortedError{Reason: result.Reason}
		}
	}

	paymentPayload, paymentErr := c.CreatePaymentPayload(ctx, required.X402Version, selected, required.Resource, required.Extensions)

	if paymentErr == nil {
		c.mu.RLock()
		afterHooks := c.afterPaymentCreationHooks
		c.mu.RUnlock()

		createdCtx := PaymentCreatedContext{
			PaymentCreationContext: hookCtx,
			PaymentPayload:         paymentPayload,
		}

		for _, hook := range afterHooks {
			hook := hook
			// after-hook errors are logged by the caller's logger, never fatal
			_, _ = runHookBounded(c.hookTimeout, func() (struct{}, error) { return struct{}{}, hook(createdCtx) })
		}

		return paymentPayload, nil
	}

	c.mu.RLock()
	failureHooks := c.onPaymentCreationFailureHooks
	c.mu.RUnlock()

	failureCtx := PaymentCreationFailureContext{
		PaymentCreationContext: hookCtx,
		Error:                  paymentErr,
	}

	for _, hook := range failureHooks {
		hook := hook
		result, hookErr := runHookBounded(c.hookTimeout, func() (*PaymentCreationFailureHookResult, error) { return hook(failureCtx) })
		if hookErr != nil {
			return PaymentPayload{}, fmt.Errorf("payment-creation failure hook failed: %w", hookErr)
		}
		if result != nil && result.Recovered {
			return result.Payload, nil
		}
	}

	return PaymentPayload{}, paymentErr
}
