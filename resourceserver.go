package x402

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ResourceExtension lets a protocol extension (e.g. bazaar discovery)
// enrich a resource's declared extension data before it's published in a
// PaymentRequired response, given whatever transport-specific context the
// adapter (HTTP, MCP) supplies.
type ResourceExtension interface {
	Key() string
	EnrichDeclaration(declaration interface{}, transportContext interface{}) interface{}
}

// x402ResourceServer manages payment requirements and verification for
// protected resources. This is used by servers/APIs that charge for access.
type x402ResourceServer struct {
	mu                    sync.RWMutex
	schemes               map[Network]map[string]SchemeNetworkService
	facilitatorClients    []FacilitatorClient
	registeredExtensions  map[string]ResourceExtension
	supportedCache        *SupportedCache
	facilitatorClientsMap map[int]map[Network]map[string]FacilitatorClient
	hookTimeout           time.Duration

	beforeVerifyHooks    []BeforeVerifyHook
	afterVerifyHooks     []AfterVerifyHook
	onVerifyFailureHooks []OnVerifyFailureHook
	beforeSettleHooks    []BeforeSettleHook
	afterSettleHooks     []AfterSettleHook
	onSettleFailureHooks []OnSettleFailureHook
}

// X402ResourceServer is the exported alias for x402ResourceServer, used
// wherever a resource server value is referenced across package boundaries.
type X402ResourceServer = x402ResourceServer

// X402ResourceService is an alias for X402ResourceServer kept for transport
// adapters (HTTP, MCP) that embed it under the "resource service" name used
// when serving protected resources over a specific transport.
type X402ResourceService = x402ResourceServer

// ResourceServiceOption is an alias for ResourceServerOption.
type ResourceServiceOption = ResourceServerOption

// Newx402ResourceService is an alias constructor for Newx402ResourceServer,
// used by transport adapters that embed the resource server under the
// "resource service" name.
func Newx402ResourceService(opts ...ResourceServiceOption) *X402ResourceService {
	return Newx402ResourceServer(opts...)
}

// SupportedCache caches each registered facilitator's advertised capabilities.
type SupportedCache struct {
	mu     sync.RWMutex
	data   map[string]SupportedResponse
	expiry map[string]time.Time
	ttl    time.Duration
}

// Set adds an item to the cache.
func (c *SupportedCache) Set(key string, value SupportedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.expiry[key] = time.Now().Add(c.ttl)
}

// Clear empties the cache.
func (c *SupportedCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]SupportedResponse)
	c.expiry = make(map[string]time.Time)
}

// ResourceServerOption configures the resource server.
type ResourceServerOption func(*x402ResourceServer)

// WithFacilitatorClient adds a facilitator client, in priority order: the
// first facilitator registered to support a given (version, network,
// scheme) wins when more than one could serve the same request.
func WithFacilitatorClient(client FacilitatorClient) ResourceServerOption {
	return func(s *x402ResourceServer) {
		s.facilitatorClients = append(s.facilitatorClients, client)
	}
}

// WithSchemeService registers a scheme service implementation.
func WithSchemeService(network Network, service SchemeNetworkService) ResourceServerOption {
	return func(s *x402ResourceServer) {
		s.registerScheme(network, service)
	}
}

// WithCacheTTL sets the cache TTL for supported kinds.
func WithCacheTTL(ttl time.Duration) ResourceServerOption {
	return func(s *x402ResourceServer) {
		s.supportedCache.ttl = ttl
	}
}

// WithHookTimeout bounds any single hook invocation on this server.
// A non-positive value disables the bound.
func WithHookTimeout(timeout time.Duration) ResourceServerOption {
	return func(s *x402ResourceServer) {
		s.hookTimeout = timeout
	}
}

// Newx402ResourceServer creates a new resource server.
func Newx402ResourceServer(opts ...ResourceServerOption) *x402ResourceServer {
	s := &x402ResourceServer{
		schemes:              make(map[Network]map[string]SchemeNetworkService),
		facilitatorClients:   []FacilitatorClient{},
		registeredExtensions: make(map[string]ResourceExtension),
		supportedCache: &SupportedCache{
			data:   make(map[string]SupportedResponse),
			expiry: make(map[string]time.Time),
			ttl:    DefaultSupportedCacheTTLSeconds * time.Second,
		},
		facilitatorClientsMap: make(map[int]map[Network]map[string]FacilitatorClient),
		hookTimeout:           DefaultHookTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Initialize fetches supported payment kinds from all facilitators.
// Must be called on startup (and whenever a facilitator's capabilities may
// have changed) to populate the cache and the routing map.
func (s *x402ResourceServer) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.facilitatorClientsMap = make(map[int]map[Network]map[string]FacilitatorClient)

	var lastErr error
	successCount := 0

	for i, client := range s.facilitatorClients {
		supported, err := client.GetSupported(ctx)
		if err != nil {
			lastErr = fmt.Errorf("facilitator %d: %w", i, err)
			continue
		}

		key := fmt.Sprintf("facilitator_%d", i)
		s.supportedCache.Set(key, supported)
		successCount++

		for _, kind := range supported.Kinds {
			if s.facilitatorClientsMap[kind.X402Version] == nil {
				s.facilitatorClientsMap[kind.X402Version] = make(map[Network]map[string]FacilitatorClient)
			}
			versionMap := s.facilitatorClientsMap[kind.X402Version]

			if versionMap[kind.Network] == nil {
				versionMap[kind.Network] = make(map[string]FacilitatorClient)
			}
			networkMap := versionMap[kind.Network]

			if _, exists := networkMap[kind.Scheme]; !exists {
				networkMap[kind.Scheme] = client
			}
		}
	}

	if successCount == 0 && lastErr != nil {
		return fmt.Errorf("failed to initialize any facilitators: %w", lastErr)
	}

	return nil
}

func (s *x402ResourceServer) RegisterScheme(network Network, service SchemeNetworkService) *x402ResourceServer {
	return s.registerScheme(network, service)
}

func (s *x402ResourceServer) registerScheme(network Network, service SchemeNetworkService) *x402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schemes[network] == nil {
		s.schemes[network] = make(map[string]SchemeNetworkService)
	}
	s.schemes[network][service.Scheme()] = service

	return s
}

// RegisterExtension registers a resource extension (e.g. bazaar discovery).
func (s *x402ResourceServer) RegisterExtension(extension ResourceExtension) *x402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registeredExtensions[extension.Key()] = extension
	return s
}

// EnrichExtensions runs each declared extension's data through its
// registered ResourceExtension, passing through unrecognized keys untouched.
func (s *x402ResourceServer) EnrichExtensions(declaredExtensions map[string]interface{}, transportContext interface{}) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	enriched := make(map[string]interface{}, len(declaredExtensions))
	for key, declaration := range declaredExtensions {
		if extension, ok := s.registeredExtensions[key]; ok {
			enriched[key] = extension.EnrichDeclaration(declaration, transportContext)
		} else {
			enriched[key] = declaration
		}
	}

	return enriched
}

// OnBeforeVerify registers a hook run before payment verification.
func (s *x402ResourceServer) OnBeforeVerify(hook BeforeVerifyHook) *x402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeVerifyHooks = append(s.beforeVerifyHooks, hook)
	return s
}

// OnAfterVerify registers a hook run after successful payment verification.
func (s *x402ResourceServer) OnAfterVerify(hook AfterVerifyHook) *x402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterVerifyHooks = append(s.afterVerifyHooks, hook)
	return s
}

// OnVerifyFailure registers a hook run when payment verification fails.
func (s *x402ResourceServer) OnVerifyFailure(hook OnVerifyFailureHook) *x402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onVerifyFailureHooks = append(s.onVerifyFailureHooks, hook)
	return s
}

// OnBeforeSettle registers a hook run before payment settlement.
func (s *x402ResourceServer) OnBeforeSettle(hook BeforeSettleHook) *x402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeSettleHooks = append(s.beforeSettleHooks, hook)
	return s
}

// OnAfterSettle registers a hook run after successful payment settlement.
func (s *x402ResourceServer) OnAfterSettle(hook AfterSettleHook) *x402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterSettleHooks = append(s.afterSettleHooks, hook)
	return s
}

// OnSettleFailure registers a hook run when payment settlement fails.
func (s *x402ResourceServer) OnSettleFailure(hook OnSettleFailureHook) *x402ResourceServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSettleFailureHooks = append(s.onSettleFailureHooks, hook)
	return s
}

// BuildPaymentRequirements creates payment requirements for a protected resource.
func (s *x402ResourceServer) BuildPaymentRequirements(ctx context.Context, config ResourceConfig) ([]PaymentRequirements, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	version := config.X402Version
	if version == 0 {
		version = ProtocolVersion
	}

	service := findByNetworkAndScheme(s.schemes, config.Scheme, config.Network)
	if service == nil {
		return nil, &SchemeNotFoundError{Version: version, Network: config.Network, Scheme: config.Scheme}
	}

	supportedKind := s.findSupportedKindLocked(version, config.Network, config.Scheme)
	if supportedKind == nil {
		return nil, &PaymentError{
			Code:    ErrCodeUnsupportedNetwork,
			Message: fmt.Sprintf("facilitator does not support %s on %s", config.Scheme, config.Network),
			Details: map[string]interface{}{"hint": "call Initialize() to fetch supported kinds from facilitators"},
		}
	}

	assetAmount, err := service.ParsePrice(config.Price, config.Network)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price: %w", err)
	}

	baseRequirements := PaymentRequirements{
		Scheme:            config.Scheme,
		Network:           config.Network,
		Asset:             assetAmount.Asset,
		Amount:            assetAmount.Amount,
		PayTo:             config.PayTo,
		MaxTimeoutSeconds: config.MaxTimeoutSeconds,
		Extra:             assetAmount.Extra,
		X402Version:       version,
	}
	if baseRequirements.MaxTimeoutSeconds == 0 {
		baseRequirements.MaxTimeoutSeconds = DefaultMaxTimeoutSeconds
	}

	extensions := s.getFacilitatorExtensionsLocked(version, config.Network, config.Scheme)

	enhanced, err := service.EnhancePaymentRequirements(ctx, baseRequirements, *supportedKind, extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to enhance payment requirements: %w", err)
	}

	return []PaymentRequirements{enhanced}, nil
}

// CreatePaymentRequiredResponse builds a 402 response body.
func (s *x402ResourceServer) CreatePaymentRequiredResponse(
	requirements []PaymentRequirements,
	info ResourceInfo,
	errorMsg string,
	extensions map[string]interface{},
) PaymentRequired {
	if errorMsg == "" {
		errorMsg = "Payment required"
	}

	return PaymentRequired{
		X402Version: ProtocolVersion,
		Error:       errorMsg,
		Resource:    &info,
		Accepts:     requirements,
		Extensions:  extensions,
	}
}

// VerifyPayment verifies a payment against requirements, running the
// resource server's hook pipeline and routing to the facilitator that
// advertised support for this (version, network, scheme); falls back to
// trying every registered facilitator if none is known to support it.
func (s *x402ResourceServer) VerifyPayment(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error) {
	hookCtx := VerifyContext{Ctx: ctx, Payload: payload, Requirements: requirements, Timestamp: time.Now()}

	s.mu.RLock()
	beforeHooks := s.beforeVerifyHooks
	afterHooks := s.afterVerifyHooks
	failureHooks := s.onVerifyFailureHooks
	s.mu.RUnlock()

	for _, hook := range beforeHooks {
		hook := hook
		result, err := runHookBounded(s.hookTimeout, func() (*BeforeHookResult, error) { return hook(hookCtx) })
		if err != nil {
			// Errors (including timeouts) in before-hooks propagate.
			return VerifyResponse{IsValid: false, InvalidReason: err.Error()}, fmt.Errorf("before-verify hook failed: %w", err)
		}
		if result != nil && result.Abort {
			return VerifyResponse{IsValid: false, InvalidReason: result.Reason}, &PaymentAbortedError{Reason: result.Reason}
		}
	}

	version := payload.X402Version
	if version == 0 {
		version = ProtocolVersion
	}

	start := time.Now()
	client := s.findFacilitatorForPayment(version, requirements.Network, requirements.Scheme)

	var resp VerifyResponse
	var err error
	if client != nil {
		resp, err = client.Verify(ctx, payload, requirements)
	} else {
		resp, err = s.verifyViaAnyFacilitator(ctx, payload, requirements)
	}
	duration := time.Since(start)

	if err != nil {
		failureCtx := VerifyFailureContext{VerifyContext: hookCtx, Error: err, Duration: duration}
		for _, hook := range failureHooks {
			hook := hook
			result, hookErr := runHookBounded(s.hookTimeout, func() (*VerifyFailureHookResult, error) { return hook(failureCtx) })
			if hookErr != nil {
				return resp, fmt.Errorf("verify-failure hook failed: %w", hookErr)
			}
			if result != nil && result.Recovered {
				return result.Result, nil
			}
		}
		return resp, err
	}

	resultCtx := VerifyResultContext{VerifyContext: hookCtx, Result: resp, Duration: duration}
	for _, hook := range afterHooks {
		hook := hook
		_, _ = runHookBounded(s.hookTimeout, func() (struct{}, error) { return struct{}{}, hook(resultCtx) })
	}

	return resp, nil
}

func (s *x402ResourceServer) verifyViaAnyFacilitator(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error) {
	s.mu.RLock()
	clients := s.facilitatorClients
	s.mu.RUnlock()

	var lastErr error
	for _, client := range clients {
		resp, err := client.Verify(ctx, payload, requirements)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = &PaymentError{Code: ErrCodeUnsupportedNetwork, Message: "no facilitator supports this payment type"}
	}
	return VerifyResponse{IsValid: false, InvalidReason: "no facilitator available for verification"}, lastErr
}

// SettlePayment settles a verified payment, running the resource server's
// hook pipeline and routing the same way VerifyPayment does.
func (s *x402ResourceServer) SettlePayment(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	hookCtx := SettleContext{Ctx: ctx, Payload: payload, Requirements: requirements, Timestamp: time.Now()}

	s.mu.RLock()
	beforeHooks := s.beforeSettleHooks
	afterHooks := s.afterSettleHooks
	failureHooks := s.onSettleFailureHooks
	s.mu.RUnlock()

	for _, hook := range beforeHooks {
		hook := hook
		result, err := runHookBounded(s.hookTimeout, func() (*BeforeHookResult, error) { return hook(hookCtx) })
		if err != nil {
			return SettleResponse{Success: false, ErrorReason: err.Error(), Network: requirements.Network}, fmt.Errorf("before-settle hook failed: %w", err)
		}
		if result != nil && result.Abort {
			return SettleResponse{Success: false, ErrorReason: result.Reason, Network: requirements.Network}, &PaymentAbortedError{Reason: result.Reason}
		}
	}

	version := payload.X402Version
	if version == 0 {
		version = ProtocolVersion
	}

	start := time.Now()
	client := s.findFacilitatorForPayment(version, requirements.Network, requirements.Scheme)

	var resp SettleResponse
	var err error
	if client != nil {
		resp, err = client.Settle(ctx, payload, requirements)
	} else {
		resp, err = s.settleViaAnyFacilitator(ctx, payload, requirements)
	}
	duration := time.Since(start)

	if err != nil {
		failureCtx := SettleFailureContext{SettleContext: hookCtx, Error: err, Duration: duration}
		for _, hook := range failureHooks {
			hook := hook
			result, hookErr := runHookBounded(s.hookTimeout, func() (*SettleFailureHookResult, error) { return hook(failureCtx) })
			if hookErr != nil {
				return resp, fmt.Errorf("settle-failure hook failed: %w", hookErr)
			}
			if result != nil && result.Recovered {
				return result.Result, nil
			}
		}
		return resp, err
	}

	resultCtx := SettleResultContext{SettleContext: hookCtx, Result: resp, Duration: duration}
	for _, hook := range afterHooks {
		hook := hook
		_, _ = runHookBounded(s.hookTimeout, func() (struct{}, error) { return struct{}{}, hook(resultCtx) })
	}

	return resp, nil
}

func (s *x402ResourceServer) settleViaAnyFacilitator(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	s.mu.RLock()
	clients := s.facilitatorClients
	s.mu.RUnlock()

	var lastErr error
	for _, client := range clients {
		resp, err := client.Settle(ctx, payload, requirements)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = &PaymentError{Code: ErrCodeSettlementFailed, Message: "no facilitator supports this payment type"}
	}
	return SettleResponse{Success: false, ErrorReason: "no facilitator available for settlement", Network: requirements.Network}, lastErr
}

// FindMatchingRequirements finds the requirement set among available that a
// payment payload was created against: protocol version, scheme, network
// (v1 at the top level, v2 under Accepted), amount, asset, and payTo must
// all match. A candidate with no X402Version set (built outside
// BuildPaymentRequirements) matches payloads of either version.
func (s *x402ResourceServer) FindMatchingRequirements(available []PaymentRequirements, payload PaymentPayload) *PaymentRequirements {
	scheme, network := payload.EffectiveSchemeAndNetwork()
	accepted := payload.Accepted

	payloadVersion := payload.X402Version
	if payloadVersion == 0 {
		payloadVersion = ProtocolVersion
	}

	for i := range available {
		req := available[i]
		if req.X402Version != 0 && req.X402Version != payloadVersion {
			continue
		}
		if req.Scheme != scheme || string(req.Network) != network {
			continue
		}
		if accepted.Amount != "" && req.Amount != accepted.Amount {
			continue
		}
		if accepted.Asset != "" && req.Asset != accepted.Asset {
			continue
		}
		if accepted.PayTo != "" && req.PayTo != accepted.PayTo {
			continue
		}
		return &req
	}

	return nil
}

// ProcessResult is the outcome of processing an inbound request against a
// protected resource end-to-end.
type ProcessResult struct {
	Success            bool
	RequiresPayment    *PaymentRequired
	VerificationResult *VerifyResponse
	SettlementResult   *SettleResponse
	Error              string
}

// ProcessPaymentRequest processes a payment request end-to-end: builds the
// requirements for the resource, returns a 402 if no payment (or no
// matching payment) was presented, and otherwise verifies it.
func (s *x402ResourceServer) ProcessPaymentRequest(
	ctx context.Context,
	paymentPayload *PaymentPayload,
	resourceConfig ResourceConfig,
	resourceInfo ResourceInfo,
	extensions map[string]interface{},
) (*ProcessResult, error) {
	requirements, err := s.BuildPaymentRequirements(ctx, resourceConfig)
	if err != nil {
		return nil, err
	}

	if paymentPayload == nil {
		return &ProcessResult{
			Success: false,
			RequiresPayment: &PaymentRequired{
				X402Version: ProtocolVersion,
				Error:       "Payment required",
				Resource:    &resourceInfo,
				Accepts:     requirements,
				Extensions:  extensions,
			},
		}, nil
	}

	matching := s.FindMatchingRequirements(requirements, *paymentPayload)
	if matching == nil {
		return &ProcessResult{
			Success: false,
			RequiresPayment: &PaymentRequired{
				X402Version: ProtocolVersion,
				Error:       "No matching payment requirements found",
				Resource:    &resourceInfo,
				Accepts:     requirements,
				Extensions:  extensions,
			},
		}, nil
	}

	verificationResult, err := s.VerifyPayment(ctx, *paymentPayload, *matching)
	if err != nil {
		return nil, err
	}

	if !verificationResult.IsValid {
		return &ProcessResult{
			Success:            false,
			Error:              verificationResult.InvalidReason,
			VerificationResult: &verificationResult,
		}, nil
	}

	return &ProcessResult{
		Success:            true,
		VerificationResult: &verificationResult,
	}, nil
}

// findSupportedKindLocked finds a supported kind from the cache.
// Callers must hold s.mu (read or write).
func (s *x402ResourceServer) findSupportedKindLocked(version int, network Network, scheme string) *SupportedKind {
	s.supportedCache.mu.RLock()
	defer s.supportedCache.mu.RUnlock()

	for key, supported := range s.supportedCache.data {
		if expiry, exists := s.supportedCache.expiry[key]; exists && time.Now().After(expiry) {
			continue
		}
		for _, kind := range supported.Kinds {
			if kind.X402Version == version && kind.Scheme == scheme && network.Match(kind.Network) {
				k := kind
				return &k
			}
		}
	}

	return nil
}

// getFacilitatorExtensionsLocked returns the extensions advertised by the
// facilitator backing a (version, network, scheme). Callers must hold s.mu.
func (s *x402ResourceServer) getFacilitatorExtensionsLocked(version int, network Network, scheme string) []string {
	s.supportedCache.mu.RLock()
	defer s.supportedCache.mu.RUnlock()

	for _, supported := range s.supportedCache.data {
		for _, kind := range supported.Kinds {
			if kind.X402Version == version && kind.Scheme == scheme && network.Match(kind.Network) {
				return supported.Extensions
			}
		}
	}

	return []string{}
}

// findFacilitatorForPayment finds the facilitator client known (from the
// last Initialize call) to support a payment type.
func (s *x402ResourceServer) findFacilitatorForPayment(version int, network Network, scheme string) FacilitatorClient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versionMap, exists := s.facilitatorClientsMap[version]
	if !exists {
		return nil
	}

	return findByNetworkAndScheme(versionMap, scheme, network)
}
