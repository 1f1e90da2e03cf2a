package x402

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// ConcreteNetworksProvider is optionally implemented by a
// SchemeNetworkFacilitator registered under a wildcard pattern so that
// GetSupported can still advertise the specific networks it actually
// backs, instead of emitting nothing for the wildcard entry.
type ConcreteNetworksProvider interface {
	ConcreteNetworks() []Network
}

// SignersProvider is optionally implemented by a SchemeNetworkFacilitator
// whose scheme settles with facilitator-controlled keys, so GetSupported
// can advertise those addresses per network (e.g. the SVM fee-payer pool a
// client must name in its transaction).
type SignersProvider interface {
	GetSigners(network Network) []string
}

// x402Facilitator manages payment verification and settlement.
// This is used by payment processors that execute settlements.
type x402Facilitator struct {
	mu sync.RWMutex

	// Nested map: version -> network pattern -> scheme -> facilitator implementation.
	schemes map[int]map[Network]map[string]SchemeNetworkFacilitator

	// Extensions this facilitator supports (e.g., "bazaar", "payment-identifier").
	extensions []string

	settlementStore SettlementStore
	hookTimeout     time.Duration

	beforeVerifyHooks     []FacilitatorBeforeVerifyHook
	afterVerifyHooks      []FacilitatorAfterVerifyHook
	onVerifyFailureHooks  []FacilitatorOnVerifyFailureHook
	beforeSettleHooks     []FacilitatorBeforeSettleHook
	afterSettleHooks      []FacilitatorAfterSettleHook
	onSettleFailureHooks  []FacilitatorOnSettleFailureHook
}

// X402Facilitator is the exported alias for x402Facilitator, used wherever a
// facilitator value is referenced across package boundaries.
type X402Facilitator = x402Facilitator

// FacilitatorOption configures the facilitator at construction time.
type FacilitatorOption func(*x402Facilitator)

// WithFacilitatorSettlementTTL sets how long settled responses are cached
// for idempotent replay of a repeated settle request.
func WithFacilitatorSettlementTTL(ttl time.Duration) FacilitatorOption {
	return func(f *x402Facilitator) {
		f.settlementStore = NewSettlementCache(ttl)
	}
}

// WithFacilitatorSettlementStore swaps in a non-default SettlementStore,
// e.g. a Redis-backed one shared across a facilitator's instances.
func WithFacilitatorSettlementStore(store SettlementStore) FacilitatorOption {
	return func(f *x402Facilitator) {
		f.settlementStore = store
	}
}

// WithFacilitatorHookTimeout bounds any single hook invocation on this
// facilitator. A non-positive value disables the bound.
func WithFacilitatorHookTimeout(timeout time.Duration) FacilitatorOption {
	return func(f *x402Facilitator) {
		f.hookTimeout = timeout
	}
}

// Newx402Facilitator creates a new facilitator.
func Newx402Facilitator(opts ...FacilitatorOption) *x402Facilitator {
	f := &x402Facilitator{
		schemes:         make(map[int]map[Network]map[string]SchemeNetworkFacilitator),
		extensions:      []string{},
		settlementStore: NewSettlementCache(10 * time.Minute),
		hookTimeout:     DefaultHookTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RegisterScheme registers a payment mechanism for protocol v2.
func (f *x402Facilitator) RegisterScheme(network Network, facilitator SchemeNetworkFacilitator) *x402Facilitator {
	return f.registerScheme(ProtocolVersion, network, facilitator)
}

// RegisterSchemeV1 registers a payment mechanism for protocol v1.
func (f *x402Facilitator) RegisterSchemeV1(network Network, facilitator SchemeNetworkFacilitator) *x402Facilitator {
	return f.registerScheme(ProtocolVersionV1, network, facilitator)
}

func (f *x402Facilitator) registerScheme(version int, network Network, facilitator SchemeNetworkFacilitator) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.schemes[version] == nil {
		f.schemes[version] = make(map[Network]map[string]SchemeNetworkFacilitator)
	}
	if f.schemes[version][network] == nil {
		f.schemes[version][network] = make(map[string]SchemeNetworkFacilitator)
	}

	f.schemes[version][network][facilitator.Scheme()] = facilitator

	return f
}

// RegisterExtension registers a protocol extension, deduplicating repeats.
func (f *x402Facilitator) RegisterExtension(extension string) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ext := range f.extensions {
		if ext == extension {
			return f
		}
	}

	f.extensions = append(f.extensions, extension)
	return f
}

// OnBeforeVerify registers a hook run before a facilitator-side verify.
func (f *x402Facilitator) OnBeforeVerify(hook FacilitatorBeforeVerifyHook) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeVerifyHooks = append(f.beforeVerifyHooks, hook)
	return f
}

// OnAfterVerify registers a hook run after a successful verify.
func (f *x402Facilitator) OnAfterVerify(hook FacilitatorAfterVerifyHook) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterVerifyHooks = append(f.afterVerifyHooks, hook)
	return f
}

// OnVerifyFailure registers a hook run when verify returns an error.
func (f *x402Facilitator) OnVerifyFailure(hook FacilitatorOnVerifyFailureHook) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onVerifyFailureHooks = append(f.onVerifyFailureHooks, hook)
	return f
}

// OnBeforeSettle registers a hook run before a facilitator-side settle.
func (f *x402Facilitator) OnBeforeSettle(hook FacilitatorBeforeSettleHook) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeSettleHooks = append(f.beforeSettleHooks, hook)
	return f
}

// OnAfterSettle registers a hook run after a successful settle.
func (f *x402Facilitator) OnAfterSettle(hook FacilitatorAfterSettleHook) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterSettleHooks = append(f.afterSettleHooks, hook)
	return f
}

// OnSettleFailure registers a hook run when settle returns an error.
func (f *x402Facilitator) OnSettleFailure(hook FacilitatorOnSettleFailureHook) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSettleFailureHooks = append(f.onSettleFailureHooks, hook)
	return f
}

func (f *x402Facilitator) findMechanism(payload PaymentPayload, requirements PaymentRequirements) (SchemeNetworkFacilitator, error) {
	version := payload.X402Version
	if version == 0 {
		version = ProtocolVersion
	}

	f.mu.RLock()
	versionSchemes, exists := f.schemes[version]
	f.mu.RUnlock()

	if !exists {
		return nil, &SchemeNotFoundError{Version: version, Network: requirements.Network, Scheme: requirements.Scheme}
	}

	mechanism := findByNetworkAndScheme(versionSchemes, requirements.Scheme, requirements.Network)
	if mechanism == nil {
		return nil, &SchemeNotFoundError{Version: version, Network: requirements.Network, Scheme: requirements.Scheme}
	}

	return mechanism, nil
}

// Verify checks if a payment is valid without executing it, running the
// facilitator's before/after/failure hook pipeline around the mechanism call.
func (f *x402Facilitator) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error) {
	mechanism, err := f.findMechanism(payload, requirements)
	if err != nil {
		return VerifyResponse{IsValid: false, InvalidReason: err.Error()}, err
	}

	hookCtx := FacilitatorVerifyContext{
		Ctx:          ctx,
		Payload:      payload,
		Requirements: requirements,
		Timestamp:    time.Now(),
	}

	f.mu.RLock()
	beforeHooks := f.beforeVerifyHooks
	afterHooks := f.afterVerifyHooks
	failureHooks := f.onVerifyFailureHooks
	f.mu.RUnlock()

	for _, hook := range beforeHooks {
		hook := hook
		result, hookErr := runHookBounded(f.hookTimeout, func() (*FacilitatorBeforeHookResult, error) { return hook(hookCtx) })
		if hookErr != nil {
			// Errors (including timeouts) in before-hooks propagate.
			return VerifyResponse{IsValid: false, InvalidReason: hookErr.Error()}, fmt.Errorf("before-verify hook failed: %w", hookErr)
		}
		if result != nil && result.Abort {
			return VerifyResponse{IsValid: false, InvalidReason: result.Reason}, &PaymentAbortedError{Reason: result.Reason}
		}
	}

	start := time.Now()
	resp, err := mechanism.Verify(ctx, payload, requirements)
	duration := time.Since(start)

	if err != nil {
		wrapped := &VerifyError{Scheme: requirements.Scheme, Network: requirements.Network, Err: err}
		failureCtx := FacilitatorVerifyFailureContext{FacilitatorVerifyContext: hookCtx, Error: wrapped, Duration: duration}

		for _, hook := range failureHooks {
			hook := hook
			result, hookErr := runHookBounded(f.hookTimeout, func() (*FacilitatorVerifyFailureHookResult, error) { return hook(failureCtx) })
			if hookErr != nil {
				return VerifyResponse{IsValid: false, InvalidReason: err.Error()}, fmt.Errorf("verify-failure hook failed: %w", hookErr)
			}
			if result != nil && result.Recovered {
				return result.Result, nil
			}
		}

		return VerifyResponse{IsValid: false, InvalidReason: err.Error()}, wrapped
	}

	resultCtx := FacilitatorVerifyResultContext{FacilitatorVerifyContext: hookCtx, Result: resp, Duration: duration}
	for _, hook := range afterHooks {
		hook := hook
		_, _ = runHookBounded(f.hookTimeout, func() (struct{}, error) { return struct{}{}, hook(resultCtx) })
	}

	return resp, nil
}

// Settle executes a payment, deduping retries of the same payload via the
// settlement cache so a client's timeout-triggered retry never double-spends.
func (f *x402Facilitator) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	mechanism, err := f.findMechanism(payload, requirements)
	if err != nil {
		return SettleResponse{Success: false, ErrorReason: err.Error(), Network: requirements.Network}, err
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return SettleResponse{Success: false, ErrorReason: err.Error(), Network: requirements.Network}, err
	}
	key := GenerateSettlementKey(payloadBytes)

	status, cached, done := f.settlementStore.CheckAndMark(key)
	switch status {
	case StatusCached:
		return *cached, nil
	case StatusInFlight:
		result, waitErr := f.settlementStore.WaitForResult(ctx, key, done)
		if waitErr != nil {
			return SettleResponse{Success: false, ErrorReason: waitErr.Error(), Network: requirements.Network}, waitErr
		}
		if result != nil {
			return *result, nil
		}
		return SettleResponse{
			Success:     false,
			ErrorReason: "nonce_already_used",
			Network:     requirements.Network,
		}, fmt.Errorf("settlement %s: in-flight attempt did not succeed", key)
	}

	hookCtx := FacilitatorSettleContext{
		Ctx:          ctx,
		Payload:      payload,
		Requirements: requirements,
		Timestamp:    time.Now(),
	}

	f.mu.RLock()
	beforeHooks := f.beforeSettleHooks
	afterHooks := f.afterSettleHooks
	failureHooks := f.onSettleFailureHooks
	f.mu.RUnlock()

	for _, hook := range beforeHooks {
		hook := hook
		result, hookErr := runHookBounded(f.hookTimeout, func() (*FacilitatorBeforeHookResult, error) { return hook(hookCtx) })
		if hookErr != nil {
			f.settlementStore.Fail(key, done)
			return SettleResponse{Success: false, ErrorReason: hookErr.Error(), Network: requirements.Network}, fmt.Errorf("before-settle hook failed: %w", hookErr)
		}
		if result != nil && result.Abort {
			f.settlementStore.Fail(key, done)
			abortErr := &PaymentAbortedError{Reason: result.Reason}
			return SettleResponse{Success: false, ErrorReason: result.Reason, Network: requirements.Network}, abortErr
		}
	}

	start := time.Now()
	resp, err := mechanism.Settle(ctx, payload, requirements)
	duration := time.Since(start)

	if err != nil {
		wrapped := &SettleError{Scheme: requirements.Scheme, Network: requirements.Network, Err: err}
		failureCtx := FacilitatorSettleFailureContext{FacilitatorSettleContext: hookCtx, Error: wrapped, Duration: duration}

		for _, hook := range failureHooks {
			hook := hook
			result, hookErr := runHookBounded(f.hookTimeout, func() (*FacilitatorSettleFailureHookResult, error) { return hook(failureCtx) })
			if hookErr != nil {
				f.settlementStore.Fail(key, done)
				return SettleResponse{Success: false, ErrorReason: err.Error(), Network: requirements.Network}, fmt.Errorf("settle-failure hook failed: %w", hookErr)
			}
			if result != nil && result.Recovered {
				f.settlementStore.Complete(key, &result.Result, done)
				return result.Result, nil
			}
		}

		f.settlementStore.Fail(key, done)
		return SettleResponse{Success: false, ErrorReason: err.Error(), Network: requirements.Network}, wrapped
	}

	f.settlementStore.Complete(key, &resp, done)

	resultCtx := FacilitatorSettleResultContext{FacilitatorSettleContext: hookCtx, Result: resp, Duration: duration}
	for _, hook := range afterHooks {
		hook := hook
		_, _ = runHookBounded(f.hookTimeout, func() (struct{}, error) { return struct{}{}, hook(resultCtx) })
	}

	return resp, nil
}

// GetSupported returns the payment kinds this facilitator supports.
// An exact network pattern is emitted as its own SupportedKind; a wildcard
// pattern is only emitted if its mechanism implements ConcreteNetworksProvider,
// in which case one SupportedKind is emitted per concrete network advertised.
// Mechanisms implementing SignersProvider contribute their per-network
// signer addresses to the response.
func (f *x402Facilitator) GetSupported() SupportedResponse {
	f.mu.RLock()
	defer f.mu.RUnlock()

	response := SupportedResponse{
		Kinds:      []SupportedKind{},
		Extensions: f.extensions,
		Signers:    map[string][]string{},
	}

	emit := func(version int, scheme string, network Network, mechanism SchemeNetworkFacilitator) {
		response.Kinds = append(response.Kinds, SupportedKind{
			X402Version: version,
			Scheme:      scheme,
			Network:     network,
			Extra:       mechanism.GetExtra(network),
		})
		if provider, ok := mechanism.(SignersProvider); ok {
			if signers := provider.GetSigners(network); len(signers) > 0 {
				response.Signers[string(network)] = signers
			}
		}
	}

	for version, versionSchemes := range f.schemes {
		for pattern, schemes := range versionSchemes {
			for scheme, mechanism := range schemes {
				if patternSpecificity(pattern) == 2 {
					emit(version, scheme, pattern, mechanism)
					continue
				}

				if provider, ok := mechanism.(ConcreteNetworksProvider); ok {
					for _, network := range provider.ConcreteNetworks() {
						emit(version, scheme, network, mechanism)
					}
				}
			}
		}
	}

	return response
}

// CanHandle checks if the facilitator can handle a payment type.
func (f *x402Facilitator) CanHandle(version int, network Network, scheme string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	versionSchemes, exists := f.schemes[version]
	if !exists {
		return false
	}

	var zero SchemeNetworkFacilitator
	return findByNetworkAndScheme(versionSchemes, scheme, network) != zero
}

// LocalFacilitatorClient wraps a local facilitator to implement FacilitatorClient.
// This allows using a local facilitator in the same process as a ResourceServer.
type LocalFacilitatorClient struct {
	facilitator *x402Facilitator
	identifier  string
}

// NewLocalFacilitatorClient creates a facilitator client backed by a local facilitator.
func NewLocalFacilitatorClient(facilitator *x402Facilitator) *LocalFacilitatorClient {
	return &LocalFacilitatorClient{facilitator: facilitator, identifier: "local"}
}

func (c *LocalFacilitatorClient) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error) {
	return c.facilitator.Verify(ctx, payload, requirements)
}

func (c *LocalFacilitatorClient) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error) {
	return c.facilitator.Settle(ctx, payload, requirements)
}

func (c *LocalFacilitatorClient) GetSupported(ctx context.Context) (SupportedResponse, error) {
	return c.facilitator.GetSupported(), nil
}

func (c *LocalFacilitatorClient) Identifier() string {
	return c.identifier
}

// FacilitatorExtension is an out-of-band configuration object a facilitator
// deployment can supply to a scheme mechanism's verify/settle implementation
// through a FacilitatorContext (e.g. a smart-wallet batch signer used only by
// the ERC-20 approval gas-sponsoring variant of the EVM exact mechanism).
// It is unrelated to the protocol-level extension declarations carried in
// PaymentRequired.extensions; it exists purely to avoid widening every
// mechanism's verify/settle signature for configuration only a handful of
// scheme variants need.
type FacilitatorExtension interface {
	// Key identifies which mechanism-specific extension this object configures.
	Key() string
}

// FacilitatorContext carries FacilitatorExtension objects a mechanism's
// verify/settle implementation can look up by key. Built once at facilitator
// construction and threaded through to mechanisms that need it; read-only
// after construction, safe for concurrent use.
type FacilitatorContext struct {
	extensions map[string]FacilitatorExtension
}

// NewFacilitatorContext builds a FacilitatorContext from a key->extension map.
// A nil map is treated as empty.
func NewFacilitatorContext(extensions map[string]FacilitatorExtension) *FacilitatorContext {
	if extensions == nil {
		extensions = map[string]FacilitatorExtension{}
	}
	return &FacilitatorContext{extensions: extensions}
}

// GetExtension returns the registered extension for key, or nil if none was
// registered. Callers type-assert the result to the concrete extension type
// they expect.
func (fc *FacilitatorContext) GetExtension(key string) FacilitatorExtension {
	if fc == nil {
		return nil
	}
	return fc.extensions[key]
}
