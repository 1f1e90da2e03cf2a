package x402

import (
	"context"
	"time"
)

// ============================================================================
// Client hook contexts
// ============================================================================

// PaymentCreationContext is passed to client payment-creation hooks.
type PaymentCreationContext struct {
	Ctx                  context.Context
	PaymentRequired      PaymentRequired
	SelectedRequirements PaymentRequirements
}

// PaymentCreatedContext is passed to after-creation hooks.
type PaymentCreatedContext struct {
	PaymentCreationContext
	PaymentPayload PaymentPayload
}

// PaymentCreationFailureContext is passed to creation-failure hooks.
type PaymentCreationFailureContext struct {
	PaymentCreationContext
	Error error
}

// BeforeHookResult is returned by a before-hook to abort the pipeline.
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// PaymentCreationFailureHookResult is returned by a creation-failure hook
// to recover and substitute a payload.
type PaymentCreationFailureHookResult struct {
	Recovered bool
	Payload   PaymentPayload
}

type BeforePaymentCreationHook func(PaymentCreationContext) (*BeforeHookResult, error)
type AfterPaymentCreationHook func(PaymentCreatedContext) error
type OnPaymentCreationFailureHook func(PaymentCreationFailureContext) (*PaymentCreationFailureHookResult, error)

// ============================================================================
// Resource server hook contexts (verify / settle)
// ============================================================================

// VerifyContext is passed to verify hooks.
type VerifyContext struct {
	Ctx             context.Context
	Payload         PaymentPayload
	Requirements    PaymentRequirements
	Timestamp       time.Time
	RequestMetadata map[string]interface{}
}

// VerifyResultContext carries the result of a completed verify call.
type VerifyResultContext struct {
	VerifyContext
	Result   VerifyResponse
	Duration time.Duration
}

// VerifyFailureContext carries the error from a failed verify call.
type VerifyFailureContext struct {
	VerifyContext
	Error    error
	Duration time.Duration
}

// SettleContext is passed to settle hooks.
type SettleContext struct {
	Ctx             context.Context
	Payload         PaymentPayload
	Requirements    PaymentRequirements
	Timestamp       time.Time
	RequestMetadata map[string]interface{}
}

// SettleResultContext carries the result of a completed settle call.
type SettleResultContext struct {
	SettleContext
	Result   SettleResponse
	Duration time.Duration
}

// SettleFailureContext carries the error from a failed settle call.
type SettleFailureContext struct {
	SettleContext
	Error    error
	Duration time.Duration
}

// VerifyFailureHookResult lets an OnVerifyFailure hook recover with a
// substitute VerifyResponse instead of propagating the error.
type VerifyFailureHookResult struct {
	Recovered bool
	Result    VerifyResponse
}

// SettleFailureHookResult lets an OnSettleFailure hook recover with a
// substitute SettleResponse instead of propagating the error.
type SettleFailureHookResult struct {
	Recovered bool
	Result    SettleResponse
}

type BeforeVerifyHook func(VerifyContext) (*BeforeHookResult, error)
type AfterVerifyHook func(VerifyResultContext) error
type OnVerifyFailureHook func(VerifyFailureContext) (*VerifyFailureHookResult, error)

type BeforeSettleHook func(SettleContext) (*BeforeHookResult, error)
type AfterSettleHook func(SettleResultContext) error
type OnSettleFailureHook func(SettleFailureContext) (*SettleFailureHookResult, error)

// ============================================================================
// Facilitator hook contexts (mirror the resource-server shapes; kept
// distinct so a facilitator process's hooks aren't coupled to a resource
// server's hook registration, matching how the two components are run as
// independent processes in the reference deployment)
// ============================================================================

type FacilitatorVerifyContext struct {
	Ctx             context.Context
	Payload         PaymentPayload
	Requirements    PaymentRequirements
	Timestamp       time.Time
	RequestMetadata map[string]interface{}
}

type FacilitatorVerifyResultContext struct {
	FacilitatorVerifyContext
	Result   VerifyResponse
	Duration time.Duration
}

type FacilitatorVerifyFailureContext struct {
	FacilitatorVerifyContext
	Error    error
	Duration time.Duration
}

type FacilitatorSettleContext struct {
	Ctx             context.Context
	Payload         PaymentPayload
	Requirements    PaymentRequirements
	Timestamp       time.Time
	RequestMetadata map[string]interface{}
}

type FacilitatorSettleResultContext struct {
	FacilitatorSettleContext
	Result   SettleResponse
	Duration time.Duration
}

type FacilitatorSettleFailureContext struct {
	FacilitatorSettleContext
	Error    error
	Duration time.Duration
}

type FacilitatorBeforeHookResult struct {
	Abort  bool
	Reason string
}

type FacilitatorVerifyFailureHookResult struct {
	Recovered bool
	Result    VerifyResponse
}

type FacilitatorSettleFailureHookResult struct {
	Recovered bool
	Result    SettleResponse
}

type FacilitatorBeforeVerifyHook func(FacilitatorVerifyContext) (*FacilitatorBeforeHookResult, error)
type FacilitatorAfterVerifyHook func(FacilitatorVerifyResultContext) error
type FacilitatorOnVerifyFailureHook func(FacilitatorVerifyFailureContext) (*FacilitatorVerifyFailureHookResult, error)

type FacilitatorBeforeSettleHook func(FacilitatorSettleContext) (*FacilitatorBeforeHookResult, error)
type FacilitatorAfterSettleHook func(FacilitatorSettleResultContext) error
type FacilitatorOnSettleFailureHook func(FacilitatorSettleFailureContext) (*FacilitatorSettleFailureHookResult, error)

// DefaultHookTimeout bounds a single hook invocation. A hook that exceeds
// the budget is abandoned (its goroutine keeps running, its result is
// discarded) and the pipeline sees a timeout error.
const DefaultHookTimeout = 5 * time.Second

// hookTimeoutError is returned when a hook exceeds its time budget.
type hookTimeoutError struct {
	timeout time.Duration
}

func (e *hookTimeoutError) Error() string {
	return "hook exceeded " + e.timeout.String() + " budget"
}

// runHookBounded invokes fn, enforcing timeout. A non-positive timeout
// runs fn inline with no bound.
func runHookBounded[T any](timeout time.Duration, fn func() (T, error)) (T, error) {
	if timeout <= 0 {
		return fn()
	}

	type outcome struct {
		result T
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := fn()
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-time.After(timeout):
		var zero T
		return zero, &hookTimeoutError{timeout: timeout}
	}
}
