package x402

import "context"

// MoneyParser is a function that converts a decimal amount to an AssetAmount.
// If the parser cannot handle the conversion, it should return nil.
// Multiple parsers can be registered and will be tried in order; the
// scheme's own default parsing always runs as the final fallback.
//
// Args:
//
//	amount: Decimal amount (e.g., 1.50 for $1.50)
//	network: Network identifier
//
// Returns:
//
//	AssetAmount or nil if this parser cannot handle the conversion
type MoneyParser func(amount float64, network Network) (*AssetAmount, error)

// SchemeNetworkClient is implemented by client-side payment mechanisms.
// This interface is used by clients who sign/create payments.
type SchemeNetworkClient interface {
	// Scheme returns the payment scheme identifier (e.g., "exact").
	Scheme() string

	// CreatePaymentPayload creates a signed payment for the given requirements.
	// Returns a partial payload (x402Version + payload); the client wraps it
	// with accepted/resource/extensions for v2, or copies scheme/network to
	// the top level for v1.
	CreatePaymentPayload(ctx context.Context, version int, requirements PaymentRequirements) (PartialPaymentPayload, error)
}

// SchemeNetworkFacilitator is implemented by facilitator-side payment mechanisms.
// This interface is used by facilitators who verify and settle payments.
type SchemeNetworkFacilitator interface {
	// Scheme returns the payment scheme identifier (e.g., "exact").
	Scheme() string

	// Verify checks if a payment is valid without executing it.
	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error)

	// Settle executes the payment.
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error)

	// GetExtra returns scheme-specific metadata to publish in SupportedKind.Extra.
	// Returns nil when the scheme has nothing to advertise.
	GetExtra(network Network) map[string]interface{}
}

// SchemeNetworkService is implemented by server-side payment mechanisms.
// This interface is used by resource servers who build payment requirements.
type SchemeNetworkService interface {
	// Scheme returns the payment scheme identifier (e.g., "exact").
	Scheme() string

	// ParsePrice converts a user-friendly price to asset/amount format.
	ParsePrice(price Price, network Network) (AssetAmount, error)

	// EnhancePaymentRequirements adds scheme-specific details to requirements.
	EnhancePaymentRequirements(
		ctx context.Context,
		requirements PaymentRequirements,
		supportedKind SupportedKind,
		extensions []string,
	) (PaymentRequirements, error)
}

// FacilitatorClient is how a ResourceServer talks to a facilitator, whether
// that facilitator runs in-process (LocalFacilitatorClient) or over HTTP
// (httpadapter.FacilitatorClient).
type FacilitatorClient interface {
	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (SettleResponse, error)
	GetSupported(ctx context.Context) (SupportedResponse, error)
}

// IdentifiableFacilitatorClient is a FacilitatorClient that can name itself,
// used by ResourceServer when it must report which facilitator handled (or
// rejected) a payment.
type IdentifiableFacilitatorClient interface {
	FacilitatorClient
	Identifier() string
}
