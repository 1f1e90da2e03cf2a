package types

import x402 "github.com/x402go/x402"

// These aliases let mechanism and transport packages that only need the
// unified (version-agnostic) protocol types depend on the lightweight
// types package instead of importing the root x402 package directly,
// while still sharing exactly one underlying definition.
type (
	PaymentRequirements = x402.PaymentRequirements
	PaymentPayload      = x402.PaymentPayload
	PaymentRequired     = x402.PaymentRequired
	AssetAmount         = x402.AssetAmount
	ResourceInfo        = x402.ResourceInfo
	VerifyResponse      = x402.VerifyResponse
	SettleResponse      = x402.SettleResponse
	SupportedKind       = x402.SupportedKind
	SupportedResponse   = x402.SupportedResponse
	Network             = x402.Network
	Price               = x402.Price
)
