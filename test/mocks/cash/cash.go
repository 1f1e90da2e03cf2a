// Package cash is the in-memory payment mechanism the test suites drive
// end to end. There is no chain: a "signature" is just "~" + the payer's
// name, expiry is a unix timestamp in the payload, and settlement is a
// narration string. That makes every protocol-level behavior (selection,
// hooks, verify/settle routing, header round-trips) observable without a
// single RPC.
package cash

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	x402 "github.com/x402go/x402"
)

const (
	schemeName  = "cash"
	networkName = "x402:cash"
)

// signatureFor derives the scheme's "signature" for a payer name.
func signatureFor(name string) string {
	return "~" + name
}

// ============================================================================
// Client half
// ============================================================================

// SchemeNetworkClient is the cash client mechanism: it "signs" by
// prefixing the payer's name.
type SchemeNetworkClient struct {
	payer string
}

// NewSchemeNetworkClient creates a cash client signing as payer.
func NewSchemeNetworkClient(payer string) *SchemeNetworkClient {
	return &SchemeNetworkClient{payer: payer}
}

// Scheme returns the payment scheme identifier.
func (c *SchemeNetworkClient) Scheme() string {
	return schemeName
}

// CreatePaymentPayload builds the cash authorization: signature, payer
// name, and an expiry derived from the requirement's timeout.
func (c *SchemeNetworkClient) CreatePaymentPayload(ctx context.Context, version int, requirements x402.PaymentRequirements) (x402.PartialPaymentPayload, error) {
	validUntil := time.Now().Add(time.Duration(requirements.MaxTimeoutSeconds) * time.Second).Unix()

	return x402.PartialPaymentPayload{
		X402Version: version,
		Payload: map[string]interface{}{
			"signature":  signatureFor(c.payer),
			"validUntil": strconv.FormatInt(validUntil, 10),
			"name":       c.payer,
		},
	}, nil
}

// ============================================================================
// Facilitator half
// ============================================================================

// SchemeNetworkFacilitator verifies and settles cash payments.
type SchemeNetworkFacilitator struct{}

// NewSchemeNetworkFacilitator creates the cash facilitator mechanism.
func NewSchemeNetworkFacilitator() *SchemeNetworkFacilitator {
	return &SchemeNetworkFacilitator{}
}

// Scheme returns the payment scheme identifier.
func (f *SchemeNetworkFacilitator) Scheme() string {
	return schemeName
}

// GetExtra returns scheme metadata for SupportedKind.Extra; cash has none.
func (f *SchemeNetworkFacilitator) GetExtra(network x402.Network) map[string]interface{} {
	return nil
}

// payloadField reads a required string field, reporting the stable
// missing-field reason on absence.
func payloadField(payload x402.PaymentPayload, field string) (string, string) {
	value, ok := payload.Payload[field].(string)
	if !ok {
		return "", "missing_" + field
	}
	return value, ""
}

// Verify checks the cash authorization: signature matches the name,
// expiry is in the future.
func (f *SchemeNetworkFacilitator) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	reject := func(reason string) (x402.VerifyResponse, error) {
		return x402.VerifyResponse{IsValid: false, InvalidReason: reason}, nil
	}

	signature, missing := payloadField(payload, "signature")
	if missing != "" {
		return reject(missing)
	}
	name, missing := payloadField(payload, "name")
	if missing != "" {
		return reject(missing)
	}
	validUntilStr, missing := payloadField(payload, "validUntil")
	if missing != "" {
		return reject(missing)
	}

	if signature != signatureFor(name) {
		return reject("invalid_signature")
	}

	validUntil, err := strconv.ParseInt(validUntilStr, 10, 64)
	if err != nil {
		return reject("invalid_validUntil")
	}
	if validUntil < time.Now().Unix() {
		return reject("expired_signature")
	}

	return x402.VerifyResponse{IsValid: true, Payer: signature}, nil
}

// Settle re-verifies defensively, then "transfers": the transaction is a
// narration of who paid what to whom.
func (f *SchemeNetworkFacilitator) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	verifyResponse, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: err.Error(),
			Network:     requirements.Network,
		}, nil
	}
	if !verifyResponse.IsValid {
		return x402.SettleResponse{
			Success:     false,
			ErrorReason: verifyResponse.InvalidReason,
			Payer:       verifyResponse.Payer,
			Network:     requirements.Network,
		}, nil
	}

	name, _ := payload.Payload["name"].(string)

	return x402.SettleResponse{
		Success:     true,
		Transaction: fmt.Sprintf("%s transferred %s %s to %s", name, requirements.Amount, requirements.Asset, requirements.PayTo),
		Network:     requirements.Network,
		Payer:       verifyResponse.Payer,
	}, nil
}

// ============================================================================
// Service half
// ============================================================================

// SchemeNetworkService parses cash prices (everything is "USD").
type SchemeNetworkService struct{}

// NewSchemeNetworkService creates the cash server-side mechanism.
func NewSchemeNetworkService() *SchemeNetworkService {
	return &SchemeNetworkService{}
}

// Scheme returns the payment scheme identifier.
func (s *SchemeNetworkService) Scheme() string {
	return schemeName
}

// ParsePrice accepts an AssetAmount, an {amount, asset} map, a dollar
// string, or a bare number; everything lands in USD.
func (s *SchemeNetworkService) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	switch p := price.(type) {
	case x402.AssetAmount:
		return p, nil

	case map[string]interface{}:
		amount, _ := p["amount"].(string)
		asset, _ := p["asset"].(string)
		if asset == "" {
			asset = "USD"
		}
		return x402.AssetAmount{Amount: amount, Asset: asset}, nil

	case string:
		cleaned := strings.TrimPrefix(p, "$")
		cleaned = strings.TrimSuffix(cleaned, " USD")
		cleaned = strings.TrimSuffix(cleaned, "USD")
		return x402.AssetAmount{Amount: strings.TrimSpace(cleaned), Asset: "USD"}, nil

	case float64:
		return x402.AssetAmount{Amount: fmt.Sprintf("%.2f", p), Asset: "USD"}, nil

	case int:
		return x402.AssetAmount{Amount: strconv.Itoa(p), Asset: "USD"}, nil
	}

	return x402.AssetAmount{}, fmt.Errorf("invalid price format: %v", price)
}

// EnhancePaymentRequirements is a no-op; cash has no signing metadata.
func (s *SchemeNetworkService) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
	facilitatorExtensions []string,
) (x402.PaymentRequirements, error) {
	return requirements, nil
}

// ============================================================================
// Facilitator client
// ============================================================================

// FacilitatorClient exposes an in-process cash facilitator through the
// FacilitatorClient interface.
type FacilitatorClient struct {
	facilitator *x402.X402Facilitator
}

// NewFacilitatorClient wraps a facilitator carrying the cash mechanism.
func NewFacilitatorClient(facilitator *x402.X402Facilitator) *FacilitatorClient {
	return &FacilitatorClient{facilitator: facilitator}
}

func (c *FacilitatorClient) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.VerifyResponse, error) {
	return c.facilitator.Verify(ctx, payload, requirements)
}

func (c *FacilitatorClient) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (x402.SettleResponse, error) {
	return c.facilitator.Settle(ctx, payload, requirements)
}

// GetSupported advertises the single cash kind.
func (c *FacilitatorClient) GetSupported(ctx context.Context) (x402.SupportedResponse, error) {
	return x402.SupportedResponse{
		Kinds: []x402.SupportedKind{
			{X402Version: 2, Scheme: schemeName, Network: networkName},
		},
		Extensions: []string{},
	}, nil
}

// Identifier names this client for resource-server reporting.
func (c *FacilitatorClient) Identifier() string {
	return "cash-facilitator"
}

// BuildPaymentRequirements builds the standard cash requirement used
// across the test suites.
func BuildPaymentRequirements(payTo string, asset string, amount string) x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            schemeName,
		Network:           networkName,
		Asset:             asset,
		Amount:            amount,
		PayTo:             payTo,
		MaxTimeoutSeconds: 1000,
	}
}
