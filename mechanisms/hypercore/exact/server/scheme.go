// Package server is the server half of the exact Hypercore scheme:
// price resolution and requirement enhancement.
package server

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/mechanisms/hypercore"
	"github.com/x402go/x402/types"
)

// MoneyParser converts a decimal USD amount into a Hypercore AssetAmount.
// Parsers registered on the scheme run in order before the built-in
// default-asset conversion, letting a deployment price in assets this
// module doesn't know.
type MoneyParser func(amount float64, network string) (*x402.AssetAmount, error)

// ExactHypercoreScheme resolves route prices for Hypercore networks.
type ExactHypercoreScheme struct {
	moneyParsers []MoneyParser
}

var _ x402.SchemeNetworkService = (*ExactHypercoreScheme)(nil)

// NewExactHypercoreScheme creates the server-side mechanism.
func NewExactHypercoreScheme() *ExactHypercoreScheme {
	return &ExactHypercoreScheme{}
}

// RegisterMoneyParser appends a parser to the chain.
func (s *ExactHypercoreScheme) RegisterMoneyParser(parser MoneyParser) *ExactHypercoreScheme {
	s.moneyParsers = append(s.moneyParsers, parser)
	return s
}

// Scheme returns the payment scheme identifier.
func (s *ExactHypercoreScheme) Scheme() string {
	return hypercore.SchemeExact
}

// decimalPattern pulls the numeric part out of price strings like
// "$1.50" or "1.50 USD".
var decimalPattern = regexp.MustCompile(`[\d.]+`)

// ParsePrice resolves a route price: a pre-built AssetAmount passes
// through (its asset is mandatory), everything else is reduced to a
// decimal and run through the parser chain, with the network's default
// asset as the final fallback.
func (s *ExactHypercoreScheme) ParsePrice(
	price x402.Price,
	network x402.Network,
) (x402.AssetAmount, error) {
	if assetAmount, ok := price.(x402.AssetAmount); ok {
		if assetAmount.Asset == "" {
			return x402.AssetAmount{}, fmt.Errorf("asset required for AssetAmount on %s", network)
		}
		return assetAmount, nil
	}

	decimal, err := parseMoneyToDecimal(price)
	if err != nil {
		return x402.AssetAmount{}, err
	}

	for _, parser := range s.moneyParsers {
		if result, err := parser(decimal, string(network)); err == nil && result != nil {
			return *result, nil
		}
	}

	return defaultMoneyConversion(decimal, string(network))
}

// parseMoneyToDecimal reduces any price representation to its decimal
// value.
func parseMoneyToDecimal(price x402.Price) (float64, error) {
	priceStr := fmt.Sprintf("%v", price)
	numeric := decimalPattern.FindString(priceStr)
	if numeric == "" {
		return 0, fmt.Errorf("invalid price format: %s", priceStr)
	}
	return strconv.ParseFloat(numeric, 64)
}

// defaultMoneyConversion scales a decimal amount into the network's
// default asset.
func defaultMoneyConversion(amount float64, network string) (x402.AssetAmount, error) {
	config, ok := hypercore.NetworkConfigs[network]
	if !ok {
		return x402.AssetAmount{}, fmt.Errorf("no default asset for network %s", network)
	}

	asset := config.DefaultAsset
	atomic := int64(amount * math.Pow10(asset.Decimals))

	return x402.AssetAmount{
		Amount: strconv.FormatInt(atomic, 10),
		Asset:  asset.Token,
		Extra:  map[string]interface{}{"name": asset.Name},
	}, nil
}

// EnhancePaymentRequirements stamps the Hypercore signing context into
// the requirement's extra: the fixed signature chain id and which
// environment the action targets.
func (s *ExactHypercoreScheme) EnhancePaymentRequirements(
	ctx context.Context,
	requirements types.PaymentRequirements,
	supportedKind types.SupportedKind,
	facilitatorExtensions []string,
) (types.PaymentRequirements, error) {
	if requirements.Extra == nil {
		requirements.Extra = make(map[string]interface{})
	}

	requirements.Extra["signatureChainId"] = hypercore.SignatureChainID
	requirements.Extra["isMainnet"] = supportedKind.Network == hypercore.NetworkMainnet

	return requirements, nil
}
