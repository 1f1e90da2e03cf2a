package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	x402 "github.com/x402go/x402"
)

// ExactEvmService is the server half of the exact EVM mechanism: it
// turns a route's human price into an atomic AssetAmount and enriches the
// resulting requirements with everything a client needs to sign (EIP-712
// domain fields, facilitator-advertised extras).
type ExactEvmService struct{}

var _ x402.SchemeNetworkService = (*ExactEvmService)(nil)

// NewExactEvmService creates the server-side exact EVM mechanism.
func NewExactEvmService() *ExactEvmService {
	return &ExactEvmService{}
}

// Scheme returns the scheme identifier.
func (s *ExactEvmService) Scheme() string {
	return SchemeExact
}

// stripCurrencyMarkers removes the dollar-denominated decorations a route
// config may carry ("$0.10", "1.00 USD", "5 USDC").
func stripCurrencyMarkers(price string) string {
	price = strings.TrimSpace(price)
	price = strings.TrimPrefix(price, "$")
	price = strings.TrimSuffix(price, " USD")
	price = strings.TrimSuffix(price, " USDC")
	return strings.TrimSpace(price)
}

// ParsePrice converts a route price into the network's default asset and
// an atomic amount. Three input forms are accepted:
//
//   - a decimal ("$1.00", "0.001") — scaled by the asset's decimals,
//   - a large integer ("1000000") — treated as already-atomic,
//   - a small integer ("5") — treated as whole dollars and scaled.
//
// The large/small integer split keys on one whole unit of the default
// asset: anything at or above 10^decimals can't plausibly be a dollar
// price.
func (s *ExactEvmService) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	priceStr, ok := price.(string)
	if !ok {
		priceStr = fmt.Sprintf("%v", price)
	}
	priceStr = stripCurrencyMarkers(priceStr)

	config, err := GetNetworkConfig(string(network))
	if err != nil {
		return x402.AssetAmount{}, err
	}
	asset := config.DefaultAsset

	if strings.Contains(priceStr, ".") {
		atomic, err := ParseAmount(priceStr, asset.Decimals)
		if err != nil {
			return x402.AssetAmount{}, fmt.Errorf("failed to parse decimal price: %w", err)
		}
		return x402.AssetAmount{Asset: asset.Address, Amount: atomic.String()}, nil
	}

	amount, ok := new(big.Int).SetString(priceStr, 10)
	if !ok {
		return x402.AssetAmount{}, fmt.Errorf("invalid price format: %s", price)
	}

	oneWholeUnit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(asset.Decimals)), nil)
	if amount.Cmp(oneWholeUnit) < 0 {
		// Small integer: a whole-dollar price, scale it up.
		amount.Mul(amount, oneWholeUnit)
	}

	return x402.AssetAmount{Asset: asset.Address, Amount: amount.String()}, nil
}

// EnhancePaymentRequirements fills in the scheme-specific pieces of a
// requirement the resource server built: the concrete asset address, an
// atomic amount, the EIP-712 domain name/version clients sign under, and
// any facilitator extras named by extensionKeys. Values the caller
// already set win over the asset table's defaults.
func (s *ExactEvmService) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
	extensionKeys []string,
) (x402.PaymentRequirements, error) {
	if supportedKind.X402Version != 2 {
		return requirements, fmt.Errorf("v2 only supports x402 version 2")
	}

	networkStr := string(requirements.Network)
	config, err := GetNetworkConfig(networkStr)
	if err != nil {
		return requirements, err
	}

	asset := &config.DefaultAsset
	if requirements.Asset != "" {
		asset, err = GetAssetInfo(networkStr, requirements.Asset)
		if err != nil {
			return requirements, err
		}
	} else {
		requirements.Asset = asset.Address
	}

	// A decimal amount slipped past parsing; scale it to atomic units.
	if strings.Contains(requirements.Amount, ".") {
		atomic, err := ParseAmount(requirements.Amount, asset.Decimals)
		if err != nil {
			return requirements, fmt.Errorf("failed to parse amount: %w", err)
		}
		requirements.Amount = atomic.String()
	}

	if requirements.Extra == nil {
		requirements.Extra = make(map[string]interface{})
	}
	if _, set := requirements.Extra["name"]; !set {
		requirements.Extra["name"] = asset.Name
	}
	if _, set := requirements.Extra["version"]; !set {
		requirements.Extra["version"] = asset.Version
	}

	for _, key := range extensionKeys {
		if value, ok := supportedKind.Extra[key]; ok {
			requirements.Extra[key] = value
		}
	}

	return requirements, nil
}
