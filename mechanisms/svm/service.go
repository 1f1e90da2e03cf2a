package svm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	x402 "github.com/x402go/x402"
)

// ExactSvmService is the server half of the exact SVM mechanism: it
// resolves a route's price into an SPL mint and atomic amount, and copies
// the facilitator's fee payer into requirements so clients can name it in
// their transactions.
type ExactSvmService struct{}

// NewExactSvmService creates the server-side exact SVM mechanism.
func NewExactSvmService() *ExactSvmService {
	return &ExactSvmService{}
}

// Scheme returns the scheme identifier.
func (s *ExactSvmService) Scheme() string {
	return SchemeExact
}

// atomicAmount wraps an AssetAmount from parsed pieces.
func atomicAmount(amount uint64, asset string) x402.AssetAmount {
	return x402.AssetAmount{
		Amount: strconv.FormatUint(amount, 10),
		Asset:  asset,
		Extra:  make(map[string]interface{}),
	}
}

// ParsePrice resolves a route price for a Solana network. Accepted forms:
// a pre-parsed {amount, asset, extra} map (passed through with the
// network's default mint filled in), a string ("$0.10", "0.10 USDC"), or
// a bare number treated as a USD amount in the default asset.
func (s *ExactSvmService) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	config, err := GetNetworkConfig(string(network))
	if err != nil {
		return x402.AssetAmount{}, err
	}

	switch v := price.(type) {
	case map[string]interface{}:
		if parsed, handled, err := s.parsePriceObject(v, config); handled {
			return parsed, err
		}
	case string:
		return s.parseStringPrice(v, config)
	case float64:
		return s.parseDecimalString(strconv.FormatFloat(v, 'f', 6, 64), config)
	case int:
		return s.parseDecimalString(strconv.Itoa(v), config)
	case int64:
		return s.parseDecimalString(strconv.FormatInt(v, 10), config)
	}

	return x402.AssetAmount{}, fmt.Errorf("invalid price format: %v", price)
}

// parsePriceObject handles the pre-parsed {amount, asset?, extra?} form.
// handled is false when the map has no amount, letting the caller fall
// through to its invalid-format error.
func (s *ExactSvmService) parsePriceObject(priceMap map[string]interface{}, config *NetworkConfig) (x402.AssetAmount, bool, error) {
	amountValue, hasAmount := priceMap["amount"]
	if !hasAmount {
		return x402.AssetAmount{}, false, nil
	}

	amount, ok := amountValue.(string)
	if !ok {
		return x402.AssetAmount{}, true, fmt.Errorf("amount must be a string")
	}

	asset := config.DefaultAsset.Address
	if assetStr, ok := priceMap["asset"].(string); ok {
		asset = assetStr
	}

	extra := make(map[string]interface{})
	if extraMap, ok := priceMap["extra"].(map[string]interface{}); ok {
		extra = extraMap
	}

	return x402.AssetAmount{Amount: amount, Asset: asset, Extra: extra}, true, nil
}

// parseDecimalString scales a human-decimal amount by the default asset's
// decimals.
func (s *ExactSvmService) parseDecimalString(amountStr string, config *NetworkConfig) (x402.AssetAmount, error) {
	amount, err := ParseAmount(amountStr, config.DefaultAsset.Decimals)
	if err != nil {
		return x402.AssetAmount{}, err
	}
	return atomicAmount(amount, config.DefaultAsset.Address), nil
}

// parseStringPrice handles "0.10", "$0.10", and "0.10 USDC" forms. A
// trailing symbol other than USD/USDC is looked up in the network's asset
// table.
func (s *ExactSvmService) parseStringPrice(priceStr string, config *NetworkConfig) (x402.AssetAmount, error) {
	parts := strings.Fields(strings.TrimSpace(strings.TrimPrefix(priceStr, "$")))

	switch len(parts) {
	case 1:
		return s.parseDecimalString(parts[0], config)

	case 2:
		symbol := strings.ToUpper(parts[1])

		asset := &config.DefaultAsset
		if symbol != "USDC" && symbol != "USD" {
			found, err := GetAssetInfo(config.CAIP2, symbol)
			if err != nil {
				return x402.AssetAmount{}, fmt.Errorf("unsupported asset: %s on network %s", symbol, config.CAIP2)
			}
			asset = found
		}

		amount, err := ParseAmount(parts[0], asset.Decimals)
		if err != nil {
			return x402.AssetAmount{}, err
		}
		return atomicAmount(amount, asset.Address), nil
	}

	return x402.AssetAmount{}, fmt.Errorf(
		"invalid price format: %s. Must specify currency (e.g., \"0.10 USDC\") or use simple number format",
		priceStr,
	)
}

// EnhancePaymentRequirements fills in the Solana-specific pieces: the
// concrete mint, an atomic amount, the facilitator's fee payer (clients
// must name it in the transaction so the facilitator can co-sign), and
// any facilitator extras named by extensionKeys.
func (s *ExactSvmService) EnhancePaymentRequirements(
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
		requirements.Amount = strconv.FormatUint(atomic, 10)
	}

	if requirements.Extra == nil {
		requirements.Extra = make(map[string]interface{})
	}

	if feePayer, ok := supportedKind.Extra["feePayer"]; ok {
		requirements.Extra["feePayer"] = feePayer
	}
	for _, key := range extensionKeys {
		if value, ok := supportedKind.Extra[key]; ok {
			requirements.Extra[key] = value
		}
	}

	return requirements, nil
}
