package v1

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/mechanisms/evm"
)

// ExactEvmServiceV1 is the legacy (protocol v1) server half of the exact
// EVM mechanism: price parsing against the bare-alias network tables and
// the mandatory EIP-712 domain stamping v1 clients rely on.
type ExactEvmServiceV1 struct{}

var _ x402.SchemeNetworkService = (*ExactEvmServiceV1)(nil)

// NewExactEvmServiceV1 creates the legacy server-side mechanism.
func NewExactEvmServiceV1() *ExactEvmServiceV1 {
	return &ExactEvmServiceV1{}
}

// Scheme returns the scheme identifier.
func (s *ExactEvmServiceV1) Scheme() string {
	return evm.SchemeExact
}

// erc20AssetID renders an address in v1's erc20:0x... asset notation.
func erc20AssetID(address string) string {
	return "erc20:0x" + strings.ToLower(strings.TrimPrefix(address, "0x"))
}

// defaultAssetAmount scales a bare amount by USDC's six decimals into the
// network's erc20: default asset.
func defaultAssetAmount(amountStr, defaultAsset string) (x402.AssetAmount, error) {
	amount, err := evm.ParseAmount(amountStr, 6)
	if err != nil {
		return x402.AssetAmount{}, fmt.Errorf("invalid amount: %w", err)
	}
	return x402.AssetAmount{Asset: defaultAsset, Amount: amount.String()}, nil
}

// ParsePrice resolves a v1 route price. Accepted forms: "1.50" (default
// asset), "1.50 USDC" (symbol or address lookup), a bare number (USD in
// the default asset), or an {asset, amount} object.
func (s *ExactEvmServiceV1) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	networkStr := string(network)
	config, err := evm.GetNetworkConfig(networkStr)
	if err != nil {
		return x402.AssetAmount{}, err
	}
	defaultAsset := erc20AssetID(config.DefaultAsset.Address)

	switch p := price.(type) {
	case string:
		parts := strings.Fields(p)
		switch len(parts) {
		case 1:
			return defaultAssetAmount(parts[0], defaultAsset)
		case 2:
			assetInfo, err := evm.GetAssetInfo(networkStr, parts[1])
			if err != nil {
				return x402.AssetAmount{}, err
			}
			amount, err := evm.ParseAmount(parts[0], assetInfo.Decimals)
			if err != nil {
				return x402.AssetAmount{}, fmt.Errorf("invalid amount: %w", err)
			}
			return x402.AssetAmount{Asset: erc20AssetID(assetInfo.Address), Amount: amount.String()}, nil
		}
		return x402.AssetAmount{}, fmt.Errorf("invalid price format: %s", p)

	case float64:
		return defaultAssetAmount(fmt.Sprintf("%.6f", p), defaultAsset)

	case int:
		return defaultAssetAmount(fmt.Sprintf("%d", p), defaultAsset)

	case map[string]interface{}:
		amountStr, ok := p["amount"].(string)
		if !ok {
			return x402.AssetAmount{}, fmt.Errorf("missing amount in price object")
		}
		assetStr, ok := p["asset"].(string)
		if !ok {
			assetStr = defaultAsset
		}

		assetInfo, err := evm.GetAssetInfo(networkStr, assetStr)
		if err != nil {
			return x402.AssetAmount{}, err
		}
		amount, err := evm.ParseAmount(amountStr, assetInfo.Decimals)
		if err != nil {
			return x402.AssetAmount{}, fmt.Errorf("invalid amount: %w", err)
		}
		return x402.AssetAmount{Asset: erc20AssetID(assetInfo.Address), Amount: amount.String()}, nil
	}

	return x402.AssetAmount{}, fmt.Errorf("unsupported price type: %T", price)
}

// EnhancePaymentRequirements stamps the v1-mandatory EIP-712 domain
// (name, version, chainId, verifyingContract), a ten-minute validity
// hint, and a display amount into the requirement's extra.
func (s *ExactEvmServiceV1) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
	extensionKeys []string,
) (x402.PaymentRequirements, error) {
	if supportedKind.X402Version != 1 {
		return requirements, fmt.Errorf("v1 only supports x402 version 1")
	}

	if requirements.Extra == nil {
		requirements.Extra = make(map[string]interface{})
	}

	networkStr := string(requirements.Network)
	config, err := evm.GetNetworkConfig(networkStr)
	if err != nil {
		return requirements, err
	}
	assetInfo, err := evm.GetAssetInfo(networkStr, requirements.Asset)
	if err != nil {
		return requirements, err
	}

	requirements.Extra["name"] = assetInfo.Name
	requirements.Extra["version"] = assetInfo.Version
	requirements.Extra["chainId"] = config.ChainID.String()
	requirements.Extra["verifyingContract"] = assetInfo.Address

	// Ten-minute validity hint either side of now.
	now := time.Now().Unix()
	requirements.Extra["validAfter"] = fmt.Sprintf("%d", now-600)
	requirements.Extra["validBefore"] = fmt.Sprintf("%d", now+600)

	if amount, ok := new(big.Int).SetString(requirements.Amount, 10); ok {
		display := evm.FormatAmount(amount, assetInfo.Decimals)
		requirements.Extra["displayAmount"] = fmt.Sprintf("%s %s", display, assetInfo.Name)
	}

	return requirements, nil
}
