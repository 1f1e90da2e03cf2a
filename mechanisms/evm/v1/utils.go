package v1

import (
	"fmt"
	"math/big"

	"github.com/x402go/x402/mechanisms/evm"
)

// GetEvmChainId resolves a v1 legacy network name to its chain id. Names
// outside the table error; v1 never speaks CAIP-2.
func GetEvmChainId(network string) (*big.Int, error) {
	chainID, ok := NetworkChainIDs[network]
	if !ok {
		return nil, fmt.Errorf("unsupported v1 network: %s", network)
	}
	return chainID, nil
}

// GetNetworkConfig resolves a v1 network to its full configuration,
// erroring for networks without a registered default asset.
func GetNetworkConfig(network string) (*evm.NetworkConfig, error) {
	config, ok := NetworkConfigs[network]
	if !ok {
		return nil, fmt.Errorf("no configuration for v1 network: %s", network)
	}
	return &config, nil
}

// GetAssetInfo resolves the asset a v1 requirement refers to. An explicit
// address wins: when it matches the network's default asset the full
// registration (name, version, decimals) comes back, otherwise a
// conservative 18-decimal placeholder does — enough to build a transfer,
// not enough to sign a permit. No address means the network's default
// asset, which some v1 networks simply don't have.
func GetAssetInfo(network string, assetSymbolOrAddress string) (*evm.AssetInfo, error) {
	if evm.IsValidAddress(assetSymbolOrAddress) {
		address := evm.NormalizeAddress(assetSymbolOrAddress)

		if config, err := GetNetworkConfig(network); err == nil && config.DefaultAsset.Address != "" {
			if address == evm.NormalizeAddress(config.DefaultAsset.Address) {
				return &config.DefaultAsset, nil
			}
		}

		return &evm.AssetInfo{
			Address:  address,
			Name:     "Unknown Token",
			Version:  "1",
			Decimals: 18,
		}, nil
	}

	config, err := GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}
	if config.DefaultAsset.Address == "" {
		return nil, fmt.Errorf("no default asset configured for v1 network %s; specify an explicit asset address", network)
	}
	return &config.DefaultAsset, nil
}
