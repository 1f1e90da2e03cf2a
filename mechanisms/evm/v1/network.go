package v1

import (
	"math/big"

	"github.com/x402go/x402/mechanisms/evm"
)

// legacyNetwork is one v1 network registration: the chain id every name
// resolves to, plus a default asset for the handful of chains whose
// stablecoin this module knows. The exported maps below are derived views
// of this table.
type legacyNetwork struct {
	chainID      int64
	defaultAsset *evm.AssetInfo
}

var legacyNetworks = map[string]legacyNetwork{
	"ethereum":         {chainID: 1},
	"sepolia":          {chainID: 11155111},
	"abstract":         {chainID: 2741},
	"abstract-testnet": {chainID: 11124},
	"base": {chainID: 8453, defaultAsset: &evm.AssetInfo{
		Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Name:     "USD Coin",
		Version:  "2",
		Decimals: evm.DefaultDecimals,
	}},
	"base-sepolia": {chainID: 84532, defaultAsset: &evm.AssetInfo{
		Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Name:     "USDC",
		Version:  "2",
		Decimals: evm.DefaultDecimals,
	}},
	"avalanche-fuji":     {chainID: 43113},
	"avalanche":          {chainID: 43114},
	"iotex":              {chainID: 4689},
	"sei":                {chainID: 1329},
	"sei-testnet":        {chainID: 1328},
	"polygon":            {chainID: 137},
	"polygon-amoy":       {chainID: 80002},
	"peaq":               {chainID: 3338},
	"story":              {chainID: 1514},
	"educhain":           {chainID: 41923},
	"skale-base-sepolia": {chainID: 324705682},
	"megaeth": {chainID: 4326, defaultAsset: &evm.AssetInfo{
		Address:  "0xFAfDdbb3FC7688494971a79cc65DCa3EF82079E7",
		Name:     "MegaUSD",
		Version:  "1",
		Decimals: 18,
	}},
	"monad": {chainID: 143, defaultAsset: &evm.AssetInfo{
		Address:  "0x754704Bc059F8C67012fEd69BC8A327a5aafb603",
		Name:     "USD Coin",
		Version:  "2",
		Decimals: evm.DefaultDecimals,
	}},
}

// NetworkChainIDs maps every v1 legacy network name to its chain id.
var NetworkChainIDs = map[string]*big.Int{}

// NetworkConfigs maps the v1 networks with a known default asset to
// their full configuration.
var NetworkConfigs = map[string]evm.NetworkConfig{}

// Networks lists all v1 network names.
var Networks []string

func init() {
	Networks = make([]string, 0, len(legacyNetworks))
	for name, network := range legacyNetworks {
		Networks = append(Networks, name)
		NetworkChainIDs[name] = big.NewInt(network.chainID)
		if network.defaultAsset != nil {
			NetworkConfigs[name] = evm.NetworkConfig{
				ChainID:      big.NewInt(network.chainID),
				DefaultAsset: *network.defaultAsset,
			}
		}
	}
}
