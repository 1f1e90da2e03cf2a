package evm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsValidAddress reports whether address is a well-formed 20-byte hex Ethereum address.
func IsValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// NormalizeAddress returns the EIP-55 checksummed form of a hex address.
func NormalizeAddress(address string) string {
	return common.HexToAddress(address).Hex()
}

// HexToBytes decodes a 0x-prefixed (or bare) hex string into bytes.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

// BytesToHex encodes bytes as a 0x-prefixed hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// GetEvmChainId returns the chain ID for a network identifier, accepting
// either a CAIP-2 id (e.g. "eip155:8453" — any eip155 chain, registered or
// not) or one of the legacy aliases registered in NetworkConfigs.
func GetEvmChainId(network string) (*big.Int, error) {
	if config, ok := NetworkConfigs[network]; ok {
		return config.ChainID, nil
	}
	if rest, ok := strings.CutPrefix(network, "eip155:"); ok {
		chainID, parsed := new(big.Int).SetString(rest, 10)
		if !parsed {
			return nil, fmt.Errorf("invalid eip155 chain id: %s", network)
		}
		return chainID, nil
	}
	return nil, fmt.Errorf("unsupported network: %s", network)
}

// GetNetworkConfig returns the configuration for a network identifier.
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	if config, ok := NetworkConfigs[network]; ok {
		return &config, nil
	}
	return nil, fmt.Errorf("unsupported network: %s", network)
}

// IsValidNetwork reports whether network (CAIP-2 id or legacy alias) is a
// network this mechanism package has configuration for.
func IsValidNetwork(network string) bool {
	_, ok := NetworkConfigs[network]
	return ok
}

// GetAssetInfo returns information about an asset on a network.
// If assetSymbolOrAddress is a valid hex address, it is returned (checksummed)
// as-is unless it matches the network's own default asset, in which case the
// richer default asset metadata (name/version/decimals) is returned instead.
// If assetSymbolOrAddress is empty, the network's default asset is used.
func GetAssetInfo(network string, assetSymbolOrAddress string) (*AssetInfo, error) {
	config, err := GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}

	if assetSymbolOrAddress == "" {
		if config.DefaultAsset.Address == "" {
			return nil, fmt.Errorf("no default asset configured for network %s; specify an explicit asset address", network)
		}
		return &config.DefaultAsset, nil
	}

	if IsValidAddress(assetSymbolOrAddress) {
		normalizedAddr := NormalizeAddress(assetSymbolOrAddress)
		if config.DefaultAsset.Address != "" && normalizedAddr == NormalizeAddress(config.DefaultAsset.Address) {
			return &config.DefaultAsset, nil
		}
		return &AssetInfo{
			Address:  normalizedAddr,
			Name:     "Unknown Token",
			Version:  "1",
			Decimals: DefaultDecimals,
		}, nil
	}

	return nil, fmt.Errorf("unsupported asset symbol: %s on network %s", assetSymbolOrAddress, network)
}

// FormatAmount converts a smallest-unit integer amount into its decimal
// string representation for a token with the given decimals, trimming
// trailing fractional zeros. A nil amount formats as "0".
func FormatAmount(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}

	s := amount.String()
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}

	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}

	whole := s[:len(s)-decimals]
	fraction := s[len(s)-decimals:]
	fraction = strings.TrimRight(fraction, "0")

	result := whole
	if fraction != "" {
		result = whole + "." + fraction
	}
	if negative {
		result = "-" + result
	}
	return result
}

// ParseAmount converts a decimal amount string (e.g. "1.50") into its
// smallest-unit integer representation for a token with the given decimals.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}

	whole := parts[0]
	if whole == "" {
		whole = "0"
	}

	fraction := ""
	if len(parts) == 2 {
		fraction = parts[1]
	}
	if len(fraction) > decimals {
		fraction = fraction[:decimals]
	}
	fraction = fraction + strings.Repeat("0", decimals-len(fraction))

	combined := whole + fraction
	result, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}

	return result, nil
}

// CreateNonce generates a random 32-byte nonce for an EIP-3009
// authorization, hex-encoded with a 0x prefix (the bytes32 wire form).
func CreateNonce() (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return "0x" + hex.EncodeToString(nonce), nil
}

// CreatePermit2Nonce generates a random uint256 nonce for a Permit2
// authorization, returned as a decimal string. Permit2 uses unordered
// nonces, so any unused random value is valid.
func CreatePermit2Nonce() (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate permit2 nonce: %w", err)
	}
	return new(big.Int).SetBytes(nonce).String(), nil
}

// CreateValidityWindow returns the validAfter/validBefore pair for an
// authorization valid from now until now+duration. validAfter is backdated
// ten minutes to tolerate clock skew between client and chain.
func CreateValidityWindow(duration time.Duration) (validAfter, validBefore *big.Int) {
	now := time.Now().Unix()
	return big.NewInt(now - 600), big.NewInt(now + int64(duration.Seconds()))
}

// MaxUint256 returns 2^256 - 1, the canonical "infinite" ERC-20 amount.
func MaxUint256() *big.Int {
	one := big.NewInt(1)
	max := new(big.Int).Lsh(one, 256)
	return max.Sub(max, one)
}
