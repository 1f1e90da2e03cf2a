package svm

import (
	"encoding/base64"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// NormalizeNetwork resolves a network identifier (CAIP-2 or legacy v1 alias)
// to its canonical CAIP-2 form.
func NormalizeNetwork(network string) (string, error) {
	if caip2, ok := V1ToV2NetworkMap[network]; ok {
		return caip2, nil
	}
	if config, ok := NetworkConfigs[network]; ok {
		return config.CAIP2, nil
	}
	return "", fmt.Errorf("unsupported network: %s", network)
}

// IsValidNetwork reports whether network (CAIP-2 id or legacy alias) is a
// network this mechanism package has configuration for.
func IsValidNetwork(network string) bool {
	_, ok := NetworkConfigs[network]
	return ok
}

// GetNetworkConfig returns the configuration for a network identifier.
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	if config, ok := NetworkConfigs[network]; ok {
		return &config, nil
	}
	return nil, fmt.Errorf("unsupported network: %s", network)
}

// ValidateSolanaAddress reports whether address is a well-formed base58
// Solana public key.
func ValidateSolanaAddress(address string) bool {
	if address == "" {
		return false
	}
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}

// GetAssetInfo returns information about an asset on a network. If
// assetSymbolOrAddress names the network's default asset (by symbol or
// address) or is empty, unknown, or otherwise unresolvable, the network's
// default asset is returned.
func GetAssetInfo(network string, assetSymbolOrAddress string) (*AssetInfo, error) {
	config, err := GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}

	if assetSymbolOrAddress == "" {
		return &config.DefaultAsset, nil
	}

	if strings.EqualFold(assetSymbolOrAddress, config.DefaultAsset.Symbol) {
		return &config.DefaultAsset, nil
	}

	if ValidateSolanaAddress(assetSymbolOrAddress) {
		if assetSymbolOrAddress == config.DefaultAsset.Address {
			return &config.DefaultAsset, nil
		}
		return &AssetInfo{
			Address:  assetSymbolOrAddress,
			Symbol:   "UNKNOWN",
			Decimals: DefaultDecimals,
		}, nil
	}

	// Unrecognized symbol: fall back to the network's default asset rather
	// than erroring, matching how resource servers pass through a bare
	// human-readable price without an explicit asset override.
	return &config.DefaultAsset, nil
}

// FormatAmount converts a smallest-unit integer amount into its decimal
// string representation for a token with the given decimals, trimming
// trailing fractional zeros.
func FormatAmount(amount uint64, decimals int) string {
	s := fmt.Sprintf("%d", amount)

	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}

	whole := s[:len(s)-decimals]
	fraction := s[len(s)-decimals:]
	fraction = strings.TrimRight(fraction, "0")

	if fraction == "" {
		return whole
	}
	return whole + "." + fraction
}

// ParseAmount converts a decimal amount string (e.g. "1.50") into its
// smallest-unit integer representation for a token with the given decimals.
func ParseAmount(amount string, decimals int) (uint64, error) {
	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return 0, fmt.Errorf("invalid amount format: %s", amount)
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

	var result uint64
	if _, err := fmt.Sscanf(whole+fraction, "%d", &result); err != nil {
		return 0, fmt.Errorf("invalid amount format: %s", amount)
	}

	return result, nil
}

// EncodeTransaction base64-encodes a (possibly partially signed) transaction
// for inclusion in a payment payload.
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	data, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to marshal transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeTransaction decodes a base64-encoded transaction produced by EncodeTransaction.
func DecodeTransaction(data string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to base64-decode transaction: %w", err)
	}

	tx := &solana.Transaction{}
	if err := tx.UnmarshalWithDecoder(bin.NewBinDecoder(raw)); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return tx, nil
}

// GetTokenPayerFromTransaction extracts the payer (transfer authority)
// address from a transaction's TransferChecked instruction, resolving the
// Swig smart-wallet path when the transaction is Swig-signed.
func GetTokenPayerFromTransaction(tx *solana.Transaction) (string, error) {
	if IsSwigTransaction(tx) {
		parsed, err := ParseSwigTransaction(tx)
		if err != nil {
			return "", err
		}
		return parsed.SwigPDA, nil
	}

	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
		if progID != solana.TokenProgramID && progID != solana.Token2022ProgramID {
			continue
		}

		accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			continue
		}

		decoded, err := token.DecodeInstruction(accounts, inst.Data)
		if err != nil {
			continue
		}

		if transferChecked, ok := decoded.Impl.(*token.TransferChecked); ok {
			return transferChecked.GetOwnerAccount().PublicKey.String(), nil
		}
	}

	return "", fmt.Errorf("no transfer instruction found in transaction")
}
