package hypercore

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Hypercore's API speaks human-decimal amounts ("1.00000000") while the
// protocol's requirements carry atomic-unit integers. These helpers
// convert between the two representations and police the nonce window.

// FormatAmount renders an atomic-unit amount as the fixed-decimal string
// the sendAsset action carries.
func FormatAmount(amount string, decimals int) (string, error) {
	atomic, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid amount: %w", err)
	}

	return strconv.FormatFloat(float64(atomic)/math.Pow10(decimals), 'f', decimals, 64), nil
}

// ParseAmount converts a human price ("$1.50", "1.5") into an atomic-unit
// decimal string, truncating sub-atomic precision.
func ParseAmount(amount string, decimals int) (string, error) {
	cleaned := strings.TrimSpace(strings.TrimPrefix(amount, "$"))

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return "", fmt.Errorf("invalid amount: %w", err)
	}
	if value < 0 {
		return "", fmt.Errorf("amount cannot be negative: %s", amount)
	}

	return strconv.FormatInt(int64(math.Floor(value*math.Pow10(decimals))), 10), nil
}

// ParseAmountToInteger converts a human-decimal amount into an atomic-unit
// big.Int, the form the verifier compares against requirements.
func ParseAmountToInteger(amount string, decimals int) (*big.Int, error) {
	value, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	return big.NewInt(int64(math.Floor(value * math.Pow10(decimals)))), nil
}

// IsNonceFresh reports whether a millisecond-timestamp nonce falls inside
// the acceptance window: not in the future, and no older than maxAge.
func IsNonceFresh(nonce int64, maxAge time.Duration) bool {
	age := time.Duration(time.Now().UnixMilli()-nonce) * time.Millisecond
	return age >= 0 && age <= maxAge
}

// NormalizeAddress lowercases an address for comparison; Hypercore
// addresses are case-insensitive.
func NormalizeAddress(address string) string {
	return strings.ToLower(address)
}
