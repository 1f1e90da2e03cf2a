package paymentidentifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	x402 "github.com/x402go/x402"
	"github.com/google/uuid"
)

// GeneratePaymentID mints a fresh payment id: the prefix (default "pay_")
// followed by a hyphenless UUIDv4, e.g.
// "pay_7d5d747be160e280504c099d984bcfe0". The result always satisfies
// IsValidPaymentID for prefixes within the length/alphabet rules.
func GeneratePaymentID(prefix string) string {
	if prefix == "" {
		prefix = "pay_"
	}
	return prefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// IsValidPaymentID checks an id against the wire rules: 16-128
// characters from [A-Za-z0-9_-].
func IsValidPaymentID(id string) bool {
	if len(id) < PAYMENT_ID_MIN_LENGTH || len(id) > PAYMENT_ID_MAX_LENGTH {
		return false
	}
	return PAYMENT_ID_PATTERN.MatchString(id)
}

// PayloadFingerprint hashes a payload's canonical JSON. When the same
// payment id arrives twice, equal fingerprints mean a retry (replay the
// cached response); different fingerprints mean an id reuse conflict (a
// 409, not a replay).
func PayloadFingerprint(payload x402.PaymentPayload) (string, error) {
	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
