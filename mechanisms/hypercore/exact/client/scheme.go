// Package client builds signed sendAsset actions for the exact Hypercore
// scheme.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/x402go/x402/mechanisms/hypercore"
	"github.com/x402go/x402/types"
)

// ExactHypercoreScheme is the client half of the exact Hypercore
// mechanism: it renders the accepted requirements as a sendAsset action
// and has the injected signer produce its EIP-712 signature.
type ExactHypercoreScheme struct {
	signer hypercore.HyperliquidSigner
}

// NewExactHypercoreScheme creates the client-side mechanism.
func NewExactHypercoreScheme(signer hypercore.HyperliquidSigner) *ExactHypercoreScheme {
	return &ExactHypercoreScheme{signer: signer}
}

// Scheme returns the payment scheme identifier.
func (c *ExactHypercoreScheme) Scheme() string {
	return hypercore.SchemeExact
}

// hyperliquidChainName maps the isMainnet flag (stamped into the
// requirement's extra by the server half) onto the chain name the signed
// action carries.
func hyperliquidChainName(requirements types.PaymentRequirements) string {
	if requirements.Extra != nil {
		if isMainnet, ok := requirements.Extra["isMainnet"].(bool); ok && !isMainnet {
			return "Testnet"
		}
	}
	return "Mainnet"
}

// CreatePaymentPayload builds and signs the sendAsset action. The
// millisecond-timestamp nonce doubles as the action's replay guard and
// the key settlement later uses to find the ledger entry.
func (c *ExactHypercoreScheme) CreatePaymentPayload(
	ctx context.Context,
	requirements types.PaymentRequirements,
) (types.PaymentPayload, error) {
	config, ok := hypercore.NetworkConfigs[string(requirements.Network)]
	if !ok {
		return types.PaymentPayload{}, fmt.Errorf("unsupported network: %s", requirements.Network)
	}

	amount, err := hypercore.FormatAmount(requirements.Amount, config.DefaultAsset.Decimals)
	if err != nil {
		return types.PaymentPayload{}, fmt.Errorf("failed to format amount: %w", err)
	}

	nonce := time.Now().UnixMilli()
	action := hypercore.HypercoreSendAssetAction{
		Type:             "sendAsset",
		HyperliquidChain: hyperliquidChainName(requirements),
		SignatureChainID: "0x3e7", // hex of the fixed SignatureChainID (999)
		Destination:      hypercore.NormalizeAddress(requirements.PayTo),
		SourceDex:        "spot",
		DestinationDex:   "spot",
		Token:            requirements.Asset,
		Amount:           amount,
		FromSubAccount:   "",
		Nonce:            nonce,
	}

	signature, err := c.signer.SignSendAsset(action)
	if err != nil {
		return types.PaymentPayload{}, fmt.Errorf("failed to sign action: %w", err)
	}

	return types.PaymentPayload{
		X402Version: 2,
		Payload: map[string]interface{}{
			"action":    action,
			"signature": signature,
			"nonce":     nonce,
		},
	}, nil
}
