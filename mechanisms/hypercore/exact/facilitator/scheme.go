// Package facilitator verifies and settles exact Hypercore payments:
// off-chain checks against the signed sendAsset action, submission to
// the Hyperliquid exchange API, and ledger-hash recovery.
package facilitator

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/mechanisms/evm"
	"github.com/x402go/x402/mechanisms/hypercore"
	"github.com/x402go/x402/types"
)

// ExactHypercoreScheme is the facilitator half of the exact Hypercore
// mechanism.
type ExactHypercoreScheme struct {
	apiURL string // override for networks outside the built-in table
}

// NewExactHypercoreScheme creates the facilitator-side mechanism. Pass
// "" (or nothing) to use the built-in per-network API endpoints.
func NewExactHypercoreScheme(apiURL ...string) *ExactHypercoreScheme {
	s := &ExactHypercoreScheme{}
	if len(apiURL) > 0 {
		s.apiURL = apiURL[0]
	}
	return s
}

// Scheme returns the payment scheme identifier.
func (f *ExactHypercoreScheme) Scheme() string {
	return hypercore.SchemeExact
}

// CaipFamily returns the network family this scheme serves.
func (f *ExactHypercoreScheme) CaipFamily() string {
	return "hypercore:*"
}

// apiURLFor resolves the exchange endpoint for a network.
func (f *ExactHypercoreScheme) apiURLFor(network string) string {
	if url, ok := hypercore.NetworkAPIURLs[network]; ok {
		return url
	}
	return f.apiURL
}

// getAPIURL is kept as the historical name of apiURLFor.
func (f *ExactHypercoreScheme) getAPIURL(network string) string {
	return f.apiURLFor(network)
}

// GetExtra returns scheme metadata for SupportedKind.Extra; none here.
func (f *ExactHypercoreScheme) GetExtra(network x402.Network) map[string]interface{} {
	return nil
}

// GetSigners returns the facilitator-controlled addresses; Hypercore
// settlement uses the payer's own signature, so there are none.
func (f *ExactHypercoreScheme) GetSigners(network x402.Network) []string {
	return []string{}
}

// reject is the non-error verification failure shape.
func reject(reason string) (*x402.VerifyResponse, error) {
	return &x402.VerifyResponse{IsValid: false, InvalidReason: reason}, nil
}

// Verify checks a Hypercore payment off-chain: action shape, destination
// and token against the requirements, amount after decimal scaling,
// nonce freshness, and signature structure. (Full recovery happens at
// settle, where the payer address is needed anyway.)
func (f *ExactHypercoreScheme) Verify(
	ctx context.Context,
	payload types.PaymentPayload,
	requirements types.PaymentRequirements,
) (*x402.VerifyResponse, error) {
	hypercorePayload, err := parsePayload(payload.Payload)
	if err != nil {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidPayloadStructure}, err
	}
	action := hypercorePayload.Action

	if !strings.HasPrefix(string(requirements.Network), "hypercore:") {
		return reject(fmt.Sprintf("%s: %s", ErrInvalidNetwork, requirements.Network))
	}
	config, ok := hypercore.NetworkConfigs[string(requirements.Network)]
	if !ok {
		return reject(fmt.Sprintf("%s: %s", ErrInvalidNetwork, requirements.Network))
	}

	if action.Type != "sendAsset" {
		return reject(fmt.Sprintf("%s: %s", ErrInvalidActionType, action.Type))
	}
	if !strings.EqualFold(action.Destination, requirements.PayTo) {
		return reject(ErrDestinationMismatch)
	}

	// The action carries a human-decimal amount; scale it before
	// comparing with the requirement's atomic amount.
	actionAmount, err := hypercore.ParseAmountToInteger(action.Amount, config.DefaultAsset.Decimals)
	if err != nil {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidAmountFormat}, err
	}
	requiredAmount := new(big.Int)
	requiredAmount.SetString(requirements.Amount, 10)
	if actionAmount.Cmp(requiredAmount) < 0 {
		return reject(ErrInsufficientAmount)
	}

	if requirements.Asset != "" && action.Token != requirements.Asset {
		return reject(ErrTokenMismatch)
	}

	if !hypercore.IsNonceFresh(hypercorePayload.Nonce, time.Duration(hypercore.MaxNonceAgeSeconds)*time.Second) {
		return reject(ErrNonceTooOld)
	}

	if hypercorePayload.Signature.R == "" || hypercorePayload.Signature.S == "" {
		return reject(ErrInvalidSignature)
	}

	return &x402.VerifyResponse{IsValid: true}, nil
}

// Settle submits the action to /exchange and recovers the ledger hash.
// The exchange returns no transaction id, so the hash comes from
// matching the action's nonce in the payer's non-funding ledger updates.
func (f *ExactHypercoreScheme) Settle(
	ctx context.Context,
	payload types.PaymentPayload,
	requirements types.PaymentRequirements,
) (*x402.SettleResponse, error) {
	verifyResp, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		return &x402.SettleResponse{}, err
	}
	if !verifyResp.IsValid {
		return &x402.SettleResponse{Success: false, ErrorReason: verifyResp.InvalidReason}, nil
	}

	hypercorePayload, _ := parsePayload(payload.Payload)
	apiURL := f.apiURLFor(string(requirements.Network))

	payer, err := f.recoverPayer(hypercorePayload.Action, hypercorePayload.Signature)
	if err != nil {
		return &x402.SettleResponse{}, fmt.Errorf("failed to recover payer: %w", err)
	}

	// Remember when we submitted; the ledger query looks back from here.
	startTime := time.Now()

	if err := f.submitAction(ctx, apiURL, hypercorePayload); err != nil {
		return &x402.SettleResponse{}, err
	}

	txHash, err := f.getTransactionHash(ctx, apiURL, payer, hypercorePayload.Action.Destination, hypercorePayload.Nonce, startTime)
	if err != nil {
		return &x402.SettleResponse{}, fmt.Errorf("failed to get transaction hash: %w", err)
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     x402.Network(requirements.Network),
		Payer:       payer,
	}, nil
}

// submitAction POSTs the signed action to /exchange and checks the
// acknowledgement.
func (f *ExactHypercoreScheme) submitAction(ctx context.Context, apiURL string, payload *hypercore.HypercorePaymentPayload) error {
	body, err := json.Marshal(map[string]interface{}{
		"action":       payload.Action,
		"nonce":        payload.Nonce,
		"signature":    payload.Signature,
		"vaultAddress": nil,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", apiURL+"/exchange", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to submit to hyperliquid: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hyperliquid API error: %d", resp.StatusCode)
	}

	var apiResp hypercore.HyperliquidAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if apiResp.Status != "ok" {
		return fmt.Errorf("%s", ErrSettlementFailed)
	}

	return nil
}

// sendAssetTypes is the EIP-712 shape Hyperliquid signs user actions
// under.
var sendAssetTypes = map[string][]evm.TypedDataField{
	"HyperliquidTransaction:SendAsset": {
		{Name: "hyperliquidChain", Type: "string"},
		{Name: "destination", Type: "string"},
		{Name: "sourceDex", Type: "string"},
		{Name: "destinationDex", Type: "string"},
		{Name: "token", Type: "string"},
		{Name: "amount", Type: "string"},
		{Name: "fromSubAccount", Type: "string"},
		{Name: "nonce", Type: "uint64"},
	},
}

// recoverPayer recovers the signer of a sendAsset action from its split
// signature, reusing the EVM mechanism's typed-data hashing (Hyperliquid
// signs with a fixed chain id 999 domain).
func (f *ExactHypercoreScheme) recoverPayer(
	action hypercore.HypercoreSendAssetAction,
	signature hypercore.HypercoreSignature,
) (string, error) {
	domain := evm.TypedDataDomain{
		Name:              "HyperliquidSignTransaction",
		Version:           "1",
		ChainID:           big.NewInt(hypercore.SignatureChainID),
		VerifyingContract: "0x0000000000000000000000000000000000000000",
	}

	// uint64 fields must reach the hasher as strings.
	message := map[string]interface{}{
		"hyperliquidChain": action.HyperliquidChain,
		"destination":      action.Destination,
		"sourceDex":        action.SourceDex,
		"destinationDex":   action.DestinationDex,
		"token":            action.Token,
		"amount":           action.Amount,
		"fromSubAccount":   action.FromSubAccount,
		"nonce":            fmt.Sprintf("%d", action.Nonce),
	}

	hash, err := evm.HashTypedData(domain, sendAssetTypes, "HyperliquidTransaction:SendAsset", message)
	if err != nil {
		return "", fmt.Errorf("failed to hash typed data: %w", err)
	}

	rBytes, err := hex.DecodeString(strings.TrimPrefix(signature.R, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid r value: %w", err)
	}
	sBytes, err := hex.DecodeString(strings.TrimPrefix(signature.S, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid s value: %w", err)
	}

	v := byte(signature.V)
	if v >= 27 {
		v -= 27
	}
	sig := append(append(rBytes, sBytes...), v)

	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey).Hex(), nil
}

// getTransactionHash polls userNonFundingLedgerUpdates for the send
// entry matching (destination, nonce), bounded by the retry knobs.
func (f *ExactHypercoreScheme) getTransactionHash(
	ctx context.Context,
	apiURL string,
	user string,
	destination string,
	nonce int64,
	startTime time.Time,
) (string, error) {
	for attempt := 0; attempt < hypercore.TxHashMaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(hypercore.TxHashRetryDelay)
		}

		if hash := f.findLedgerHash(ctx, apiURL, user, destination, nonce, startTime); hash != "" {
			return hash, nil
		}
	}

	return "", fmt.Errorf("transaction hash not found after %d attempts", hypercore.TxHashMaxRetries)
}

// findLedgerHash performs one /info query and scans for the matching
// entry; empty when not found (or on any transport hiccup — the retry
// loop absorbs those).
func (f *ExactHypercoreScheme) findLedgerHash(
	ctx context.Context,
	apiURL string,
	user string,
	destination string,
	nonce int64,
	startTime time.Time,
) string {
	body, err := json.Marshal(map[string]interface{}{
		"type":      "userNonFundingLedgerUpdates",
		"user":      user,
		"startTime": startTime.Add(-hypercore.TxHashLookbackWindow).UnixMilli(),
	})
	if err != nil {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, "POST", apiURL+"/info", bytes.NewReader(body))
	if err != nil {
		return ""
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return ""
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return ""
	}

	var updates []hypercore.LedgerUpdate
	if err := json.Unmarshal(respBody, &updates); err != nil {
		return ""
	}

	for _, update := range updates {
		if update.Delta.Type != "send" {
			continue
		}
		if update.Delta.Destination == nil || !strings.EqualFold(*update.Delta.Destination, destination) {
			continue
		}
		if update.Delta.Nonce != nil && *update.Delta.Nonce == nonce {
			return update.Hash
		}
	}
	return ""
}

// parsePayload reads the scheme-specific payload map into its typed
// form.
func parsePayload(payload interface{}) (*hypercore.HypercorePaymentPayload, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var hypercorePayload hypercore.HypercorePaymentPayload
	if err := json.Unmarshal(raw, &hypercorePayload); err != nil {
		return nil, err
	}
	return &hypercorePayload, nil
}
