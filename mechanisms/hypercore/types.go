package hypercore

// AssetInfo describes a Hypercore token: its symbol:id wire identifier,
// display name, and wei decimals.
type AssetInfo struct {
	Token    string
	Name     string
	Decimals int
}

// NetworkConfig is one environment's registration. Hypercore prices
// default to the environment's stable asset when a requirement doesn't
// name one.
type NetworkConfig struct {
	DefaultAsset AssetInfo
}

// usdh builds the per-environment USDH registration (same symbol and
// decimals, different token ids).
func usdh(tokenID string) AssetInfo {
	return AssetInfo{
		Token:    "USDH:" + tokenID,
		Name:     "USDH",
		Decimals: 8,
	}
}

// NetworkConfigs registers the two Hypercore environments.
var NetworkConfigs = map[string]NetworkConfig{
	NetworkMainnet: {DefaultAsset: usdh("0x54e00a5988577cb0b0c9ab0cb6ef7f4b")},
	NetworkTestnet: {DefaultAsset: usdh("0x471fd4480bb9943a1fe080ab0d4ff36c")},
}

// NetworkAPIURLs maps each environment to its Hyperliquid API base URL.
var NetworkAPIURLs = map[string]string{
	NetworkMainnet: HyperliquidAPIMainnet,
	NetworkTestnet: HyperliquidAPITestnet,
}

// HypercoreSendAssetAction is the sendAsset action a client signs: the
// destination, token, human-formatted amount, and a millisecond-timestamp
// nonce that doubles as the action's replay guard.
type HypercoreSendAssetAction struct {
	Type             string `json:"type"`
	HyperliquidChain string `json:"hyperliquidChain"`
	SignatureChainID string `json:"signatureChainId"`
	Destination      string `json:"destination"`
	SourceDex        string `json:"sourceDex"`
	DestinationDex   string `json:"destinationDex"`
	Token            string `json:"token"`
	Amount           string `json:"amount"`
	FromSubAccount   string `json:"fromSubAccount"`
	Nonce            int64  `json:"nonce"`
}

// HypercoreSignature is the split ECDSA signature over the action.
type HypercoreSignature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

// HypercorePaymentPayload is the scheme-specific payload carried in
// PaymentPayload.Payload: the action, its signature, and the nonce echoed
// at the top level for the settlement lookup.
type HypercorePaymentPayload struct {
	Action    HypercoreSendAssetAction `json:"action"`
	Signature HypercoreSignature       `json:"signature"`
	Nonce     int64                    `json:"nonce"`
}

// HyperliquidSigner is the client-side signing surface this mechanism
// consumes; implementations (wallets, key services) live outside the
// module.
type HyperliquidSigner interface {
	SignSendAsset(action HypercoreSendAssetAction) (HypercoreSignature, error)
	GetAddress() string
}

// HyperliquidAPIResponse is the /exchange endpoint's acknowledgement.
type HyperliquidAPIResponse struct {
	Status string `json:"status"`
}

// LedgerUpdate is one entry of userNonFundingLedgerUpdates; settlement
// matches entries against the action's nonce to recover the ledger hash.
type LedgerUpdate struct {
	Time  int64       `json:"time"`
	Hash  string      `json:"hash"`
	Delta DeltaUpdate `json:"delta"`
}

// DeltaUpdate is the typed delta inside a ledger update.
type DeltaUpdate struct {
	Type        string  `json:"type"`
	Destination *string `json:"destination,omitempty"`
	Nonce       *int64  `json:"nonce,omitempty"`
}
