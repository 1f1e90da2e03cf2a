package erc20approvalgassponsor

// schemaProperty builds one string-typed property of the extension's
// JSON Schema.
func schemaProperty(pattern, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"pattern":     pattern,
		"description": description,
	}
}

// DeclareErc20ApprovalGasSponsoringExtension builds the declaration a
// server attaches to PaymentRequired.Extensions to advertise raw-approval
// gas sponsoring — the fallback for tokens with no EIP-2612 support. The
// client answers with a pre-signed (unbroadcast) approve transaction in
// the same slot of its payload.
func DeclareErc20ApprovalGasSponsoringExtension() map[string]interface{} {
	return map[string]interface{}{
		ERC20ApprovalGasSponsoring: Extension{
			Info: ServerInfo{
				Description: "The facilitator accepts a pre-signed ERC-20 approve(Permit2, amount) transaction to sponsor Permit2 allowance gas.",
				Version:     "1",
			},
			Schema: erc20ApprovalGasSponsoringSchema(),
		},
	}
}

// erc20ApprovalGasSponsoringSchema is the JSON Schema the client's
// attachment must satisfy. The patterns mirror the facilitator's own
// field validation.
func erc20ApprovalGasSponsoringSchema() map[string]interface{} {
	return map[string]interface{}{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type":    "object",
		"properties": map[string]interface{}{
			"from":              schemaProperty(`^0x[a-fA-F0-9]{40}$`, "The address of the sender (token owner)."),
			"asset":             schemaProperty(`^0x[a-fA-F0-9]{40}$`, "The address of the ERC-20 token contract."),
			"spender":           schemaProperty(`^0x[a-fA-F0-9]{40}$`, "The address of the spender (Canonical Permit2)."),
			"amount":            schemaProperty(`^[0-9]+$`, "The approval amount (uint256 as decimal string)."),
			"signedTransaction": schemaProperty(`^0x[a-fA-F0-9]+$`, "The RLP-encoded signed approve transaction as a 0x-prefixed hex string."),
			"version":           schemaProperty(`^[0-9]+(\.[0-9]+)*$`, "Schema version identifier."),
		},
		"required": []string{
			"from", "asset", "spender", "amount", "signedTransaction", "version",
		},
	}
}
