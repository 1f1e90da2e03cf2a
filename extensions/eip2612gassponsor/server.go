package eip2612gassponsor

// schemaProperty builds one string-typed property of the extension's
// JSON Schema.
func schemaProperty(pattern, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"pattern":     pattern,
		"description": description,
	}
}

// DeclareEip2612GasSponsoringExtension builds the declaration a server
// (or its facilitator) attaches to PaymentRequired.Extensions to
// advertise gasless EIP-2612 approval. The client answers by attaching a
// signed permit in the same slot of its payload.
func DeclareEip2612GasSponsoringExtension() map[string]interface{} {
	return map[string]interface{}{
		EIP2612GasSponsoring: Extension{
			Info: ServerInfo{
				Description: "The facilitator accepts EIP-2612 gasless Permit to `Permit2` canonical contract.",
				Version:     "1",
			},
			Schema: eip2612GasSponsoringSchema(),
		},
	}
}

// eip2612GasSponsoringSchema is the JSON Schema the client's permit must
// satisfy. The patterns mirror the facilitator's own field validation.
func eip2612GasSponsoringSchema() map[string]interface{} {
	return map[string]interface{}{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type":    "object",
		"properties": map[string]interface{}{
			"from":      schemaProperty(`^0x[a-fA-F0-9]{40}$`, "The address of the sender."),
			"asset":     schemaProperty(`^0x[a-fA-F0-9]{40}$`, "The address of the ERC-20 token contract."),
			"spender":   schemaProperty(`^0x[a-fA-F0-9]{40}$`, "The address of the spender (Canonical Permit2)."),
			"amount":    schemaProperty(`^[0-9]+$`, "The amount to approve (uint256). Typically MaxUint."),
			"nonce":     schemaProperty(`^[0-9]+$`, "The current nonce of the sender."),
			"deadline":  schemaProperty(`^[0-9]+$`, "The timestamp at which the signature expires."),
			"signature": schemaProperty(`^0x[a-fA-F0-9]+$`, "The 65-byte concatenated signature (r, s, v) as a hex string."),
			"version":   schemaProperty(`^[0-9]+(\.[0-9]+)*$`, "Schema version identifier."),
		},
		"required": []string{
			"from", "asset", "spender", "amount", "nonce", "deadline", "signature", "version",
		},
	}
}
