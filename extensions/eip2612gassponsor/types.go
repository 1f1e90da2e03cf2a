// Package eip2612gassponsor implements the eip2612GasSponsoring protocol
// extension: gasless Permit2 approval for tokens that support EIP-2612.
// A payer whose token allowance for Permit2 is zero would normally have
// to send (and pay gas for) an approve transaction before the Permit2
// flow works; with this extension the payer instead signs an off-chain
// EIP-2612 permit, attaches it to the payment payload, and the
// facilitator submits approval and settlement together through
// x402Permit2Proxy.settleWithPermit.
package eip2612gassponsor

// EIP2612GasSponsoring is the key this extension occupies in
// PaymentRequired.Extensions and PaymentPayload.Extensions.
const EIP2612GasSponsoring = "eip2612GasSponsoring"

// Info is the client-populated permit: who approves what for whom, the
// token's current permit nonce, the expiry, and the signature over it
// all. Every numeric field is a decimal string; Signature is 65 bytes of
// hex (r, s, v concatenated).
type Info struct {
	From      string `json:"from"`
	Asset     string `json:"asset"`
	Spender   string `json:"spender"`
	Amount    string `json:"amount"`
	Nonce     string `json:"nonce"`
	Deadline  string `json:"deadline"`
	Signature string `json:"signature"`
	Version   string `json:"version"`
}

// ServerInfo is what the server declares before any client has signed
// anything: a human-readable description plus the schema version.
type ServerInfo struct {
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Extension is the wire envelope. Info holds a ServerInfo in a
// PaymentRequired declaration and a client permit (Info) in a
// PaymentPayload.
type Extension struct {
	Info   interface{}            `json:"info"`
	Schema map[string]interface{} `json:"schema"`
}
