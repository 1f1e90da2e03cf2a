package facilitator

// Stable machine-readable reasons carried in VerifyResponse.InvalidReason
// and SettleResponse.ErrorReason. Clients branch on these strings, so
// they never change once published.
const (
	// Payload shape and routing.
	ErrInvalidPayloadStructure = "invalid_payload_structure"
	ErrInvalidNetwork          = "invalid_network"
	ErrInvalidActionType       = "invalid_action_type"

	// Action contents vs. the accepted requirements.
	ErrDestinationMismatch = "destination_mismatch"
	ErrTokenMismatch       = "token_mismatch"
	ErrInsufficientAmount  = "insufficient_amount"
	ErrInvalidAmountFormat = "invalid_amount_format"

	// Replay and signature checks.
	ErrNonceTooOld      = "nonce_too_old"
	ErrInvalidSignature = "invalid_signature_structure"

	// Exchange submission.
	ErrSettlementFailed = "settlement_failed"
)
