package svm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	solana "github.com/gagliardetto/solana-go"
)

// Swig smart-wallet support. A Swig wallet doesn't sign the transfer
// directly: the transaction's last instruction is a Swig signV1/signV2
// call whose data payload embeds the real instructions in a compact
// encoding, and the wallet's PDA acts as the authority. Verification
// therefore decodes the embedded payload and applies the same checks the
// plain-wallet path applies to a top-level transfer_checked.

// SwigCompactInstruction is one instruction from a Swig sign payload;
// its indices reference the outer transaction's account key list.
type SwigCompactInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// splTransferCheckedDiscriminator tags SPL Token / Token-2022
// transferChecked instruction data.
const splTransferCheckedDiscriminator byte = 12

// accountKeyAt resolves an account index against the transaction's key
// list, false when out of range.
func accountKeyAt(tx *solana.Transaction, index int) (solana.PublicKey, bool) {
	if index >= len(tx.Message.AccountKeys) {
		return solana.PublicKey{}, false
	}
	return tx.Message.AccountKeys[index], true
}

// IsSwigSignInstruction reports whether inst is a Swig program signV1 or
// signV2 call (U16 LE discriminator 4 or 11).
func IsSwigSignInstruction(tx *solana.Transaction, inst solana.CompiledInstruction) bool {
	progID, ok := accountKeyAt(tx, int(inst.ProgramIDIndex))
	if !ok {
		return false
	}
	swigPubkey, err := solana.PublicKeyFromBase58(SwigProgramAddress)
	if err != nil || !progID.Equals(swigPubkey) {
		return false
	}

	if len(inst.Data) < 2 {
		return false
	}
	discriminator := binary.LittleEndian.Uint16(inst.Data[0:2])
	return discriminator == SwigSignV1Discriminator || discriminator == SwigSignV2Discriminator
}

// DecodeSwigCompactInstructions parses the instructions embedded in a
// Swig sign payload.
//
// Outer data layout:
//
//	[0..1]  discriminator         U16 LE
//	[2..3]  instructionPayloadLen U16 LE
//	[4..7]  roleId                U32 LE
//	[8..]   compact instructions  (instructionPayloadLen bytes)
//
// Each compact instruction:
//
//	[0]         programIDIndex U8
//	[1]         numAccounts    U8
//	[2..N+1]    accounts       []U8
//	[N+2..N+3]  dataLen        U16 LE
//	[N+4..]     data           raw bytes
func DecodeSwigCompactInstructions(data []byte) ([]SwigCompactInstruction, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("swig instruction data too short: need ≥4 bytes, got %d", len(data))
	}

	payloadLen := int(binary.LittleEndian.Uint16(data[2:4]))
	const payloadStart = 8
	if len(data) < payloadStart+payloadLen {
		return nil, fmt.Errorf("swig instruction data truncated: payload needs %d bytes but only %d available after offset %d",
			payloadLen, len(data)-payloadStart, payloadStart)
	}

	var decoded []SwigCompactInstruction
	offset, end := payloadStart, payloadStart+payloadLen

	// A malformed tail just terminates the walk; whatever decoded
	// cleanly before it is returned.
	for offset < end && offset < len(data) {
		programIDIndex := data[offset]
		offset++

		if offset >= end {
			break
		}
		numAccounts := int(data[offset])
		offset++

		if offset+numAccounts > end {
			break
		}
		accounts := make([]uint8, numAccounts)
		copy(accounts, data[offset:offset+numAccounts])
		offset += numAccounts

		if offset+2 > end {
			break
		}
		dataLen := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2

		if offset+dataLen > end {
			break
		}
		instrData := make([]byte, dataLen)
		copy(instrData, data[offset:offset+dataLen])
		offset += dataLen

		decoded = append(decoded, SwigCompactInstruction{
			ProgramIDIndex: programIDIndex,
			Accounts:       accounts,
			Data:           instrData,
		})
	}

	return decoded, nil
}

// findCompactTransferChecked locates the SPL transferChecked instruction
// among decoded compact instructions; nil when absent.
func findCompactTransferChecked(tx *solana.Transaction, compactInstructions []SwigCompactInstruction) *SwigCompactInstruction {
	for i := range compactInstructions {
		ci := &compactInstructions[i]
		progID, ok := accountKeyAt(tx, int(ci.ProgramIDIndex))
		if !ok {
			continue
		}
		if (progID == solana.TokenProgramID || progID == solana.Token2022ProgramID) &&
			len(ci.Data) >= 1 && ci.Data[0] == splTransferCheckedDiscriminator {
			return ci
		}
	}
	return nil
}

// VerifySwigTransfer checks the transfer embedded in a Swig sign
// instruction against the payment requirements, returning the Swig PDA
// (the effective payer) on success. The invariants mirror the
// plain-wallet path: the PDA must not be a facilitator signer, the mint
// must match the asset, the destination must be payTo's ATA, and the
// amount must cover the requirement.
func VerifySwigTransfer(
	tx *solana.Transaction,
	inst solana.CompiledInstruction,
	asset string,
	payTo string,
	amount string,
	signerAddresses []string,
) (string, error) {
	// The Swig PDA is the sign instruction's first account.
	if len(inst.Accounts) < 1 {
		return "", errors.New("invalid_exact_svm_payload_no_transfer_instruction")
	}
	pdaKey, ok := accountKeyAt(tx, int(inst.Accounts[0]))
	if !ok {
		return "", errors.New("invalid_exact_svm_payload_no_transfer_instruction")
	}
	swigPDA := pdaKey.String()

	// A facilitator key as the payer would mean the facilitator pays
	// itself with its own funds.
	for _, signerAddr := range signerAddresses {
		if swigPDA == signerAddr {
			return "", errors.New("invalid_exact_svm_payload_transaction_fee_payer_transferring_funds")
		}
	}

	compactInstructions, err := DecodeSwigCompactInstructions(inst.Data)
	if err != nil || len(compactInstructions) == 0 {
		return "", errors.New("invalid_exact_svm_payload_no_transfer_instruction")
	}

	transferIx := findCompactTransferChecked(tx, compactInstructions)
	if transferIx == nil {
		return "", errors.New("invalid_exact_svm_payload_no_transfer_instruction")
	}

	// transferChecked accounts: [source, mint, destination, authority].
	if len(transferIx.Accounts) < 3 {
		return "", errors.New("invalid_exact_svm_payload_no_transfer_instruction")
	}

	mintKey, ok := accountKeyAt(tx, int(transferIx.Accounts[1]))
	if !ok || mintKey.String() != asset {
		return "", errors.New("invalid_exact_svm_payload_mint_mismatch")
	}

	destATA, ok := accountKeyAt(tx, int(transferIx.Accounts[2]))
	if !ok {
		return "", errors.New("invalid_exact_svm_payload_recipient_mismatch")
	}

	payToPubkey, err := solana.PublicKeyFromBase58(payTo)
	if err != nil {
		return "", errors.New("invalid_exact_svm_payload_recipient_mismatch")
	}
	mintPubkey, err := solana.PublicKeyFromBase58(asset)
	if err != nil {
		return "", errors.New("invalid_exact_svm_payload_mint_mismatch")
	}
	expectedDestATA, _, err := solana.FindAssociatedTokenAddress(payToPubkey, mintPubkey)
	if err != nil || destATA.String() != expectedDestATA.String() {
		return "", errors.New("invalid_exact_svm_payload_recipient_mismatch")
	}

	// transferChecked data: [0]=discriminator, [1..8]=amount U64 LE,
	// [9]=decimals.
	if len(transferIx.Data) < 9 {
		return "", errors.New("invalid_exact_svm_payload_no_transfer_instruction")
	}
	txAmount := binary.LittleEndian.Uint64(transferIx.Data[1:9])

	requiredAmount, err := strconv.ParseUint(amount, 10, 64)
	if err != nil || txAmount < requiredAmount {
		return "", errors.New("invalid_exact_svm_payload_amount_insufficient")
	}

	return swigPDA, nil
}

// ParsedSwigTransaction is the flattened view of a Swig transaction: the
// leading compute-budget instructions plus the embedded transferChecked
// resolved into a plain instruction. Any secp256r1 precompile call is
// dropped in the flattening.
type ParsedSwigTransaction struct {
	Instructions []solana.CompiledInstruction
	SwigPDA      string
}

// IsSwigTransaction reports whether tx is the Swig shape: the last
// instruction is a Swig sign call and everything before it is a
// ComputeBudget or secp256r1 precompile instruction.
func IsSwigTransaction(tx *solana.Transaction) bool {
	n := len(tx.Message.Instructions)
	if n == 0 {
		return false
	}
	if !IsSwigSignInstruction(tx, tx.Message.Instructions[n-1]) {
		return false
	}

	for _, inst := range tx.Message.Instructions[:n-1] {
		progID, ok := accountKeyAt(tx, int(inst.ProgramIDIndex))
		if !ok {
			return false
		}
		if progID.Equals(solana.ComputeBudget) {
			continue
		}
		if secp256r1Key, err := solana.PublicKeyFromBase58(Secp256r1PrecompileAddress); err == nil && progID.Equals(secp256r1Key) {
			continue
		}
		return false
	}

	return true
}

// ParseSwigTransaction flattens a Swig transaction into the equivalent
// plain instruction list so the regular verification path can run over
// it.
func ParseSwigTransaction(tx *solana.Transaction) (*ParsedSwigTransaction, error) {
	n := len(tx.Message.Instructions)
	if n == 0 {
		return nil, errors.New("no instructions in transaction")
	}

	last := tx.Message.Instructions[n-1]
	if !IsSwigSignInstruction(tx, last) {
		return nil, errors.New("last instruction is not a Swig sign instruction")
	}
	if len(last.Accounts) < 1 {
		return nil, errors.New("swig sign instruction has no accounts")
	}
	pdaKey, ok := accountKeyAt(tx, int(last.Accounts[0]))
	if !ok {
		return nil, errors.New("swig sign instruction account index out of range")
	}

	compactInstructions, err := DecodeSwigCompactInstructions(last.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode swig compact instructions: %w", err)
	}

	transferIx := findCompactTransferChecked(tx, compactInstructions)
	if transferIx == nil {
		return nil, errors.New("no transfer instruction found in swig sign instruction")
	}

	resolvedAccounts := make([]uint16, len(transferIx.Accounts))
	for i, account := range transferIx.Accounts {
		resolvedAccounts[i] = uint16(account)
	}

	instructions := make([]solana.CompiledInstruction, 0, n)
	for _, inst := range tx.Message.Instructions[:n-1] {
		if progID, ok := accountKeyAt(tx, int(inst.ProgramIDIndex)); ok && progID.Equals(solana.ComputeBudget) {
			instructions = append(instructions, inst)
		}
	}
	instructions = append(instructions, solana.CompiledInstruction{
		ProgramIDIndex: uint16(transferIx.ProgramIDIndex),
		Accounts:       resolvedAccounts,
		Data:           transferIx.Data,
	})

	return &ParsedSwigTransaction{
		Instructions: instructions,
		SwigPDA:      pdaKey.String(),
	}, nil
}
