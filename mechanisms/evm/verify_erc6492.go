package evm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// VerifyERC6492Signature verifies an ERC-6492 counterfactual signature by calling the
// ERC-6492 UniversalSigValidator contract via eth_call (no state changes committed).
// The validator atomically simulates the factory deployment then verifies the inner
// signature using EIP-1271 isValidSignature on the resulting contract.
//
// Returns false (not an error) if the validator returns false.
// Returns false + error if the validator contract is unavailable or the call fails.
func VerifyERC6492Signature(
	ctx context.Context,
	facilitatorSigner FacilitatorEvmSigner,
	signerAddress string,
	hash [32]byte,
	signature []byte,
) (bool, error) {
	signerAddr := common.HexToAddress(signerAddress)
	result, err := facilitatorSigner.ReadContract(
		ctx,
		UniversalSigValidatorAddress,
		UniversalSigValidatorABI,
		"isValidSig",
		signerAddr,
		hash,
		signature,
	)
	if err != nil {
		return false, err
	}
	valid, ok := result.(bool)
	if !ok {
		return false, nil
	}
	return valid, nil
}

// VerifyUniversalSignature verifies a signature over hash for signerAddress,
// accepting plain EOA signatures, EIP-1271 smart-wallet signatures, and
// (when allowERC6492 is true) ERC-6492 counterfactual signatures. A 65-byte
// signature is first checked by local ECDSA recovery; everything else (and
// any recovery mismatch) is delegated to the on-chain universal validator.
// The second return reports whether the validator path was used.
func VerifyUniversalSignature(
	ctx context.Context,
	facilitatorSigner FacilitatorEvmSigner,
	signerAddress string,
	hash [32]byte,
	signature []byte,
	allowERC6492 bool,
) (bool, bool, error) {
	if len(signature) == 65 {
		sig := make([]byte, 65)
		copy(sig, signature)
		if sig[64] >= 27 {
			sig[64] -= 27
		}
		if pubKey, err := crypto.SigToPub(hash[:], sig); err == nil {
			recovered := crypto.PubkeyToAddress(*pubKey)
			if recovered == common.HexToAddress(signerAddress) {
				return true, false, nil
			}
		}
	}

	if !allowERC6492 && len(signature) != 65 {
		return false, false, nil
	}

	valid, err := VerifyERC6492Signature(ctx, facilitatorSigner, signerAddress, hash, signature)
	return valid, true, err
}
