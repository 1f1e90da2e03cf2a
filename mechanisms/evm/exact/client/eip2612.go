package client

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402go/x402/extensions/eip2612gassponsor"
	"github.com/x402go/x402/mechanisms/evm"
)

// SignEip2612Permit signs an EIP-2612 permit approving Permit2 for the
// maximum amount, the client half of the eip2612GasSponsoring extension:
// the facilitator later submits the permit on-chain through
// x402Permit2Proxy.settleWithPermit, paying the gas the payer would
// otherwise need for a plain approve.
func SignEip2612Permit(
	ctx context.Context,
	signer Eip2612Signer,
	tokenAddress string,
	tokenName string,
	tokenVersion string,
	chainID *big.Int,
	deadline string,
) (*eip2612gassponsor.Info, error) {
	owner := signer.Address()
	spender := evm.PERMIT2Address
	token := evm.NormalizeAddress(tokenAddress)

	// The permit signs over the token's current nonce; read it live.
	nonceResult, err := signer.ReadContract(
		ctx,
		token,
		evm.EIP2612NoncesABI,
		"nonces",
		common.HexToAddress(owner),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read EIP-2612 nonce: %w", err)
	}
	nonce, ok := nonceResult.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonce type: %T", nonceResult)
	}

	deadlineBig, ok := new(big.Int).SetString(deadline, 10)
	if !ok {
		return nil, fmt.Errorf("invalid deadline: %s", deadline)
	}

	// Max approval: one sponsored permit covers every future Permit2
	// payment on this token.
	maxAmount := evm.MaxUint256()

	message := map[string]interface{}{
		"owner":    owner,
		"spender":  spender,
		"value":    maxAmount,
		"nonce":    nonce,
		"deadline": deadlineBig,
	}

	signature, err := signer.SignTypedData(
		ctx,
		evm.TypedDataDomain{
			Name:              tokenName,
			Version:           tokenVersion,
			ChainID:           chainID,
			VerifyingContract: token,
		},
		evm.GetEIP2612EIP712Types(),
		"Permit",
		message,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sign EIP-2612 permit: %w", err)
	}

	return &eip2612gassponsor.Info{
		From:      owner,
		Asset:     token,
		Spender:   spender,
		Amount:    maxAmount.String(),
		Nonce:     nonce.String(),
		Deadline:  deadline,
		Signature: evm.BytesToHex(signature),
		Version:   "1",
	}, nil
}
