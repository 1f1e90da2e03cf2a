package client

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/x402go/x402/mechanisms/evm"
	"github.com/x402go/x402/types"
)

// CreatePermit2Payload builds and signs the Permit2 witness
// authorization: the spender is pinned to x402Permit2Proxy, and the
// witness binds the destination and a skew-tolerant validAfter, so the
// signature authorizes exactly one payment to exactly one recipient.
func CreatePermit2Payload(
	ctx context.Context,
	signer evm.ClientEvmSigner,
	requirements types.PaymentRequirements,
) (types.PaymentPayload, error) {
	chainID, err := evm.GetEvmChainId(string(requirements.Network))
	if err != nil {
		return types.PaymentPayload{}, err
	}

	// Permit2 nonces are unordered; any random uint256 works once.
	nonce, err := evm.CreatePermit2Nonce()
	if err != nil {
		return types.PaymentPayload{}, err
	}

	now := time.Now().Unix()
	authorization := evm.Permit2Authorization{
		From: signer.Address(),
		Permitted: evm.Permit2TokenPermissions{
			Token:  evm.NormalizeAddress(requirements.Asset),
			Amount: requirements.Amount,
		},
		Spender:  evm.X402ExactPermit2ProxyAddress,
		Nonce:    nonce,
		Deadline: fmt.Sprintf("%d", now+int64(requirements.MaxTimeoutSeconds)),
		Witness: evm.Permit2Witness{
			To:         evm.NormalizeAddress(requirements.PayTo),
			ValidAfter: fmt.Sprintf("%d", now-600), // ten-minute skew buffer
			Extra:      "0x",
		},
	}

	signature, err := signPermit2Authorization(ctx, signer, authorization, chainID)
	if err != nil {
		return types.PaymentPayload{}, fmt.Errorf(ErrFailedToSignPermit2Authorization+": %w", err)
	}

	signed := &evm.ExactPermit2Payload{
		Signature:            evm.BytesToHex(signature),
		Permit2Authorization: authorization,
	}

	return types.PaymentPayload{
		X402Version: 2,
		Payload:     signed.ToMap(),
	}, nil
}

// signPermit2Authorization signs PermitWitnessTransferFrom under
// Permit2's fixed domain (name "Permit2", no version).
func signPermit2Authorization(
	ctx context.Context,
	signer evm.ClientEvmSigner,
	authorization evm.Permit2Authorization,
	chainID *big.Int,
) ([]byte, error) {
	parse := func(field, value string) (*big.Int, error) {
		parsed, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return nil, fmt.Errorf("invalid %s: %s", field, value)
		}
		return parsed, nil
	}

	amount, err := parse("permitted amount", authorization.Permitted.Amount)
	if err != nil {
		return nil, err
	}
	nonce, err := parse("nonce", authorization.Nonce)
	if err != nil {
		return nil, err
	}
	deadline, err := parse("deadline", authorization.Deadline)
	if err != nil {
		return nil, err
	}
	validAfter, err := parse("validAfter", authorization.Witness.ValidAfter)
	if err != nil {
		return nil, err
	}
	extraBytes, err := evm.HexToBytes(authorization.Witness.Extra)
	if err != nil {
		return nil, fmt.Errorf("invalid witness extra: %w", err)
	}

	domain := evm.TypedDataDomain{
		Name:              "Permit2",
		ChainID:           chainID,
		VerifyingContract: evm.PERMIT2Address,
	}

	// Field order in the nested structs must match the on-chain contract.
	message := map[string]interface{}{
		"permitted": map[string]interface{}{
			"token":  authorization.Permitted.Token,
			"amount": amount,
		},
		"spender":  authorization.Spender,
		"nonce":    nonce,
		"deadline": deadline,
		"witness": map[string]interface{}{
			"extra":      extraBytes,
			"to":         authorization.Witness.To,
			"validAfter": validAfter,
		},
	}

	return signer.SignTypedData(ctx, domain, evm.GetPermit2EIP712Types(), "PermitWitnessTransferFrom", message)
}

// Permit2AllowanceParams identifies whose allowance of which token to
// read.
type Permit2AllowanceParams struct {
	TokenAddress string
	OwnerAddress string
}

// GetPermit2AllowanceReadParams returns the ReadContract arguments for
// checking whether the owner has approved Permit2 on the token.
func GetPermit2AllowanceReadParams(params Permit2AllowanceParams) (address string, abi []byte, functionName string, args []interface{}) {
	return evm.NormalizeAddress(params.TokenAddress),
		evm.ERC20AllowanceABI,
		"allowance",
		[]interface{}{params.OwnerAddress, evm.PERMIT2Address}
}

// CreatePermit2ApprovalTxData returns the target and calldata pieces of
// the one-time approve(Permit2, MaxUint256) transaction a payer sends
// (paying its own gas) before the Permit2 flow works without
// sponsorship.
func CreatePermit2ApprovalTxData(tokenAddress string) (to string, abi []byte, functionName string, args []interface{}) {
	return evm.NormalizeAddress(tokenAddress),
		evm.ERC20ApproveABI,
		"approve",
		[]interface{}{evm.PERMIT2Address, evm.MaxUint256()}
}
