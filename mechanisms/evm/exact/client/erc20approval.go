package client

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/x402go/x402/extensions/erc20approvalgassponsor"
	"github.com/x402go/x402/mechanisms/evm"
)

// Erc20ApprovalClientConfig configures the sponsored-approval path.
type Erc20ApprovalClientConfig struct {
	// ApprovalMode selects the approve amount: "infinite" (default,
	// MaxUint256 — one sponsorship covers all future payments) or
	// "exact" (just this payment's amount).
	ApprovalMode string
}

// Erc20ApprovalClientSigner is the raw-transaction surface the
// sponsored-approval path needs: nonce and fee discovery plus
// DynamicFeeTx signing. It is deliberately separate from ClientEvmSigner
// — most payment clients never sign raw transactions — and gated behind
// a type assertion by callers.
type Erc20ApprovalClientSigner interface {
	Address() string
	PendingNonceAt(ctx context.Context, address string) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SignRawTransaction(ctx context.Context, chainID *big.Int, to string, data []byte,
		nonce uint64, gasLimit uint64, gasFeeCap *big.Int, gasTipCap *big.Int) ([]byte, error)
}

// approveGasLimit comfortably covers any ERC-20 approve().
const approveGasLimit = uint64(60000)

// SignErc20ApprovalTransaction builds and signs — but does not broadcast
// — an approve(Permit2, amount) transaction, the client half of the
// erc20ApprovalGasSponsoring extension for tokens without EIP-2612. The
// facilitator broadcasts it atomically with the settle, from the payer's
// smart wallet, so the payer never spends gas.
func SignErc20ApprovalTransaction(
	ctx context.Context,
	signer Erc20ApprovalClientSigner,
	tokenAddress string,
	chainID *big.Int,
	amount *big.Int,
	config *Erc20ApprovalClientConfig,
) (*erc20approvalgassponsor.Info, error) {
	approvalAmount := evm.MaxUint256()
	if config != nil && config.ApprovalMode == "exact" {
		approvalAmount = new(big.Int).Set(amount)
	}

	token := evm.NormalizeAddress(tokenAddress)
	spender := evm.PERMIT2Address

	parsedABI, err := ethabi.JSON(bytes.NewReader(evm.ERC20ApproveABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 approve ABI: %w", err)
	}
	calldata, err := parsedABI.Pack("approve", common.HexToAddress(spender), approvalAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode approve calldata: %w", err)
	}

	nonce, err := signer.PendingNonceAt(ctx, signer.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to get pending nonce: %w", err)
	}
	gasTipCap, err := signer.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}

	// The legacy gas price serves as a conservative fee cap.
	gasFeeCap, err := signer.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	signedTx, err := signer.SignRawTransaction(ctx, chainID, token, calldata,
		nonce, approveGasLimit, gasFeeCap, gasTipCap)
	if err != nil {
		return nil, fmt.Errorf("failed to sign raw transaction: %w", err)
	}

	return &erc20approvalgassponsor.Info{
		From:              signer.Address(),
		Asset:             token,
		Spender:           spender,
		Amount:            approvalAmount.String(),
		SignedTransaction: evm.BytesToHex(signedTx),
		Version:           "1",
	}, nil
}
