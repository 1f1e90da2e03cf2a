// Package evm provides the reference ClientEvmSigner: a private-key
// signer with an optional ethclient attached for the flows that need
// chain reads (EIP-2612 nonces, Permit2 allowances) or raw-transaction
// signing (ERC-20 approval sponsorship).
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	x402evm "github.com/x402go/x402/mechanisms/evm"
)

// ClientSigner signs EIP-712 typed data with a raw ECDSA key. The digest
// construction is delegated to the mechanism package's HashTypedData so
// client and facilitator can never disagree on what was signed.
type ClientSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	ethClient  *ethclient.Client
}

// NewClientSignerFromPrivateKey builds a signer from a hex private key
// (0x prefix optional). The result has no chain connection; flows that
// read contracts need NewClientSignerFromPrivateKeyWithClient.
//
//	signer, err := evm.NewClientSignerFromPrivateKey("0x1234...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := x402.Newx402Client()
//	client.RegisterScheme("eip155:*", x402evm.NewExactEvmClient(signer))
func NewClientSignerFromPrivateKey(privateKeyHex string) (x402evm.ClientEvmSigner, error) {
	return NewClientSignerFromPrivateKeyWithClient(privateKeyHex, nil)
}

// NewClientSignerFromPrivateKeyWithClient builds a signer with an
// attached ethclient for contract reads. A nil client is allowed;
// ReadContract then errors when called.
func NewClientSignerFromPrivateKeyWithClient(privateKeyHex string, ethClient *ethclient.Client) (x402evm.ClientEvmSigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &ClientSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		ethClient:  ethClient,
	}, nil
}

// Address returns the signer's Ethereum address.
func (s *ClientSigner) Address() string {
	return s.address.Hex()
}

// SignTypedData hashes the typed data (via the mechanism package, so the
// digest matches what verifiers compute) and signs it, returning the
// 65-byte signature with v adjusted to the 27/28 convention.
func (s *ClientSigner) SignTypedData(
	ctx context.Context,
	domain x402evm.TypedDataDomain,
	fieldTypes map[string][]x402evm.TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	digest, err := x402evm.HashTypedData(domain, fieldTypes, primaryType, message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// Recovery id 0/1 -> Ethereum's 27/28.
	signature[64] += 27
	return signature, nil
}

// requireEthClient gates the methods that need a chain connection.
func (s *ClientSigner) requireEthClient(method string) error {
	if s.ethClient == nil {
		return fmt.Errorf("%s requires an ethclient; use NewClientSignerFromPrivateKeyWithClient", method)
	}
	return nil
}

// GetTransactionCount returns the pending nonce for address.
func (s *ClientSigner) GetTransactionCount(ctx context.Context, address string) (uint64, error) {
	if err := s.requireEthClient("GetTransactionCount"); err != nil {
		return 0, err
	}

	nonce, err := s.ethClient.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("failed to get pending nonce: %w", err)
	}
	return nonce, nil
}

// EstimateFeesPerGas returns EIP-1559 fee parameters from the connected
// node, falling back to 1 gwei / 0.1 gwei when nothing better is known.
func (s *ClientSigner) EstimateFeesPerGas(ctx context.Context) (maxFeePerGas, maxPriorityFeePerGas *big.Int, err error) {
	gwei := big.NewInt(1_000_000_000)
	fallbackMax := new(big.Int).Set(gwei)
	fallbackTip := new(big.Int).Div(gwei, big.NewInt(10))

	if s.ethClient == nil {
		return fallbackMax, fallbackTip, nil
	}

	tip, err := s.ethClient.SuggestGasTipCap(ctx)
	if err != nil {
		return fallbackMax, fallbackTip, err
	}

	header, err := s.ethClient.HeaderByNumber(ctx, nil)
	if err != nil {
		return new(big.Int).Add(tip, gwei), tip, err
	}

	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = gwei
	}

	// maxFee = 2*baseFee + tip, the usual EIP-1559 headroom.
	maxFee := new(big.Int).Add(new(big.Int).Mul(big.NewInt(2), baseFee), tip)
	return maxFee, tip, nil
}

// SignTransaction signs an EIP-1559 transaction and returns its
// RLP-encoded bytes, ready to broadcast (or to hand a facilitator as a
// pre-signed approval).
func (s *ClientSigner) SignTransaction(ctx context.Context, tx *types.Transaction) ([]byte, error) {
	signer := types.LatestSignerForChainID(tx.ChainId())

	signedTx, err := types.SignTx(tx, signer, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	encoded, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to RLP-encode transaction: %w", err)
	}
	return encoded, nil
}

// ReadContract performs an eth_call against the given contract function
// and unpacks the result (single output unwrapped, multiple returned as a
// slice).
func (s *ClientSigner) ReadContract(
	ctx context.Context,
	contractAddress string,
	abiBytes []byte,
	functionName string,
	args ...interface{},
) (interface{}, error) {
	if err := s.requireEthClient("ReadContract"); err != nil {
		return nil, err
	}

	contractABI, err := abi.JSON(strings.NewReader(string(abiBytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	calldata, err := contractABI.Pack(functionName, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack method call: %w", err)
	}

	target := common.HexToAddress(contractAddress)
	result, err := s.ethClient.CallContract(ctx, ethereum.CallMsg{To: &target, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}

	outputs, err := contractABI.Unpack(functionName, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}

	switch len(outputs) {
	case 0:
		return nil, nil
	case 1:
		return outputs[0], nil
	default:
		return outputs, nil
	}
}
