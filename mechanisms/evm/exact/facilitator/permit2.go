package facilitator

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"

	x402 "github.com/x402go/x402"
	"github.com/x402go/x402/extensions/eip2612gassponsor"
	"github.com/x402go/x402/extensions/erc20approvalgassponsor"
	"github.com/x402go/x402/mechanisms/evm"
	"github.com/x402go/x402/types"
)

// Permit2 verification and settlement. The payer signs a
// PermitWitnessTransferFrom whose witness pins the destination and a
// validAfter; the x402Permit2Proxy contract enforces both on-chain. When
// the payer's Permit2 allowance is missing, one of the gas-sponsorship
// extensions rides along: an EIP-2612 permit (settled via
// settleWithPermit) or a pre-signed raw approve transaction (settled as
// an atomic smart-wallet batch).

// permitTuple / witnessTuple / permit2612Tuple mirror the proxy's ABI
// struct arguments; defined once here instead of repeating anonymous
// structs at every call site.
type permitTuple struct {
	Permitted struct {
		Token  common.Address
		Amount *big.Int
	}
	Nonce    *big.Int
	Deadline *big.Int
}

type witnessTuple struct {
	To         common.Address
	ValidAfter *big.Int
	Extra      []byte
}

type permit2612Tuple struct {
	Value    *big.Int
	Deadline *big.Int
	R        [32]byte
	S        [32]byte
	V        uint8
}

// parsedPermit2 holds the authorization's numeric fields after parsing,
// shared between the verify checks and the settle encoding.
type parsedPermit2 struct {
	amount     *big.Int
	nonce      *big.Int
	deadline   *big.Int
	validAfter *big.Int
	extra      []byte
	signature  []byte
}

// parsePermit2Fields validates and converts every wire field the proxy
// call needs; the reason names the first malformed field.
func parsePermit2Fields(payload *evm.ExactPermit2Payload) (*parsedPermit2, string) {
	authorization := payload.Permit2Authorization

	amount, ok := new(big.Int).SetString(authorization.Permitted.Amount, 10)
	if !ok {
		return nil, "invalid permitted amount format"
	}
	nonce, ok := new(big.Int).SetString(authorization.Nonce, 10)
	if !ok {
		return nil, "invalid nonce"
	}
	deadline, ok := new(big.Int).SetString(authorization.Deadline, 10)
	if !ok {
		return nil, "invalid deadline format"
	}
	validAfter, ok := new(big.Int).SetString(authorization.Witness.ValidAfter, 10)
	if !ok {
		return nil, "invalid validAfter format"
	}
	extra, err := evm.HexToBytes(authorization.Witness.Extra)
	if err != nil {
		return nil, "invalid witness extra"
	}
	signature, err := evm.HexToBytes(payload.Signature)
	if err != nil {
		return nil, "invalid signature format"
	}

	return &parsedPermit2{
		amount:     amount,
		nonce:      nonce,
		deadline:   deadline,
		validAfter: validAfter,
		extra:      extra,
		signature:  signature,
	}, ""
}

// permitArgs builds the proxy's (permit, witness) argument pair.
func (p *parsedPermit2) permitArgs(authorization evm.Permit2Authorization) (permitTuple, witnessTuple) {
	permit := permitTuple{Nonce: p.nonce, Deadline: p.deadline}
	permit.Permitted.Token = common.HexToAddress(authorization.Permitted.Token)
	permit.Permitted.Amount = p.amount

	witness := witnessTuple{
		To:         common.HexToAddress(authorization.Witness.To),
		ValidAfter: p.validAfter,
		Extra:      p.extra,
	}
	return permit, witness
}

// VerifyPermit2 verifies a Permit2 payment: authorization contents
// against the accepted requirements, the timing windows, the signature,
// and the payer's on-chain allowance/balance. A missing allowance is
// acceptable only when a valid gas-sponsorship extension rides along.
func VerifyPermit2(
	ctx context.Context,
	signer evm.FacilitatorEvmSigner,
	payload types.PaymentPayload,
	requirements types.PaymentRequirements,
	permit2Payload *evm.ExactPermit2Payload,
	fctx *x402.FacilitatorContext,
) (*x402.VerifyResponse, error) {
	authorization := permit2Payload.Permit2Authorization
	payer := authorization.From

	if payload.Accepted.Scheme != evm.SchemeExact || requirements.Scheme != evm.SchemeExact {
		return nil, x402.NewVerifyError(ErrUnsupportedPayloadType, payer, "scheme mismatch")
	}
	if payload.Accepted.Network != requirements.Network {
		return nil, x402.NewVerifyError(ErrNetworkMismatch, payer, "network mismatch")
	}

	chainID, err := evm.GetEvmChainId(string(requirements.Network))
	if err != nil {
		return nil, x402.NewVerifyError(ErrFailedToGetNetworkConfig, payer, err.Error())
	}
	tokenAddress := evm.NormalizeAddress(requirements.Asset)

	// The proxy is the only spender the witness pattern protects against.
	if !strings.EqualFold(authorization.Spender, evm.X402ExactPermit2ProxyAddress) {
		return nil, x402.NewVerifyError(ErrPermit2InvalidSpender, payer, "invalid spender")
	}
	if !strings.EqualFold(authorization.Witness.To, requirements.PayTo) {
		return nil, x402.NewVerifyError(ErrPermit2RecipientMismatch, payer, "recipient mismatch")
	}
	if !strings.EqualFold(authorization.Permitted.Token, requirements.Asset) {
		return nil, x402.NewVerifyError(ErrPermit2TokenMismatch, payer, "token mismatch")
	}

	parsed, badField := parsePermit2Fields(permit2Payload)
	if badField != "" {
		if badField == "invalid signature format" {
			return nil, x402.NewVerifyError(ErrInvalidSignatureFormat, payer, badField)
		}
		return nil, x402.NewVerifyError(ErrInvalidPayload, payer, badField)
	}

	// Timing: deadline must outlast now plus the block-time buffer;
	// validAfter must have passed.
	now := time.Now().Unix()
	if parsed.deadline.Cmp(big.NewInt(now+evm.Permit2DeadlineBuffer)) < 0 {
		return nil, x402.NewVerifyError(ErrPermit2DeadlineExpired, payer, "deadline expired")
	}
	if parsed.validAfter.Cmp(big.NewInt(now)) > 0 {
		return nil, x402.NewVerifyError(ErrPermit2NotYetValid, payer, "not yet valid")
	}

	requiredAmount, ok := new(big.Int).SetString(requirements.Amount, 10)
	if !ok {
		return nil, x402.NewVerifyError(ErrInvalidRequiredAmount, payer, "invalid required amount format")
	}
	if parsed.amount.Cmp(requiredAmount) < 0 {
		return nil, x402.NewVerifyError(ErrPermit2InsufficientAmount, payer, "insufficient amount")
	}

	valid, err := verifyPermit2Signature(ctx, signer, authorization, parsed.signature, chainID)
	if err != nil || !valid {
		return nil, x402.NewVerifyError(ErrPermit2InvalidSignature, payer, "invalid signature")
	}

	if reason := checkAllowanceOrSponsorship(ctx, signer, payload, payer, tokenAddress, requiredAmount, chainID); reason != "" {
		return nil, x402.NewVerifyError(reason, payer, "permit2 allowance check failed")
	}

	// Balance read errors are tolerated (the RPC may lag); an observed
	// shortfall is not.
	if balance, err := signer.GetBalance(ctx, payer, tokenAddress); err == nil && balance.Cmp(requiredAmount) < 0 {
		return nil, x402.NewVerifyError(ErrInsufficientBalance, payer, "insufficient balance")
	}

	return &x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// checkAllowanceOrSponsorship verifies the payer's Permit2 allowance
// covers the payment, or that a valid gas-sponsorship extension will
// establish it during settlement. Returns the failure reason, or "".
func checkAllowanceOrSponsorship(
	ctx context.Context,
	signer evm.FacilitatorEvmSigner,
	payload types.PaymentPayload,
	payer string,
	tokenAddress string,
	requiredAmount *big.Int,
	chainID *big.Int,
) string {
	allowanceRaw, err := signer.ReadContract(ctx, tokenAddress, evm.ERC20AllowanceABI, "allowance",
		common.HexToAddress(payer), common.HexToAddress(evm.PERMIT2Address))
	if err != nil {
		// Unreadable allowance is tolerated; settlement will surface it.
		return ""
	}
	allowance, ok := allowanceRaw.(*big.Int)
	if !ok || allowance.Cmp(requiredAmount) >= 0 {
		return ""
	}

	// Allowance short: EIP-2612 permit first, raw approval second.
	if eip2612Info, extErr := eip2612gassponsor.ExtractEip2612GasSponsoringInfo(payload.Extensions); extErr == nil && eip2612Info != nil {
		if reason := validateEip2612PermitForPayment(eip2612Info, payer, tokenAddress); reason != "" {
			return reason
		}
		return ""
	}

	erc20Info, extErr := erc20approvalgassponsor.ExtractErc20ApprovalGasSponsoringInfo(payload.Extensions)
	if extErr != nil || erc20Info == nil {
		return ErrPermit2AllowanceRequired
	}
	if reason := validateErc20ApprovalForPayment(ctx, signer, erc20Info, payer, tokenAddress, chainID); reason != "" {
		return reason
	}
	return ""
}

// SettlePermit2 settles a Permit2 payment through x402ExactPermit2Proxy,
// choosing the entry point by the attached sponsorship: plain settle,
// settleWithPermit (EIP-2612), or an atomic approve+settle batch (raw
// approval, via the facilitator's smart-wallet signer).
func SettlePermit2(
	ctx context.Context,
	signer evm.FacilitatorEvmSigner,
	payload types.PaymentPayload,
	requirements types.PaymentRequirements,
	permit2Payload *evm.ExactPermit2Payload,
	fctx *x402.FacilitatorContext,
) (*x402.SettleResponse, error) {
	network := x402.Network(payload.Accepted.Network)
	authorization := permit2Payload.Permit2Authorization
	payer := authorization.From

	// Defensive re-verify: settle is never reachable on an unverified
	// payment, even when a caller skips the facilitator pipeline.
	verifyResp, err := VerifyPermit2(ctx, signer, payload, requirements, permit2Payload, fctx)
	if err != nil {
		ve := &x402.VerifyError{}
		if errors.As(err, &ve) {
			return nil, x402.NewSettleError(ve.InvalidReason, ve.Payer, network, "", ve.InvalidMessage)
		}
		return nil, x402.NewSettleError(ErrVerificationFailed, payer, network, "", err.Error())
	}

	parsed, badField := parsePermit2Fields(permit2Payload)
	if badField != "" {
		return nil, x402.NewSettleError(ErrInvalidPayload, payer, network, "", badField)
	}
	permit, witness := parsed.permitArgs(authorization)

	eip2612Info, _ := eip2612gassponsor.ExtractEip2612GasSponsoringInfo(payload.Extensions)
	erc20Info, _ := erc20approvalgassponsor.ExtractErc20ApprovalGasSponsoringInfo(payload.Extensions)

	var txHash string
	switch {
	case eip2612Info != nil:
		txHash, err = settleWithPermit(ctx, signer, eip2612Info, permit, witness, payer, parsed.signature)
		if err != nil {
			var settleErr *x402.SettleError
			if errors.As(err, &settleErr) {
				settleErr.Network = network
				return nil, settleErr
			}
			return nil, x402.NewSettleError(parsePermit2Error(err), payer, network, "", err.Error())
		}

	case erc20Info != nil:
		return settleWithApprovalBatch(ctx, fctx, erc20Info, authorization, parsed, payer, network, verifyResp.Payer)

	default:
		txHash, err = signer.WriteContract(
			ctx,
			evm.X402ExactPermit2ProxyAddress,
			evm.X402ExactPermit2ProxySettleABI,
			evm.FunctionSettle,
			permit,
			common.HexToAddress(payer),
			witness,
			parsed.signature,
		)
		if err != nil {
			return nil, x402.NewSettleError(parsePermit2Error(err), payer, network, "", err.Error())
		}
	}

	receipt, err := signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, x402.NewSettleError(ErrFailedToGetReceipt, payer, network, txHash, err.Error())
	}
	if receipt.Status != evm.TxStatusSuccess {
		return nil, x402.NewSettleError(ErrTransactionFailed, payer, network, txHash, "")
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     network,
		Payer:       verifyResp.Payer,
	}, nil
}

// settleWithPermit submits settleWithPermit: the payer's EIP-2612 permit
// establishes the Permit2 allowance in the same transaction as the
// settle.
func settleWithPermit(
	ctx context.Context,
	signer evm.FacilitatorEvmSigner,
	info *eip2612gassponsor.Info,
	permit permitTuple,
	witness witnessTuple,
	payer string,
	signature []byte,
) (string, error) {
	v, r, s, err := splitEip2612Signature(info.Signature)
	if err != nil {
		return "", x402.NewSettleError(ErrInvalidPayload, payer, "", "", "invalid eip2612 signature format")
	}
	value, ok := new(big.Int).SetString(info.Amount, 10)
	if !ok {
		return "", x402.NewSettleError(ErrInvalidPayload, payer, "", "", "invalid eip2612 amount")
	}
	deadline, ok := new(big.Int).SetString(info.Deadline, 10)
	if !ok {
		return "", x402.NewSettleError(ErrInvalidPayload, payer, "", "", "invalid eip2612 deadline")
	}

	return signer.WriteContract(
		ctx,
		evm.X402ExactPermit2ProxyAddress,
		evm.X402ExactPermit2ProxySettleWithPermitABI,
		evm.FunctionSettleWithPermit,
		permit2612Tuple{Value: value, Deadline: deadline, R: r, S: s, V: v},
		permit,
		common.HexToAddress(payer),
		witness,
		signature,
	)
}

// settleWithApprovalBatch settles via the payer's smart wallet: the
// pre-signed approve and the settle call go out as one atomic batch, so
// the allowance can't be front-run away between the two.
func settleWithApprovalBatch(
	ctx context.Context,
	fctx *x402.FacilitatorContext,
	info *erc20approvalgassponsor.Info,
	authorization evm.Permit2Authorization,
	parsed *parsedPermit2,
	payer string,
	network x402.Network,
	verifiedPayer string,
) (*x402.SettleResponse, error) {
	ext, ok := fctx.GetExtension(erc20approvalgassponsor.ERC20ApprovalGasSponsoring).(*erc20approvalgassponsor.FacilitatorExt)
	if !ok || ext == nil || ext.SmartWalletSigner == nil {
		return nil, x402.NewSettleError(ErrErc20GasSponsoringNotConfigured, payer, network, "", "smart wallet signer not configured for erc20 gas sponsoring")
	}

	approvalCalldata, err := extractCalldataFromSignedTx(info.SignedTransaction)
	if err != nil {
		return nil, x402.NewSettleError(ErrErc20InvalidSignedTx, payer, network, "", err.Error())
	}

	settleCalldata, err := encodeSettleCalldata(
		common.HexToAddress(authorization.Permitted.Token),
		parsed.amount, parsed.nonce, parsed.deadline,
		common.HexToAddress(payer),
		common.HexToAddress(authorization.Witness.To),
		parsed.validAfter, parsed.extra,
		parsed.signature,
	)
	if err != nil {
		return nil, x402.NewSettleError(ErrInvalidPayload, payer, network, "", fmt.Sprintf("failed to encode settle calldata: %s", err.Error()))
	}

	calls := []erc20approvalgassponsor.BatchCall{
		{To: evm.NormalizeAddress(authorization.Permitted.Token), Data: approvalCalldata},
		{To: evm.X402ExactPermit2ProxyAddress, Data: settleCalldata},
	}

	txHash, err := ext.SmartWalletSigner.SendBatchTransaction(ctx, calls)
	if err != nil {
		return nil, x402.NewSettleError(ErrFailedToExecuteTransfer, payer, network, "", err.Error())
	}

	receipt, err := ext.SmartWalletSigner.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, x402.NewSettleError(ErrFailedToGetReceipt, payer, network, txHash, err.Error())
	}
	if receipt.Status != evm.TxStatusSuccess {
		return nil, x402.NewSettleError(ErrTransactionFailed, payer, network, txHash, "")
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     network,
		Payer:       verifiedPayer,
	}, nil
}

// verifyPermit2Signature checks the EIP-712 signature via the universal
// path (EOA recovery, then ERC-6492 validator for smart wallets).
func verifyPermit2Signature(
	ctx context.Context,
	signer evm.FacilitatorEvmSigner,
	authorization evm.Permit2Authorization,
	signature []byte,
	chainID *big.Int,
) (bool, error) {
	hash, err := evm.HashPermit2Authorization(authorization, chainID)
	if err != nil {
		return false, err
	}

	var hash32 [32]byte
	copy(hash32[:], hash)

	valid, _, err := evm.VerifyUniversalSignature(ctx, signer, authorization.From, hash32, signature, true)
	return valid, err
}

// validateEip2612PermitForPayment checks the attached permit belongs to
// this payment: right payer, right token, Permit2 as spender, unexpired.
// Returns the failure reason, or "".
func validateEip2612PermitForPayment(info *eip2612gassponsor.Info, payer string, tokenAddress string) string {
	if !eip2612gassponsor.ValidateEip2612GasSponsoringInfo(info) {
		return "invalid_eip2612_extension_format"
	}
	if !strings.EqualFold(info.From, payer) {
		return "eip2612_from_mismatch"
	}
	if !strings.EqualFold(info.Asset, tokenAddress) {
		return "eip2612_asset_mismatch"
	}
	if !strings.EqualFold(info.Spender, evm.PERMIT2Address) {
		return "eip2612_spender_not_permit2"
	}

	// Same block-time buffer as the Permit2 deadline check.
	deadline, ok := new(big.Int).SetString(info.Deadline, 10)
	if !ok || deadline.Int64() < time.Now().Unix()+evm.Permit2DeadlineBuffer {
		return "eip2612_deadline_expired"
	}

	return ""
}

// splitEip2612Signature splits a 65-byte hex signature into (v, r, s).
func splitEip2612Signature(signature string) (uint8, [32]byte, [32]byte, error) {
	sigBytes, err := evm.HexToBytes(signature)
	if err != nil {
		return 0, [32]byte{}, [32]byte{}, err
	}
	if len(sigBytes) != 65 {
		return 0, [32]byte{}, [32]byte{}, errors.New("signature must be 65 bytes")
	}

	var r, s [32]byte
	copy(r[:], sigBytes[0:32])
	copy(s[:], sigBytes[32:64])
	return sigBytes[64], r, s, nil
}

// validateErc20ApprovalForPayment checks the attached pre-signed approve
// transaction belongs to this payment: signed by the payer, targeting
// the right token, calling approve with Permit2 as spender. Returns the
// failure reason, or "".
func validateErc20ApprovalForPayment(
	_ context.Context,
	_ evm.FacilitatorEvmSigner,
	info *erc20approvalgassponsor.Info,
	payer string,
	tokenAddress string,
	chainID *big.Int,
) string {
	if !erc20approvalgassponsor.ValidateErc20ApprovalGasSponsoringInfo(info) {
		return "invalid_erc20_extension_format"
	}
	if !strings.EqualFold(info.From, payer) {
		return ErrErc20SignerMismatch
	}
	if !strings.EqualFold(info.Asset, tokenAddress) {
		return ErrErc20TokenMismatch
	}
	if !strings.EqualFold(info.Spender, evm.PERMIT2Address) {
		return ErrErc20SpenderNotPermit2
	}

	txBytes, err := hex.DecodeString(strings.TrimPrefix(info.SignedTransaction, "0x"))
	if err != nil {
		return ErrErc20InvalidSignedTx
	}
	tx := new(ethTypes.Transaction)
	if err := tx.UnmarshalBinary(txBytes); err != nil {
		return ErrErc20InvalidSignedTx
	}

	// The embedded transaction must actually be the payer's.
	sender, err := ethTypes.LatestSignerForChainID(chainID).Sender(tx)
	if err != nil || !strings.EqualFold(sender.Hex(), info.From) {
		return ErrErc20SignerMismatch
	}
	if tx.To() == nil || !strings.EqualFold(tx.To().Hex(), tokenAddress) {
		return ErrErc20TokenMismatch
	}

	// And its calldata must be approve(Permit2, ...).
	calldata := tx.Data()
	if len(calldata) < 4 {
		return ErrErc20InvalidCalldata
	}
	if !strings.EqualFold("0x"+hex.EncodeToString(calldata[:4]), evm.ERC20ApproveFunctionSelector) {
		return ErrErc20InvalidCalldata
	}

	parsedABI, err := ethabi.JSON(bytes.NewReader(evm.ERC20ApproveABI))
	if err != nil {
		return ErrErc20InvalidCalldata
	}
	args, err := parsedABI.Methods["approve"].Inputs.Unpack(calldata[4:])
	if err != nil || len(args) < 2 {
		return ErrErc20InvalidCalldata
	}
	spender, ok := args[0].(common.Address)
	if !ok || !strings.EqualFold(spender.Hex(), evm.PERMIT2Address) {
		return ErrErc20SpenderNotPermit2
	}

	return ""
}

// extractCalldataFromSignedTx decodes an RLP-encoded signed transaction
// and returns its input data.
func extractCalldataFromSignedTx(signedTxHex string) ([]byte, error) {
	txBytes, err := hex.DecodeString(strings.TrimPrefix(signedTxHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}

	tx := new(ethTypes.Transaction)
	if err := tx.UnmarshalBinary(txBytes); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	return tx.Data(), nil
}

// encodeSettleCalldata ABI-encodes settle(permit, owner, witness,
// signature) for inclusion in a batch transaction.
func encodeSettleCalldata(
	tokenAddress common.Address,
	amount *big.Int,
	nonce *big.Int,
	deadline *big.Int,
	owner common.Address,
	to common.Address,
	validAfter *big.Int,
	extra []byte,
	signature []byte,
) ([]byte, error) {
	parsedABI, err := ethabi.JSON(bytes.NewReader(evm.X402ExactPermit2ProxySettleABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse settle ABI: %w", err)
	}

	permit := permitTuple{Nonce: nonce, Deadline: deadline}
	permit.Permitted.Token = tokenAddress
	permit.Permitted.Amount = amount

	witness := witnessTuple{To: to, ValidAfter: validAfter, Extra: extra}

	return parsedABI.Pack(evm.FunctionSettle, permit, owner, witness, signature)
}

// parsePermit2Error maps proxy revert strings onto the stable reasons.
func parsePermit2Error(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "AmountExceedsPermitted"):
		return ErrPermit2AmountExceedsPermitted
	case strings.Contains(msg, "InvalidDestination"):
		return ErrPermit2InvalidDestination
	case strings.Contains(msg, "InvalidOwner"):
		return ErrPermit2InvalidOwner
	case strings.Contains(msg, "PaymentTooEarly"):
		return ErrPermit2PaymentTooEarly
	case strings.Contains(msg, "InvalidSignature"), strings.Contains(msg, "SignatureExpired"):
		return ErrPermit2InvalidSignature
	case strings.Contains(msg, "InvalidNonce"):
		return ErrPermit2InvalidNonce
	default:
		return ErrFailedToExecuteTransfer
	}
}
