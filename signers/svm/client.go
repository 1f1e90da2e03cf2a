// Package svm provides the reference ClientSvmSigner: the partial-signing
// hook the SVM mechanism calls to add the payer's Ed25519 signature to a
// transaction the facilitator's fee payer will co-sign and submit.
package svm

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	x402svm "github.com/x402go/x402/mechanisms/svm"
)

// SignTransactionFunc signs (in place) a Solana transaction. Abstracting
// the signer as a callback keeps hardware wallets and key services
// pluggable without another interface.
type SignTransactionFunc func(ctx context.Context, tx *solana.Transaction) error

// ClientSigner pairs a public key with its signing callback.
type ClientSigner struct {
	publicKey       solana.PublicKey
	signTransaction SignTransactionFunc
}

// NewClientSigner builds a signer from a public key and callback.
func NewClientSigner(publicKey solana.PublicKey, signFunc SignTransactionFunc) (x402svm.ClientSvmSigner, error) {
	if publicKey == (solana.PublicKey{}) {
		return nil, fmt.Errorf("public key is required")
	}
	if signFunc == nil {
		return nil, fmt.Errorf("sign callback is required")
	}

	return &ClientSigner{
		publicKey:       publicKey,
		signTransaction: signFunc,
	}, nil
}

// NewClientSignerFromPrivateKey builds a signer around a base58 private
// key held in memory:
//
//	signer, err := svm.NewClientSignerFromPrivateKey("5J7W...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := x402.Newx402Client()
//	client.RegisterScheme("solana:*", x402svm.NewExactSvmClient(signer))
func NewClientSignerFromPrivateKey(privateKeyBase58 string) (x402svm.ClientSvmSigner, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return NewClientSigner(privateKey.PublicKey(), func(ctx context.Context, tx *solana.Transaction) error {
		return partiallySign(privateKey, tx)
	})
}

// Address returns the signer's public key.
func (s *ClientSigner) Address() solana.PublicKey {
	return s.publicKey
}

// SignTransaction adds the payer's signature to tx at its account index,
// leaving every other signature slot (notably the fee payer's) untouched.
func (s *ClientSigner) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	return s.signTransaction(ctx, tx)
}

// partiallySign signs the serialized message and writes the signature
// into the slot matching the key's account index, growing the signature
// array when the slot doesn't exist yet.
func partiallySign(privateKey solana.PrivateKey, tx *solana.Transaction) error {
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	signature, err := privateKey.Sign(messageBytes)
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}

	accountIndex, err := tx.GetAccountIndex(privateKey.PublicKey())
	if err != nil {
		return fmt.Errorf("failed to get account index: %w", err)
	}

	if len(tx.Signatures) <= int(accountIndex) {
		grown := make([]solana.Signature, accountIndex+1)
		copy(grown, tx.Signatures)
		tx.Signatures = grown
	}
	tx.Signatures[accountIndex] = signature

	return nil
}
