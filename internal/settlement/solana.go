// Package settlement talks to the Solana network: it prices payments in SOL
// and confirms caller-supplied transaction signatures.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	ErrInvalidSignature = errors.New("invalid transaction signature")
	ErrTxNotFound       = errors.New("transaction not found")
	ErrTxFailed         = errors.New("transaction failed")
)

// TxFetcher is the slice of the Solana RPC client the verifier needs.
type TxFetcher interface {
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// SolanaVerifier confirms that a signature names a landed, error-free
// transaction at confirmed commitment.
type SolanaVerifier struct {
	rpc TxFetcher
}

func NewSolanaVerifier(endpoint string) *SolanaVerifier {
	if endpoint == "" {
		endpoint = rpc.MainNetBeta_RPC
	}
	return &SolanaVerifier{rpc: rpc.New(endpoint)}
}

func NewSolanaVerifierWith(f TxFetcher) *SolanaVerifier {
	return &SolanaVerifier{rpc: f}
}

func (v *SolanaVerifier) Confirm(ctx context.Context, signature string) error {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	maxVersion := uint64(0)
	out, err := v.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && out == nil) {
		return ErrTxNotFound
	}
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	if out.Meta != nil && out.Meta.Err != nil {
		return ErrTxFailed
	}
	return nil
}
