// Package accounts defines the consumer-side contract for the Account
// State Oracle (ASO), an external collaborator (the state trie, out of
// scope for this core) that the mempool queries for a sender's on-chain
// nonce.
package accounts

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// NonceSource is infallible from the mempool's perspective: any internal
// failure of the real implementation surfaces here as an error, which the
// mempool then surfaces to its own caller.
type NonceSource interface {
	GetNonce(ctx context.Context, addr common.Address) (uint64, error)
}
