// Package eth holds the shared chain types used across the forking block
// store, the remote block source and the mempool.
package eth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// BlockID identifies a block by both its hash and its number, the way
// callers that already resolved a block usually want to refer back to it
// without re-deriving the hash.
type BlockID struct {
	Hash   common.Hash
	Number uint64
}

func (id BlockID) String() string {
	return fmt.Sprintf("%s:%d", id.Hash, id.Number)
}

// Block is the immutable, locally-constructed or upstream-fetched block
// record the store indexes. It embeds the geth block so hashing, RLP and
// transaction access are all inherited rather than re-implemented.
type Block struct {
	*types.Block
}

// NewBlock wraps a geth block for storage in the hybrid block store.
func NewBlock(b *types.Block) Block {
	return Block{Block: b}
}

// Hash returns the block's derived, cached hash.
func (b Block) Hash() common.Hash {
	return b.Block.Hash()
}

// Number returns the block height as an unsigned integer; devnet forks
// never reach heights that overflow uint64.
func (b Block) Number() uint64 {
	return b.Block.NumberU64()
}

// ParentHash returns the hash of the block that precedes this one.
func (b Block) ParentHash() common.Hash {
	return b.Block.ParentHash()
}

// Difficulty returns the block's own header difficulty (not cumulative).
func (b Block) Difficulty() *big.Int {
	return b.Block.Difficulty()
}

// Transactions returns the block's ordered transaction list.
func (b Block) Transactions() types.Transactions {
	return b.Block.Transactions()
}

// IsZero reports whether this is the zero value, used as the "absent"
// sentinel in places a (Block, bool) pair would otherwise be awkward.
func (b Block) IsZero() bool {
	return b.Block == nil
}

// BaseFee returns the block's EIP-1559 base fee as a uint256, or nil for a
// pre-London block that carries none. Converted via SetFromBig rather than
// carried as big.Int end to end, matching how cp-service/sources re-encodes
// base fee onto the wire as a fixed-width quantity.
func (b Block) BaseFee() *uint256.Int {
	bf := b.Block.BaseFee()
	if bf == nil {
		return nil
	}
	var out uint256.Int
	out.SetFromBig(bf)
	return &out
}

// Sender is the 20-byte address recovered from a transaction's signature.
// The core treats transactions as otherwise opaque.
type Sender = common.Address
