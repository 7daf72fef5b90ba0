// Package store implements the Hybrid Block Store (HBS), the hardest
// part of the core. It maintains the union view of the chain: the
// immutable prefix [0, forkHeight] served via a RemoteBlockSource on
// demand, and the mutable suffix (forkHeight, latest] held only in
// process memory, plus the four derived indexes (by number, by hash, by
// tx hash, cumulative difficulty) kept consistent across both regions.
//
// The locking discipline here mirrors geth's in-process blockchain index:
// a single mutex guards the maps, and upstream calls never happen while
// the mutex is held. Index installation happens only after the remote
// call returns, so a cancelled lookup leaves no partial state.
package store

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/forkdevnode/chaincore/eth"
)

// RemoteSource is the subset of sources.RemoteBlockSource the store calls
// through to on a cache miss. Kept as an interface so tests can fake it
// without dialing a real endpoint.
type RemoteSource interface {
	GetBlockByNumber(ctx context.Context, number uint64, includeTxs bool) (blk eth.Block, totalDifficulty *big.Int, found bool, err error)
	GetBlockByHash(ctx context.Context, hash common.Hash, includeTxs bool) (blk eth.Block, totalDifficulty *big.Int, found bool, err error)
	GetTransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, blockHash common.Hash, blockNumber uint64, found bool, err error)
}

// Ref selects a block either by number or by hash for GetBlock.
type Ref struct {
	hash   common.Hash
	number uint64
	byHash bool
}

// ByHash builds a Ref that looks a block up by hash.
func ByHash(h common.Hash) Ref { return Ref{hash: h, byHash: true} }

// ByNumber builds a Ref that looks a block up by height.
func ByNumber(n uint64) Ref { return Ref{number: n} }

// HybridBlockStore is the core's Hybrid Block Store.
type HybridBlockStore struct {
	mu sync.Mutex

	forkHeight uint64 // F, immutable after construction
	latest     uint64 // L, L >= forkHeight always

	byNumber      map[uint64]eth.Block
	byHash        map[common.Hash]eth.Block
	tdByHash      map[common.Hash]*big.Int
	txByHash      map[common.Hash]*types.Transaction
	txToBlockHash map[common.Hash]common.Hash

	rbs RemoteSource
	log log.Logger
}

// New constructs a HybridBlockStore forked at forkHeight. No remote calls
// are made until the first lookup: the fork base block is demand-loaded
// like any other block at or below forkHeight.
func New(forkHeight uint64, rbs RemoteSource, log log.Logger) *HybridBlockStore {
	return &HybridBlockStore{
		forkHeight:    forkHeight,
		latest:        forkHeight,
		byNumber:      make(map[uint64]eth.Block),
		byHash:        make(map[common.Hash]eth.Block),
		tdByHash:      make(map[common.Hash]*big.Int),
		txByHash:      make(map[common.Hash]*types.Transaction),
		txToBlockHash: make(map[common.Hash]common.Hash),
		rbs:           rbs,
		log:           log,
	}
}

// ForkHeight returns F, fixed at construction.
func (s *HybridBlockStore) ForkHeight() uint64 {
	return s.forkHeight
}

// LatestHeight returns the current L under the store's lock.
func (s *HybridBlockStore) LatestHeight() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// GetBlock resolves ref against the cache first, falling back to the
// remote source on a miss and caching the result if it falls within the
// fork boundary.
func (s *HybridBlockStore) GetBlock(ctx context.Context, ref Ref) (eth.Block, bool, error) {
	if ref.byHash {
		s.mu.Lock()
		if b, ok := s.byHash[ref.hash]; ok {
			s.mu.Unlock()
			return b, true, nil
		}
		s.mu.Unlock()

		blk, td, found, err := s.rbs.GetBlockByHash(ctx, ref.hash, true)
		if err != nil || !found {
			return eth.Block{}, false, err
		}
		return s.ingest(blk, td)
	}

	s.mu.Lock()
	if ref.number > s.latest {
		s.mu.Unlock()
		return eth.Block{}, false, nil
	}
	if b, ok := s.byNumber[ref.number]; ok {
		s.mu.Unlock()
		return b, true, nil
	}
	s.mu.Unlock()

	blk, td, found, err := s.rbs.GetBlockByNumber(ctx, ref.number, true)
	if err != nil || !found {
		return eth.Block{}, false, err
	}
	return s.ingest(blk, td)
}

// ingest applies the ingestion rule for a block freshly returned by the
// remote source: nothing past the fork ceiling is ever cached.
func (s *HybridBlockStore) ingest(blk eth.Block, td *big.Int) (eth.Block, bool, error) {
	if blk.Number() > s.forkHeight {
		return eth.Block{}, false, nil
	}
	s.mu.Lock()
	s.install(blk, td)
	s.mu.Unlock()
	s.log.Debug("ingested remote block", "number", blk.Number(), "hash", blk.Hash())
	return blk, true, nil
}

// install writes a block into all four per-block indexes. Caller holds mu.
func (s *HybridBlockStore) install(blk eth.Block, td *big.Int) {
	s.byNumber[blk.Number()] = blk
	s.byHash[blk.Hash()] = blk
	s.tdByHash[blk.Hash()] = td
	for _, tx := range blk.Transactions() {
		s.txByHash[tx.Hash()] = tx
		s.txToBlockHash[tx.Hash()] = blk.Hash()
	}
}

// GetLatestBlock returns the block at the current latest height.
func (s *HybridBlockStore) GetLatestBlock(ctx context.Context) (eth.Block, error) {
	s.mu.Lock()
	l := s.latest
	s.mu.Unlock()
	b, found, err := s.GetBlock(ctx, ByNumber(l))
	if err != nil {
		return eth.Block{}, err
	}
	if !found {
		return eth.Block{}, fmt.Errorf("%w: latest block %d missing from both regions", ErrBlockNotFound, l)
	}
	return b, nil
}

// AppendBlock admits a single new block onto the current head: its
// number must be exactly latest+1 and its parent hash must match the
// current head's hash.
func (s *HybridBlockStore) AppendBlock(ctx context.Context, b eth.Block) (eth.Block, error) {
	parent, err := s.GetLatestBlock(ctx)
	if err != nil {
		return eth.Block{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Number() != s.latest+1 {
		return eth.Block{}, fmt.Errorf("%w: got %d, expected %d", ErrInvalidBlockNumber, b.Number(), s.latest+1)
	}
	if b.ParentHash() != parent.Hash() {
		return eth.Block{}, fmt.Errorf("%w: block parent %s != latest %s", ErrInvalidParentHash, b.ParentHash(), parent.Hash())
	}
	parentTD, ok := s.tdByHash[parent.Hash()]
	if !ok {
		return eth.Block{}, fmt.Errorf("%w: missing total difficulty for parent %s", ErrBlockNotFound, parent.Hash())
	}
	td := new(big.Int).Add(parentTD, b.Difficulty())
	s.latest = b.Number()
	s.install(b, td)
	s.log.Info("appended local block", "number", b.Number(), "hash", b.Hash())
	return b, nil
}

// DeleteBlock handles a reorg by dropping the block with the given hash
// and cascading forward: deleting the block at height n also deletes
// every locally appended block above it, since none of them can still
// have a valid parent chain once n is gone.
func (s *HybridBlockStore) DeleteBlock(hash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byHash[hash]
	if !ok {
		return ErrBlockNotFound
	}
	if b.Number() <= s.forkHeight {
		return ErrCannotDeleteRemote
	}

	n := b.Number()
	for i := n; i <= s.latest; i++ {
		blk, ok := s.byNumber[i]
		if !ok {
			continue
		}
		delete(s.byNumber, i)
		delete(s.byHash, blk.Hash())
		delete(s.tdByHash, blk.Hash())
		for _, tx := range blk.Transactions() {
			delete(s.txByHash, tx.Hash())
			delete(s.txToBlockHash, tx.Hash())
		}
	}
	s.latest = n - 1
	s.log.Warn("reorg: dropped local blocks", "from", n, "new_latest", s.latest)
	return nil
}

// DeleteLaterBlocks drops whatever currently follows b, provided b is
// still the canonical block at its height and the cascade never touches
// the remote region.
func (s *HybridBlockStore) DeleteLaterBlocks(b eth.Block) error {
	s.mu.Lock()
	cur, ok := s.byNumber[b.Number()]
	nextHeight := b.Number() + 1
	forkHeight := s.forkHeight
	s.mu.Unlock()

	if !ok || cur.Hash() != b.Hash() {
		return ErrInvalidBlock
	}
	if nextHeight <= forkHeight {
		return ErrCannotDeleteRemote
	}

	s.mu.Lock()
	next, exists := s.byNumber[nextHeight]
	s.mu.Unlock()
	if !exists {
		return nil
	}
	return s.DeleteBlock(next.Hash())
}

// GetTotalDifficulty returns the cached cumulative difficulty for hash,
// or resolves the block first (which populates TD on ingestion) and
// tries again.
func (s *HybridBlockStore) GetTotalDifficulty(ctx context.Context, hash common.Hash) (*big.Int, error) {
	s.mu.Lock()
	if td, ok := s.tdByHash[hash]; ok {
		s.mu.Unlock()
		return new(big.Int).Set(td), nil
	}
	s.mu.Unlock()

	_, found, err := s.GetBlock(ctx, ByHash(hash))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrBlockNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	td, ok := s.tdByHash[hash]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return new(big.Int).Set(td), nil
}

// GetTransaction looks up a transaction by hash. A transaction admitted
// this way is installed into txByHash but deliberately not into
// txToBlockHash, since the containing block may not be ingested yet.
func (s *HybridBlockStore) GetTransaction(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	s.mu.Lock()
	if tx, ok := s.txByHash[hash]; ok {
		s.mu.Unlock()
		return tx, true, nil
	}
	s.mu.Unlock()

	tx, blockHash, blockNumber, found, err := s.rbs.GetTransactionByHash(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	if blockHash == (common.Hash{}) {
		// pending upstream, no block binding yet
		return nil, false, nil
	}
	if blockNumber > s.forkHeight {
		return nil, false, nil
	}

	s.mu.Lock()
	s.txByHash[hash] = tx
	s.mu.Unlock()
	return tx, true, nil
}

// GetBlockByTransactionHash resolves the block containing the transaction
// with the given hash.
func (s *HybridBlockStore) GetBlockByTransactionHash(ctx context.Context, hash common.Hash) (eth.Block, bool, error) {
	s.mu.Lock()
	if bh, ok := s.txToBlockHash[hash]; ok {
		blk := s.byHash[bh]
		s.mu.Unlock()
		return blk, true, nil
	}
	s.mu.Unlock()

	tx, blockHash, blockNumber, found, err := s.rbs.GetTransactionByHash(ctx, hash)
	if err != nil {
		return eth.Block{}, false, err
	}
	if !found {
		return eth.Block{}, false, nil
	}
	if blockHash != (common.Hash{}) && blockNumber <= s.forkHeight {
		s.mu.Lock()
		s.txByHash[hash] = tx
		s.mu.Unlock()
	}
	if blockHash == (common.Hash{}) {
		return eth.Block{}, false, nil
	}

	blk, found, err := s.GetBlock(ctx, ByHash(blockHash))
	if err != nil {
		return eth.Block{}, false, err
	}
	if !found {
		return eth.Block{}, false, nil
	}
	return blk, true, nil
}

// IterateBlocks is intentionally unimplemented. The store is a point-
// lookup index over two regions (demand-loaded remote prefix, in-memory
// local suffix), not an enumerable ledger, and a generic range scan would
// need its own paging contract across that boundary that no caller here
// needs yet.
func (s *HybridBlockStore) IterateBlocks(ctx context.Context, from, to uint64) ([]eth.Block, error) {
	return nil, ErrNotSupported
}
