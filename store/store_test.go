package store

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/forkdevnode/chaincore/eth"
)

// fakeRemote is a store.RemoteSource double backed by two canned blocks
// (the fork base and its parent) plus a call counter, used to assert
// that a cached lookup never re-hits the upstream source.
type fakeRemote struct {
	forkBase   eth.Block
	forkBaseTD *big.Int
	ancestor   eth.Block // forkBase's parent, also below forkHeight
	ancestorTD *big.Int
	calls      map[string]int
}

func newFakeRemote(forkHeight uint64) *fakeRemote {
	ancestorHeader := &types.Header{
		Number:     new(big.Int).SetUint64(forkHeight - 1),
		Difficulty: big.NewInt(900_000),
		ParentHash: common.Hash{0xbb},
	}
	ancestor := eth.NewBlock(types.NewBlockWithHeader(ancestorHeader))

	header := &types.Header{
		Number:     new(big.Int).SetUint64(forkHeight),
		Difficulty: big.NewInt(1_000_000),
		ParentHash: ancestor.Hash(),
	}
	blk := eth.NewBlock(types.NewBlockWithHeader(header))
	return &fakeRemote{
		forkBase:   blk,
		forkBaseTD: big.NewInt(1_900_000),
		ancestor:   ancestor,
		ancestorTD: big.NewInt(900_000),
		calls:      make(map[string]int),
	}
}

func (f *fakeRemote) GetBlockByNumber(_ context.Context, number uint64, _ bool) (eth.Block, *big.Int, bool, error) {
	f.calls["byNumber"]++
	switch number {
	case f.forkBase.Number():
		return f.forkBase, f.forkBaseTD, true, nil
	case f.ancestor.Number():
		return f.ancestor, f.ancestorTD, true, nil
	}
	return eth.Block{}, nil, false, nil
}

func (f *fakeRemote) GetBlockByHash(_ context.Context, hash common.Hash, _ bool) (eth.Block, *big.Int, bool, error) {
	f.calls["byHash"]++
	switch hash {
	case f.forkBase.Hash():
		return f.forkBase, f.forkBaseTD, true, nil
	case f.ancestor.Hash():
		return f.ancestor, f.ancestorTD, true, nil
	}
	return eth.Block{}, nil, false, nil
}

func (f *fakeRemote) GetTransactionByHash(context.Context, common.Hash) (*types.Transaction, common.Hash, uint64, bool, error) {
	f.calls["tx"]++
	return nil, common.Hash{}, 0, false, nil
}

func childBlock(parent eth.Block, difficulty int64) eth.Block {
	header := &types.Header{
		Number:     new(big.Int).SetUint64(parent.Number() + 1),
		ParentHash: parent.Hash(),
		Difficulty: big.NewInt(difficulty),
	}
	return eth.NewBlock(types.NewBlockWithHeader(header))
}

func newTestStore(forkHeight uint64) (*HybridBlockStore, *fakeRemote) {
	remote := newFakeRemote(forkHeight)
	return New(forkHeight, remote, log.New()), remote
}

func TestFreshForkReturnsForkBase(t *testing.T) {
	const F = 10_496_585
	s, remote := newTestStore(F)

	blk, err := s.GetLatestBlock(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(F), blk.Number())
	require.Equal(t, remote.forkBase.Hash(), blk.Hash())
}

func TestBoundaryAboveForkHeightIsAbsentWithoutUpstreamCall(t *testing.T) {
	const F = 100
	s, remote := newTestStore(F)

	blk, found, err := s.GetBlock(context.Background(), ByNumber(F+1))
	require.NoError(t, err)
	require.False(t, found)
	require.True(t, blk.IsZero())
	require.Equal(t, 0, remote.calls["byNumber"])
}

func TestDemandLoadCachesAfterOneUpstreamCall(t *testing.T) {
	const F = 100
	s, remote := newTestStore(F)

	_, found1, err := s.GetBlock(context.Background(), ByNumber(F))
	require.NoError(t, err)
	require.True(t, found1)

	_, found2, err := s.GetBlock(context.Background(), ByNumber(F))
	require.NoError(t, err)
	require.True(t, found2)

	require.Equal(t, 1, remote.calls["byNumber"])
}

func TestAppendBlockAndTotalDifficulty(t *testing.T) {
	const F = 100
	s, remote := newTestStore(F)

	b1 := childBlock(remote.forkBase, 1000)
	appended, err := s.AppendBlock(context.Background(), b1)
	require.NoError(t, err)
	require.Equal(t, b1.Hash(), appended.Hash())

	baseTD, err := s.GetTotalDifficulty(context.Background(), remote.forkBase.Hash())
	require.NoError(t, err)

	td, err := s.GetTotalDifficulty(context.Background(), b1.Hash())
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Add(baseTD, big.NewInt(1000)), td)
}

func TestAppendRejectsWrongNumber(t *testing.T) {
	const F = 100
	s, remote := newTestStore(F)

	bad := childBlock(remote.forkBase, 1000)
	bad.Block = types.NewBlockWithHeader(&types.Header{
		Number:     new(big.Int).SetUint64(F + 2), // skips F+1
		ParentHash: remote.forkBase.Hash(),
		Difficulty: big.NewInt(1000),
	})

	_, err := s.AppendBlock(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidBlockNumber)
}

func TestAppendRejectsWrongParent(t *testing.T) {
	const F = 100
	s, _ := newTestStore(F)

	bad := eth.NewBlock(types.NewBlockWithHeader(&types.Header{
		Number:     new(big.Int).SetUint64(F + 1),
		ParentHash: common.Hash{0xde, 0xad},
		Difficulty: big.NewInt(1000),
	}))

	_, err := s.AppendBlock(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidParentHash)
}

func TestReorgPreservesRemoteRegion(t *testing.T) {
	const F = 100
	s, remote := newTestStore(F)

	b1 := childBlock(remote.forkBase, 1000)
	_, err := s.AppendBlock(context.Background(), b1)
	require.NoError(t, err)
	b2 := childBlock(b1, 1000)
	_, err = s.AppendBlock(context.Background(), b2)
	require.NoError(t, err)
	b3 := childBlock(b2, 1000)
	_, err = s.AppendBlock(context.Background(), b3)
	require.NoError(t, err)

	require.NoError(t, s.DeleteBlock(b1.Hash()))

	_, found, _ := s.GetBlock(context.Background(), ByHash(b1.Hash()))
	require.False(t, found)
	_, found, _ = s.GetBlock(context.Background(), ByHash(b2.Hash()))
	require.False(t, found)
	_, found, _ = s.GetBlock(context.Background(), ByHash(b3.Hash()))
	require.False(t, found)
	require.Equal(t, uint64(F), s.LatestHeight())

	base, found, err := s.GetBlock(context.Background(), ByHash(remote.forkBase.Hash()))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, remote.forkBase.Hash(), base.Hash())
}

func TestCannotDeleteRemoteBlock(t *testing.T) {
	const F = 100
	s, remote := newTestStore(F)

	_, found, err := s.GetBlock(context.Background(), ByHash(remote.forkBase.Hash()))
	require.NoError(t, err)
	require.True(t, found)

	require.ErrorIs(t, s.DeleteBlock(remote.forkBase.Hash()), ErrCannotDeleteRemote)
}

func TestDeleteLaterBlocksCascades(t *testing.T) {
	const F = 100
	s, remote := newTestStore(F)

	b1 := childBlock(remote.forkBase, 1000)
	_, err := s.AppendBlock(context.Background(), b1)
	require.NoError(t, err)
	b2 := childBlock(b1, 1000)
	_, err = s.AppendBlock(context.Background(), b2)
	require.NoError(t, err)

	require.NoError(t, s.DeleteLaterBlocks(remote.forkBase))

	_, found, _ := s.GetBlock(context.Background(), ByHash(b1.Hash()))
	require.False(t, found)
	_, found, _ = s.GetBlock(context.Background(), ByHash(b2.Hash()))
	require.False(t, found)
	require.Equal(t, uint64(F), s.LatestHeight())
}

func TestDeleteLaterBlocksNoOpWhenNothingFollows(t *testing.T) {
	const F = 100
	s, _ := newTestStore(F)

	base, found, err := s.GetBlock(context.Background(), ByNumber(F))
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, s.DeleteLaterBlocks(base))
	require.Equal(t, uint64(F), s.LatestHeight())
}

func TestDeleteLaterBlocksRejectsUnknownBlock(t *testing.T) {
	const F = 100
	s, remote := newTestStore(F)

	stray := childBlock(remote.forkBase, 1)

	err := s.DeleteLaterBlocks(stray)
	require.ErrorIs(t, err, ErrInvalidBlock)
}

func TestDeleteLaterBlocksRejectsWhenNextIsRemote(t *testing.T) {
	const F = 100
	s, remote := newTestStore(F)

	ancestor, found, err := s.GetBlock(context.Background(), ByNumber(F-1))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, remote.ancestor.Hash(), ancestor.Hash())

	err = s.DeleteLaterBlocks(ancestor)
	require.ErrorIs(t, err, ErrCannotDeleteRemote)
}

func TestIterateBlocksNotSupported(t *testing.T) {
	const F = 100
	s, _ := newTestStore(F)

	_, err := s.IterateBlocks(context.Background(), 0, F)
	require.ErrorIs(t, err, ErrNotSupported)
}

func TestRoundTripAppendThenDeleteRestoresState(t *testing.T) {
	const F = 100
	s, remote := newTestStore(F)

	before := s.LatestHeight()
	b1 := childBlock(remote.forkBase, 1000)
	_, err := s.AppendBlock(context.Background(), b1)
	require.NoError(t, err)
	require.NoError(t, s.DeleteBlock(b1.Hash()))
	require.Equal(t, before, s.LatestHeight())

	_, found, _ := s.GetBlock(context.Background(), ByHash(b1.Hash()))
	require.False(t, found)
}
