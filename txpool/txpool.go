// Package txpool implements the transaction mempool: per-sender
// pending/queued transaction sets keyed on signer nonce, validated
// against an accounts.NonceSource. It is independent of package store;
// nothing here reads or writes the block indexes.
//
// Naming and locking follow the pack's light-client TxPool conventions
// (sentinel errors, a single mutex guarding per-sender maps) rather than
// the full replacement/eviction policy of a production pool.
package txpool

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/forkdevnode/chaincore/accounts"
)

// Mempool holds per-sender pending and queued transactions awaiting
// inclusion.
type Mempool struct {
	mu sync.Mutex

	aso    accounts.NonceSource
	signer types.Signer
	log    log.Logger

	pending   map[common.Address][]*types.Transaction
	queued    map[common.Address]map[uint64]*types.Transaction
	execNonce map[common.Address]uint64
}

// New constructs an empty Mempool. signer recovers the sender address
// from a transaction's signature; aso answers the base nonce for a
// sender that has never been admitted yet.
func New(aso accounts.NonceSource, signer types.Signer, log log.Logger) *Mempool {
	return &Mempool{
		aso:       aso,
		signer:    signer,
		log:       log,
		pending:   make(map[common.Address][]*types.Transaction),
		queued:    make(map[common.Address]map[uint64]*types.Transaction),
		execNonce: make(map[common.Address]uint64),
	}
}

// AddTransaction validates tx's signature and nonce against the account
// oracle, then admits it as pending if its nonce is the sender's next
// executable nonce, or queues it otherwise.
func (m *Mempool) AddTransaction(ctx context.Context, tx *types.Transaction) error {
	sender, err := types.Sender(m.signer, tx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSender, err)
	}

	base, err := m.aso.GetNonce(ctx, sender)
	if err != nil {
		return fmt.Errorf("account state oracle: %w", err)
	}
	if tx.Nonce() < base {
		return fmt.Errorf("%w: tx nonce %d < account nonce %d", ErrNonceTooLow, tx.Nonce(), base)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := m.execNonce[sender]
	if !ok {
		next = base
	}

	if tx.Nonce() == next {
		m.pending[sender] = append(m.pending[sender], tx)
		next++
		m.execNonce[sender] = next
		m.drainQueued(sender)
	} else {
		if m.queued[sender] == nil {
			m.queued[sender] = make(map[uint64]*types.Transaction)
		}
		m.queued[sender][tx.Nonce()] = tx
	}
	m.log.Debug("mempool admitted transaction", "sender", sender, "nonce", tx.Nonce(), "pending", tx.Nonce() == next-1)
	return nil
}

// drainQueued promotes any now-contiguous queued transactions into
// pending, advancing execNonce for each promotion. Caller holds mu.
func (m *Mempool) drainQueued(sender common.Address) {
	q := m.queued[sender]
	for {
		next := m.execNonce[sender]
		tx, ok := q[next]
		if !ok {
			return
		}
		m.pending[sender] = append(m.pending[sender], tx)
		delete(q, next)
		m.execNonce[sender] = next + 1
	}
}

// GetPendingTransactions returns every pending transaction across every
// sender, nonce-ascending within a sender. Across senders the order is
// deterministic (ascending address) but otherwise unspecified.
func (m *Mempool) GetPendingTransactions() []*types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	senders := make([]common.Address, 0, len(m.pending))
	for addr := range m.pending {
		senders = append(senders, addr)
	}
	sort.Slice(senders, func(i, j int) bool {
		return bytes.Compare(senders[i].Bytes(), senders[j].Bytes()) < 0
	})

	var out []*types.Transaction
	for _, addr := range senders {
		out = append(out, m.pending[addr]...)
	}
	return out
}

// GetExecutableNonce returns the next nonce that would become immediately
// pending for sender.
func (m *Mempool) GetExecutableNonce(ctx context.Context, sender common.Address) (uint64, error) {
	m.mu.Lock()
	if n, ok := m.execNonce[sender]; ok {
		m.mu.Unlock()
		return n, nil
	}
	m.mu.Unlock()
	return m.aso.GetNonce(ctx, sender)
}
