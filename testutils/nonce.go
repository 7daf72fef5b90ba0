// Package testutils collects fakes and mocks shared across this module's
// test suites, grounded on cp-service/testutils's RPC fakes.
package testutils

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// StaticNonceSource is an in-memory accounts.NonceSource double: it
// answers whatever nonce was last Set for an address, defaulting to 0.
type StaticNonceSource struct {
	mu     sync.Mutex
	nonces map[common.Address]uint64
}

// NewStaticNonceSource builds a StaticNonceSource seeded with the given
// per-address nonces.
func NewStaticNonceSource(seed map[common.Address]uint64) *StaticNonceSource {
	nonces := make(map[common.Address]uint64, len(seed))
	for addr, n := range seed {
		nonces[addr] = n
	}
	return &StaticNonceSource{nonces: nonces}
}

// GetNonce implements accounts.NonceSource.
func (s *StaticNonceSource) GetNonce(_ context.Context, addr common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[addr], nil
}

// Set overrides the nonce reported for addr, simulating the account
// advancing on-chain.
func (s *StaticNonceSource) Set(addr common.Address, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[addr] = nonce
}
