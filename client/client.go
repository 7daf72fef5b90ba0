// Package client provides the thin RPC transport that sources.RemoteBlockSource
// dials out over. It mirrors the client.RPC seam used throughout the pack so
// that tests can swap in a fake transport (see testutils.ScriptedRPC) without
// touching the decode logic in package sources.
package client

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/forkdevnode/chaincore/retry"
)

// RPC is the minimal surface the core needs from an upstream JSON-RPC
// connection. Any *rpc.Client, and any fake built for tests, satisfies it.
type RPC interface {
	Close()
	CallContext(ctx context.Context, result any, method string, args ...any) error
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
	Subscribe(ctx context.Context, namespace string, channel any, args ...any) (ethereum.Subscription, error)
}

// Option configures a dialed RPC client.
type Option func(*dialConfig)

type dialConfig struct {
	dialAttempts int
}

// WithDialAttempts sets how many connection attempts Dial makes, the first
// one included, before giving up.
func WithDialAttempts(n int) Option {
	return func(c *dialConfig) { c.dialAttempts = n }
}

var _ RPC = (*rpc.Client)(nil)

// Dial connects to the given JSON-RPC endpoint, retrying the connection
// attempt with exponential backoff (the endpoint may not be up yet, e.g. in
// a devnet docker-compose that starts the fork node ahead of the upstream).
func Dial(ctx context.Context, log log.Logger, addr string, opts ...Option) (RPC, error) {
	cfg := dialConfig{dialAttempts: 10}
	for _, opt := range opts {
		opt(&cfg)
	}

	var cl *rpc.Client
	err := retry.Do(ctx, cfg.dialAttempts, retry.Exponential(), func() error {
		c, dialErr := rpc.DialContext(ctx, addr)
		if dialErr != nil {
			log.Warn("failed to dial RPC endpoint, retrying", "addr", addr, "err", dialErr)
			return dialErr
		}
		cl = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cl, nil
}
