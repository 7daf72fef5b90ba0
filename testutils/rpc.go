package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/forkdevnode/chaincore/client"
)

// ScriptedResponse is one canned reply for a ScriptedRPC method queue.
// A nil Result with a nil Err represents a JSON null result, the wire
// shape an upstream node uses to report "no such block/transaction".
type ScriptedResponse struct {
	Result any
	Err    error
}

// ScriptedRPC is a client.RPC fake that serves pre-scripted responses per
// JSON-RPC method, in FIFO order, and counts calls per method, used to
// assert that a cache hit never re-issues the upstream call.
// Grounded on cp-service/testutils.RPCErrFaker's wrap-and-intercept shape.
type ScriptedRPC struct {
	mu        sync.Mutex
	responses map[string][]ScriptedResponse
	calls     map[string]int
}

var _ client.RPC = (*ScriptedRPC)(nil)

// NewScriptedRPC builds an empty ScriptedRPC; use Script to queue replies.
func NewScriptedRPC() *ScriptedRPC {
	return &ScriptedRPC{
		responses: make(map[string][]ScriptedResponse),
		calls:     make(map[string]int),
	}
}

// Script queues resp as the next reply for method.
func (r *ScriptedRPC) Script(method string, resp ScriptedResponse) *ScriptedRPC {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[method] = append(r.responses[method], resp)
	return r
}

// CallCount returns how many times method has been invoked so far.
func (r *ScriptedRPC) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

// CallContext implements client.RPC.
func (r *ScriptedRPC) CallContext(_ context.Context, result any, method string, _ ...any) error {
	r.mu.Lock()
	r.calls[method]++
	queue := r.responses[method]
	if len(queue) == 0 {
		r.mu.Unlock()
		return fmt.Errorf("scripted rpc: no response queued for %s", method)
	}
	resp := queue[0]
	r.responses[method] = queue[1:]
	r.mu.Unlock()

	if resp.Err != nil {
		return resp.Err
	}
	if resp.Result == nil {
		return nil
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}

// BatchCallContext implements client.RPC by replaying each element through
// CallContext; none of this module's current call sites batch, so a
// simple per-element fallback is sufficient.
func (r *ScriptedRPC) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	for i := range b {
		b[i].Error = r.CallContext(ctx, b[i].Result, b[i].Method, b[i].Args...)
	}
	return nil
}

// Subscribe implements client.RPC; subscriptions are out of scope for this
// fake, since nothing in this module subscribes to a live feed.
func (r *ScriptedRPC) Subscribe(context.Context, string, any, ...any) (ethereum.Subscription, error) {
	return nil, fmt.Errorf("scripted rpc: subscribe not supported")
}

// Close implements client.RPC.
func (r *ScriptedRPC) Close() {}
