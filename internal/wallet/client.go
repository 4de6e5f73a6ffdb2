// Package wallet speaks the JSON-RPC surface of the connected wallet: the
// EIP-5792 batching methods and the plain eth_sendTransaction fallback. The
// engine never signs anything itself; every submission is a request the
// wallet may refuse.
package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"

	xerrors "StratFlow-Chain/internal/errors"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// rejectionCode is the conventional JSON-RPC error code wallets use when the
// user declines a prompt.
const rejectionCode = 4001

// RPC mirrors the transport subset the client needs, so tests can substitute
// an in-process implementation.
type RPC interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// Client exposes the four wallet methods the engine is allowed to use.
type Client struct {
	mu  sync.Mutex
	rpc RPC
}

// Dial connects to the wallet bridge endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrNoProvider
	}
	rpcClient, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, xerrors.Wrap(CodeNoProvider, err, "dial wallet provider")
	}
	return &Client{rpc: rpcClient}, nil
}

// NewClient wraps an existing transport, primarily for tests.
func NewClient(rpc RPC) *Client {
	return &Client{rpc: rpc}
}

// Close releases the underlying connection when it owns one.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if closer, ok := c.rpc.(interface{ Close() }); ok {
		closer.Close()
	}
	c.rpc = nil
}

// Capabilities queries wallet_getCapabilities for the given account.
func (c *Client) Capabilities(ctx context.Context, address string) (Capabilities, error) {
	rpc, err := c.transport()
	if err != nil {
		return nil, err
	}
	var caps Capabilities
	if err := rpc.CallContext(ctx, &caps, "wallet_getCapabilities", address); err != nil {
		return nil, mapRPCError(err, "query wallet capabilities")
	}
	return caps, nil
}

// SendCalls submits a call batch via wallet_sendCalls and returns the opaque
// batch id.
func (c *Client) SendCalls(ctx context.Context, req SendCallsRequest) (string, error) {
	rpc, err := c.transport()
	if err != nil {
		return "", err
	}
	var result SendCallsResult
	if err := rpc.CallContext(ctx, &result, "wallet_sendCalls", req); err != nil {
		return "", mapRPCError(err, "submit call batch")
	}
	if result.ID == "" {
		return "", xerrors.New(xerrors.CodeUnknown, "wallet returned an empty batch id")
	}
	return result.ID, nil
}

// CallsStatus polls wallet_getCallsStatus for a previously submitted batch.
func (c *Client) CallsStatus(ctx context.Context, id string) (CallsStatusResult, error) {
	rpc, err := c.transport()
	if err != nil {
		return CallsStatusResult{}, err
	}
	var result CallsStatusResult
	if err := rpc.CallContext(ctx, &result, "wallet_getCallsStatus", id); err != nil {
		return CallsStatusResult{}, mapRPCError(err, "query batch status")
	}
	return result, nil
}

// SendTransaction submits one transaction via eth_sendTransaction and returns
// its hash. This is the sequential fallback path.
func (c *Client) SendTransaction(ctx context.Context, req TransactionRequest) (string, error) {
	rpc, err := c.transport()
	if err != nil {
		return "", err
	}
	var hash string
	if err := rpc.CallContext(ctx, &hash, "eth_sendTransaction", req); err != nil {
		return "", mapRPCError(err, "submit transaction")
	}
	return hash, nil
}

func (c *Client) transport() (RPC, error) {
	if c == nil {
		return nil, ErrNoProvider
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc == nil {
		return nil, ErrNoProvider
	}
	return c.rpc, nil
}

// mapRPCError folds transport errors into the engine taxonomy. Wallets signal
// a declined prompt with code 4001 or a message containing "rejected".
func mapRPCError(err error, action string) error {
	if err == nil {
		return nil
	}
	if rpcErr, ok := err.(gethrpc.Error); ok && rpcErr.ErrorCode() == rejectionCode {
		return xerrors.Wrap(CodeUserRejected, err, "request rejected by user")
	}
	if strings.Contains(strings.ToLower(err.Error()), "rejected") {
		return xerrors.Wrap(CodeUserRejected, err, "request rejected by user")
	}
	return xerrors.Wrap(xerrors.CodeUnknown, err, fmt.Sprintf("%s failed", action))
}
