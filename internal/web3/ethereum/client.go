package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"StratFlow-Chain/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to construct a read-only EVM client.
type Config struct {
	Name    string
	RPCURL  string
	ChainID uint64
	Notes   string
}

// backend mirrors the subset of ethclient the reader needs, so tests can
// substitute an in-process implementation.
type backend interface {
	CallContract(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Client implements web3.Reader for EVM compatible chains.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	backend   backend

	mu      sync.Mutex
	chainID *big.Int

	abiMu  sync.Mutex
	parsed map[string]abi.ABI
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use
// reader.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("chain rpc url is not configured")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain node: %w", err)
	}

	client := &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		backend:   ethclient.NewClient(rpcClient),
		parsed:    map[string]abi.ABI{},
	}
	if cfg.ChainID != 0 {
		client.chainID = new(big.Int).SetUint64(cfg.ChainID)
	}
	return client, nil
}

// NewBackendClient wraps an arbitrary backend, primarily for tests.
func NewBackendClient(name string, chainID *big.Int, b backend) *Client {
	client := &Client{name: name, backend: b, parsed: map[string]abi.ABI{}}
	if chainID != nil {
		client.chainID = new(big.Int).Set(chainID)
	}
	return client
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// ChainID returns the configured chain id, falling back to asking the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	if c.chainID != nil {
		id := new(big.Int).Set(c.chainID)
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	if c.backend == nil {
		return nil, errors.New("chain client has no backend")
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

// BalanceAt implements web3.Reader.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if c == nil || c.backend == nil {
		return nil, errors.New("chain client is not initialised")
	}
	balance, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("query balance of %s: %w", account.Hex(), err)
	}
	return balance, nil
}

// ReadContract performs an eth_call against a view function and decodes the
// returned values.
func (c *Client) ReadContract(ctx context.Context, contract common.Address, abiJSON, function string, args ...any) ([]any, error) {
	if c == nil || c.backend == nil {
		return nil, errors.New("chain client is not initialised")
	}

	parsed, err := c.parseABI(abiJSON)
	if err != nil {
		return nil, err
	}
	method, ok := parsed.Methods[function]
	if !ok {
		return nil, fmt.Errorf("abi has no function %q", function)
	}

	calldata, err := parsed.Pack(function, args...)
	if err != nil {
		return nil, fmt.Errorf("encode %s call: %w", function, err)
	}

	output, err := c.backend.CallContract(ctx, gethcore.CallMsg{To: &contract, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", function, contract.Hex(), err)
	}

	values, err := method.Outputs.UnpackValues(output)
	if err != nil {
		return nil, fmt.Errorf("decode %s output: %w", function, err)
	}
	return values, nil
}

// parseABI caches parsed ABI documents; guard steps re-read the same contract
// on every evaluation.
func (c *Client) parseABI(abiJSON string) (abi.ABI, error) {
	c.abiMu.Lock()
	defer c.abiMu.Unlock()
	if parsed, ok := c.parsed[abiJSON]; ok {
		return parsed, nil
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	c.parsed[abiJSON] = parsed
	return parsed, nil
}

var _ web3.Reader = (*Client)(nil)
