// Package provider wires configured chain definitions into concrete chain
// readers and exposes them by name to the rest of the engine.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"StratFlow-Chain/internal/config"
	"StratFlow-Chain/internal/web3"
	"StratFlow-Chain/internal/web3/ethereum"
)

// Registry manages the set of chain readers keyed by human readable names.
type Registry struct {
	defaultChain string
	nameService  string
	readers      map[string]web3.Reader
	chainIDs     map[string]uint64
	ensRegistry  map[string]string
	nativeSymbol map[string]string
	routers      map[string]map[string]common.Address
	tokens       *web3.TokenBook
}

// NewRegistry loads chain and token definitions and dials every endpoint.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}
	tokens, err := web3.LoadTokenBook(cfg.TokenConfig)
	if err != nil {
		return nil, err
	}

	readers := make(map[string]web3.Reader)
	chainIDs := make(map[string]uint64)
	ensRegistry := make(map[string]string)
	nativeSymbol := make(map[string]string)
	routers := make(map[string]map[string]common.Address)
	for name, chain := range defs.Chains {
		reader, err := ethereum.NewClient(ctx, ethereum.Config{
			Name:    name,
			RPCURL:  chain.RPCURL,
			ChainID: chain.ChainID,
			Notes:   chain.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("initialise chain %s: %w", name, err)
		}
		readers[name] = reader
		chainIDs[name] = chain.ChainID
		ensRegistry[name] = chain.ENSRegistry
		symbol := strings.TrimSpace(chain.NativeSymbol)
		if symbol == "" {
			symbol = "ETH"
		}
		nativeSymbol[name] = strings.ToUpper(symbol)
		if len(chain.Routers) > 0 {
			entries := make(map[string]common.Address, len(chain.Routers))
			for protocol, addr := range chain.Routers {
				entries[strings.ToLower(protocol)] = common.HexToAddress(addr)
			}
			routers[name] = entries
		}
	}

	if len(readers) == 0 {
		return nil, errors.New("no chain rpc endpoints configured")
	}

	defaultChain := strings.TrimSpace(cfg.DefaultChain)
	if defaultChain == "" {
		names := make([]string, 0, len(readers))
		for name := range readers {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultChain = names[0]
	}
	if _, ok := readers[defaultChain]; !ok {
		return nil, fmt.Errorf("default chain %s is not configured", defaultChain)
	}

	nameService := strings.TrimSpace(cfg.NameServiceChain)
	if nameService == "" {
		nameService = defaultChain
	}
	if _, ok := readers[nameService]; !ok {
		return nil, fmt.Errorf("name-service chain %s is not configured", nameService)
	}

	return &Registry{
		defaultChain: defaultChain,
		nameService:  nameService,
		readers:      readers,
		chainIDs:     chainIDs,
		ensRegistry:  ensRegistry,
		nativeSymbol: nativeSymbol,
		routers:      routers,
		tokens:       tokens,
	}, nil
}

// NewStaticRegistry builds a registry from pre-constructed readers, used by
// tests and embedders that manage their own connections.
func NewStaticRegistry(defaultChain string, readers map[string]web3.Reader, chainIDs map[string]uint64, tokens *web3.TokenBook) *Registry {
	if tokens == nil {
		tokens = &web3.TokenBook{}
	}
	return &Registry{
		defaultChain: defaultChain,
		nameService:  defaultChain,
		readers:      readers,
		chainIDs:     chainIDs,
		ensRegistry:  map[string]string{},
		nativeSymbol: map[string]string{},
		routers:      map[string]map[string]common.Address{},
		tokens:       tokens,
	}
}

// DefaultReader returns the reader for the configured default chain.
func (r *Registry) DefaultReader() (web3.Reader, error) {
	if r == nil {
		return nil, errors.New("chain registry is not initialised")
	}
	reader, ok := r.readers[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("default chain %s is not registered", r.defaultChain)
	}
	return reader, nil
}

// Reader returns the chain reader identified by name.
func (r *Registry) Reader(name string) (web3.Reader, bool) {
	if r == nil {
		return nil, false
	}
	reader, ok := r.readers[name]
	return reader, ok
}

// NameServiceReader returns the reader for the chain designated for name
// resolution along with its configured registry address.
func (r *Registry) NameServiceReader() (web3.Reader, string, error) {
	if r == nil {
		return nil, "", errors.New("chain registry is not initialised")
	}
	reader, ok := r.readers[r.nameService]
	if !ok {
		return nil, "", fmt.Errorf("name-service chain %s is not registered", r.nameService)
	}
	return reader, r.ensRegistry[r.nameService], nil
}

// DefaultChain returns the configured default chain name.
func (r *Registry) DefaultChain() string {
	if r == nil {
		return ""
	}
	return r.defaultChain
}

// ChainID returns the numeric chain id for a registered chain name.
func (r *Registry) ChainID(name string) (uint64, bool) {
	if r == nil {
		return 0, false
	}
	id, ok := r.chainIDs[name]
	return id, ok
}

// NativeSymbol returns the native asset symbol for a registered chain,
// falling back to ETH for unknown names.
func (r *Registry) NativeSymbol(name string) string {
	if r == nil {
		return "ETH"
	}
	if symbol, ok := r.nativeSymbol[name]; ok && symbol != "" {
		return symbol
	}
	return "ETH"
}

// Routers returns the protocol router deployments for a registered chain.
func (r *Registry) Routers(name string) map[string]common.Address {
	if r == nil {
		return nil
	}
	return r.routers[name]
}

// Tokens returns the token book shared by all chains.
func (r *Registry) Tokens() *web3.TokenBook {
	if r == nil {
		return nil
	}
	return r.tokens
}

// Chains returns the sorted list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.readers))
	for name := range r.readers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases every reader managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, reader := range r.readers {
		if reader != nil {
			reader.Close()
		}
		delete(r.readers, name)
	}
}
