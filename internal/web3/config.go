package web3

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chains.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single chain endpoint definition. Routers maps
// protocol names to their entry contract on this chain.
type ChainDefinition struct {
	ChainID      uint64            `yaml:"chain_id"`
	RPCURL       string            `yaml:"rpc_url"`
	NativeSymbol string            `yaml:"native_symbol"`
	ENSRegistry  string            `yaml:"ens_registry"`
	Routers      map[string]string `yaml:"routers"`
	Description  string            `yaml:"description"`
}

// LoadChainDefinitions parses the YAML file containing chain metadata.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("read chain definitions: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("parse chain definitions: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	for name, chain := range defs.Chains {
		for protocol, addr := range chain.Routers {
			if !common.IsHexAddress(addr) {
				return ChainDefinitions{}, fmt.Errorf("router %s on chain %s has invalid address %q", protocol, name, addr)
			}
		}
	}
	return defs, nil
}

type tokenDefinition struct {
	Address  string `yaml:"address"`
	Decimals int    `yaml:"decimals"`
}

type tokenDefinitions struct {
	// chain id (decimal string) -> symbol -> deployment
	Tokens map[string]map[string]tokenDefinition `yaml:"tokens"`
}

// TokenBook resolves asset symbols to their deployment on a given chain.
type TokenBook struct {
	tokens map[uint64]map[string]Token
}

// LoadTokenBook parses configs/tokens.yaml. A missing path yields an empty
// book, which simply means only native transfers compile.
func LoadTokenBook(path string) (*TokenBook, error) {
	book := &TokenBook{tokens: map[uint64]map[string]Token{}}
	if strings.TrimSpace(path) == "" {
		return book, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token definitions: %w", err)
	}
	var defs tokenDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return nil, fmt.Errorf("parse token definitions: %w", err)
	}

	for chain, symbols := range defs.Tokens {
		var chainID uint64
		if _, err := fmt.Sscanf(chain, "%d", &chainID); err != nil {
			return nil, fmt.Errorf("token definitions: invalid chain id %q", chain)
		}
		for symbol, def := range symbols {
			if !common.IsHexAddress(def.Address) {
				return nil, fmt.Errorf("token %s on chain %d has invalid address %q", symbol, chainID, def.Address)
			}
			book.Add(chainID, Token{
				Symbol:   strings.ToUpper(symbol),
				Address:  common.HexToAddress(def.Address),
				Decimals: def.Decimals,
			})
		}
	}
	return book, nil
}

// Add registers a token deployment, replacing any previous entry for the
// same chain and symbol.
func (b *TokenBook) Add(chainID uint64, token Token) {
	if b.tokens == nil {
		b.tokens = map[uint64]map[string]Token{}
	}
	if b.tokens[chainID] == nil {
		b.tokens[chainID] = map[string]Token{}
	}
	if token.Decimals <= 0 {
		token.Decimals = NativeDecimals
	}
	b.tokens[chainID][strings.ToUpper(token.Symbol)] = token
}

// Lookup returns the deployment of symbol on the given chain.
func (b *TokenBook) Lookup(chainID uint64, symbol string) (Token, bool) {
	if b == nil {
		return Token{}, false
	}
	token, ok := b.tokens[chainID][strings.ToUpper(strings.TrimSpace(symbol))]
	return token, ok
}
