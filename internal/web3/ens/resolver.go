// Package ens resolves name-service identifiers to addresses through the
// read-only chain surface. Resolution is pinned to one designated chain;
// other chains never see name lookups.
package ens

import (
	"context"
	"fmt"
	"strings"

	"StratFlow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultRegistry is the canonical ENS registry deployment on mainnet.
const DefaultRegistry = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"

const registryABI = `[{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"resolver","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`

const resolverABI = `[{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"addr","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`

// Resolver looks up names against an ENS registry.
type Resolver struct {
	reader   web3.Reader
	registry common.Address
}

// NewResolver builds a resolver bound to the given registry; an empty
// registry address falls back to the canonical deployment.
func NewResolver(reader web3.Reader, registry string) *Resolver {
	addr := DefaultRegistry
	if strings.TrimSpace(registry) != "" {
		addr = registry
	}
	return &Resolver{reader: reader, registry: common.HexToAddress(addr)}
}

// IsName reports whether the identifier looks like a resolvable name rather
// than a raw address.
func IsName(identifier string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(identifier)), ".eth")
}

// Resolve returns the address a name points at, or the zero address when the
// name has no resolver or no address record. The caller decides whether an
// empty resolution is an error.
func (r *Resolver) Resolve(ctx context.Context, name string) (common.Address, error) {
	if r == nil || r.reader == nil {
		return common.Address{}, fmt.Errorf("name resolver is not initialised")
	}
	node := Namehash(name)

	values, err := r.reader.ReadContract(ctx, r.registry, registryABI, "resolver", node)
	if err != nil {
		return common.Address{}, fmt.Errorf("look up resolver for %s: %w", name, err)
	}
	resolverAddr, ok := firstAddress(values)
	if !ok || resolverAddr == (common.Address{}) {
		return common.Address{}, nil
	}

	values, err = r.reader.ReadContract(ctx, resolverAddr, resolverABI, "addr", node)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve %s: %w", name, err)
	}
	resolved, ok := firstAddress(values)
	if !ok {
		return common.Address{}, nil
	}
	return resolved, nil
}

func firstAddress(values []any) (common.Address, bool) {
	if len(values) == 0 {
		return common.Address{}, false
	}
	addr, ok := values[0].(common.Address)
	return addr, ok
}

// Namehash implements the EIP-137 recursive name hash.
func Namehash(name string) [32]byte {
	var node [32]byte
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := crypto.Keccak256([]byte(labels[i]))
		node = [32]byte(crypto.Keccak256(node[:], labelHash))
	}
	return node
}
