// Package web3 houses blockchain connectivity utilities: the read-only chain
// client abstraction the execution engine evaluates conditions through,
// multi-chain endpoint configuration, and the per-chain token book used to
// resolve asset symbols to contract addresses and decimal precision.
package web3
