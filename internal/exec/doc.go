// Package exec drives one execution attempt of a strategy: it builds the
// plan, evaluates guard steps against live chain state, compiles the
// remaining steps into calls and pushes them through the wallet, atomically
// batched when the wallet advertises the capability and one transaction at a
// time otherwise.
package exec
