package wallet

import (
	xerrors "StratFlow-Chain/internal/errors"
)

// BatchStatus is the lifecycle state a submitted call batch reports.
type BatchStatus string

const (
	StatusPending   BatchStatus = "PENDING"
	StatusConfirmed BatchStatus = "CONFIRMED"
	StatusFailed    BatchStatus = "FAILED"
)

// Call is the wire shape of one call inside wallet_sendCalls.
type Call struct {
	To    string `json:"to"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value"`
}

// SendCallsRequest is the wallet_sendCalls payload.
type SendCallsRequest struct {
	Version        string `json:"version"`
	ChainID        string `json:"chainId"`
	From           string `json:"from"`
	AtomicRequired bool   `json:"atomicRequired"`
	Calls          []Call `json:"calls"`
}

// SendCallsResult carries the opaque batch id issued by the wallet.
type SendCallsResult struct {
	ID string `json:"id"`
}

// Receipt is one settled transaction inside a confirmed batch.
type Receipt struct {
	TransactionHash string `json:"transactionHash,omitempty"`
}

// CallsStatusResult is the wallet_getCallsStatus payload.
type CallsStatusResult struct {
	Status   BatchStatus `json:"status"`
	Receipts []Receipt   `json:"receipts,omitempty"`
}

// TransactionRequest is the eth_sendTransaction payload used on the
// sequential fallback path.
type TransactionRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Data    string `json:"data,omitempty"`
	Value   string `json:"value"`
	ChainID string `json:"chainId"`
}

// ChainCapability is the per-chain entry of wallet_getCapabilities.
type ChainCapability struct {
	Atomic      *bool `json:"atomic,omitempty"`
	AtomicBatch *bool `json:"atomicBatch,omitempty"`
}

// Capabilities maps chain id (hex) to the capability flags the wallet
// advertises there.
type Capabilities map[string]ChainCapability

// AtomicBatch reports whether the wallet supports atomic batching on the
// given chain. Wallets advertise the flag under either key.
func (c Capabilities) AtomicBatch(chainIDHex string) bool {
	caps, ok := c[chainIDHex]
	if !ok {
		return false
	}
	if caps.Atomic != nil && *caps.Atomic {
		return true
	}
	return caps.AtomicBatch != nil && *caps.AtomicBatch
}

var (
	// ErrNoProvider is returned when no wallet endpoint is configured.
	ErrNoProvider = xerrors.New(CodeNoProvider, "no wallet provider available")
	// ErrUserRejected is returned when the user declines a wallet prompt.
	ErrUserRejected = xerrors.New(CodeUserRejected, "request rejected by user")
)

const (
	CodeNoProvider   xerrors.Code = "NO_PROVIDER"
	CodeUserRejected xerrors.Code = "USER_REJECTED"
)

func init() {
	xerrors.Register(CodeNoProvider, xerrors.Attributes{
		Message:  "no wallet provider available",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
	xerrors.Register(CodeUserRejected, xerrors.Attributes{
		Message:  "request rejected by user",
		Severity: xerrors.SeverityInfo,
	})
}
