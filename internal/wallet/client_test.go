package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type fakeRPC struct {
	calls   []string
	args    map[string]any
	results map[string]any
	errs    map[string]error
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		args:    map[string]any{},
		results: map[string]any{},
		errs:    map[string]error{},
	}
}

func (f *fakeRPC) CallContext(_ context.Context, result any, method string, args ...any) error {
	f.calls = append(f.calls, method)
	if len(args) > 0 {
		f.args[method] = args[0]
	}
	if err := f.errs[method]; err != nil {
		return err
	}
	canned, ok := f.results[method]
	if !ok {
		return nil
	}
	raw, err := json.Marshal(canned)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

type rpcError struct {
	code    int
	message string
}

func (e rpcError) Error() string  { return e.message }
func (e rpcError) ErrorCode() int { return e.code }

func TestCapabilitiesAtomicBatchFlag(t *testing.T) {
	rpc := newFakeRPC()
	rpc.results["wallet_getCapabilities"] = map[string]map[string]bool{
		"0x1":    {"atomic": true},
		"0x2105": {"atomicBatch": true},
		"0xa":    {},
	}
	client := NewClient(rpc)

	caps, err := client.Capabilities(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("capabilities: %v", err)
	}
	if !caps.AtomicBatch("0x1") {
		t.Fatal("expected atomic flag to count")
	}
	if !caps.AtomicBatch("0x2105") {
		t.Fatal("expected atomicBatch flag to count")
	}
	if caps.AtomicBatch("0xa") || caps.AtomicBatch("0x539") {
		t.Fatal("expected chains without the flag to report false")
	}
}

func TestSendCallsReturnsBatchID(t *testing.T) {
	rpc := newFakeRPC()
	rpc.results["wallet_sendCalls"] = map[string]string{"id": "batch-7"}
	client := NewClient(rpc)

	id, err := client.SendCalls(context.Background(), SendCallsRequest{
		Version:        "2.0.0",
		ChainID:        "0x1",
		From:           "0xabc",
		AtomicRequired: true,
		Calls:          []Call{{To: "0xdef", Value: "0x0"}},
	})
	if err != nil {
		t.Fatalf("send calls: %v", err)
	}
	if id != "batch-7" {
		t.Fatalf("unexpected batch id %q", id)
	}

	req, ok := rpc.args["wallet_sendCalls"].(SendCallsRequest)
	if !ok {
		t.Fatalf("unexpected request type %T", rpc.args["wallet_sendCalls"])
	}
	if !req.AtomicRequired {
		t.Fatal("expected atomicRequired to be set")
	}
}

func TestUserRejectionMapping(t *testing.T) {
	rpc := newFakeRPC()
	rpc.errs["eth_sendTransaction"] = rpcError{code: 4001, message: "denied"}
	client := NewClient(rpc)

	_, err := client.SendTransaction(context.Background(), TransactionRequest{From: "0xabc", To: "0xdef", Value: "0x0"})
	if !errors.Is(err, ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected for code 4001, got %v", err)
	}

	rpc.errs["eth_sendTransaction"] = errors.New("User Rejected the request")
	_, err = client.SendTransaction(context.Background(), TransactionRequest{From: "0xabc", To: "0xdef", Value: "0x0"})
	if !errors.Is(err, ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected for message match, got %v", err)
	}
}

func TestNoProvider(t *testing.T) {
	var client *Client
	if _, err := client.Capabilities(context.Background(), "0xabc"); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider on nil client, got %v", err)
	}
	if _, err := Dial(context.Background(), " "); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider on empty url, got %v", err)
	}
}
