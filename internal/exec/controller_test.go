package exec

import (
	"context"
	"math/big"
	"testing"
	"time"

	"StratFlow-Chain/internal/compile"
	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/strategy"
	"StratFlow-Chain/internal/wallet"
	"StratFlow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

const (
	account   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	recipient = "0x1111111111111111111111111111111111111111"
)

type fakeWallet struct {
	atomic bool

	sendCallsReq  *wallet.SendCallsRequest
	statusGets    int
	statuses      []wallet.CallsStatusResult
	sendCallsErr  error
	sendTxErr     map[int]error
	sentTxs       []wallet.TransactionRequest
	capabilityErr error
}

func (f *fakeWallet) Capabilities(context.Context, string) (wallet.Capabilities, error) {
	if f.capabilityErr != nil {
		return nil, f.capabilityErr
	}
	flag := f.atomic
	return wallet.Capabilities{"0x1": {Atomic: &flag}}, nil
}

func (f *fakeWallet) SendCalls(_ context.Context, req wallet.SendCallsRequest) (string, error) {
	if f.sendCallsErr != nil {
		return "", f.sendCallsErr
	}
	f.sendCallsReq = &req
	return "batch-1", nil
}

func (f *fakeWallet) CallsStatus(context.Context, string) (wallet.CallsStatusResult, error) {
	if f.statusGets < len(f.statuses) {
		status := f.statuses[f.statusGets]
		f.statusGets++
		return status, nil
	}
	return wallet.CallsStatusResult{Status: wallet.StatusPending}, nil
}

func (f *fakeWallet) SendTransaction(_ context.Context, req wallet.TransactionRequest) (string, error) {
	if err, ok := f.sendTxErr[len(f.sentTxs)]; ok {
		return "", err
	}
	f.sentTxs = append(f.sentTxs, req)
	return "0xhash", nil
}

type fakeReader struct {
	balance *big.Int
	outputs []any
	readErr error
}

func (f *fakeReader) ReadContract(context.Context, common.Address, string, string, ...any) ([]any, error) {
	return f.outputs, f.readErr
}

func (f *fakeReader) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeReader) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (f *fakeReader) Close()                                    {}

func chainContext() compile.ChainContext {
	tokens := &web3.TokenBook{}
	return compile.ChainContext{ChainID: 1, NativeSymbol: "ETH", Tokens: tokens}
}

func controller(w Wallet, reader web3.Reader, opts ...Option) *Controller {
	base := []Option{WithPollInterval(time.Millisecond), WithMaxPolls(3)}
	return NewController(w, NewEvaluator(reader), chainContext(), account, append(base, opts...)...)
}

func walletNode(id string) strategy.Node {
	return strategy.Node{ID: id, Data: &strategy.WalletData{Label: "Wallet"}}
}

func transferNode(id, amount string) strategy.Node {
	return strategy.Node{ID: id, Data: &strategy.TransferData{
		Label: id, Asset: "ETH", Amount: amount, RecipientAddress: recipient,
	}}
}

func guardNode(id, threshold string) strategy.Node {
	return strategy.Node{ID: id, Data: &strategy.BalanceGuardData{
		Label: id, TargetAddress: recipient, Operator: strategy.CompareGTE, CompareValue: threshold,
	}}
}

func linear(nodes ...strategy.Node) *strategy.Snapshot {
	s := &strategy.Snapshot{Name: "test", Nodes: nodes}
	for i := 0; i+1 < len(nodes); i++ {
		s.Edges = append(s.Edges, strategy.Edge{Source: nodes[i].ID, Target: nodes[i+1].ID})
	}
	return s
}

func TestExecuteBatchConfirmed(t *testing.T) {
	w := &fakeWallet{atomic: true, statuses: []wallet.CallsStatusResult{
		{Status: wallet.StatusPending},
		{Status: wallet.StatusConfirmed, Receipts: []wallet.Receipt{{TransactionHash: "0xfinal"}}},
	}}
	c := controller(w, &fakeReader{})

	result, err := c.Execute(context.Background(), linear(walletNode("w"), transferNode("a", "1.5")))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Batched || result.Status != StatusConfirmed {
		t.Fatalf("expected confirmed batch, got %+v", result)
	}
	if result.BatchID != "batch-1" {
		t.Fatalf("unexpected batch id %q", result.BatchID)
	}
	if len(result.TxHashes) != 1 || result.TxHashes[0] != "0xfinal" {
		t.Fatalf("expected settlement reference, got %v", result.TxHashes)
	}
	if !result.Steps[0].Executed {
		t.Fatal("expected step marked executed")
	}
	if !w.sendCallsReq.AtomicRequired {
		t.Fatal("expected atomicity to be required")
	}
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	if w.sendCallsReq.Calls[0].Value != "0x"+want.Text(16) {
		t.Fatalf("unexpected call value %q", w.sendCallsReq.Calls[0].Value)
	}
}

func TestExecuteBatchTimesOut(t *testing.T) {
	w := &fakeWallet{atomic: true}
	c := controller(w, &fakeReader{})

	result, err := c.Execute(context.Background(), linear(walletNode("w"), transferNode("a", "1")))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != StatusTimedOut || result.FailureCode != CodeExecutionTimeout {
		t.Fatalf("expected timeout, got %+v", result)
	}
	if result.Steps[0].Executed {
		t.Fatal("timed-out step must not be marked executed")
	}
}

func TestExecuteBatchUserRejection(t *testing.T) {
	w := &fakeWallet{atomic: true, sendCallsErr: wallet.ErrUserRejected}
	c := controller(w, &fakeReader{})

	result, err := c.Execute(context.Background(), linear(walletNode("w"), transferNode("a", "1")))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != StatusFailed || result.FailureCode != wallet.CodeUserRejected {
		t.Fatalf("expected user rejection, got %+v", result)
	}
	if w.statusGets != 0 {
		t.Fatal("rejected submissions must not be polled")
	}
}

func TestExecuteSequentialFallback(t *testing.T) {
	w := &fakeWallet{atomic: false}
	c := controller(w, &fakeReader{})

	result, err := c.Execute(context.Background(),
		linear(walletNode("w"), transferNode("a", "1"), transferNode("b", "2")))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Batched {
		t.Fatal("expected the sequential path")
	}
	if result.Status != StatusConfirmed {
		t.Fatalf("unexpected status %s", result.Status)
	}
	if len(w.sentTxs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(w.sentTxs))
	}
	if !result.Steps[0].Executed || !result.Steps[1].Executed {
		t.Fatalf("expected both steps executed, got %+v", result.Steps)
	}
}

func TestExecuteSequentialRejectionKeepsEarlierSteps(t *testing.T) {
	w := &fakeWallet{atomic: false, sendTxErr: map[int]error{1: wallet.ErrUserRejected}}
	c := controller(w, &fakeReader{})

	result, err := c.Execute(context.Background(),
		linear(walletNode("w"), transferNode("a", "1"), transferNode("b", "2")))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != StatusFailed || result.FailureCode != wallet.CodeUserRejected {
		t.Fatalf("expected rejection failure, got %+v", result)
	}
	if !result.Steps[0].Executed {
		t.Fatal("already-submitted step must stay executed")
	}
	if result.Steps[1].Executed {
		t.Fatal("aborted step must not be marked executed")
	}
}

func TestExecuteGuardHaltsWithoutError(t *testing.T) {
	// Guard requires a balance of 1 ETH but the account only holds 0.5.
	reader := &fakeReader{balance: big.NewInt(5e17)}
	w := &fakeWallet{atomic: true}
	c := controller(w, reader)

	result, err := c.Execute(context.Background(),
		linear(walletNode("w"), guardNode("g", "1"), transferNode("a", "1")))
	if err != nil {
		t.Fatalf("guard halt must not raise an error, got %v", err)
	}
	if result.Status != StatusHalted || result.HaltedAt != "g" {
		t.Fatalf("expected halt at guard, got %+v", result)
	}
	if w.sendCallsReq != nil || len(w.sentTxs) != 0 {
		t.Fatal("halted attempt must not submit anything")
	}
}

func TestExecuteGuardHaltKeepsPrecedingSteps(t *testing.T) {
	// Guard requires 1 ETH, the account holds 0.5: the transfer ranked
	// before the guard still submits, only the remainder is dropped.
	reader := &fakeReader{balance: big.NewInt(5e17)}
	w := &fakeWallet{atomic: true, statuses: []wallet.CallsStatusResult{
		{Status: wallet.StatusConfirmed, Receipts: []wallet.Receipt{{TransactionHash: "0xpre"}}},
	}}
	c := controller(w, reader)

	result, err := c.Execute(context.Background(),
		linear(walletNode("w"), transferNode("a", "1"), guardNode("g", "1"), transferNode("b", "2")))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != StatusHalted || result.HaltedAt != "g" {
		t.Fatalf("expected halt at guard, got %+v", result)
	}
	if w.sendCallsReq == nil || len(w.sendCallsReq.Calls) != 1 {
		t.Fatalf("expected the preceding transfer to be submitted, got %+v", w.sendCallsReq)
	}
	if len(result.TxHashes) != 1 || result.TxHashes[0] != "0xpre" {
		t.Fatalf("expected settlement reference for the prefix, got %v", result.TxHashes)
	}
	if !result.Steps[0].Executed {
		t.Fatal("step before the guard must be marked executed")
	}
	if result.Steps[1].Executed || result.Steps[2].Executed {
		t.Fatalf("guard and later steps must not be marked executed, got %+v", result.Steps)
	}
}

func TestExecuteGuardHaltSequentialPrefix(t *testing.T) {
	reader := &fakeReader{balance: big.NewInt(5e17)}
	w := &fakeWallet{atomic: false}
	c := controller(w, reader)

	result, err := c.Execute(context.Background(),
		linear(walletNode("w"), transferNode("a", "1"), guardNode("g", "1"), transferNode("b", "2")))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != StatusHalted || result.HaltedAt != "g" {
		t.Fatalf("expected halt at guard, got %+v", result)
	}
	if len(w.sentTxs) != 1 {
		t.Fatalf("expected one transaction for the prefix, got %d", len(w.sentTxs))
	}
	if !result.Steps[0].Executed || result.Steps[2].Executed {
		t.Fatalf("only the step before the guard executes, got %+v", result.Steps)
	}
}

func TestExecuteGuardPasses(t *testing.T) {
	reader := &fakeReader{balance: new(big.Int).SetUint64(2e18)}
	w := &fakeWallet{atomic: true, statuses: []wallet.CallsStatusResult{{Status: wallet.StatusConfirmed}}}
	c := controller(w, reader)

	result, err := c.Execute(context.Background(),
		linear(walletNode("w"), guardNode("g", "1"), transferNode("a", "1")))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != StatusConfirmed {
		t.Fatalf("unexpected status %s", result.Status)
	}
	if len(w.sendCallsReq.Calls) != 1 {
		t.Fatalf("guards must not contribute calls, got %d", len(w.sendCallsReq.Calls))
	}
}

func TestExecuteRefusesEmptyPlan(t *testing.T) {
	c := controller(&fakeWallet{}, &fakeReader{})
	_, err := c.Execute(context.Background(), linear(walletNode("w")))
	if xerrors.CodeOf(err) != CodeNothingToExecute {
		t.Fatalf("expected NOTHING_TO_EXECUTE, got %v", err)
	}
}

func TestExecuteRefusesConcurrentAttempts(t *testing.T) {
	c := controller(&fakeWallet{atomic: true}, &fakeReader{})
	c.inFlight.Store(true)
	_, err := c.Execute(context.Background(), linear(walletNode("w"), transferNode("a", "1")))
	if xerrors.CodeOf(err) != CodeExecutionInFlight {
		t.Fatalf("expected EXECUTION_IN_FLIGHT, got %v", err)
	}

	c.inFlight.Store(false)
	w := &fakeWallet{atomic: true, statuses: []wallet.CallsStatusResult{{Status: wallet.StatusConfirmed}}}
	c = controller(w, &fakeReader{})
	if _, err := c.Execute(context.Background(), linear(walletNode("w"), transferNode("a", "1"))); err != nil {
		t.Fatalf("execute after release: %v", err)
	}
}

func TestExecuteRequireAtomicRefusesFallback(t *testing.T) {
	w := &fakeWallet{atomic: false}
	c := controller(w, &fakeReader{}, WithRequireAtomic(true))

	_, err := c.Execute(context.Background(), linear(walletNode("w"), transferNode("a", "1")))
	if xerrors.CodeOf(err) != CodeAtomicUnsupported {
		t.Fatalf("expected ATOMIC_UNSUPPORTED, got %v", err)
	}
	if len(w.sentTxs) != 0 {
		t.Fatal("refused attempt must not submit transactions")
	}
}

func TestExecuteCapabilityFailureFallsBack(t *testing.T) {
	w := &fakeWallet{capabilityErr: wallet.ErrNoProvider}
	c := controller(w, &fakeReader{})

	result, err := c.Execute(context.Background(), linear(walletNode("w"), transferNode("a", "1")))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Batched {
		t.Fatal("capability failure must select the sequential path")
	}
	if len(w.sentTxs) != 1 {
		t.Fatalf("expected one transaction, got %d", len(w.sentTxs))
	}
}
