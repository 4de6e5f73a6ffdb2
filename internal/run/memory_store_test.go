package run

import (
	"context"
	"errors"
	"testing"

	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/exec"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r := &Run{ID: "run-1", StrategyID: "strat-1", Status: StatusPending, MaxAttempts: 2}
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := store.Create(ctx, &Run{ID: "run-1", StrategyID: "strat-1", Status: StatusPending, MaxAttempts: 2}); !errors.Is(err, ErrRunConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	loaded, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if loaded.StrategyID != "strat-1" || loaded.Status != StatusPending {
		t.Fatalf("unexpected run: %+v", loaded)
	}
	loaded.Status = StatusFailed
	again, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run again: %v", err)
	}
	if again.Status != StatusPending {
		t.Fatalf("store must hand out copies, got status %s", again.Status)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Run{ID: "run-1", StrategyID: "strat-1", Status: StatusPending, MaxAttempts: 2}); err != nil {
		t.Fatalf("create run: %v", err)
	}

	claimed, err := store.Claim(ctx, "run-1")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed run: %+v", claimed)
	}

	if _, err := store.Claim(ctx, "run-1"); !errors.Is(err, ErrRunConflict) {
		t.Fatalf("claiming a running run should conflict, got %v", err)
	}

	if err := store.MarkFailed(ctx, "run-1", xerrors.CodeChainFailure, "rpc unreachable", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	failed, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get failed run: %v", err)
	}
	if failed.Status != StatusFailed || failed.ErrorCode != string(xerrors.CodeChainFailure) {
		t.Fatalf("unexpected failed run: %+v", failed)
	}

	reclaimed, err := store.Claim(ctx, "run-1")
	if err != nil {
		t.Fatalf("second claim after non-terminal failure: %v", err)
	}
	if reclaimed.Attempts != 2 || reclaimed.LastError != "" {
		t.Fatalf("second claim should consume attempt and clear error, got %+v", reclaimed)
	}

	result := exec.Result{Strategy: "strat-1", Status: exec.StatusConfirmed, TxHashes: []string{"0xabc"}}
	if err := store.MarkSucceeded(ctx, "run-1", result); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	done, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get completed run: %v", err)
	}
	if done.Status != StatusSucceeded || done.Result == nil || done.Result.Status != exec.StatusConfirmed {
		t.Fatalf("unexpected completed run: %+v", done)
	}

	if _, err := store.Claim(ctx, "run-1"); !errors.Is(err, ErrRunCompleted) {
		t.Fatalf("claiming a completed run should report completion, got %v", err)
	}
}

func TestMemoryStoreClaimExhausted(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Run{ID: "run-1", StrategyID: "strat-1", Status: StatusPending, MaxAttempts: 1}); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if _, err := store.Claim(ctx, "run-1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := store.MarkFailed(ctx, "run-1", CodeRunProcessing, "boom", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "run-1"); !errors.Is(err, ErrRunExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
}

func TestMemoryStoreListAndStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seed := []*Run{
		{ID: "run-1", StrategyID: "strat-1", Status: StatusPending, MaxAttempts: 1},
		{ID: "run-2", StrategyID: "strat-1", Status: StatusPending, MaxAttempts: 1},
		{ID: "run-3", StrategyID: "strat-2", Status: StatusPending, MaxAttempts: 1},
	}
	for _, r := range seed {
		if err := store.Create(ctx, r); err != nil {
			t.Fatalf("create %s: %v", r.ID, err)
		}
	}
	if _, err := store.Claim(ctx, "run-2"); err != nil {
		t.Fatalf("claim run-2: %v", err)
	}
	if err := store.MarkFailed(ctx, "run-2", CodeRunProcessing, "boom", true); err != nil {
		t.Fatalf("mark run-2 failed: %v", err)
	}

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}

	pending, err := store.List(ctx, ListOptions{Statuses: []Status{StatusPending}})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending runs, got %d", len(pending))
	}

	byStrategy, err := store.List(ctx, ListOptions{StrategyID: "strat-2"})
	if err != nil {
		t.Fatalf("list by strategy: %v", err)
	}
	if len(byStrategy) != 1 || byStrategy[0].ID != "run-3" {
		t.Fatalf("unexpected strategy filter result: %+v", byStrategy)
	}

	limited, err := store.List(ctx, ListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit of 1, got %d", len(limited))
	}

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 2 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
