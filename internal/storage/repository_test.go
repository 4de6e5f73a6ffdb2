package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"StratFlow-Chain/internal/strategy"
)

func sampleGraph() strategy.Snapshot {
	return strategy.Snapshot{
		Name: "weekly dca",
		Nodes: []strategy.Node{
			{ID: "wallet", Data: &strategy.WalletData{Label: "Wallet"}},
			{ID: "buy", Data: &strategy.TransferData{
				Label:            "Buy",
				Asset:            "USDC",
				Amount:           "25",
				RecipientAddress: "0x1111111111111111111111111111111111111111",
			}},
		},
		Edges: []strategy.Edge{{Source: "wallet", Target: "buy"}},
	}
}

func sampleRecord(id string) *Record {
	return &Record{
		ID:    id,
		Name:  "weekly dca",
		Graph: sampleGraph(),
	}
}

func testRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	if err := repo.Create(ctx, sampleRecord("strat-1")); err != nil {
		t.Fatalf("create strategy: %v", err)
	}
	if err := repo.Create(ctx, sampleRecord("strat-1")); !errors.Is(err, ErrStrategyExists) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	record, err := repo.Get(ctx, "strat-1")
	if err != nil {
		t.Fatalf("get strategy: %v", err)
	}
	if record.Name != "weekly dca" || len(record.Graph.Nodes) != 2 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.CreatedAt == 0 || record.UpdatedAt == 0 {
		t.Fatalf("timestamps not assigned: %+v", record)
	}

	record.Name = "weekly dca v2"
	if err := repo.Update(ctx, record); err != nil {
		t.Fatalf("update strategy: %v", err)
	}
	updated, err := repo.Get(ctx, "strat-1")
	if err != nil {
		t.Fatalf("get updated strategy: %v", err)
	}
	if updated.Name != "weekly dca v2" {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.CreatedAt != record.CreatedAt {
		t.Fatalf("update must preserve creation time")
	}

	snap, err := repo.Snapshot(ctx, "strat-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Nodes) != 2 || snap.Nodes[1].Kind() != strategy.KindTransfer {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	// The snapshot is a private copy; ranking it must not touch the store.
	if err := strategy.Order(snap); err != nil {
		t.Fatalf("order snapshot: %v", err)
	}
	stored, err := repo.Get(ctx, "strat-1")
	if err != nil {
		t.Fatalf("get after snapshot: %v", err)
	}
	if stored.Graph.Nodes[1].SequenceNumber != nil {
		t.Fatalf("stored graph must stay unranked")
	}

	if err := repo.Create(ctx, sampleRecord("strat-2")); err != nil {
		t.Fatalf("create second strategy: %v", err)
	}
	records, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("list strategies: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 strategies, got %d", len(records))
	}

	if err := repo.Delete(ctx, "strat-2"); err != nil {
		t.Fatalf("delete strategy: %v", err)
	}
	if _, err := repo.Get(ctx, "strat-2"); !errors.Is(err, ErrStrategyNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := repo.Delete(ctx, "strat-2"); !errors.Is(err, ErrStrategyNotFound) {
		t.Fatalf("expected not found on double delete, got %v", err)
	}

	invalid := sampleRecord("strat-3")
	invalid.Graph.Nodes = nil
	if err := repo.Create(ctx, invalid); err == nil {
		t.Fatalf("expected rejection of an empty graph")
	}
}

func TestMemoryRepository(t *testing.T) {
	testRepository(t, NewMemoryRepository())
}

func TestFileRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.jsonl")
	repo, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("open file repository: %v", err)
	}
	testRepository(t, repo)
}

func TestFileRepositoryReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.jsonl")
	ctx := context.Background()

	repo, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("open file repository: %v", err)
	}
	if err := repo.Create(ctx, sampleRecord("strat-1")); err != nil {
		t.Fatalf("create strategy: %v", err)
	}
	if err := repo.Create(ctx, sampleRecord("strat-2")); err != nil {
		t.Fatalf("create second strategy: %v", err)
	}
	record, err := repo.Get(ctx, "strat-1")
	if err != nil {
		t.Fatalf("get strategy: %v", err)
	}
	record.Description = "buy a little every week"
	if err := repo.Update(ctx, record); err != nil {
		t.Fatalf("update strategy: %v", err)
	}
	if err := repo.Delete(ctx, "strat-2"); err != nil {
		t.Fatalf("delete strategy: %v", err)
	}

	reopened, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("reopen file repository: %v", err)
	}
	restored, err := reopened.Get(ctx, "strat-1")
	if err != nil {
		t.Fatalf("get after replay: %v", err)
	}
	if restored.Description != "buy a little every week" {
		t.Fatalf("replay lost the update: %+v", restored)
	}
	if _, err := reopened.Get(ctx, "strat-2"); !errors.Is(err, ErrStrategyNotFound) {
		t.Fatalf("replay must honor deletes, got %v", err)
	}
}
