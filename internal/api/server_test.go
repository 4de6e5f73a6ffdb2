package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"StratFlow-Chain/internal/exec"
	"StratFlow-Chain/internal/run"
	"StratFlow-Chain/internal/storage"
	"StratFlow-Chain/internal/strategy"
)

func newTestServer(t *testing.T, authToken string) *httptest.Server {
	t.Helper()
	repo := storage.NewMemoryRepository()
	queue := run.NewMemoryQueue(8)
	t.Cleanup(func() { _ = queue.Close() })
	service := run.NewService(run.NewMemoryStore(), queue, 1)

	server := httptest.NewServer(NewServer("", repo, service, authToken).Handler())
	t.Cleanup(server.Close)
	return server
}

func strategyBody(t *testing.T, id string) *bytes.Buffer {
	t.Helper()
	payload := map[string]any{
		"id":   id,
		"name": "weekly dca",
		"graph": strategy.Snapshot{
			Nodes: []strategy.Node{
				{ID: "wallet", Data: &strategy.WalletData{Label: "Wallet"}},
				{ID: "buy", Data: &strategy.TransferData{
					Asset:            "ETH",
					Amount:           "0.1",
					RecipientAddress: "0x1111111111111111111111111111111111111111",
				}},
			},
			Edges: []strategy.Edge{{Source: "wallet", Target: "buy"}},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		t.Fatalf("encode strategy body: %v", err)
	}
	return &buf
}

func TestStrategyLifecycle(t *testing.T) {
	server := newTestServer(t, "")

	resp, err := http.Post(server.URL+"/api/v1/strategies", "application/json", strategyBody(t, ""))
	if err != nil {
		t.Fatalf("create strategy: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created storage.Record
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created strategy: %v", err)
	}
	resp.Body.Close()
	if created.ID == "" {
		t.Fatalf("expected a generated strategy id")
	}

	resp, err = http.Get(server.URL + "/api/v1/strategies/" + created.ID)
	if err != nil {
		t.Fatalf("get strategy: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var fetched storage.Record
	if err := json.NewDecoder(resp.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode strategy: %v", err)
	}
	resp.Body.Close()
	if fetched.Name != "weekly dca" || len(fetched.Graph.Nodes) != 2 {
		t.Fatalf("unexpected strategy: %+v", fetched)
	}

	resp, err = http.Get(server.URL + "/api/v1/strategies")
	if err != nil {
		t.Fatalf("list strategies: %v", err)
	}
	var listed []storage.Record
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode strategy list: %v", err)
	}
	resp.Body.Close()
	if len(listed) != 1 {
		t.Fatalf("expected 1 strategy, got %d", len(listed))
	}

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/strategies/"+created.ID, nil)
	if err != nil {
		t.Fatalf("build delete request: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete strategy: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/api/v1/strategies/" + created.ID)
	if err != nil {
		t.Fatalf("get deleted strategy: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestSubmitRun(t *testing.T) {
	server := newTestServer(t, "")

	resp, err := http.Post(server.URL+"/api/v1/strategies", "application/json", strategyBody(t, "strat-1"))
	if err != nil {
		t.Fatalf("create strategy: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, err = http.Post(server.URL+"/api/v1/strategies/strat-1/executions", "application/json", nil)
	if err != nil {
		t.Fatalf("submit run: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var submitted run.Run
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	resp.Body.Close()
	if submitted.ID == "" || submitted.Status != run.StatusPending {
		t.Fatalf("unexpected run: %+v", submitted)
	}

	resp, err = http.Get(server.URL + "/api/v1/executions/" + submitted.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var fetched run.Run
	if err := json.NewDecoder(resp.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode fetched run: %v", err)
	}
	resp.Body.Close()
	if fetched.StrategyID != "strat-1" {
		t.Fatalf("unexpected run: %+v", fetched)
	}

	resp, err = http.Post(server.URL+"/api/v1/strategies/missing/executions", "application/json", nil)
	if err != nil {
		t.Fatalf("submit run for missing strategy: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing strategy, got %d", resp.StatusCode)
	}
}

func TestSubmitRunWaitReturnsTerminalRun(t *testing.T) {
	repo := storage.NewMemoryRepository()
	store := run.NewMemoryStore()
	queue := run.NewMemoryQueue(8)
	t.Cleanup(func() { _ = queue.Close() })
	service := run.NewService(store, queue, 1)

	server := httptest.NewServer(NewServer("", repo, service, "").Handler())
	t.Cleanup(server.Close)

	resp, err := http.Post(server.URL+"/api/v1/strategies", "application/json", strategyBody(t, "strat-1"))
	if err != nil {
		t.Fatalf("create strategy: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	// A run that already finished stands in for worker completion.
	ctx := context.Background()
	if err := store.Create(ctx, &run.Run{ID: "r1", StrategyID: "strat-1", Status: run.StatusPending, MaxAttempts: 1}); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if _, err := store.Claim(ctx, "r1"); err != nil {
		t.Fatalf("claim run: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "r1", exec.Result{Status: exec.StatusConfirmed}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	resp, err = http.Post(server.URL+"/api/v1/strategies/strat-1/executions?wait=true&wait_seconds=1",
		"application/json", strings.NewReader(`{"run_id":"r1"}`))
	if err != nil {
		t.Fatalf("submit run: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for a settled wait, got %d", resp.StatusCode)
	}
	var finished run.Run
	if err := json.NewDecoder(resp.Body).Decode(&finished); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	resp.Body.Close()
	if finished.Status != run.StatusSucceeded {
		t.Fatalf("expected a succeeded run, got %+v", finished)
	}
}

func TestBearerAuth(t *testing.T) {
	server := newTestServer(t, "secret-token")

	resp, err := http.Get(server.URL + "/api/v1/strategies")
	if err != nil {
		t.Fatalf("unauthenticated request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v1/strategies", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authenticated request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}

	// Health and metrics stay open for probes and scrapers.
	resp, err = http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", resp.StatusCode)
	}
	resp, err = http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics scrape: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "stratflow_http_requests_total") {
		t.Fatalf("metrics output missing request counter:\n%s", body)
	}
}

func TestInvalidStrategyBody(t *testing.T) {
	server := newTestServer(t, "")

	resp, err := http.Post(server.URL+"/api/v1/strategies", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post invalid body: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
