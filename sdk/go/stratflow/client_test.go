package stratflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newFakeAPI(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var pollCount atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/strategies", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "UNAUTHORIZED", "message": "missing token"})
			return
		}
		var submission StrategySubmission
		if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Strategy{
			ID:    "strat-1",
			Name:  submission.Name,
			Graph: submission.Graph,
		})
	})
	mux.HandleFunc("GET /api/v1/strategies/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "strat-1" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "NOT_FOUND", "message": "strategy not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(Strategy{ID: "strat-1", Name: "weekly dca"})
	})
	mux.HandleFunc("POST /api/v1/strategies/{id}/executions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(Run{ID: "run-1", StrategyID: r.PathValue("id"), Status: "pending"})
	})
	mux.HandleFunc("GET /api/v1/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		status := "running"
		if pollCount.Add(1) >= 3 {
			status = "succeeded"
		}
		_ = json.NewEncoder(w).Encode(Run{ID: r.PathValue("id"), StrategyID: "strat-1", Status: status})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &pollCount
}

func TestClientStrategyRoundTrip(t *testing.T) {
	server, _ := newFakeAPI(t)
	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetAccessToken("secret-token")

	graph := json.RawMessage(`{"nodes":[],"edges":[]}`)
	created, err := client.CreateStrategy(context.Background(), StrategySubmission{Name: "weekly dca", Graph: graph})
	if err != nil {
		t.Fatalf("create strategy: %v", err)
	}
	if created.ID != "strat-1" || created.Name != "weekly dca" {
		t.Fatalf("unexpected strategy: %+v", created)
	}

	fetched, err := client.GetStrategy(context.Background(), "strat-1")
	if err != nil {
		t.Fatalf("get strategy: %v", err)
	}
	if fetched.ID != "strat-1" {
		t.Fatalf("unexpected strategy: %+v", fetched)
	}

	_, err = client.GetStrategy(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "NOT_FOUND" {
		t.Fatalf("expected typed 404, got %v", err)
	}
}

func TestClientRejectsMissingToken(t *testing.T) {
	server, _ := newFakeAPI(t)
	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.CreateStrategy(context.Background(), StrategySubmission{Name: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestClientWaitForRun(t *testing.T) {
	server, polls := newFakeAPI(t)
	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	submitted, err := client.SubmitRun(context.Background(), "strat-1", "")
	if err != nil {
		t.Fatalf("submit run: %v", err)
	}
	if submitted.ID != "run-1" || submitted.Status != "pending" {
		t.Fatalf("unexpected run: %+v", submitted)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done, err := client.WaitForRun(ctx, submitted.ID, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("wait for run: %v", err)
	}
	if done.Status != "succeeded" {
		t.Fatalf("expected succeeded run, got %+v", done)
	}
	if polls.Load() < 3 {
		t.Fatalf("expected at least 3 polls, got %d", polls.Load())
	}
}
