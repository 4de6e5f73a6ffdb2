// Package stratflow is a thin HTTP client for the StratFlow service API. It
// mirrors the REST payloads with raw JSON graphs so SDK users are not coupled
// to the engine's internal node types.
package stratflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the StratFlow REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Strategy is the stored strategy as the API returns it.
type Strategy struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Graph       json.RawMessage `json:"graph"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at"`
}

// StrategySubmission is the payload to create or update a strategy.
type StrategySubmission struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Graph       json.RawMessage `json:"graph"`
}

// Run is one queued execution of a strategy.
type Run struct {
	ID          string          `json:"id"`
	StrategyID  string          `json:"strategy_id"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	ErrorCode   string          `json:"error_code,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at"`
}

// Terminal reports whether the run reached a final queue status.
func (r *Run) Terminal() bool {
	return r != nil && (r.Status == "succeeded" || r.Status == "failed")
}

// APIError represents server-side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("stratflow api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("stratflow api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the StratFlow API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAccessToken stores the bearer token attached to every request.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// CreateStrategy stores a new strategy.
func (c *Client) CreateStrategy(ctx context.Context, submission StrategySubmission) (Strategy, error) {
	var created Strategy
	if err := c.post(ctx, "/api/v1/strategies", submission, &created); err != nil {
		return Strategy{}, err
	}
	return created, nil
}

// GetStrategy fetches one strategy by id.
func (c *Client) GetStrategy(ctx context.Context, id string) (Strategy, error) {
	var strategy Strategy
	if err := c.get(ctx, "/api/v1/strategies/"+url.PathEscape(id), &strategy); err != nil {
		return Strategy{}, err
	}
	return strategy, nil
}

// ListStrategies fetches stored strategies, most recently updated first.
func (c *Client) ListStrategies(ctx context.Context, limit int) ([]Strategy, error) {
	endpoint := "/api/v1/strategies"
	if limit > 0 {
		endpoint += fmt.Sprintf("?limit=%d", limit)
	}
	var strategies []Strategy
	if err := c.get(ctx, endpoint, &strategies); err != nil {
		return nil, err
	}
	return strategies, nil
}

// SubmitRun queues an execution of the strategy. runID is optional; passing
// the same id twice returns the already-queued run.
func (c *Client) SubmitRun(ctx context.Context, strategyID, runID string) (Run, error) {
	payload := struct {
		RunID string `json:"run_id,omitempty"`
	}{RunID: runID}
	var submitted Run
	endpoint := "/api/v1/strategies/" + url.PathEscape(strategyID) + "/executions"
	if err := c.post(ctx, endpoint, payload, &submitted); err != nil {
		return Run{}, err
	}
	return submitted, nil
}

// GetRun fetches run status by id.
func (c *Client) GetRun(ctx context.Context, id string) (Run, error) {
	var r Run
	if err := c.get(ctx, "/api/v1/executions/"+url.PathEscape(id), &r); err != nil {
		return Run{}, err
	}
	return r, nil
}

// WaitForRun polls the run until it reaches a terminal status or the context
// expires.
func (c *Client) WaitForRun(ctx context.Context, id string, interval time.Duration) (Run, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r, err := c.GetRun(ctx, id)
		if err != nil {
			return Run{}, err
		}
		if r.Terminal() {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return Run{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
