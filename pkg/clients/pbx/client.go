// Package pbx is the client for the upstream PBX report endpoints. It knows
// nothing about report semantics: callers hand it an endpoint, a field
// projection, and a continuation cursor; it deals with authentication,
// retries, and the upstream's habit of returning empty pages mid-stream.
package pbx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"telegraph/pkg/clients"
	"telegraph/pkg/logging"
)

// TokenProvider supplies a per-tenant bearer credential. Implementations are
// expected to cache; the client re-acquires the token on every attempt.
type TokenProvider interface {
	Token(ctx context.Context, tenant string) (string, error)
}

// StaticTokenProvider returns the same credential for every tenant. Useful
// for single-tenant deployments and tests.
type StaticTokenProvider string

func (p StaticTokenProvider) Token(_ context.Context, _ string) (string, error) {
	return string(p), nil
}

// Query describes one page fetch against one report endpoint.
type Query struct {
	Tenant   string
	Endpoint string
	Fields   []string
	// StartKey resumes a previous page sequence; empty means first page.
	StartKey string
	// Window bounds, sent as epoch seconds. Zero values are omitted.
	StartDate time.Time
	EndDate   time.Time
	// Limit caps the rows returned to the caller. Excess rows fetched while
	// skipping empty pages are discarded, never buffered.
	Limit int
}

// Page is one fetched page of raw upstream rows. An empty NextStartKey means
// the upstream reports no further pages for this query.
type Page struct {
	Rows         []map[string]any
	NextStartKey string
}

// TransportError wraps a network-level failure that survived all retries.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx upstream response that survived all retries.
// Message carries the upstream-supplied error text when the body had one.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream returned %d", e.Status)
}

// Config configures the PBX report client.
type Config struct {
	BaseURL              string
	Tokens               TokenProvider
	Timeout              time.Duration
	Logger               logging.Logger
	RetryConfig          *clients.HTTPExecutorConfig
	CircuitBreakerConfig *clients.CircuitBreakerConfig
}

// Client fetches report pages from the upstream PBX. It is stateless across
// calls except for the cursor the caller passes back in.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
	logger     logging.Logger
	executor   failsafe.Executor[*http.Response]
}

// NewClient creates a PBX report client.
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	retryConfig := clients.DefaultHTTPExecutorConfig()
	if config.RetryConfig != nil {
		retryConfig = *config.RetryConfig
	}
	if config.CircuitBreakerConfig != nil {
		retryConfig.CircuitBreaker = clients.NewCircuitBreaker(*config.CircuitBreakerConfig)
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: clients.DefaultTransport(),
		},
		tokens:   config.Tokens,
		logger:   config.Logger,
		executor: clients.NewHTTPExecutor(retryConfig),
	}
}

// FetchPage performs one external page fetch. Within the call it keeps
// requesting subsequent pages while the upstream returns zero rows with a
// live cursor, and returns as soon as at least one row is accumulated (or
// the cursor dies), carrying the continuation cursor forward so the next
// call resumes correctly. This bounds per-call latency without losing data.
func (c *Client) FetchPage(ctx context.Context, q Query) (*Page, error) {
	rows := make([]map[string]any, 0, q.Limit)
	cursor := q.StartKey

	for {
		page, err := c.fetchOnce(ctx, q, cursor)
		if err != nil {
			return nil, err
		}

		rows = append(rows, page.Rows...)
		cursor = page.NextStartKey

		if len(rows) > 0 || cursor == "" {
			break
		}
		// Zero rows with a live cursor: a legitimately empty mid-stream
		// page, keep walking.
	}

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return &Page{Rows: rows, NextStartKey: cursor}, nil
}

// fetchOnce issues one GET with retries. The bearer token is re-acquired on
// every attempt, which is cheap when the provider caches it.
func (c *Client) fetchOnce(ctx context.Context, q Query, cursor string) (*Page, error) {
	requestURL := c.baseURL + q.Endpoint + "?" + c.buildParams(q, cursor).Encode()

	resp, err := clients.ExecuteHTTP(ctx, c.executor, func() (*http.Response, error) {
		token, err := c.tokens.Token(ctx, q.Tenant)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire tenant token: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, Message: upstreamMessage(body)}
	}

	page, err := parsePage(body)
	if err != nil {
		return nil, &StatusError{Status: resp.StatusCode, Message: err.Error()}
	}

	if c.logger != nil {
		c.logger.WithFields(logging.Fields{
			"endpoint": q.Endpoint,
			"tenant":   q.Tenant,
			"rows":     len(page.Rows),
			"has_next": page.NextStartKey != "",
		}).Debug("Fetched upstream report page")
	}
	return page, nil
}

func (c *Client) buildParams(q Query, cursor string) url.Values {
	params := url.Values{}
	if len(q.Fields) > 0 {
		params.Set("fields", strings.Join(q.Fields, ","))
	}
	if cursor != "" {
		params.Set("start_key", cursor)
	}
	if !q.StartDate.IsZero() {
		params.Set("startDate", strconv.FormatInt(q.StartDate.Unix(), 10))
	}
	if !q.EndDate.IsZero() {
		params.Set("endDate", strconv.FormatInt(q.EndDate.Unix(), 10))
	}
	return params
}

// parsePage handles the three body shapes the report endpoints produce:
// {"data": [...]}, {"rows": [...]}, or a bare array. next_start_key absent
// or null means the page sequence is exhausted.
func parsePage(body []byte) (*Page, error) {
	if len(body) == 0 {
		return &Page{}, nil
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var rows []map[string]any
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		return &Page{Rows: rows}, nil
	}

	var envelope struct {
		Data         []map[string]any `json:"data"`
		Rows         []map[string]any `json:"rows"`
		NextStartKey *string          `json:"next_start_key"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	page := &Page{Rows: envelope.Data}
	if page.Rows == nil {
		page.Rows = envelope.Rows
	}
	if page.Rows == nil {
		page.Rows = []map[string]any{}
	}
	if envelope.NextStartKey != nil {
		page.NextStartKey = *envelope.NextStartKey
	}
	return page, nil
}

// upstreamMessage digs a structured error message out of an error body so
// callers can surface something more specific than the status code.
func upstreamMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}
