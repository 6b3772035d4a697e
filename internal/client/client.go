// Package client is the HTTP client for the gateway API used by oversightctl
// and by agents written in Go.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"oversight.dev/internal/action"
	"oversight.dev/internal/approval"
	"oversight.dev/internal/gateway"
	"oversight.dev/internal/ledger"
)

// APIError is a non-2xx response from the gateway.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("gateway: %d %s (request %s)", e.Status, e.Message, e.RequestID)
	}
	return fmt.Sprintf("gateway: %d %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the gateway.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

type Option func(*Client)

// WithToken sends an operator bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 15 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Evaluate(ctx context.Context, d action.Descriptor) (gateway.Evaluation, error) {
	var out gateway.Evaluation
	err := c.do(ctx, http.MethodPost, "/v1/actions/evaluate", nil, d, &out)
	return out, err
}

func (c *Client) ApprovalStatus(ctx context.Context, id string) (approval.Record, error) {
	var out approval.Record
	err := c.do(ctx, http.MethodGet, "/v1/approvals/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// WaitForResolution polls until the request leaves pending or ctx ends.
func (c *Client) WaitForResolution(ctx context.Context, id string, interval time.Duration) (approval.Record, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		rec, err := c.ApprovalStatus(ctx, id)
		if err != nil || rec.Status.IsTerminal() {
			return rec, err
		}
		select {
		case <-ctx.Done():
			return rec, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) Pending(ctx context.Context) ([]approval.Record, error) {
	var out struct {
		Items []approval.Record `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/approvals", nil, nil, &out)
	return out.Items, err
}

func (c *Client) Approve(ctx context.Context, id, actor string) (approval.Result, error) {
	return c.resolve(ctx, id, "approve", actor)
}

func (c *Client) Deny(ctx context.Context, id, actor string) (approval.Result, error) {
	return c.resolve(ctx, id, "deny", actor)
}

func (c *Client) resolve(ctx context.Context, id, verb, actor string) (approval.Result, error) {
	var body any
	if actor != "" && c.token == "" {
		body = map[string]string{"actor": actor}
	}
	var out approval.Result
	err := c.do(ctx, http.MethodPost, "/v1/approvals/"+url.PathEscape(id)+"/"+verb, nil, body, &out)
	return out, err
}

func (c *Client) Summary(ctx context.Context, n int) (string, error) {
	q := url.Values{}
	if n > 0 {
		q.Set("n", strconv.Itoa(n))
	}
	var out struct {
		Summary string `json:"summary"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/summary", q, nil, &out)
	return out.Summary, err
}

func (c *Client) Recent(ctx context.Context, n int) (ledger.Summary, error) {
	var out ledger.Summary
	err := c.do(ctx, http.MethodGet, "/v1/log", url.Values{"recent": {strconv.Itoa(n)}}, nil, &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) (gateway.Health, error) {
	var out gateway.Health
	err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var payload struct {
			Error     string `json:"error"`
			RequestID string `json:"request_id"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload)
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: payload.Error, RequestID: payload.RequestID}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
