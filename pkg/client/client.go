// Package client provides a Go client for the dappkit form snapshot API.
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
	"strings"
	"time"
)

// Client is a snapshot API client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new snapshot API client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// CreateSession allocates a new session id
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.send(ctx, http.MethodPost, "/api/v1/sessions", nil, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// PutSnapshot stores the field values of one form
func (c *Client) PutSnapshot(ctx context.Context, sessionID, path, formID string, values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return c.PutSnapshotRaw(ctx, sessionID, path, formID, data)
}

// PutSnapshotRaw stores an already encoded snapshot
func (c *Client) PutSnapshotRaw(ctx context.Context, sessionID, path, formID string, data []byte) error {
	return c.send(ctx, http.MethodPut, snapshotPath(sessionID, path, formID), data, nil)
}

// GetSnapshotRaw returns the stored snapshot bytes
func (c *Client) GetSnapshotRaw(ctx context.Context, sessionID, path, formID string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, snapshotPath(sessionID, path, formID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, parseError(resp)
	}
	return io.ReadAll(resp.Body)
}

// ListKeys lists the snapshot keys stored for a session
func (c *Client) ListKeys(ctx context.Context, sessionID string) ([]string, error) {
	var resp struct {
		Keys []string `json:"keys"`
	}
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/snapshots"
	if err := c.send(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// DeleteSession ends a session and drops its snapshots
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.send(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(sessionID), nil, nil)
}

func snapshotPath(sessionID, path, formID string) string {
	q := url.Values{}
	q.Set("path", path)
	q.Set("form", formID)
	return "/api/v1/sessions/" + url.PathEscape(sessionID) + "/snapshots?" + q.Encode()
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, result any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	errResp.Error.Status = resp.StatusCode
	return &errResp.Error
}
