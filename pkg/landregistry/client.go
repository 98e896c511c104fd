// Package landregistry is a client for the land registry demo backend.
package landregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Endpoint paths on the backend.
const (
	SubmitPath = "/api/transactions/new"
	MinePath   = "/api/mine"
	ChainPath  = "/api/chain"
)

// ErrMissingFields is returned before any request when owner or land_id is empty.
var ErrMissingFields = errors.New("missing required fields (owner, land_id)")

// Client talks to the land registry backend
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

// New creates a new land registry client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Deed is the optional title document attached to a registration
type Deed struct {
	Filename string
	Content  []byte
}

// Registration is the land registration form
type Registration struct {
	Owner    string
	LandID   string
	Location string
	Area     string
	Deed     *Deed
}

// SubmitResult is the backend's answer to a registration
type SubmitResult struct {
	Message    string `json:"message"`
	Flagged    bool   `json:"flagged"`
	FlagReason string `json:"flag_reason"`
}

// MineResult describes a newly forged block
type MineResult struct {
	Message      string            `json:"message"`
	Index        int64             `json:"index"`
	Transactions []json.RawMessage `json:"transactions,omitempty"`
	Proof        json.Number       `json:"proof,omitempty"`
	PreviousHash string            `json:"previous_hash,omitempty"`
}

// APIError is a non-2xx response from the backend
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// SubmitTransaction posts a registration as multipart form data. It issues
// exactly one request and never retries.
func (c *Client) SubmitTransaction(ctx context.Context, reg Registration) (*SubmitResult, error) {
	if strings.TrimSpace(reg.Owner) == "" || strings.TrimSpace(reg.LandID) == "" {
		return nil, ErrMissingFields
	}

	body, contentType, err := encodeRegistration(reg)
	if err != nil {
		return nil, fmt.Errorf("encoding form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+SubmitPath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	var result SubmitResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Mine asks the backend to forge a block from pending transactions
func (c *Client) Mine(ctx context.Context) (*MineResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+MinePath, nil)
	if err != nil {
		return nil, err
	}

	var result MineResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Chain returns the backend's chain as raw JSON
func (c *Client) Chain(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+ChainPath, nil)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := c.do(req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func encodeRegistration(reg Registration) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"owner", reg.Owner},
		{"land_id", reg.LandID},
		{"location", reg.Location},
		{"area", reg.Area},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	if reg.Deed != nil && len(reg.Deed.Content) > 0 {
		name := reg.Deed.Filename
		if name == "" {
			name = "deed"
		}
		part, err := w.CreateFormFile("deed", name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(reg.Deed.Content); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) do(req *http.Request, result any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func parseError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var msg struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &msg) == nil && msg.Message != "" {
		apiErr.Message = msg.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
