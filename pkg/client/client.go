// Package client is a typed HTTP client for the teatrace API. It mirrors the
// service call surface one method per endpoint and decodes error responses
// back into plain errors carrying the server's message.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"teatrace/pkg/domain"
)

// CallerHeader mirrors the transport's identity header.
const CallerHeader = "X-Caller-Identity"

// Client talks to a teatrace server.
type Client struct {
	base   string
	caller string
	http   *http.Client
}

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCaller sets the identity sent on mutating requests.
func WithCaller(identity string) Option {
	return func(c *Client) { c.caller = identity }
}

// New constructs a client for the server at base (e.g. http://localhost:8080).
func New(base string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BootstrapRequest names the first Authority.
type BootstrapRequest struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// RegisterParticipantRequest carries a registration call.
type RegisterParticipantRequest struct {
	Identity string      `json:"identity"`
	Role     domain.Role `json:"role"`
	Name     string      `json:"name"`
	Location string      `json:"location"`
}

// CreateProductRequest carries a product creation call.
type CreateProductRequest struct {
	BatchID  string `json:"batch_id"`
	Name     string `json:"name"`
	Origin   string `json:"origin"`
	Grade    string `json:"grade"`
	Quantity int64  `json:"quantity"`
	Notes    string `json:"notes"`
}

// UpdateStageRequest advances a product one stage.
type UpdateStageRequest struct {
	Target domain.Stage `json:"target"`
	Notes  string       `json:"notes"`
}

// TraceReport mirrors the server's trace response.
type TraceReport struct {
	Product domain.Product        `json:"product"`
	History []domain.HistoryEntry `json:"history"`
	Pending []domain.Stage        `json:"pending"`
}

// Bootstrap registers the first Authority.
func (c *Client) Bootstrap(ctx context.Context, req BootstrapRequest) (domain.Participant, error) {
	var p domain.Participant
	err := c.do(ctx, http.MethodPost, "/api/v1/bootstrap", req, &p)
	return p, err
}

// RegisterParticipant creates or overwrites a participant record.
func (c *Client) RegisterParticipant(ctx context.Context, req RegisterParticipantRequest) (domain.Participant, error) {
	var p domain.Participant
	err := c.do(ctx, http.MethodPost, "/api/v1/participants", req, &p)
	return p, err
}

// GetParticipant fetches a participant record by identity.
func (c *Client) GetParticipant(ctx context.Context, identity string) (domain.Participant, error) {
	var p domain.Participant
	err := c.do(ctx, http.MethodGet, "/api/v1/participants/"+identity, nil, &p)
	return p, err
}

// ListParticipants returns all registered participants.
func (c *Client) ListParticipants(ctx context.Context) ([]domain.Participant, error) {
	var ps []domain.Participant
	err := c.do(ctx, http.MethodGet, "/api/v1/participants", nil, &ps)
	return ps, err
}

// CreateProduct records a new tea batch.
func (c *Client) CreateProduct(ctx context.Context, req CreateProductRequest) (domain.Product, error) {
	var p domain.Product
	err := c.do(ctx, http.MethodPost, "/api/v1/products", req, &p)
	return p, err
}

// GetProduct fetches a product by id.
func (c *Client) GetProduct(ctx context.Context, id uint64) (domain.Product, error) {
	var p domain.Product
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", id), nil, &p)
	return p, err
}

// GetProductByBatch fetches a product by batch code.
func (c *Client) GetProductByBatch(ctx context.Context, batchID string) (domain.Product, error) {
	var p domain.Product
	err := c.do(ctx, http.MethodGet, "/api/v1/products/batch/"+batchID, nil, &p)
	return p, err
}

// ListProducts returns all products.
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var ps []domain.Product
	err := c.do(ctx, http.MethodGet, "/api/v1/products", nil, &ps)
	return ps, err
}

// UpdateStage advances a product one stage and hands custody to the caller.
func (c *Client) UpdateStage(ctx context.Context, id uint64, req UpdateStageRequest) (domain.Product, error) {
	var p domain.Product
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/products/%d/stage", id), req, &p)
	return p, err
}

// GetHistory returns a product's custody trail.
func (c *Client) GetHistory(ctx context.Context, id uint64) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/products/%d/history", id), nil, &entries)
	return entries, err
}

// Trace returns a product's full journey.
func (c *Client) Trace(ctx context.Context, id uint64) (TraceReport, error) {
	var report TraceReport
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/products/%d/trace", id), nil, &report)
	return report, err
}

// ProductsByOwner returns every product id the identity has held.
func (c *Client) ProductsByOwner(ctx context.Context, identity string) ([]uint64, error) {
	var ids []uint64
	err := c.do(ctx, http.MethodGet, "/api/v1/owners/"+identity+"/products", nil, &ids)
	return ids, err
}

// Counts returns ledger totals.
func (c *Client) Counts(ctx context.Context) (domain.Counts, error) {
	var counts domain.Counts
	err := c.do(ctx, http.MethodGet, "/api/v1/counts", nil, &counts)
	return counts, err
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.caller != "" {
		req.Header.Set(CallerHeader, c.caller)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
