// Package facilitator implements the HTTP client for the external
// settlement facilitator.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/layer-3/paygate/core"
	"github.com/layer-3/paygate/ports"
)

const (
	DefaultTimeout = 30 * time.Second

	headerContentType   = "Content-Type"
	mimeApplicationJSON = "application/json"
	maxResponseBytes    = 1 << 20
)

type settleRequest struct {
	Payload string `json:"payload"`
}

type settleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Error       string `json:"error,omitempty"`
	Slot        uint64 `json:"slot,omitempty"`
	BlockTime   int64  `json:"blockTime,omitempty"` // unix seconds
}

// HTTPClient sends settlement requests to a facilitator
type HTTPClient struct {
	baseURL       string
	client        *http.Client
	timeout       time.Duration
	authorization string
}

// Option configures an HTTPClient
type Option func(*HTTPClient)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.client = c }
}

// WithTimeout bounds each settlement call
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) { h.timeout = d }
}

// WithAuthorization sets a static Authorization header value
func WithAuthorization(value string) Option {
	return func(h *HTTPClient) { h.authorization = value }
}

// NewHTTPClient creates a facilitator client for baseURL
func NewHTTPClient(baseURL string, opts ...Option) ports.Facilitator {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settle posts the encoded intent to <baseURL>/settle. It is called once
// per intent and never retried.
func (c *HTTPClient) Settle(ctx context.Context, encoded string) (*ports.FacilitatorResponse, error) {
	body, err := json.Marshal(settleRequest{Payload: encoded})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/settle", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(headerContentType, mimeApplicationJSON)
	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %v", core.ErrSettlementTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %v", core.ErrSettlementTimeout, err)
		}
		return nil, fmt.Errorf("%w: failed to read response: %v", core.ErrFacilitatorUnavailable, err)
	}

	var sr settleResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("%w: undecodable response (%s)", core.ErrFacilitatorUnavailable, resp.Status)
	}

	// A non-2xx reply only counts as a business answer when it names an error
	if resp.StatusCode/100 != 2 && (sr.Success || sr.Error == "") {
		return nil, fmt.Errorf("%w: %s", core.ErrFacilitatorUnavailable, resp.Status)
	}

	out := &ports.FacilitatorResponse{
		Success:     sr.Success,
		Transaction: sr.Transaction,
		Error:       sr.Error,
	}
	if sr.Success {
		out.Settlement = &core.Settlement{Transaction: sr.Transaction, Slot: sr.Slot}
		if sr.BlockTime > 0 {
			bt := time.Unix(sr.BlockTime, 0).UTC()
			out.Settlement.BlockTime = &bt
		}
	}

	return out, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
