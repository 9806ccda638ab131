package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/runger/singleselect/internal/lookup"
)

// Client is a lookup.Service backed by a remote HTTP endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Lookup implements lookup.Service.
func (c *Client) Lookup(ctx context.Context, req lookup.Request) (lookup.Envelope, error) {
	payload, err := json.Marshal(lookupBody{
		InputText:     req.InputText,
		Sequence:      req.Sequence,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return lookup.Envelope{}, fmt.Errorf("httpapi: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/lookup", bytes.NewReader(payload))
	if err != nil {
		return lookup.Envelope{}, fmt.Errorf("httpapi: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.CorrelationID != "" {
		httpReq.Header.Set(CorrelationHeader, req.CorrelationID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return lookup.Envelope{}, fmt.Errorf("httpapi: lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes*16))
	if err != nil {
		return lookup.Envelope{}, fmt.Errorf("httpapi: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return lookup.Envelope{}, fmt.Errorf("httpapi: lookup: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return lookup.Envelope{}, fmt.Errorf("httpapi: decode response: %w", err)
	}
	return lookup.EnvelopeFromMap(decoded), nil
}
