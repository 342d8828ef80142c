// Package transport is the HTTP client for a multiswapd node.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Layr-Labs/multiswap-go/pkg/host"
	"github.com/Layr-Labs/multiswap-go/pkg/node"
	"github.com/Layr-Labs/multiswap-go/pkg/signer"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

// StatusError is a non-2xx reply from the node.
type StatusError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("node returned %d: %s (request %s)", e.StatusCode, e.Message, e.RequestID)
}

// NodeStatus is the reply of GET /health.
type NodeStatus struct {
	Status  string `json:"status"`
	ChainID string `json:"chain_id"`
	Height  uint64 `json:"height"`
}

// ClientConfig holds the configuration for the node client
type ClientConfig struct {
	BaseURL     string
	HTTPClient  *http.Client
	RetryConfig *RetryConfig
	// Signer authenticates Execute calls. Read-only clients may leave it nil.
	Signer *signer.Signer
	Logger *zap.Logger
}

// Client talks to the settlement node over its JSON API.
type Client struct {
	baseURL     string
	http        *http.Client
	retryConfig RetryConfig
	signer      *signer.Signer
	logger      *zap.Logger
}

// NewClient creates a new node client
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		http:        cfg.HTTPClient,
		retryConfig: DefaultRetryConfig,
		signer:      cfg.Signer,
		logger:      cfg.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.RetryConfig != nil {
		c.retryConfig = *cfg.RetryConfig
	}
	if c.retryConfig.MaxAttempts < 1 {
		c.retryConfig.MaxAttempts = 1
	}
	return c, nil
}

// Execute signs and submits a state-changing message. The contract may be an
// address or a label known to the node. An empty Sender or ChainID is
// filled in from the signer and the node; Nonce is always the sender's next
// nonce as reported by the node.
func (c *Client) Execute(ctx context.Context, req node.ExecuteRequest) (*host.Result, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("a signer is required to execute")
	}
	if req.Sender == "" {
		req.Sender = c.signer.Address()
	}
	if req.ChainID == "" {
		status, err := c.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch chain id: %w", err)
		}
		req.ChainID = status.ChainID
	}
	nonce, err := c.Nonce(ctx, req.Sender)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}
	req.Nonce = nonce

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execute request: %w", err)
	}
	sig, err := c.signer.SignMessage(body)
	if err != nil {
		return nil, fmt.Errorf("failed to sign execute request: %w", err)
	}

	var res host.Result
	headers := map[string]string{node.HeaderSignature: sig}
	if err := c.do(ctx, http.MethodPost, "/execute", body, headers, retryRejected, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Nonce returns the next nonce the node accepts from addr.
func (c *Client) Nonce(ctx context.Context, addr string) (uint64, error) {
	q := url.Values{"address": {addr}}
	var rsp node.NonceResponse
	if err := c.do(ctx, http.MethodGet, "/nonce?"+q.Encode(), nil, nil, retryIdempotent, &rsp); err != nil {
		return 0, err
	}
	return rsp.Nonce, nil
}

// Query runs a read-only query and decodes the reply into out.
func (c *Client) Query(ctx context.Context, contract string, msg any, out any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}
	body, err := json.Marshal(node.QueryRequest{Contract: contract, Msg: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal query request: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/query", body, nil, retryIdempotent, out)
}

// Balance returns the bank balance of addr in denom.
func (c *Client) Balance(ctx context.Context, addr, denom string) (types.Uint128, error) {
	q := url.Values{"address": {addr}, "denom": {denom}}
	var coin types.Coin
	if err := c.do(ctx, http.MethodGet, "/balance?"+q.Encode(), nil, nil, retryIdempotent, &coin); err != nil {
		return types.Uint128{}, err
	}
	return coin.Amount, nil
}

// Contracts lists the instantiated contracts.
func (c *Client) Contracts(ctx context.Context) ([]host.Instance, error) {
	var out []host.Instance
	if err := c.do(ctx, http.MethodGet, "/contracts", nil, nil, retryIdempotent, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns the node's chain id and height.
func (c *Client) Status(ctx context.Context) (*NodeStatus, error) {
	var status NodeStatus
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, retryIdempotent, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Health returns nil once the node reports ok.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Status(ctx)
	return err
}

// retryPolicy decides whether a failed attempt is repeated. Status 0 means
// no response was received.
type retryPolicy func(status int) bool

func retryIdempotent(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// retryRejected only retries replies the node sends before running anything.
func retryRejected(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, headers map[string]string, retry retryPolicy, out any) error {
	requestID := uuid.NewString()
	backoff := c.retryConfig.InitialBackoff

	var lastErr error
	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * c.retryConfig.BackoffMultiple)
			if backoff > c.retryConfig.MaxBackoff {
				backoff = c.retryConfig.MaxBackoff
			}
		}

		status, err := c.send(ctx, method, path, body, headers, requestID, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retry(status) {
			return err
		}
		c.logger.Sugar().Debugw("Request failed, retrying",
			"method", method,
			"path", path,
			"attempt", attempt+1,
			"request_id", requestID,
			"error", err,
		)
	}
	return fmt.Errorf("failed %s %s after %d attempts: %w", method, path, c.retryConfig.MaxAttempts, lastErr)
}

// send performs one round trip. The returned status is 0 when no response
// was received.
func (c *Client) send(ctx context.Context, method, path string, body []byte, headers map[string]string, requestID string, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(node.HeaderRequestID, requestID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e node.ErrorResponse
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Message: e.Error, RequestID: e.RequestID}
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}
