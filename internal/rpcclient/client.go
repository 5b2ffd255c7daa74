// Package rpcclient is the JSON-RPC client used by workers, the lease
// monitor and ktsctl to talk to a control node.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/me/controlnode/pkg/model"
)

// Client calls the control node's JSON-RPC endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	nextID     atomic.Int64
}

// New creates a client for the JSON-RPC endpoint at url, with connection pooling.
func New(url string, logger *slog.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		logger: logger.With("component", "rpcclient"),
	}
}

// URL returns the endpoint this client talks to.
func (c *Client) URL() string {
	return c.url
}

type request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type response struct {
	ID     json.RawMessage       `json:"id"`
	Result json.RawMessage       `json:"result"`
	Error  *model.SchedulerError `json:"error"`
}

// Call invokes method with positional args and decodes the result into
// result, which may be nil. An error reply is returned as a
// *model.SchedulerError so callers can match it with errors.Is.
func (c *Client) Call(ctx context.Context, method string, result any, args ...any) error {
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(request{ID: c.nextID.Add(1), Method: method, Params: args})
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("rpc call", "method", method, "body", string(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d: %s", method, resp.StatusCode, respBody)
	}

	c.logger.Debug("rpc reply", "method", method, "body", string(respBody))

	var reply response
	if err := json.Unmarshal(respBody, &reply); err != nil {
		return fmt.Errorf("%s: parse response: %w", method, err)
	}
	if reply.Error != nil {
		return reply.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(reply.Result, result); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}
