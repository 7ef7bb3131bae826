package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"foundry/internal/services"
)

const defaultRPCTimeout = 30 * time.Second

// rpcClient is a minimal JSON-RPC 2.0 transport for the ledger node.
type rpcClient struct {
	endpoint   string
	httpClient *http.Client
	nextID     atomic.Uint64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func newRPCClient(endpoint string, httpClient *http.Client) *rpcClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRPCTimeout}
	}
	return &rpcClient{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: httpClient,
	}
}

// call issues one JSON-RPC request and decodes the result field into out.
// Transport failures are transient; node-reported errors are returned as
// *rpcError for the caller to classify.
func (c *rpcClient) call(ctx context.Context, method string, params []any, out any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "ledger", method, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "ledger", method, "send request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "ledger", method, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return services.Wrap(services.ErrTransient, "ledger", method,
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return services.Wrap(services.ErrTransient, "ledger", method, "parse response", err)
	}
	if parsed.Error != nil {
		return parsed.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(parsed.Result, out); err != nil {
		return services.Wrap(services.ErrTransient, "ledger", method, "parse result", err)
	}
	return nil
}
