package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/luxfi/gasreplay/pkg/near"
)

// DefaultTimeout bounds a single HTTP round trip. broadcast_tx_commit blocks until the
// transaction and its receipts are final, so it is generous.
const DefaultTimeout = 2 * time.Minute

// Client is a NEAR JSON-RPC client.
type Client struct {
	endpoint string
	name     string
	http     *http.Client
	metrics  *Metrics
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithMetrics records every call under the given client name
func WithMetrics(m *Metrics, name string) Option {
	return func(c *Client) {
		c.metrics = m
		c.name = name
	}
}

// New creates a client for the given endpoint URL
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		name:     "default",
		http:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL this client talks to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Call performs one JSON-RPC request and decodes the result into result.
func (c *Client) Call(ctx context.Context, method string, params interface{}, result interface{}) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.observe(c.name, method, start, err)
	}()

	body, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("%s: failed to encode request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", method, err)
	}

	if err := json2.DecodeClientResponse(bytes.NewReader(data), result); err != nil {
		var jerr *json2.Error
		if errors.As(err, &jerr) {
			return newError(method, jerr, data)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, truncate(string(data), 200))
		}
		return fmt.Errorf("%s: failed to decode response: %w", method, err)
	}
	return nil
}

// Status returns the node status; used as a liveness check.
func (c *Client) Status(ctx context.Context) (*near.StatusView, error) {
	var status near.StatusView
	if err := c.Call(ctx, "status", []interface{}{}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// TxRaw fetches a transaction with all receipt outcomes as raw JSON.
func (c *Client) TxRaw(ctx context.Context, txHash, senderID string) (json.RawMessage, error) {
	var raw json.RawMessage
	params := map[string]interface{}{
		"tx_hash":           txHash,
		"sender_account_id": senderID,
	}
	if err := c.Call(ctx, "tx", params, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Tx fetches and decodes a transaction with all receipt outcomes.
func (c *Client) Tx(ctx context.Context, txHash, senderID string) (*near.FinalExecutionOutcome, error) {
	raw, err := c.TxRaw(ctx, txHash, senderID)
	if err != nil {
		return nil, err
	}
	var outcome near.FinalExecutionOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return nil, fmt.Errorf("tx: failed to decode outcome: %w", err)
	}
	return &outcome, nil
}

// Block returns the latest final block.
func (c *Client) Block(ctx context.Context) (*near.BlockView, error) {
	var block near.BlockView
	if err := c.Call(ctx, "block", map[string]string{"finality": near.FinalityFinal}, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// BroadcastTxCommit submits a signed transaction and waits for its final outcome.
// A failed execution is not an error here; inspect the returned outcome.
func (c *Client) BroadcastTxCommit(ctx context.Context, tx *near.SignedTransaction) (*near.FinalExecutionOutcome, error) {
	encoded, err := tx.Base64()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	var outcome near.FinalExecutionOutcome
	if err := c.Call(ctx, "broadcast_tx_commit", []string{encoded}, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// PatchState writes records directly into a sandbox node's state.
func (c *Client) PatchState(ctx context.Context, records []near.StateRecord) error {
	var ignored json.RawMessage
	params := map[string]interface{}{"records": records}
	return c.Call(ctx, "sandbox_patch_state", params, &ignored)
}

// query runs a query request. Older nodes report contract failures inside the result
// instead of as a JSON-RPC error; those are surfaced as *QueryError.
func (c *Client) query(ctx context.Context, params map[string]interface{}, out interface{}) error {
	if _, ok := params["finality"]; !ok {
		params["finality"] = near.FinalityFinal
	}

	var raw json.RawMessage
	if err := c.Call(ctx, "query", params, &raw); err != nil {
		return err
	}

	var envelope struct {
		Error string   `json:"error"`
		Logs  []string `json:"logs"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		return &QueryError{Message: envelope.Error, Logs: envelope.Logs}
	}
	return json.Unmarshal(raw, out)
}

// CallFunction runs a view method with raw argument bytes.
func (c *Client) CallFunction(ctx context.Context, accountID, method string, args []byte) (*near.CallResult, error) {
	if args == nil {
		args = []byte("{}")
	}
	var res near.CallResult
	err := c.query(ctx, map[string]interface{}{
		"request_type": "call_function",
		"account_id":   accountID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(args),
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ViewFunction runs a view method with JSON arguments and decodes the JSON result into
// out. args may be nil, raw []byte, or any JSON-marshalable value; out may be nil.
func (c *Client) ViewFunction(ctx context.Context, accountID, method string, args interface{}, out interface{}) error {
	encoded, err := EncodeArgs(args)
	if err != nil {
		return err
	}
	res, err := c.CallFunction(ctx, accountID, method, encoded)
	if err != nil {
		return err
	}
	if out == nil || len(res.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Result, out); err != nil {
		return fmt.Errorf("%s.%s: failed to decode result: %w", accountID, method, err)
	}
	return nil
}

// ViewAccount returns the account's balance, code hash and storage usage.
func (c *Client) ViewAccount(ctx context.Context, accountID string) (*near.AccountView, error) {
	var acc near.AccountView
	err := c.query(ctx, map[string]interface{}{
		"request_type": "view_account",
		"account_id":   accountID,
	}, &acc)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// ViewCode returns the account's deployed contract code.
func (c *Client) ViewCode(ctx context.Context, accountID string) (*near.ContractCodeView, error) {
	var code near.ContractCodeView
	err := c.query(ctx, map[string]interface{}{
		"request_type": "view_code",
		"account_id":   accountID,
	}, &code)
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// ViewAccessKey returns the nonce and permission of one access key.
func (c *Client) ViewAccessKey(ctx context.Context, accountID, publicKey string) (*near.AccessKeyView, error) {
	var key near.AccessKeyView
	err := c.query(ctx, map[string]interface{}{
		"request_type": "view_access_key",
		"account_id":   accountID,
		"public_key":   publicKey,
	}, &key)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// EncodeArgs turns call arguments into the bytes placed in a function call.
func EncodeArgs(args interface{}) ([]byte, error) {
	switch v := args.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode arguments: %w", err)
		}
		return data, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
