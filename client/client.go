// Package client talks to a prized node over JSON-RPC.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"prizechain/core/types"
	"prizechain/native/bounty"
	"prizechain/rpc"
)

const defaultTimeout = 30 * time.Second

// Error is a JSON-RPC error returned by the node.
type Error struct {
	Code    int
	Message string
	Data    *rpc.ErrorData
}

func (e *Error) Error() string {
	if e.Data != nil && e.Data.Detail != "" {
		return fmt.Sprintf("rpc error %d %s: %s", e.Code, e.Message, e.Data.Detail)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Name is the stable error name, empty for protocol errors.
func (e *Error) Name() string {
	if e.Data != nil {
		return e.Data.Name
	}
	return ""
}

// Retryable reports whether resubmitting a rebuilt transaction may succeed.
func (e *Error) Retryable() bool {
	if e.Data == nil {
		return false
	}
	if e.Data.Retryable {
		return true
	}
	kind, ok := bounty.ErrorByName(e.Data.Name)
	return ok && bounty.IsRetryable(kind)
}

// IsRetryable reports whether err is a retryable node error.
func IsRetryable(err error) bool {
	var rpcErr *Error
	return errors.As(err, &rpcErr) && rpcErr.Retryable()
}

// HasName reports whether err is a node error with the given name.
func HasName(err error, name string) bool {
	var rpcErr *Error
	return errors.As(err, &rpcErr) && rpcErr.Name() == name
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// Client is safe for concurrent use.
type Client struct {
	endpoint string
	http     *http.Client
	token    string
	nextID   atomic.Uint64
}

// New returns a client for the node at endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/") + "/",
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call invokes method and decodes the result into out, which may be nil.
func (c *Client) Call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("client: encode %s params: %w", method, err)
		}
		raw = append(raw, encoded)
	}
	id := c.nextID.Add(1)
	body, err := json.Marshal(rpc.RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  raw,
		ID:      json.RawMessage(fmt.Sprintf("%d", id)),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s: %w", method, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read %s response: %w", method, err)
	}
	var decoded rpc.RPCResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("client: %s: http %d: %w", method, resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return toError(decoded.Error)
	}
	if out == nil || len(decoded.Result) == 0 {
		return nil
	}
	return json.Unmarshal(decoded.Result, out)
}

func toError(rpcErr *rpc.RPCError) *Error {
	out := &Error{Code: rpcErr.Code, Message: rpcErr.Message}
	if rpcErr.Data == nil {
		return out
	}
	raw, err := json.Marshal(rpcErr.Data)
	if err != nil {
		return out
	}
	data := new(rpc.ErrorData)
	if json.Unmarshal(raw, data) == nil && data.Name != "" {
		out.Data = data
	}
	return out
}

func (c *Client) Balance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	var out rpc.BalanceResult
	if err := c.Call(ctx, "getBalance", &out, addr.String()); err != nil {
		return 0, err
	}
	return out.Lamports, nil
}

// Account returns nil when the account does not exist.
func (c *Client) Account(ctx context.Context, addr solana.PublicKey) (*rpc.AccountResult, error) {
	var out *rpc.AccountResult
	if err := c.Call(ctx, "getAccountInfo", &out, addr.String()); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Round(ctx context.Context) (*rpc.RoundResult, error) {
	out := new(rpc.RoundResult)
	if err := c.Call(ctx, "getRound", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MinimumBalance(ctx context.Context, space int) (uint64, error) {
	var out uint64
	err := c.Call(ctx, "getMinimumBalance", &out, space)
	return out, err
}

// Receipt returns nil while the transaction is unknown or pending.
func (c *Client) Receipt(ctx context.Context, sig solana.Signature) (*types.Receipt, error) {
	var out *types.Receipt
	if err := c.Call(ctx, "getReceipt", &out, sig.String()); err != nil {
		return nil, err
	}
	return out, nil
}

// SendTransaction submits a signed transaction. Unless skipWait is set the
// node holds the request until the transaction is executed, and a failed
// execution is returned as an *Error.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction, skipWait bool) (*rpc.SendResult, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	params := []interface{}{base64.StdEncoding.EncodeToString(raw)}
	if skipWait {
		params = append(params, rpc.SendOptions{SkipWait: true})
	}
	out := new(rpc.SendResult)
	if err := c.Call(ctx, "sendTransaction", out, params...); err != nil {
		return nil, err
	}
	return out, nil
}

// RequestAirdrop credits addr from the node faucet and returns the new balance.
func (c *Client) RequestAirdrop(ctx context.Context, addr solana.PublicKey, lamports uint64) (uint64, error) {
	var out rpc.BalanceResult
	if err := c.Call(ctx, "requestAirdrop", &out, addr.String(), lamports); err != nil {
		return 0, err
	}
	return out.Lamports, nil
}

func (c *Client) BountyConfig(ctx context.Context) (*rpc.ConfigResult, error) {
	out := new(rpc.ConfigResult)
	if err := c.Call(ctx, "bounty_getConfig", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Bounty(ctx context.Context, id uint64) (*rpc.BountyResult, error) {
	out := new(rpc.BountyResult)
	if err := c.Call(ctx, "bounty_get", out, id); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) BountyAt(ctx context.Context, addr solana.PublicKey) (*rpc.BountyResult, error) {
	out := new(rpc.BountyResult)
	if err := c.Call(ctx, "bounty_get", out, addr.String()); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListBounties(ctx context.Context, filter rpc.ListParams) ([]*rpc.BountyResult, error) {
	var out []*rpc.BountyResult
	if err := c.Call(ctx, "bounty_list", &out, filter); err != nil {
		return nil, err
	}
	return out, nil
}

// DeriveBountyAddress asks the node for the record address of id.
func (c *Client) DeriveBountyAddress(ctx context.Context, id uint64) (solana.PublicKey, error) {
	var out rpc.AddressResult
	if err := c.Call(ctx, "bounty_deriveAddress", &out, id); err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBase58(out.Address)
}
