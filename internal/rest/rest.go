// Package rest implements the typed REST client: one HTTP client, routed
// through the Auth/Retry/CircuitBreaker/RateLimit middleware stack,
// exposing public-data, account, trading, and wallet endpoints as typed
// Go methods. Requests and responses use a venue-neutral JSON body and a
// {code, message} error envelope rather than any one exchange's own
// wire format.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"xchclient/internal/dto"
	"xchclient/internal/net/client"
	"xchclient/internal/net/ratelimit"
	"xchclient/internal/xerrors"
)

// Client is the typed REST surface. Transport is expected to be built
// via client.Chain so every call passes through auth/retry/circuit/rate
// limiting.
type Client struct {
	http    *http.Client
	baseURL string
}

// New constructs a Client. transport should come from client.Chain.
func New(baseURL string, transport http.RoundTripper) *Client {
	return &Client{
		http:    &http.Client{Transport: transport},
		baseURL: baseURL,
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}, scopes ...ratelimit.Scope) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return xerrors.Validation(path, "encode request body: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return xerrors.New(path, xerrors.KindValidation, err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(scopes) > 0 {
		req = req.WithContext(client.WithScopes(req.Context(), scopes...))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var kindErr *xerrors.Error
		if errors.As(err, &kindErr) {
			return kindErr
		}
		return xerrors.Transient(path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return xerrors.Transient(path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return xerrors.Authentication(path, fmt.Errorf("HTTP 401"))
	}
	if resp.StatusCode >= 400 {
		var env dto.ErrorEnvelope
		if jsonErr := json.Unmarshal(respBody, &env); jsonErr == nil && env.Code != "" {
			return xerrors.Domain(path, resp.StatusCode, env.Code, env.Message)
		}
		return xerrors.Domain(path, resp.StatusCode, "", string(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return xerrors.New(path, xerrors.KindValidation, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// Authorize exchanges a (login, password) credential for a bearer token.
// It is the one REST call the facade issues over a transport that
// excludes AuthTransport, since minting the first token cannot itself
// depend on having one.
func (c *Client) Authorize(ctx context.Context, login, password string) (*dto.AuthToken, error) {
	var tok dto.AuthToken
	req := dto.AuthRequest{Login: login, Password: password}
	if err := c.do(ctx, http.MethodPost, "/authorize", nil, req, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// GetTicker fetches a public ticker snapshot.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*dto.Ticker, error) {
	var t dto.Ticker
	if err := c.do(ctx, http.MethodGet, "/v1/public/ticker", url.Values{"symbol": {symbol}}, nil, &t, ratelimit.PublicData); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetOrderBook fetches a public L2 depth snapshot.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int) (*dto.OrderBookSnapshot, error) {
	q := url.Values{"symbol": {symbol}}
	if depth > 0 {
		q.Set("depth", fmt.Sprintf("%d", depth))
	}
	var snap dto.OrderBookSnapshot
	if err := c.do(ctx, http.MethodGet, "/v1/public/depth", q, nil, &snap, ratelimit.PublicData); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetRecentTrades fetches the public trade tape for a symbol.
func (c *Client) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]dto.Trade, error) {
	q := url.Values{"symbol": {symbol}}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	var trades []dto.Trade
	if err := c.do(ctx, http.MethodGet, "/v1/public/trades", q, nil, &trades, ratelimit.PublicData); err != nil {
		return nil, err
	}
	return trades, nil
}

// GetBalances fetches the authenticated account's asset balances.
func (c *Client) GetBalances(ctx context.Context) ([]dto.Balance, error) {
	var balances []dto.Balance
	if err := c.do(ctx, http.MethodGet, "/v1/account/balances", nil, nil, &balances, ratelimit.Global); err != nil {
		return nil, err
	}
	return balances, nil
}

// GetFeeTier fetches the authenticated account's current maker/taker fees.
func (c *Client) GetFeeTier(ctx context.Context) (*dto.FeeTier, error) {
	var tier dto.FeeTier
	if err := c.do(ctx, http.MethodGet, "/v1/account/fee-tier", nil, nil, &tier, ratelimit.Global); err != nil {
		return nil, err
	}
	return &tier, nil
}

// PlaceOrder submits a new order.
func (c *Client) PlaceOrder(ctx context.Context, req dto.OrderRequest) (*dto.Order, error) {
	var order dto.Order
	if err := c.do(ctx, http.MethodPost, "/v1/orders", nil, req, &order, ratelimit.Trading); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder fetches the current state of a single order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*dto.Order, error) {
	var order dto.Order
	path := "/v1/orders/" + url.PathEscape(orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &order, ratelimit.ListOrders); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder cancels a single order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := "/v1/orders/" + url.PathEscape(orderID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil, ratelimit.Trading)
}

// CancelAllOrders cancels every open order, optionally scoped to symbol
// (empty string cancels across all symbols).
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	return c.do(ctx, http.MethodDelete, "/v1/orders", q, nil, nil, ratelimit.Trading)
}

// ListOrders fetches one cursor-paginated page of historical orders.
func (c *Client) ListOrders(ctx context.Context, symbol, cursor string, limit int) (*dto.Page[dto.Order], error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	var page dto.Page[dto.Order]
	if err := c.do(ctx, http.MethodGet, "/v1/orders", q, nil, &page, ratelimit.ListOrders); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetDepositAddress fetches (or provisions) a deposit address for asset
// on the given network.
func (c *Client) GetDepositAddress(ctx context.Context, asset, network string) (*dto.DepositAddress, error) {
	q := url.Values{"asset": {asset}, "network": {network}}
	var addr dto.DepositAddress
	if err := c.do(ctx, http.MethodGet, "/v1/wallet/deposit-address", q, nil, &addr, ratelimit.Global); err != nil {
		return nil, err
	}
	return &addr, nil
}

// ListWithdrawalAddresses fetches the account's registered withdrawal
// addresses.
func (c *Client) ListWithdrawalAddresses(ctx context.Context, asset string) ([]dto.WithdrawalAddress, error) {
	q := url.Values{}
	if asset != "" {
		q.Set("asset", asset)
	}
	var addrs []dto.WithdrawalAddress
	if err := c.do(ctx, http.MethodGet, "/v1/wallet/withdrawal-addresses", q, nil, &addrs, ratelimit.Global); err != nil {
		return nil, err
	}
	return addrs, nil
}

// Withdraw submits a withdrawal to a previously registered address.
func (c *Client) Withdraw(ctx context.Context, req dto.WithdrawalRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/wallet/withdraw", nil, req, nil, ratelimit.Trading)
}

// ListBankAccounts fetches the account's registered fiat bank accounts
// (used for BRL withdrawal, per the exchange's fiat rails).
func (c *Client) ListBankAccounts(ctx context.Context) ([]dto.BankAccount, error) {
	var accounts []dto.BankAccount
	if err := c.do(ctx, http.MethodGet, "/v1/wallet/bank-accounts", nil, nil, &accounts, ratelimit.Global); err != nil {
		return nil, err
	}
	return accounts, nil
}
