// Package dto holds the wire-format structs exchanged with the exchange's
// REST and WebSocket APIs. These stand in for generated OpenAPI DTOs:
// hand-written here, they follow the same string-encoded-decimal
// convention a generated client would use.
package dto

import (
	"time"

	"xchclient/internal/decimal"
)

// AuthRequest is the body of POST /authorize, exchanging a login/password
// pair for a bearer token and its expiration.
type AuthRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// AuthToken is the response body of POST /authorize.
type AuthToken struct {
	AccessToken string `json:"access_token"`
	Expiration  int64  `json:"expiration"` // seconds until expiry, relative to the response
}

// Ticker is a public market snapshot for one symbol.
type Ticker struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Last      decimal.Decimal `json:"last"`
	Volume24h decimal.Decimal `json:"volume_24h"`
	Timestamp time.Time       `json:"timestamp"`
}

// OrderBookLevel is one [price, quantity] row of a REST depth snapshot.
type OrderBookLevel struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// OrderBookSnapshot is the REST depth response used to seed or
// re-baseline an orderbook.Book.
type OrderBookSnapshot struct {
	Symbol   string           `json:"symbol"`
	UpdateID int64            `json:"update_id"`
	Bids     []OrderBookLevel `json:"bids"`
	Asks     []OrderBookLevel `json:"asks"`
}

// Trade is a single executed trade, from either the public trade feed or
// an account's own fill history.
type Trade struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Qty       decimal.Decimal `json:"qty"`
	Side      string          `json:"side"` // "buy" or "sell"
	Timestamp time.Time       `json:"timestamp"`
}

// OrderStatus enumerates the order lifecycle states the facade tracks.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

// Order is an account order, as returned by placement, query, and
// cancellation endpoints.
type Order struct {
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Type          string          `json:"type"` // "limit", "market"
	Price         decimal.Decimal `json:"price,omitempty"`
	Qty           decimal.Decimal `json:"qty"`
	FilledQty     decimal.Decimal `json:"filled_qty"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OrderRequest is the payload for placing a new order.
type OrderRequest struct {
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	Price         decimal.Decimal `json:"price,omitempty"`
	Qty           decimal.Decimal `json:"qty"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Async         bool            `json:"async,omitempty"`
}

// Balance is one asset's available/locked balance.
type Balance struct {
	Asset     string          `json:"asset"`
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
}

// FeeTier is the account's current maker/taker fee rate.
type FeeTier struct {
	Tier   string          `json:"tier"`
	Maker  decimal.Decimal `json:"maker"`
	Taker  decimal.Decimal `json:"taker"`
	Volume decimal.Decimal `json:"volume_30d"`
}

// DepositAddress is a per-network deposit address for an asset.
type DepositAddress struct {
	Asset   string `json:"asset"`
	Network string `json:"network"`
	Address string `json:"address"`
	Tag     string `json:"tag,omitempty"`
}

// WithdrawalAddress is a registered, pre-approved withdrawal destination.
type WithdrawalAddress struct {
	ID      string `json:"id"`
	Asset   string `json:"asset"`
	Network string `json:"network"`
	Address string `json:"address"`
	Label   string `json:"label,omitempty"`
}

// WithdrawalRequest submits a withdrawal to a registered address.
type WithdrawalRequest struct {
	Asset             string          `json:"asset"`
	Network           string          `json:"network"`
	Amount            decimal.Decimal `json:"amount"`
	WithdrawalAddrID  string          `json:"withdrawal_address_id"`
	BankAccountID     string          `json:"bank_account_id,omitempty"` // BRL fiat withdrawal
}

// BankAccount is a registered fiat (e.g. BRL) withdrawal destination.
type BankAccount struct {
	ID         string `json:"id"`
	BankCode   string `json:"bank_code"`
	Branch     string `json:"branch"`
	Account    string `json:"account"`
	HolderName string `json:"holder_name"`
}

// Page is a generic cursor-paginated envelope; T is the element type
// (Order, Trade, ...). NextCursor is empty when this is the last page.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ErrorEnvelope is the exchange's standard error response body.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
