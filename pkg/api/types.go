package api

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/havona/darkbook/pkg/book"
)

// Wire types for the REST surface. Quantities and prices travel as decimal
// strings and are converted to the engine's 1e6 fixed point at this
// boundary.

// PlaceOrderRequest submits a signed order envelope. Signature is the
// 65-byte hex signature over the EIP-712 Place digest of the same fields;
// the submitter is whoever signed, regardless of who delivered the request.
type PlaceOrderRequest struct {
	Commodity  string `json:"commodity"`  // name ("CRUDE_OIL_WTI") or 0x tag
	Quantity   string `json:"quantity"`   // decimal base units, e.g. "50000"
	PriceLimit string `json:"priceLimit"` // decimal USD, e.g. "85.00"
	Side       string `json:"side"`       // "buy" or "sell"
	Nonce      uint64 `json:"nonce"`
	Signature  string `json:"signature"` // 0x-prefixed hex
}

type PlaceOrderResponse struct {
	OrderID uint64 `json:"orderId"`
}

// CancelOrderRequest cancels one of the signer's open orders.
type CancelOrderRequest struct {
	OrderID   uint64 `json:"orderId"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

// OrderInfo is one of the caller's own orders.
type OrderInfo struct {
	ID         uint64 `json:"id"`
	Commodity  string `json:"commodity"`
	Quantity   string `json:"quantity"`
	PriceLimit string `json:"priceLimit"`
	Side       string `json:"side"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"createdAt"`
}

type MatchCountResponse struct {
	Count uint64 `json:"count"`
}

type MatchKeyResponse struct {
	MatchID uint64 `json:"matchId"`
	Key     string `json:"key"` // 0x-prefixed hex; caller decrypts locally
}

type PriceResponse struct {
	Commodity string `json:"commodity"`
	Price     string `json:"price"` // decimal USD
	UpdatedAt int64  `json:"updatedAt"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func orderInfo(o book.Order) OrderInfo {
	return OrderInfo{
		ID:         o.ID,
		Commodity:  o.Commodity.Hex(),
		Quantity:   decimal.New(o.Quantity, -6).String(),
		PriceLimit: decimal.New(o.PriceLimit, -6).String(),
		Side:       o.Side.String(),
		Status:     o.Status.String(),
		CreatedAt:  o.CreatedAt,
	}
}

// parseCommodity accepts either a commodity name or its 0x tag.
func parseCommodity(s string) (common.Hash, error) {
	if len(s) == 66 && s[:2] == "0x" {
		return common.HexToHash(s), nil
	}
	if s == "" {
		return common.Hash{}, fmt.Errorf("empty commodity")
	}
	return book.CommodityTag(s), nil
}

// parseFixed converts a positive decimal string to 1e6 fixed point.
func parseFixed(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("bad decimal %q: %w", s, err)
	}
	scaled := d.Shift(6)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%q has more than 6 decimal places", s)
	}
	if !scaled.IsPositive() {
		return 0, fmt.Errorf("%q is not positive", s)
	}
	return scaled.IntPart(), nil
}

// formatFixed renders 1e6 fixed point as a decimal string.
func formatFixed(v int64) string {
	return decimal.New(v, -6).String()
}

func parseSide(s string) (book.Side, error) {
	switch s {
	case "buy":
		return book.SideBuy, nil
	case "sell":
		return book.SideSell, nil
	}
	return 0, fmt.Errorf("bad side %q", s)
}
