package book

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Scale is the fixed-point scale for quantities (base units) and price
// limits (USD). A price limit of 85_000000 is $85.00; a quantity of
// 50_000_000000 is 50,000 base units.
const Scale = 1_000_000

type Side uint8

const (
	SideBuy  Side = 0
	SideSell Side = 1
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	}
	return "unknown"
}

type Status uint8

const (
	StatusOpen Status = iota
	StatusMatched
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusMatched:
		return "matched"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// CommodityTag derives the fixed tag for a commodity name. The oracle uses
// the same derivation, so a deployment composing both agrees on tags by
// construction.
func CommodityTag(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

// Order is a simple limit order. Quantity and PriceLimit are validated
// positive at creation and never mutated afterwards. Status moves
// Open->Matched (engine only) or Open->Cancelled (owner only), each exactly
// once and irreversibly.
type Order struct {
	ID         uint64         `json:"id"`
	Trader     common.Address `json:"trader"`
	Commodity  common.Hash    `json:"commodity"`
	Quantity   int64          `json:"quantity"`
	PriceLimit int64          `json:"priceLimit"` // max acceptable for a buy, min for a sell
	Side       Side           `json:"side"`
	Status     Status         `json:"status"`
	CreatedAt  int64          `json:"createdAt"` // unix seconds
}

// validate enforces the creation-time invariants. Orders are immutable after
// creation, so this is the only place they are checked.
func (o *Order) validate() error {
	if o.Quantity <= 0 || o.PriceLimit <= 0 {
		return ErrInvalidOrder
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return ErrInvalidOrder
	}
	return nil
}

// MatchRecord is created exactly once per successful match and never
// mutated or deleted. Sealed is the AEAD ciphertext of the full trade detail
// (price, quantity, both trader identities), nonce-prefixed; the symmetric
// key is stored separately and disclosed only to the two counterparties.
type MatchRecord struct {
	ID          uint64 `json:"id"`
	BuyOrderID  uint64 `json:"buyOrderId"`
	SellOrderID uint64 `json:"sellOrderId"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
	Sealed      []byte `json:"sealed"`
	CreatedAt   int64  `json:"createdAt"`
}
