package book

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/havona/darkbook/params"
	"github.com/havona/darkbook/pkg/host"
	"github.com/havona/darkbook/pkg/util"
)

// sideIndex holds the two per-commodity resting sequences. Entries are
// append-only in submission order and never removed: a Matched or Cancelled
// order is skipped during scans (soft deletion), which keeps scans
// deterministic and reproducible.
type sideIndex struct {
	buys  []uint64
	sells []uint64
}

// Engine is the confidential order book: ledger, matching pass, match vault
// and cost normalizer behind one serialized front door. Every invocation
// runs to completion under one lock — at any observation point the state
// reflects fully-applied operations only.
type Engine struct {
	mu     sync.Mutex
	inCall bool // non-reentrancy discipline around mutating calls

	log   *zap.SugaredLogger
	ids   host.IdentityResolver
	rand  host.RandomSource
	kv    host.KV
	clock util.Clock
	cfg   params.Engine

	orders      map[uint64]*Order
	books       map[common.Hash]*sideIndex
	traders     map[common.Address][]uint64
	nextOrderID uint64
	lastCost    uint64

	vault *Vault
	feed  *Feed
}

// NewEngine builds the engine over the injected host capabilities and
// reloads any state already in the store. Counters initialize at
// construction and are never reset.
func NewEngine(cfg params.Engine, ids host.IdentityResolver, rand host.RandomSource, kv host.KV, clock util.Clock, log *zap.SugaredLogger) *Engine {
	e := &Engine{
		log:     log,
		ids:     ids,
		rand:    rand,
		kv:      kv,
		clock:   clock,
		cfg:     cfg,
		orders:  make(map[uint64]*Order),
		books:   make(map[common.Hash]*sideIndex),
		traders: make(map[common.Address][]uint64),
		vault:   NewVault(rand, kv),
		feed:    NewFeed(kv),
	}
	e.reload()
	return e
}

// reload rebuilds the in-memory ledger from the store. Submission order
// equals id order and the key encoding is big-endian, so an ascending scan
// reproduces every index exactly, soft-deleted entries included.
func (e *Engine) reload() {
	if raw, ok := e.kv.Get([]byte(keyOrderCount)); ok && len(raw) == 8 {
		e.nextOrderID = binary.BigEndian.Uint64(raw)
	}
	e.kv.Ascend([]byte(prefixOrder), func(_, value []byte) bool {
		var ord Order
		if err := json.Unmarshal(value, &ord); err != nil {
			panic(fmt.Errorf("book: corrupt order record: %w", err))
		}
		e.orders[ord.ID] = &ord
		e.index(&ord)
		return true
	})
	if n := len(e.orders); n > 0 {
		e.log.Infow("ledger_reloaded", "orders", n, "matches", e.vault.Count())
	}
}

// index appends an order to its commodity and trader sequences.
func (e *Engine) index(ord *Order) {
	bk, ok := e.books[ord.Commodity]
	if !ok {
		bk = &sideIndex{}
		e.books[ord.Commodity] = bk
	}
	if ord.Side == SideBuy {
		bk.buys = append(bk.buys, ord.ID)
	} else {
		bk.sells = append(bk.sells, ord.ID)
	}
	e.traders[ord.Trader] = append(e.traders[ord.Trader], ord.ID)
}

func (e *Engine) persistOrder(ord *Order) {
	data, err := json.Marshal(ord)
	if err != nil {
		panic(err)
	}
	e.kv.Set(orderKey(ord.ID), data)
}

// MatchCount reports how many matches have been sealed. Occurrence is
// public; content is not.
func (e *Engine) MatchCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vault.Count()
}

// Feed exposes the public notice log and its live subscription interface.
func (e *Engine) Feed() *Feed {
	return e.feed
}

// LastPlaceCost reports the metered cost of the most recent committed
// placement. After padding this always equals the configured envelope; the
// accessor exists so a metered environment can verify that matched and
// rested placements are indistinguishable by cost.
func (e *Engine) LastPlaceCost() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCost
}
