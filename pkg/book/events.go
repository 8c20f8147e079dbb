package book

import (
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/havona/darkbook/pkg/host"
)

// Notices are the engine's only public output: occurrence is visible to
// everyone, content is not. A trade-matched notice names the match and order
// ids and carries the opaque ciphertext, nothing else — price, quantity and
// identities stay sealed.

type NoticeKind string

const (
	NoticeOrderPlaced    NoticeKind = "order-placed"
	NoticeOrderCancelled NoticeKind = "order-cancelled"
	NoticeTradeMatched   NoticeKind = "trade-matched"
)

type Notice struct {
	Seq  uint64     `json:"seq"`
	Kind NoticeKind `json:"kind"`
	Time int64      `json:"time"`

	// order-placed and order-cancelled
	OrderID uint64 `json:"orderId,omitempty"`
	// order-placed only
	Commodity common.Hash `json:"commodity,omitempty"`
	Side      string      `json:"side,omitempty"`

	// trade-matched
	MatchID     uint64 `json:"matchId,omitempty"`
	BuyOrderID  uint64 `json:"buyOrderId,omitempty"`
	SellOrderID uint64 `json:"sellOrderId,omitempty"`
	Sealed      []byte `json:"sealed,omitempty"`
}

// Feed is the append-only notice log with live fanout. Publishing never
// blocks: a subscriber that falls behind misses deliveries but can always
// re-read the log.
type Feed struct {
	mu   sync.RWMutex
	kv   host.KV
	log  []Notice
	next uint64
	subs map[uint64]chan Notice
	sub  uint64
}

func NewFeed(kv host.KV) *Feed {
	f := &Feed{kv: kv, subs: make(map[uint64]chan Notice)}
	f.reload()
	return f
}

func (f *Feed) reload() {
	f.kv.Ascend([]byte(prefixNotice), func(_, value []byte) bool {
		var n Notice
		if err := json.Unmarshal(value, &n); err != nil {
			return true
		}
		f.log = append(f.log, n)
		f.next = n.Seq + 1
		return true
	})
}

// Publish assigns the next sequence number, persists the notice, and fans it
// out to live subscribers.
func (f *Feed) Publish(n Notice) Notice {
	f.mu.Lock()
	n.Seq = f.next
	f.next++
	f.log = append(f.log, n)

	data, err := json.Marshal(n)
	if err != nil {
		panic(err) // Notice is a plain struct; this cannot fail
	}
	f.kv.Set(noticeKey(n.Seq), data)

	for _, ch := range f.subs {
		select {
		case ch <- n:
		default:
		}
	}
	f.mu.Unlock()
	return n
}

// All returns the full notice log in publication order.
func (f *Feed) All() []Notice {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Notice, len(f.log))
	copy(out, f.log)
	return out
}

// Subscribe returns a live notice channel and its cancel function.
func (f *Feed) Subscribe() (<-chan Notice, func()) {
	f.mu.Lock()
	id := f.sub
	f.sub++
	ch := make(chan Notice, 64)
	f.subs[id] = ch
	f.mu.Unlock()

	return ch, func() {
		f.mu.Lock()
		if c, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(c)
		}
		f.mu.Unlock()
	}
}
