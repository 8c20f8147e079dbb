package book

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// tagTiebreak domain-separates tie-break draws from every vault draw; the
// buy id and running match count are appended so no two draws across calls
// ever share a tag.
var tagTiebreak = []byte("darkbook/tiebreak/")

// match runs one matching pass for a commodity and commits at most one
// match. Resting buys are scanned in submission order; for each still-Open
// buy, every still-Open sell whose limit does not exceed the buy's limit is
// a candidate. A single candidate is taken directly; several are decided by
// an unpredictable draw, so neither submission order nor any party — the
// operator included — can steer the selection.
//
// Execution price is the floor midpoint of the two limits; execution
// quantity is the smaller order's quantity, and both orders are fully
// consumed — the larger side is not re-queued for its remainder. That is the
// source system's behavior, kept deliberately (see DESIGN.md).
//
// The pass has no failure mode: it either seals a match or leaves the book
// as the placement left it. Remaining crossings are picked up by later
// placements; stopping after one match keeps per-call cost inside the
// envelope.
func (e *Engine) match(m *Meter, commodity common.Hash) {
	bk, ok := e.books[commodity]
	if !ok {
		return
	}

	var candidates []uint64
	for _, buyID := range bk.buys {
		m.Tick(1)
		buy := e.orders[buyID]
		if buy.Status != StatusOpen {
			continue
		}

		candidates = candidates[:0]
		for _, sellID := range bk.sells {
			m.Tick(1)
			sell := e.orders[sellID]
			if sell.Status != StatusOpen {
				continue
			}
			if sell.PriceLimit <= buy.PriceLimit {
				candidates = append(candidates, sellID)
			}
		}
		if len(candidates) == 0 {
			continue
		}

		chosen := candidates[0]
		if len(candidates) > 1 {
			chosen = candidates[e.tiebreak(buy.ID, len(candidates))]
		}
		sell := e.orders[chosen]

		price := midpoint(buy.PriceLimit, sell.PriceLimit)
		qty := min64(buy.Quantity, sell.Quantity)

		buy.Status = StatusMatched
		sell.Status = StatusMatched
		e.persistOrder(buy)
		e.persistOrder(sell)
		m.Tick(2 * costStoreWrite)

		now := e.clock.Now().Unix()
		rec := e.vault.seal(buy.ID, sell.ID, price, qty, buy.Trader, sell.Trader, now)
		m.Tick(costSeal)

		e.feed.Publish(Notice{
			Kind:        NoticeTradeMatched,
			Time:        now,
			MatchID:     rec.ID,
			BuyOrderID:  rec.BuyOrderID,
			SellOrderID: rec.SellOrderID,
			Sealed:      rec.Sealed,
		})
		e.log.Infow("trade_matched", "match_id", rec.ID)
		return
	}
}

// tiebreak selects uniformly among n candidates by modulo reduction of an
// unpredictable draw, domain-separated by buy id and match count.
func (e *Engine) tiebreak(buyID uint64, n int) int {
	tag := append(append([]byte(nil), tagTiebreak...), u64be(buyID)...)
	tag = append(tag, u64be(e.vault.Count())...)
	raw := e.rand.Draw(tag, 8)
	return int(binary.BigEndian.Uint64(raw) % uint64(n))
}

// midpoint is the floor average of two prices, overflow-safe.
func midpoint(a, b int64) int64 {
	return a/2 + b/2 + (a%2+b%2)/2
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
