package book

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/havona/darkbook/pkg/host"
)

// PlaceOrder validates the order, attributes it to its true submitter,
// records it Open, and runs one cost-normalized matching pass for its
// commodity. Returns the new order id.
//
// The whole call is guarded by the engine's in-progress flag: a submission
// cannot recursively trigger another mutating call before it completes.
func (e *Engine) PlaceOrder(call host.Call, commodity common.Hash, quantity, priceLimit int64, side Side) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inCall {
		return 0, ErrReentrantCall
	}
	e.inCall = true
	defer func() { e.inCall = false }()

	ord := &Order{
		Trader:     common.Address{},
		Commodity:  commodity,
		Quantity:   quantity,
		PriceLimit: priceLimit,
		Side:       side,
	}
	if err := ord.validate(); err != nil {
		return 0, err
	}

	trader, err := e.ids.TrueSubmitter(call)
	if err != nil {
		return 0, fmt.Errorf("resolve submitter: %w", err)
	}
	ord.Trader = trader

	if bk, ok := e.books[commodity]; ok {
		depth := len(bk.buys)
		if side == SideSell {
			depth = len(bk.sells)
		}
		if depth >= e.cfg.MaxBookDepth {
			return 0, ErrBookFull
		}
	}

	// From here on the invocation mutates state, so its total cost is
	// padded to the fixed envelope whether a match happens or not.
	meter := NewMeter(e.cfg.CostEnvelope)
	defer func() { e.lastCost = meter.Spent() }()
	defer meter.Pad()

	ord.ID = e.nextOrderID
	ord.CreatedAt = e.clock.Now().Unix()
	e.nextOrderID++
	e.kv.Set([]byte(keyOrderCount), u64be(e.nextOrderID))

	e.orders[ord.ID] = ord
	e.index(ord)
	e.persistOrder(ord)
	meter.Tick(costStoreWrite)

	e.match(meter, commodity)

	e.feed.Publish(Notice{
		Kind:      NoticeOrderPlaced,
		Time:      ord.CreatedAt,
		OrderID:   ord.ID,
		Commodity: ord.Commodity,
		Side:      ord.Side.String(),
	})
	e.log.Infow("order_placed", "id", ord.ID)

	return ord.ID, nil
}

// CancelOrder moves an Open order to Cancelled. Only the owning trader may
// cancel, and only while the order is Open; a Matched, Cancelled, or unknown
// order all fail identically with ErrNotCancellable.
func (e *Engine) CancelOrder(call host.Call, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inCall {
		return ErrReentrantCall
	}
	e.inCall = true
	defer func() { e.inCall = false }()

	caller, err := e.ids.TrueSubmitter(call)
	if err != nil {
		return fmt.Errorf("resolve submitter: %w", err)
	}

	ord, ok := e.orders[id]
	if !ok {
		return ErrNotCancellable
	}
	if ord.Trader != caller {
		return ErrNotOwner
	}
	if ord.Status != StatusOpen {
		return ErrNotCancellable
	}

	ord.Status = StatusCancelled
	e.persistOrder(ord)

	e.feed.Publish(Notice{
		Kind:    NoticeOrderCancelled,
		Time:    e.clock.Now().Unix(),
		OrderID: id,
	})
	e.log.Infow("order_cancelled", "id", id)

	return nil
}

// MyOrders returns every order the authenticated caller has ever submitted,
// in submission order. An anonymous caller gets an empty result, not an
// error: probing learns nothing, not even whether it is authenticated.
func (e *Engine) MyOrders(call host.Call) []Order {
	return e.listOrders(call, false)
}

// MyOpenOrders is MyOrders filtered to Open status.
func (e *Engine) MyOpenOrders(call host.Call) []Order {
	return e.listOrders(call, true)
}

func (e *Engine) listOrders(call host.Call, openOnly bool) []Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	caller, ok := e.ids.AuthenticatedCaller(call)
	if !ok {
		return []Order{}
	}

	ids := e.traders[caller]
	out := make([]Order, 0, len(ids))
	for _, id := range ids {
		ord := e.orders[id]
		if openOnly && ord.Status != StatusOpen {
			continue
		}
		out = append(out, *ord)
	}
	return out
}

// MatchKey discloses the symmetric key for a sealed match, to the buyer or
// seller of that match only. Any other caller — anonymous, third party, or
// asking about a match that does not exist — fails with ErrNotCounterparty.
func (e *Engine) MatchKey(call host.Call, matchID uint64) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	caller, ok := e.ids.AuthenticatedCaller(call)
	if !ok {
		return nil, ErrNotCounterparty
	}

	rec, ok := e.vault.record(matchID)
	if !ok {
		return nil, ErrNotCounterparty
	}

	buyer := e.orders[rec.BuyOrderID].Trader
	seller := e.orders[rec.SellOrderID].Trader
	if caller != buyer && caller != seller {
		return nil, ErrNotCounterparty
	}

	key, ok := e.vault.key(matchID)
	if !ok {
		panic(fmt.Errorf("book: match %d has no stored key", matchID))
	}
	return key, nil
}
