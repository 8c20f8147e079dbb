package book

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/havona/darkbook/params"
	"github.com/havona/darkbook/pkg/host"
)

var (
	crude = CommodityTag("CRUDE_OIL_WTI")
	wheat = CommodityTag("WHEAT_USD")

	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	carol = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

type stubClock struct {
	now int64
}

func (c *stubClock) Now() time.Time                       { return time.Unix(c.now, 0) }
func (c *stubClock) After(time.Duration) <-chan time.Time { return nil }

func as(addr common.Address) host.Call { return host.AuthenticatedCall{Submitter: addr} }

func testConfig() params.Engine {
	return params.Engine{MaxBookDepth: 64, CostEnvelope: 16384}
}

func newTestEngine(t *testing.T, seed string) (*Engine, *host.MemKV) {
	t.Helper()
	kv := host.NewMemKV()
	e := NewEngine(testConfig(), host.StaticResolver{}, host.NewSeededSource([]byte(seed)), kv, &stubClock{now: 1700000000}, zap.NewNop().Sugar())
	return e, kv
}

func mustPlace(t *testing.T, e *Engine, trader common.Address, commodity common.Hash, qty, price int64, side Side) uint64 {
	t.Helper()
	id, err := e.PlaceOrder(as(trader), commodity, qty, price, side)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	return id
}

func TestPlaceOrderIDsMonotonic(t *testing.T) {
	e, _ := newTestEngine(t, "ids")

	for want := uint64(0); want < 5; want++ {
		id := mustPlace(t, e, alice, crude, 100*Scale, 85*Scale, SideBuy)
		if id != want {
			t.Fatalf("order id = %d, want %d", id, want)
		}
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	tests := []struct {
		name  string
		qty   int64
		price int64
		side  Side
	}{
		{"zero quantity", 0, 85 * Scale, SideBuy},
		{"zero price", 100 * Scale, 0, SideSell},
		{"negative quantity", -1, 85 * Scale, SideBuy},
		{"negative price", 100 * Scale, -85, SideSell},
		{"bad side", 100 * Scale, 85 * Scale, Side(7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, "validation")
			_, err := e.PlaceOrder(as(alice), crude, tt.qty, tt.price, tt.side)
			if !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("err = %v, want ErrInvalidOrder", err)
			}
			if got := len(e.MyOrders(as(alice))); got != 0 {
				t.Fatalf("rejected order left %d ledger entries", got)
			}
			if n := e.MatchCount(); n != 0 {
				t.Fatalf("rejected order produced %d matches", n)
			}
			if n := len(e.Feed().All()); n != 0 {
				t.Fatalf("rejected order published %d notices", n)
			}
		})
	}
}

func TestUnsignedWriteRejected(t *testing.T) {
	e, _ := newTestEngine(t, "unsigned")

	if _, err := e.PlaceOrder(host.AnonymousCall{}, crude, Scale, Scale, SideBuy); !errors.Is(err, host.ErrUnsigned) {
		t.Fatalf("PlaceOrder err = %v, want ErrUnsigned", err)
	}
	if err := e.CancelOrder(host.AnonymousCall{}, 0); !errors.Is(err, host.ErrUnsigned) {
		t.Fatalf("CancelOrder err = %v, want ErrUnsigned", err)
	}
}

func TestCrossingOrdersMatchAtMidpoint(t *testing.T) {
	e, _ := newTestEngine(t, "midpoint")

	buyID := mustPlace(t, e, alice, crude, 100*Scale, 85*Scale, SideBuy)
	sellID := mustPlace(t, e, bob, crude, 60*Scale, 82*Scale, SideSell)

	if n := e.MatchCount(); n != 1 {
		t.Fatalf("matchCount = %d, want 1", n)
	}

	rec, ok := e.vault.record(0)
	if !ok {
		t.Fatal("match record 0 missing")
	}
	if rec.BuyOrderID != buyID || rec.SellOrderID != sellID {
		t.Fatalf("record pairs %d/%d, want %d/%d", rec.BuyOrderID, rec.SellOrderID, buyID, sellID)
	}
	if want := int64(83_500000); rec.Price != want {
		t.Fatalf("execution price = %d, want %d", rec.Price, want)
	}
	if want := int64(60 * Scale); rec.Quantity != want {
		t.Fatalf("execution quantity = %d, want %d", rec.Quantity, want)
	}

	// Both orders fully consumed: the larger buy is not re-queued for its
	// 40-unit remainder.
	for _, id := range []uint64{buyID, sellID} {
		if st := e.orders[id].Status; st != StatusMatched {
			t.Fatalf("order %d status = %v, want matched", id, st)
		}
	}
}

func TestNonCrossingOrdersRest(t *testing.T) {
	e, _ := newTestEngine(t, "noncrossing")

	buyID := mustPlace(t, e, alice, crude, 100*Scale, 80*Scale, SideBuy)
	sellID := mustPlace(t, e, bob, crude, 100*Scale, 85*Scale, SideSell)

	if n := e.MatchCount(); n != 0 {
		t.Fatalf("matchCount = %d, want 0", n)
	}
	for _, id := range []uint64{buyID, sellID} {
		if st := e.orders[id].Status; st != StatusOpen {
			t.Fatalf("order %d status = %v, want open", id, st)
		}
	}
}

func TestCommoditiesDoNotCross(t *testing.T) {
	e, _ := newTestEngine(t, "commodities")

	mustPlace(t, e, alice, crude, 100*Scale, 85*Scale, SideBuy)
	mustPlace(t, e, bob, wheat, 100*Scale, 82*Scale, SideSell)

	if n := e.MatchCount(); n != 0 {
		t.Fatalf("orders in different commodities matched: matchCount = %d", n)
	}
}

func TestOneMatchPerInvocation(t *testing.T) {
	e, _ := newTestEngine(t, "onematch")

	b1 := mustPlace(t, e, alice, crude, 100*Scale, 85*Scale, SideBuy)
	b2 := mustPlace(t, e, carol, crude, 100*Scale, 86*Scale, SideBuy)
	mustPlace(t, e, bob, crude, 100*Scale, 80*Scale, SideSell)

	if n := e.MatchCount(); n != 1 {
		t.Fatalf("matchCount = %d, want exactly 1", n)
	}
	// First buy in submission order wins; the other stays on the book for a
	// later placement to pick up.
	if st := e.orders[b1].Status; st != StatusMatched {
		t.Fatalf("first buy status = %v, want matched", st)
	}
	if st := e.orders[b2].Status; st != StatusOpen {
		t.Fatalf("second buy status = %v, want open", st)
	}
}

func TestCancelSemantics(t *testing.T) {
	t.Run("owner cancels open order", func(t *testing.T) {
		e, _ := newTestEngine(t, "cancel")
		id := mustPlace(t, e, alice, crude, Scale, Scale, SideBuy)
		if err := e.CancelOrder(as(alice), id); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if st := e.orders[id].Status; st != StatusCancelled {
			t.Fatalf("status = %v, want cancelled", st)
		}
	})

	t.Run("non-owner rejected", func(t *testing.T) {
		e, _ := newTestEngine(t, "cancel")
		id := mustPlace(t, e, alice, crude, Scale, Scale, SideBuy)
		if err := e.CancelOrder(as(bob), id); !errors.Is(err, ErrNotOwner) {
			t.Fatalf("err = %v, want ErrNotOwner", err)
		}
	})

	t.Run("matched order not cancellable", func(t *testing.T) {
		e, _ := newTestEngine(t, "cancel")
		id := mustPlace(t, e, alice, crude, Scale, 85*Scale, SideBuy)
		mustPlace(t, e, bob, crude, Scale, 82*Scale, SideSell)
		if err := e.CancelOrder(as(alice), id); !errors.Is(err, ErrNotCancellable) {
			t.Fatalf("err = %v, want ErrNotCancellable", err)
		}
	})

	t.Run("double cancel rejected", func(t *testing.T) {
		e, _ := newTestEngine(t, "cancel")
		id := mustPlace(t, e, alice, crude, Scale, Scale, SideBuy)
		if err := e.CancelOrder(as(alice), id); err != nil {
			t.Fatalf("first cancel: %v", err)
		}
		if err := e.CancelOrder(as(alice), id); !errors.Is(err, ErrNotCancellable) {
			t.Fatalf("err = %v, want ErrNotCancellable", err)
		}
	})

	t.Run("unknown id reads like not cancellable", func(t *testing.T) {
		e, _ := newTestEngine(t, "cancel")
		if err := e.CancelOrder(as(alice), 999); !errors.Is(err, ErrNotCancellable) {
			t.Fatalf("err = %v, want ErrNotCancellable", err)
		}
	})
}

func TestCancelledOrderNeverMatches(t *testing.T) {
	e, _ := newTestEngine(t, "cancelled-no-match")

	sellID := mustPlace(t, e, bob, crude, Scale, 82*Scale, SideSell)
	if err := e.CancelOrder(as(bob), sellID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	mustPlace(t, e, alice, crude, Scale, 85*Scale, SideBuy)
	if n := e.MatchCount(); n != 0 {
		t.Fatalf("cancelled order matched: matchCount = %d", n)
	}
}

func TestListingsScopedToOwner(t *testing.T) {
	e, _ := newTestEngine(t, "listings")

	a1 := mustPlace(t, e, alice, crude, Scale, 10*Scale, SideBuy)
	mustPlace(t, e, bob, crude, Scale, 9*Scale, SideBuy)
	a2 := mustPlace(t, e, alice, wheat, Scale, 11*Scale, SideSell)
	if err := e.CancelOrder(as(alice), a1); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	all := e.MyOrders(as(alice))
	if len(all) != 2 || all[0].ID != a1 || all[1].ID != a2 {
		t.Fatalf("MyOrders(alice) = %+v, want ids [%d %d]", all, a1, a2)
	}
	for _, o := range all {
		if o.Trader != alice {
			t.Fatalf("listing leaked order %d owned by %s", o.ID, o.Trader.Hex())
		}
	}

	open := e.MyOpenOrders(as(alice))
	if len(open) != 1 || open[0].ID != a2 {
		t.Fatalf("MyOpenOrders(alice) = %+v, want only id %d", open, a2)
	}
}

func TestAnonymousReadsComeBackEmpty(t *testing.T) {
	e, _ := newTestEngine(t, "anonymous")
	mustPlace(t, e, alice, crude, Scale, 10*Scale, SideBuy)

	if got := e.MyOrders(host.AnonymousCall{}); len(got) != 0 {
		t.Fatalf("anonymous MyOrders returned %d orders", len(got))
	}
	if got := e.MyOpenOrders(host.AnonymousCall{}); len(got) != 0 {
		t.Fatalf("anonymous MyOpenOrders returned %d orders", len(got))
	}
}

func TestMatchKeyGating(t *testing.T) {
	e, _ := newTestEngine(t, "matchkey")

	mustPlace(t, e, alice, crude, Scale, 85*Scale, SideBuy)
	mustPlace(t, e, bob, crude, Scale, 82*Scale, SideSell)
	if n := e.MatchCount(); n != 1 {
		t.Fatalf("matchCount = %d, want 1", n)
	}

	buyerKey, err := e.MatchKey(as(alice), 0)
	if err != nil {
		t.Fatalf("buyer MatchKey: %v", err)
	}
	sellerKey, err := e.MatchKey(as(bob), 0)
	if err != nil {
		t.Fatalf("seller MatchKey: %v", err)
	}
	if !bytes.Equal(buyerKey, sellerKey) {
		t.Fatal("buyer and seller received different keys")
	}

	if _, err := e.MatchKey(as(carol), 0); !errors.Is(err, ErrNotCounterparty) {
		t.Fatalf("third party err = %v, want ErrNotCounterparty", err)
	}
	if _, err := e.MatchKey(host.AnonymousCall{}, 0); !errors.Is(err, ErrNotCounterparty) {
		t.Fatalf("anonymous err = %v, want ErrNotCounterparty", err)
	}
	if _, err := e.MatchKey(as(alice), 42); !errors.Is(err, ErrNotCounterparty) {
		t.Fatalf("unknown match err = %v, want ErrNotCounterparty", err)
	}
}

func TestTiebreakRoughlyUniform(t *testing.T) {
	const trials = 600

	counts := make(map[uint64]int)
	for i := 0; i < trials; i++ {
		e, _ := newTestEngine(t, string(rune(i))+"tiebreak")

		s1 := mustPlace(t, e, bob, crude, 10*Scale, 82*Scale, SideSell)
		s2 := mustPlace(t, e, bob, crude, 10*Scale, 83*Scale, SideSell)
		s3 := mustPlace(t, e, bob, crude, 10*Scale, 84*Scale, SideSell)
		mustPlace(t, e, alice, crude, 10*Scale, 85*Scale, SideBuy)

		rec, ok := e.vault.record(0)
		if !ok {
			t.Fatal("no match sealed")
		}
		switch rec.SellOrderID {
		case s1, s2, s3:
			counts[rec.SellOrderID]++
		default:
			t.Fatalf("matched unexpected sell %d", rec.SellOrderID)
		}
	}

	if len(counts) != 3 {
		t.Fatalf("only %d of 3 candidates ever selected: %v", len(counts), counts)
	}
	for id, n := range counts {
		// Binomial(600, 1/3): anything below 150 is far outside noise and
		// would indicate bias toward submission order.
		if n < 150 {
			t.Fatalf("candidate %d selected %d/%d times, selection is biased: %v", id, n, trials, counts)
		}
	}
}

func TestPlacementCostConstant(t *testing.T) {
	e, _ := newTestEngine(t, "cost")

	mustPlace(t, e, alice, crude, Scale, 80*Scale, SideBuy) // rests
	rested := e.LastPlaceCost()

	mustPlace(t, e, bob, crude, Scale, 75*Scale, SideSell) // matches the buy
	matched := e.LastPlaceCost()

	if e.MatchCount() != 1 {
		t.Fatal("expected the second placement to match")
	}
	if rested != matched {
		t.Fatalf("cost differs by outcome: rested=%d matched=%d", rested, matched)
	}
	if rested != testConfig().CostEnvelope {
		t.Fatalf("cost = %d, want the envelope %d", rested, testConfig().CostEnvelope)
	}
}

func TestReentrantCallRejected(t *testing.T) {
	e, _ := newTestEngine(t, "reentrancy")

	e.inCall = true
	if _, err := e.PlaceOrder(as(alice), crude, Scale, Scale, SideBuy); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("PlaceOrder err = %v, want ErrReentrantCall", err)
	}
	if err := e.CancelOrder(as(alice), 0); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("CancelOrder err = %v, want ErrReentrantCall", err)
	}
	e.inCall = false

	// The guard releases on every exit path; normal operation resumes.
	if _, err := e.PlaceOrder(as(alice), crude, Scale, Scale, SideBuy); err != nil {
		t.Fatalf("PlaceOrder after guard release: %v", err)
	}
}

func TestBookDepthCap(t *testing.T) {
	kv := host.NewMemKV()
	cfg := params.Engine{MaxBookDepth: 2, CostEnvelope: 4096}
	e := NewEngine(cfg, host.StaticResolver{}, host.NewSeededSource([]byte("depth")), kv, &stubClock{now: 1700000000}, zap.NewNop().Sugar())

	mustPlace(t, e, alice, crude, Scale, 10*Scale, SideSell)
	mustPlace(t, e, bob, crude, Scale, 11*Scale, SideSell)

	if _, err := e.PlaceOrder(as(carol), crude, Scale, 12*Scale, SideSell); !errors.Is(err, ErrBookFull) {
		t.Fatalf("err = %v, want ErrBookFull", err)
	}

	// The opposite side has its own capacity.
	if _, err := e.PlaceOrder(as(carol), crude, Scale, 5*Scale, SideBuy); err != nil {
		t.Fatalf("buy side rejected: %v", err)
	}
}

func TestReloadFromStore(t *testing.T) {
	kv := host.NewMemKV()
	clock := &stubClock{now: 1700000000}
	e1 := NewEngine(testConfig(), host.StaticResolver{}, host.NewSeededSource([]byte("reload")), kv, clock, zap.NewNop().Sugar())

	mustPlace(t, e1, alice, crude, Scale, 85*Scale, SideBuy)
	mustPlace(t, e1, bob, crude, Scale, 82*Scale, SideSell)
	restingID := mustPlace(t, e1, carol, wheat, Scale, 7*Scale, SideBuy)

	e2 := NewEngine(testConfig(), host.StaticResolver{}, host.NewSeededSource([]byte("reload2")), kv, clock, zap.NewNop().Sugar())

	if n := e2.MatchCount(); n != 1 {
		t.Fatalf("reloaded matchCount = %d, want 1", n)
	}
	if id := mustPlace(t, e2, carol, wheat, Scale, 8*Scale, SideBuy); id != 3 {
		t.Fatalf("post-reload id = %d, want 3 (counter must not reset)", id)
	}
	if got := e2.MyOpenOrders(as(carol)); len(got) != 2 || got[0].ID != restingID {
		t.Fatalf("reloaded open orders = %+v", got)
	}

	key1, err := e2.MatchKey(as(alice), 0)
	if err != nil {
		t.Fatalf("reloaded MatchKey: %v", err)
	}
	if len(key1) != MatchKeySize {
		t.Fatalf("key length = %d", len(key1))
	}
	if n := len(e2.Feed().All()); n != 5 {
		// 3 placements + 1 match reloaded, plus this engine's placement.
		t.Fatalf("reloaded notice log has %d entries, want 5", n)
	}
}
