package book

import (
	"testing"

	"github.com/havona/darkbook/pkg/host"
)

func TestFeedSequencesAndReloads(t *testing.T) {
	kv := host.NewMemKV()
	f := NewFeed(kv)

	for i := 0; i < 3; i++ {
		n := f.Publish(Notice{Kind: NoticeOrderPlaced, OrderID: uint64(i)})
		if n.Seq != uint64(i) {
			t.Fatalf("seq = %d, want %d", n.Seq, i)
		}
	}

	f2 := NewFeed(kv)
	all := f2.All()
	if len(all) != 3 {
		t.Fatalf("reloaded %d notices, want 3", len(all))
	}
	for i, n := range all {
		if n.Seq != uint64(i) || n.OrderID != uint64(i) {
			t.Fatalf("notice %d = %+v", i, n)
		}
	}

	// Sequence numbering continues where the log left off.
	if n := f2.Publish(Notice{Kind: NoticeOrderCancelled}); n.Seq != 3 {
		t.Fatalf("post-reload seq = %d, want 3", n.Seq)
	}
}

func TestFeedSubscribe(t *testing.T) {
	f := NewFeed(host.NewMemKV())

	ch, cancel := f.Subscribe()
	defer cancel()

	f.Publish(Notice{Kind: NoticeOrderPlaced, OrderID: 7})

	select {
	case n := <-ch:
		if n.OrderID != 7 || n.Kind != NoticeOrderPlaced {
			t.Fatalf("delivered %+v", n)
		}
	default:
		t.Fatal("subscriber did not receive the notice")
	}
}

func TestFeedSubscribeCancel(t *testing.T) {
	f := NewFeed(host.NewMemKV())

	ch, cancel := f.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after cancel")
	}
	// Publishing after cancel must not panic on the closed channel.
	f.Publish(Notice{Kind: NoticeOrderPlaced})
}
