package exstack

import (
	"errors"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/ais-hpc/exstack/engine"
	"github.com/ais-hpc/exstack/transport"
)

func pkg(itemSize int, fill byte) engine.Package {
	b := make(engine.Package, itemSize)
	for i := range b {
		b[i] = fill
	}
	return b
}

// runPeers launches one goroutine per peer, standing in for the P
// cooperating processes of a real session, and waits for all of them to
// return.
func runPeers(p int, f func(peer int)) {
	var g errgroup.Group
	for i := 0; i < p; i++ {
		i := i
		g.Go(func() error {
			f(i)
			return nil
		})
	}
	_ = g.Wait()
}

func TestPushExchangePop(t *testing.T) {
	const p = 4
	cluster := transport.NewCluster(p)
	received := make([][]int, p)
	var mu sync.Mutex

	runPeers(p, func(self int) {
		sess, err := New(cluster.Peer(self), engine.Params{Capacity: 8, ItemSize: 1})
		if err != nil {
			t.Errorf("peer %d: New: %v", self, err)
			return
		}
		for d := 0; d < p; d++ {
			if !sess.Push(pkg(1, byte(self)), d) {
				t.Errorf("peer %d: push to %d should not be full", self, d)
			}
		}
		sess.Exchange()

		var out engine.Package = make(engine.Package, 1)
		var got []int
		for {
			src, ok := sess.Pop(out)
			if !ok {
				break
			}
			if out[0] != byte(src) {
				t.Errorf("peer %d: item from %d has payload %d", self, src, out[0])
			}
			got = append(got, src)
		}
		if len(got) != p {
			t.Errorf("peer %d: got %d items, want %d", self, len(got), p)
		}
		mu.Lock()
		received[self] = got
		mu.Unlock()
	})
}

func TestUnpopIsLeftInverse(t *testing.T) {
	const p = 2
	cluster := transport.NewCluster(p)

	runPeers(p, func(self int) {
		sess, _ := New(cluster.Peer(self), engine.Params{Capacity: 4, ItemSize: 1})
		other := 1 - self
		sess.Push(pkg(1, 7), other)
		sess.Exchange()

		var out engine.Package = make(engine.Package, 1)
		src, ok := sess.Pop(out)
		if !ok {
			t.Fatalf("peer %d: expected an item", self)
		}
		if err := sess.Unpop(); err != nil {
			t.Fatalf("peer %d: Unpop: %v", self, err)
		}
		src2, ok := sess.Pop(out)
		if !ok || src2 != src {
			t.Fatalf("peer %d: re-pop after unpop should return same source", self)
		}
		if err := sess.Unpop(); err != nil {
			t.Fatalf("peer %d: second Unpop should still be valid once: %v", self, err)
		}
		if err := sess.Unpop(); err == nil {
			t.Fatalf("peer %d: Unpop twice in a row without an intervening pop must fail", self)
		}
	})
}

func TestUnpopFailsAfterExchange(t *testing.T) {
	const p = 2
	cluster := transport.NewCluster(p)

	runPeers(p, func(self int) {
		sess, _ := New(cluster.Peer(self), engine.Params{Capacity: 1, ItemSize: 1})
		other := 1 - self
		sess.Push(pkg(1, 1), other)
		sess.Exchange()

		var out engine.Package = make(engine.Package, 1)
		if _, ok := sess.Pop(out); !ok {
			t.Fatalf("peer %d: expected an item", self)
		}
		sess.Push(pkg(1, 2), other)
		sess.Exchange()

		if err := sess.Unpop(); err == nil {
			t.Fatalf("peer %d: Unpop across an Exchange boundary must fail", self)
		}
	})
}

func TestProceedTerminatesOnlyWhenAllDone(t *testing.T) {
	const p = 3
	cluster := transport.NewCluster(p)

	runPeers(p, func(self int) {
		sess, _ := New(cluster.Peer(self), engine.Params{Capacity: 2, ItemSize: 1})
		if !sess.Proceed(false) {
			t.Fatalf("peer %d: should not be done yet", self)
		}
		more := sess.Proceed(true)
		if more {
			t.Fatalf("peer %d: all peers declared done, session should terminate", self)
		}
		if sess.State() != engine.DONE {
			t.Fatalf("peer %d: expected DONE, got %v", self, sess.State())
		}
		if sess.Proceed(true) {
			t.Fatalf("peer %d: Proceed after DONE must stay false (idempotent)", self)
		}
	})
}

func TestResetReturnsToFresh(t *testing.T) {
	const p = 2
	cluster := transport.NewCluster(p)

	runPeers(p, func(self int) {
		sess, _ := New(cluster.Peer(self), engine.Params{Capacity: 2, ItemSize: 1})
		sess.Proceed(true)
		sess.Reset()
		if sess.State() != engine.FRESH {
			t.Fatalf("peer %d: expected FRESH after Reset, got %v", self, sess.State())
		}
		other := 1 - self
		if !sess.Push(pkg(1, 9), other) {
			t.Fatalf("peer %d: session should accept pushes again after Reset", self)
		}
	})
}

func TestSinglePeerLoopback(t *testing.T) {
	cluster := transport.NewCluster(1)
	sess, err := New(cluster.Peer(0), engine.Params{Capacity: 4, ItemSize: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess.Push(pkg(2, 5), 0)
	sess.Exchange()
	item, src, ok := sess.Pull()
	if !ok || src != 0 || item[0] != 5 {
		t.Fatalf("loopback pull failed: item=%v src=%d ok=%v", item, src, ok)
	}
}

func TestCapacityOneItemSizeOne(t *testing.T) {
	const p = 3
	cluster := transport.NewCluster(p)

	runPeers(p, func(self int) {
		sess, err := New(cluster.Peer(self), engine.Params{Capacity: 1, ItemSize: 1})
		if err != nil {
			t.Fatalf("peer %d: New: %v", self, err)
		}
		dest := (self + 1) % p
		if !sess.Push(pkg(1, byte(self)), dest) {
			t.Fatalf("peer %d: push into empty capacity-1 slot must succeed", self)
		}
		if sess.Push(pkg(1, 0), dest) {
			t.Fatalf("peer %d: second push into a full capacity-1 slot must fail", self)
		}
	})
}

func TestParamMismatchAborts(t *testing.T) {
	const p = 2
	cluster := transport.NewCluster(p)
	errs := make([]error, p)

	runPeers(p, func(self int) {
		params := engine.Params{Capacity: 4, ItemSize: 1}
		if self == 1 {
			params.ItemSize = 2
		}
		_, err := New(cluster.Peer(self), params)
		errs[self] = err
	})
	for i, err := range errs {
		if !errors.Is(err, engine.ErrParamMismatch) {
			t.Errorf("peer %d: expected ErrParamMismatch, got %v", i, err)
		}
	}
}
