package exstack2

import (
	"errors"
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

// drain pops everything currently available, polling Proceed(false) a few
// times to give flushed-but-not-yet-announced buffers a chance to land -
// this engine has no barrier to synchronize on.
func drain(t *testing.T, sess *Session, self int, want int) {
	t.Helper()
	out := make(engine.Package, 1)
	got := 0
	for tries := 0; tries < 10000 && got < want; tries++ {
		if src, ok := sess.Pop(out); ok {
			if out[0] != byte(src) {
				t.Errorf("peer %d: item from %d carried payload %d", self, src, out[0])
			}
			got++
			continue
		}
		sess.Proceed(false)
	}
	if got != want {
		t.Fatalf("peer %d: drained %d items, want %d", self, got, want)
	}
}

func TestPushTriggersSendAtCapacity(t *testing.T) {
	const p = 3
	cluster := transport.NewCluster(p)

	runPeers(p, func(self int) {
		sess, err := New(cluster.Peer(self), engine.Params{Capacity: 2, ItemSize: 1})
		if err != nil {
			t.Fatalf("peer %d: New: %v", self, err)
		}
		for d := 0; d < p; d++ {
			if !sess.Push(pkg(1, byte(self)), d) {
				t.Errorf("peer %d: push 1/2 to %d should not be full", self, d)
			}
			if !sess.Push(pkg(1, byte(self)), d) {
				t.Errorf("peer %d: push 2/2 to %d should trigger an auto-flush, not fail", self, d)
			}
		}
		drain(t, sess, self, p*2)
	})
}

func TestUnpopIsLeftInverse(t *testing.T) {
	const p = 2
	cluster := transport.NewCluster(p)

	runPeers(p, func(self int) {
		sess, _ := New(cluster.Peer(self), engine.Params{Capacity: 4, ItemSize: 1})
		other := 1 - self
		sess.Push(pkg(1, 7), other)
		sess.Proceed(true)

		out := make(engine.Package, 1)
		var src int
		var ok bool
		for tries := 0; tries < 10000 && !ok; tries++ {
			src, ok = sess.Pop(out)
			if !ok {
				sess.Proceed(true)
			}
		}
		if !ok {
			t.Fatalf("peer %d: expected an item", self)
		}
		if err := sess.Unpop(); err != nil {
			t.Fatalf("peer %d: Unpop: %v", self, err)
		}
		src2, ok2 := sess.Pop(out)
		if !ok2 || src2 != src {
			t.Fatalf("peer %d: re-pop after unpop should return same source", self)
		}
		if err := sess.Unpop(); err != nil {
			t.Fatalf("peer %d: second Unpop should still be valid once: %v", self, err)
		}
		if err := sess.Unpop(); err == nil {
			t.Fatalf("peer %d: Unpop twice without an intervening pop must fail", self)
		}
	})
}

func TestProceedTerminatesOnlyWhenAllLastFlagsSeen(t *testing.T) {
	const p = 3
	cluster := transport.NewCluster(p)

	runPeers(p, func(self int) {
		sess, _ := New(cluster.Peer(self), engine.Params{Capacity: 4, ItemSize: 1})
		if !sess.Proceed(false) {
			t.Fatalf("peer %d: terminated before sending its own last flag", self)
		}
		for tries := 0; tries < 10000; tries++ {
			more := sess.Proceed(true)
			if !more {
				break
			}
		}
		if sess.State() != engine.DONE {
			t.Fatalf("peer %d: expected DONE, got %v", self, sess.State())
		}
		if sess.Proceed(true) {
			t.Fatalf("peer %d: Proceed after DONE must stay false (idempotent)", self)
		}
	})
}

// TestProceedWaitsForActiveBufferDrain is the regression for §4.3.4's
// all_done requiring drained active buffers, not just a last-flag from
// every peer: peer 0 pushes items to peer 1 and declares done without an
// intervening Exchange/barrier (there is none in this engine); peer 1 only
// calls Proceed, never Pop. Peer 1 must not reach DONE - and must not lose
// the items - until it actually drains them.
func TestProceedWaitsForActiveBufferDrain(t *testing.T) {
	const p = 2
	const n = 4
	cluster := transport.NewCluster(p)

	runPeers(p, func(self int) {
		sess, err := New(cluster.Peer(self), engine.Params{Capacity: 8, ItemSize: 1})
		if err != nil {
			t.Fatalf("peer %d: New: %v", self, err)
		}
		if self == 0 {
			for i := 0; i < n; i++ {
				if !sess.Push(pkg(1, byte(self)), 1) {
					t.Fatalf("peer %d: push should not fail", self)
				}
			}
		}

		for tries := 0; tries < 10000; tries++ {
			if !sess.Proceed(true) {
				break
			}
		}
		if self == 1 && sess.State() == engine.DONE {
			t.Fatalf("peer %d: declared DONE while %d pushed items are still undrained", self, n)
		}

		if self == 1 {
			drain(t, sess, self, n)
			for tries := 0; tries < 10000 && sess.State() != engine.DONE; tries++ {
				sess.Proceed(true)
			}
			if sess.State() != engine.DONE {
				t.Fatalf("peer %d: expected DONE after draining", self)
			}
		}
	})
}

func TestResetReturnsToFresh(t *testing.T) {
	const p = 2
	cluster := transport.NewCluster(p)

	runPeers(p, func(self int) {
		sess, _ := New(cluster.Peer(self), engine.Params{Capacity: 2, ItemSize: 1})
		for tries := 0; tries < 10000; tries++ {
			if !sess.Proceed(true) {
				break
			}
		}
		sess.Reset()
		if sess.State() != engine.FRESH {
			t.Fatalf("peer %d: expected FRESH after Reset, got %v", self, sess.State())
		}
		other := 1 - self
		if !sess.Push(pkg(1, 3), other) {
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
	sess.Proceed(true)

	out := make(engine.Package, 2)
	var ok bool
	for tries := 0; tries < 10000 && !ok; tries++ {
		_, ok = sess.Pop(out)
		if !ok {
			sess.Proceed(true)
		}
	}
	if !ok || out[0] != 5 {
		t.Fatalf("loopback pop failed: item=%v ok=%v", out, ok)
	}
}

func TestParamMismatchAborts(t *testing.T) {
	const p = 2
	cluster := transport.NewCluster(p)
	errs := make([]error, p)

	runPeers(p, func(self int) {
		params := engine.Params{Capacity: 4, ItemSize: 1}
		if self == 1 {
			params.Capacity = 8
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
