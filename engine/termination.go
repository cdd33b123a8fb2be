package engine

import "github.com/ais-hpc/exstack/transport"

// BarrierDone is ExStack's termination detector (C5): every peer
// broadcasts its done_cond into a shared wait_done[P] vector, a barrier
// guarantees no buffer can still be in flight, and every peer computes the
// same AND-reduction (§4.2 proceed, §9 "uses a single AND-reduction...
// because the barrier preceding it guarantees no in-flight messages").
type BarrierDone struct {
	words transport.WordRegion // size P; wait_done[P]
	self  int
	p     int
}

func NewBarrierDone(cap transport.Capability) *BarrierDone {
	return &BarrierDone{words: cap.AllocWords(cap.NumPeers()), self: cap.SelfPeer(), p: cap.NumPeers()}
}

// Publish broadcasts this peer's done flag to every peer's copy of the
// vector (a one-sided write per destination, not a true network
// broadcast).
func (b *BarrierDone) Publish(done bool) {
	var v int64
	if done {
		v = 1
	}
	for d := 0; d < b.p; d++ {
		b.words.Put(d, b.self, v)
	}
}

// AllDone computes the AND-reduction over this peer's local copy of the
// vector. Must only be called after a Barrier() following Publish, so that
// every peer's write has landed.
func (b *BarrierDone) AllDone() bool {
	for i := 0; i < b.p; i++ {
		if b.words.Load(i) == 0 {
			return false
		}
	}
	return true
}

// Reset clears the vector back to its FRESH state (all zero / "not done").
func (b *BarrierDone) Reset() {
	for i := 0; i < b.p; i++ {
		b.words.Store(i, 0)
	}
}

// DoneCounter is ExStack2's termination detector (C5): a count of distinct
// senders whose last-flagged buffer has been observed (§4.3.4, §9: "uses a
// count of 'last'-flagged buffers received; correctness hinges on the
// sender emitting last=true to every destination exactly once").
type DoneCounter struct {
	p   int
	n   int
	saw []bool
}

func NewDoneCounter(p int) *DoneCounter { return &DoneCounter{p: p, saw: make([]bool, p)} }

// Mark records that `sender`'s last buffer has arrived; idempotent, since a
// correct sender emits last=true exactly once per destination.
func (d *DoneCounter) Mark(sender int) {
	if !d.saw[sender] {
		d.saw[sender] = true
		d.n++
	}
}

func (d *DoneCounter) AllDone() bool { return d.n == d.p }

func (d *DoneCounter) Reset() {
	d.n = 0
	for i := range d.saw {
		d.saw[i] = false
	}
}
