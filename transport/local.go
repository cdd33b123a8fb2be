// Package transport - see capability.go for the contract this file
// implements in-process, for tests, benchmarks, and single-host sessions.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"sync"

	cmnatomic "github.com/ais-hpc/exstack/cmn/atomic"
	"github.com/ais-hpc/exstack/cmn/debug"
)

// Cluster is the shared, process-wide state backing every peer's Local
// capability view: the collective allocator and the reusable barrier.
// Exactly one Cluster exists per session.
type Cluster struct {
	p int

	barrier *cyclicBarrier

	mu    sync.Mutex
	slots map[int]*allocSlot
}

type allocSlot struct {
	n       int
	arrived int
	region  any
	done    chan struct{}
}

func NewCluster(numPeers int) *Cluster {
	debug.Assert(numPeers >= 1)
	return &Cluster{
		p:       numPeers,
		barrier: newCyclicBarrier(numPeers),
		slots:   make(map[int]*allocSlot),
	}
}

// Peer returns the Capability view for peer `id`, id in [0, NumPeers).
func (c *Cluster) Peer(id int) *Local {
	debug.Assert(id >= 0 && id < c.p)
	return &Local{cluster: c, self: id}
}

// collectiveAlloc rendezvous-es all P peers at allocation ordinal `seq`
// (each Local view keeps its own per-peer seq counter - see Local.seq),
// asserts every arrival requested the same size, and returns the single
// shared `region` value constructed by the first arriver to every peer.
func (c *Cluster) collectiveAlloc(seq, n int, factory func() any) any {
	c.mu.Lock()
	slot, ok := c.slots[seq]
	if !ok {
		slot = &allocSlot{n: n, done: make(chan struct{})}
		c.slots[seq] = slot
	}
	debug.Assertf(slot.n == n, "collective alloc size mismatch at seq %d: %d vs %d", seq, slot.n, n)
	slot.arrived++
	if slot.arrived == 1 {
		slot.region = factory()
	}
	last := slot.arrived == c.p
	c.mu.Unlock()

	if last {
		close(slot.done)
	} else {
		<-slot.done
	}
	return slot.region
}

// Local is the in-process Capability: every peer is a goroutine in the
// same address space, so put_bytes/fetch_add_i64/put_i64 are implemented
// directly rather than over a network - but the synchronization
// discipline (atomic cursors establish happens-before for plain byte
// copies, per §5) is exactly what a real one-sided transport would need.
type Local struct {
	cluster *Cluster
	self    int
	seq     int
}

var _ Capability = (*Local)(nil)

func (l *Local) NumPeers() int { return l.cluster.p }
func (l *Local) SelfPeer() int { return l.self }

func (l *Local) Barrier() { l.cluster.barrier.Wait() }

func (l *Local) AllocBytes(n int) ByteRegion {
	seq := l.seq
	l.seq++
	region := l.cluster.collectiveAlloc(seq, n, func() any {
		shards := make([][]byte, l.cluster.p)
		for i := range shards {
			shards[i] = make([]byte, n)
		}
		return &byteRegion{shards: shards}
	}).(*byteRegion)
	return &byteRegionView{byteRegion: region, self: l.self}
}

func (l *Local) AllocWords(n int) WordRegion {
	seq := l.seq
	l.seq++
	region := l.cluster.collectiveAlloc(seq, n, func() any {
		shards := make([][]cmnatomic.Int64, l.cluster.p)
		for i := range shards {
			shards[i] = make([]cmnatomic.Int64, n)
		}
		return &wordRegion{shards: shards}
	}).(*wordRegion)
	return &wordRegionView{wordRegion: region, self: l.self}
}

//
// byteRegion
//

type byteRegion struct {
	shards [][]byte
}

type byteRegionView struct {
	*byteRegion
	self int
}

func (r *byteRegionView) Size() int { return len(r.shards[r.self]) }

func (r *byteRegionView) Put(dstPeer, dstOff int, src []byte) {
	n := copy(r.shards[dstPeer][dstOff:], src)
	debug.Assert(n == len(src), "short put_bytes: truncated write")
}

func (r *byteRegionView) Local() []byte { return r.shards[r.self] }

//
// wordRegion
//

type wordRegion struct {
	shards [][]cmnatomic.Int64
}

type wordRegionView struct {
	*wordRegion
	self int
}

func (r *wordRegionView) Size() int { return len(r.shards[r.self]) }

func (r *wordRegionView) FetchAdd(dstPeer, idx int, delta int64) int64 {
	return r.shards[dstPeer][idx].FetchAdd(delta)
}

func (r *wordRegionView) Put(dstPeer, idx int, val int64) {
	r.shards[dstPeer][idx].Store(val)
}

func (r *wordRegionView) Load(idx int) int64 {
	return r.shards[r.self][idx].Load()
}

func (r *wordRegionView) Store(idx int, val int64) {
	r.shards[r.self][idx].Store(val)
}

func (r *wordRegionView) CAS(idx int, old, new int64) bool {
	return r.shards[r.self][idx].CAS(old, new)
}

//
// cyclicBarrier: a reusable N-party rendezvous, the in-process stand-in for
// the PGAS collective barrier() primitive (§6).
//

type cyclicBarrier struct {
	n int

	mu      sync.Mutex
	cond    *sync.Cond
	count   int
	gen     uint64
}

func newCyclicBarrier(n int) *cyclicBarrier {
	b := &cyclicBarrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *cyclicBarrier) Wait() {
	b.mu.Lock()
	gen := b.gen
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
		b.mu.Unlock()
		return
	}
	for gen == b.gen {
		b.cond.Wait()
	}
	b.mu.Unlock()
}
