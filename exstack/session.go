// Package exstack implements the barrier-synchronized aggregation engine
// (C3, §4.2): every round, a peer pushes items into per-destination send
// slots, calls Exchange to collectively flush them in one permuted pass plus
// a barrier, then pops/pulls whatever landed. Termination is detected with
// an AND-reduction over a done vector, which is only sound because the
// preceding barrier guarantees no buffer can still be in flight.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package exstack

import (
	"github.com/ais-hpc/exstack/cmn/debug"
	"github.com/ais-hpc/exstack/engine"
	"github.com/ais-hpc/exstack/transport"
)

// Session is the ExStack engine instance for one peer. It implements
// engine.Session and engine.Exchanger.
type Session struct {
	cap      transport.Capability
	id       string
	p        int
	self     int
	itemSize int
	capacity int

	send *engine.SendStage
	perm *engine.Permutation
	done *engine.BarrierDone

	recv   transport.ByteRegion // P*capacity*itemSize per peer
	recvLo []byte                // recv.Local(), cached
	filled transport.WordRegion // filled[src], size P

	stats transport.Stats

	popCnt     []int
	firstNeRcv int

	lastPopSrc   int
	lastPopValid bool

	epoch uint64
	state engine.State
	closed bool
}

var (
	_ engine.Session   = (*Session)(nil)
	_ engine.Exchanger = (*Session)(nil)
)

// New collectively initializes a session. Every peer must call New with an
// identical Params (§4.4 init); a mismatch aborts every peer with
// engine.ErrParamMismatch.
func New(cap transport.Capability, params engine.Params) (*Session, error) {
	id, err := engine.CheckParams(cap, params)
	if err != nil {
		return nil, err
	}
	p := cap.NumPeers()
	self := cap.SelfPeer()

	s := &Session{
		cap:      cap,
		id:       id,
		p:        p,
		self:     self,
		itemSize: params.ItemSize,
		capacity: params.Capacity,
		send:     engine.NewSendStage(p, params.Capacity, params.ItemSize),
		perm:     engine.NewPermutation(self, p, 0),
		done:     engine.NewBarrierDone(cap),
		recv:     cap.AllocBytes(p * params.Capacity * params.ItemSize),
		filled:   cap.AllocWords(p),
		popCnt:   make([]int, p),
		state:    engine.FRESH,
	}
	s.recvLo = s.recv.Local()
	return s, nil
}

func (s *Session) State() engine.State { return s.state }

// ID is this session's correlation id, shared by every peer (§4.4 init),
// for tagging log lines and a transport.PromCollector's metrics.
func (s *Session) ID() string { return s.id }

// Push stages item for dest; returns false when dest's slot is full and the
// client must Exchange before pushing more to that destination (§7).
func (s *Session) Push(item engine.Package, dest int) bool {
	debug.Assert(!s.closed)
	if s.state == engine.FRESH {
		s.state = engine.ACTIVE
	}
	return s.send.Push(item, dest)
}

func (s *Session) Headroom(dest int) int { return s.send.Headroom(dest) }
func (s *Session) MinHeadroom() int      { return s.send.MinHeadroom() }

// Exchange is the collective flush (§4.2): every peer visits destinations in
// its own permuted order, ships its staged bytes and announces the count in
// `filled`, then all peers barrier together. The barrier is what makes it
// safe for every peer to then read its own `filled` vector without racing
// the writes: every Put issued before the barrier is visible to every peer
// after it returns (§5).
func (s *Session) Exchange() {
	debug.Assert(!s.closed)
	for _, d := range s.perm.Order() {
		n := s.send.Count(d)
		if n > 0 {
			b := s.send.Bytes(d)
			s.recv.Put(d, s.self*s.capacity*s.itemSize, b)
			s.stats.OnSendPayload(d, b)
		}
		s.filled.Put(d, s.self, int64(n))
		s.send.Reset(d)
	}
	s.cap.Barrier()

	for i := 0; i < s.p; i++ {
		s.popCnt[i] = 0
	}
	s.firstNeRcv = 0
	s.lastPopValid = false
}

func (s *Session) filledOf(src int) int64 { return s.filled.Load(src) }

// Pop copies the next available item out of the receive matrix, scanning
// sources starting from first_ne_rcv and advancing it past exhausted ones
// (§4.2 pop).
func (s *Session) Pop(out engine.Package) (int, bool) {
	src, off, ok := s.advance()
	if !ok {
		return 0, false
	}
	copy(out, s.recvLo[off:off+s.itemSize])
	return src, true
}

// Pull is the zero-copy counterpart of Pop: the returned Package aliases the
// receive matrix directly and is only valid until the next Exchange.
func (s *Session) Pull() (engine.Package, int, bool) {
	src, off, ok := s.advance()
	if !ok {
		return nil, 0, false
	}
	return engine.Package(s.recvLo[off : off+s.itemSize]), src, true
}

// advance performs the shared cursor movement of Pop/Pull: locate the next
// unread item from first_ne_rcv, bump its source's pop_cnt, and record the
// move for a possible Unpop/Unpull.
func (s *Session) advance() (src, off int, ok bool) {
	for s.firstNeRcv < s.p && int64(s.popCnt[s.firstNeRcv]) >= s.filledOf(s.firstNeRcv) {
		s.firstNeRcv++
	}
	if s.firstNeRcv >= s.p {
		return 0, 0, false
	}
	src = s.firstNeRcv
	off = src*s.capacity*s.itemSize + s.popCnt[src]*s.itemSize
	if s.popCnt[src] == 0 {
		s.stats.OnRecv(s.filledOf(src) * int64(s.itemSize))
	}
	s.popCnt[src]++
	s.lastPopSrc = src
	s.lastPopValid = true
	if int64(s.popCnt[src]) >= s.filledOf(src) {
		s.firstNeRcv++
	}
	return src, off, true
}

// Unpop rolls back the most recent Pop/Pull. Valid at most once, and only
// before the next Pop/Pull or the next Exchange - a new Exchange overwrites
// the receive matrix, so the rollback would no longer make sense (§4.2
// unpop, §8 "unpop is a left inverse of pop").
func (s *Session) Unpop() error {
	if !s.lastPopValid {
		return engine.ErrNoPriorPop
	}
	src := s.lastPopSrc
	debug.Assert(s.popCnt[src] > 0)
	s.popCnt[src]--
	if src < s.firstNeRcv {
		s.firstNeRcv = src
	}
	s.lastPopValid = false
	return nil
}

// Unpull shares pop_cnt with Pop, so rolling it back is identical.
func (s *Session) Unpull() error { return s.Unpop() }

// Proceed drives termination (§4.2 proceed, §4.3.4, §9): it publishes this
// peer's done condition - defensively downgraded to false whenever the send
// stage is not empty, so a client that forgets to flush before declaring
// done cannot corrupt the AND-reduction - barriers, then reads the result.
func (s *Session) Proceed(donePushing bool) bool {
	if s.state == engine.DONE {
		return false
	}
	if donePushing {
		s.state = engine.DRAINING
	} else if s.state == engine.FRESH {
		s.state = engine.ACTIVE
	}

	effectiveDone := donePushing && s.send.Empty()
	s.done.Publish(effectiveDone)
	s.cap.Barrier()

	// The second barrier keeps a fast peer's next Publish from landing
	// before a slow peer has read this round's vector.
	allDone := s.done.AllDone()
	s.cap.Barrier()
	if allDone {
		s.state = engine.DONE
		return false
	}
	return true
}

// Reset collectively returns a DONE session to FRESH without reallocating
// (§3): cursors and the done vector clear, and the flush permutation is
// reseeded for the new epoch so repeated sessions don't replay identical
// hot-spot patterns (§9).
func (s *Session) Reset() {
	s.cap.Barrier()
	for d := 0; d < s.p; d++ {
		s.send.Reset(d)
		s.popCnt[d] = 0
		s.filled.Store(d, 0)
	}
	s.firstNeRcv = 0
	s.lastPopValid = false
	s.done.Reset()
	s.epoch++
	s.perm = engine.NewPermutation(s.self, s.p, s.epoch)
	s.state = engine.FRESH
	s.cap.Barrier()
}

// Clear collectively retires the session. No further calls are valid.
func (s *Session) Clear() {
	s.cap.Barrier()
	s.closed = true
}

// Stats exposes this peer's buffer/byte counters, e.g. for a
// transport.PromCollector registered by the host process.
func (s *Session) Stats() *transport.Stats { return &s.stats }
