// Package exstack2 implements the barrier-free aggregation engine (C4,
// §4.3): a push that fills a destination's send slot triggers an immediate
// one-sided send instead of waiting for a collective Exchange. Each
// (sender, destination) pair has exactly one buffer in flight at a time,
// gated by a can-send flag the receiver releases once it has drained that
// buffer; arrivals are announced through a small per-destination circular
// message queue rather than a shared index, so peers never need to agree on
// a round boundary. Termination is a count of "last"-flagged messages
// received from every peer, not an AND-reduction, because there is no
// barrier to make an AND-reduction sound (§9).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package exstack2

import (
	"runtime"

	"github.com/ais-hpc/exstack/cmn/debug"
	"github.com/ais-hpc/exstack/engine"
	"github.com/ais-hpc/exstack/transport"
)

type bufDesc struct {
	sender int
	count  int
	cursor int
	last   bool
}

// Session is the ExStack2 engine instance for one peer. It implements
// engine.Session; unlike ExStack it does not implement engine.Exchanger,
// since there is no explicit collective flush to call.
type Session struct {
	cap      transport.Capability
	id       string
	p        int
	self     int
	itemSize int
	capacity int

	sendStage *engine.SendStage
	canSend   transport.WordRegion // own shard, index d: may I send to d?

	recv transport.ByteRegion // P*capacity*itemSize, row = sender
	recvLo []byte

	queueLen int
	queue    transport.WordRegion // index 0: slot counter (remote fetch-add target); [1, 1+queueLen): message slots
	readCur  int                  // local read cursor into the queue, mod queueLen

	active  []*bufDesc
	headIdx int

	stats transport.Stats

	lastPopValid bool
	lastHeadIdx  int

	doneCounter  *engine.DoneCounter
	announced    bool
	state        engine.State
	closed       bool
}

var _ engine.Session = (*Session)(nil)

// New collectively initializes a session; every peer must supply identical
// Params (§4.4 init).
func New(cap transport.Capability, params engine.Params) (*Session, error) {
	id, err := engine.CheckParams(cap, params)
	if err != nil {
		return nil, err
	}
	p := cap.NumPeers()
	self := cap.SelfPeer()
	q := nextPow2(2 * p)

	s := &Session{
		cap:         cap,
		id:          id,
		p:           p,
		self:        self,
		itemSize:    params.ItemSize,
		capacity:    params.Capacity,
		sendStage:   engine.NewSendStage(p, params.Capacity, params.ItemSize),
		canSend:     cap.AllocWords(p),
		recv:        cap.AllocBytes(p * params.Capacity * params.ItemSize),
		queueLen:    q,
		queue:       cap.AllocWords(1 + q),
		doneCounter: engine.NewDoneCounter(p),
		state:       engine.FRESH,
	}
	s.recvLo = s.recv.Local()
	for d := 0; d < p; d++ {
		s.canSend.Store(d, 1)
	}
	for i := 0; i < q; i++ {
		s.queue.Store(1+i, emptySlot)
	}
	// No peer may post into a queue before its owner has marked every slot
	// empty; otherwise the initialization above would erase the post.
	cap.Barrier()
	return s, nil
}

func (s *Session) State() engine.State { return s.state }

// ID is this session's correlation id, shared by every peer (§4.4 init),
// for tagging log lines and a transport.PromCollector's metrics.
func (s *Session) ID() string { return s.id }

func (s *Session) Headroom(dest int) int { return s.sendStage.Headroom(dest) }
func (s *Session) MinHeadroom() int      { return s.sendStage.MinHeadroom() }

// Push stages item for dest, auto-flushing (§4.3.1 push_trigger) the moment
// the staging slot fills - there is no collective Exchange in this engine,
// so a full buffer must ship itself.
func (s *Session) Push(item engine.Package, dest int) bool {
	debug.Assert(!s.closed)
	if s.state == engine.FRESH {
		s.state = engine.ACTIVE
	}
	if !s.sendStage.Push(item, dest) {
		s.flush(dest, false)
		if !s.sendStage.Push(item, dest) {
			return false
		}
	}
	if s.sendStage.Full(dest) {
		s.flush(dest, false)
	}
	return true
}

// flush is send() from §4.3.2: claim the can-send gate for dest, ship the
// staged bytes (if any), then publish a message descriptor so the
// destination learns how many items arrived and whether this is the final
// buffer from this sender. The payload Put always precedes the descriptor
// Put, which is what lets a receiver trust a descriptor's count the moment
// it sees it (§5, §9).
func (s *Session) flush(dest int, last bool) {
	for !s.canSend.CAS(dest, 1, 0) {
		runtime.Gosched()
	}

	n := s.sendStage.Count(dest)
	if n > 0 {
		b := s.sendStage.Bytes(dest)
		s.recv.Put(dest, s.self*s.capacity*s.itemSize, b)
		s.stats.OnSendPayload(dest, b)
	}
	slot := int(s.queue.FetchAdd(dest, 0, 1)) % s.queueLen
	s.queue.Put(dest, 1+slot, encodeMsg(n, s.self, last))
	s.sendStage.Reset(dest)
}

// pollQueue drains newly-visible message descriptors from the local shard of
// the queue into the active buffer list. It stops at the first
// not-yet-posted slot: a sender that has reserved a slot via FetchAdd but
// not yet Put its descriptor would otherwise be skipped over, breaking
// in-order delivery for that sender.
func (s *Session) pollQueue() {
	for {
		idx := 1 + s.readCur%s.queueLen
		w := s.queue.Load(idx)
		if w == emptySlot {
			return
		}
		s.queue.Store(idx, emptySlot)
		count, sender, last := decodeMsg(w)
		s.active = append(s.active, &bufDesc{sender: sender, count: count, last: last})
		if last {
			s.doneCounter.Mark(sender)
		}
		s.readCur++
	}
}

// advance is the shared cursor movement for Pop/Pull: skip exhausted
// descriptors (releasing each sender's can-send gate as we pass it, since
// past this point Unpop can no longer reach back into it), then take the
// next item off the current one.
func (s *Session) advance() (src, off int, ok bool) {
	s.pollQueue()
	for s.headIdx < len(s.active) && s.active[s.headIdx].cursor >= s.active[s.headIdx].count {
		d := s.active[s.headIdx]
		s.canSend.Put(d.sender, s.self, 1)
		if s.lastPopValid && s.lastHeadIdx == s.headIdx {
			s.lastPopValid = false
		}
		s.headIdx++
	}
	if s.headIdx >= len(s.active) {
		s.tryCompact()
		return 0, 0, false
	}
	d := s.active[s.headIdx]
	src = d.sender
	off = src*s.capacity*s.itemSize + d.cursor*s.itemSize
	if d.cursor == 0 {
		s.stats.OnRecv(int64(d.count) * int64(s.itemSize))
	}
	d.cursor++
	s.lastPopValid = true
	s.lastHeadIdx = s.headIdx
	return src, off, true
}

func (s *Session) tryCompact() {
	if !s.lastPopValid && s.headIdx == len(s.active) {
		s.active = s.active[:0]
		s.headIdx = 0
	}
}

// activeDrained reports whether every buffer descriptor this peer has ever
// seen - not just the ones advance() has skipped past - has been fully
// popped. headIdx alone isn't enough: a descriptor only advances headIdx
// once a caller actually Pops past it, so a peer that never calls Pop would
// otherwise look "drained" despite items still sitting unread in recv.
func (s *Session) activeDrained() bool {
	for _, d := range s.active {
		if d.cursor < d.count {
			return false
		}
	}
	return true
}

func (s *Session) Pop(out engine.Package) (int, bool) {
	src, off, ok := s.advance()
	if !ok {
		return 0, false
	}
	copy(out, s.recvLo[off:off+s.itemSize])
	return src, true
}

func (s *Session) Pull() (engine.Package, int, bool) {
	src, off, ok := s.advance()
	if !ok {
		return nil, 0, false
	}
	return engine.Package(s.recvLo[off : off+s.itemSize]), src, true
}

// Unpop rolls back the most recent Pop/Pull. Valid at most once, only
// before the next Pop/Pull - see advance's can-send release for why this is
// always safe to honor (§8 "unpop is a left inverse of pop").
func (s *Session) Unpop() error {
	if !s.lastPopValid {
		return engine.ErrNoPriorPop
	}
	d := s.active[s.lastHeadIdx]
	debug.Assert(d.cursor > 0)
	d.cursor--
	s.lastPopValid = false
	return nil
}

func (s *Session) Unpull() error { return s.Unpop() }

// Proceed drives the drain protocol (§4.3.4): on the first donePushing=true
// call it announces, to every destination including itself, a last-flagged
// buffer (even an empty one, so a destination that already drained
// everything still gets its "this sender is done" signal), then polls the
// queue for new arrivals and, unless DONE, yields the CPU. There is no
// barrier: each peer paces this call
// independently, and the count-based detector only needs every last flag to
// eventually be observed, not a synchronized round.
//
// A last-flagged descriptor from every peer is necessary but not sufficient
// for all_done (§4.3.4): this peer's own send buffers must also be empty
// and every buffer it has received - including ones still sitting in
// `active` because nobody has called Pop/Pull yet - must be fully drained.
// Otherwise a peer that only calls Proceed and never Pop would see its
// session reach DONE with items still unread, violating the conservation
// invariant (§8).
func (s *Session) Proceed(donePushing bool) bool {
	if s.state == engine.DONE {
		return false
	}
	if donePushing {
		s.state = engine.DRAINING
		if !s.announced {
			for d := 0; d < s.p; d++ {
				s.flush(d, true)
			}
			s.announced = true
		}
	} else if s.state == engine.FRESH {
		s.state = engine.ACTIVE
	}

	s.pollQueue()
	if s.doneCounter.AllDone() && s.sendStage.Empty() && s.activeDrained() {
		s.state = engine.DONE
		return false
	}
	runtime.Gosched()
	return true
}

// Reset collectively returns a DONE session to FRESH without reallocating.
// Unlike the per-message path, Reset is rare enough to afford a barrier: it
// guarantees every peer's gates and queue are quiesced before anyone pushes
// into the next epoch.
func (s *Session) Reset() {
	s.cap.Barrier()
	for d := 0; d < s.p; d++ {
		s.sendStage.Reset(d)
		s.canSend.Store(d, 1)
	}
	for i := 0; i < s.queueLen; i++ {
		s.queue.Store(1+i, emptySlot)
	}
	s.queue.Store(0, 0)
	s.readCur = 0
	s.active = s.active[:0]
	s.headIdx = 0
	s.lastPopValid = false
	s.doneCounter.Reset()
	s.announced = false
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
