package engine

import "github.com/ais-hpc/exstack/cmn/debug"

// SendStage is the purely-local half of the buffer matrix (C2): per
// destination, a contiguous staging region holding up to Capacity packages
// plus the push_cnt cursor (§4.1). It never touches the network - ExStack
// copies it wholesale during exchange(); ExStack2 copies it during send().
type SendStage struct {
	capacity int
	itemSize int
	bufs     [][]byte // bufs[dest] has length capacity*itemSize
	pushCnt  []int
}

func NewSendStage(numPeers, capacity, itemSize int) *SendStage {
	s := &SendStage{capacity: capacity, itemSize: itemSize,
		bufs: make([][]byte, numPeers), pushCnt: make([]int, numPeers)}
	for d := range s.bufs {
		s.bufs[d] = make([]byte, capacity*itemSize)
	}
	return s
}

// Push copies item into dest's staging slot; returns false on buffer-full
// (push_cnt == capacity), per §4.2 push / §4.3.1.
func (s *SendStage) Push(item Package, dest int) bool {
	debug.Assertf(len(item) == s.itemSize, "item size %d != session item_size %d", len(item), s.itemSize)
	if s.pushCnt[dest] == s.capacity {
		return false
	}
	off := s.pushCnt[dest] * s.itemSize
	copy(s.bufs[dest][off:off+s.itemSize], item)
	s.pushCnt[dest]++
	return true
}

// Count is push_cnt[dest].
func (s *SendStage) Count(dest int) int { return s.pushCnt[dest] }

// Full reports whether dest's staging slot holds no more room.
func (s *SendStage) Full(dest int) bool { return s.pushCnt[dest] == s.capacity }

// Bytes returns the filled prefix of dest's staging buffer, ready to be
// shipped via a transport.ByteRegion.Put.
func (s *SendStage) Bytes(dest int) []byte {
	return s.bufs[dest][:s.pushCnt[dest]*s.itemSize]
}

// Headroom is capacity - push_cnt[dest] (§4.2).
func (s *SendStage) Headroom(dest int) int { return s.capacity - s.pushCnt[dest] }

// MinHeadroom is the minimum headroom over every destination.
func (s *SendStage) MinHeadroom() int {
	min := s.capacity
	for d := range s.pushCnt {
		if h := s.Headroom(d); h < min {
			min = h
		}
	}
	return min
}

// Reset clears dest's cursor after its buffer has been shipped.
func (s *SendStage) Reset(dest int) { s.pushCnt[dest] = 0 }

// Empty reports whether every destination's staging buffer is empty.
func (s *SendStage) Empty() bool {
	for _, c := range s.pushCnt {
		if c != 0 {
			return false
		}
	}
	return true
}

func (s *SendStage) Capacity() int { return s.capacity }
func (s *SendStage) ItemSize() int { return s.itemSize }
