// Package atomic provides typed wrappers around sync/atomic words. The
// engine uses these (instead of bare sync/atomic calls) for every field that
// is written by a remote peer's goroutine and read locally, or vice versa -
// can-send flags, message-queue cursors, done counters - so that every such
// field is visibly "the synchronization point that replaces a volatile
// qualifier" (see DESIGN.md).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package atomic

import "sync/atomic"

type (
	Bool   struct{ v int32 }
	Int32  struct{ v int32 }
	Int64  struct{ v int64 }
	Uint32 struct{ v uint32 }
	Uint64 struct{ v uint64 }
)

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (b *Bool) Load() bool       { return atomic.LoadInt32(&b.v) == 1 }
func (b *Bool) Store(val bool)   { atomic.StoreInt32(&b.v, boolToInt32(val)) }
func (b *Bool) CAS(old, new bool) bool {
	return atomic.CompareAndSwapInt32(&b.v, boolToInt32(old), boolToInt32(new))
}

func (i *Int32) Load() int32        { return atomic.LoadInt32(&i.v) }
func (i *Int32) Store(val int32)    { atomic.StoreInt32(&i.v, val) }
func (i *Int32) Add(delta int32) int32 { return atomic.AddInt32(&i.v, delta) }
func (i *Int32) Inc() int32         { return i.Add(1) }
func (i *Int32) CAS(old, new int32) bool {
	return atomic.CompareAndSwapInt32(&i.v, old, new)
}

func (i *Int64) Load() int64           { return atomic.LoadInt64(&i.v) }
func (i *Int64) Store(val int64)       { atomic.StoreInt64(&i.v, val) }
func (i *Int64) Add(delta int64) int64 { return atomic.AddInt64(&i.v, delta) }
func (i *Int64) Inc() int64            { return i.Add(1) }
func (i *Int64) Dec() int64            { return i.Add(-1) }
func (i *Int64) CAS(old, new int64) bool {
	return atomic.CompareAndSwapInt64(&i.v, old, new)
}

// FetchAdd returns the value prior to adding delta - the same contract as
// the transport capability's FetchAddI64 (§6), used by the in-process
// transport's word region to implement that primitive directly on top of
// this type.
func (i *Int64) FetchAdd(delta int64) int64 {
	return atomic.AddInt64(&i.v, delta) - delta
}

func (u *Uint32) Load() uint32            { return atomic.LoadUint32(&u.v) }
func (u *Uint32) Store(val uint32)        { atomic.StoreUint32(&u.v, val) }
func (u *Uint32) Add(delta uint32) uint32 { return atomic.AddUint32(&u.v, delta) }
func (u *Uint32) CAS(old, new uint32) bool {
	return atomic.CompareAndSwapUint32(&u.v, old, new)
}

func (u *Uint64) Load() uint64 { return atomic.LoadUint64(&u.v) }
func (u *Uint64) Store(val uint64) { atomic.StoreUint64(&u.v, val) }
// FetchAdd returns the value prior to adding delta - the same contract as
// the transport capability's FetchAddI64 (§6); the in-process transport
// builds that primitive on Int64.FetchAdd, not on this one.
func (u *Uint64) FetchAdd(delta uint64) uint64 {
	return atomic.AddUint64(&u.v, delta) - delta
}
func (u *Uint64) CAS(old, new uint64) bool {
	return atomic.CompareAndSwapUint64(&u.v, old, new)
}
