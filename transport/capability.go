// Package transport provides the small one-sided-communication shim (C1)
// that the ExStack/ExStack2 engines are built on: symmetric allocation,
// remote byte and word writes, remote atomic fetch-and-add, and a
// collective barrier. It is the engine's only dependency on the cluster's
// PGAS transport; everything above this package is transport-agnostic.
//
// The wire-level realization of these primitives (RDMA put/get, an
// interconnect's atomic-fetch-add NIC offload, SHMEM, etc.) is explicitly
// out of scope (see spec §1): this package defines the Capability contract
// and ships one concrete, in-process implementation (Local, see local.go)
// good enough to drive every engine invariant and scenario in-process.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import "fmt"

// Capability is the transport contract every engine variant is built
// against (§6). All operations other than the local accessors on Region
// values are one-sided: a call targeting dstPeer completes without any
// cooperation from code running on dstPeer.
type Capability interface {
	NumPeers() int
	SelfPeer() int

	// AllocBytes collectively allocates a byte region of n bytes at every
	// peer and returns this peer's handle onto it. Every peer must call
	// AllocBytes (and AllocWords) the same number of times, in the same
	// order, with the same size - exactly like a symmetric heap allocator.
	AllocBytes(n int) ByteRegion

	// AllocWords collectively allocates a region of n 64-bit words at
	// every peer, used for can-send flags, message-queue slots, and
	// done-vectors - anything moved via FetchAddI64/PutI64 rather than
	// PutBytes.
	AllocWords(n int) WordRegion

	// Barrier blocks until every peer has called Barrier the same number
	// of times; all one-sided operations issued by any peer before its
	// Nth Barrier call are visible to every peer after its Nth Barrier
	// call returns.
	Barrier()
}

// ByteRegion is one symmetric byte-addressable allocation. Put is the
// one-sided put_bytes primitive; Local gives this peer read/write access to
// its own shard (e.g. to fill a send buffer, or to read a receive buffer
// once a signal - barrier, flag, or queue entry - establishes that the
// write landed).
type ByteRegion interface {
	Size() int
	// Put writes src into dstPeer's shard of this region starting at byte
	// offset dstOff. Completion implies src may be reused immediately.
	Put(dstPeer, dstOff int, src []byte)
	// Local returns this peer's own shard.
	Local() []byte
}

// WordRegion is one symmetric array of atomically-addressable 64-bit words.
type WordRegion interface {
	Size() int
	// FetchAdd atomically adds delta to word idx in dstPeer's shard and
	// returns the value prior to the add; globally visible before return.
	FetchAdd(dstPeer, idx int, delta int64) (prev int64)
	// Put performs a single-word store with release semantics relative to
	// any prior Put/PutBytes this peer issued to dstPeer.
	Put(dstPeer, idx int, val int64)
	// Load and Store operate on this peer's own shard with
	// acquire/release semantics, matching the can-send/queue-cursor
	// "replaces a volatile qualifier" contract (§9).
	Load(idx int) int64
	Store(idx int, val int64)
	// CAS atomically compares-and-swaps this peer's own shard; used by
	// ExStack2's can-send gate (§4.3.2 step 1).
	CAS(idx int, old, new int64) bool
}

// ErrTransport wraps a failure from the transport layer; per §7 it is
// always fatal to the session.
type ErrTransport struct {
	Op  string
	Err error
}

func (e *ErrTransport) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }
func (e *ErrTransport) Unwrap() error  { return e.Err }
