// Package engine defines the contract shared by the two aggregation
// engines - ExStack (barrier-synchronized, package exstack) and ExStack2
// (barrier-free, package exstack2) - plus the pieces of the data model
// (§3) and session API (§4.4/C6) common to both: the opaque Package type,
// the Session interface, the per-peer flush permutation, and the error
// vocabulary every engine returns.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package engine

import (
	"errors"
	"fmt"

	"github.com/ais-hpc/exstack/cmn/cos"
)

// Package is an opaque, fixed-width record exchanged between peers (§3).
// Its contents are meaningful only to the client; the engine only ever
// copies it whole.
type Package []byte

// Params are the collective session parameters (§4.4 init): every peer
// must instantiate with an identical Capacity and ItemSize.
type Params struct {
	Capacity int // packages per send/receive slot, >= 1
	ItemSize int // bytes per package, in [1, 65536]
}

// String renders Params for a log line, e.g. when a session is created
// (§4.4 init).
func (p Params) String() string { return cos.MustMarshalToString(p) }

func (p Params) Validate() error {
	if p.Capacity < 1 {
		return fmt.Errorf("%w: capacity %d < 1", ErrBadParams, p.Capacity)
	}
	if p.ItemSize < 1 || p.ItemSize > 65536 {
		return fmt.Errorf("%w: item_size %d out of [1, 65536]", ErrBadParams, p.ItemSize)
	}
	return nil
}

// State is the session state machine (§3): FRESH -> ACTIVE -> DRAINING ->
// DONE, with reset returning DONE (or any state) to FRESH without
// reallocating.
type State int

const (
	FRESH State = iota
	ACTIVE
	DRAINING
	DONE
)

func (s State) String() string {
	switch s {
	case FRESH:
		return "FRESH"
	case ACTIVE:
		return "ACTIVE"
	case DRAINING:
		return "DRAINING"
	case DONE:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Session is the API surface identical across ExStack and ExStack2 (§4.4).
// ExStack additionally implements Exchanger; ExStack2 does not (it ships
// buffers implicitly from Push/Proceed instead).
type Session interface {
	// Push copies item into the send slot for dest; returns false on
	// buffer-full (client must flush and retry - see §7).
	Push(item Package, dest int) bool
	// Pop copies one item out of a receive slot into out, and reports the
	// source peer; returns false when nothing is available right now.
	Pop(out Package) (src int, ok bool)
	// Pull is the zero-copy counterpart of Pop.
	Pull() (item Package, src int, ok bool)
	// Unpop/Unpull roll back the most recent Pop/Pull; valid at most once
	// and only before the next Pop/Pull.
	Unpop() error
	Unpull() error
	// Proceed drives the termination protocol; see §4.2/§4.3.4. Returns
	// false once the session has reached DONE.
	Proceed(donePushing bool) bool
	// Reset returns a DONE session to FRESH without reallocating (§3).
	Reset()
	// Clear collectively frees the session. No further calls are valid.
	Clear()

	State() State
}

// Exchanger is implemented only by ExStack: the explicit collective flush
// that ExStack2 performs implicitly inside Push/Proceed.
type Exchanger interface {
	Exchange()
	Headroom(dest int) int
	MinHeadroom() int
}

// Push and Pop report the plain-bool outcomes spec.md §7 defines
// (buffer-full, nothing-to-pop) directly in their return values rather than
// as errors; only programming-error conditions get a sentinel here, among
// them an Unpop/Unpull with no pop/pull to roll back (ErrNoPriorPop).
var (
	ErrBadParams     = errors.New("exstack: invalid session parameters")
	ErrParamMismatch = errors.New("exstack: session parameters differ across peers")
	ErrNoPriorPop    = errors.New("exstack: unpop/unpull with no preceding pop/pull")
)
