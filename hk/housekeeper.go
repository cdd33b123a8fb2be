// Package hk provides a mechanism for registering named callbacks that run
// on their own periodic schedule - modeled on the stream collector's
// min-heap of per-stream idle timers (see transport.collector in the
// teacher repo), generalized here to any periodic housekeeping task.
//
// Nothing in engine/exstack/exstack2 depends on hk; a session's correctness
// never rests on a callback firing. It exists for a host process embedding
// one or more sessions to register its own bookkeeping against - e.g.
// periodically logging a session's transport.Stats, or sweeping stale
// sessions - the way the teacher's own collector drove stream-level
// bookkeeping alongside, not inside, the transport it instrumented.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package hk

import (
	"container/heap"
	"sync"
	"time"
)

// CB returns the delay until the next invocation; a non-positive return
// value unregisters the job.
type CB func(now time.Time) time.Duration

type job struct {
	name  string
	f     CB
	due   time.Time
	index int
}

type jobHeap []*job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *jobHeap) Push(x any)         { j := x.(*job); j.index = len(*h); *h = append(*h, j) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}

// HK runs registered jobs on a single goroutine, ordered by next-due-time.
type HK struct {
	mu       sync.Mutex
	byName   map[string]*job
	heap     jobHeap
	wake     chan struct{}
	stopCh   chan struct{}
	started  chan struct{}
	startOne sync.Once
	stopOne  sync.Once
}

func New() *HK {
	return &HK{
		byName: make(map[string]*job, 4),
		heap:   make(jobHeap, 0, 4),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		started: make(chan struct{}),
	}
}

// DefaultHK is the process-wide housekeeper; host-process callers that don't
// need an isolated schedule register against it.
var DefaultHK = New()

// Reg schedules f to first run after `after`, then again after whatever
// duration f itself returns.
func (hk *HK) Reg(name string, f CB, after time.Duration) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	if old, ok := hk.byName[name]; ok {
		heap.Remove(&hk.heap, old.index)
	}
	j := &job{name: name, f: f, due: time.Now().Add(after)}
	hk.byName[name] = j
	heap.Push(&hk.heap, j)
	hk.nudge()
}

func (hk *HK) Unreg(name string) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	j, ok := hk.byName[name]
	if !ok {
		return
	}
	heap.Remove(&hk.heap, j.index)
	delete(hk.byName, name)
}

func (hk *HK) nudge() {
	select {
	case hk.wake <- struct{}{}:
	default:
	}
}

// Run is the housekeeper's main loop; call it from its own goroutine.
func (hk *HK) Run() {
	hk.startOne.Do(func() { close(hk.started) })
	for {
		hk.mu.Lock()
		var timer *time.Timer
		if len(hk.heap) == 0 {
			hk.mu.Unlock()
			select {
			case <-hk.wake:
				continue
			case <-hk.stopCh:
				return
			}
		}
		next := hk.heap[0]
		d := time.Until(next.due)
		hk.mu.Unlock()
		if d <= 0 {
			hk.fire()
			continue
		}
		timer = time.NewTimer(d)
		select {
		case <-timer.C:
			hk.fire()
		case <-hk.wake:
			timer.Stop()
		case <-hk.stopCh:
			timer.Stop()
			return
		}
	}
}

func (hk *HK) fire() {
	now := time.Now()
	hk.mu.Lock()
	if len(hk.heap) == 0 || hk.heap[0].due.After(now) {
		hk.mu.Unlock()
		return
	}
	j := heap.Pop(&hk.heap).(*job)
	delete(hk.byName, j.name)
	hk.mu.Unlock()

	if d := j.f(now); d > 0 {
		hk.Reg(j.name, j.f, d)
	}
}

// Stop terminates the housekeeper's Run loop; safe to call multiple times.
func (hk *HK) Stop() {
	hk.stopOne.Do(func() { close(hk.stopCh) })
}

// WaitStarted blocks until Run has begun processing.
func (hk *HK) WaitStarted() { <-hk.started }

//
// package-level convenience wrapping DefaultHK, mirroring the teacher's
// package-scoped hk.Reg/hk.Unreg call sites.
//

func Reg(name string, f CB, after time.Duration) { DefaultHK.Reg(name, f, after) }
func Unreg(name string)                          { DefaultHK.Unreg(name) }
func WaitStarted()                               { DefaultHK.WaitStarted() }

// TestInit resets DefaultHK for a fresh test run.
func TestInit() { DefaultHK = New() }
