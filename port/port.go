// Package port defines the platform contract the scheduler core consumes:
// interrupt masking, tick delivery, and the primitive used to hand control
// from one thread's goroutine to another's.
//
// There are two implementations, selected by build tag exactly like the
// teacher's hal package split: host.go for development and tests, and
// tinygo.go for a TinyGo baremetal target. Neither the scheduler nor
// any sync primitive in package rtos imports either implementation file
// directly; they depend only on the Port interface below.
package port

import "time"

// Cookie is the opaque previous-interrupt-state token returned by Mask and
// consumed by Unmask. Its zero value never escapes a correctly paired
// Mask/Unmask region.
type Cookie uint32

// Tick is a monotonic tick count. It is wide enough that wraparound does
// not occur during the lifetime of any realistic system.
type Tick uint64

// Port is the platform contract consumed by the scheduler core (spec
// component C1).
type Port interface {
	// Mask disables preemption-capable interrupts and returns a cookie
	// describing the previous state, for Unmask to restore. Mask/Unmask
	// must serialize with tick delivery: no tick callback runs while the
	// mask is held.
	Mask() Cookie

	// Unmask restores the interrupt state captured by a prior Mask call.
	Unmask(Cookie)

	// Now returns the current tick count.
	Now() Tick

	// SetTickPeriod arms periodic tick delivery. onTick is invoked once
	// per period with interrupts NOT masked; it is expected to mask on
	// entry and unmask on every exit path itself, exactly like every
	// other scheduler operation (this is the tick ISR, not a nested
	// call), and it must not block.
	SetTickPeriod(period time.Duration, onTick func())

	// ContextSwitch parks the calling thread's Waker and resumes to.
	// The scheduler calls it after Unmask, never with the mask held, and
	// it returns only when something later context-switches back into
	// from.
	ContextSwitch(from, to *Waker)

	// Idle is invoked by the scheduler's idle thread when no other thread
	// is runnable. Implementations should block cheaply (sleep on the
	// host, WFI-equivalent on baremetal) until the next tick or wake.
	Idle()
}

// Waker is the per-thread resume primitive threads are context-switched
// between. Each TCB owns exactly one Waker for its lifetime.
type Waker struct {
	resume chan struct{}
}

// NewWaker allocates a Waker for a new thread.
func NewWaker() *Waker {
	return &Waker{resume: make(chan struct{}, 1)}
}

// Park blocks the calling goroutine until Wake is called.
//
// A Wake that races ahead of the matching Park is not lost: the resume
// channel has capacity 1, so Wake arms a pending resume that the next Park
// consumes immediately.
func (w *Waker) Park() {
	<-w.resume
}

// Wake arranges for a parked (or not-yet-parked) goroutine to resume.
func (w *Waker) Wake() {
	select {
	case w.resume <- struct{}{}:
	default:
	}
}
