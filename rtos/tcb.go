package rtos

import (
	"fmt"

	"sparkrt/port"
)

// ThreadID is a stable handle into the static thread table: an arena index
// plus a generation counter. The generation guards against acting on a
// thread after its slot has been recycled by join/detach.
type ThreadID struct {
	index uint32
	gen   uint32
}

func (id ThreadID) valid() bool { return id.gen != 0 }

func (id ThreadID) String() string { return fmt.Sprintf("%d.%d", id.index, id.gen) }

type threadState uint8

const (
	stateCreated threadState = iota
	stateRunnable
	stateBlocked
	stateSleeping
	stateTerminated
)

// blocker is implemented by Mutex and Semaphore: the generic shape the
// scheduler and propagation walk need to treat a sync object as "the thing
// a thread is blocked on" without caring which kind it is.
type blocker interface {
	waitQ() *waitQueue
	lockOwner() *tcb
}

// tcb is one slot of the static thread table. Addresses of arena elements
// are stable for the arena's lifetime (the backing slice is allocated once
// at NewKernel and never grows), so intrusive links store *tcb directly.
type tcb struct {
	gen uint32

	basePriority      uint8
	effectivePriority uint8

	state threadState

	waker *port.Waker

	readyPrev, readyNext *tcb
	waitPrev, waitNext   *tcb
	sleepPrev, sleepNext *tcb

	blockedOn   blocker
	deadline    port.Tick
	hasDeadline bool
	wakeStatus  Status

	ownedMutexes []*Mutex
	boosts       map[*Mutex]uint8

	entry   func(*ThreadContext)
	joinSem *Semaphore

	sched *Scheduler
	index uint32
}

func (t *tcb) id() ThreadID { return ThreadID{index: t.index, gen: t.gen} }

// setBoost records mutex m's contribution to t's effective priority and
// recomputes effectivePriority as max(base, all boosts).
func (t *tcb) setBoost(m *Mutex, prio uint8) {
	if t.boosts == nil {
		t.boosts = make(map[*Mutex]uint8)
	}
	t.boosts[m] = prio
	t.recomputeEffective()
}

func (t *tcb) clearBoost(m *Mutex) {
	delete(t.boosts, m)
	t.recomputeEffective()
}

func (t *tcb) recomputeEffective() uint8 {
	eff := t.basePriority
	for _, p := range t.boosts {
		if p > eff {
			eff = p
		}
	}
	t.effectivePriority = eff
	return eff
}
