package rtos

import (
	"time"

	"sparkrt/port"
)

// Thread is a handle to a spawned thread. It is safe to hold after the
// thread terminates; operations on a stale handle (after join/detach has
// recycled the slot) return EINVAL via the generation check.
type Thread struct {
	sched *Scheduler
	id    ThreadID
}

// ThreadContext is passed into every thread's entry function. It exposes
// the per-thread operations (yield, sleep, self-priority queries) scoped
// to the thread that owns it.
type ThreadContext struct {
	sched *Scheduler
	self  *tcb
}

// Spawn allocates a thread in the static table and registers its entry
// point. The thread remains Created (not scheduled) until Start is
// called.
func Spawn(s *Scheduler, basePriority uint8, entry func(*ThreadContext)) (Thread, Status) {
	c := s.port.Mask()
	if basePriority > s.cfg.MaxPriority {
		s.port.Unmask(c)
		return Thread{}, EINVAL
	}
	if len(s.free) == 0 {
		s.port.Unmask(c)
		return Thread{}, ENOMEM
	}
	idx := s.allocLocked()
	t := &s.arena[idx]
	t.basePriority = basePriority
	t.effectivePriority = basePriority
	t.state = stateCreated
	t.waker = port.NewWaker()
	t.blockedOn = nil
	t.hasDeadline = false
	t.ownedMutexes = nil
	t.boosts = nil
	t.entry = entry
	t.joinSem, _ = NewSemaphore(s, 0, 1)
	s.stats.ThreadsCreated++
	go s.runEntry(t)
	s.port.Unmask(c)
	return Thread{sched: s, id: t.id()}, OK
}

// Start transitions the thread from Created to Runnable.
func (th Thread) Start() Status {
	return th.sched.start(th.id)
}

// Join blocks the calling context until the thread terminates, then
// releases its thread-table slot. A thread may be joined at most once.
func (ctx *ThreadContext) Join(th Thread) Status {
	t, st := ctx.sched.resolve(th.id)
	if st != OK {
		return st
	}
	sem := t.joinSem
	if sem == nil {
		return EINVAL
	}
	if st := sem.Wait(ctx); st != OK {
		return st
	}
	c := ctx.sched.port.Mask()
	ctx.sched.freeLocked(t.index)
	ctx.sched.port.Unmask(c)
	return OK
}

// Detach releases the thread's table slot once it has terminated, without
// blocking the caller. Unlike Join it does not wait: it returns EBUSY if
// the thread has not yet reached Terminated.
func (th Thread) Detach() Status {
	s := th.sched
	c := s.port.Mask()
	t, st := s.resolveLocked(th.id)
	if st != OK {
		s.port.Unmask(c)
		return st
	}
	if t.state != stateTerminated {
		s.port.Unmask(c)
		return EBUSY
	}
	s.freeLocked(t.index)
	s.port.Unmask(c)
	return OK
}

func (s *Scheduler) resolve(id ThreadID) (*tcb, Status) {
	c := s.port.Mask()
	defer s.port.Unmask(c)
	return s.resolveLocked(id)
}

// GetPriority returns the thread's base priority.
func (th Thread) GetPriority() (uint8, Status) {
	t, st := th.sched.resolve(th.id)
	if st != OK {
		return 0, st
	}
	return t.basePriority, OK
}

// GetEffectivePriority returns the thread's current effective priority.
func (th Thread) GetEffectivePriority() (uint8, Status) {
	t, st := th.sched.resolve(th.id)
	if st != OK {
		return 0, st
	}
	return t.effectivePriority, OK
}

// SetPriority changes the thread's base priority and synchronously
// propagates the effect through any mutex it owns or is blocked on: the
// call does not return until propagation has fully settled.
func (th Thread) SetPriority(priority uint8) Status {
	s := th.sched
	c := s.port.Mask()
	t, st := s.resolveLocked(th.id)
	if st != OK {
		s.port.Unmask(c)
		return st
	}
	if priority > s.cfg.MaxPriority {
		s.port.Unmask(c)
		return EINVAL
	}
	old := t.effectivePriority
	t.basePriority = priority
	t.recomputeEffective()
	if t.effectivePriority == old {
		s.port.Unmask(c)
		return OK
	}
	s.requeueLocked(t, old)
	if t.state == stateBlocked {
		if m, ok := t.blockedOn.(*Mutex); ok && m.protocol == ProtocolPriorityInheritance {
			pst := bumpLocked(s, m, map[uint32]bool{t.index: true})
			assertf(t, pst != EDEADLK, "priority propagation cycle detected setting priority of thread %d", t.index)
		}
	}
	switchFrom, switched := s.maybePreemptLocked()
	s.port.Unmask(c)
	if switched {
		s.port.ContextSwitch(switchFrom.waker, s.running.waker)
	}
	return OK
}

// this-thread helpers, called from inside a thread's own entry function.

func (ctx *ThreadContext) Self() Thread {
	return Thread{sched: ctx.sched, id: ctx.self.id()}
}

func (ctx *ThreadContext) Yield() {
	ctx.sched.yield(ctx.self)
}

func (ctx *ThreadContext) SleepUntil(deadline port.Tick) Status {
	return ctx.sched.sleepUntil(ctx.self, deadline)
}

func (ctx *ThreadContext) SleepFor(d time.Duration, tickPeriod time.Duration) Status {
	ticks := port.Tick(d / tickPeriod)
	return ctx.SleepUntil(ctx.sched.port.Now() + ticks)
}

func (ctx *ThreadContext) GetPriority() uint8 {
	return ctx.self.basePriority
}

func (ctx *ThreadContext) GetEffectivePriority() uint8 {
	return ctx.self.effectivePriority
}
