package rtos

import "sparkrt/port"

// Semaphore is the counting semaphore (C6): value/max_value plus a wait
// queue shared with the scheduler's generic block_on/wake_one machinery.
// It never boosts anyone's priority — a semaphore has no owner for PI/PP
// to attach to — so lockOwner always returns nil.
type Semaphore struct {
	sched *Scheduler

	value    uint32
	maxValue uint32
	waiters  waitQueue
}

// NewSemaphore constructs a Semaphore with the given initial and maximum
// value, bound to s for the blocking operations below. It returns EINVAL,
// and no Semaphore, if value exceeds max: value <= max_value is an
// invariant the rest of this type assumes holds from construction, not one
// Wait/Post ever re-check.
func NewSemaphore(s *Scheduler, value, max uint32) (*Semaphore, Status) {
	if value > max {
		return nil, EINVAL
	}
	return &Semaphore{sched: s, value: value, maxValue: max}, OK
}

func (sem *Semaphore) waitQ() *waitQueue { return &sem.waiters }
func (sem *Semaphore) lockOwner() *tcb   { return nil }

// Wait decrements the semaphore, blocking if its value is zero.
func (sem *Semaphore) Wait(ctx *ThreadContext) Status {
	return sem.waitUntil(ctx, false, 0)
}

// WaitUntil blocks until a unit is available or deadline passes.
func (sem *Semaphore) WaitUntil(ctx *ThreadContext, deadline port.Tick) Status {
	return sem.waitUntil(ctx, true, deadline)
}

func (sem *Semaphore) waitUntil(ctx *ThreadContext, hasDeadline bool, deadline port.Tick) Status {
	s := sem.sched
	self := ctx.self
	c := s.port.Mask()
	if sem.value > 0 {
		sem.value--
		s.port.Unmask(c)
		return OK
	}
	next := s.blockOnLocked(self, &sem.waiters, sem, hasDeadline, deadline)
	s.port.Unmask(c)
	s.port.ContextSwitch(self.waker, next.waker)
	return self.wakeStatus
}

// Post increments the semaphore, or hands the unit directly to the
// highest-priority waiter if one is queued.
func (sem *Semaphore) Post() Status {
	s := sem.sched
	c := s.port.Mask()
	if woken, old, switched := s.wakeOneLocked(&sem.waiters); woken != nil {
		s.port.Unmask(c)
		if switched {
			s.port.ContextSwitch(old.waker, s.running.waker)
		}
		return OK
	}
	if sem.value >= sem.maxValue {
		s.port.Unmask(c)
		return EOVERFLOW
	}
	sem.value++
	s.port.Unmask(c)
	return OK
}

// Value returns the current semaphore count (0 when threads are queued).
func (sem *Semaphore) Value() uint32 {
	c := sem.sched.port.Mask()
	defer sem.sched.port.Unmask(c)
	return sem.value
}
