package rtos

import "sparkrt/port"

// MutexType selects recursion semantics: Normal, ErrorChecking, or
// Recursive.
type MutexType uint8

const (
	MutexNormal MutexType = iota
	MutexErrorChecking
	MutexRecursive
)

// Protocol selects the priority-boost discipline applied while a mutex is
// held.
type Protocol uint8

const (
	ProtocolNone Protocol = iota
	ProtocolPriorityInheritance
	ProtocolPriorityProtect
)

// Mutex is the PI/PP/None core (C7): ownership, recursion, and the
// propagation engine that keeps an owner's effective priority at or above
// every waiter's.
type Mutex struct {
	sched *Scheduler

	kind     MutexType
	protocol Protocol
	ceiling  uint8

	owner          *tcb
	recursionCount uint32
	waiters        waitQueue
}

// NewMutex constructs a Mutex. ceiling is only meaningful for
// ProtocolPriorityProtect.
func NewMutex(s *Scheduler, kind MutexType, protocol Protocol, ceiling uint8) *Mutex {
	return &Mutex{sched: s, kind: kind, protocol: protocol, ceiling: ceiling}
}

func (m *Mutex) waitQ() *waitQueue { return &m.waiters }
func (m *Mutex) lockOwner() *tcb   { return m.owner }

// Lock blocks until the mutex is acquired.
func (m *Mutex) Lock(ctx *ThreadContext) Status {
	return m.lockUntil(ctx, false, 0)
}

// TryLock acquires the mutex only if it is immediately available.
func (m *Mutex) TryLock(ctx *ThreadContext) Status {
	s := ctx.sched
	self := ctx.self
	c := s.port.Mask()
	defer s.port.Unmask(c)
	if st := m.checkCeiling(self); st != OK {
		return st
	}
	if m.owner == nil {
		m.acquireLocked(self)
		return OK
	}
	if m.owner == self {
		return m.recurseLocked(self)
	}
	return EBUSY
}

// TryLockUntil blocks until acquired or deadline, whichever comes first.
func (m *Mutex) TryLockUntil(ctx *ThreadContext, deadline port.Tick) Status {
	return m.lockUntil(ctx, true, deadline)
}

func (m *Mutex) checkCeiling(self *tcb) Status {
	if m.protocol == ProtocolPriorityProtect && m.ceiling < self.effectivePriority {
		return EINVAL
	}
	return OK
}

func (m *Mutex) recurseLocked(self *tcb) Status {
	switch m.kind {
	case MutexRecursive:
		m.recursionCount++
		return OK
	case MutexErrorChecking:
		return EDEADLK
	default: // Normal: undefined by spec, chosen to fail safe
		assertf(self, false, "recursive lock of a Normal mutex by thread %d", self.index)
		return EDEADLK
	}
}

func (m *Mutex) lockUntil(ctx *ThreadContext, hasDeadline bool, deadline port.Tick) Status {
	s := ctx.sched
	self := ctx.self
	c := s.port.Mask()

	if st := m.checkCeiling(self); st != OK {
		s.port.Unmask(c)
		return st
	}
	if m.owner == nil {
		m.acquireLocked(self)
		s.port.Unmask(c)
		return OK
	}
	if m.owner == self {
		st := m.recurseLocked(self)
		s.port.Unmask(c)
		return st
	}

	self.state = stateBlocked
	self.blockedOn = m
	m.waiters.insert(self)
	self.hasDeadline = hasDeadline
	if hasDeadline {
		self.deadline = deadline
		s.sleeping.insert(self)
	}

	seen := map[uint32]bool{self.index: true}
	if m.protocol == ProtocolPriorityInheritance && bumpLocked(s, m, seen) == EDEADLK {
		m.waiters.remove(self)
		if hasDeadline {
			s.sleeping.remove(self)
		}
		self.state = stateRunnable
		self.blockedOn = nil
		self.hasDeadline = false
		s.port.Unmask(c)
		return EDEADLK
	}

	next := s.switchAwayLocked()
	s.port.Unmask(c)
	s.port.ContextSwitch(self.waker, next.waker)
	return self.wakeStatus
}

func (m *Mutex) acquireLocked(self *tcb) {
	m.owner = self
	m.recursionCount = 1
	self.ownedMutexes = append(self.ownedMutexes, m)
	if m.protocol == ProtocolPriorityProtect {
		old := self.effectivePriority
		self.setBoost(m, m.ceiling)
		if self.effectivePriority != old {
			self.sched.requeueLocked(self, old)
		}
	}
}

// Unlock releases the mutex, transferring ownership to the highest-priority
// waiter (if any) and rewinding this thread's own boost from it.
func (m *Mutex) Unlock(ctx *ThreadContext) Status {
	s := ctx.sched
	self := ctx.self
	c := s.port.Mask()

	if m.owner != self {
		assertf(self, m.kind != MutexNormal, "unlock of a Normal mutex by a non-owner thread %d", self.index)
		s.port.Unmask(c)
		return EPERM
	}
	m.recursionCount--
	if m.recursionCount > 0 {
		s.port.Unmask(c)
		return OK
	}

	self.ownedMutexes = removeMutex(self.ownedMutexes, m)
	oldSelf := self.effectivePriority
	self.clearBoost(m)
	if self.effectivePriority != oldSelf {
		s.requeueLocked(self, oldSelf)
	}

	var old *tcb
	var switched bool
	if m.waiters.empty() {
		m.owner = nil
	} else {
		w := m.transferLocked()
		old, switched = s.makeRunnableLocked(w)
	}
	if !switched {
		old, switched = s.maybePreemptLocked()
	}
	s.port.Unmask(c)
	if switched {
		s.port.ContextSwitch(old.waker, s.running.waker)
	}
	return OK
}

// transferLocked pops the head waiter, installs it as owner, and applies
// the acquire-side protocol boost from the mutex's remaining waiters (PI)
// or ceiling (PP). It must be called with m.waiters non-empty.
func (m *Mutex) transferLocked() *tcb {
	s := m.sched
	w := m.waiters.head
	m.waiters.remove(w)
	if w.hasDeadline {
		s.sleeping.remove(w)
		w.hasDeadline = false
	}
	m.owner = w
	m.recursionCount = 1
	w.ownedMutexes = append(w.ownedMutexes, m)
	switch m.protocol {
	case ProtocolPriorityInheritance:
		if !m.waiters.empty() {
			w.setBoost(m, m.waiters.head.effectivePriority)
		}
	case ProtocolPriorityProtect:
		w.setBoost(m, m.ceiling)
	}
	w.wakeStatus = OK
	return w
}

// forceUnlockLocked is invoked during thread-exit cleanup, which is
// already inside a masked section: it releases m exactly like Unlock
// without re-acquiring the mask.
func (m *Mutex) forceUnlockLocked(self *tcb) {
	s := m.sched
	self.ownedMutexes = removeMutex(self.ownedMutexes, m)
	self.clearBoost(m)
	if m.waiters.empty() {
		m.owner = nil
		return
	}
	w := m.transferLocked()
	s.makeRunnableLocked(w)
}

// cancelWaiterLocked rewinds a timed-out waiter: remove it from m's wait
// queue and re-run propagation so the owner's boost reflects the new head
// (or no boost at all if the queue emptied).
func (m *Mutex) cancelWaiterLocked(t *tcb) {
	m.waiters.remove(t)
	if m.protocol == ProtocolPriorityInheritance && m.owner != nil {
		st := bumpLocked(t.sched, m, map[uint32]bool{})
		assertf(t, st != EDEADLK, "priority propagation cycle detected rewinding timed-out waiter thread %d", t.index)
	}
}

// bumpLocked recomputes m.owner's boost from m.waiters' new head and, if
// that changes the owner's effective priority, repositions it and walks
// the chain to whatever the owner is itself blocked on. seen is keyed by
// thread-table index and guards against the cycle a programmer error (two
// threads each waiting on a mutex the other holds) would otherwise spin
// on forever; a revisited owner yields EDEADLK.
func bumpLocked(s *Scheduler, m *Mutex, seen map[uint32]bool) Status {
	owner := m.owner
	if owner == nil {
		return OK
	}
	if seen[owner.index] {
		return EDEADLK
	}
	seen[owner.index] = true

	old := owner.effectivePriority
	if m.waiters.empty() {
		owner.clearBoost(m)
	} else {
		owner.setBoost(m, m.waiters.head.effectivePriority)
	}
	if owner.effectivePriority == old {
		return OK
	}
	s.requeueLocked(owner, old)

	if owner.state != stateBlocked {
		return OK
	}
	om, ok := owner.blockedOn.(*Mutex)
	if !ok || om.protocol != ProtocolPriorityInheritance {
		return OK
	}
	om.waiters.reposition(owner)
	return bumpLocked(s, om, seen)
}

func removeMutex(list []*Mutex, m *Mutex) []*Mutex {
	for i, v := range list {
		if v == m {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
