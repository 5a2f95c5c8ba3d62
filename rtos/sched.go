package rtos

import "sparkrt/port"

// Scheduler is the Scheduler (C4): ready queue, sleep/timed-wait queue,
// tick handling, and the single point where context switches are decided.
// Every exported operation masks on entry and unmasks before any
// ContextSwitch: all mutation happens inside one masked section, and the
// mask is never held across a goroutine handoff.
type Scheduler struct {
	port port.Port
	cfg  Config

	arena []tcb
	free  []uint32

	ready    readyQueue
	sleeping sleepList

	running *tcb
	idle    *tcb

	bootWaker *port.Waker

	stats Stats
}

// NewKernel constructs a Scheduler bound to a platform Port. It spawns the
// idle thread (priority 0) but does not start ticking or running anything
// until Run is called. The thread table has one slot beyond
// cfg.MaxThreads, which the idle thread occupies.
func NewKernel(cfg Config, p port.Port) *Scheduler {
	if cfg.MaxThreads <= 0 {
		cfg = DefaultConfig()
	}
	s := &Scheduler{
		port:  p,
		cfg:   cfg,
		arena: make([]tcb, cfg.MaxThreads+1),
	}
	for i := range s.arena {
		s.arena[i].index = uint32(i)
		s.arena[i].sched = s
		s.free = append(s.free, uint32(i))
	}
	idx := s.allocLocked()
	idle := &s.arena[idx]
	idle.basePriority = 0
	idle.effectivePriority = 0
	idle.state = stateRunnable
	idle.waker = port.NewWaker()
	idle.entry = func(*ThreadContext) {
		for {
			p.Idle()
		}
	}
	s.idle = idle
	s.ready.pushTail(idle)
	go s.runEntry(idle)
	return s
}

func (s *Scheduler) allocLocked() uint32 {
	idx := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	if s.arena[idx].gen == 0 {
		s.arena[idx].gen = 1
	}
	return idx
}

func (s *Scheduler) freeLocked(idx uint32) {
	s.arena[idx].gen++
	s.free = append(s.free, idx)
}

func (s *Scheduler) runEntry(t *tcb) {
	t.waker.Park()
	ctx := &ThreadContext{sched: s, self: t}
	t.entry(ctx)
	s.onThreadExit(t)
}

// Run arms the tick and performs the first handoff into whichever thread
// the ready queue currently favors. It is meant to be called once, from a
// dedicated goroutine (go sched.Run()); that goroutine parks forever on a
// throwaway Waker once the handoff completes, exactly like a board's
// reset handler never returning once the scheduler takes over.
func (s *Scheduler) Run() {
	c := s.port.Mask()
	if s.cfg.TickPeriod > 0 {
		s.port.SetTickPeriod(s.cfg.TickPeriod, s.onTick)
	}
	next := s.ready.head()
	s.ready.remove(next, next.effectivePriority)
	s.running = next
	boot := port.NewWaker()
	s.bootWaker = boot
	s.port.Unmask(c)
	s.port.ContextSwitch(boot, next.waker)
}

// resolveLocked validates a ThreadID against the arena's current
// generation for that slot, guarding against stale handles after join.
func (s *Scheduler) resolveLocked(id ThreadID) (*tcb, Status) {
	if int(id.index) >= len(s.arena) {
		return nil, EINVAL
	}
	t := &s.arena[id.index]
	if !id.valid() || t.gen != id.gen {
		return nil, EINVAL
	}
	return t, OK
}

// maybePreemptLocked swaps the running thread out for a strictly
// higher-priority ready thread, if one exists. It must be called while
// masked; the caller unmasks and performs the actual ContextSwitch.
func (s *Scheduler) maybePreemptLocked() (old *tcb, switched bool) {
	if s.running == nil {
		return nil, false
	}
	head := s.ready.head()
	if head == nil || head.effectivePriority <= s.running.effectivePriority {
		return nil, false
	}
	old = s.running
	s.ready.remove(head, head.effectivePriority)
	s.ready.pushTail(old)
	s.running = head
	s.stats.Preemptions++
	s.stats.ContextSwitches++
	return old, true
}

// makeRunnableLocked transitions t to Runnable and inserts it at the tail
// of its priority band, requesting a preempt if it now outranks the
// running thread. Returns the thread to switch from, if any.
func (s *Scheduler) makeRunnableLocked(t *tcb) (old *tcb, switched bool) {
	t.state = stateRunnable
	t.blockedOn = nil
	t.hasDeadline = false
	s.ready.pushTail(t)
	return s.maybePreemptLocked()
}

func (s *Scheduler) start(id ThreadID) Status {
	c := s.port.Mask()
	t, st := s.resolveLocked(id)
	if st != OK {
		s.port.Unmask(c)
		return st
	}
	if t.state != stateCreated {
		s.port.Unmask(c)
		return EINVAL
	}
	old, switched := s.makeRunnableLocked(t)
	s.port.Unmask(c)
	if switched {
		s.port.ContextSwitch(old.waker, s.running.waker)
	}
	return OK
}

// yield implements this::yield(). self must be the currently running tcb.
func (s *Scheduler) yield(self *tcb) {
	c := s.port.Mask()
	if !s.ready.peerExists(self.effectivePriority, nil) {
		s.port.Unmask(c)
		return
	}
	s.ready.pushTail(self)
	next := s.ready.head()
	s.ready.remove(next, next.effectivePriority)
	s.running = next
	s.stats.ContextSwitches++
	s.port.Unmask(c)
	s.port.ContextSwitch(self.waker, next.waker)
}

// sleepUntil implements this::sleep_until(tick).
func (s *Scheduler) sleepUntil(self *tcb, deadline port.Tick) Status {
	c := s.port.Mask()
	if deadline <= s.port.Now() {
		s.port.Unmask(c)
		return OK
	}
	self.state = stateSleeping
	self.deadline = deadline
	self.hasDeadline = true
	s.sleeping.insert(self)
	next := s.switchAwayLocked()
	s.port.Unmask(c)
	s.port.ContextSwitch(self.waker, next.waker)
	return self.wakeStatus
}

// switchAwayLocked picks the ready queue's head as the next running
// thread. It must be called while masked, with the caller having already
// removed itself from contention (blocked, sleeping, or yielding).
func (s *Scheduler) switchAwayLocked() *tcb {
	next := s.ready.head()
	s.ready.remove(next, next.effectivePriority)
	s.running = next
	s.stats.ContextSwitches++
	return next
}

// blockOnLocked implements block_on(wait_queue, optional deadline): it
// inserts self into q, optionally onto the timed-wait list, marks it
// Blocked, and selects the next thread to run. It must be called while
// masked; the caller unmasks, performs the context switch, and reads
// self.wakeStatus once execution resumes.
func (s *Scheduler) blockOnLocked(self *tcb, q *waitQueue, owner blocker, hasDeadline bool, deadline port.Tick) *tcb {
	self.state = stateBlocked
	self.blockedOn = owner
	q.insert(self)
	self.hasDeadline = hasDeadline
	if hasDeadline {
		self.deadline = deadline
		s.sleeping.insert(self)
	}
	return s.switchAwayLocked()
}

// wakeOneLocked removes the head of q, clears its blockedOn, removes it from the
// sleep list if it was also timed, and makes it Runnable. It requests a
// preempt if warranted. Returns the woken tcb (nil if q was empty) and
// whatever switch bookkeeping the caller must act on after unmasking.
func (s *Scheduler) wakeOneLocked(q *waitQueue) (woken, old *tcb, switched bool) {
	woken = q.head
	if woken == nil {
		return nil, nil, false
	}
	q.remove(woken)
	if woken.hasDeadline {
		s.sleeping.remove(woken)
		woken.hasDeadline = false
	}
	woken.wakeStatus = OK
	old, switched = s.makeRunnableLocked(woken)
	return woken, old, switched
}

// cancelTimedWaitLocked is invoked from tick expiry for a thread blocked
// with a deadline: it removes the waiter from whatever wait queue it sits
// on (rewinding any priority-propagation boost it contributed), marks it
// ETIMEDOUT, and makes it Runnable.
func (s *Scheduler) cancelTimedWaitLocked(t *tcb) {
	if m, ok := t.blockedOn.(*Mutex); ok {
		m.cancelWaiterLocked(t)
	} else if wq := t.blockedOn.waitQ(); wq != nil {
		wq.remove(t)
	}
	t.wakeStatus = ETIMEDOUT
	s.makeRunnableLocked(t)
}

// Tick manually advances the scheduler by one tick. Embedders normally
// never call this directly (Run arms the port's own periodic callback),
// but a Config with TickPeriod == 0 leaves tick delivery entirely to the
// caller, which tests use for exact control over expiry ordering.
func (s *Scheduler) Tick() { s.onTick() }

// onTick is the tick ISR: it self-masks (it is a top-level entry point,
// not a nested call), advances expiry processing, performs one
// round-robin rotation if the running thread's quantum peer exists, and
// switches if warranted.
//
// Unlike every other entry point, onTick never runs on the goroutine it
// might be switching away from: it is invoked off the port's own ticker.
// So on the switch path it only wakes the new thread; it must not Park
// the preempted one on the ticker's behalf, or a legitimate later wake
// meant for that thread could be swallowed by this stray Park instead.
// The preempted thread's own goroutine keeps running until it next calls
// into the scheduler itself, which is the usual cooperative-preemption
// caveat of simulating a single core on top of goroutines.
func (s *Scheduler) onTick() {
	c := s.port.Mask()
	orig := s.running
	now := s.port.Now()
	s.stats.Ticks++
	expired := s.sleeping.popExpired(now)
	for _, t := range expired {
		switch t.state {
		case stateSleeping:
			t.wakeStatus = OK
			s.makeRunnableLocked(t)
		case stateBlocked:
			s.cancelTimedWaitLocked(t)
		}
	}

	if s.running != nil && s.running == orig && s.running != s.idle && s.ready.peerExists(s.running.effectivePriority, nil) {
		old := s.running
		s.ready.pushTail(old)
		next := s.ready.head()
		s.ready.remove(next, next.effectivePriority)
		s.running = next
		s.stats.ContextSwitches++
	} else if s.running == orig {
		s.maybePreemptLocked()
	}
	next := s.running
	s.port.Unmask(c)
	// Any expired thread processed above may already have preempted orig
	// via makeRunnableLocked's own maybePreemptLocked call, so the thread
	// actually running now can differ from orig even if neither branch
	// above fired. Compare against orig directly rather than threading a
	// switched flag through both sources of reassignment.
	if next != orig {
		next.waker.Wake()
	}
}

// requeueLocked repositions t after an effective-priority
// change: tail of its new ready band if Runnable, re-sort of its wait
// queue if Blocked. It must be called while masked.
func (s *Scheduler) requeueLocked(t *tcb, oldPriority uint8) {
	switch t.state {
	case stateRunnable:
		if t == s.running {
			return
		}
		s.ready.remove(t, oldPriority)
		s.ready.pushTail(t)
	case stateBlocked:
		if wq := t.blockedOn.waitQ(); wq != nil {
			wq.reposition(t)
		}
	}
}

// onThreadExit releases everything t held and hands control to whatever
// runs next. t cannot stay running (its entry function has already
// returned), so the handoff target is not gated on outranking t. joinSem.Post
// is issued before that handoff, while t is still the bookkept running
// thread, so that if a higher-priority joiner is waiting, Post's own
// preemption check (old == t) performs the real switch.
//
// By the time we re-mask, s.running may already have moved off t through a
// path that already woke its own target: Post above, or a concurrent tick
// that preempted t between the two masked sections. In either case the
// thread now in s.running was already Wake()'d by whichever call put it
// there, so onThreadExit must only Wake() next when it is itself the one
// performing the switch (s.running == t); otherwise it parks t, since
// waking next a second time would arm a stray buffered token on a waker
// nobody is about to Park on, letting that thread's next legitimate block
// return immediately without actually blocking. A tick that preempted t
// left it on the ready queue, so the scheduler can still pick t again;
// when that wakes it, t is running once more and performs the switch away
// itself.
func (s *Scheduler) onThreadExit(t *tcb) {
	c := s.port.Mask()
	for len(t.ownedMutexes) > 0 {
		m := t.ownedMutexes[len(t.ownedMutexes)-1]
		m.forceUnlockLocked(t)
	}
	t.state = stateTerminated
	joinSem := t.joinSem
	s.port.Unmask(c)

	if joinSem != nil {
		joinSem.Post()
	}

	for {
		c = s.port.Mask()
		if s.running == t {
			next := s.switchAwayLocked()
			s.port.Unmask(c)
			s.port.ContextSwitch(t.waker, next.waker)
			return
		}
		s.port.Unmask(c)
		t.waker.Park()
	}
}
