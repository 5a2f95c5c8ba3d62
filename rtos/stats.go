package rtos

// Stats is a read-only diagnostics snapshot of a few plain counters. It
// never gates a scheduling decision; it exists for tests and cmd/sparkmon
// to observe scheduler behavior without touching internal state.
type Stats struct {
	ThreadsCreated   uint64
	ContextSwitches  uint64
	Preemptions      uint64
	Ticks            uint64
}

// Stats returns a copy of the scheduler's current counters.
func (s *Scheduler) Stats() Stats {
	c := s.port.Mask()
	defer s.port.Unmask(c)
	return s.stats
}

// ThreadSnapshot is a point-in-time view of one thread-table slot, used by
// cmd/sparkmon and tests to observe scheduler state without exposing the
// arena itself.
type ThreadSnapshot struct {
	ID                ThreadID
	BasePriority      uint8
	EffectivePriority uint8
	Running           bool
	State             string
}

func (st threadState) String() string {
	switch st {
	case stateCreated:
		return "created"
	case stateRunnable:
		return "runnable"
	case stateBlocked:
		return "blocked"
	case stateSleeping:
		return "sleeping"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Snapshot returns a diagnostic view of every live thread in the table.
func (s *Scheduler) Snapshot() []ThreadSnapshot {
	c := s.port.Mask()
	defer s.port.Unmask(c)
	free := make(map[uint32]bool, len(s.free))
	for _, idx := range s.free {
		free[idx] = true
	}
	var out []ThreadSnapshot
	for i := range s.arena {
		t := &s.arena[i]
		if t.gen == 0 || free[t.index] {
			continue
		}
		out = append(out, ThreadSnapshot{
			ID:                t.id(),
			BasePriority:      t.basePriority,
			EffectivePriority: t.effectivePriority,
			Running:           t == s.running,
			State:             t.state.String(),
		})
	}
	return out
}
