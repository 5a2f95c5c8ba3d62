package rtos

import "testing"

// TestThreadHandleStaleAfterJoin grounds the generation-counter guard: once
// a thread's slot has been recycled, every operation on the old handle
// must fail with EINVAL rather than silently acting on whatever now
// occupies that slot.
func TestThreadHandleStaleAfterJoin(t *testing.T) {
	sched, _ := newTestScheduler(2)

	runOnMain(t, sched, 10, func(ctx *ThreadContext) {
		first, st := Spawn(sched, 5, func(wctx *ThreadContext) {})
		if st != OK {
			t.Fatalf("spawn first: %v", st)
		}
		if st := first.Start(); st != OK {
			t.Fatalf("start first: %v", st)
		}
		if st := ctx.Join(first); st != OK {
			t.Fatalf("join first: %v", st)
		}

		second, st := Spawn(sched, 5, func(wctx *ThreadContext) {})
		if st != OK {
			t.Fatalf("spawn second: %v", st)
		}
		if second.id.index != first.id.index {
			t.Fatalf("expected the freed slot to be reused, got index %d want %d", second.id.index, first.id.index)
		}

		if _, st := first.GetPriority(); st != EINVAL {
			t.Errorf("GetPriority on stale handle = %v, want EINVAL", st)
		}
		if st := first.Start(); st != EINVAL {
			t.Errorf("Start on stale handle = %v, want EINVAL", st)
		}
		if st := first.SetPriority(9); st != EINVAL {
			t.Errorf("SetPriority on stale handle = %v, want EINVAL", st)
		}
		if st := ctx.Join(first); st != EINVAL {
			t.Errorf("Join on stale handle = %v, want EINVAL", st)
		}

		if st := second.Start(); st != OK {
			t.Fatalf("start second: %v", st)
		}
		if st := ctx.Join(second); st != OK {
			t.Fatalf("join second: %v", st)
		}
	})
}

// TestDetachReleasesWithoutBlocking grounds Detach's non-blocking contract:
// EBUSY before the thread terminates, then a clean release after.
func TestDetachReleasesWithoutBlocking(t *testing.T) {
	sched, _ := newTestScheduler(4)

	runOnMain(t, sched, 200, func(ctx *ThreadContext) {
		worker, st := Spawn(sched, 5, func(wctx *ThreadContext) {})
		if st != OK {
			t.Fatalf("spawn: %v", st)
		}
		if st := worker.Start(); st != OK {
			t.Fatalf("start: %v", st)
		}
		if st := worker.Detach(); st != EBUSY {
			t.Errorf("detach before termination = %v, want EBUSY", st)
		}

		// The driver outranks worker, so nothing has given worker's
		// goroutine a turn yet. Dropping below its priority self-preempts
		// into it; worker's empty body runs to completion and hands
		// control straight back once it terminates.
		if st := ctx.Self().SetPriority(1); st != OK {
			t.Fatalf("lower driver priority: %v", st)
		}

		if st := worker.Detach(); st != OK {
			t.Errorf("detach after termination = %v, want OK", st)
		}
		if st := worker.Detach(); st != EINVAL {
			t.Errorf("second detach of an already-freed slot = %v, want EINVAL", st)
		}
	})
}
