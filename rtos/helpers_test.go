package rtos

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"sparkrt/port"
)

// newTestScheduler builds a kernel with automatic ticking disabled, so
// tests that care about exact expiry ordering drive Tick themselves via
// the returned HostPort's Advance plus an explicit Scheduler.Tick call.
func newTestScheduler(maxThreads int) (*Scheduler, *port.HostPort) {
	hp := &port.HostPort{}
	return NewKernel(Config{MaxThreads: maxThreads, MaxPriority: 255}, hp), hp
}

// waitForAll runs each of fns concurrently under a single errgroup, fanning
// their results in instead of a hand-rolled sync.WaitGroup plus a
// separately tracked first-error variable. The group's context is
// cancelled as soon as timeout elapses or any fn returns a non-nil error,
// so the rest unblock instead of leaking past the failing test.
func waitForAll(t *testing.T, timeout time.Duration, fns ...func(ctx context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error { return fn(gctx) })
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

// runOnMain spawns fn as a thread at the given priority and starts it
// before the scheduler is running, then drives Run in the background.
// Starting before Run is itself safe regardless of priority (nothing can
// be preempted while nothing is yet running); once Run hands off, fn's
// own calls to Spawn/Start/Lock/Unlock/SetPriority all execute
// synchronously on fn's own goroutine, which is what lets a scenario
// assert state immediately after any one of them returns. Callers that
// need to verify a lower-priority owner's boost under contention should
// pass a priority below the threads fn spawns; callers that only need a
// deterministic driver and rely on explicit Join/Wait to hand off to
// workers can pick any priority.
func runOnMain(t *testing.T, sched *Scheduler, prio uint8, fn func(ctx *ThreadContext)) {
	t.Helper()
	done := make(chan struct{})
	main, st := Spawn(sched, prio, func(ctx *ThreadContext) {
		fn(ctx)
		close(done)
	})
	if st != OK {
		t.Fatalf("spawn main: %v", st)
	}
	if st := main.Start(); st != OK {
		t.Fatalf("start main: %v", st)
	}
	go sched.Run()
	waitForAll(t, 5*time.Second, func(ctx context.Context) error {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return errors.New("scenario timed out")
		}
	})
}
