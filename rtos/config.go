package rtos

import "time"

// Config sizes a Scheduler at construction time. There is no file or
// environment-variable configuration layer in this core: every limit here
// is a fixed capacity chosen by the embedder at compile time.
type Config struct {
	// MaxThreads bounds the number of live spawned threads; the static
	// thread table holds one more slot for the idle thread. Spawning beyond
	// this returns ENOMEM.
	MaxThreads int

	// MaxPriority is the highest base priority a thread may carry. Spawn
	// and Thread.SetPriority both reject a priority above this with
	// EINVAL. Priority 0 is reserved for the idle thread.
	MaxPriority uint8

	// TickPeriod is the interval the platform port is armed with by
	// Scheduler.Run. Zero disables the automatic tick and leaves the
	// embedder to drive Tick() manually (used by tests that need exact
	// control over tick delivery).
	TickPeriod time.Duration
}

// DefaultConfig returns a reasonable set of board defaults.
func DefaultConfig() Config {
	return Config{
		MaxThreads:  32,
		MaxPriority: 255,
		TickPeriod:  time.Millisecond,
	}
}
