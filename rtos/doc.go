// Package rtos implements the scheduler core of a preemptive real-time
// kernel: a fixed-priority, round-robin-within-priority ready queue, a
// family of blocking wait primitives, and a priority-inheritance /
// priority-protect mutex with propagation through chains of blocked
// holders.
//
// Every public operation returns an integer Status rather than an error;
// there is exactly one critical section in the system, the platform
// port's interrupt mask, and nothing here holds any other lock.
package rtos
