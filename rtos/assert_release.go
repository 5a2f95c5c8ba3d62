//go:build !rtdebug

package rtos

// assertf is a no-op in release builds: the core never pays for invariant
// checking outside of -tags rtdebug.
func assertf(self *tcb, cond bool, format string, args ...any) {}
