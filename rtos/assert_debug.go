//go:build rtdebug

package rtos

import "fmt"

// assertf validates an internal invariant in debug builds only: an
// invariant that must never fail in a release build is still worth
// checking under -tags rtdebug. A failing assertion is treated as a fatal
// reset condition, never a recoverable error.
func assertf(self *tcb, cond bool, format string, args ...any) {
	if cond {
		return
	}
	id := ThreadID{}
	if self != nil {
		id = self.id()
	}
	raiseFault(FaultInfo{Thread: id, Reason: fmt.Sprintf(format, args...)})
}
