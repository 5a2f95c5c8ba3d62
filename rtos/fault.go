package rtos

import (
	"sync"
	"sync/atomic"
)

// FaultInfo describes a fatal invariant violation: a corrupt scheduler
// list, an owner/waiter mismatch, or any other condition treated as a
// fatal reset condition rather than a recoverable error.
type FaultInfo struct {
	Thread ThreadID
	Reason string
}

var (
	faultActive  atomic.Bool
	faultOnce    sync.Once
	faultHandler atomic.Value // func(FaultInfo)
)

// InFaultMode reports whether the kernel has already raised a fatal fault.
func InFaultMode() bool {
	return faultActive.Load()
}

// SetFaultHandler installs a process-wide fault handler. It is invoked at
// most once, on the first fault, and must not itself fault.
func SetFaultHandler(fn func(FaultInfo)) {
	faultHandler.Store(fn)
}

// raiseFault is called by debug-build assertions (see assert_debug.go) on an
// invariant violation. It never returns.
func raiseFault(info FaultInfo) {
	faultOnce.Do(func() {
		faultActive.Store(true)
		if v := faultHandler.Load(); v != nil {
			if fn, ok := v.(func(FaultInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
	panic(info)
}
