//go:build tinygo && baremetal

package port

import (
	"machine"
	"runtime/interrupt"
	"time"
)

// tinygoPort implements Port on bare metal. Masking disables and restores
// the processor's global interrupt-enable state via runtime/interrupt
// rather than a go.mod dependency. ContextSwitch hands control between
// per-thread goroutines; TinyGo's own cooperative scheduler performs the
// actual stack switch, so the port only decides which goroutine runs next.
type tinygoPort struct {
	seq uint64
}

// New constructs the baremetal Platform Port.
func New() Port {
	return &tinygoPort{}
}

func (p *tinygoPort) Mask() Cookie {
	return Cookie(interrupt.Disable())
}

func (p *tinygoPort) Unmask(c Cookie) {
	interrupt.Restore(interrupt.State(c))
}

func (p *tinygoPort) Now() Tick {
	return Tick(p.seq)
}

func (p *tinygoPort) SetTickPeriod(period time.Duration, onTick func()) {
	ticker := time.NewTicker(period)
	go func() {
		for range ticker.C {
			p.seq++
			onTick()
		}
	}()
}

func (p *tinygoPort) ContextSwitch(from, to *Waker) {
	to.Wake()
	from.Park()
}

// Idle puts the core to sleep until the next interrupt. machine.Asm is the
// TinyGo builtin inline-assembly escape hatch used for the WFI idiom.
func (p *tinygoPort) Idle() {
	machine.Asm("wfi")
}
