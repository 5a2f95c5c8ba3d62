//go:build !tinygo

// Command sparkmon is a host-only scheduler visualizer: it runs a small
// demo workload through the PI mutex core and draws a live bar chart of
// each thread's base and effective priority. It is a development aid, not
// something that runs on board firmware.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"

	"sparkrt/internal/buildinfo"
	"sparkrt/port"
	"sparkrt/rtos"
)

func main() {
	var workers int
	var tickHz int
	flag.IntVar(&workers, "workers", 6, "Number of demo worker threads.")
	flag.IntVar(&tickHz, "hz", 1000, "Scheduler tick rate.")
	flag.Parse()

	sched := rtos.NewKernel(rtos.Config{
		MaxThreads:  32,
		MaxPriority: 255,
		TickPeriod:  time.Second / time.Duration(tickHz),
	}, port.New())

	demo(sched, workers)

	go sched.Run()

	g := &monitor{sched: sched}
	ebiten.SetWindowTitle(fmt.Sprintf("sparkmon %s", buildinfo.Short()))
	ebiten.SetWindowSize(640, 360)
	ebiten.SetTPS(30)
	if err := ebiten.RunGame(g); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// demo spawns a chain of worker threads contending on a PI mutex, so the
// visualizer has inheritance to show: each worker locks m, sleeps briefly
// while holding it, then unlocks.
func demo(sched *rtos.Scheduler, workers int) {
	m := rtos.NewMutex(sched, rtos.MutexNormal, rtos.ProtocolPriorityInheritance, 0)
	for i := 0; i < workers; i++ {
		prio := uint8(workers - i)
		th, st := rtos.Spawn(sched, prio, func(ctx *rtos.ThreadContext) {
			for {
				if m.Lock(ctx) == rtos.OK {
					_ = ctx.SleepFor(5*time.Millisecond, time.Millisecond)
					m.Unlock(ctx)
				}
				_ = ctx.SleepFor(20*time.Millisecond, time.Millisecond)
			}
		})
		if st != rtos.OK {
			continue
		}
		th.Start()
	}
}

type monitor struct {
	sched *rtos.Scheduler
}

func (g *monitor) Update() error { return nil }

func (g *monitor) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{16, 16, 24, 255})
	snap := g.sched.Snapshot()
	stats := g.sched.Stats()

	ebitenutil.DebugPrintAt(screen, fmt.Sprintf(
		"ticks=%d switches=%d preemptions=%d",
		stats.Ticks, stats.ContextSwitches, stats.Preemptions), 8, 8)

	const rowHeight = 22
	const barOriginX = 160
	const barScale = 1.5
	for i, t := range snap {
		y := 32 + i*rowHeight
		label := fmt.Sprintf("T%s  base=%-3d eff=%-3d %-10s", t.ID, t.BasePriority, t.EffectivePriority, t.State)
		ebitenutil.DebugPrintAt(screen, label, 8, y)

		barColor := color.RGBA{80, 160, 80, 255}
		if t.Running {
			barColor = color.RGBA{220, 200, 60, 255}
		}
		w := int(float64(t.EffectivePriority) * barScale)
		bar := image.NewRGBA(image.Rect(0, 0, max(w, 1), 14))
		for px := 0; px < bar.Bounds().Dx(); px++ {
			for py := 0; py < bar.Bounds().Dy(); py++ {
				bar.Set(px, py, barColor)
			}
		}
		img := ebiten.NewImageFromImage(bar)
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Translate(float64(barOriginX), float64(y))
		screen.DrawImage(img, op)
	}
}

func (g *monitor) Layout(outsideWidth, outsideHeight int) (int, int) {
	return 640, 360
}
