package rtos

import "math/bits"

// readyQueue is the Priority-Ordered Thread List (C3) specialized for the
// scheduler's ready set: one FIFO band per priority level plus a bitmap for
// O(1) highest-non-empty-band selection (find-highest-set-bit). The
// currently running thread is not a member of this list; it is tracked
// separately by Scheduler.running.
type readyQueue struct {
	bands  [256]band
	bitmap [4]uint64
}

type band struct {
	head, tail *tcb
}

func (q *readyQueue) setBit(p uint8)   { q.bitmap[p/64] |= 1 << (p % 64) }
func (q *readyQueue) clearBit(p uint8) { q.bitmap[p/64] &^= 1 << (p % 64) }

// highestBand returns the numerically highest non-empty priority band.
func (q *readyQueue) highestBand() (uint8, bool) {
	for w := 3; w >= 0; w-- {
		if q.bitmap[w] != 0 {
			bit := 63 - bits.LeadingZeros64(q.bitmap[w])
			return uint8(w*64 + bit), true
		}
	}
	return 0, false
}

// head returns the thread that should be running: the FIFO head of the
// highest non-empty band.
func (q *readyQueue) head() *tcb {
	p, ok := q.highestBand()
	if !ok {
		return nil
	}
	return q.bands[p].head
}

// pushTail inserts t at the tail of its effectivePriority's band.
func (q *readyQueue) pushTail(t *tcb) {
	b := &q.bands[t.effectivePriority]
	t.readyPrev = b.tail
	t.readyNext = nil
	if b.tail != nil {
		b.tail.readyNext = t
	} else {
		b.head = t
		q.setBit(t.effectivePriority)
	}
	b.tail = t
}

// remove detaches t from the band it currently occupies. The caller must
// pass the priority t was inserted under (its effectivePriority may have
// already changed by the time remove is called during a reposition).
func (q *readyQueue) remove(t *tcb, atPriority uint8) {
	b := &q.bands[atPriority]
	if t.readyPrev != nil {
		t.readyPrev.readyNext = t.readyNext
	} else {
		b.head = t.readyNext
	}
	if t.readyNext != nil {
		t.readyNext.readyPrev = t.readyPrev
	} else {
		b.tail = t.readyPrev
	}
	t.readyPrev, t.readyNext = nil, nil
	if b.head == nil {
		q.clearBit(atPriority)
	}
}

// peerExists reports whether some thread other than exclude occupies
// priority band p.
func (q *readyQueue) peerExists(p uint8, exclude *tcb) bool {
	for n := q.bands[p].head; n != nil; n = n.readyNext {
		if n != exclude {
			return true
		}
	}
	return false
}
