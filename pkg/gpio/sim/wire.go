// Package sim simulates the three shared lines of a link (clock, data and
// chip-select) between any number of boards in memory.
//
// Edge handlers run synchronously in the goroutine that changed the line,
// the way an interrupt preempts whatever the core was doing. Only one board
// drives the wire at a time: a board that configures a wired pin as an
// output waits until the current driver has returned all its wired pins to
// inputs and re-armed the edge watches it had before it started driving.
package sim

import (
	"sync"

	"github.com/robotalks/gpiolink/pkg/gpio"
)

// Wire connects the clock, data and chip-select lines of several boards.
type Wire struct {
	Clock  gpio.PinID
	Data   gpio.PinID
	Select gpio.PinID

	lock   sync.Mutex
	cond   *sync.Cond
	levels map[gpio.PinID]gpio.Level
	owner  *Board
	boards []*Board

	corruptAt  int
	corruptNow bool
	flipData   bool
	inFrame    bool
	bitIndex   int
	sniffers   []*Sniffer
}

type dispatch struct {
	handler gpio.EdgeHandler
	level   gpio.Level
}

// NewWire creates a Wire for the given line assignment.
// All lines start pulled low.
func NewWire(clock, data, cs gpio.PinID) *Wire {
	w := &Wire{
		Clock:     clock,
		Data:      data,
		Select:    cs,
		levels:    make(map[gpio.PinID]gpio.Level),
		corruptAt: -1,
	}
	w.cond = sync.NewCond(&w.lock)
	return w
}

// Board attaches a new board to the wire.
func (w *Wire) Board(name string) *Board {
	b := &Board{
		wire:  w,
		name:  name,
		pins:  make(map[gpio.PinID]*Pin),
		local: make(map[gpio.PinID]*localState),
	}
	w.lock.Lock()
	w.boards = append(w.boards, b)
	w.lock.Unlock()
	return b
}

// Level returns the current level of a wired line.
func (w *Wire) Level(id gpio.PinID) gpio.Level {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.levels[id]
}

// CorruptBit inverts the data level seen by receivers at the n-th clock
// rising edge (counting from 0) of the next frame. The sniffer still
// records the driven level.
func (w *Wire) CorruptBit(n int) {
	w.lock.Lock()
	w.corruptAt = n
	w.lock.Unlock()
}

// Sniff attaches a sniffer that records every frame on the wire.
func (w *Wire) Sniff() *Sniffer {
	s := newSniffer()
	w.lock.Lock()
	w.sniffers = append(w.sniffers, s)
	w.lock.Unlock()
	return s
}

func (w *Wire) isWired(id gpio.PinID) bool {
	return id == w.Clock || id == w.Data || id == w.Select
}

// acquire blocks until b may drive the wire. Caller holds the lock.
func (w *Wire) acquire(b *Board) {
	for w.owner != nil && w.owner != b {
		w.cond.Wait()
	}
	w.owner = b
}

// maybeRelease hands the wire back once the owner is listening again.
// Caller holds the lock.
func (w *Wire) maybeRelease(b *Board) {
	if w.owner == b && b.outputs == 0 && b.watching >= b.armed {
		w.owner = nil
		w.cond.Broadcast()
	}
}

// setLevel changes a line and collects the handlers to run.
// Caller holds the lock.
func (w *Wire) setLevel(id gpio.PinID, l gpio.Level) []dispatch {
	if w.levels[id] == l {
		return nil
	}
	w.levels[id] = l

	switch {
	case id == w.Select && l == gpio.High:
		w.inFrame, w.bitIndex = true, 0
		w.corruptNow = w.corruptAt >= 0
		for _, s := range w.sniffers {
			s.start()
		}
	case id == w.Select && l == gpio.Low:
		if w.inFrame {
			for _, s := range w.sniffers {
				s.finish()
			}
		}
		w.inFrame = false
		if w.corruptNow {
			w.corruptNow, w.corruptAt = false, -1
		}
	case id == w.Clock && l == gpio.High && w.inFrame:
		bit := w.levels[w.Data]
		for _, s := range w.sniffers {
			s.bit(bit)
		}
		if w.corruptNow && w.bitIndex == w.corruptAt {
			w.flipData = true
			w.corruptNow, w.corruptAt = false, -1
		}
		w.bitIndex++
	}

	var calls []dispatch
	for _, b := range w.boards {
		if p := b.pins[id]; p != nil && !p.output && p.handler != nil && p.edge.Matches(l) {
			calls = append(calls, dispatch{handler: p.handler, level: l})
		}
	}
	return calls
}

func (w *Wire) run(calls []dispatch) {
	for _, c := range calls {
		c.handler(c.level)
	}
	w.lock.Lock()
	w.flipData = false
	w.lock.Unlock()
}

func (w *Wire) read(id gpio.PinID) gpio.Level {
	w.lock.Lock()
	defer w.lock.Unlock()
	l := w.levels[id]
	if id == w.Data && w.flipData {
		l = !l
	}
	return l
}
