//go:build tinygo

package mcu

import (
	"context"
	"machine"
	"runtime"
	"sync/atomic"

	"github.com/robotalks/gpiolink/pkg/gpio"
)

const ringSize = 64

type edgeEvent struct {
	id      gpio.PinID
	level   gpio.Level
	latched gpio.Level
}

// Board is the microcontroller itself.
type Board struct {
	pins map[gpio.PinID]*Pin

	ring       [ringSize]edgeEvent
	head, tail atomic.Uint32
	handled    atomic.Uint32
	overruns   atomic.Uint32
}

// Open returns the board and starts the edge dispatcher.
func Open() *Board {
	b := &Board{pins: make(map[gpio.PinID]*Pin)}
	go b.dispatch()
	return b
}

// Name implements gpio.Board.
func (b *Board) Name() string {
	return "mcu"
}

// Pin implements gpio.Board. Pin identifiers are machine pin numbers.
// Pins must be resolved before any of them is watched.
func (b *Board) Pin(id gpio.PinID) (gpio.Pin, error) {
	if p := b.pins[id]; p != nil {
		return p, nil
	}
	if machine.Pin(id) == machine.NoPin {
		return nil, &gpio.PinError{Board: b.Name(), ID: id, Err: errNoPin}
	}
	p := &Pin{board: b, id: id, pin: machine.Pin(id)}
	b.pins[id] = p
	return p, nil
}

// Overruns counts edges lost because the ring was full.
func (b *Board) Overruns() uint32 {
	return b.overruns.Load()
}

// Sync implements gpio.Syncer.
func (b *Board) Sync(ctx context.Context) error {
	target := b.head.Load()
	for int32(target-b.handled.Load()) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		runtime.Gosched()
	}
	return nil
}

// record runs in interrupt context.
func (b *Board) record(id gpio.PinID, level, latched gpio.Level) {
	head, tail := b.head.Load(), b.tail.Load()
	if head-tail >= ringSize {
		b.overruns.Add(1)
		return
	}
	b.ring[head%ringSize] = edgeEvent{id: id, level: level, latched: latched}
	b.head.Store(head + 1)
}

func (b *Board) dispatch() {
	for {
		tail := b.tail.Load()
		if tail == b.head.Load() {
			runtime.Gosched()
			continue
		}
		ev := b.ring[tail%ringSize]
		b.tail.Store(tail + 1)
		if p := b.pins[ev.id]; p != nil {
			if handler, edge := p.watching(); handler != nil && edge.Matches(ev.level) {
				handler(ev.level, ev.latched)
			}
		}
		b.handled.Store(tail + 1)
	}
}

// Pin is a machine pin.
type Pin struct {
	board *Board
	id    gpio.PinID
	pin   machine.Pin

	handler atomic.Value
	edge    atomic.Int32
}

type handlerBox struct {
	fn gpio.LatchHandler
}

// ID implements gpio.Pin.
func (p *Pin) ID() gpio.PinID {
	return p.id
}

// In implements gpio.Pin. Released lines are pulled down.
func (p *Pin) In() error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	return nil
}

// Out implements gpio.Pin.
func (p *Pin) Out(l gpio.Level) error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.pin.Set(bool(l))
	return nil
}

// Read implements gpio.Pin.
func (p *Pin) Read() gpio.Level {
	return gpio.Level(p.pin.Get())
}

// Watch implements gpio.Pin.
func (p *Pin) Watch(edge gpio.Edge, handler gpio.EdgeHandler) error {
	return p.WatchLatched(edge, nil, func(l, _ gpio.Level) { handler(l) })
}

// WatchLatched implements gpio.Latcher. The latch is read in the
// interrupt handler; latch may be nil.
func (p *Pin) WatchLatched(edge gpio.Edge, latch gpio.Pin, handler gpio.LatchHandler) error {
	var change machine.PinChange
	switch edge {
	case gpio.RisingEdge:
		change = machine.PinRising
	case gpio.FallingEdge:
		change = machine.PinFalling
	case gpio.BothEdges:
		change = machine.PinToggle
	default:
		return p.Unwatch()
	}
	p.handler.Store(handlerBox{fn: handler})
	p.edge.Store(int32(edge))
	return p.pin.SetInterrupt(change, func(pin machine.Pin) {
		var latched gpio.Level
		if latch != nil {
			latched = latch.Read()
		}
		p.board.record(p.id, gpio.Level(pin.Get()), latched)
	})
}

// Unwatch implements gpio.Pin.
func (p *Pin) Unwatch() error {
	p.edge.Store(int32(gpio.NoEdge))
	p.handler.Store(handlerBox{})
	return p.pin.SetInterrupt(0, nil)
}

func (p *Pin) watching() (gpio.LatchHandler, gpio.Edge) {
	box, _ := p.handler.Load().(handlerBox)
	return box.fn, gpio.Edge(p.edge.Load())
}
