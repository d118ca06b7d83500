// Package periph provides gpio.Board on Linux hosts (e.g. Raspberry Pi)
// through periph.io.
//
// periph.io reports edges by blocking in WaitForEdge, so every watched pin
// has a goroutine waiting for edges. All edges of a board are funnelled
// into a single dispatcher goroutine, which calls the handlers one at a
// time in the order the edges were detected. The level of the pin, and of
// a latched pin, are sampled by the waiting goroutine, not the dispatcher.
package periph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/robotalks/gpiolink/pkg/gpio"
)

// DefaultEdgeTimeout bounds a single WaitForEdge call so that watchers can
// notice Unwatch.
const DefaultEdgeTimeout = 20 * time.Millisecond

const syncPollInterval = 200 * time.Microsecond

// ErrClosed is returned when using a closed board.
var ErrClosed = errors.New("periph: board closed")

// Board is the host GPIO controller.
type Board struct {
	// PinName maps a pin identifier to the periph.io pin name.
	PinName func(gpio.PinID) string
	// EdgeTimeout overrides DefaultEdgeTimeout.
	EdgeTimeout time.Duration

	lookup func(string) pgpio.PinIO
	lock   sync.Mutex
	pins   map[gpio.PinID]*Pin
	events chan event
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

type event struct {
	pin     *Pin
	gen     uint64
	level   gpio.Level
	latched gpio.Level
	// barrier is closed by the dispatcher instead of calling a handler.
	barrier chan struct{}
}

// Open initializes the host drivers and starts the edge dispatcher.
func Open() (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return newBoard(gpioreg.ByName), nil
}

func newBoard(lookup func(string) pgpio.PinIO) *Board {
	b := &Board{
		PinName: func(id gpio.PinID) string { return fmt.Sprintf("GPIO%d", id) },
		lookup:  lookup,
		pins:    make(map[gpio.PinID]*Pin),
		events:  make(chan event, 256),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Name implements gpio.Board.
func (b *Board) Name() string {
	return "periph"
}

// Pin implements gpio.Board.
func (b *Board) Pin(id gpio.PinID) (gpio.Pin, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return nil, &gpio.PinError{Board: b.Name(), ID: id, Err: ErrClosed}
	}
	if p := b.pins[id]; p != nil {
		return p, nil
	}
	name := b.PinName(id)
	io := b.lookup(name)
	if io == nil {
		return nil, &gpio.PinError{Board: b.Name(), ID: id, Err: fmt.Errorf("no pin named %s", name)}
	}
	p := &Pin{board: b, id: id, io: io}
	b.pins[id] = p
	return p, nil
}

// Close stops all watchers and the dispatcher and halts the pins.
func (b *Board) Close() error {
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		return nil
	}
	b.closed = true
	pins := make([]*Pin, 0, len(b.pins))
	for _, p := range b.pins {
		pins = append(pins, p)
	}
	b.lock.Unlock()

	var err error
	for _, p := range pins {
		p.Unwatch()
		if e := p.io.Halt(); e != nil && err == nil {
			err = e
		}
	}
	close(b.stop)
	<-b.done
	return err
}

func (b *Board) edgeTimeout() time.Duration {
	if b.EdgeTimeout > 0 {
		return b.EdgeTimeout
	}
	return DefaultEdgeTimeout
}

func (b *Board) dispatch() {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		case ev := <-b.events:
			if ev.barrier != nil {
				close(ev.barrier)
				continue
			}
			if handler := ev.pin.handlerFor(ev.gen); handler != nil {
				handler(ev.level, ev.latched)
			}
		}
	}
}

// Sync implements gpio.Syncer. Every watched pin must report no pending
// edge from a wait started after the call, then the dispatcher must have
// drained what was queued.
func (b *Board) Sync(ctx context.Context) error {
	type mark struct {
		pin   *Pin
		after uint64
	}
	b.lock.Lock()
	marks := make([]mark, 0, len(b.pins))
	for _, p := range b.pins {
		marks = append(marks, mark{pin: p, after: p.waits.Load()})
	}
	b.lock.Unlock()

	ticker := time.NewTicker(syncPollInterval)
	defer ticker.Stop()
	for {
		pending := marks[:0]
		for _, m := range marks {
			if m.pin.watching() && m.pin.idle.Load() <= m.after {
				pending = append(pending, m)
			}
		}
		if marks = pending; len(marks) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrClosed
		case <-ticker.C:
		}
	}

	barrier := make(chan struct{})
	select {
	case b.events <- event{barrier: barrier}:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrClosed
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrClosed
	}
}

// Pin wraps a periph.io pin.
type Pin struct {
	board *Board
	id    gpio.PinID
	io    pgpio.PinIO

	lock    sync.Mutex
	gen     uint64
	handler gpio.LatchHandler
	quit    chan struct{}
	exited  chan struct{}

	// waits numbers the WaitForEdge calls; idle is the number of the last
	// one which timed out.
	waits atomic.Uint64
	idle  atomic.Uint64
}

// ID implements gpio.Pin.
func (p *Pin) ID() gpio.PinID {
	return p.id
}

// In implements gpio.Pin. Released lines are pulled down.
func (p *Pin) In() error {
	p.lock.Lock()
	watching := p.handler != nil
	p.lock.Unlock()
	if watching {
		return nil
	}
	return p.io.In(pgpio.PullDown, pgpio.NoEdge)
}

// Out implements gpio.Pin.
func (p *Pin) Out(l gpio.Level) error {
	return p.io.Out(toPeriph(l))
}

// Read implements gpio.Pin.
func (p *Pin) Read() gpio.Level {
	return fromPeriph(p.io.Read())
}

// Watch implements gpio.Pin.
func (p *Pin) Watch(edge gpio.Edge, handler gpio.EdgeHandler) error {
	return p.WatchLatched(edge, nil, func(l, _ gpio.Level) { handler(l) })
}

// WatchLatched implements gpio.Latcher. latch may be nil.
func (p *Pin) WatchLatched(edge gpio.Edge, latch gpio.Pin, handler gpio.LatchHandler) error {
	if err := p.Unwatch(); err != nil {
		return err
	}
	if err := p.io.In(pgpio.PullDown, toPeriphEdge(edge)); err != nil {
		return err
	}
	p.lock.Lock()
	p.gen++
	p.handler = handler
	p.quit, p.exited = make(chan struct{}), make(chan struct{})
	go p.watch(p.gen, latch, p.quit, p.exited)
	p.lock.Unlock()
	return nil
}

// Unwatch implements gpio.Pin. It waits for the watcher goroutine to exit.
func (p *Pin) Unwatch() error {
	p.lock.Lock()
	quit, exited := p.quit, p.exited
	p.gen++
	p.handler, p.quit, p.exited = nil, nil, nil
	p.lock.Unlock()
	if quit == nil {
		return nil
	}
	close(quit)
	<-exited
	return p.io.In(pgpio.PullDown, pgpio.NoEdge)
}

func (p *Pin) watching() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.quit != nil
}

func (p *Pin) handlerFor(gen uint64) gpio.LatchHandler {
	p.lock.Lock()
	defer p.lock.Unlock()
	if gen != p.gen {
		return nil
	}
	return p.handler
}

func (p *Pin) watch(gen uint64, latch gpio.Pin, quit, exited chan struct{}) {
	defer close(exited)
	timeout := p.board.edgeTimeout()
	for {
		select {
		case <-quit:
			return
		default:
		}
		n := p.waits.Add(1)
		if !p.io.WaitForEdge(timeout) {
			p.idle.Store(n)
			continue
		}
		ev := event{pin: p, gen: gen, level: fromPeriph(p.io.Read())}
		if latch != nil {
			ev.latched = latch.Read()
		}
		select {
		case p.board.events <- ev:
		case <-quit:
			return
		default:
			glog.Warningf("periph: edge on %s dropped, dispatcher busy", p.io.Name())
		}
	}
}

func toPeriph(l gpio.Level) pgpio.Level {
	if l == gpio.High {
		return pgpio.High
	}
	return pgpio.Low
}

func fromPeriph(l pgpio.Level) gpio.Level {
	return gpio.Level(l == pgpio.High)
}

func toPeriphEdge(e gpio.Edge) pgpio.Edge {
	switch e {
	case gpio.RisingEdge:
		return pgpio.RisingEdge
	case gpio.FallingEdge:
		return pgpio.FallingEdge
	case gpio.BothEdges:
		return pgpio.BothEdges
	}
	return pgpio.NoEdge
}
