package sim

import (
	"errors"

	"github.com/robotalks/gpiolink/pkg/gpio"
)

var (
	// ErrWatchOutput is returned when watching a pin configured as output.
	ErrWatchOutput = errors.New("sim: watch on output pin")
	// ErrWatchLocal is returned when watching a pin not connected to the wire.
	ErrWatchLocal = errors.New("sim: watch on unwired pin")
)

// Board is one party on the wire. Pins other than the wired lines are
// local to the board (e.g. an indicator LED).
type Board struct {
	wire  *Wire
	name  string
	pins  map[gpio.PinID]*Pin
	local map[gpio.PinID]*localState

	// wired pins in output mode
	outputs int
	// wired pins with an attached watch
	watching int
	// most watches seen at once; the board keeps the wire until re-armed
	armed int

	violations int
}

type localState struct {
	level       gpio.Level
	transitions int
}

// Name implements gpio.Board.
func (b *Board) Name() string {
	return b.name
}

// Pin implements gpio.Board.
func (b *Board) Pin(id gpio.PinID) (gpio.Pin, error) {
	w := b.wire
	w.lock.Lock()
	defer w.lock.Unlock()
	p := b.pins[id]
	if p == nil {
		p = &Pin{board: b, id: id, wired: w.isWired(id)}
		b.pins[id] = p
		if !p.wired {
			b.local[id] = &localState{}
		}
	}
	return p, nil
}

// Violations counts the moments this board had an edge watch attached on
// a wired line while any wired line was configured as output.
func (b *Board) Violations() int {
	b.wire.lock.Lock()
	defer b.wire.lock.Unlock()
	return b.violations
}

// LocalLevel returns the level of a local pin.
func (b *Board) LocalLevel(id gpio.PinID) gpio.Level {
	b.wire.lock.Lock()
	defer b.wire.lock.Unlock()
	if s := b.local[id]; s != nil {
		return s.level
	}
	return gpio.Low
}

// LocalTransitions returns how many times a local pin changed level.
func (b *Board) LocalTransitions(id gpio.PinID) int {
	b.wire.lock.Lock()
	defer b.wire.lock.Unlock()
	if s := b.local[id]; s != nil {
		return s.transitions
	}
	return 0
}

// Pin is a pin of a simulated board.
type Pin struct {
	board   *Board
	id      gpio.PinID
	wired   bool
	output  bool
	edge    gpio.Edge
	handler gpio.EdgeHandler
}

// ID implements gpio.Pin.
func (p *Pin) ID() gpio.PinID {
	return p.id
}

// In implements gpio.Pin. Releasing a wired line lets it fall back to its
// pull-down level.
func (p *Pin) In() error {
	w, b := p.board.wire, p.board
	w.lock.Lock()
	if !p.wired {
		p.output = false
		w.lock.Unlock()
		return nil
	}
	var calls []dispatch
	if p.output {
		p.output = false
		b.outputs--
		calls = w.setLevel(p.id, gpio.Low)
	}
	w.maybeRelease(b)
	w.lock.Unlock()
	w.run(calls)
	return nil
}

// Out implements gpio.Pin. Driving a wired line blocks while another
// board owns the wire.
func (p *Pin) Out(l gpio.Level) error {
	w, b := p.board.wire, p.board
	w.lock.Lock()
	if !p.wired {
		p.output = true
		if s := b.local[p.id]; s.level != l {
			s.level = l
			s.transitions++
		}
		w.lock.Unlock()
		return nil
	}
	w.acquire(b)
	if !p.output {
		p.output = true
		b.outputs++
		if b.watching > 0 {
			b.violations++
		}
	}
	calls := w.setLevel(p.id, l)
	w.lock.Unlock()
	w.run(calls)
	return nil
}

// Read implements gpio.Pin.
func (p *Pin) Read() gpio.Level {
	if !p.wired {
		return p.board.LocalLevel(p.id)
	}
	return p.board.wire.read(p.id)
}

// Watch implements gpio.Pin.
func (p *Pin) Watch(edge gpio.Edge, handler gpio.EdgeHandler) error {
	if !p.wired {
		return ErrWatchLocal
	}
	w, b := p.board.wire, p.board
	w.lock.Lock()
	defer w.lock.Unlock()
	if p.output {
		return ErrWatchOutput
	}
	if p.handler == nil {
		b.watching++
		if b.watching > b.armed {
			b.armed = b.watching
		}
		if b.outputs > 0 {
			b.violations++
		}
	}
	p.edge, p.handler = edge, handler
	w.maybeRelease(b)
	return nil
}

// Unwatch implements gpio.Pin.
func (p *Pin) Unwatch() error {
	w, b := p.board.wire, p.board
	w.lock.Lock()
	defer w.lock.Unlock()
	if p.handler != nil {
		p.edge, p.handler = gpio.NoEdge, nil
		b.watching--
	}
	return nil
}
