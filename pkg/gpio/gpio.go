// Package gpio defines the hardware boundary used by the link: digital
// pins that can be read, driven, switched between input and output, and
// watched for edges.
package gpio

import (
	"context"
	"fmt"
)

// Level is the logic level of a pin.
type Level bool

// Logic levels.
const (
	Low  Level = false
	High Level = true
)

// String implements fmt.Stringer.
func (l Level) String() string {
	if l {
		return "High"
	}
	return "Low"
}

// Edge selects which transitions trigger a watch handler.
type Edge int

// Edges.
const (
	NoEdge Edge = iota
	RisingEdge
	FallingEdge
	BothEdges
)

// Matches reports whether a transition to level l is selected by e.
func (e Edge) Matches(l Level) bool {
	switch e {
	case RisingEdge:
		return l == High
	case FallingEdge:
		return l == Low
	case BothEdges:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (e Edge) String() string {
	switch e {
	case NoEdge:
		return "NoEdge"
	case RisingEdge:
		return "RisingEdge"
	case FallingEdge:
		return "FallingEdge"
	case BothEdges:
		return "BothEdges"
	}
	return fmt.Sprintf("Edge(%d)", int(e))
}

// PinID identifies a pin on a Board.
type PinID int

// EdgeHandler is called when a watched edge happens. The level is the
// pin level sampled when the transition was detected.
type EdgeHandler func(Level)

// Pin is a single digital line.
type Pin interface {
	// ID returns the identifier of the pin on its board.
	ID() PinID
	// In configures the pin as an input. A released line reads Low.
	In() error
	// Out configures the pin as an output and drives l.
	Out(l Level) error
	// Read samples the current level.
	Read() Level
	// Watch attaches handler to the selected edges. The pin must be an input.
	// A pin has at most one watch; a new Watch replaces the previous one.
	Watch(edge Edge, handler EdgeHandler) error
	// Unwatch detaches the edge handler. Edges not handled yet are not
	// reported (see Syncer); an invocation already dispatched may still run.
	Unwatch() error
}

// LatchHandler is called with the level of the watched pin and the level
// of the latched pin, both sampled when the edge was detected.
type LatchHandler func(level, latched Level)

// Latcher is implemented by pins whose handlers may run well after the
// edge. WatchLatched is Watch capturing the level of latch along with
// every edge.
type Latcher interface {
	WatchLatched(edge Edge, latch Pin, handler LatchHandler) error
}

// Syncer is implemented by boards dispatching edges on another goroutine.
type Syncer interface {
	// Sync returns once the edges detected before the call were handled.
	Sync(ctx context.Context) error
}

// Board resolves pin identifiers into pins.
type Board interface {
	// Name identifies the board; it scopes interrupt sources.
	Name() string
	// Pin returns the pin with the given identifier.
	Pin(PinID) (Pin, error)
}

// PinError is returned by boards for pins they can't provide.
type PinError struct {
	Board string
	ID    PinID
	Err   error
}

// Error implements error.
func (e *PinError) Error() string {
	return fmt.Sprintf("%s: pin %d: %v", e.Board, e.ID, e.Err)
}

// Unwrap returns the cause.
func (e *PinError) Unwrap() error {
	return e.Err
}
