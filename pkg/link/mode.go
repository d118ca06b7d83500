package link

import (
	"github.com/golang/glog"

	"github.com/robotalks/gpiolink/pkg/gpio"
)

// Mode tells which way the shared lines are configured.
type Mode int

// Modes.
const (
	// ModeReceive: lines are inputs with edge handlers attached.
	ModeReceive Mode = iota
	// ModeSend: handlers are detached and lines are driven.
	ModeSend
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == ModeSend {
		return "SEND"
	}
	return "RECEIVE"
}

// enterSend detaches the handlers before any line becomes an output.
func (l *Link) enterSend() error {
	l.isrLock.Lock()
	l.mode = ModeSend
	err := l.detach()
	l.isrLock.Unlock()
	if err != nil {
		return err
	}
	for _, pin := range []gpio.Pin{l.clock, l.data, l.cs} {
		if err := pin.Out(gpio.Low); err != nil {
			return err
		}
	}
	glog.V(4).Infof("%s: mode %s", l.board.Name(), ModeSend)
	return nil
}

// enterReceive makes all lines inputs before attaching the handlers.
func (l *Link) enterReceive() error {
	for _, pin := range []gpio.Pin{l.clock, l.data, l.cs} {
		if err := pin.In(); err != nil {
			return err
		}
	}
	l.isrLock.Lock()
	defer l.isrLock.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.rx.Reset()
	l.selected = false
	if err := l.watchClock(); err != nil {
		return err
	}
	if err := l.cs.Watch(gpio.BothEdges, l.onSelect); err != nil {
		l.clock.Unwatch()
		return err
	}
	l.mode = ModeReceive
	glog.V(4).Infof("%s: mode %s", l.board.Name(), ModeReceive)
	return nil
}

// watchClock has the data level captured with each clock edge on pins
// supporting it.
func (l *Link) watchClock() error {
	if latcher, ok := l.clock.(gpio.Latcher); ok {
		return latcher.WatchLatched(gpio.RisingEdge, l.data, l.onLatchedClock)
	}
	return l.clock.Watch(gpio.RisingEdge, l.onClock)
}

// detach removes both handlers. Caller holds isrLock.
func (l *Link) detach() error {
	err := l.clock.Unwatch()
	if e := l.cs.Unwatch(); err == nil {
		err = e
	}
	l.selected = false
	return err
}
