package link

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/gpiolink/pkg/gpio"
)

// Stats are the link counters.
type Stats struct {
	FramesSent      uint64
	FramesDelivered uint64
	ChecksumErrors  uint64
	Retransmits     uint64
	ErrorTokensSent uint64
	DroppedFrames   uint64
	OverflowBits    uint64
	DroppedReplies  uint64
}

type counters struct {
	framesSent      atomic.Uint64
	framesDelivered atomic.Uint64
	checksumErrors  atomic.Uint64
	retransmits     atomic.Uint64
	errorTokensSent atomic.Uint64
	droppedFrames   atomic.Uint64
	overflowBits    atomic.Uint64
	droppedReplies  atomic.Uint64
}

type reply struct {
	payload    []byte
	retransmit bool
}

// Link is one end of the link.
type Link struct {
	conf  Config
	board gpio.Board

	clock, data, cs, indicator gpio.Pin

	// isrLock serializes the interrupt handlers with each other and with
	// mode transitions.
	isrLock  sync.Mutex
	mode     Mode
	closed   bool
	selected bool
	rx       BitBuffer

	// txLock makes transmissions exclusive.
	txLock sync.Mutex

	lastLock sync.RWMutex
	lastSent []byte

	replyCh   chan reply
	closeCh   chan struct{}
	closeOnce sync.Once

	stats counters
}

// New claims the pins on board and starts listening.
func New(board gpio.Board, conf Config) (*Link, error) {
	conf = conf.withDefaults()
	ids := []gpio.PinID{conf.Clock, conf.Data, conf.Select, conf.Indicator}
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			if ids[i] == ids[j] {
				return nil, fmt.Errorf("pin %d assigned twice", ids[i])
			}
		}
	}
	l := &Link{
		conf:    conf,
		board:   board,
		replyCh: make(chan reply, conf.ReplyQueue),
		closeCh: make(chan struct{}),
	}
	pins := []*gpio.Pin{&l.clock, &l.data, &l.cs, &l.indicator}
	for n, id := range ids {
		pin, err := board.Pin(id)
		if err != nil {
			return nil, err
		}
		*pins[n] = pin
	}
	if err := claim(l, ids...); err != nil {
		return nil, err
	}
	if err := l.indicator.Out(gpio.Low); err != nil {
		release(l)
		return nil, err
	}
	if err := l.enterReceive(); err != nil {
		release(l)
		return nil, err
	}
	glog.V(4).Infof("link on %s: clock=%d data=%d cs=%d indicator=%d",
		board.Name(), conf.Clock, conf.Data, conf.Select, conf.Indicator)
	return l, nil
}

// Config returns the configuration with defaults applied.
func (l *Link) Config() Config {
	return l.conf
}

// Send transmits payload and remembers it for retransmission.
// It blocks until the frame is on the wire.
func (l *Link) Send(ctx context.Context, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	if l.isClosed() {
		return ErrClosed
	}
	msg := append(make([]byte, 0, len(payload)), payload...)
	return l.transmit(ctx, msg, true)
}

// LastSent returns the last payload Send put on the wire, nil if none.
func (l *Link) LastSent() []byte {
	l.lastLock.RLock()
	defer l.lastLock.RUnlock()
	if l.lastSent == nil {
		return nil
	}
	return append(make([]byte, 0, len(l.lastSent)), l.lastSent...)
}

// Mode returns the current line mode.
func (l *Link) Mode() Mode {
	l.isrLock.Lock()
	defer l.isrLock.Unlock()
	return l.mode
}

// Stats returns a snapshot of the counters.
func (l *Link) Stats() Stats {
	return Stats{
		FramesSent:      l.stats.framesSent.Load(),
		FramesDelivered: l.stats.framesDelivered.Load(),
		ChecksumErrors:  l.stats.checksumErrors.Load(),
		Retransmits:     l.stats.retransmits.Load(),
		ErrorTokensSent: l.stats.errorTokensSent.Load(),
		DroppedFrames:   l.stats.droppedFrames.Load(),
		OverflowBits:    l.stats.overflowBits.Load(),
		DroppedReplies:  l.stats.droppedReplies.Load(),
	}
}

// Run sends the replies requested by the receive path: error tokens
// after a bad checksum and retransmissions after an error token.
// It returns when ctx is done or the link is closed.
func (l *Link) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.closeCh:
			return nil
		case r := <-l.replyCh:
			if err := l.transmit(ctx, r.payload, false); err != nil {
				glog.Errorf("reply %q failed: %v", r.payload, err)
				continue
			}
			if r.retransmit {
				l.stats.retransmits.Add(1)
			} else {
				l.stats.errorTokensSent.Add(1)
			}
		}
	}
}

// Close detaches interrupts, releases the lines and the pins.
func (l *Link) Close() error {
	l.closeOnce.Do(func() { close(l.closeCh) })
	l.txLock.Lock()
	defer l.txLock.Unlock()

	l.isrLock.Lock()
	l.closed = true
	err := l.detach()
	l.isrLock.Unlock()

	for _, pin := range []gpio.Pin{l.clock, l.data, l.cs} {
		if e := pin.In(); err == nil {
			err = e
		}
	}
	if e := l.indicator.Out(gpio.Low); err == nil {
		err = e
	}
	release(l)
	return err
}

func (l *Link) setLastSent(msg []byte) {
	l.lastLock.Lock()
	l.lastSent = msg
	l.lastLock.Unlock()
}

func (l *Link) isClosed() bool {
	select {
	case <-l.closeCh:
		return true
	default:
		return false
	}
}

// requestReply queues a send from interrupt context without blocking.
func (l *Link) requestReply(r reply) {
	select {
	case l.replyCh <- r:
	default:
		l.stats.droppedReplies.Add(1)
		glog.Warningf("reply queue full, dropped %q", r.payload)
	}
}
