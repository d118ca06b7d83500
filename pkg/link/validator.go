package link

import (
	"errors"

	"github.com/golang/glog"
)

// processFrame validates the received bits and dispatches the payload.
// Caller holds isrLock.
func (l *Link) processFrame() {
	frame, err := ParseFrame(l.rx.Bytes())
	if err == ErrShortFrame {
		// Nothing more arrives after chip-select is deasserted; the bits
		// are discarded when the next frame starts.
		l.stats.droppedFrames.Add(1)
		glog.V(2).Infof("%s: incomplete frame (%d bits) dropped", l.board.Name(), l.rx.Len())
		return
	}

	var csErr *ChecksumError
	switch {
	case errors.As(err, &csErr):
		l.stats.checksumErrors.Add(1)
		l.reportError(frame, csErr)
		l.requestReply(reply{payload: ErrorToken})
	case frame.IsErrorToken():
		glog.V(2).Infof("%s: RCV error token", l.board.Name())
		if msg := l.LastSent(); msg != nil {
			l.requestReply(reply{payload: msg, retransmit: true})
		} else {
			glog.Warningf("%s: retransmission requested before anything was sent", l.board.Name())
		}
	default:
		l.stats.framesDelivered.Add(1)
		glog.V(2).Infof("%s: RCV %q", l.board.Name(), frame.Payload)
		if h := l.conf.Handler; h != nil {
			h.HandlePayload(frame.Payload)
		}
	}
	l.rx.Reset()
}

// reportError logs what was received for a frame failing the checksum.
func (l *Link) reportError(frame *Frame, err *ChecksumError) {
	glog.Warningf("%s: %v, requesting resend", l.board.Name(), err)
	glog.Warningf("%s: received data (raw): %s", l.board.Name(), l.rx.String())
	glog.Warningf("%s: decoded length: %d", l.board.Name(), frame.Length())
	glog.Warningf("%s: received checksum: %08b (decimal): %d", l.board.Name(), err.Got, err.Got)
	glog.Warningf("%s: decoded data: %q", l.board.Name(), frame.Payload)
}
