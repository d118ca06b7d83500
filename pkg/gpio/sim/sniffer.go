package sim

import (
	"sync"
	"time"

	"github.com/robotalks/gpiolink/pkg/gpio"
)

// Sniffer records frames as driven on the wire: the bits clocked in
// between chip-select assertion and deassertion, packed MSB first.
// Trailing bits that don't fill a byte are discarded.
type Sniffer struct {
	frameCh chan []byte

	lock   sync.Mutex
	frames [][]byte
	cur    []byte
	nbits  int
}

func newSniffer() *Sniffer {
	return &Sniffer{frameCh: make(chan []byte, 64)}
}

func (s *Sniffer) start() {
	s.lock.Lock()
	s.cur, s.nbits = nil, 0
	s.lock.Unlock()
}

func (s *Sniffer) bit(l gpio.Level) {
	s.lock.Lock()
	if s.nbits%8 == 0 {
		s.cur = append(s.cur, 0)
	}
	if l {
		s.cur[s.nbits/8] |= 0x80 >> uint(s.nbits%8)
	}
	s.nbits++
	s.lock.Unlock()
}

func (s *Sniffer) finish() {
	s.lock.Lock()
	frame := s.cur[:s.nbits/8]
	s.frames = append(s.frames, frame)
	s.cur, s.nbits = nil, 0
	s.lock.Unlock()
	select {
	case s.frameCh <- frame:
	default:
	}
}

// Frames returns all frames recorded so far.
func (s *Sniffer) Frames() [][]byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	frames := make([][]byte, len(s.frames))
	copy(frames, s.frames)
	return frames
}

// Next waits for the next recorded frame.
func (s *Sniffer) Next(timeout time.Duration) ([]byte, bool) {
	select {
	case frame := <-s.frameCh:
		return frame, true
	case <-time.After(timeout):
		return nil, false
	}
}
