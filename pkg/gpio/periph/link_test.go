package periph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/robotalks/gpiolink/pkg/link"
)

const (
	csName    = "GPIO21"
	clockName = "GPIO22"
	dataName  = "GPIO23"
	ledName   = "GPIO24"
)

type scriptStep struct {
	pin   string
	level pgpio.Level
	// edge steps are reported by WaitForEdge, others only change the level
	edge bool
}

type pinOut struct {
	pin   string
	level pgpio.Level
}

// edgeScript replays line changes of a peer in order. An edge is handed
// to its pin only after the previous edge was queued by the board: a
// watcher asking for the next edge has queued the last one.
type edgeScript struct {
	lock    sync.Mutex
	cond    *sync.Cond
	pins    map[string]*scriptPin
	steps   []scriptStep
	next    int
	pending string
	closed  bool
	outs    []pinOut
}

type scriptPin struct {
	*gpiotest.Pin
	script *edgeScript
}

func newEdgeScript(steps []scriptStep) *edgeScript {
	s := &edgeScript{pins: make(map[string]*scriptPin), steps: steps}
	s.cond = sync.NewCond(&s.lock)
	for _, name := range []string{csName, clockName, dataName, ledName} {
		s.pins[name] = &scriptPin{
			Pin:    &gpiotest.Pin{N: name, EdgesChan: make(chan pgpio.Level)},
			script: s,
		}
	}
	s.lock.Lock()
	s.advance()
	s.lock.Unlock()
	return s
}

// advance applies the level changes at the head. Caller holds lock.
func (s *edgeScript) advance() {
	for s.next < len(s.steps) && !s.steps[s.next].edge {
		step := s.steps[s.next]
		s.pins[step.pin].Pin.Out(step.level)
		s.next++
	}
	s.cond.Broadcast()
}

func (s *edgeScript) hasEdgesFor(name string) bool {
	for _, step := range s.steps[s.next:] {
		if step.edge && step.pin == name {
			return true
		}
	}
	return false
}

func (s *edgeScript) close() {
	s.lock.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.lock.Unlock()
}

// WaitForEdge implements pgpio.PinIn.
func (p *scriptPin) WaitForEdge(timeout time.Duration) bool {
	s := p.script
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.pending == p.N {
		s.pending = ""
		s.next++
		s.advance()
	}
	for !s.closed {
		if s.pending == "" && s.next < len(s.steps) && s.steps[s.next].pin == p.N {
			s.pending = p.N
			p.Pin.Out(s.steps[s.next].level)
			return true
		}
		if !s.hasEdgesFor(p.N) {
			s.lock.Unlock()
			time.Sleep(timeout)
			s.lock.Lock()
			return false
		}
		s.cond.Wait()
	}
	return false
}

// Out implements pgpio.PinOut and records the driven level.
func (p *scriptPin) Out(l pgpio.Level) error {
	p.script.lock.Lock()
	p.script.outs = append(p.script.outs, pinOut{pin: p.N, level: l})
	p.script.lock.Unlock()
	return p.Pin.Out(l)
}

// sentFrames decodes the frames driven on the lines, MSB first.
func (s *edgeScript) sentFrames() [][]byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	levels := make(map[string]pgpio.Level)
	var frames [][]byte
	var bits []pgpio.Level
	selected := false
	for _, o := range s.outs {
		prev := levels[o.pin]
		levels[o.pin] = o.level
		switch {
		case bool(o.pin == csName && o.level && !prev):
			selected, bits = true, nil
		case bool(o.pin == csName && !o.level && prev) && selected:
			frame := make([]byte, len(bits)/8)
			for n := range frame {
				for i := 0; i < 8; i++ {
					if bits[n*8+i] {
						frame[n] |= 0x80 >> uint(i)
					}
				}
			}
			frames = append(frames, frame)
			selected = false
		case bool(o.pin == clockName && o.level && !prev) && selected:
			bits = append(bits, levels[dataName])
		}
	}
	return frames
}

func frameSteps(raw []byte) []scriptStep {
	steps := []scriptStep{{pin: csName, level: pgpio.High, edge: true}}
	for _, b := range raw {
		for i := 7; i >= 0; i-- {
			steps = append(steps,
				scriptStep{pin: clockName, level: pgpio.Low},
				scriptStep{pin: dataName, level: pgpio.Level(b>>uint(i)&1 == 1)},
				scriptStep{pin: clockName, level: pgpio.High, edge: true})
		}
	}
	return append(steps,
		scriptStep{pin: clockName, level: pgpio.Low},
		scriptStep{pin: dataName, level: pgpio.Low},
		scriptStep{pin: csName, level: pgpio.Low, edge: true})
}

func newScriptedLink(t *testing.T, script *edgeScript) (*link.Link, chan []byte) {
	b := newBoard(func(name string) pgpio.PinIO {
		if p, ok := script.pins[name]; ok {
			return p
		}
		return nil
	})
	b.EdgeTimeout = time.Millisecond
	t.Cleanup(func() { b.Close() })

	recv := make(chan []byte, 16)
	l, err := link.New(b, link.Config{
		Clock:          22,
		Data:           23,
		Select:         21,
		Indicator:      24,
		SenderDelay:    time.Nanosecond,
		SettleDelay:    time.Nanosecond,
		PollInterval:   100 * time.Microsecond,
		AcquireTimeout: time.Second,
		Handler: link.HandlePayloadFunc(func(payload []byte) {
			recv <- append([]byte(nil), payload...)
		}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	t.Cleanup(script.close)
	return l, recv
}

func mustEncode(t *testing.T, payload []byte) []byte {
	raw, err := link.EncodeFrame(payload)
	require.NoError(t, err)
	return raw
}

func TestLinkReceivesFrame(t *testing.T) {
	script := newEdgeScript(frameSteps(mustEncode(t, []byte("hi"))))
	l, recv := newScriptedLink(t, script)

	select {
	case payload := <-recv:
		require.Equal(t, []byte("hi"), payload)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received")
	}
	stats := l.Stats()
	require.Equal(t, uint64(1), stats.FramesDelivered)
	require.Zero(t, stats.ChecksumErrors)
	require.Zero(t, stats.DroppedFrames)
}

func TestLinkSendsRightAfterReceiving(t *testing.T) {
	script := newEdgeScript(frameSteps(mustEncode(t, []byte("ping"))))
	l, recv := newScriptedLink(t, script)

	require.NoError(t, l.Send(context.Background(), []byte("pong")))
	require.Len(t, recv, 1, "frame ending before the send must be handled first")
	require.Equal(t, []byte("ping"), <-recv)

	stats := l.Stats()
	require.Equal(t, uint64(1), stats.FramesDelivered)
	require.Equal(t, uint64(1), stats.FramesSent)
	require.Zero(t, stats.DroppedFrames)
	require.Equal(t, [][]byte{mustEncode(t, []byte("pong"))}, script.sentFrames())
}

func TestLinkAnswersBadChecksum(t *testing.T) {
	script := newEdgeScript(frameSteps([]byte{2, 'H', 'I', 0}))
	l, recv := newScriptedLink(t, script)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	require.Eventually(t, func() bool {
		return len(script.sentFrames()) == 1
	}, 2*time.Second, time.Millisecond)
	require.Equal(t, [][]byte{mustEncode(t, link.ErrorToken)}, script.sentFrames())
	require.Empty(t, recv)
	require.Equal(t, uint64(1), l.Stats().ChecksumErrors)
}
