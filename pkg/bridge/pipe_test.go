package bridge

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/gpiolink/pkg/gpio/sim"
	"github.com/robotalks/gpiolink/pkg/link"
)

const waitTimeout = 2 * time.Second

// chanReadWriter is a transport backed by channels.
type chanReadWriter struct {
	inCh   chan []byte
	outCh  chan []byte
	doneCh chan struct{}
	once   sync.Once
}

func newChanReadWriter() *chanReadWriter {
	return &chanReadWriter{
		inCh:   make(chan []byte, 4),
		outCh:  make(chan []byte, 4),
		doneCh: make(chan struct{}),
	}
}

func (c *chanReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-c.inCh:
		return pkt, nil
	case <-c.doneCh:
		return nil, io.EOF
	}
}

func (c *chanReadWriter) WritePacket(pkt []byte) error {
	select {
	case c.outCh <- pkt:
		return nil
	case <-c.doneCh:
		return io.ErrClosedPipe
	}
}

func (c *chanReadWriter) Close() error {
	c.once.Do(func() { close(c.doneCh) })
	return nil
}

func newLink(t *testing.T, wire *sim.Wire, name string, handler link.ReceiveHandler) *link.Link {
	l, err := link.New(wire.Board(t.Name()+"/"+name), link.Config{
		Clock:          22,
		Data:           23,
		Select:         21,
		Indicator:      24,
		Handler:        handler,
		SenderDelay:    time.Nanosecond,
		SettleDelay:    time.Nanosecond,
		PollInterval:   100 * time.Microsecond,
		AcquireTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestPipeForwardsBothWays(t *testing.T) {
	for _, codec := range []Codec{RawCodec{}, ProtoCodec{}} {
		t.Run(fmt.Sprintf("%T", codec), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			wire := sim.NewWire(22, 23, 21)

			rw := newChanReadWriter()
			pipe := NewPipe(rw, 0)
			pipe.Codec = codec
			bridged := newLink(t, wire, "bridged", pipe)
			pipe.Link = bridged

			peerCh := make(chan []byte, 4)
			peer := newLink(t, wire, "peer", link.HandlePayloadFunc(func(p []byte) { peerCh <- p }))
			go bridged.Run(ctx)
			go peer.Run(ctx)

			pipeErr := make(chan error, 1)
			go func() { pipeErr <- pipe.Run(ctx) }()

			// transport -> link
			pkt, err := codec.Encode([]byte("RPI_OUT 1"))
			require.NoError(t, err)
			rw.inCh <- pkt
			select {
			case p := <-peerCh:
				assert.Equal(t, []byte("RPI_OUT 1"), p)
			case <-time.After(waitTimeout):
				t.Fatal("payload not forwarded to link")
			}

			// link -> transport
			require.NoError(t, peer.Send(ctx, []byte("MCU_OUT 1")))
			select {
			case pkt := <-rw.outCh:
				payload, err := codec.Decode(pkt)
				require.NoError(t, err)
				assert.Equal(t, []byte("MCU_OUT 1"), payload)
			case <-time.After(waitTimeout):
				t.Fatal("payload not forwarded to transport")
			}

			cancel()
			select {
			case err := <-pipeErr:
				assert.ErrorIs(t, err, context.Canceled)
			case <-time.After(waitTimeout):
				t.Fatal("pipe not stopped")
			}
		})
	}
}

type nopSender struct{}

func (nopSender) Send(context.Context, []byte) error { return nil }

func TestPipeStopsOnTransportError(t *testing.T) {
	rw := newChanReadWriter()
	pipe := NewPipe(rw, 1)
	pipe.Link = nopSender{}
	rw.Close()
	assert.Equal(t, io.EOF, pipe.Run(context.Background()))
}

func TestPipeDropsWhenQueueFull(t *testing.T) {
	pipe := NewPipe(newChanReadWriter(), 1)
	pipe.HandlePayload([]byte("a"))
	pipe.HandlePayload([]byte("b"))
	assert.Len(t, pipe.payloadCh, 1)
	assert.Equal(t, []byte("a"), <-pipe.payloadCh)
}

func TestCodecs(t *testing.T) {
	codec, err := CodecByName("proto")
	require.NoError(t, err)
	pkt, err := codec.Encode([]byte("HI"))
	require.NoError(t, err)
	assert.NotEqual(t, []byte("HI"), pkt)
	payload, err := codec.Decode(pkt)
	require.NoError(t, err)
	assert.Equal(t, []byte("HI"), payload)

	payload, err = codec.Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{}, payload)

	_, err = codec.Decode([]byte{0xff})
	assert.Error(t, err)

	codec, err = CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, RawCodec{}, codec)

	_, err = CodecByName("json")
	assert.Error(t, err)
}
