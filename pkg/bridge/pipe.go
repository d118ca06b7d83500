package bridge

import (
	"context"
	"errors"
	"io"

	"github.com/golang/glog"

	fx "github.com/robotalks/gpiolink/pkg/framework"
	"github.com/robotalks/gpiolink/pkg/link"
)

// DefaultQueueSize is the number of received payloads buffered for the
// transport.
const DefaultQueueSize = 16

// Pipe is a bi-directional pipe between a link and a packet transport.
// Packets read from the transport are sent over the link; payloads
// received from the link (through HandlePayload) are written to the
// transport.
type Pipe struct {
	Link       Sender
	ReadWriter PacketReadWriter
	Codec      Codec

	payloadCh chan []byte
}

// NewPipe creates a Pipe. Use it as the link's receive handler.
func NewPipe(rw PacketReadWriter, queueSize int) *Pipe {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Pipe{
		ReadWriter: rw,
		Codec:      RawCodec{},
		payloadCh:  make(chan []byte, queueSize),
	}
}

// Name implements framework.Named.
func (p *Pipe) Name() string {
	return "bridge"
}

// HandlePayload implements link.ReceiveHandler. It never blocks: when the
// queue is full the payload is dropped.
func (p *Pipe) HandlePayload(payload []byte) {
	msg := append(make([]byte, 0, len(payload)), payload...)
	select {
	case p.payloadCh <- msg:
	default:
		glog.Warningf("bridge queue full, dropped %q", payload)
	}
}

// Run implements Runnable. It returns when ctx is done, the transport
// fails or the link is closed.
func (p *Pipe) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	writeErrCh := make(chan error, 1)
	go func() {
		writeErrCh <- p.writeLoop(ctx)
		cancel()
	}()
	var err error
	if closer, ok := p.ReadWriter.(io.Closer); ok {
		err = fx.RunWithContextCloser(ctx, closer, func() error { return p.readLoop(ctx) })
	} else {
		err = fx.RunWithContext(ctx, func() error { return p.readLoop(ctx) })
	}
	cancel()
	werr := <-writeErrCh
	if (err == nil || errors.Is(err, context.Canceled)) && werr != nil && !errors.Is(werr, context.Canceled) {
		return werr
	}
	return err
}

func (p *Pipe) readLoop(ctx context.Context) error {
	for {
		pkt, err := p.ReadWriter.ReadPacket()
		if err != nil {
			var csErr *link.ChecksumError
			if errors.As(err, &csErr) {
				glog.Warningf("bridge: %v, packet dropped", err)
				continue
			}
			return err
		}
		payload, err := p.Codec.Decode(pkt)
		if err != nil {
			glog.Warningf("bridge: decode: %v", err)
			continue
		}
		switch err = p.Link.Send(ctx, payload); err {
		case nil:
			glog.V(2).Infof("bridge: forwarded %q", payload)
		case link.ErrPayloadTooLarge, link.ErrLineBusy:
			glog.Warningf("bridge: send %q: %v", payload, err)
		default:
			return err
		}
	}
}

func (p *Pipe) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-p.payloadCh:
			pkt, err := p.Codec.Encode(payload)
			if err != nil {
				glog.Warningf("bridge: encode: %v", err)
				continue
			}
			if err = p.ReadWriter.WritePacket(pkt); err != nil {
				return err
			}
		}
	}
}
