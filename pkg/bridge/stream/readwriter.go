package stream

import (
	"io"

	"github.com/robotalks/gpiolink/pkg/link"
)

// ReadWriter implements PacketReadWriter over a byte stream.
// Packets use the link frame format: 1-byte length, payload and the
// additive checksum. Packets are limited to link.MaxPayloadSize.
type ReadWriter struct {
	io.ReadWriter

	buf [link.MaxFrameSize]byte
}

// New creates a ReadWriter with io.ReadWriter.
func New(s io.ReadWriter) *ReadWriter {
	return &ReadWriter{ReadWriter: s}
}

// ReadPacket implements PacketReader. A packet failing the checksum is
// consumed and reported as *link.ChecksumError.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	if _, err := io.ReadFull(p.ReadWriter, p.buf[:1]); err != nil {
		return nil, err
	}
	size := int(p.buf[0]) + 2
	if _, err := io.ReadFull(p.ReadWriter, p.buf[1:size]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	frame, err := link.ParseFrame(p.buf[:size])
	if err != nil {
		return nil, err
	}
	return frame.Payload, nil
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	frame, err := link.EncodeFrame(pkt)
	if err != nil {
		return err
	}
	_, err = p.Write(frame)
	return err
}

// Close closes the underlying stream if it's an io.Closer.
func (p *ReadWriter) Close() error {
	if closer, ok := p.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
