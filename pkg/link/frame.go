package link

import "bytes"

const (
	// MaxPayloadSize is the largest payload the length field can describe.
	MaxPayloadSize = 255
	// MaxFrameSize is the encoded size of a frame with the largest payload.
	MaxFrameSize = 1 + MaxPayloadSize + 1
	// MaxFrameBits is MaxFrameSize in bits.
	MaxFrameBits = MaxFrameSize * 8
)

// ErrorToken is the payload asking the peer to resend its last message.
var ErrorToken = []byte("ERROR")

// Checksum is the sum of all bytes modulo 256.
func Checksum(payload []byte) (sum byte) {
	for _, b := range payload {
		sum += b
	}
	return
}

// Frame is a decoded frame.
type Frame struct {
	Payload  []byte
	Checksum byte
}

// Length returns the declared payload length.
func (f *Frame) Length() int {
	return len(f.Payload)
}

// IsErrorToken indicates the frame is a retransmission request.
func (f *Frame) IsErrorToken() bool {
	return bytes.Equal(f.Payload, ErrorToken)
}

// EncodeFrame encodes payload as length, payload, checksum.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	b := make([]byte, len(payload)+2)
	b[0] = byte(len(payload))
	copy(b[1:], payload)
	b[len(b)-1] = Checksum(payload)
	return b, nil
}

// ParseFrame decodes a frame from the start of raw. Bytes after the
// checksum are ignored. When the checksum doesn't match, the decoded
// frame is returned together with a *ChecksumError.
func ParseFrame(raw []byte) (*Frame, error) {
	if len(raw) < 2 {
		return nil, ErrShortFrame
	}
	n := int(raw[0])
	if len(raw) < n+2 {
		return nil, ErrShortFrame
	}
	f := &Frame{
		Payload:  append(make([]byte, 0, n), raw[1:1+n]...),
		Checksum: raw[1+n],
	}
	if sum := Checksum(f.Payload); sum != f.Checksum {
		return f, &ChecksumError{Want: sum, Got: f.Checksum}
	}
	return f, nil
}
