package link

import "strings"

// BitBuffer accumulates received bits MSB first into a fixed-size array,
// large enough for the biggest frame. Bits past capacity are discarded.
type BitBuffer struct {
	buf [MaxFrameSize]byte
	n   int
}

// Append adds one bit. It returns false if the buffer is full.
func (b *BitBuffer) Append(bit bool) bool {
	if b.n >= MaxFrameBits {
		return false
	}
	if bit {
		b.buf[b.n/8] |= 0x80 >> uint(b.n%8)
	}
	b.n++
	return true
}

// Len returns the number of bits in the buffer.
func (b *BitBuffer) Len() int {
	return b.n
}

// Bytes returns the completed bytes. The slice aliases the buffer and is
// valid until the next Append or Reset.
func (b *BitBuffer) Bytes() []byte {
	return b.buf[:b.n/8]
}

// Reset empties the buffer.
func (b *BitBuffer) Reset() {
	for i := 0; i < (b.n+7)/8; i++ {
		b.buf[i] = 0
	}
	b.n = 0
}

// String formats the bits as a string of '0' and '1'.
func (b *BitBuffer) String() string {
	var sb strings.Builder
	sb.Grow(b.n)
	for i := 0; i < b.n; i++ {
		if b.buf[i/8]&(0x80>>uint(i%8)) != 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
