package link

import (
	"errors"
	"fmt"
)

var (
	// ErrPayloadTooLarge indicates the payload doesn't fit the 1-byte length field.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrShortFrame indicates fewer bits were received than the frame declares.
	ErrShortFrame = errors.New("short frame")
	// ErrLineBusy indicates chip-select stayed asserted for the whole
	// acquire timeout.
	ErrLineBusy = errors.New("line busy")
	// ErrClosed indicates the link is closed.
	ErrClosed = errors.New("link closed")
	// ErrPinInUse indicates a pin is already claimed by another link.
	ErrPinInUse = errors.New("pin in use")
)

// ChecksumError reports a frame whose checksum doesn't match its payload.
type ChecksumError struct {
	Want byte
	Got  byte
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: computed %d, received %d", e.Want, e.Got)
}
