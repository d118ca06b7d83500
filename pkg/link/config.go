package link

import (
	"time"

	"github.com/robotalks/gpiolink/pkg/gpio"
)

// Default timing.
const (
	DefaultSenderDelay    = 1000 * time.Microsecond
	DefaultSettleDelay    = 10 * time.Microsecond
	DefaultPollInterval   = time.Millisecond
	DefaultAcquireTimeout = 5 * time.Second
	DefaultReplyQueue     = 4
)

// ReceiveHandler is called with every valid payload other than ErrorToken.
// It runs in interrupt context: it must return quickly and must not call
// Send.
type ReceiveHandler interface {
	HandlePayload(payload []byte)
}

// HandlePayloadFunc is func type of ReceiveHandler.
type HandlePayloadFunc func([]byte)

// HandlePayload implements ReceiveHandler.
func (f HandlePayloadFunc) HandlePayload(payload []byte) {
	f(payload)
}

// Config is captured by New and never changes afterwards.
type Config struct {
	Clock     gpio.PinID
	Data      gpio.PinID
	Select    gpio.PinID
	Indicator gpio.PinID

	Handler ReceiveHandler

	// SenderDelay is how long each clock level is held while sending.
	SenderDelay time.Duration
	// SettleDelay is waited after taking the lines before chip-select
	// is asserted.
	SettleDelay time.Duration
	// PollInterval is the chip-select polling period while waiting for
	// the line to become free.
	PollInterval time.Duration
	// AcquireTimeout bounds the wait for a free line. Negative waits forever.
	AcquireTimeout time.Duration
	// ReplyQueue is the number of pending replies requested from interrupt
	// context (error tokens, retransmissions) kept before dropping.
	ReplyQueue int
}

func (c Config) withDefaults() Config {
	if c.SenderDelay == 0 {
		c.SenderDelay = DefaultSenderDelay
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.ReplyQueue <= 0 {
		c.ReplyQueue = DefaultReplyQueue
	}
	return c
}

// FrameDuration estimates how long sending a payload of n bytes holds
// the line.
func (c Config) FrameDuration(n int) time.Duration {
	c = c.withDefaults()
	return c.SettleDelay + time.Duration(n+2)*8*2*c.SenderDelay
}
