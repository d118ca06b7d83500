package link

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/gpiolink/pkg/gpio"
)

// BitWriter clocks bytes out MSB first. The data line is set while the
// clock is low and sampled by the peer on the rising edge; each clock
// level is held for Delay. There is no per-bit acknowledgment.
// The first pin error sticks and is returned by every later call.
type BitWriter struct {
	Clock gpio.Pin
	Data  gpio.Pin
	Delay time.Duration

	err error
}

// WriteByte implements io.ByteWriter.
func (w *BitWriter) WriteByte(b byte) error {
	for i := 7; i >= 0; i-- {
		w.set(w.Clock, gpio.Low)
		w.set(w.Data, gpio.Level((b>>uint(i))&1 == 1))
		pause(w.Delay)
		w.set(w.Clock, gpio.High)
		pause(w.Delay)
	}
	return w.err
}

// Write implements io.Writer.
func (w *BitWriter) Write(p []byte) (int, error) {
	for n, b := range p {
		if err := w.WriteByte(b); err != nil {
			return n, err
		}
	}
	return len(p), nil
}

// Err returns the first pin error.
func (w *BitWriter) Err() error {
	return w.err
}

func (w *BitWriter) set(pin gpio.Pin, l gpio.Level) {
	if w.err == nil {
		w.err = pin.Out(l)
	}
}

func pause(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// transmit sends one frame. The lines are back in receive mode when it
// returns, whatever the outcome. A frame sent with remember becomes the
// last sent message before the peer can answer it.
func (l *Link) transmit(ctx context.Context, payload []byte, remember bool) (err error) {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}

	l.txLock.Lock()
	defer l.txLock.Unlock()
	if l.isClosed() {
		return ErrClosed
	}
	if err = l.acquire(ctx); err != nil {
		return err
	}

	defer func() {
		if e := l.enterReceive(); err == nil {
			err = e
		}
	}()
	if err = l.enterSend(); err != nil {
		return err
	}

	w := &BitWriter{Clock: l.clock, Data: l.data, Delay: l.conf.SenderDelay}
	w.set(l.indicator, gpio.High)
	pause(l.conf.SettleDelay)
	w.set(l.cs, gpio.High)
	w.Write(frame)
	w.set(l.cs, gpio.Low)
	w.set(l.indicator, gpio.Low)
	if err = w.Err(); err != nil {
		// leave the peer a clean end of frame
		l.cs.Out(gpio.Low)
		l.indicator.Out(gpio.Low)
		return err
	}
	if remember {
		l.setLastSent(payload)
	}
	l.stats.framesSent.Add(1)
	glog.V(2).Infof("%s: SND %q", l.board.Name(), payload)
	return nil
}

// acquire waits until chip-select is deasserted and every edge of the
// frame that ended has been handled.
func (l *Link) acquire(ctx context.Context) error {
	var timeout <-chan time.Time
	if d := l.conf.AcquireTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}
	syncer, _ := l.board.(gpio.Syncer)
	for {
		if err := l.waitIdle(ctx, timeout); err != nil {
			return err
		}
		if syncer == nil {
			return nil
		}
		if err := syncer.Sync(ctx); err != nil {
			return err
		}
		// a new frame may have started while syncing
		if l.cs.Read() == gpio.Low {
			return nil
		}
	}
}

// waitIdle polls until chip-select is deasserted.
func (l *Link) waitIdle(ctx context.Context, timeout <-chan time.Time) error {
	if l.cs.Read() == gpio.Low {
		return nil
	}
	ticker := time.NewTicker(l.conf.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.closeCh:
			return ErrClosed
		case <-timeout:
			return ErrLineBusy
		case <-ticker.C:
			if l.cs.Read() == gpio.Low {
				return nil
			}
		}
	}
}
