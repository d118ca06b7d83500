package periph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/robotalks/gpiolink/pkg/gpio"
)

func testBoard(t *testing.T) (*Board, map[string]*gpiotest.Pin) {
	pins := map[string]*gpiotest.Pin{
		"GPIO22": {N: "GPIO22", EdgesChan: make(chan pgpio.Level, 16)},
		"GPIO23": {N: "GPIO23"},
	}
	b := newBoard(func(name string) pgpio.PinIO {
		if p, ok := pins[name]; ok {
			return p
		}
		return nil
	})
	b.EdgeTimeout = time.Millisecond
	t.Cleanup(func() { b.Close() })
	return b, pins
}

func TestPinLookup(t *testing.T) {
	b, _ := testBoard(t)
	p, err := b.Pin(22)
	require.NoError(t, err)
	assert.Equal(t, gpio.PinID(22), p.ID())
	again, err := b.Pin(22)
	require.NoError(t, err)
	assert.Same(t, p, again)

	_, err = b.Pin(4)
	var pinErr *gpio.PinError
	require.ErrorAs(t, err, &pinErr)
	assert.Equal(t, gpio.PinID(4), pinErr.ID)
}

func TestOutRead(t *testing.T) {
	b, pins := testBoard(t)
	p, err := b.Pin(23)
	require.NoError(t, err)
	require.NoError(t, p.Out(gpio.High))
	assert.Equal(t, pgpio.High, pins["GPIO23"].L)
	assert.Equal(t, gpio.High, p.Read())
	require.NoError(t, p.In())
	assert.Equal(t, pgpio.PullDown, pins["GPIO23"].P)
}

func TestWatch(t *testing.T) {
	b, pins := testBoard(t)
	p, err := b.Pin(22)
	require.NoError(t, err)

	levels := make(chan gpio.Level, 16)
	require.NoError(t, p.Watch(gpio.BothEdges, func(l gpio.Level) { levels <- l }))
	pins["GPIO22"].EdgesChan <- pgpio.High
	select {
	case l := <-levels:
		assert.Equal(t, gpio.High, l)
	case <-time.After(time.Second):
		t.Fatal("edge not dispatched")
	}

	require.NoError(t, p.Unwatch())
	pins["GPIO22"].EdgesChan <- pgpio.Low
	select {
	case l := <-levels:
		t.Fatalf("edge %v dispatched after unwatch", l)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestClosedBoard(t *testing.T) {
	b, _ := testBoard(t)
	require.NoError(t, b.Close())
	_, err := b.Pin(22)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConversions(t *testing.T) {
	assert.Equal(t, pgpio.High, toPeriph(gpio.High))
	assert.Equal(t, gpio.Low, fromPeriph(pgpio.Low))
	assert.Equal(t, pgpio.RisingEdge, toPeriphEdge(gpio.RisingEdge))
	assert.Equal(t, pgpio.BothEdges, toPeriphEdge(gpio.BothEdges))
	assert.Equal(t, pgpio.NoEdge, toPeriphEdge(gpio.NoEdge))
}
