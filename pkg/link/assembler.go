package link

import "github.com/robotalks/gpiolink/pkg/gpio"

// onClock samples one bit on each rising clock edge while selected.
func (l *Link) onClock(gpio.Level) {
	l.sample(l.data.Read())
}

// onLatchedClock takes the data level captured with the clock edge.
func (l *Link) onLatchedClock(_, data gpio.Level) {
	l.sample(data)
}

func (l *Link) sample(data gpio.Level) {
	l.isrLock.Lock()
	defer l.isrLock.Unlock()
	if l.closed || l.mode != ModeReceive || !l.selected {
		return
	}
	if !l.rx.Append(data == gpio.High) {
		l.stats.overflowBits.Add(1)
	}
}

// onSelect starts a frame when chip-select is asserted and validates it
// when chip-select is deasserted.
func (l *Link) onSelect(level gpio.Level) {
	l.isrLock.Lock()
	defer l.isrLock.Unlock()
	if l.closed || l.mode != ModeReceive {
		return
	}
	if level == gpio.High {
		l.selected = true
		l.rx.Reset()
		return
	}
	l.selected = false
	l.processFrame()
}
