package link

import (
	"fmt"
	"sync"

	"github.com/robotalks/gpiolink/pkg/gpio"
)

// Interrupt handlers are bound to their Link directly; the registry makes
// sure a physical pin serves at most one Link.
var registry = struct {
	sync.Mutex
	owners map[string]*Link
}{owners: make(map[string]*Link)}

func sourceKey(board gpio.Board, id gpio.PinID) string {
	return fmt.Sprintf("%s/%d", board.Name(), id)
}

// Lookup returns the Link currently owning a pin, or nil.
func Lookup(board gpio.Board, id gpio.PinID) *Link {
	registry.Lock()
	defer registry.Unlock()
	return registry.owners[sourceKey(board, id)]
}

func claim(l *Link, ids ...gpio.PinID) error {
	registry.Lock()
	defer registry.Unlock()
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		key := sourceKey(l.board, id)
		if owner := registry.owners[key]; owner != nil && owner != l {
			return fmt.Errorf("%s: %w", key, ErrPinInUse)
		}
		keys = append(keys, key)
	}
	for _, key := range keys {
		registry.owners[key] = l
	}
	return nil
}

func release(l *Link) {
	registry.Lock()
	defer registry.Unlock()
	for key, owner := range registry.owners {
		if owner == l {
			delete(registry.owners, key)
		}
	}
}
