// Package gpio drives a direct-wired stove: four relay outputs and four
// switch inputs on the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"time"

	"github.com/sweeney/stove-controller/internal/logic"
)

// Board is a relay and switch backend for the controller.
//
// SetOutput and ReadInput complete asynchronously: their callbacks are
// posted to the controller's loop, never run inline.
type Board interface {
	logic.Actuator
	logic.InputReader

	// ReadAll returns every input's logical value immediately.
	ReadAll() (map[logic.Input]bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Poster runs a function on the controller's loop.
type Poster interface {
	Post(fn func()) bool
}

// EdgeFunc receives a debounced input change. It is called on the loop.
type EdgeFunc func(in logic.Input, value bool)

// Config maps stove signals onto BCM line offsets.
type Config struct {
	Chip      string
	ActiveLow bool // relays and switches are wired active-low
	Debounce  time.Duration
	Outputs   map[logic.Output]int
	Inputs    map[logic.Input]int
}

func boolToValue(on bool) int {
	if on {
		return 1
	}
	return 0
}
