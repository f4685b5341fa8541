//go:build !linux

package gpio

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/sweeney/stove-controller/internal/logic"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealBoard is not available on non-Linux platforms.
type RealBoard struct{}

// NewRealBoard returns an error on non-Linux platforms.
func NewRealBoard(Config, Poster, EdgeFunc, zerolog.Logger) (*RealBoard, error) {
	return nil, errUnsupported
}

func (b *RealBoard) SetOutput(_ logic.Output, _ bool, done func(error)) {
	done(errUnsupported)
}

func (b *RealBoard) ReadInput(_ logic.Input, done func(bool, error)) {
	done(false, errUnsupported)
}

func (b *RealBoard) ReadAll() (map[logic.Input]bool, error) {
	return nil, errUnsupported
}

func (b *RealBoard) Close() error {
	return nil
}
