//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/stove-controller/internal/logic"
)

const consumer = "stove-controller"

// RealBoard drives relays and reads switches on actual hardware.
type RealBoard struct {
	post Poster
	log  zerolog.Logger

	mu      sync.Mutex
	chip    *gpiocdev.Chip
	outputs map[logic.Output]*gpiocdev.Line
	inputs  map[logic.Input]*gpiocdev.Line
	byPin   map[int]logic.Input
}

// NewRealBoard requests every configured line. Outputs start off. Input
// edges are debounced by the kernel and delivered to onEdge via post.
func NewRealBoard(cfg Config, post Poster, onEdge EdgeFunc, logger zerolog.Logger) (*RealBoard, error) {
	chip, err := gpiocdev.NewChip(cfg.Chip, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", cfg.Chip, err)
	}
	b := &RealBoard{
		post:    post,
		log:     logger,
		chip:    chip,
		outputs: make(map[logic.Output]*gpiocdev.Line),
		inputs:  make(map[logic.Input]*gpiocdev.Line),
		byPin:   make(map[int]logic.Input),
	}

	for _, out := range logic.Outputs {
		pin, ok := cfg.Outputs[out]
		if !ok {
			b.Close()
			return nil, fmt.Errorf("no pin configured for output %s", out)
		}
		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
		if cfg.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := chip.RequestLine(pin, opts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", out, pin, err)
		}
		b.outputs[out] = line
	}

	// byPin is read by the edge handler and must be complete before the
	// first input line is requested.
	for _, in := range logic.Inputs {
		pin, ok := cfg.Inputs[in]
		if !ok {
			b.Close()
			return nil, fmt.Errorf("no pin configured for input %s", in)
		}
		b.byPin[pin] = in
	}
	for _, in := range logic.Inputs {
		pin := cfg.Inputs[in]
		opts := []gpiocdev.LineReqOption{
			gpiocdev.AsInput,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(b.edgeHandler(onEdge)),
		}
		if cfg.Debounce > 0 {
			opts = append(opts, gpiocdev.WithDebounce(cfg.Debounce))
		}
		if cfg.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
		} else {
			opts = append(opts, gpiocdev.WithPullDown)
		}
		line, err := chip.RequestLine(pin, opts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", in, pin, err)
		}
		b.inputs[in] = line
	}
	return b, nil
}

// edgeHandler runs on the gpiocdev watcher goroutine and hands the edge to
// the loop.
func (b *RealBoard) edgeHandler(onEdge EdgeFunc) func(gpiocdev.LineEvent) {
	return func(evt gpiocdev.LineEvent) {
		if onEdge == nil {
			return
		}
		in, ok := b.byPin[evt.Offset]
		if !ok {
			return
		}
		value := evt.Type == gpiocdev.LineEventRisingEdge
		b.log.Debug().Str("input", string(in)).Bool("value", value).Msg("edge")
		b.post.Post(func() { onEdge(in, value) })
	}
}

// SetOutput writes the relay and posts the result.
func (b *RealBoard) SetOutput(out logic.Output, on bool, done func(error)) {
	err := b.setOutput(out, on)
	b.post.Post(func() { done(err) })
}

func (b *RealBoard) setOutput(out logic.Output, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	line, ok := b.outputs[out]
	if !ok {
		return fmt.Errorf("output %s: %w", out, errors.New("not requested"))
	}
	if err := line.SetValue(boolToValue(on)); err != nil {
		return fmt.Errorf("set %s: %w", out, err)
	}
	return nil
}

// ReadInput reads the switch and posts the result.
func (b *RealBoard) ReadInput(in logic.Input, done func(bool, error)) {
	v, err := b.readInput(in)
	b.post.Post(func() { done(v, err) })
}

func (b *RealBoard) readInput(in logic.Input) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	line, ok := b.inputs[in]
	if !ok {
		return false, fmt.Errorf("input %s: %w", in, logic.ErrUnknownValue)
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", in, err)
	}
	return v == 1, nil
}

// ReadAll reads every input once.
func (b *RealBoard) ReadAll() (map[logic.Input]bool, error) {
	values := make(map[logic.Input]bool, len(logic.Inputs))
	for _, in := range logic.Inputs {
		v, err := b.readInput(in)
		if err != nil {
			return nil, err
		}
		values[in] = v
	}
	return values, nil
}

// Close releases GPIO resources.
// Input pins are reconfigured to input with pull-down (matching Pi boot
// defaults) before closing. Output lines are released as they stand.
func (b *RealBoard) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for in, line := range b.inputs {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", in, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", in, err))
		}
	}
	for out, line := range b.outputs {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", out, err))
		}
	}
	b.inputs = nil
	b.outputs = nil
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		b.chip = nil
	}
	return errors.Join(errs...)
}
