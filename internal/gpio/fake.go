package gpio

import (
	"sync"

	"github.com/sweeney/stove-controller/internal/logic"
)

// FakeBoard is a test double with settable inputs and recorded writes.
// Completions are posted through Post when set, otherwise run inline.
type FakeBoard struct {
	Post   Poster
	OnEdge EdgeFunc

	mu     sync.Mutex
	values map[logic.Input]bool
	relays map[logic.Output]bool
	writes []Write

	// WriteError, if set, fails writes to that output.
	WriteError map[logic.Output]error
	// ReadError, if set, fails reads of that input.
	ReadError map[logic.Input]error

	// Closed tracks if Close was called
	Closed bool
}

// Write is one recorded relay command.
type Write struct {
	Output logic.Output
	On     bool
}

// NewFakeBoard creates a board with every input false and every relay off.
func NewFakeBoard() *FakeBoard {
	return &FakeBoard{
		values:     make(map[logic.Input]bool),
		relays:     make(map[logic.Output]bool),
		WriteError: make(map[logic.Output]error),
		ReadError:  make(map[logic.Input]error),
	}
}

func (f *FakeBoard) deliver(fn func()) {
	if f.Post != nil {
		f.Post.Post(fn)
		return
	}
	fn()
}

// SetOutput records the write and applies it unless WriteError is set.
func (f *FakeBoard) SetOutput(out logic.Output, on bool, done func(error)) {
	f.mu.Lock()
	f.writes = append(f.writes, Write{Output: out, On: on})
	err := f.WriteError[out]
	if err == nil {
		f.relays[out] = on
	}
	f.mu.Unlock()
	f.deliver(func() { done(err) })
}

// ReadInput returns the current scripted value.
func (f *FakeBoard) ReadInput(in logic.Input, done func(bool, error)) {
	f.mu.Lock()
	v, err := f.values[in], f.ReadError[in]
	f.mu.Unlock()
	if err != nil {
		v = false
	}
	f.deliver(func() { done(v, err) })
}

// ReadAll returns every input.
func (f *FakeBoard) ReadAll() (map[logic.Input]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values := make(map[logic.Input]bool, len(logic.Inputs))
	for _, in := range logic.Inputs {
		if err := f.ReadError[in]; err != nil {
			return nil, err
		}
		values[in] = f.values[in]
	}
	return values, nil
}

// SetInput changes an input. If the value changed and OnEdge is set, the
// edge is delivered like a hardware event.
func (f *FakeBoard) SetInput(in logic.Input, value bool) {
	f.mu.Lock()
	changed := f.values[in] != value
	f.values[in] = value
	f.mu.Unlock()
	if changed && f.OnEdge != nil {
		f.deliver(func() { f.OnEdge(in, value) })
	}
}

// Relay returns the last applied state of out.
func (f *FakeBoard) Relay(out logic.Output) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.relays[out]
}

// Writes returns a copy of every recorded write in order.
func (f *FakeBoard) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// Close marks the board as closed.
func (f *FakeBoard) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset clears recorded writes and the closed flag.
func (f *FakeBoard) Reset() {
	f.mu.Lock()
	f.writes = nil
	f.Closed = false
	f.mu.Unlock()
}
