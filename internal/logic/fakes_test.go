package logic

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/stove-controller/internal/clock"
)

var epoch = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) // midday: daytime schedule

const writeLatency = 10 * time.Millisecond

// write is one recorded actuator command.
type write struct {
	Out      Output
	On       bool
	Issued   time.Time
	Done     time.Time
	State    State
	Phase    Phase
	Complete bool
}

// fakeActuator completes writes asynchronously after writeLatency, in issue order.
type fakeActuator struct {
	sched  *clock.Manual
	states map[Output]bool
	writes []*write
	fail   map[Output]error
	// onIssue and onComplete are invariant hooks.
	onIssue    func(w *write)
	onComplete func(w *write)
	ctrl       *Controller
}

func newFakeActuator(sched *clock.Manual) *fakeActuator {
	return &fakeActuator{
		sched:  sched,
		states: map[Output]bool{},
		fail:   map[Output]error{},
	}
}

func (a *fakeActuator) SetOutput(out Output, on bool, done func(error)) {
	w := &write{Out: out, On: on, Issued: a.sched.Now()}
	if a.ctrl != nil {
		w.State, w.Phase = a.ctrl.state, a.ctrl.phase
	}
	a.writes = append(a.writes, w)
	if a.onIssue != nil {
		a.onIssue(w)
	}
	err := a.fail[out]
	a.sched.After(writeLatency, func() {
		w.Done = a.sched.Now()
		w.Complete = true
		if err == nil {
			a.states[out] = on
		}
		if a.onComplete != nil {
			a.onComplete(w)
		}
		done(err)
	})
}

// since returns the writes recorded from index i onwards.
func (a *fakeActuator) since(i int) []*write {
	return a.writes[i:]
}

func (a *fakeActuator) count(out Output, on bool) int {
	n := 0
	for _, w := range a.writes {
		if w.Out == out && w.On == on {
			n++
		}
	}
	return n
}

type fakeInputs struct {
	sched  *clock.Manual
	values map[Input]bool
	errs   map[Input]error
	reads  []Input
}

func newFakeInputs(sched *clock.Manual) *fakeInputs {
	return &fakeInputs{
		sched:  sched,
		values: map[Input]bool{InputVacuum: true},
		errs:   map[Input]error{},
	}
}

func (f *fakeInputs) ReadInput(in Input, done func(bool, error)) {
	f.reads = append(f.reads, in)
	f.sched.After(writeLatency, func() {
		if err := f.errs[in]; err != nil {
			done(false, err)
			return
		}
		done(f.values[in], nil)
	})
}

// fakeTemperature reports a fresh reading of Celsius unless Err is set or Frozen.
type fakeTemperature struct {
	sched   *clock.Manual
	Celsius float64
	Err     error
	Frozen  time.Time // when set, UpdatedAt sticks to this
}

func (f *fakeTemperature) ReadTemperature(done func(Reading, error)) {
	if f.Err != nil {
		done(Reading{}, f.Err)
		return
	}
	at := f.sched.Now()
	if !f.Frozen.IsZero() {
		at = f.Frozen
	}
	done(Reading{Celsius: f.Celsius, UpdatedAt: at}, nil)
}

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Emit(e Event) {
	r.events = append(r.events, e)
}

func (r *recordingSink) ofType(t EventType) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	t     *testing.T
	sched *clock.Manual
	act   *fakeActuator
	in    *fakeInputs
	temp  *fakeTemperature
	sink  *recordingSink
	cfg   *mutableConfig
	c     *Controller
}

type mutableConfig struct {
	tun   Tunables
	polls int
}

func (m *mutableConfig) Tunables() Tunables {
	m.polls++
	return m.tun
}

func newHarness(t *testing.T, mutate func(*Tunables)) *harness {
	t.Helper()
	sched := clock.NewManual(epoch)
	tun := DefaultTunables()
	if mutate != nil {
		mutate(&tun)
	}
	h := &harness{
		t:     t,
		sched: sched,
		act:   newFakeActuator(sched),
		in:    newFakeInputs(sched),
		temp:  &fakeTemperature{sched: sched, Celsius: 19},
		sink:  &recordingSink{},
		cfg:   &mutableConfig{tun: tun},
	}
	n := 0
	h.c = New(Deps{
		Scheduler:   sched,
		Actuator:    h.act,
		Inputs:      h.in,
		Temperature: h.temp,
		Config:      h.cfg,
		Sink:        h.sink,
		Logger:      zerolog.Nop(),
		NewCycleID: func() string {
			n++
			return fmt.Sprintf("cycle-%d", n)
		},
	})
	h.act.ctrl = h.c
	return h
}

// boot runs the boot purge through to Idle.
func (h *harness) boot() {
	h.t.Helper()
	h.c.Start()
	h.sched.Advance(h.cfg.tun.BootPurge + time.Second)
	if h.c.State() != StateIdle {
		h.t.Fatalf("after boot purge: state %s, want IDLE", h.c.State())
	}
}

// toPrime starts from Idle and runs pre-flight into Prime.
func (h *harness) toPrime() {
	h.t.Helper()
	h.c.RequestStart()
	h.sched.Advance(h.cfg.tun.SettleDelay + time.Second)
	if h.c.Phase() != PhasePrime {
		h.t.Fatalf("after preflight: %s/%s, want STARTUP/PRIME", h.c.State(), h.c.Phase())
	}
}

// toRunning drives a full cold ignition with flame proven at end of ramp.
func (h *harness) toRunning() {
	h.t.Helper()
	h.toPrime()
	h.sched.Advance(h.cfg.tun.IgnitionEnd + time.Second)
	if h.c.Phase() != PhaseRamp {
		h.t.Fatalf("state %s/%s, want STARTUP/RAMP", h.c.State(), h.c.Phase())
	}
	h.in.values[InputFlameProof] = true
	h.sched.Advance(h.cfg.tun.RunStart - h.cfg.tun.IgnitionEnd)
	if h.c.State() != StateRunning {
		h.t.Fatalf("state %s/%s, want RUNNING", h.c.State(), h.c.Phase())
	}
}

func (h *harness) output(out Output) bool {
	return h.act.states[out]
}
