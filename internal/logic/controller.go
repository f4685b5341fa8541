package logic

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/stove-controller/internal/clock"
)

// Deps are the collaborators of a Controller.
type Deps struct {
	Scheduler   clock.Scheduler
	Actuator    Actuator
	Inputs      InputReader
	Temperature TemperatureSource // optional in two-level mode
	Config      ConfigSource
	Sink        Sink // optional
	Logger      zerolog.Logger
	NewCycleID  func() string // optional; defaults to a random UUID
}

// Controller is the top-level authority over the stove. It owns the operating
// state and is the only component that commands phase transitions.
//
// Not safe for concurrent use: every method, and every callback delivered by
// the ports and the scheduler, must run on the same logical thread.
type Controller struct {
	sched   clock.Scheduler
	act     Actuator
	inputs  InputReader
	temp    TemperatureSource
	cfg     ConfigSource
	sink    Sink
	log     zerolog.Logger
	cycleID func() string

	tun Tunables

	state        State
	phase        Phase
	purge        PurgeMode
	reason       string
	cycle        string
	priorPurging bool

	// gen is bumped by every top-level command; continuations stamped with
	// an older value are dropped.
	gen uint64
	// augerGen is bumped whenever the duty loop is restarted or cancelled.
	augerGen uint64

	outputs OutputStates
	thermal ThermalContext
	feed    *FeedController
	vacuum  *SafetySignal
	flame   *SafetySignal

	// raw is the last value seen per monitored input, whether or not its
	// safety check applied at the time.
	raw map[Input]bool

	phaseTimer   timerSlot
	purgeTimer   timerSlot
	augerTimer   timerSlot
	warmTimer    timerSlot
	igniterTimer timerSlot
	heartbeat    clock.Timer
}

// New creates a controller in StateIdle. Call Start to run the boot purge.
func New(d Deps) *Controller {
	c := &Controller{
		sched:   d.Scheduler,
		act:     d.Actuator,
		inputs:  d.Inputs,
		temp:    d.Temperature,
		cfg:     d.Config,
		sink:    d.Sink,
		log:     d.Logger,
		cycleID: d.NewCycleID,
		state:   StateIdle,
		raw:     map[Input]bool{},
	}
	if c.cycleID == nil {
		c.cycleID = uuid.NewString
	}
	c.tun = c.cfg.Tunables()
	c.feed = NewFeedController(c.tun.Feed)
	c.vacuum = NewSafetySignal(string(InputVacuum), c.tun.VacuumHoldoff, c.sched, func() {
		if c.vacuumApplies() {
			c.OnSafetyTrip(ReasonVacuumFail)
		}
	})
	c.flame = NewSafetySignal(string(InputFlameProof), c.tun.FlameHoldoff, c.sched, func() {
		if c.flameApplies() {
			c.OnSafetyTrip(ReasonFireOut)
		}
	})
	c.thermal.applySchedule(c.tun.Thermal, c.sched.Now())
	return c
}

// Start enters the boot purge and starts the heartbeat.
func (c *Controller) Start() {
	c.log.Info().Dur("boot_purge", c.tun.BootPurge).Msg("controller starting")
	c.stop(c.tun.BootPurge, PurgeSafety, ReasonPowerOn)
	if c.heartbeat == nil && c.tun.Heartbeat > 0 {
		c.heartbeat = c.sched.Every(c.tun.Heartbeat, c.tick)
	}
}

// Close cancels the heartbeat and every live timer. Relays are left as they are.
func (c *Controller) Close() {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
	c.begin()
}

// RequestStart begins an ignition sequence. Accepted only from Idle or Purging.
func (c *Controller) RequestStart() {
	if c.state != StateIdle && c.state != StatePurging {
		c.log.Debug().Str("state", string(c.state)).Msg("start rejected")
		return
	}
	c.priorPurging = c.state == StatePurging
	c.begin()
	c.cycle = c.cycleID()
	c.reason = ""
	c.feed.Reset()
	c.enter(StateStartup, PhasePreflight, PurgeNone)
	c.preflight()
}

// RequestStop leaves Standby for Idle, or runs a safety purge from any other
// non-idle state.
func (c *Controller) RequestStop() {
	switch c.state {
	case StateIdle:
		c.log.Debug().Msg("stop rejected: already idle")
		return
	case StateStandby:
		c.begin()
		c.reason = ReasonManualStop
		c.enter(StateIdle, PhaseNone, PurgeNone)
		return
	}
	c.stop(c.tun.ShutdownPurge, PurgeSafety, ReasonManualStop)
}

// ForceRun jumps straight to Running without ignition proof.
func (c *Controller) ForceRun() {
	c.begin()
	c.cycle = c.cycleID()
	c.reason = ReasonForceRun
	c.feed.Reset()
	c.enter(StateRunning, PhaseNone, PurgeNone)
	c.waterfall("force run", []step{
		{out: OutputIgniter, on: false},
		{out: OutputExhaust, on: true},
		{out: OutputConvection, on: true},
	}, true, c.startAuger)
}

// Dispatch applies an operator command.
func (c *Controller) Dispatch(cmd Command) {
	c.log.Info().Str("command", string(cmd)).Msg("command")
	switch cmd {
	case CommandStart:
		c.RequestStart()
	case CommandStop:
		c.RequestStop()
	case CommandForce:
		c.ForceRun()
	}
}

// OnSafetyTrip routes a confirmed safety condition to a safety purge.
// It is ignored when nothing is burning or a safety purge is already running.
func (c *Controller) OnSafetyTrip(reason string) {
	switch {
	case c.state == StateIdle, c.state == StateStandby:
		return
	case c.state == StatePurging && c.purge == PurgeSafety:
		return
	}
	c.log.Warn().Str("reason", reason).Str("state", string(c.state)).Str("phase", string(c.phase)).Msg("safety trip")
	c.emit(EventTrip, reason)
	c.stop(c.tun.ShutdownPurge, PurgeSafety, reason)
}

// OnIgnitionOutcome settles the Ramp phase.
func (c *Controller) OnIgnitionOutcome(success bool) {
	if c.state != StateStartup || c.phase != PhaseRamp {
		c.log.Debug().Bool("success", success).Msg("ignition outcome ignored outside ramp")
		return
	}
	c.phaseTimer.stop()
	if !success {
		c.OnSafetyTrip(ReasonIgnitionFailed)
		return
	}
	c.enterRunning(false)
}

// OnThermalEvent applies a pushed thermostat or temperature change.
func (c *Controller) OnThermalEvent(ev ThermalEvent) {
	switch ev.Kind {
	case ThermalTemperature:
		c.onTemperature(ev.Reading, nil, false)
	case ThermalCall:
		c.thermal.updateCall(ev.CallForHeat)
		c.thermal.applySchedule(c.tun.Thermal, c.sched.Now())
		if c.state == StateRunning {
			c.stepFeed()
		}
		c.evaluateThermal()
	}
}

// HandleInput applies a pushed switch edge.
func (c *Controller) HandleInput(in Input, value bool) {
	switch in {
	case InputStartButton:
		if value {
			c.RequestStart()
		}
	case InputStopButton:
		if value {
			c.RequestStop()
		}
	case InputVacuum:
		c.raw[in] = value
		c.observe(c.vacuum, c.vacuumApplies(), value)
	case InputFlameProof:
		c.raw[in] = value
		if value && c.state == StateStartup && c.phase == PhaseRamp {
			c.log.Info().Msg("flame proven during ramp")
			c.OnIgnitionOutcome(true)
			return
		}
		c.observe(c.flame, c.flameApplies(), value)
	}
}

func (c *Controller) observe(s *SafetySignal, applies, value bool) {
	if !applies {
		s.Reset()
		return
	}
	if !s.Observe(value) {
		return
	}
	if s.Unstable() {
		c.log.Warn().Str("signal", s.Name()).Msg("signal lost, debouncing")
		c.emit(EventUnstable, s.Name())
		return
	}
	c.log.Info().Str("signal", s.Name()).Msg("signal recovered")
	c.emit(EventStable, s.Name())
}

// recheck feeds a signal that applies but is not counting down with the last
// known value of its input, so a loss present on entry still trips. With no
// value seen yet the input is read.
func (c *Controller) recheck(s *SafetySignal, in Input, applies func() bool) {
	if !applies() || s.Unstable() {
		return
	}
	if v, ok := c.raw[in]; ok {
		c.observe(s, true, v)
		return
	}
	gen := c.gen
	c.inputs.ReadInput(in, func(v bool, err error) {
		if gen != c.gen || err != nil {
			return
		}
		if _, seen := c.raw[in]; seen {
			return
		}
		c.raw[in] = v
		c.observe(s, applies(), v)
	})
}

// Snapshot returns the current view of the controller.
func (c *Controller) Snapshot() Snapshot {
	on, off := c.duty()
	return Snapshot{
		State:          c.state,
		Phase:          c.phase,
		Purge:          c.purge,
		Reason:         c.reason,
		CycleID:        c.cycle,
		Outputs:        c.outputs,
		Feed:           FeedState{Ratio: c.feed.Ratio(), OnTime: on, OffTime: off},
		Thermal:        c.thermal,
		VacuumUnstable: c.vacuum.Unstable(),
		FlameUnstable:  c.flame.Unstable(),
	}
}

// State returns the operating state.
func (c *Controller) State() State {
	return c.state
}

// Phase returns the ignition phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

func (c *Controller) enter(s State, p Phase, m PurgeMode) {
	c.state, c.phase, c.purge = s, p, m
	if !c.vacuumApplies() {
		c.vacuum.Reset()
	}
	if !c.flameApplies() {
		c.flame.Reset()
	}
	c.log.Info().
		Str("state", string(s)).
		Str("phase", string(p)).
		Str("purge", string(m)).
		Str("reason", c.reason).
		Str("cycle", c.cycle).
		Msg("transition")
	c.emit(EventTransition, c.reason)
	c.recheck(c.vacuum, InputVacuum, c.vacuumApplies)
	c.recheck(c.flame, InputFlameProof, c.flameApplies)
}

// begin invalidates every outstanding continuation and timer.
func (c *Controller) begin() {
	c.gen++
	c.augerGen++
	c.phaseTimer.stop()
	c.purgeTimer.stop()
	c.augerTimer.stop()
	c.warmTimer.stop()
	c.igniterTimer.stop()
	c.vacuum.Reset()
	c.flame.Reset()
}

func (c *Controller) vacuumApplies() bool {
	return (c.state == StateStartup && c.phase != PhasePreflight) || c.state == StateRunning
}

func (c *Controller) flameApplies() bool {
	return c.state == StateRunning
}

// feedAllowed reports whether the auger may be commanded on at all.
func (c *Controller) feedAllowed() bool {
	return (c.state == StateStartup && (c.phase == PhasePrime || c.phase == PhaseRamp)) || c.state == StateRunning
}

// augerCycling reports whether the duty loop should be running.
func (c *Controller) augerCycling() bool {
	return (c.state == StateStartup && c.phase == PhaseRamp) || c.state == StateRunning
}

func (c *Controller) duty() (on, off time.Duration) {
	if c.state == StateStartup && c.phase == PhaseRamp {
		return c.tun.Feed.RampOn, c.tun.Feed.RampOff
	}
	return c.feed.Duty()
}

func (c *Controller) emit(t EventType, reason string) {
	if c.sink == nil {
		return
	}
	c.sink.Emit(Event{
		Timestamp: c.sched.Now(),
		Type:      t,
		Reason:    reason,
		Snapshot:  c.Snapshot(),
	})
}

// arm schedules fn on slot, dropping it if a newer command has run since.
func (c *Controller) arm(slot *timerSlot, d time.Duration, fn func()) {
	gen := c.gen
	slot.arm(c.sched, d, func() {
		if gen != c.gen {
			return
		}
		fn()
	})
}
