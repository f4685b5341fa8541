package logic

import "time"

// step is one relay write in an ordered waterfall.
type step struct {
	out  Output
	on   bool
	when func() bool // optional guard evaluated just before issuing
}

// waterfall issues steps strictly in order: step N+1 is written only after
// step N's completion has been observed. The sequence is stamped with the
// current generation and abandoned as soon as a newer command runs.
//
// A strict waterfall routes a write failure to a safety purge. A non-strict
// one logs the failure and carries on, so later steps still run.
func (c *Controller) waterfall(name string, steps []step, strict bool, then func()) {
	gen := c.gen
	var run func(i int)
	run = func(i int) {
		if gen != c.gen {
			c.log.Debug().Str("sequence", name).Int("step", i).Msg("stale sequence dropped")
			return
		}
		if i == len(steps) {
			if then != nil {
				then()
			}
			return
		}
		s := steps[i]
		if s.when != nil && !s.when() {
			run(i + 1)
			return
		}
		c.setOutput(s.out, s.on, func(err error) {
			if err != nil {
				if strict && gen == c.gen {
					c.actuatorFault(s.out, err)
					return
				}
				c.fault(s.out, err)
			}
			run(i + 1)
		})
	}
	run(0)
}

func (c *Controller) setOutput(out Output, on bool, done func(error)) {
	c.act.SetOutput(out, on, func(err error) {
		if err == nil && c.outputs.Get(out) != on {
			c.outputs.set(out, on)
			c.emitOutput(out, on)
		}
		if done != nil {
			done(err)
		}
	})
}

func (c *Controller) emitOutput(out Output, on bool) {
	if c.sink == nil {
		return
	}
	c.sink.Emit(Event{
		Timestamp: c.sched.Now(),
		Type:      EventOutput,
		Output:    out,
		On:        on,
		Snapshot:  c.Snapshot(),
	})
}

func (c *Controller) fault(out Output, err error) {
	if err == nil {
		return
	}
	c.log.Error().Err(err).Str("output", string(out)).Msg("actuator write failed")
	c.emit(EventFault, string(out)+": "+err.Error())
}

func (c *Controller) actuatorFault(out Output, err error) {
	c.fault(out, err)
	c.OnSafetyTrip(ReasonActuatorFault)
}

func (c *Controller) faultDone(out Output) func(error) {
	return func(err error) { c.fault(out, err) }
}

// stop is the shutdown waterfall: fuel and spark off, then fans on, then the
// purge countdown.
func (c *Controller) stop(purge time.Duration, mode PurgeMode, reason string) {
	c.begin()
	c.reason = reason
	c.enter(StatePurging, PhaseNone, mode)
	c.waterfall("shutdown", []step{
		{out: OutputAuger, on: false},
		{out: OutputIgniter, on: false},
		{out: OutputExhaust, on: true},
		{out: OutputConvection, on: true},
	}, false, func() {
		c.arm(&c.purgeTimer, purge, c.finishPurge)
	})
}

func (c *Controller) finishPurge() {
	mode := c.purge
	c.begin()
	next := StateIdle
	if mode == PurgeThermostat {
		next = StateStandby
	}
	c.log.Info().Str("next", string(next)).Msg("purge complete")
	c.enter(next, PhaseNone, PurgeNone)
	c.waterfall("purge complete", []step{
		{out: OutputExhaust, on: false},
		{out: OutputConvection, on: false},
	}, false, func() {
		if c.state == StateStandby {
			c.evaluateThermal()
		}
	})
}

// preflight re-asserts fuel and spark off (a start may interrupt a purge
// waterfall), brings up draft, waits for it to settle, then proves vacuum.
func (c *Controller) preflight() {
	c.waterfall("preflight", []step{
		{out: OutputAuger, on: false},
		{out: OutputIgniter, on: false},
		{out: OutputExhaust, on: true},
		{out: OutputConvection, on: true},
	}, true, func() {
		c.arm(&c.phaseTimer, c.tun.SettleDelay, c.checkVacuum)
	})
}

func (c *Controller) checkVacuum() {
	gen := c.gen
	c.inputs.ReadInput(InputVacuum, func(ok bool, err error) {
		if gen != c.gen || c.state != StateStartup || c.phase != PhasePreflight {
			return
		}
		if err != nil {
			c.log.Warn().Err(err).Msg("vacuum unreadable during preflight")
			ok = false
		} else {
			c.raw[InputVacuum] = ok
		}
		if !ok {
			c.preflightFailed()
			return
		}
		c.checkHotStart()
	})
}

// preflightFailed handles missing draft. After a purge there may still be
// fire, so the fans keep running under a fresh safety purge; from cold the
// draft is simply shut off again.
func (c *Controller) preflightFailed() {
	if c.priorPurging {
		c.OnSafetyTrip(ReasonVacuumFail)
		return
	}
	c.log.Warn().Msg("no vacuum after settle, aborting start")
	c.emit(EventTrip, ReasonVacuumFail)
	c.begin()
	c.reason = ReasonVacuumFail
	c.enter(StateIdle, PhaseNone, PurgeNone)
	c.waterfall("preflight abort", []step{
		{out: OutputConvection, on: false},
		{out: OutputExhaust, on: false},
	}, false, nil)
}

// checkHotStart reads flame-proof once. Proven flame skips ignition entirely.
func (c *Controller) checkHotStart() {
	gen := c.gen
	c.inputs.ReadInput(InputFlameProof, func(lit bool, err error) {
		if gen != c.gen || c.state != StateStartup || c.phase != PhasePreflight {
			return
		}
		if err == nil {
			c.raw[InputFlameProof] = lit
		}
		if err == nil && lit {
			c.log.Info().Msg("flame already proven, hot start")
			c.enterRunning(true)
			return
		}
		c.enterPrime()
	})
}

func (c *Controller) enterPrime() {
	c.enter(StateStartup, PhasePrime, PurgeNone)
	c.arm(&c.phaseTimer, c.tun.PrimeEnd, c.enterWait)
	c.waterfall("prime", []step{
		{out: OutputIgniter, on: true},
		{out: OutputAuger, on: true, when: c.feedAllowed},
	}, true, nil)
}

func (c *Controller) enterWait() {
	c.enter(StateStartup, PhaseWait, PurgeNone)
	c.stopAuger()
	c.arm(&c.phaseTimer, c.tun.IgnitionEnd-c.tun.PrimeEnd, c.enterRamp)
	c.setOutput(OutputAuger, false, c.strictDone(OutputAuger))
}

func (c *Controller) enterRamp() {
	c.enter(StateStartup, PhaseRamp, PurgeNone)
	c.arm(&c.phaseTimer, c.tun.RunStart-c.tun.IgnitionEnd, c.checkIgnition)
	c.startAuger()
}

func (c *Controller) checkIgnition() {
	gen := c.gen
	c.inputs.ReadInput(InputFlameProof, func(lit bool, err error) {
		if gen != c.gen {
			return
		}
		if err != nil {
			c.log.Warn().Err(err).Msg("flame-proof unreadable at end of ramp")
		} else {
			c.raw[InputFlameProof] = lit
		}
		c.OnIgnitionOutcome(err == nil && lit)
	})
}

// enterRunning hands feed to the feed controller. A hot start keeps the
// igniter on for a short buffer first.
func (c *Controller) enterRunning(hot bool) {
	c.phaseTimer.stop()
	c.enter(StateRunning, PhaseNone, PurgeNone)
	if hot {
		c.waterfall("hot start", []step{
			{out: OutputIgniter, on: true},
		}, true, func() {
			c.arm(&c.igniterTimer, c.tun.HotStartIgniter, func() {
				c.setOutput(OutputIgniter, false, c.strictDone(OutputIgniter))
			})
			c.startAuger()
		})
	} else {
		c.waterfall("run", []step{
			{out: OutputIgniter, on: false},
		}, true, nil)
	}
	c.evaluateThermal()
}

func (c *Controller) strictDone(out Output) func(error) {
	gen := c.gen
	return func(err error) {
		if err != nil && gen == c.gen {
			c.actuatorFault(out, err)
		}
	}
}

func (c *Controller) startAuger() {
	c.stopAuger()
	c.augerCycle(c.augerGen)
}

func (c *Controller) stopAuger() {
	c.augerGen++
	c.augerTimer.stop()
}

// augerCycle is one on/off period of the duty loop. Eligibility and duty are
// read fresh at every boundary because the state can change mid-cycle.
func (c *Controller) augerCycle(ag uint64) {
	if ag != c.augerGen {
		return
	}
	if !c.augerCycling() {
		c.setOutput(OutputAuger, false, c.faultDone(OutputAuger))
		return
	}
	on, off := c.duty()
	c.setOutput(OutputAuger, true, func(err error) {
		if ag != c.augerGen {
			return
		}
		if err != nil {
			c.actuatorFault(OutputAuger, err)
			return
		}
		if !c.augerCycling() {
			c.setOutput(OutputAuger, false, c.faultDone(OutputAuger))
			return
		}
		c.augerTimer.arm(c.sched, on, func() {
			c.setOutput(OutputAuger, false, func(err error) {
				if ag != c.augerGen {
					return
				}
				if err != nil {
					c.actuatorFault(OutputAuger, err)
					return
				}
				if !c.augerCycling() {
					return
				}
				c.augerTimer.arm(c.sched, off, func() { c.augerCycle(ag) })
			})
		})
	})
}
