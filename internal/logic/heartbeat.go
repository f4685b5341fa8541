package logic

import "math"

// tick runs once per heartbeat: poll config, then read the room.
func (c *Controller) tick() {
	c.reload()
	if c.temp == nil {
		c.onTemperature(Reading{}, ErrUnknownValue, true)
		return
	}
	c.temp.ReadTemperature(func(r Reading, err error) {
		c.onTemperature(r, err, true)
	})
}

func (c *Controller) reload() {
	t := c.cfg.Tunables()
	if c.heartbeat != nil && t.Heartbeat > 0 && t.Heartbeat != c.tun.Heartbeat {
		c.log.Info().Dur("heartbeat", t.Heartbeat).Msg("heartbeat period changed")
		c.heartbeat.Stop()
		c.heartbeat = c.sched.Every(t.Heartbeat, c.tick)
	}
	c.tun = t
	c.feed.Configure(t.Feed)
	c.vacuum.SetHoldoff(t.VacuumHoldoff)
	c.flame.SetHoldoff(t.FlameHoldoff)
}

// onTemperature applies a temperature read. An error leaves the last known
// reading in place and skips the feed step, so the duty cycle holds.
func (c *Controller) onTemperature(r Reading, err error, fromTick bool) {
	now := c.sched.Now()
	if err == nil && !finite(r.Celsius) {
		err = ErrUnknownValue
	}
	if err == nil {
		c.thermal.updateTemperature(r)
	}
	c.thermal.applySchedule(c.tun.Thermal, now)

	if c.tun.Feed.Mode == FeedProportional && (c.state == StateStartup || c.state == StateRunning) &&
		c.thermal.stale(now, c.tun.Thermal.MaxTemperatureAge) {
		c.log.Warn().Time("last_update", c.thermal.LastUpdate).Msg("room temperature stale")
		c.OnSafetyTrip(ReasonStaleTemperature)
		return
	}
	// Two-level feed follows the call and does not need a temperature.
	if fromTick && c.state == StateRunning && (err == nil || c.tun.Feed.Mode == FeedTwoLevel) {
		c.stepFeed()
	}
	c.evaluateThermal()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// stepFeed advances the EMA one step. Unknown input holds the current duty.
func (c *Controller) stepFeed() {
	target, ok := c.feed.Target(c.thermal)
	if !ok {
		return
	}
	before := c.feed.Ratio()
	after := c.feed.Step(target)
	if after == before {
		return
	}
	on, off := c.feed.Duty()
	c.log.Debug().
		Float64("target", target).
		Float64("ratio", after).
		Dur("on", on).
		Dur("off", off).
		Msg("feed updated")
	c.emit(EventFeed, "")
}

// evaluateThermal applies the temperature-driven transitions.
func (c *Controller) evaluateThermal() {
	warm, cold, known := c.thermal.classify(c.tun.Feed.Mode)
	if !known {
		return
	}
	switch c.state {
	case StateRunning:
		if !warm {
			c.warmTimer.stop()
			return
		}
		if !c.warmTimer.active() {
			c.log.Info().Dur("hold", c.tun.WarmHold).Msg("room warm, holding")
			c.arm(&c.warmTimer, c.tun.WarmHold, func() {
				c.stop(c.tun.ThermostatPurge, PurgeThermostat, ReasonRoomWarm)
			})
		}
	case StateStandby:
		if cold && c.autoRestartAllowed() {
			c.log.Info().Msg("room cold, restarting from standby")
			c.begin()
			c.reason = ""
			c.enter(StateIdle, PhaseNone, PurgeNone)
			c.RequestStart()
		}
	case StatePurging:
		if c.purge == PurgeThermostat && cold {
			c.log.Info().Msg("room cold during thermostat purge, restarting")
			c.purgeTimer.stop()
			c.RequestStart()
		}
	}
}

func (c *Controller) autoRestartAllowed() bool {
	if c.thermal.Daytime {
		return c.tun.Thermal.AutoRestartDay
	}
	return c.tun.Thermal.AutoRestartNight
}
