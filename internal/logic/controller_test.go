package logic

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootPurge(t *testing.T) {
	h := newHarness(t, nil)
	h.c.Start()
	h.sched.Advance(time.Second)

	assert.Equal(t, StatePurging, h.c.State())
	assert.Equal(t, PurgeSafety, h.c.purge)
	assert.Equal(t, ReasonPowerOn, h.c.Snapshot().Reason)
	assert.True(t, h.output(OutputExhaust))
	assert.True(t, h.output(OutputConvection))
	assert.False(t, h.output(OutputAuger))
	assert.False(t, h.output(OutputIgniter))

	h.sched.Advance(h.cfg.tun.BootPurge)
	assert.Equal(t, StateIdle, h.c.State())
	assert.False(t, h.output(OutputExhaust))
	assert.False(t, h.output(OutputConvection))
}

func TestShutdownWaterfallOrder(t *testing.T) {
	h := newHarness(t, nil)
	h.c.Start()
	h.sched.Advance(time.Second)

	require.GreaterOrEqual(t, len(h.act.writes), 4)
	got := h.act.writes[:4]
	want := []struct {
		out Output
		on  bool
	}{
		{OutputAuger, false},
		{OutputIgniter, false},
		{OutputExhaust, true},
		{OutputConvection, true},
	}
	for i, w := range want {
		assert.Equal(t, w.out, got[i].Out, "step %d", i)
		assert.Equal(t, w.on, got[i].On, "step %d", i)
		if i > 0 {
			assert.False(t, got[i].Issued.Before(got[i-1].Done),
				"step %d issued before step %d completed", i, i-1)
		}
	}
}

func TestColdStartReachesRunning(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()

	h.c.RequestStart()
	assert.Equal(t, StateStartup, h.c.State())
	assert.Equal(t, PhasePreflight, h.c.Phase())
	assert.Equal(t, 0.0, h.c.feed.Ratio())

	h.sched.Advance(h.cfg.tun.SettleDelay + time.Second)
	require.Equal(t, PhasePrime, h.c.Phase())
	assert.True(t, h.output(OutputIgniter))
	assert.True(t, h.output(OutputAuger), "prime feeds continuously")

	h.sched.Advance(h.cfg.tun.PrimeEnd)
	require.Equal(t, PhaseWait, h.c.Phase())
	assert.False(t, h.output(OutputAuger))
	assert.True(t, h.output(OutputIgniter))

	h.sched.Advance(h.cfg.tun.IgnitionEnd - h.cfg.tun.PrimeEnd)
	require.Equal(t, PhaseRamp, h.c.Phase())
	on, off := h.c.duty()
	assert.Equal(t, h.cfg.tun.Feed.RampOn, on)
	assert.Equal(t, h.cfg.tun.Feed.RampOff, off)

	pulses := h.act.count(OutputAuger, true)
	h.sched.Advance(time.Minute)
	assert.Greater(t, h.act.count(OutputAuger, true), pulses, "auger cycles during ramp")

	h.in.values[InputFlameProof] = true
	h.sched.Advance(h.cfg.tun.RunStart - h.cfg.tun.IgnitionEnd)

	assert.Equal(t, StateRunning, h.c.State())
	assert.False(t, h.output(OutputIgniter))
	assert.True(t, h.output(OutputExhaust))
	assert.True(t, h.output(OutputConvection))

	pulses = h.act.count(OutputAuger, true)
	h.sched.Advance(time.Minute)
	assert.Greater(t, h.act.count(OutputAuger, true), pulses, "auger keeps cycling in run")
	assert.Empty(t, h.sink.ofType(EventTrip))
}

func TestPreflightNoVacuumFromIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.in.values[InputVacuum] = false

	h.c.RequestStart()
	h.sched.Advance(h.cfg.tun.SettleDelay + time.Second)

	assert.Equal(t, StateIdle, h.c.State())
	assert.False(t, h.output(OutputExhaust))
	assert.False(t, h.output(OutputConvection))
	assert.False(t, h.output(OutputIgniter))
	assert.Zero(t, h.act.count(OutputIgniter, true))
	assert.Equal(t, ReasonVacuumFail, h.c.Snapshot().Reason)
}

func TestPreflightVacuumReadErrorIsFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.in.errs[InputVacuum] = errors.New("timeout")

	h.c.RequestStart()
	h.sched.Advance(h.cfg.tun.SettleDelay + time.Second)

	assert.Equal(t, StateIdle, h.c.State())
	assert.Zero(t, h.act.count(OutputIgniter, true))
}

func TestPreflightNoVacuumAfterPurgeKeepsFans(t *testing.T) {
	h := newHarness(t, nil)
	h.c.Start()
	h.sched.Advance(time.Minute)
	require.Equal(t, StatePurging, h.c.State())
	h.in.values[InputVacuum] = false

	h.c.RequestStart()
	h.sched.Advance(h.cfg.tun.SettleDelay + time.Second)

	assert.Equal(t, StatePurging, h.c.State())
	assert.Equal(t, PurgeSafety, h.c.purge)
	assert.Equal(t, ReasonVacuumFail, h.c.Snapshot().Reason)
	assert.True(t, h.output(OutputExhaust))
	assert.True(t, h.output(OutputConvection))

	h.sched.Advance(h.cfg.tun.ShutdownPurge)
	assert.Equal(t, StateIdle, h.c.State())
}

func TestIgnitionFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toPrime()

	h.sched.Advance(h.cfg.tun.RunStart)

	assert.Equal(t, StatePurging, h.c.State())
	assert.Equal(t, ReasonIgnitionFailed, h.c.Snapshot().Reason)
	assert.False(t, h.output(OutputIgniter))
	assert.False(t, h.output(OutputAuger))

	h.sched.Advance(h.cfg.tun.ShutdownPurge + time.Second)
	assert.Equal(t, StateIdle, h.c.State(), "no automatic retry")
	h.sched.Advance(time.Hour)
	assert.Equal(t, StateIdle, h.c.State())
}

func TestEarlyFlameProofDuringRamp(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toPrime()
	h.sched.Advance(h.cfg.tun.IgnitionEnd + time.Second)
	require.Equal(t, PhaseRamp, h.c.Phase())

	h.in.values[InputFlameProof] = true
	h.c.HandleInput(InputFlameProof, true)
	assert.Equal(t, StateRunning, h.c.State())
	assert.False(t, h.c.phaseTimer.active())

	h.sched.Advance(time.Second)
	assert.False(t, h.output(OutputIgniter))

	// The cancelled ramp timer must not re-settle the outcome.
	h.sched.Advance(h.cfg.tun.RunStart)
	assert.Equal(t, StateRunning, h.c.State())
}

func TestFlameProofBeforeRampIsNotEarlyProof(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toPrime()

	h.c.HandleInput(InputFlameProof, true)
	assert.Equal(t, PhasePrime, h.c.Phase())
}

func TestHotStart(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.in.values[InputFlameProof] = true

	h.c.RequestStart()
	h.sched.Advance(h.cfg.tun.SettleDelay + time.Second)

	require.Equal(t, StateRunning, h.c.State())
	assert.True(t, h.output(OutputIgniter), "igniter held for hot-start buffer")
	assert.True(t, h.output(OutputExhaust))
	assert.True(t, h.output(OutputConvection))

	h.sched.Advance(h.cfg.tun.HotStartIgniter)
	assert.False(t, h.output(OutputIgniter))
	assert.Equal(t, StateRunning, h.c.State())
	assert.Greater(t, h.act.count(OutputAuger, true), 0)
}

func TestRejectedCommands(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()

	h.c.RequestStop()
	assert.Equal(t, StateIdle, h.c.State())

	h.toRunning()
	cycle := h.c.Snapshot().CycleID
	writes := len(h.act.writes)
	h.c.RequestStart()
	assert.Equal(t, StateRunning, h.c.State())
	assert.Equal(t, cycle, h.c.Snapshot().CycleID)
	assert.Equal(t, writes, len(h.act.writes))
}

func TestManualStopFromRunning(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toRunning()

	h.c.RequestStop()
	h.sched.Advance(time.Second)
	assert.Equal(t, StatePurging, h.c.State())
	assert.Equal(t, PurgeSafety, h.c.purge)
	assert.False(t, h.output(OutputAuger))
	assert.True(t, h.output(OutputExhaust))

	h.sched.Advance(h.cfg.tun.ShutdownPurge)
	assert.Equal(t, StateIdle, h.c.State())
	assert.False(t, h.output(OutputExhaust))
}

func TestForceRun(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.c.feed.Step(1)

	h.c.ForceRun()
	assert.Equal(t, StateRunning, h.c.State())
	assert.Equal(t, 0.0, h.c.feed.Ratio())

	h.sched.Advance(time.Second)
	assert.False(t, h.output(OutputIgniter))
	assert.True(t, h.output(OutputExhaust))
	assert.True(t, h.output(OutputConvection))
	assert.Greater(t, h.act.count(OutputAuger, true), 0)
	assert.Zero(t, h.act.count(OutputIgniter, true))
}

func TestForceRunCancelsIgnitionTimers(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toPrime()
	h.c.HandleInput(InputFlameProof, true)

	h.c.ForceRun()
	h.sched.Advance(h.cfg.tun.RunStart)
	assert.Equal(t, StateRunning, h.c.State(), "stale phase timers must not fire")
	assert.False(t, h.output(OutputIgniter))
}

func TestForceRunWithoutFlameTrips(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()

	h.c.ForceRun()
	h.sched.Advance(time.Second)
	require.Equal(t, StateRunning, h.c.State())
	assert.True(t, h.c.Snapshot().FlameUnstable, "absent flame is read on entry")

	h.sched.Advance(h.cfg.tun.FlameHoldoff)
	assert.Equal(t, StatePurging, h.c.State())
	assert.Equal(t, PurgeSafety, h.c.purge)
	assert.Equal(t, ReasonFireOut, h.c.Snapshot().Reason)
	require.Len(t, h.sink.ofType(EventTrip), 1)
}

func TestForceRunWithKnownFlameKeepsRunning(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.c.HandleInput(InputFlameProof, true)
	reads := len(h.in.reads)

	h.c.ForceRun()
	h.sched.Advance(10 * time.Minute)
	assert.Equal(t, StateRunning, h.c.State())
	assert.False(t, h.c.Snapshot().FlameUnstable)
	assert.NotContains(t, h.in.reads[reads:], InputFlameProof, "a seen value needs no read")
}

func TestSustainedWarmEndsInStandby(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toRunning()

	h.temp.Celsius = 23 // above warm (20 + 1.5)
	h.sched.Advance(h.cfg.tun.Heartbeat)
	require.True(t, h.c.warmTimer.active())

	h.sched.Advance(h.cfg.tun.WarmHold)
	require.Equal(t, StatePurging, h.c.State())
	assert.Equal(t, PurgeThermostat, h.c.purge)
	assert.Equal(t, ReasonRoomWarm, h.c.Snapshot().Reason)

	h.sched.Advance(h.cfg.tun.ThermostatPurge + time.Second)
	assert.Equal(t, StateStandby, h.c.State())
	assert.False(t, h.output(OutputExhaust))
	assert.False(t, h.output(OutputConvection))
}

func TestWarmTimerCancelledWhenRoomCools(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toRunning()

	h.temp.Celsius = 23
	h.sched.Advance(h.cfg.tun.Heartbeat)
	require.True(t, h.c.warmTimer.active())

	h.temp.Celsius = 21
	h.sched.Advance(h.cfg.tun.Heartbeat)
	assert.False(t, h.c.warmTimer.active())

	h.sched.Advance(h.cfg.tun.WarmHold)
	assert.Equal(t, StateRunning, h.c.State())
}

func TestStandbyAutoRestart(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toRunning()
	h.temp.Celsius = 23
	h.sched.Advance(h.cfg.tun.Heartbeat + h.cfg.tun.WarmHold + h.cfg.tun.ThermostatPurge + time.Second)
	require.Equal(t, StateStandby, h.c.State())

	var seen []State
	h.sink.events = nil
	h.temp.Celsius = 20 // at cold threshold
	h.sched.Advance(h.cfg.tun.Heartbeat)

	for _, e := range h.sink.ofType(EventTransition) {
		seen = append(seen, e.Snapshot.State)
	}
	require.GreaterOrEqual(t, len(seen), 2)
	assert.Equal(t, StateIdle, seen[0])
	assert.Equal(t, StateStartup, seen[1])
	assert.Equal(t, StateStartup, h.c.State())
	assert.Equal(t, 0.0, h.c.feed.Ratio())
}

func TestStandbyAutoRestartDisabledAtNight(t *testing.T) {
	h := newHarness(t, func(tun *Tunables) {
		tun.Thermal.DayStartHour = 13 // epoch noon is night
		tun.Thermal.AutoRestartNight = false
	})
	h.c.state = StateStandby
	h.temp.Celsius = 10
	h.c.tick()
	assert.Equal(t, StateStandby, h.c.State())
	assert.False(t, h.c.thermal.Daytime)
	assert.Equal(t, h.cfg.tun.Thermal.NightCold, h.c.thermal.Cold)
}

func TestManualStopFromStandby(t *testing.T) {
	h := newHarness(t, nil)
	h.c.state = StateStandby
	h.c.RequestStop()
	assert.Equal(t, StateIdle, h.c.State())
	assert.Empty(t, h.act.writes)
}

func TestThermostatPurgeAbortedWhenCold(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toRunning()
	h.temp.Celsius = 23
	h.sched.Advance(h.cfg.tun.Heartbeat + h.cfg.tun.WarmHold + time.Second)
	require.Equal(t, PurgeThermostat, h.c.purge)

	h.c.OnThermalEvent(TemperatureEvent(Reading{Celsius: 19, UpdatedAt: h.sched.Now()}))
	assert.Equal(t, StateStartup, h.c.State())
	assert.True(t, h.c.priorPurging)
	assert.False(t, h.c.purgeTimer.active())
}

func TestStopConvertsThermostatPurgeToSafety(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toRunning()
	h.temp.Celsius = 23
	h.sched.Advance(h.cfg.tun.Heartbeat + h.cfg.tun.WarmHold + time.Second)
	require.Equal(t, PurgeThermostat, h.c.purge)

	h.c.RequestStop()
	assert.Equal(t, PurgeSafety, h.c.purge)
	h.sched.Advance(h.cfg.tun.ShutdownPurge + time.Second)
	assert.Equal(t, StateIdle, h.c.State())
}

func TestFlameFlickerWithinHoldoff(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toRunning()

	h.c.HandleInput(InputFlameProof, false)
	assert.True(t, h.c.Snapshot().FlameUnstable)
	h.sched.Advance(30 * time.Second)
	h.c.HandleInput(InputFlameProof, true)
	assert.False(t, h.c.Snapshot().FlameUnstable)

	h.sched.Advance(2 * h.cfg.tun.FlameHoldoff)
	assert.Equal(t, StateRunning, h.c.State())
	assert.Empty(t, h.sink.ofType(EventTrip))
	assert.Len(t, h.sink.ofType(EventStable), 1)
}

func TestFlameLossTrips(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toRunning()

	h.c.HandleInput(InputFlameProof, false)
	h.sched.Advance(h.cfg.tun.FlameHoldoff - time.Second)
	assert.Equal(t, StateRunning, h.c.State())
	h.sched.Advance(time.Second)

	assert.Equal(t, StatePurging, h.c.State())
	assert.Equal(t, ReasonFireOut, h.c.Snapshot().Reason)
	require.Len(t, h.sink.ofType(EventTrip), 1)
}

func TestVacuumLossTrips(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toPrime()

	h.c.HandleInput(InputVacuum, false)
	h.sched.Advance(h.cfg.tun.VacuumHoldoff)

	assert.Equal(t, StatePurging, h.c.State())
	assert.Equal(t, ReasonVacuumFail, h.c.Snapshot().Reason)
}

func TestVacuumLostBeforePrimeTrips(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()

	h.c.RequestStart()
	// Four preflight writes, settle, vacuum read done, flame read in flight.
	h.sched.Advance(h.cfg.tun.SettleDelay + 5*writeLatency + writeLatency/2)
	require.Equal(t, PhasePreflight, h.c.Phase())
	require.Equal(t, InputFlameProof, h.in.reads[len(h.in.reads)-1])

	h.c.HandleInput(InputVacuum, false)
	assert.False(t, h.c.Snapshot().VacuumUnstable, "not monitored during preflight")

	h.sched.Advance(writeLatency)
	require.Equal(t, PhasePrime, h.c.Phase())
	assert.True(t, h.c.Snapshot().VacuumUnstable, "loss carried into prime")

	h.sched.Advance(h.cfg.tun.VacuumHoldoff + time.Second)
	assert.Equal(t, StatePurging, h.c.State())
	assert.Equal(t, PurgeSafety, h.c.purge)
	assert.Equal(t, ReasonVacuumFail, h.c.Snapshot().Reason)
	assert.False(t, h.output(OutputIgniter))
	assert.False(t, h.output(OutputAuger))
}

func TestVacuumRecoveredBeforePrimeKeepsStarting(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()

	h.c.RequestStart()
	h.sched.Advance(h.cfg.tun.SettleDelay + 5*writeLatency + writeLatency/2)
	require.Equal(t, PhasePreflight, h.c.Phase())
	h.c.HandleInput(InputVacuum, false)
	h.c.HandleInput(InputVacuum, true)

	h.sched.Advance(h.cfg.tun.PrimeEnd)
	assert.Equal(t, StateStartup, h.c.State())
	assert.False(t, h.c.Snapshot().VacuumUnstable)
	assert.Empty(t, h.sink.ofType(EventTrip))
}

func TestVacuumIgnoredWhenIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()

	h.c.HandleInput(InputVacuum, false)
	assert.False(t, h.c.Snapshot().VacuumUnstable)
	h.sched.Advance(time.Minute)
	assert.Equal(t, StateIdle, h.c.State())
}

func TestDebounceCancelledByManualStop(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toRunning()

	h.c.HandleInput(InputVacuum, false)
	h.c.HandleInput(InputFlameProof, false)
	h.c.RequestStop()
	assert.False(t, h.c.vacuum.Unstable())
	assert.False(t, h.c.flame.Unstable())

	h.sched.Advance(2 * h.cfg.tun.FlameHoldoff)
	assert.Empty(t, h.sink.ofType(EventTrip))
	assert.Equal(t, ReasonManualStop, h.c.Snapshot().Reason)
}

func TestStaleTemperatureTrips(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toRunning()

	h.temp.Frozen = h.sched.Now()
	h.sched.Advance(h.cfg.tun.Thermal.MaxTemperatureAge + h.cfg.tun.Heartbeat)

	assert.Equal(t, StatePurging, h.c.State())
	assert.Equal(t, PurgeSafety, h.c.purge)
	assert.Equal(t, ReasonStaleTemperature, h.c.Snapshot().Reason)
}

func TestUnknownTemperatureHoldsDuty(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toRunning()
	h.sched.Advance(5 * time.Minute)
	ratio := h.c.feed.Ratio()
	require.Greater(t, ratio, 0.0)

	h.temp.Err = ErrUnknownValue
	h.sched.Advance(time.Minute)
	assert.Equal(t, ratio, h.c.feed.Ratio())
	assert.Equal(t, StateRunning, h.c.State())
}

func TestStaleGuardOffInTwoLevelMode(t *testing.T) {
	h := newHarness(t, func(tun *Tunables) { tun.Feed.Mode = FeedTwoLevel })
	h.temp.Err = ErrUnknownValue
	h.boot()
	h.c.OnThermalEvent(CallEvent(true))
	h.toRunning()

	h.sched.Advance(time.Hour)
	assert.Equal(t, StateRunning, h.c.State())
	on, off := h.c.duty()
	assert.Equal(t, h.cfg.tun.Feed.HighOn, on)
	assert.Equal(t, h.cfg.tun.Feed.HighOff, off)

	h.c.OnThermalEvent(CallEvent(false))
	on, off = h.c.duty()
	assert.Equal(t, h.cfg.tun.Feed.LowOn, on)
	assert.Equal(t, h.cfg.tun.Feed.LowOff, off)
	assert.True(t, h.c.warmTimer.active())
}

func TestActuatorFaultDuringStartupPurges(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.act.fail[OutputIgniter] = errors.New("relay stuck")

	h.c.RequestStart()
	h.sched.Advance(time.Second)

	assert.Equal(t, StatePurging, h.c.State())
	assert.Equal(t, ReasonActuatorFault, h.c.Snapshot().Reason)
	assert.NotEmpty(t, h.sink.ofType(EventFault))
}

func TestConfigPolledEachHeartbeat(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.cfg.tun.Feed.LowOn = 7 * time.Second
	h.sched.Advance(h.cfg.tun.Heartbeat)
	on, _ := h.c.feed.Duty()
	assert.Equal(t, 7*time.Second, on)
}

func TestHeartbeatPeriodReloads(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()

	h.cfg.tun.Heartbeat = time.Minute
	h.sched.Advance(10 * time.Second)
	polls := h.cfg.polls

	h.sched.Advance(50 * time.Second)
	assert.Equal(t, polls, h.cfg.polls, "old period no longer ticks")
	h.sched.Advance(10 * time.Second)
	assert.Equal(t, polls+1, h.cfg.polls)
}

func TestNaNTemperatureHoldsDuty(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.toRunning()
	h.sched.Advance(5 * time.Minute)
	ratio := h.c.feed.Ratio()
	require.Greater(t, ratio, 0.0)

	h.c.OnThermalEvent(TemperatureEvent(Reading{Celsius: math.NaN(), UpdatedAt: h.sched.Now()}))
	h.temp.Celsius = math.NaN()
	h.sched.Advance(time.Minute)
	assert.Equal(t, ratio, h.c.feed.Ratio())
	assert.Equal(t, StateRunning, h.c.State())

	h.temp.Celsius = 15
	h.sched.Advance(10 * h.cfg.tun.Heartbeat)
	r := h.c.feed.Ratio()
	assert.False(t, math.IsNaN(r))
	assert.Greater(t, r, ratio)
	assert.LessOrEqual(t, r, 1.0)
	on, off := h.c.duty()
	assert.Greater(t, on, time.Duration(0))
	assert.Greater(t, off, time.Duration(0))
}

func TestCycleIDPerStart(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.c.RequestStart()
	first := h.c.Snapshot().CycleID
	h.c.RequestStop()
	h.c.RequestStart()
	assert.NotEqual(t, first, h.c.Snapshot().CycleID)
	assert.NotEmpty(t, first)
}

func TestOnSafetyTripIgnoredWhenIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()
	h.c.OnSafetyTrip(ReasonVacuumFail)
	assert.Equal(t, StateIdle, h.c.State())
	assert.Empty(t, h.sink.ofType(EventTrip))
}

func TestDispatch(t *testing.T) {
	h := newHarness(t, nil)
	h.boot()

	h.c.Dispatch(CommandStart)
	assert.Equal(t, StateStartup, h.c.State())
	h.c.Dispatch(CommandStop)
	assert.Equal(t, StatePurging, h.c.State())
	h.c.Dispatch(CommandForce)
	assert.Equal(t, StateRunning, h.c.State())
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand(" start\n")
	require.NoError(t, err)
	assert.Equal(t, CommandStart, cmd)

	_, err = ParseCommand("launch")
	assert.Error(t, err)
}
