// Package metrics exposes controller telemetry as Prometheus metrics.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/stove-controller/internal/logic"
)

const namespace = "stove"

var states = []logic.State{
	logic.StateIdle, logic.StateStartup, logic.StateRunning, logic.StatePurging, logic.StateStandby,
}

// Collector is a logic.Sink that turns controller events into metrics.
type Collector struct {
	state       *prometheus.GaugeVec
	outputs     *prometheus.GaugeVec
	unstable    *prometheus.GaugeVec
	feedRatio   prometheus.Gauge
	feedOn      prometheus.Gauge
	feedOff     prometheus.Gauge
	roomTemp    prometheus.Gauge
	transitions *prometheus.CounterVec
	purges      *prometheus.CounterVec
	trips       *prometheus.CounterVec
	faults      *prometheus.CounterVec
	ignitions   prometheus.Counter
	augerPulses prometheus.Counter
}

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current operating state, 0 otherwise",
		}, []string{"state"}),
		outputs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_on",
			Help:      "Last acknowledged relay state",
		}, []string{"output"}),
		unstable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "safety_signal_unstable",
			Help:      "1 while a safety signal is lost and its hold-off is running",
		}, []string{"signal"}),
		feedRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "ratio",
			Help:      "Smoothed feed demand between 0 and 1",
		}),
		feedOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "on_seconds",
			Help:      "Current auger on-time",
		}),
		feedOff: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "off_seconds",
			Help:      "Current auger off-time",
		}),
		roomTemp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "room_temperature_celsius",
			Help:      "Latest room temperature seen by the controller",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "State transitions by target state",
		}, []string{"state"}),
		purges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purges_total",
			Help:      "Purges started, by mode and reason",
		}, []string{"mode", "reason"}),
		trips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_trips_total",
			Help:      "Safety trips by reason",
		}, []string{"reason"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuator_faults_total",
			Help:      "Failed relay writes by output",
		}, []string{"output"}),
		ignitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ignitions_total",
			Help:      "Startup sequences begun",
		}),
		augerPulses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auger_pulses_total",
			Help:      "Auger on commands acknowledged",
		}),
	}
	reg.MustRegister(
		c.state, c.outputs, c.unstable,
		c.feedRatio, c.feedOn, c.feedOff, c.roomTemp,
		c.transitions, c.purges, c.trips, c.faults,
		c.ignitions, c.augerPulses,
	)
	for _, s := range states {
		c.state.WithLabelValues(string(s)).Set(0)
	}
	for _, out := range logic.Outputs {
		c.outputs.WithLabelValues(string(out)).Set(0)
	}
	return c
}

// Emit implements logic.Sink.
func (c *Collector) Emit(e logic.Event) {
	snap := e.Snapshot
	switch e.Type {
	case logic.EventTransition:
		c.transitions.WithLabelValues(string(snap.State)).Inc()
		switch snap.State {
		case logic.StatePurging:
			c.purges.WithLabelValues(string(snap.Purge), e.Reason).Inc()
		case logic.StateStartup:
			if snap.Phase == logic.PhasePreflight {
				c.ignitions.Inc()
			}
		}
	case logic.EventTrip:
		c.trips.WithLabelValues(e.Reason).Inc()
	case logic.EventFault:
		c.faults.WithLabelValues(faultOutput(e.Reason)).Inc()
	case logic.EventOutput:
		if e.Output == logic.OutputAuger && e.On {
			c.augerPulses.Inc()
		}
	}
	c.observe(snap)
}

// observe refreshes the gauges from a snapshot.
func (c *Collector) observe(snap logic.Snapshot) {
	for _, s := range states {
		v := 0.0
		if s == snap.State {
			v = 1
		}
		c.state.WithLabelValues(string(s)).Set(v)
	}
	for _, out := range logic.Outputs {
		c.outputs.WithLabelValues(string(out)).Set(boolToFloat(snap.Outputs.Get(out)))
	}
	c.unstable.WithLabelValues(string(logic.InputVacuum)).Set(boolToFloat(snap.VacuumUnstable))
	c.unstable.WithLabelValues(string(logic.InputFlameProof)).Set(boolToFloat(snap.FlameUnstable))
	c.feedRatio.Set(snap.Feed.Ratio)
	c.feedOn.Set(snap.Feed.OnTime.Seconds())
	c.feedOff.Set(snap.Feed.OffTime.Seconds())
	if snap.Thermal.HasTemperature {
		c.roomTemp.Set(snap.Thermal.RoomTemperature)
	}
}

// faultOutput extracts the output name from a fault reason "<output>: <error>".
func faultOutput(reason string) string {
	name, _, ok := strings.Cut(reason, ":")
	if !ok {
		return "unknown"
	}
	return name
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
