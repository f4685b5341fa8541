package main

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/sweeney/stove-controller/internal/clock"
	"github.com/sweeney/stove-controller/internal/config"
	"github.com/sweeney/stove-controller/internal/gpio"
	"github.com/sweeney/stove-controller/internal/logic"
	"github.com/sweeney/stove-controller/internal/metrics"
	"github.com/sweeney/stove-controller/internal/mqtt"
	"github.com/sweeney/stove-controller/internal/status"
)

// hardware is a relay and switch backend: a GPIO board or a Shelly box.
type hardware interface {
	logic.Actuator
	logic.InputReader
	ReadAll() (map[logic.Input]bool, error)
}

// edgeRouter forwards input edges to the controller once it exists. The
// backend is built before the controller, so early edges are dropped.
type edgeRouter struct {
	ctrl *logic.Controller
}

func (r *edgeRouter) handle(in logic.Input, value bool) {
	if r.ctrl == nil {
		return
	}
	r.ctrl.HandleInput(in, value)
}

func gpioConfig(cfg config.Config) gpio.Config {
	p := cfg.GPIO.Pins
	return gpio.Config{
		Chip:      cfg.GPIO.Chip,
		ActiveLow: cfg.GPIO.ActiveLow,
		Debounce:  cfg.GPIO.Debounce,
		Outputs: map[logic.Output]int{
			logic.OutputExhaust:    p.Exhaust,
			logic.OutputIgniter:    p.Igniter,
			logic.OutputAuger:      p.Auger,
			logic.OutputConvection: p.Convection,
		},
		Inputs: map[logic.Input]int{
			logic.InputVacuum:      p.Vacuum,
			logic.InputFlameProof:  p.FlameProof,
			logic.InputStartButton: p.StartButton,
			logic.InputStopButton:  p.StopButton,
		},
	}
}

func shellyConfig(cfg config.Config) mqtt.ShellyConfig {
	sc := mqtt.ShellyConfig{
		Device:   cfg.MQTT.Shelly.Device,
		ClientID: cfg.MQTT.ClientID,
		Timeout:  cfg.MQTT.Shelly.RPCTimeout,
		Switches: make(map[logic.Output]int, len(logic.Outputs)),
		Inputs:   make(map[logic.Input]int, len(logic.Inputs)),
	}
	for _, out := range logic.Outputs {
		if id, ok := cfg.MQTT.Shelly.Switches[string(out)]; ok {
			sc.Switches[out] = id
		}
	}
	for _, in := range logic.Inputs {
		if id, ok := cfg.MQTT.Shelly.Inputs[string(in)]; ok {
			sc.Inputs[in] = id
		}
	}
	return sc
}

func statusConfig(cfg config.Config, wsBroker string) status.Config {
	return status.Config{
		Mode:        string(cfg.Mode),
		Backend:     cfg.Backend,
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPPort:    cfg.HTTP.Listen,
		WSBroker:    wsBroker,
	}
}

// stoveDeps are the pieces newStove assembles a controller from.
type stoveDeps struct {
	Scheduler clock.Scheduler
	Poster    mqtt.Poster
	Hardware  hardware
	Config    logic.ConfigSource
	Publisher mqtt.Publisher
	Tracker   *status.Tracker
	Registry  *prometheus.Registry
	Logger    zerolog.Logger
}

// stove is the assembled controller with its sinks and inbound routing.
type stove struct {
	ctrl    *logic.Controller
	events  *mqtt.EventSink
	metrics *metrics.Collector
	cache   *mqtt.TemperatureCache
	inbound *mqtt.Inbound
}

func newStove(d stoveDeps) *stove {
	s := &stove{
		events:  mqtt.NewEventSink(d.Publisher, 0, d.Logger.With().Str("component", "events").Logger()),
		metrics: metrics.New(d.Registry),
		cache:   mqtt.NewTemperatureCache(d.Poster),
	}
	s.ctrl = logic.New(logic.Deps{
		Scheduler:   d.Scheduler,
		Actuator:    d.Hardware,
		Inputs:      d.Hardware,
		Temperature: s.cache,
		Config:      d.Config,
		Sink:        logic.Sinks{d.Tracker, s.metrics, s.events},
		Logger:      d.Logger.With().Str("component", "controller").Logger(),
	})
	s.inbound = mqtt.NewInbound(d.Poster, s.cache, mqtt.Handlers{
		Temperature: func(r logic.Reading) { s.ctrl.OnThermalEvent(logic.TemperatureEvent(r)) },
		Call:        func(on bool) { s.ctrl.OnThermalEvent(logic.CallEvent(on)) },
		Command:     s.ctrl.Dispatch,
	}, d.Logger.With().Str("component", "inbound").Logger())
	return s
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// daemon publishes the lifecycle events around the controller.
type daemon struct {
	pub     mqtt.Publisher
	conn    mqtt.ConnectionStatus
	tracker *status.Tracker
	log     zerolog.Logger
	now     func() time.Time
}

// publishStatus publishes a system event carrying the full status snapshot.
// STARTUP and SHUTDOWN are retained so the broker shows the last known
// lifecycle state.
func (d *daemon) publishStatus(event, reason string) {
	if d.conn != nil {
		d.tracker.SetMQTTConnected(d.conn.IsConnected())
	}
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      event,
		Reason:     reason,
		Retained:   event != mqtt.EventHeartbeat,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.pub.PublishSystem(ev); err != nil {
		d.log.Error().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	d.log.Info().Str("event", event).Str("reason", reason).Msg("published system event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// runLoop publishes heartbeats until a signal arrives, then publishes
// SHUTDOWN and returns the signal name. A nil heartbeat channel disables
// heartbeats.
func (d *daemon) runLoop(sig <-chan os.Signal, heartbeat <-chan time.Time, done <-chan struct{}) (string, error) {
	for {
		select {
		case s := <-sig:
			name := signalName(s)
			d.log.Info().Str("signal", name).Msg("shutting down")
			d.publishStatus(mqtt.EventShutdown, name)
			return name, nil
		case <-heartbeat:
			if net := readNetworkInfo(); net != nil {
				d.tracker.SetNetwork(net)
			}
			d.publishStatus(mqtt.EventHeartbeat, "")
		case <-done:
			return "", fmt.Errorf("control loop stopped")
		}
	}
}
