// Package config loads and validates the stove-controller YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/stove-controller/internal/logic"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Backend selects how relays and switches are reached.
const (
	BackendGPIO   = "gpio"
	BackendShelly = "shelly"
)

// Config is the on-disk configuration. Durations are Go duration strings.
type Config struct {
	Mode    logic.FeedMode `yaml:"mode"`
	Timing  Timing         `yaml:"timing"`
	Feed    Feed           `yaml:"feed"`
	Thermal Thermal        `yaml:"thermal"`
	Safety  Safety         `yaml:"safety"`
	Backend string         `yaml:"backend"`
	GPIO    GPIO           `yaml:"gpio"`
	MQTT    MQTT           `yaml:"mqtt"`
	HTTP    HTTP           `yaml:"http"`
	Logging Logging        `yaml:"logging"`
}

// Timing holds the sequencer durations. prime_end, ignition_end and
// run_start are measured from the start of Prime.
type Timing struct {
	BootPurge       time.Duration `yaml:"boot_purge"`
	ShutdownPurge   time.Duration `yaml:"shutdown_purge"`
	ThermostatPurge time.Duration `yaml:"thermostat_purge"`
	Settle          time.Duration `yaml:"settle"`
	PrimeEnd        time.Duration `yaml:"prime_end"`
	IgnitionEnd     time.Duration `yaml:"ignition_end"`
	RunStart        time.Duration `yaml:"run_start"`
	HotStartIgniter time.Duration `yaml:"hot_start_igniter"`
	WarmHold        time.Duration `yaml:"warm_hold"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
}

// Feed holds the auger duty pairs and smoothing rates.
type Feed struct {
	RampOn    time.Duration `yaml:"ramp_on"`
	RampOff   time.Duration `yaml:"ramp_off"`
	HighOn    time.Duration `yaml:"high_on"`
	HighOff   time.Duration `yaml:"high_off"`
	LowOn     time.Duration `yaml:"low_on"`
	LowOff    time.Duration `yaml:"low_off"`
	AlphaUp   float64       `yaml:"alpha_up"`
	AlphaDown float64       `yaml:"alpha_down"`
}

type Thermal struct {
	DayStartHour      int           `yaml:"day_start_hour"`
	NightStartHour    int           `yaml:"night_start_hour"`
	DayCold           float64       `yaml:"day_cold"`
	NightCold         float64       `yaml:"night_cold"`
	Hysteresis        float64       `yaml:"hysteresis"`
	MaxTemperatureAge time.Duration `yaml:"max_temperature_age"`
	AutoRestartDay    bool          `yaml:"auto_restart_day"`
	AutoRestartNight  bool          `yaml:"auto_restart_night"`
}

type Safety struct {
	VacuumHoldoff time.Duration `yaml:"vacuum_holdoff"`
	FlameHoldoff  time.Duration `yaml:"flame_holdoff"`
}

// GPIO describes a direct-wired board. Pins use BCM numbering.
type GPIO struct {
	Chip      string        `yaml:"chip"`
	ActiveLow bool          `yaml:"active_low"`
	Debounce  time.Duration `yaml:"debounce"`
	Pins      Pins          `yaml:"pins"`
}

type Pins struct {
	Exhaust     int `yaml:"exhaust"`
	Igniter     int `yaml:"igniter"`
	Auger       int `yaml:"auger"`
	Convection  int `yaml:"convection"`
	Vacuum      int `yaml:"vacuum"`
	FlameProof  int `yaml:"flame_proof"`
	StartButton int `yaml:"start_button"`
	StopButton  int `yaml:"stop_button"`
}

// MQTT holds broker, topic and relay-box settings.
type MQTT struct {
	Broker           string `yaml:"broker"`
	ClientID         string `yaml:"client_id"`
	Prefix           string `yaml:"prefix"`
	TemperatureTopic string `yaml:"temperature_topic"`
	CallTopic        string `yaml:"call_topic"`
	// Heartbeat is the interval of the retained status HEARTBEAT; 0 disables it.
	Heartbeat time.Duration `yaml:"heartbeat"`
	Shelly    Shelly        `yaml:"shelly"`
}

// Shelly maps outputs and inputs onto a Gen2 device's switch and input ids.
type Shelly struct {
	Device     string         `yaml:"device"`
	RPCTimeout time.Duration  `yaml:"rpc_timeout"`
	Switches   map[string]int `yaml:"switches"`
	Inputs     map[string]int `yaml:"inputs"`
}

type HTTP struct {
	Listen   string `yaml:"listen"`
	WSBroker string `yaml:"ws_broker"`
}

type Logging struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Defaults returns the factory profile for a direct-wired stove.
func Defaults() Config {
	t := logic.DefaultTunables()
	return Config{
		Mode: t.Feed.Mode,
		Timing: Timing{
			BootPurge:       t.BootPurge,
			ShutdownPurge:   t.ShutdownPurge,
			ThermostatPurge: t.ThermostatPurge,
			Settle:          t.SettleDelay,
			PrimeEnd:        t.PrimeEnd,
			IgnitionEnd:     t.IgnitionEnd,
			RunStart:        t.RunStart,
			HotStartIgniter: t.HotStartIgniter,
			WarmHold:        t.WarmHold,
			Heartbeat:       t.Heartbeat,
		},
		Feed: Feed{
			RampOn:    t.Feed.RampOn,
			RampOff:   t.Feed.RampOff,
			HighOn:    t.Feed.HighOn,
			HighOff:   t.Feed.HighOff,
			LowOn:     t.Feed.LowOn,
			LowOff:    t.Feed.LowOff,
			AlphaUp:   t.Feed.AlphaUp,
			AlphaDown: t.Feed.AlphaDown,
		},
		Thermal: Thermal{
			DayStartHour:      t.Thermal.DayStartHour,
			NightStartHour:    t.Thermal.NightStartHour,
			DayCold:           t.Thermal.DayCold,
			NightCold:         t.Thermal.NightCold,
			Hysteresis:        t.Thermal.Hysteresis,
			MaxTemperatureAge: t.Thermal.MaxTemperatureAge,
			AutoRestartDay:    t.Thermal.AutoRestartDay,
			AutoRestartNight:  t.Thermal.AutoRestartNight,
		},
		Safety: Safety{
			VacuumHoldoff: t.VacuumHoldoff,
			FlameHoldoff:  t.FlameHoldoff,
		},
		Backend: BackendGPIO,
		GPIO: GPIO{
			Chip:     "gpiochip0",
			Debounce: 20 * time.Millisecond,
			Pins: Pins{
				Exhaust:     17,
				Igniter:     27,
				Auger:       22,
				Convection:  23,
				Vacuum:      5,
				FlameProof:  6,
				StartButton: 13,
				StopButton:  19,
			},
		},
		MQTT: MQTT{
			Broker:           "tcp://localhost:1883",
			ClientID:         "stove-controller",
			Prefix:           "stove",
			TemperatureTopic: "home/livingroom/temperature",
			CallTopic:        "home/livingroom/call",
			Heartbeat:        15 * time.Minute,
			Shelly: Shelly{
				Device:     "shellypro4pm-stove",
				RPCTimeout: 5 * time.Second,
				Switches: map[string]int{
					string(logic.OutputExhaust):    0,
					string(logic.OutputIgniter):    1,
					string(logic.OutputAuger):      2,
					string(logic.OutputConvection): 3,
				},
				Inputs: map[string]int{
					string(logic.InputVacuum):      0,
					string(logic.InputFlameProof):  1,
					string(logic.InputStartButton): 2,
					string(logic.InputStopButton):  3,
				},
			},
		},
		HTTP: HTTP{
			Listen:   ":8080",
			WSBroker: "",
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads path on top of Defaults and validates the result.
// Unknown fields are rejected.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of Defaults and validates the result.
func Parse(b []byte) (Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants. Every problem found is reported.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Mode != logic.FeedProportional && c.Mode != logic.FeedTwoLevel {
		bad("mode must be %q or %q", logic.FeedProportional, logic.FeedTwoLevel)
	}

	positive := map[string]time.Duration{
		"timing.boot_purge":           c.Timing.BootPurge,
		"timing.shutdown_purge":       c.Timing.ShutdownPurge,
		"timing.thermostat_purge":     c.Timing.ThermostatPurge,
		"timing.settle":               c.Timing.Settle,
		"timing.prime_end":            c.Timing.PrimeEnd,
		"timing.ignition_end":         c.Timing.IgnitionEnd,
		"timing.run_start":            c.Timing.RunStart,
		"timing.warm_hold":            c.Timing.WarmHold,
		"timing.heartbeat":            c.Timing.Heartbeat,
		"feed.ramp_on":                c.Feed.RampOn,
		"feed.ramp_off":               c.Feed.RampOff,
		"feed.high_on":                c.Feed.HighOn,
		"feed.high_off":               c.Feed.HighOff,
		"feed.low_on":                 c.Feed.LowOn,
		"feed.low_off":                c.Feed.LowOff,
		"thermal.max_temperature_age": c.Thermal.MaxTemperatureAge,
		"safety.vacuum_holdoff":       c.Safety.VacuumHoldoff,
		"safety.flame_holdoff":        c.Safety.FlameHoldoff,
	}
	for _, name := range sortedKeys(positive) {
		if positive[name] <= 0 {
			bad("%s must be > 0", name)
		}
	}
	if c.Timing.HotStartIgniter < 0 {
		bad("timing.hot_start_igniter must be >= 0")
	}

	if !(c.Timing.PrimeEnd < c.Timing.IgnitionEnd && c.Timing.IgnitionEnd < c.Timing.RunStart) {
		bad("timing must satisfy prime_end < ignition_end < run_start")
	}

	if c.Feed.HighOn < c.Feed.LowOn {
		bad("feed.high_on must be >= feed.low_on")
	}
	if c.Feed.LowOff < c.Feed.HighOff {
		bad("feed.low_off must be >= feed.high_off")
	}
	if !(c.Feed.AlphaUp > 0 && c.Feed.AlphaUp <= 1) {
		bad("feed.alpha_up must be in (0, 1]")
	}
	if !(c.Feed.AlphaDown > 0 && c.Feed.AlphaDown <= 1) {
		bad("feed.alpha_down must be in (0, 1]")
	}

	for name, h := range map[string]int{
		"thermal.day_start_hour":   c.Thermal.DayStartHour,
		"thermal.night_start_hour": c.Thermal.NightStartHour,
	} {
		if h < 0 || h > 23 {
			bad("%s must be in [0, 23]", name)
		}
	}
	if !(c.Thermal.Hysteresis > 0) || math.IsInf(c.Thermal.Hysteresis, 1) {
		bad("thermal.hysteresis must be a finite value > 0")
	}
	for name, v := range map[string]float64{
		"thermal.day_cold":   c.Thermal.DayCold,
		"thermal.night_cold": c.Thermal.NightCold,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			bad("%s must be finite", name)
		}
	}

	switch c.Backend {
	case BackendGPIO:
		if c.GPIO.Chip == "" {
			bad("gpio.chip must not be empty")
		}
	case BackendShelly:
		if c.MQTT.Shelly.Device == "" {
			bad("mqtt.shelly.device must not be empty")
		}
		if c.MQTT.Shelly.RPCTimeout <= 0 {
			bad("mqtt.shelly.rpc_timeout must be > 0")
		}
		for _, out := range logic.Outputs {
			if _, ok := c.MQTT.Shelly.Switches[string(out)]; !ok {
				bad("mqtt.shelly.switches missing %q", out)
			}
		}
		for _, in := range logic.Inputs {
			if _, ok := c.MQTT.Shelly.Inputs[string(in)]; !ok {
				bad("mqtt.shelly.inputs missing %q", in)
			}
		}
	default:
		bad("backend must be %q or %q", BackendGPIO, BackendShelly)
	}

	if c.MQTT.Broker == "" {
		bad("mqtt.broker must not be empty")
	}
	if c.MQTT.Prefix == "" {
		bad("mqtt.prefix must not be empty")
	}
	if c.MQTT.Heartbeat < 0 {
		bad("mqtt.heartbeat must be >= 0")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// Tunables converts the file into the controller's parameter set.
func (c Config) Tunables() logic.Tunables {
	return logic.Tunables{
		BootPurge:       c.Timing.BootPurge,
		ShutdownPurge:   c.Timing.ShutdownPurge,
		ThermostatPurge: c.Timing.ThermostatPurge,
		SettleDelay:     c.Timing.Settle,
		PrimeEnd:        c.Timing.PrimeEnd,
		IgnitionEnd:     c.Timing.IgnitionEnd,
		RunStart:        c.Timing.RunStart,
		HotStartIgniter: c.Timing.HotStartIgniter,
		WarmHold:        c.Timing.WarmHold,
		Heartbeat:       c.Timing.Heartbeat,
		VacuumHoldoff:   c.Safety.VacuumHoldoff,
		FlameHoldoff:    c.Safety.FlameHoldoff,
		Feed: logic.FeedTunables{
			Mode:      c.Mode,
			RampOn:    c.Feed.RampOn,
			RampOff:   c.Feed.RampOff,
			HighOn:    c.Feed.HighOn,
			HighOff:   c.Feed.HighOff,
			LowOn:     c.Feed.LowOn,
			LowOff:    c.Feed.LowOff,
			AlphaUp:   c.Feed.AlphaUp,
			AlphaDown: c.Feed.AlphaDown,
		},
		Thermal: logic.ThermalTunables{
			DayStartHour:      c.Thermal.DayStartHour,
			NightStartHour:    c.Thermal.NightStartHour,
			DayCold:           c.Thermal.DayCold,
			NightCold:         c.Thermal.NightCold,
			Hysteresis:        c.Thermal.Hysteresis,
			MaxTemperatureAge: c.Thermal.MaxTemperatureAge,
			AutoRestartDay:    c.Thermal.AutoRestartDay,
			AutoRestartNight:  c.Thermal.AutoRestartNight,
		},
	}
}

func sortedKeys(m map[string]time.Duration) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
