package logic

import "time"

// Actuator sets relay outputs. done is called once the write has been
// observed complete (nil) or has failed, on the controller's thread.
type Actuator interface {
	SetOutput(out Output, on bool, done func(error))
}

// InputReader reads the current value of a switch input.
type InputReader interface {
	ReadInput(in Input, done func(value bool, err error))
}

// TemperatureSource reads the latest room temperature.
// An error (typically ErrUnknownValue) means no usable reading.
type TemperatureSource interface {
	ReadTemperature(done func(Reading, error))
}

// ConfigSource supplies tunable parameters. It is polled every heartbeat.
type ConfigSource interface {
	Tunables() Tunables
}

// Sink receives controller telemetry.
type Sink interface {
	Emit(Event)
}

// Sinks fans one event out to several sinks in order.
type Sinks []Sink

// Emit forwards e to every sink.
func (s Sinks) Emit(e Event) {
	for _, sink := range s {
		sink.Emit(e)
	}
}

// FeedMode selects how the feed controller derives its target demand.
type FeedMode string

const (
	FeedProportional FeedMode = "proportional"
	FeedTwoLevel     FeedMode = "two_level"
)

// FeedTunables bounds the auger duty cycle and sets the smoothing law.
type FeedTunables struct {
	Mode      FeedMode
	RampOn    time.Duration
	RampOff   time.Duration
	HighOn    time.Duration
	HighOff   time.Duration
	LowOn     time.Duration
	LowOff    time.Duration
	AlphaUp   float64
	AlphaDown float64
}

// ThermalTunables sets the day/night temperature schedule.
type ThermalTunables struct {
	DayStartHour      int
	NightStartHour    int
	DayCold           float64
	NightCold         float64
	Hysteresis        float64
	MaxTemperatureAge time.Duration
	AutoRestartDay    bool
	AutoRestartNight  bool
}

// Tunables is the full parameter set of the controller.
//
// PrimeEnd, IgnitionEnd and RunStart are measured from the start of Prime.
type Tunables struct {
	BootPurge       time.Duration
	ShutdownPurge   time.Duration
	ThermostatPurge time.Duration
	SettleDelay     time.Duration
	PrimeEnd        time.Duration
	IgnitionEnd     time.Duration
	RunStart        time.Duration
	HotStartIgniter time.Duration
	WarmHold        time.Duration
	Heartbeat       time.Duration
	VacuumHoldoff   time.Duration
	FlameHoldoff    time.Duration
	Feed            FeedTunables
	Thermal         ThermalTunables
}

// DefaultTunables returns the factory profile.
func DefaultTunables() Tunables {
	return Tunables{
		BootPurge:       20 * time.Minute,
		ShutdownPurge:   30 * time.Minute,
		ThermostatPurge: 30 * time.Minute,
		SettleDelay:     5 * time.Second,
		PrimeEnd:        90 * time.Second,
		IgnitionEnd:     210 * time.Second,
		RunStart:        11 * time.Minute,
		HotStartIgniter: 60 * time.Second,
		WarmHold:        10 * time.Minute,
		Heartbeat:       10 * time.Second,
		VacuumHoldoff:   10 * time.Second,
		FlameHoldoff:    60 * time.Second,
		Feed: FeedTunables{
			Mode:      FeedProportional,
			RampOn:    4 * time.Second,
			RampOff:   4 * time.Second,
			HighOn:    3 * time.Second,
			HighOff:   5 * time.Second,
			LowOn:     2 * time.Second,
			LowOff:    12 * time.Second,
			AlphaUp:   0.02,
			AlphaDown: 0.1,
		},
		Thermal: ThermalTunables{
			DayStartHour:      6,
			NightStartHour:    22,
			DayCold:           20,
			NightCold:         17,
			Hysteresis:        1.5,
			MaxTemperatureAge: 15 * time.Minute,
			AutoRestartDay:    true,
			AutoRestartNight:  true,
		},
	}
}

// StaticConfig is a ConfigSource that always returns the same tunables.
type StaticConfig Tunables

// Tunables returns the wrapped value.
func (s StaticConfig) Tunables() Tunables {
	return Tunables(s)
}
