// Package logic contains the combustion-control core of the stove controller:
// the state machine, ignition and purge sequencing, the auger duty loop, the
// debounced safety monitor and the feed controller.
// This package has NO hardware, MQTT or OS dependencies and starts no goroutines.
// Time comes from an injected clock.Scheduler, and every entry point must be
// called on the scheduler's logical thread.
package logic

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the top-level operating state.
type State string

const (
	StateIdle    State = "IDLE"
	StateStartup State = "STARTUP"
	StateRunning State = "RUNNING"
	StatePurging State = "PURGING"
	StateStandby State = "STANDBY"
)

// Phase is the ignition phase within StateStartup.
type Phase string

const (
	PhaseNone      Phase = ""
	PhasePreflight Phase = "PREFLIGHT"
	PhasePrime     Phase = "PRIME"
	PhaseWait      Phase = "WAIT"
	PhaseRamp      Phase = "RAMP"
)

// PurgeMode records why StatePurging was entered. It decides where the purge ends.
type PurgeMode string

const (
	PurgeNone       PurgeMode = ""
	PurgeSafety     PurgeMode = "SAFETY"
	PurgeThermostat PurgeMode = "THERMOSTAT"
)

// Output names an actuated relay.
type Output string

const (
	OutputExhaust    Output = "exhaust"
	OutputIgniter    Output = "igniter"
	OutputAuger      Output = "auger"
	OutputConvection Output = "convection"
)

// Outputs lists every relay in wiring order.
var Outputs = []Output{OutputExhaust, OutputIgniter, OutputAuger, OutputConvection}

// Input names a sensed switch.
type Input string

const (
	InputVacuum      Input = "vacuum"
	InputFlameProof  Input = "flame_proof"
	InputStartButton Input = "start_button"
	InputStopButton  Input = "stop_button"
)

// Inputs lists every switch input in wiring order.
var Inputs = []Input{InputVacuum, InputFlameProof, InputStartButton, InputStopButton}

// Purge and trip reasons.
const (
	ReasonPowerOn          = "power on"
	ReasonManualStop       = "manual stop"
	ReasonForceRun         = "force run"
	ReasonVacuumFail       = "vacuum fail"
	ReasonFireOut          = "fire out"
	ReasonIgnitionFailed   = "ignition failed"
	ReasonStaleTemperature = "stale temperature"
	ReasonRoomWarm         = "room warm"
	ReasonActuatorFault    = "actuator fault"
)

// ErrUnknownValue is returned by ports that have no usable value to report.
var ErrUnknownValue = errors.New("value unknown")

// Command is an operator request from a button, physical or virtual.
type Command string

const (
	CommandStart Command = "START"
	CommandStop  Command = "STOP"
	CommandForce Command = "FORCE"
)

// ParseCommand accepts START, STOP or FORCE in any case.
func ParseCommand(s string) (Command, error) {
	switch c := Command(strings.ToUpper(strings.TrimSpace(s))); c {
	case CommandStart, CommandStop, CommandForce:
		return c, nil
	}
	return "", fmt.Errorf("unknown command %q", s)
}

// Reading is a room temperature sample paired with the time the source last updated it.
type Reading struct {
	Celsius   float64
	UpdatedAt time.Time
}

// ThermalKind distinguishes pushed thermal events.
type ThermalKind string

const (
	ThermalTemperature ThermalKind = "TEMPERATURE"
	ThermalCall        ThermalKind = "CALL"
)

// ThermalEvent is a push-delivered thermostat or room temperature change.
type ThermalEvent struct {
	Kind        ThermalKind
	Reading     Reading
	CallForHeat bool
}

// TemperatureEvent wraps a pushed room temperature reading.
func TemperatureEvent(r Reading) ThermalEvent {
	return ThermalEvent{Kind: ThermalTemperature, Reading: r}
}

// CallEvent wraps a pushed thermostat call-for-heat signal.
func CallEvent(on bool) ThermalEvent {
	return ThermalEvent{Kind: ThermalCall, CallForHeat: on}
}

// EventType classifies controller telemetry.
type EventType string

const (
	EventTransition EventType = "TRANSITION"
	EventTrip       EventType = "TRIP"
	EventOutput     EventType = "OUTPUT"
	EventFeed       EventType = "FEED"
	EventFault      EventType = "FAULT"
	EventUnstable   EventType = "UNSTABLE"
	EventStable     EventType = "STABLE"
)

// Event is a structured telemetry record carrying the controller snapshot at
// the time it was emitted.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Reason    string
	Output    Output // set for EventOutput
	On        bool   // set for EventOutput
	Snapshot  Snapshot
}

// OutputStates holds the last observed (acknowledged) relay states.
type OutputStates struct {
	Exhaust    bool
	Igniter    bool
	Auger      bool
	Convection bool
}

// Get returns the state of out.
func (o OutputStates) Get(out Output) bool {
	switch out {
	case OutputExhaust:
		return o.Exhaust
	case OutputIgniter:
		return o.Igniter
	case OutputAuger:
		return o.Auger
	case OutputConvection:
		return o.Convection
	}
	return false
}

func (o *OutputStates) set(out Output, on bool) {
	switch out {
	case OutputExhaust:
		o.Exhaust = on
	case OutputIgniter:
		o.Igniter = on
	case OutputAuger:
		o.Auger = on
	case OutputConvection:
		o.Convection = on
	}
}

// FeedState is the feed controller's externally visible state.
type FeedState struct {
	Ratio   float64
	OnTime  time.Duration
	OffTime time.Duration
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	State          State
	Phase          Phase
	Purge          PurgeMode
	Reason         string
	CycleID        string
	Outputs        OutputStates
	Feed           FeedState
	Thermal        ThermalContext
	VacuumUnstable bool
	FlameUnstable  bool
}
