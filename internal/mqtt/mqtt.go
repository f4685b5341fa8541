// Package mqtt publishes controller telemetry, ingests thermostat and command
// messages, and talks to a Shelly Gen2 relay box over MQTT RPC.
package mqtt

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/sweeney/stove-controller/internal/logic"
)

// Sentinel errors.
var (
	ErrNotConnected = errors.New("mqtt: not connected")
	ErrRPCTimeout   = errors.New("mqtt: rpc timeout")
)

// Topics are the topics owned by this daemon, all under one prefix.
type Topics struct {
	Events  string // controller events
	System  string // lifecycle events and last will
	Command string // virtual buttons: START, STOP, FORCE
}

// TopicsFor derives the topic set from prefix, e.g. "stove".
func TopicsFor(prefix string) Topics {
	return Topics{
		Events:  prefix + "/events",
		System:  prefix + "/system",
		Command: prefix + "/command",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a controller event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Lifecycle event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventReconnected = "RECONNECTED"
)

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// ShouldPublish reports whether e goes to the broker. Auger pulses are too
// frequent to publish and only feed metrics.
func ShouldPublish(e logic.Event) bool {
	return !(e.Type == logic.EventOutput && e.Output == logic.OutputAuger)
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Stove StovePayload `json:"stove"`
}

// StovePayload contains the controller event details.
type StovePayload struct {
	Timestamp string        `json:"timestamp"`
	Event     string        `json:"event"`
	Reason    string        `json:"reason,omitempty"`
	State     string        `json:"state"`
	Phase     string        `json:"phase,omitempty"`
	Purge     string        `json:"purge,omitempty"`
	CycleID   string        `json:"cycle_id,omitempty"`
	Output    *OutputChange `json:"output,omitempty"`
	Feed      FeedPayload   `json:"feed"`
}

// OutputChange is the relay that changed in an OUTPUT event.
type OutputChange struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// FeedPayload is the auger duty cycle at the time of the event.
type FeedPayload struct {
	Ratio float64 `json:"ratio"`
	OnMs  int64   `json:"on_ms"`
	OffMs int64   `json:"off_ms"`
}

// FormatPayload creates the JSON payload for a controller event.
func FormatPayload(event logic.Event) ([]byte, error) {
	snap := event.Snapshot
	p := StovePayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
		Reason:    event.Reason,
		State:     string(snap.State),
		Phase:     string(snap.Phase),
		Purge:     string(snap.Purge),
		CycleID:   snap.CycleID,
		Feed: FeedPayload{
			Ratio: math.Round(snap.Feed.Ratio*1000) / 1000,
			OnMs:  snap.Feed.OnTime.Milliseconds(),
			OffMs: snap.Feed.OffTime.Milliseconds(),
		},
	}
	if event.Type == logic.EventOutput {
		p.Output = &OutputChange{Name: string(event.Output), State: onOff(event.On)}
	}
	return json.Marshal(Payload{Stove: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// willPayload is the last will: an unplanned SHUTDOWN.
func willPayload(now time.Time) []byte {
	b, _ := FormatSystemPayload(SystemEvent{
		Timestamp: now,
		Event:     EventShutdown,
		Reason:    "MQTT_DISCONNECT",
	})
	return b
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
