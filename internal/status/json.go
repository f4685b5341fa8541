package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/stove-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	Phase         string       `json:"phase,omitempty"`
	Purge         string       `json:"purge,omitempty"`
	StateReason   string       `json:"state_reason,omitempty"`
	CycleID       string       `json:"cycle_id,omitempty"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Outputs       OutputsJSON  `json:"outputs"`
	Feed          FeedJSON     `json:"feed"`
	Thermal       ThermalJSON  `json:"thermal"`
	Safety        SafetyJSON   `json:"safety"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// OutputsJSON reports the last acknowledged relay states.
type OutputsJSON struct {
	Exhaust    bool `json:"exhaust"`
	Igniter    bool `json:"igniter"`
	Auger      bool `json:"auger"`
	Convection bool `json:"convection"`
}

// FeedJSON reports the auger duty cycle.
type FeedJSON struct {
	Ratio float64 `json:"ratio"`
	OnMs  int64   `json:"on_ms"`
	OffMs int64   `json:"off_ms"`
}

// ThermalJSON reports the room temperature and schedule.
type ThermalJSON struct {
	Temperature *float64 `json:"temperature,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
	CallForHeat *bool    `json:"call_for_heat,omitempty"`
	Daytime     bool     `json:"daytime"`
	Cold        float64  `json:"cold"`
	Warm        float64  `json:"warm"`
}

// SafetyJSON reports safety signals whose hold-off is running.
type SafetyJSON struct {
	VacuumUnstable bool   `json:"vacuum_unstable"`
	FlameUnstable  bool   `json:"flame_unstable"`
	LastTrip       string `json:"last_trip,omitempty"`
	LastTripAt     string `json:"last_trip_at,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Ignitions int `json:"ignitions"`
	Purges    int `json:"purges"`
	Trips     int `json:"trips"`
	Faults    int `json:"faults"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Mode        string `json:"mode"`
	Backend     string `json:"backend"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	WSBroker    string `json:"ws_broker,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Controller
	state := string(c.State)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		State:         state,
		Phase:         string(c.Phase),
		Purge:         string(c.Purge),
		StateReason:   c.Reason,
		CycleID:       c.CycleID,
		Ready:         snap.Ready,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Outputs: OutputsJSON{
			Exhaust:    c.Outputs.Exhaust,
			Igniter:    c.Outputs.Igniter,
			Auger:      c.Outputs.Auger,
			Convection: c.Outputs.Convection,
		},
		Feed: FeedJSON{
			Ratio: math.Round(c.Feed.Ratio*1000) / 1000,
			OnMs:  c.Feed.OnTime.Milliseconds(),
			OffMs: c.Feed.OffTime.Milliseconds(),
		},
		Thermal: buildThermal(c.Thermal),
		Safety: SafetyJSON{
			VacuumUnstable: c.VacuumUnstable,
			FlameUnstable:  c.FlameUnstable,
			LastTrip:       snap.LastTrip,
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Ignitions: snap.Counts.Ignitions,
			Purges:    snap.Counts.Purges,
			Trips:     snap.Counts.Trips,
			Faults:    snap.Counts.Faults,
		},
		Config: ConfigJSON{
			Mode:        snap.Config.Mode,
			Backend:     snap.Config.Backend,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			WSBroker:    snap.Config.WSBroker,
		},
	}
	if !snap.LastTripAt.IsZero() {
		inner.Safety.LastTripAt = snap.LastTripAt.UTC().Format(time.RFC3339)
	}
	return inner
}

func buildThermal(t logic.ThermalContext) ThermalJSON {
	th := ThermalJSON{Daytime: t.Daytime, Cold: t.Cold, Warm: t.Warm}
	if t.HasTemperature {
		v := t.RoomTemperature
		th.Temperature = &v
		th.UpdatedAt = t.LastUpdate.UTC().Format(time.RFC3339)
	}
	if t.HasCall {
		v := t.CallForHeat
		th.CallForHeat = &v
	}
	return th
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
