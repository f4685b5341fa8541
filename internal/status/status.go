// Package status provides a thread-safe status tracker for the stove-controller daemon.
// It is read by HTTP handlers and by the lifecycle events published to MQTT.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/stove-controller/internal/logic"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Mode        string
	Backend     string
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
	WSBroker    string // Websocket broker URL for browser MQTT (empty = disabled)
}

// Counts tallies notable controller events since the daemon started.
type Counts struct {
	Ignitions int
	Purges    int
	Trips     int
	Faults    int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and stays valid after the lock is released.
type Snapshot struct {
	Controller    logic.Snapshot
	Ready         bool // at least one controller event seen
	LastTrip      string
	LastTripAt    time.Time
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
// It implements logic.Sink.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Emit records the snapshot carried by e and updates the counters.
// Called on the controller loop.
func (t *Tracker) Emit(e logic.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Controller = e.Snapshot
	t.snap.Ready = true
	switch e.Type {
	case logic.EventTransition:
		switch {
		case e.Snapshot.State == logic.StatePurging:
			t.snap.Counts.Purges++
		case e.Snapshot.State == logic.StateStartup && e.Snapshot.Phase == logic.PhasePreflight:
			t.snap.Counts.Ignitions++
		}
	case logic.EventTrip:
		t.snap.Counts.Trips++
		t.snap.LastTrip = e.Reason
		t.snap.LastTripAt = e.Timestamp
	case logic.EventFault:
		t.snap.Counts.Faults++
	}
}

// SetConfig replaces the displayed configuration, e.g. after a reload.
func (t *Tracker) SetConfig(cfg Config) {
	t.mu.Lock()
	t.snap.Config = cfg
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
