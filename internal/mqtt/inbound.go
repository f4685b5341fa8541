package mqtt

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/stove-controller/internal/logic"
)

// Poster runs a function on the controller's loop.
type Poster interface {
	Post(fn func()) bool
}

// Subscriber registers topic handlers.
type Subscriber interface {
	Subscribe(topic string, h MessageHandler) error
}

// Handlers receive parsed inbound messages on the controller's loop.
type Handlers struct {
	Temperature func(logic.Reading)
	Call        func(on bool)
	Command     func(logic.Command)
}

// Inbound routes thermostat, room temperature and command messages to the
// controller.
type Inbound struct {
	post  Poster
	h     Handlers
	log   zerolog.Logger
	now   func() time.Time
	cache *TemperatureCache
}

// NewInbound creates a router. Temperatures are also stored in cache so the
// heartbeat can poll them.
func NewInbound(post Poster, cache *TemperatureCache, h Handlers, logger zerolog.Logger) *Inbound {
	return &Inbound{post: post, h: h, log: logger, now: time.Now, cache: cache}
}

// Subscribe registers the three inbound topics. Empty topics are skipped.
func (in *Inbound) Subscribe(s Subscriber, temperatureTopic, callTopic, commandTopic string) error {
	subs := []struct {
		topic string
		h     MessageHandler
	}{
		{temperatureTopic, in.HandleTemperature},
		{callTopic, in.HandleCall},
		{commandTopic, in.HandleCommand},
	}
	for _, sub := range subs {
		if sub.topic == "" {
			continue
		}
		if err := s.Subscribe(sub.topic, sub.h); err != nil {
			return err
		}
	}
	return nil
}

// HandleTemperature accepts a bare number or a JSON object carrying one of
// "temperature", "tC" or "celsius".
func (in *Inbound) HandleTemperature(topic string, payload []byte) {
	celsius, err := ParseTemperature(payload)
	if err != nil {
		in.log.Warn().Err(err).Str("topic", topic).Msg("ignoring temperature message")
		return
	}
	r := logic.Reading{Celsius: celsius, UpdatedAt: in.now()}
	if in.cache != nil {
		in.cache.Store(r)
	}
	if in.h.Temperature != nil {
		in.post.Post(func() { in.h.Temperature(r) })
	}
}

// HandleCall accepts ON/OFF, true/false or 1/0.
func (in *Inbound) HandleCall(topic string, payload []byte) {
	on, err := parseSwitch(string(payload))
	if err != nil {
		in.log.Warn().Err(err).Str("topic", topic).Msg("ignoring thermostat call")
		return
	}
	if in.h.Call != nil {
		in.post.Post(func() { in.h.Call(on) })
	}
}

// HandleCommand accepts START, STOP or FORCE.
func (in *Inbound) HandleCommand(topic string, payload []byte) {
	cmd, err := logic.ParseCommand(string(payload))
	if err != nil {
		in.log.Warn().Err(err).Str("topic", topic).Msg("ignoring command")
		return
	}
	if in.h.Command != nil {
		in.post.Post(func() { in.h.Command(cmd) })
	}
}

// ParseTemperature extracts degrees Celsius from payload.
func ParseTemperature(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("parse temperature %q: not finite: %w", s, logic.ErrUnknownValue)
		}
		return v, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return 0, fmt.Errorf("parse temperature %q: %w", s, logic.ErrUnknownValue)
	}
	for _, key := range []string{"temperature", "tC", "celsius"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, logic.ErrUnknownValue)
		}
		return v, nil
	}
	return 0, fmt.Errorf("no temperature field: %w", logic.ErrUnknownValue)
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON", "TRUE", "1":
		return true, nil
	case "OFF", "FALSE", "0":
		return false, nil
	}
	return false, fmt.Errorf("unrecognised switch value %q", s)
}

// TemperatureCache holds the latest room temperature received over MQTT.
// It implements logic.TemperatureSource.
type TemperatureCache struct {
	post Poster

	mu   sync.Mutex
	last logic.Reading
	ok   bool
}

// NewTemperatureCache creates an empty cache whose reads complete on post.
func NewTemperatureCache(post Poster) *TemperatureCache {
	return &TemperatureCache{post: post}
}

// Store records r as the latest reading.
func (c *TemperatureCache) Store(r logic.Reading) {
	c.mu.Lock()
	c.last, c.ok = r, true
	c.mu.Unlock()
}

// Latest returns the latest reading and whether one has arrived.
func (c *TemperatureCache) Latest() (logic.Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.ok
}

// ReadTemperature reports the latest reading, or ErrUnknownValue before the
// first one. Staleness is the controller's concern.
func (c *TemperatureCache) ReadTemperature(done func(logic.Reading, error)) {
	r, ok := c.Latest()
	var err error
	if !ok {
		err = logic.ErrUnknownValue
	}
	c.post.Post(func() { done(r, err) })
}
