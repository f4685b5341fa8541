package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/stove-controller/internal/logic"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	defaultBuffer  = 256
)

// MessageHandler receives an inbound message on a paho goroutine.
type MessageHandler func(topic string, payload []byte)

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BufferSize int // messages kept while disconnected; 0 uses a default
	Logger     zerolog.Logger
	Now        func() time.Time
}

// conn is the part of the broker connection RealPublisher uses.
type conn interface {
	IsConnectionOpen() bool
	publish(topic string, qos byte, retained bool, payload []byte, wait time.Duration) error
	subscribe(topic string, qos byte, h MessageHandler) error
	disconnect()
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are kept in a ring buffer and sent on reconnect,
// followed by a RECONNECTED event.
type RealPublisher struct {
	conn   conn
	topics Topics
	log    zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	buffer    *ringBuffer
	subs      map[string]MessageHandler
	connected bool // at least one successful connect
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is unreachable the publisher is still returned and keeps retrying in the
// background; publishes are buffered meanwhile.
func NewRealPublisher(o Options) *RealPublisher {
	p := newPublisher(nil, o)
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(o.Topics.System, willPayload(p.now()), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(err) })

	client := paho.NewClient(opts)
	p.conn = pahoConn{client}

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.Warn().Str("broker", o.Broker).Msg("broker not reachable yet, retrying in background")
	} else if err := token.Error(); err != nil {
		p.log.Error().Err(err).Str("broker", o.Broker).Msg("connect to broker")
	}
	return p
}

func newPublisher(c conn, o Options) *RealPublisher {
	size := o.BufferSize
	if size <= 0 {
		size = defaultBuffer
	}
	now := o.Now
	if now == nil {
		now = time.Now
	}
	return &RealPublisher{
		conn:   c,
		topics: o.Topics,
		log:    o.Logger,
		now:    now,
		buffer: newRingBuffer(size, o.Logger),
		subs:   make(map[string]MessageHandler),
	}
}

func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	pending := p.buffer.drainAll()
	subs := make(map[string]MessageHandler, len(p.subs))
	for t, h := range p.subs {
		subs[t] = h
	}
	p.mu.Unlock()

	p.log.Info().Bool("reconnect", reconnect).Int("buffered", len(pending)).Msg("connected to broker")

	for topic, h := range subs {
		if err := p.conn.subscribe(topic, 1, h); err != nil {
			p.log.Error().Err(err).Str("topic", topic).Msg("resubscribe failed")
		}
	}
	for _, m := range pending {
		if err := p.conn.publish(m.topic, m.qos, m.retained, m.payload, 0); err != nil {
			p.log.Error().Err(err).Str("topic", m.topic).Msg("replay buffered message")
		}
	}
	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: EventReconnected})
		if err := p.conn.publish(p.topics.System, 1, false, payload, 0); err != nil {
			p.log.Error().Err(err).Msg("publish reconnected event")
		}
	}
}

func (p *RealPublisher) onConnectionLost(err error) {
	p.log.Warn().Err(err).Msg("broker connection lost")
}

// send publishes now, or buffers when the connection is down.
func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	if !p.conn.IsConnectionOpen() {
		p.mu.Lock()
		p.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	return p.conn.publish(topic, qos, retained, payload, publishTimeout)
}

// Publish sends a controller event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	if err := p.send(p.topics.Events, 0, false, payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - lifecycle events should arrive
	if err := p.send(p.topics.System, 1, event.Retained, payload); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// Send publishes payload immediately without buffering or waiting. It is
// used for RPC requests, which must not be replayed late.
func (p *RealPublisher) Send(topic string, payload []byte) error {
	if !p.conn.IsConnectionOpen() {
		return ErrNotConnected
	}
	return p.conn.publish(topic, 1, false, payload, 0)
}

// Subscribe registers h for topic. Subscriptions are renewed on every
// reconnect.
func (p *RealPublisher) Subscribe(topic string, h MessageHandler) error {
	p.mu.Lock()
	p.subs[topic] = h
	p.mu.Unlock()
	if !p.conn.IsConnectionOpen() {
		return nil
	}
	if err := p.conn.subscribe(topic, 1, h); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.conn.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.conn.disconnect()
	return nil
}

type pahoConn struct {
	client paho.Client
}

func (c pahoConn) IsConnectionOpen() bool {
	return c.client.IsConnectionOpen()
}

// publish waits up to wait for the broker to accept the message; a zero
// wait returns as soon as the message is queued.
func (c pahoConn) publish(topic string, qos byte, retained bool, payload []byte, wait time.Duration) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if wait == 0 {
		return nil
	}
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

func (c pahoConn) subscribe(topic string, qos byte, h MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ paho.Client, m paho.Message) {
		h(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe timeout")
	}
	return token.Error()
}

func (c pahoConn) disconnect() {
	c.client.Disconnect(1000) // 1 second timeout
}
