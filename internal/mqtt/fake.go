package mqtt

import (
	"sync"

	"github.com/sweeney/stove-controller/internal/logic"
)

// FakePublisher records published events for test assertions.
// It is safe for use from the EventSink goroutine.
type FakePublisher struct {
	mu sync.Mutex

	// Events contains all controller events that were published.
	Events []logic.Event

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the controller event.
func (f *FakePublisher) Publish(event logic.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// EventCount returns the number of controller events recorded so far.
func (f *FakePublisher) EventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Events)
}

// PublishedEvents returns a copy of the recorded controller events.
func (f *FakePublisher) PublishedEvents() []logic.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Event(nil), f.Events...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}

// SentMessage is one message passed to FakeTransport.Send.
type SentMessage struct {
	Topic   string
	Payload []byte
}

// FakeTransport is an in-memory Transport. Deliver simulates an inbound
// message on a subscribed topic.
type FakeTransport struct {
	mu       sync.Mutex
	handlers map[string]MessageHandler
	sent     []SentMessage

	// SendError, if set, is returned by Send.
	SendError error
	// OnSend, if set, is called after each successful Send.
	OnSend func(SentMessage)
}

// NewFakeTransport creates an empty FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{handlers: make(map[string]MessageHandler)}
}

// Send records the message.
func (f *FakeTransport) Send(topic string, payload []byte) error {
	f.mu.Lock()
	if f.SendError != nil {
		err := f.SendError
		f.mu.Unlock()
		return err
	}
	m := SentMessage{Topic: topic, Payload: append([]byte(nil), payload...)}
	f.sent = append(f.sent, m)
	onSend := f.OnSend
	f.mu.Unlock()
	if onSend != nil {
		onSend(m)
	}
	return nil
}

// Subscribe registers h for topic.
func (f *FakeTransport) Subscribe(topic string, h MessageHandler) error {
	f.mu.Lock()
	f.handlers[topic] = h
	f.mu.Unlock()
	return nil
}

// Deliver calls the handler registered for topic and reports whether there
// was one.
func (f *FakeTransport) Deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if ok {
		h(topic, payload)
	}
	return ok
}

// Sent returns a copy of the messages sent so far.
func (f *FakeTransport) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.sent...)
}

// Topics returns the subscribed topics.
func (f *FakeTransport) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.handlers))
	for t := range f.handlers {
		out = append(out, t)
	}
	return out
}
