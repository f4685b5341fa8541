package mqtt

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sweeney/stove-controller/internal/logic"
)

// EventSink hands controller events to a Publisher on its own goroutine so a
// slow broker never stalls the control loop.
type EventSink struct {
	pub Publisher
	ch  chan logic.Event
	log zerolog.Logger
}

// NewEventSink creates a sink queueing up to size events.
func NewEventSink(pub Publisher, size int, logger zerolog.Logger) *EventSink {
	if size <= 0 {
		size = defaultBuffer
	}
	return &EventSink{pub: pub, ch: make(chan logic.Event, size), log: logger}
}

// Emit queues e for publishing. Auger pulses are skipped, and events are
// dropped when the queue is full.
func (s *EventSink) Emit(e logic.Event) {
	if !ShouldPublish(e) {
		return
	}
	select {
	case s.ch <- e:
	default:
		s.log.Warn().Str("event", string(e.Type)).Msg("publish queue full, event dropped")
	}
}

// Run publishes queued events until ctx is cancelled, then flushes what is
// already queued.
func (s *EventSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-s.ch:
					s.publish(e)
				default:
					return
				}
			}
		case e := <-s.ch:
			s.publish(e)
		}
	}
}

func (s *EventSink) publish(e logic.Event) {
	if err := s.pub.Publish(e); err != nil {
		// Don't crash on publish failure
		s.log.Error().Err(err).Str("event", string(e.Type)).Msg("publish error")
	}
}
