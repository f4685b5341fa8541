package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/sweeney/stove-controller/internal/logic"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// queuePoster collects posted functions until run is called.
type queuePoster struct {
	fns []func()
}

func (q *queuePoster) Post(fn func()) bool {
	q.fns = append(q.fns, fn)
	return true
}

func (q *queuePoster) run() {
	for len(q.fns) > 0 {
		fn := q.fns[0]
		q.fns = q.fns[1:]
		fn()
	}
}

func TestParseTemperature(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"21.5", 21.5, false},
		{" 19 \n", 19, false},
		{`{"temperature": 20.25}`, 20.25, false},
		{`{"tC": 18}`, 18, false},
		{`{"celsius": -2.5}`, -2.5, false},
		{`{"humidity": 40}`, 0, true},
		{`{"temperature": "warm"}`, 0, true},
		{"warm", 0, true},
		{"", 0, true},
		{"NaN", 0, true},
		{"nan", 0, true},
		{"+Inf", 0, true},
		{"-inf", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTemperature([]byte(tt.in))
			if tt.wantErr {
				if !errors.Is(err, logic.ErrUnknownValue) {
					t.Errorf("expected ErrUnknownValue, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseSwitch(t *testing.T) {
	for _, s := range []string{"ON", "on", "true", "1"} {
		if v, err := parseSwitch(s); err != nil || !v {
			t.Errorf("%q: got %v, %v", s, v, err)
		}
	}
	for _, s := range []string{"OFF", "false", "0 "} {
		if v, err := parseSwitch(s); err != nil || v {
			t.Errorf("%q: got %v, %v", s, v, err)
		}
	}
	if _, err := parseSwitch("maybe"); err == nil {
		t.Error("expected error")
	}
}

func TestInboundRoutesToLoop(t *testing.T) {
	q := &queuePoster{}
	cache := NewTemperatureCache(q)
	var temps []logic.Reading
	var calls []bool
	var cmds []logic.Command
	in := NewInbound(q, cache, Handlers{
		Temperature: func(r logic.Reading) { temps = append(temps, r) },
		Call:        func(on bool) { calls = append(calls, on) },
		Command:     func(c logic.Command) { cmds = append(cmds, c) },
	}, zerolog.Nop())

	tr := NewFakeTransport()
	if err := in.Subscribe(tr, "home/temp", "home/call", "stove/command"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tr.Deliver("home/temp", []byte("20.5"))
	tr.Deliver("home/temp", []byte("garbage"))
	tr.Deliver("home/call", []byte("ON"))
	tr.Deliver("stove/command", []byte("force"))
	tr.Deliver("stove/command", []byte("explode"))

	if len(temps)+len(calls)+len(cmds) != 0 {
		t.Fatal("handlers must run on the loop, not the transport goroutine")
	}
	q.run()

	if len(temps) != 1 || temps[0].Celsius != 20.5 {
		t.Errorf("temperatures: %+v", temps)
	}
	if len(calls) != 1 || !calls[0] {
		t.Errorf("calls: %v", calls)
	}
	if len(cmds) != 1 || cmds[0] != logic.CommandForce {
		t.Errorf("commands: %v", cmds)
	}
	if r, ok := cache.Latest(); !ok || r.Celsius != 20.5 {
		t.Errorf("cache: %+v %v", r, ok)
	}
}

func TestInboundSkipsEmptyTopics(t *testing.T) {
	tr := NewFakeTransport()
	in := NewInbound(&queuePoster{}, nil, Handlers{}, zerolog.Nop())
	if err := in.Subscribe(tr, "", "home/call", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if topics := tr.Topics(); len(topics) != 1 || topics[0] != "home/call" {
		t.Errorf("topics: %v", topics)
	}
}

func TestTemperatureCache(t *testing.T) {
	q := &queuePoster{}
	cache := NewTemperatureCache(q)

	var got logic.Reading
	var gotErr error
	cache.ReadTemperature(func(r logic.Reading, err error) { got, gotErr = r, err })
	q.run()
	if !errors.Is(gotErr, logic.ErrUnknownValue) {
		t.Errorf("expected ErrUnknownValue before first reading, got %v", gotErr)
	}

	at := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	cache.Store(logic.Reading{Celsius: 19.5, UpdatedAt: at})
	cache.ReadTemperature(func(r logic.Reading, err error) { got, gotErr = r, err })
	q.run()
	if gotErr != nil || got.Celsius != 19.5 || !got.UpdatedAt.Equal(at) {
		t.Errorf("got %+v, %v", got, gotErr)
	}
}

func TestEventSinkPublishesAndFlushes(t *testing.T) {
	pub := NewFakePublisher()
	sink := NewEventSink(pub, 8, zerolog.Nop())

	sink.Emit(testEvent(logic.EventTransition))
	sink.Emit(logic.Event{Type: logic.EventOutput, Output: logic.OutputAuger, On: true})
	sink.Emit(testEvent(logic.EventTrip))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Run(ctx)

	events := pub.PublishedEvents()
	if len(events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(events))
	}
	if events[0].Type != logic.EventTransition || events[1].Type != logic.EventTrip {
		t.Errorf("unexpected order: %s, %s", events[0].Type, events[1].Type)
	}
}

func TestEventSinkDropsWhenFull(t *testing.T) {
	pub := NewFakePublisher()
	sink := NewEventSink(pub, 1, zerolog.Nop())
	sink.Emit(testEvent(logic.EventTransition))
	sink.Emit(testEvent(logic.EventTrip))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Run(ctx)
	if pub.EventCount() != 1 {
		t.Errorf("expected 1 event, got %d", pub.EventCount())
	}
}

func TestEventSinkRunStops(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	sink := NewEventSink(pub, 8, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sink.Run(ctx)
		close(done)
	}()
	sink.Emit(testEvent(logic.EventTransition))
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
