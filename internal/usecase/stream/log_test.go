package stream

import (
	"context"
	"testing"
	"time"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

func collect(t *testing.T, ch <-chan domain.SearchEvent) []domain.SearchEvent {
	t.Helper()
	var out []domain.SearchEvent
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestLogIndexesMonotonically(t *testing.T) {
	l := newSessionLog()
	l.append(domain.EventStepStart, nil)
	l.append(domain.EventProgress, nil)
	l.append(domain.EventDone, nil)

	events := l.snapshot(0)
	for i, ev := range events {
		if ev.Index != int64(i) {
			t.Errorf("events[%d].Index = %d", i, ev.Index)
		}
	}
	if !l.terminal() {
		t.Error("log not terminal after done event")
	}

	// Appends after a terminal event are refused.
	l.append(domain.EventProgress, nil)
	if got := len(l.snapshot(0)); got != 3 {
		t.Errorf("len = %d after post-terminal append", got)
	}
}

func TestSubscribeReplaysCompletedSession(t *testing.T) {
	l := newSessionLog()
	l.append(domain.EventStepStart, map[string]any{"step": "search"})
	l.append(domain.EventResult, map[string]any{"count": 2})
	l.append(domain.EventDone, nil)

	events := collect(t, l.subscribe(context.Background(), 0, time.Minute))
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, ev := range events {
		if ev.Index != int64(i) {
			t.Errorf("events[%d].Index = %d", i, ev.Index)
		}
		if !ev.Replayed {
			t.Errorf("events[%d] not tagged replayed", i)
		}
	}
	if events[2].Type != domain.EventDone {
		t.Errorf("last event = %q", events[2].Type)
	}
}

// Two subscriptions with the same last index must deliver identical event
// sequences.
func TestSubscribeReplayIdempotent(t *testing.T) {
	l := newSessionLog()
	l.append(domain.EventStepStart, nil)
	l.append(domain.EventStepDone, nil)
	l.append(domain.EventResult, nil)
	l.append(domain.EventDone, nil)

	first := collect(t, l.subscribe(context.Background(), 1, time.Minute))
	second := collect(t, l.subscribe(context.Background(), 1, time.Minute))

	if len(first) != 3 || len(second) != len(first) {
		t.Fatalf("lengths: %d, %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Index != second[i].Index || first[i].Type != second[i].Type {
			t.Errorf("event %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

// The replay-to-live transition must neither skip nor duplicate an index.
func TestSubscribeReplayThenLive(t *testing.T) {
	l := newSessionLog()
	l.append(domain.EventStepStart, nil)
	l.append(domain.EventProgress, nil)

	ch := l.subscribe(context.Background(), 0, time.Minute)

	got := make(chan []domain.SearchEvent, 1)
	go func() {
		var out []domain.SearchEvent
		for ev := range ch {
			out = append(out, ev)
		}
		got <- out
	}()

	l.append(domain.EventResult, nil)
	l.append(domain.EventDone, nil)

	var events []domain.SearchEvent
	select {
	case events = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not finish")
	}

	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	for i, ev := range events {
		if ev.Index != int64(i) {
			t.Fatalf("gap or duplicate at position %d: index %d", i, ev.Index)
		}
	}
	if !events[0].Replayed || !events[1].Replayed {
		t.Error("pre-subscribe events not tagged replayed")
	}
	if events[2].Replayed || events[3].Replayed {
		t.Error("live events tagged replayed")
	}
}

func TestSubscribeHeartbeatWhenIdle(t *testing.T) {
	l := newSessionLog()
	l.append(domain.EventStepStart, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := l.subscribe(ctx, 0, 20*time.Millisecond)

	var sawHeartbeat bool
	deadline := time.After(2 * time.Second)
	for !sawHeartbeat {
		select {
		case ev := <-ch:
			if ev.Type == domain.EventHeartbeat {
				sawHeartbeat = true
			}
		case <-deadline:
			t.Fatal("no heartbeat on idle subscription")
		}
	}
}

func TestSubscribeCancel(t *testing.T) {
	l := newSessionLog()
	l.append(domain.EventStepStart, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := l.subscribe(ctx, 0, time.Minute)

	<-ch // drain the replayed event
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			// A heartbeat or late event may race the cancel; the channel
			// must still close right after.
			if _, still := <-ch; still {
				t.Fatal("channel open after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
