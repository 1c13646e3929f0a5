package stream

import (
	"context"
	"sync"
	"time"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// sessionLog is one turn's append-only, monotonically indexed event log.
// Appends assign indexes from 0; subscribers read through a cursor, so the
// replay-to-live transition can neither skip nor duplicate an index.
type sessionLog struct {
	mu      sync.Mutex
	events  []domain.SearchEvent
	signals map[chan struct{}]struct{}
	done    bool
}

func newSessionLog() *sessionLog {
	return &sessionLog{signals: make(map[chan struct{}]struct{})}
}

// append stores the event, assigns its index, and wakes subscribers. After
// a terminal event the log refuses further appends.
func (l *sessionLog) append(typ domain.EventType, data map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return
	}
	l.events = append(l.events, domain.SearchEvent{
		Index: int64(len(l.events)),
		Type:  typ,
		Data:  data,
		At:    time.Now().UTC(),
	})
	if typ.Terminal() {
		l.done = true
	}
	for ch := range l.signals {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// snapshot returns the stored events starting at from.
func (l *sessionLog) snapshot(from int64) []domain.SearchEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if from < 0 {
		from = 0
	}
	if from >= int64(len(l.events)) {
		return nil
	}
	return append([]domain.SearchEvent(nil), l.events[from:]...)
}

func (l *sessionLog) lastIndex() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.events)) - 1
}

func (l *sessionLog) terminal() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// subscribe delivers events with index >= lastIndex, replayed entries
// first (tagged Replayed), then live ones, closing the channel after a
// terminal event or context cancellation. Idle subscriptions get a
// synthesized heartbeat if nothing arrives within heartbeat.
func (l *sessionLog) subscribe(ctx context.Context, lastIndex int64, heartbeat time.Duration) <-chan domain.SearchEvent {
	signal := make(chan struct{}, 1)
	l.mu.Lock()
	liveFrom := int64(len(l.events))
	l.signals[signal] = struct{}{}
	l.mu.Unlock()

	out := make(chan domain.SearchEvent)
	go func() {
		defer close(out)
		defer func() {
			l.mu.Lock()
			delete(l.signals, signal)
			l.mu.Unlock()
		}()

		cursor := lastIndex
		if cursor < 0 {
			cursor = 0
		}
		timer := time.NewTimer(heartbeat)
		defer timer.Stop()

		for {
			batch := l.snapshot(cursor)
			for _, ev := range batch {
				ev.Replayed = ev.Index < liveFrom
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				cursor = ev.Index + 1
				if ev.Type.Terminal() {
					return
				}
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(heartbeat)

			select {
			case <-signal:
			case <-timer.C:
				hb := domain.SearchEvent{Type: domain.EventHeartbeat, At: time.Now().UTC()}
				select {
				case out <- hb:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
