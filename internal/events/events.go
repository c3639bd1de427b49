// Package events delivers notifications raised by enforcement, such as the
// "time's up" signal the supervisor UI listens for.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NameTimeUp is raised when an app is stopped for exceeding its daily limit.
const NameTimeUp = "time_up"

// Event is a notification for the presentation layer.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Package     string    `json:"package"`
	DisplayName string    `json:"display_name,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TimeUp builds a time's up event.
func TimeUp(pkg, displayName string, at time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Name:        NameTimeUp,
		Package:     pkg,
		DisplayName: displayName,
		Timestamp:   at,
	}
}

// JSON encodes the event.
func (e Event) JSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// Sink receives events.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Broadcaster delivers events to in-process subscribers. Slow subscribers
// lose events rather than blocking the emitter.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events that is closed when ctx is done.
func (b *Broadcaster) Subscribe(ctx context.Context, buffer int) <-chan Event {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()
	return ch
}

// Emit delivers ev to every subscriber with room for it.
func (b *Broadcaster) Emit(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Fanout emits to several sinks, attempting all of them.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink logs every event.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Emit(_ context.Context, ev Event) error {
	s.Logger.Info().
		Str("event", ev.Name).
		Str("event_id", ev.ID).
		Str("package", ev.Package).
		Str("display_name", ev.DisplayName).
		Msg("Event emitted")
	return nil
}
