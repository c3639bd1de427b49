package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Emit(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.err
}

var at = time.Date(2024, 6, 5, 15, 0, 0, 0, time.UTC)

func TestTimeUp(t *testing.T) {
	ev := TimeUp("com.netflix.ninja", "Netflix", at)
	assert.Equal(t, NameTimeUp, ev.Name)
	assert.Equal(t, "com.netflix.ninja", ev.Package)
	assert.Equal(t, "Netflix", ev.DisplayName)
	_, err := uuid.Parse(ev.ID)
	assert.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(ev.JSON(), &decoded))
	assert.Equal(t, "time_up", decoded["name"])
	assert.Equal(t, "Netflix", decoded["display_name"])
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())

	first := b.Subscribe(ctx, 1)
	second := b.Subscribe(ctx, 1)

	ev := TimeUp("pkg", "App", at)
	require.NoError(t, b.Emit(context.Background(), ev))
	assert.Equal(t, ev, <-first)
	assert.Equal(t, ev, <-second)

	// A full subscriber does not block the emitter.
	require.NoError(t, b.Emit(context.Background(), ev))
	require.NoError(t, b.Emit(context.Background(), ev))
	assert.Len(t, first, 1)

	cancel()
	for range first {
	}
	_, open := <-first
	assert.False(t, open)
}

func TestFanoutAttemptsAllSinks(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker down")}
	ok := &recordingSink{}

	err := Fanout{failing, ok}.Emit(context.Background(), TimeUp("pkg", "App", at))
	assert.ErrorContains(t, err, "broker down")
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1)
}

func TestNATSSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := newNATSSink(pub, "")

	ev := TimeUp("com.netflix.ninja", "Netflix", at)
	require.NoError(t, sink.Emit(context.Background(), ev))
	assert.Equal(t, "tvwarden.events.time_up", pub.subject)

	var got Event
	require.NoError(t, json.Unmarshal(pub.data, &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.True(t, ev.Timestamp.Equal(got.Timestamp))

	pub.err = errors.New("connection closed")
	assert.ErrorContains(t, sink.Emit(context.Background(), ev), "connection closed")
	assert.NoError(t, sink.Close())
}
