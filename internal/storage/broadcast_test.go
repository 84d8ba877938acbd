package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_FanOut(t *testing.T) {
	t.Parallel()
	b := newBroadcaster()
	defer b.close()
	ctx := context.Background()

	a, err := b.subscribe(ctx, "s1")
	require.NoError(t, err)
	c, err := b.subscribe(ctx, "s1")
	require.NoError(t, err)
	other, err := b.subscribe(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, 2, b.watchers("s1"))

	b.publish(Message{ID: "1", SessionID: "s1"})

	for _, ch := range []<-chan Message{a, c} {
		select {
		case m := <-ch:
			assert.Equal(t, "1", m.ID)
		case <-time.After(time.Second):
			t.Fatal("watcher missed message")
		}
	}
	select {
	case m := <-other:
		t.Fatalf("unexpected message %v", m)
	default:
	}
}

func TestBroadcaster_DropsWhenFull(t *testing.T) {
	t.Parallel()
	b := newBroadcaster()
	defer b.close()

	dropped := 0
	b.onDrop = func(string) { dropped++ }

	ch, err := b.subscribe(context.Background(), "s1")
	require.NoError(t, err)

	for range watchBuffer + 3 {
		b.publish(Message{SessionID: "s1"})
	}
	assert.Equal(t, 3, dropped)
	assert.Len(t, ch, watchBuffer)
}

func TestBroadcaster_UnsubscribeOnCancel(t *testing.T) {
	t.Parallel()
	b := newBroadcaster()
	defer b.close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.subscribe(ctx, "s1")
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Zero(t, b.watchers("s1"))

	// Publishing to a session with no watchers is a no-op.
	b.publish(Message{SessionID: "s1"})
}

func TestBroadcaster_Close(t *testing.T) {
	t.Parallel()
	b := newBroadcaster()

	ch, err := b.subscribe(context.Background(), "s1")
	require.NoError(t, err)

	b.close()
	b.close()

	_, open := <-ch
	assert.False(t, open)

	_, err = b.subscribe(context.Background(), "s1")
	assert.ErrorIs(t, err, errStoreClosed)
}
