package storage

import (
	"context"
	"sync"
)

// watchBuffer is how many undelivered messages a slow watcher may hold
// before new ones are dropped for it.
const watchBuffer = 32

// broadcaster fans appended messages out to in-process watchers of the
// same session.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[string]map[chan Message]struct{}
	closed bool
	done   chan struct{}

	onDrop func(sessionID string)
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		subs: make(map[string]map[chan Message]struct{}),
		done: make(chan struct{}),
	}
}

// subscribe registers a watcher until ctx ends.
func (b *broadcaster) subscribe(ctx context.Context, sessionID string) (<-chan Message, error) {
	ch := make(chan Message, watchBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errStoreClosed
	}
	set, ok := b.subs[sessionID]
	if !ok {
		set = make(map[chan Message]struct{})
		b.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(sessionID, ch)
		case <-b.done:
		}
	}()
	return ch, nil
}

func (b *broadcaster) unsubscribe(sessionID string, ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[sessionID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(b.subs, sessionID)
	}
}

// publish never blocks; a full watcher misses the message.
func (b *broadcaster) publish(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[m.SessionID] {
		select {
		case ch <- m:
		default:
			if b.onDrop != nil {
				b.onDrop(m.SessionID)
			}
		}
	}
}

// watchers returns the number of live watchers for a session.
func (b *broadcaster) watchers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

// close ends every watch. Later subscribes fail.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for id, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, id)
	}
}
