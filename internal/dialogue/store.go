package dialogue

import (
	"context"
	"sync"
	"time"

	"github.com/tuitionchat/tuition-chat-go/internal/config"
)

// Store persists State per session.
type Store interface {
	// Update runs fn on the session's state under a per-session lock and
	// saves the result. When fn returns an error nothing is saved.
	Update(ctx context.Context, sessionID string, fn func(*State) error) error
	// Delete forgets the session.
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

type memoryEntry struct {
	mu      sync.Mutex
	state   State
	touched time.Time
	dead    bool
}

// MemoryStore keeps state in process. Idle sessions expire after ttl.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry
	ttl      time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMemoryStore creates a MemoryStore and starts its sweeper.
// A non-positive ttl keeps sessions forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := newMemoryStore(ttl, time.Now)
	s.done = make(chan struct{})
	go s.sweepLoop(config.SessionSweepInterval)
	return s
}

func newMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		ttl:      ttl,
		now:      now,
		stop:     make(chan struct{}),
	}
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, sessionID string, fn func(*State) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		e := s.entry(sessionID)
		e.mu.Lock()
		if e.dead {
			// Swept between lookup and lock; fetch the replacement.
			e.mu.Unlock()
			continue
		}

		now := s.now()
		st := e.state
		if s.expired(e, now) {
			st = State{}
		}
		err := fn(&st)
		if err == nil {
			e.state = st
			e.touched = now
		}
		e.mu.Unlock()
		return err
	}
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.dead = true
		e.mu.Unlock()
	}
	return nil
}

// Get returns a copy of the session's state.
func (s *MemoryStore) Get(sessionID string) State {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return State{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.expired(e, s.now()) {
		return State{}
	}
	return e.state
}

func (s *MemoryStore) entry(sessionID string) *memoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		e = &memoryEntry{touched: s.now()}
		s.sessions[sessionID] = e
	}
	return e
}

func (s *MemoryStore) expired(e *memoryEntry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.touched) > s.ttl
}

// sweep drops expired and empty sessions. Entries locked by an in-flight
// Update are left for the next pass.
func (s *MemoryStore) sweep() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.sessions {
		if !e.mu.TryLock() {
			continue
		}
		if s.expired(e, now) || e.state.IsZero() {
			e.dead = true
			delete(s.sessions, id)
		}
		e.mu.Unlock()
	}
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	if s.done != nil {
		<-s.done
	}
	return nil
}
