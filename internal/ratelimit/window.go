package ratelimit

import (
	"sync"
	"time"
)

// Window is a sliding-window counter quota.
//
// It keeps the counts of the current and previous fixed windows and
// estimates the rolling count as
//
//	curr + prev * (1 - elapsed/size)
//
// so a burst at the end of one window still weighs on the start of the next.
// A nil *Window allows everything.
type Window struct {
	mu    sync.Mutex
	limit int
	size  time.Duration
	start time.Time
	curr  int
	prev  int
	now   func() time.Time
}

// NewWindow returns nil when limit <= 0 (disabled).
func NewWindow(limit int, size time.Duration) *Window {
	return newWindow(limit, size, time.Now)
}

func newWindow(limit int, size time.Duration, now func() time.Time) *Window {
	if limit <= 0 {
		return nil
	}
	return &Window{limit: limit, size: size, start: now(), now: now}
}

// must hold mu
func (w *Window) estimate() float64 {
	elapsed := w.now().Sub(w.start)
	if elapsed >= w.size {
		n := int(elapsed / w.size)
		if n == 1 {
			w.prev = w.curr
		} else {
			w.prev = 0
		}
		w.curr = 0
		w.start = w.start.Add(time.Duration(n) * w.size)
		elapsed -= time.Duration(n) * w.size
	}
	weight := 1 - float64(elapsed)/float64(w.size)
	return float64(w.curr) + float64(w.prev)*max(0, weight)
}

// Allow counts the request if the rolling estimate is under the limit.
func (w *Window) Allow() bool {
	if w == nil {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.estimate() >= float64(w.limit) {
		return false
	}
	w.curr++
	return true
}

func (w *Window) peek() bool {
	if w == nil {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.estimate() < float64(w.limit)
}

// Remaining returns the whole requests left, or -1 when disabled.
func (w *Window) Remaining() int {
	if w == nil {
		return -1
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return max(0, int(float64(w.limit)-w.estimate()))
}

// Idle reports whether nothing in the window still counts.
func (w *Window) Idle() bool {
	if w == nil {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.estimate() == 0
}
