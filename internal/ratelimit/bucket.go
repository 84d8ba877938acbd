// Package ratelimit provides per-key request limiting built from a token
// bucket and an optional rolling-window quota.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a token bucket. It is safe for concurrent use.
//
// Tokens refill continuously at rate per second up to capacity; each
// accepted request takes one token.
type Bucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	last     time.Time
	now      func() time.Time
}

// NewBucket returns a full bucket.
func NewBucket(capacity, ratePerSecond float64) *Bucket {
	return newBucket(capacity, ratePerSecond, time.Now)
}

func newBucket(capacity, rate float64, now func() time.Time) *Bucket {
	return &Bucket{tokens: capacity, capacity: capacity, rate: rate, last: now(), now: now}
}

// must hold mu
func (b *Bucket) refill() {
	t := b.now()
	b.tokens = min(b.capacity, b.tokens+t.Sub(b.last).Seconds()*b.rate)
	b.last = t
}

// Allow takes a token if one is available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// peek reports whether a token is available without taking it.
func (b *Bucket) peek() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens >= 1
}

// Available returns the current token count.
func (b *Bucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// Full reports whether the bucket has refilled to capacity, meaning the key
// has been idle long enough to forget.
func (b *Bucket) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens >= b.capacity
}
