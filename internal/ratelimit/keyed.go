package ratelimit

import (
	"sync"
	"time"

	"github.com/tuitionchat/tuition-chat-go/internal/metrics"
)

// KeyedConfig configures a KeyedLimiter instance.
type KeyedConfig struct {
	// Name labels this limiter in metrics ("chat", "llm").
	Name string

	Burst      float64 // bucket capacity
	RefillRate float64 // tokens per second

	// DailyLimit adds a rolling 24h quota on top of the bucket (0 = disabled).
	DailyLimit int

	// CleanupPeriod is how often idle keys are dropped.
	CleanupPeriod time.Duration

	Metrics *metrics.Metrics
}

// KeyedLimiter applies an independent limit per key (session ID).
type KeyedLimiter struct {
	cfg KeyedConfig
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]*keyedEntry

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// keyedEntry serializes the two-layer check for one key so the bucket and
// the daily window are taken together or not at all.
type keyedEntry struct {
	mu     sync.Mutex
	bucket *Bucket
	daily  *Window
}

// NewKeyedLimiter starts a limiter with its cleanup goroutine.
// Call Stop to release it.
func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	return newKeyedLimiter(cfg, time.Now)
}

func newKeyedLimiter(cfg KeyedConfig, now func() time.Time) *KeyedLimiter {
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 5 * time.Minute
	}
	kl := &KeyedLimiter{
		cfg:     cfg,
		now:     now,
		entries: make(map[string]*keyedEntry),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go kl.cleanupLoop()
	return kl
}

// Allow reports whether a request for key may proceed and, if so, charges it.
// An empty key is never limited.
func (kl *KeyedLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	e := kl.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.daily.peek() || !e.bucket.peek() {
		kl.cfg.Metrics.RecordRateLimiterDrop(kl.cfg.Name)
		return false
	}
	e.bucket.Allow()
	e.daily.Allow()
	return true
}

// Available returns the bucket tokens left for key.
func (kl *KeyedLimiter) Available(key string) float64 {
	kl.mu.RLock()
	e, ok := kl.entries[key]
	kl.mu.RUnlock()
	if !ok {
		return kl.cfg.Burst
	}
	return e.bucket.Available()
}

// DailyRemaining returns the rolling 24h quota left for key, or -1 when the
// daily layer is disabled.
func (kl *KeyedLimiter) DailyRemaining(key string) int {
	if kl.cfg.DailyLimit <= 0 {
		return -1
	}
	kl.mu.RLock()
	e, ok := kl.entries[key]
	kl.mu.RUnlock()
	if !ok {
		return kl.cfg.DailyLimit
	}
	return e.daily.Remaining()
}

// ActiveKeys returns the number of tracked keys.
func (kl *KeyedLimiter) ActiveKeys() int {
	kl.mu.RLock()
	defer kl.mu.RUnlock()
	return len(kl.entries)
}

func (kl *KeyedLimiter) entry(key string) *keyedEntry {
	kl.mu.RLock()
	e, ok := kl.entries[key]
	kl.mu.RUnlock()
	if ok {
		return e
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()
	if e, ok = kl.entries[key]; ok {
		return e
	}
	e = &keyedEntry{
		bucket: newBucket(kl.cfg.Burst, kl.cfg.RefillRate, kl.now),
		daily:  newWindow(kl.cfg.DailyLimit, 24*time.Hour, kl.now),
	}
	kl.entries[key] = e
	return e
}

// sweep drops keys whose bucket is full and whose daily window is empty.
func (kl *KeyedLimiter) sweep() int {
	kl.mu.Lock()
	for key, e := range kl.entries {
		if e.bucket.Full() && e.daily.Idle() {
			delete(kl.entries, key)
		}
	}
	n := len(kl.entries)
	kl.mu.Unlock()

	kl.cfg.Metrics.SetRateLimiterActiveKeys(kl.cfg.Name, n)
	return n
}

func (kl *KeyedLimiter) cleanupLoop() {
	defer close(kl.done)
	ticker := time.NewTicker(kl.cfg.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.sweep()
		}
	}
}

// Stop ends the cleanup goroutine and waits for it. Safe to call twice.
func (kl *KeyedLimiter) Stop() {
	kl.stopOnce.Do(func() { close(kl.stopCh) })
	<-kl.done
}
