// Package retry decides how often and how long to wait before a failed message is retried,
// and when it is handed over to the dead-letter queue instead.
package retry

import (
	"math"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Policy bounds redelivery of a failing message.
type Policy struct {
	// MaxAttempts is the number of failed attempts after which a message is dead-lettered.
	// Zero means retry forever.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// PolicyFromConfig reads the worker retry policy from viper.
func PolicyFromConfig() Policy {
	baseMs := viper.GetInt("worker.retry.base_delay_ms")
	if baseMs == 0 {
		baseMs = 500
	}

	maxSeconds := viper.GetInt("worker.retry.max_delay_seconds")
	if maxSeconds == 0 {
		maxSeconds = 60
	}

	return Policy{
		MaxAttempts: viper.GetInt("worker.retry.max_attempts"),
		BaseDelay:   time.Duration(baseMs) * time.Millisecond,
		MaxDelay:    time.Duration(maxSeconds) * time.Second,
	}
}

// Exhausted reports whether a message that has failed attempt times must be dead-lettered.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Backoff returns the wait before retrying after the given failed attempt (1-based):
// BaseDelay, 2*BaseDelay, 4*BaseDelay, ... capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}

	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}

	return time.Duration(d)
}

const (
	// DefaultTrackerTTL is how long a key is remembered after its last failure.
	DefaultTrackerTTL = time.Hour
	// DefaultTrackerMaxEntries bounds the number of keys remembered at once.
	DefaultTrackerMaxEntries = 10000
)

type tracked struct {
	attempts int
	lastFail time.Time
}

// Tracker counts failed attempts per message key.
// Counts live in memory: a worker restart starts every message from zero again.
// A key is forgotten once it has not failed for the TTL, which covers messages that were
// settled by another worker, and the oldest key is evicted when the tracker is full.
type Tracker struct {
	mu         sync.Mutex
	entries    map[string]tracked
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type trackerOption func(*Tracker)

// WithTTL sets how long a key is remembered after its last failure.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithTTL(ttl time.Duration) trackerOption {
	return func(t *Tracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithMaxEntries sets how many keys are remembered at once.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithMaxEntries(n int) trackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.maxEntries = n
		}
	}
}

// NewTracker creates an empty Tracker.
func NewTracker(opts ...trackerOption) *Tracker {
	t := &Tracker{
		entries:    make(map[string]tracked),
		ttl:        DefaultTrackerTTL,
		maxEntries: DefaultTrackerMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

// TrackerFromConfig creates a Tracker bounded by worker.retry.tracker_ttl and
// worker.retry.tracker_max_entries.
func TrackerFromConfig() *Tracker {
	return NewTracker(
		WithTTL(viper.GetDuration("worker.retry.tracker_ttl")),
		WithMaxEntries(viper.GetInt("worker.retry.tracker_max_entries")),
	)
}

// Fail records a failed attempt and returns the number of failures so far.
func (t *Tracker) Fail(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.expire(now)

	e, ok := t.entries[key]
	if !ok && len(t.entries) >= t.maxEntries {
		t.evictOldest()
	}
	e.attempts++
	e.lastFail = now
	t.entries[key] = e

	return e.attempts
}

// Reset forgets the key once its message has left the queue.
func (t *Tracker) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, key)
}

// Len returns the number of keys currently remembered.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

func (t *Tracker) expire(now time.Time) {
	for key, e := range t.entries {
		if now.Sub(e.lastFail) >= t.ttl {
			delete(t.entries, key)
		}
	}
}

func (t *Tracker) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, e := range t.entries {
		if oldestKey == "" || e.lastFail.Before(oldest) {
			oldestKey, oldest = key, e.lastFail
		}
	}
	delete(t.entries, oldestKey)
}
