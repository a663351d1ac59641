package auth

import (
	"math"
	"sync"
	"time"
)

// Per-key request budgets, refilled continuously
const (
	WriteRatePerSecond = 60
	ReadRatePerSecond  = 600
)

// BucketKind selects which budget a request draws from. Mutating verbs
// draw from the write bucket, everything else from the read bucket.
type BucketKind string

const (
	BucketWrite BucketKind = "write"
	BucketRead  BucketKind = "read"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

type keyBuckets struct {
	write bucket
	read  bucket
}

// RateLimiter enforces per-API-key token buckets. Buckets start full and
// refill continuously at the bucket rate up to the rate itself, so a
// restart simply resets every key to a full budget.
type RateLimiter struct {
	mu      sync.Mutex
	keys    map[string]*keyBuckets
	nowFunc func() time.Time
}

// NewRateLimiter creates a rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		keys:    make(map[string]*keyBuckets),
		nowFunc: time.Now,
	}
}

// Allow attempts to consume one token from the key's bucket of the given
// kind. It returns whether the request may proceed, the whole tokens
// remaining after the decision, and the bucket capacity.
func (rl *RateLimiter) Allow(keyID string, kind BucketKind) (allowed bool, remaining int, limit int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFunc()
	kb, ok := rl.keys[keyID]
	if !ok {
		kb = &keyBuckets{
			write: bucket{tokens: WriteRatePerSecond, lastRefill: now},
			read:  bucket{tokens: ReadRatePerSecond, lastRefill: now},
		}
		rl.keys[keyID] = kb
	}

	b := &kb.read
	limit = ReadRatePerSecond
	if kind == BucketWrite {
		b = &kb.write
		limit = WriteRatePerSecond
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(float64(limit), b.tokens+elapsed*float64(limit))
		b.lastRefill = now
	}

	if b.tokens < 1 {
		return false, int(b.tokens), limit
	}
	b.tokens--
	return true, int(b.tokens), limit
}

// Forget drops the bucket state for a key, typically after revocation
func (rl *RateLimiter) Forget(keyID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.keys, keyID)
}
