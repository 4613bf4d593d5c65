package handlers

import (
	"strings"
	"sync"
	"time"
)

// throttleSweepEvery bounds how often the expired buckets are scanned.
const throttleSweepEvery = 64

// messageThrottle caps how many thread messages a single order can post
// inside a fixed window. State lives in process memory; a restart resets
// the counters, which is acceptable for an abuse guard.
type messageThrottle struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]throttleBucket
	opened  int
}

type throttleBucket struct {
	posts   int
	expires time.Time
}

func newMessageThrottle(limit int, window time.Duration, now func() time.Time) *messageThrottle {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &messageThrottle{
		limit:   limit,
		window:  window,
		now:     now,
		buckets: make(map[string]throttleBucket),
	}
}

// Allow records one posting attempt for the order and reports whether it
// still fits the window budget. A nil throttle admits everything.
func (t *messageThrottle) Allow(orderID string) bool {
	if t == nil {
		return true
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		orderID = "anonymous"
	}

	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	bucket, ok := t.buckets[orderID]
	if !ok || !now.Before(bucket.expires) {
		t.buckets[orderID] = throttleBucket{posts: 1, expires: now.Add(t.window)}
		t.opened++
		if t.opened >= throttleSweepEvery {
			t.opened = 0
			t.dropExpired(now)
		}
		return true
	}

	if bucket.posts >= t.limit {
		return false
	}
	bucket.posts++
	t.buckets[orderID] = bucket
	return true
}

func (t *messageThrottle) dropExpired(now time.Time) {
	for id, bucket := range t.buckets {
		if !now.Before(bucket.expires) {
			delete(t.buckets, id)
		}
	}
}
