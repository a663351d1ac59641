package ingest

import (
	"fmt"
	"sync"
	"time"
)

// DedupeWindow is how long an identical log line absorbs agent retries
const DedupeWindow = 5 * time.Second

// dedupeIndex remembers recently ingested log lines keyed by
// (instance, ts, message). Entries age out by arrival clock.
type dedupeIndex struct {
	mu      sync.Mutex
	entries map[string]time.Time
	nowFunc func() time.Time
}

func newDedupeIndex() *dedupeIndex {
	return &dedupeIndex{
		entries: make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

// seen records the line and reports whether it arrived within the window
func (d *dedupeIndex) seen(instanceID string, ts time.Time, message string) bool {
	key := fmt.Sprintf("%s|%d|%s", instanceID, ts.UnixNano(), message)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.nowFunc()
	if arrived, ok := d.entries[key]; ok && now.Sub(arrived) <= DedupeWindow {
		return true
	}
	d.entries[key] = now

	// Opportunistic pruning keeps the index proportional to the window
	if len(d.entries) > 10000 {
		for k, arrived := range d.entries {
			if now.Sub(arrived) > DedupeWindow {
				delete(d.entries, k)
			}
		}
	}
	return false
}
