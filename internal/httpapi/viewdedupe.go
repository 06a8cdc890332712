package httpapi

import (
	"sync"
	"time"
)

// ViewDeduper suppresses repeat view counts from the same viewer within the
// TTL. One entry per viewer/video pair, purged opportunistically.
type ViewDeduper struct {
	mutex   sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewViewDeduper constructs a deduper with the provided TTL.
func NewViewDeduper(ttl time.Duration) *ViewDeduper {
	return &ViewDeduper{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Mark records a view attempt and reports whether it should be counted.
// The first call for a key within the TTL returns true; repeats return false.
func (deduper *ViewDeduper) Mark(key string) bool {
	deduper.mutex.Lock()
	defer deduper.mutex.Unlock()
	now := deduper.now()
	expiry, seen := deduper.entries[key]
	if seen && now.Before(expiry) {
		return false
	}
	deduper.purgeExpiredLocked(now)
	deduper.entries[key] = now.Add(deduper.ttl)
	return true
}

func (deduper *ViewDeduper) purgeExpiredLocked(now time.Time) {
	if len(deduper.entries) == 0 {
		return
	}
	for key, expiry := range deduper.entries {
		if now.After(expiry) {
			delete(deduper.entries, key)
		}
	}
}
