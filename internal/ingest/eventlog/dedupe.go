package eventlog

import (
	"fmt"
	"sync"
	"time"
)

// duplicateCache suppresses repeats of the same event delivered within a
// short window, as happens when one failure is surfaced by several channels.
type duplicateCache struct {
	mu      sync.Mutex
	window  time.Duration
	horizon time.Duration
	seen    map[string]time.Time
	now     func() time.Time
}

func newDuplicateCache(window, horizon time.Duration) *duplicateCache {
	return &duplicateCache{
		window:  window,
		horizon: horizon,
		seen:    make(map[string]time.Time),
		now:     time.Now,
	}
}

func eventKey(event RawEvent) string {
	return fmt.Sprintf("%d_%s_%s_%d",
		event.EventID,
		event.TimeCreated.UTC().Format("2006-01-02 15:04:05"),
		event.Provider,
		len(event.Message))
}

// Seen reports whether event was already processed within the window and
// records it otherwise. Entries older than the horizon are pruned.
func (c *duplicateCache) Seen(event RawEvent) bool {
	key := eventKey(event)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.seen[key]; ok && now.Sub(last) < c.window {
		return true
	}
	c.seen[key] = now

	for k, at := range c.seen {
		if now.Sub(at) > c.horizon {
			delete(c.seen, k)
		}
	}
	return false
}

func (c *duplicateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
