package gateway

import (
	"sync"
	"time"
)

// sweepTTL bounds how long entries survive between Sweep calls.
const sweepTTL = 300 * time.Second

// DedupCache suppresses duplicate inbound messages by ID. Platforms that
// redeliver (Telegram long-polling after a reconnect, DingTalk stream
// replays) run every inbound ID through CheckAndMark before emitting.
type DedupCache struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewDedupCache() *DedupCache {
	return &DedupCache{seen: make(map[string]time.Time)}
}

// CheckAndMark reports whether messageID was already seen within ttl.
// Only new IDs are marked; a duplicate keeps its original timestamp, so
// the ID ages out ttl after the first sighting no matter how often it
// repeats.
func (c *DedupCache) CheckAndMark(messageID string, ttl time.Duration) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	seenAt, ok := c.seen[messageID]
	dup := ok && now.Sub(seenAt) < ttl
	if !dup {
		c.seen[messageID] = now
	}
	return dup
}

// Sweep drops entries older than the sweep TTL. Adapters call this
// periodically from their receive loop.
func (c *DedupCache) Sweep() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, seenAt := range c.seen {
		if now.Sub(seenAt) >= sweepTTL {
			delete(c.seen, id)
		}
	}
}

// Len returns the number of tracked IDs.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
