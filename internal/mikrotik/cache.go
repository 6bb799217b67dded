package mikrotik

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// responseCache memoizes decoded command responses for a single Client.
// Entries expire by TTL only; the map stays small (one entry per distinct
// command/parameter combination) and dies with the Client.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	rows       []map[string]string
	capturedAt time.Time
	ttl        time.Duration
}

func newResponseCache() *responseCache {
	return &responseCache{entries: make(map[string]cacheEntry)}
}

func (c *responseCache) get(key string) ([]map[string]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.capturedAt) >= entry.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.rows, true
}

func (c *responseCache) put(key string, rows []map[string]string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{rows: rows, capturedAt: time.Now(), ttl: ttl}
}

func (c *responseCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// cacheKey serializes command+parameters deterministically so identical
// calls share an entry regardless of map iteration order.
func cacheKey(command string, params map[string]string) string {
	if len(params) == 0 {
		return command
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(command)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}
