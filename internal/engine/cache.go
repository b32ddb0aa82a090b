package engine

import (
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// Fingerprint derives a deterministic cache key from the script name, the
// ordered argument list, and the raw input payload. Arguments are
// length-framed so ["ab"] and ["a","b"] hash differently. The digest is not
// a security boundary; it only needs to be collision-resistant enough for
// cache keying.
func Fingerprint(name string, args []string, input []byte) string {
	h := blake3.New()
	var frame [binary.MaxVarintLen64]byte
	for _, arg := range args {
		n := binary.PutUvarint(frame[:], uint64(len(arg)))
		_, _ = h.Write(frame[:n])
		_, _ = h.Write([]byte(arg))
	}
	_, _ = h.Write(input)
	return name + ":" + hex.EncodeToString(h.Sum(nil))
}

type cacheEntry struct {
	result      Result
	producedAt  time.Time
	scriptMtime time.Time
}

// Cache maps fingerprint keys to previously captured results. An entry is
// trusted only while it is younger than the TTL and the script file's
// modification timestamp still equals the one recorded at production time.
// Stale entries are evicted on lookup rather than ignored. There is no size
// bound beyond invalidation.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates an empty cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Lookup returns the cached result for key if both the TTL and mtime
// invariants hold. mtimeOK=false (metadata unreadable) always misses.
// Any stale entry encountered is evicted.
func (c *Cache) Lookup(key string, mtime time.Time, mtimeOK bool) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}

	if mtimeOK && c.now().Sub(entry.producedAt) < c.ttl && mtime.Equal(entry.scriptMtime) {
		return entry.result, true
	}

	delete(c.entries, key)
	return Result{}, false
}

// Store inserts or overwrites the entry for key. Last writer wins; there is
// no version counter.
func (c *Cache) Store(key string, result Result, mtime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		result:      result,
		producedAt:  c.now(),
		scriptMtime: mtime,
	}
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
