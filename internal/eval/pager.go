package eval

import (
	"sync"
	"time"
)

// pageCache holds leftover output lines per caller, keyed by
// origin:actor, so a later "continue" request can drain them.
// Entries idle past the expiry are dropped lazily on access.
type pageCache struct {
	mu      sync.Mutex
	pageLen int
	expiry  time.Duration
	entries map[string]*pageEntry
}

type pageEntry struct {
	lines []string
	used  time.Time
}

func newPageCache(pageLen int, expiry time.Duration) *pageCache {
	return &pageCache{
		pageLen: pageLen,
		expiry:  expiry,
		entries: make(map[string]*pageEntry),
	}
}

// Put replaces the cached lines for key and returns the first page plus
// whether more pages remain.
func (c *pageCache) Put(key string, lines []string) (page []string, more bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	if len(lines) <= c.pageLen {
		delete(c.entries, key)
		return lines, false
	}
	page = lines[:c.pageLen]
	c.entries[key] = &pageEntry{lines: lines[c.pageLen:], used: time.Now()}
	return page, true
}

// Next returns the following page for key, or ok=false when nothing is
// cached (never cached, fully drained, or expired).
func (c *pageCache) Next(key string) (page []string, more bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	e := c.entries[key]
	if e == nil {
		return nil, false, false
	}
	if len(e.lines) <= c.pageLen {
		delete(c.entries, key)
		return e.lines, false, true
	}
	page = e.lines[:c.pageLen]
	e.lines = e.lines[c.pageLen:]
	e.used = time.Now()
	return page, true, true
}

func (c *pageCache) sweepLocked() {
	if c.expiry <= 0 {
		return
	}
	cutoff := time.Now().Add(-c.expiry)
	for k, e := range c.entries {
		if e.used.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}
