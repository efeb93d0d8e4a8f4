package ratelimit

import (
	"sync"
	"time"
)

// Blacklist holds temporarily banned IP addresses.
type Blacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration

	now func() time.Time
}

// NewBlacklist returns a Blacklist whose entries expire after ttl.
func NewBlacklist(ttl time.Duration) *Blacklist {
	return &Blacklist{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Add bans ip for the configured duration, extending an existing ban.
func (b *Blacklist) Add(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[ip] = b.now().Add(b.ttl)
}

// Contains reports whether ip is currently banned.
func (b *Blacklist) Contains(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	expires, ok := b.entries[ip]
	if !ok {
		return false
	}
	if !b.now().Before(expires) {
		delete(b.entries, ip)
		return false
	}
	return true
}

// Remove lifts the ban on ip.
func (b *Blacklist) Remove(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, ip)
}

// Clear lifts every ban and returns how many entries were removed.
func (b *Blacklist) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.entries)
	b.entries = make(map[string]time.Time)
	return n
}

// Prune removes expired entries.
func (b *Blacklist) Prune() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	removed := 0
	for ip, expires := range b.entries {
		if !now.Before(expires) {
			delete(b.entries, ip)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, including ones not yet pruned.
func (b *Blacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
