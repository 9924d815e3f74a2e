// Package services – keyed serialization
//
// This file implements a keyed mutex registry. The conversation service keys
// it by user id so all chat messages for a given user are processed strictly
// in arrival order (read state → compute response → write state is one
// exclusive section per user); the report gate keys it by booking id so the
// lockout check, PIN compare, and failure record cannot interleave. Distinct
// keys proceed fully in parallel with no shared lock.
//
// Entries are created on demand and evicted opportunistically once idle and
// unreferenced, to keep memory bounded in long-running processes.
package services

import (
	"sync"
	"time"
)

// userLockEntry holds one user's mutex plus bookkeeping for eviction.
type userLockEntry struct {
	mu       sync.Mutex
	refs     int
	lastSeen time.Time
}

// userLocks is a registry of per-user mutexes. The zero value is ready to use.
// It is safe for concurrent use.
type userLocks struct {
	mu      sync.Mutex
	entries map[string]*userLockEntry
	sweepN  uint64
	ttl     time.Duration
}

// acquire blocks until the caller holds the exclusive section for key.
// The returned release function must be called exactly once.
func (l *userLocks) acquire(key string) (release func()) {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*userLockEntry)
	}
	if l.ttl <= 0 {
		l.ttl = 10 * time.Minute
	}

	// Opportunistic cleanup of idle, unreferenced entries. Run BEFORE touching
	// the requested entry so an old one can be evicted even when re-requested.
	l.sweepN++
	if l.sweepN >= 5000 {
		now := time.Now()
		for k, e := range l.entries {
			if e.refs == 0 && now.Sub(e.lastSeen) >= l.ttl {
				delete(l.entries, k)
			}
		}
		l.sweepN = 0
	}

	e, ok := l.entries[key]
	if !ok {
		e = &userLockEntry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		e.lastSeen = time.Now()
		l.mu.Unlock()
	}
}
