// Package flood rate limits playback commands per identity.
package flood

import (
	"sync"
	"time"
)

const (
	// windowDuration is the sliding window length (always 1 minute)
	windowDuration = 60 * time.Second
	// cleanupInterval is how often idle identities are swept
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long an identity may stay silent before it is forgotten
	idleTimeout = 10 * time.Minute
)

// Floodgate is a per-identity sliding window limiter. A limit of zero or
// less allows everything.
type Floodgate struct {
	limitPerMinute int                       // Maximum commands per identity per minute
	entries        map[string]*identityEntry // Key: controller identity
	mutex          sync.RWMutex
	stopCleanup    chan struct{}
	stopOnce       sync.Once
	now            func() time.Time // Replaced in tests
}

// identityEntry tracks command timestamps for one identity
type identityEntry struct {
	timestamps []time.Time // Sliding window of command timestamps
	lastSeen   time.Time   // When this identity last sent a command (for cleanup)
}

// New creates a Floodgate allowing limitPerMinute commands per identity.
// The time window is fixed at 60 seconds (1 minute)
func New(limitPerMinute int) *Floodgate {
	fg := &Floodgate{
		limitPerMinute: limitPerMinute,
		entries:        make(map[string]*identityEntry),
		stopCleanup:    make(chan struct{}),
		now:            time.Now,
	}

	go fg.cleanup()

	return fg
}

// Stop stops the background cleanup goroutine.
func (fg *Floodgate) Stop() {
	fg.stopOnce.Do(func() { close(fg.stopCleanup) })
}

// Allow records a command from identity and reports whether it is within the limit.
func (fg *Floodgate) Allow(identity string) bool {
	if fg.limitPerMinute <= 0 {
		return true
	}
	now := fg.now()

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	entry, exists := fg.entries[identity]
	if !exists {
		entry = &identityEntry{
			timestamps: make([]time.Time, 0, fg.limitPerMinute+1),
		}
		fg.entries[identity] = entry
	}
	entry.lastSeen = now

	// Drop timestamps that slid out of the window
	windowStart := now.Add(-windowDuration)
	valid := entry.timestamps[:0] // Reuse slice capacity
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = valid

	if len(entry.timestamps) >= fg.limitPerMinute {
		// Over budget; the rejected command does not count
		return false
	}

	entry.timestamps = append(entry.timestamps, now)
	return true
}

// RetryAfter returns how long identity has to wait until its next command is allowed.
func (fg *Floodgate) RetryAfter(identity string) time.Duration {
	fg.mutex.RLock()
	defer fg.mutex.RUnlock()

	entry, ok := fg.entries[identity]
	if !ok || fg.limitPerMinute <= 0 || len(entry.timestamps) < fg.limitPerMinute {
		return 0
	}
	// The oldest timestamp in the window is the next to expire
	wait := entry.timestamps[0].Add(windowDuration).Sub(fg.now())
	if wait < 0 {
		return 0
	}
	return wait
}

// cleanup forgets idle identities so the map does not grow without bound
func (fg *Floodgate) cleanup() {
	// Run immediately on startup
	fg.performCleanup()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.performCleanup()
		case <-fg.stopCleanup:
			return
		}
	}
}

// performCleanup removes identities idle for longer than idleTimeout
func (fg *Floodgate) performCleanup() {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	cutoff := fg.now().Add(-idleTimeout)
	for key, entry := range fg.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(fg.entries, key)
		}
	}
}

// GetStats returns statistics about the floodgate for monitoring/debugging
func (fg *Floodgate) GetStats() Stats {
	fg.mutex.RLock()
	defer fg.mutex.RUnlock()

	return Stats{
		ActiveIdentities: len(fg.entries),
		LimitPerMinute:   fg.limitPerMinute,
		WindowSeconds:    int(windowDuration.Seconds()),
	}
}

// Stats contains floodgate statistics.
type Stats struct {
	ActiveIdentities int `json:"active_identities"`
	LimitPerMinute   int `json:"limit_per_minute"`
	WindowSeconds    int `json:"window_seconds"`
}
