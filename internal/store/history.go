// Package store keeps the history of tracks that became current on the remote device.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"playdeck/internal/core"
)

const (
	// DefaultFalsePositiveRate is the bloom filter's target false positive rate.
	DefaultFalsePositiveRate = 0.001

	appendTimeout = 2 * time.Second
	// appendQueueSize bounds the play log writes waiting for the disk.
	appendQueueSize = 64
)

var _ core.TrackObserver = (*History)(nil)

// Entry is one started track.
type Entry struct {
	Identity  string     `json:"identity"`
	Track     core.Track `json:"track"`
	StartedAt time.Time  `json:"startedAt"`
}

// History is a bounded, thread-safe record of recently started tracks.
// The bloom filter answers most Seen lookups for unknown tracks; the LRU
// holds the entries and evicts the least recently started one.
type History struct {
	bloom             *bloom.BloomFilter
	lru               *lru.Cache[string, Entry]
	mutex             sync.RWMutex
	maxTracks         int
	falsePositiveRate float64

	log       *PlayLog
	appends   chan Entry
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
	now       func() time.Time
}

// NewHistory creates a history holding up to maxTracks tracks. log may be nil;
// when set, started tracks are written to it in the background until Close.
func NewHistory(maxTracks int, log *PlayLog, logger *zap.Logger) *History {
	if maxTracks <= 0 {
		maxTracks = core.DefaultHistorySize
	}
	lruCache, _ := lru.New[string, Entry](maxTracks)

	h := &History{
		bloom:             bloom.NewWithEstimates(uint(maxTracks), DefaultFalsePositiveRate),
		lru:               lruCache,
		maxTracks:         maxTracks,
		falsePositiveRate: DefaultFalsePositiveRate,
		log:               log,
		done:              make(chan struct{}),
		logger:            logger,
		now:               time.Now,
	}
	if log != nil {
		h.appends = make(chan Entry, appendQueueSize)
		go h.writeLoop(h.appends)
	} else {
		close(h.done)
	}
	return h
}

// TrackStarted records track as started for identity and queues it for the play log.
// It never waits for the disk.
func (h *History) TrackStarted(identity string, track core.Track) {
	if track.ID == "" {
		return
	}
	entry := Entry{Identity: identity, Track: track, StartedAt: h.now()}
	h.add(entry)

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if h.appends == nil {
		return
	}
	select {
	case h.appends <- entry:
	default:
		h.logger.Warn("Play log queue full, dropping entry",
			zap.String("trackID", track.ID))
	}
}

// writeLoop drains queued entries into the play log.
func (h *History) writeLoop(appends <-chan Entry) {
	defer close(h.done)
	for entry := range appends {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := h.log.Append(ctx, entry); err != nil {
			h.logger.Warn("Failed to append to play log",
				zap.String("trackID", entry.Track.ID),
				zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting tracks and waits for queued play log writes.
// The history itself stays readable.
func (h *History) Close() {
	h.closeOnce.Do(func() {
		h.mutex.Lock()
		appends := h.appends
		h.appends = nil
		h.mutex.Unlock()
		if appends != nil {
			close(appends)
		}
	})
	<-h.done
}

func (h *History) add(entry Entry) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.bloom.AddString(entry.Track.ID)
	h.lru.Add(entry.Track.ID, entry)
}

// Seen reports whether trackID is among the remembered tracks.
func (h *History) Seen(trackID string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if !h.bloom.TestString(trackID) {
		return false
	}
	return h.lru.Contains(trackID)
}

// Recent returns up to n entries, most recently started first. n <= 0 returns all.
func (h *History) Recent(n int) []Entry {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	keys := h.lru.Keys()
	if n <= 0 || n > len(keys) {
		n = len(keys)
	}
	entries := make([]Entry, 0, n)
	for i := len(keys) - 1; i >= 0 && len(entries) < n; i-- {
		if entry, ok := h.lru.Peek(keys[i]); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Load clears the history and replays entries, oldest first.
func (h *History) Load(entries []Entry) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clear()
	for _, entry := range entries {
		if entry.Track.ID != "" {
			h.bloom.AddString(entry.Track.ID)
			h.lru.Add(entry.Track.ID, entry)
		}
	}
}

// Size returns the number of remembered tracks.
func (h *History) Size() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.lru.Len()
}

// Clear forgets every track.
func (h *History) Clear() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clear()
}

func (h *History) clear() {
	h.bloom = bloom.NewWithEstimates(uint(h.maxTracks), h.falsePositiveRate)
	h.lru.Purge()
}
