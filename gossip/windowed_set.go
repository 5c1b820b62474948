package gossip

import (
	"sync"
	"time"
)

const bucketSeconds = 60

// WindowedSet is a bounded membership set with rolling time-based eviction.
// Entries are grouped into minute buckets; buckets older than the window are
// discarded wholesale, capping memory under sustained load.
type WindowedSet struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]int64
	buckets map[int64]map[string]struct{}
}

// NewWindowedSet creates a set that forgets entries older than window.
func NewWindowedSet(window time.Duration) *WindowedSet {
	return &WindowedSet{
		window:  window,
		entries: make(map[string]int64),
		buckets: make(map[int64]map[string]struct{}),
	}
}

// Seen reports whether id is currently in the window.
func (ws *WindowedSet) Seen(id string) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	_, exists := ws.entries[id]
	return exists
}

// Add records id at the current time and prunes expired buckets.
func (ws *WindowedSet) Add(id string) {
	ws.AddAt(id, time.Now())
}

// AddAt records id at the given time. Exposed for deterministic tests.
func (ws *WindowedSet) AddAt(id string, now time.Time) {
	bucket := now.Unix() / bucketSeconds

	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.pruneLocked(now)

	if existing, ok := ws.entries[id]; ok {
		if existing == bucket {
			return
		}
		delete(ws.buckets[existing], id)
	}
	ws.entries[id] = bucket
	if _, ok := ws.buckets[bucket]; !ok {
		ws.buckets[bucket] = make(map[string]struct{})
	}
	ws.buckets[bucket][id] = struct{}{}
}

// Prune drops all entries older than the window relative to now.
func (ws *WindowedSet) Prune(now time.Time) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.pruneLocked(now)
}

func (ws *WindowedSet) pruneLocked(now time.Time) {
	oldest := (now.Add(-ws.window).Unix()) / bucketSeconds
	for bucket, ids := range ws.buckets {
		if bucket >= oldest {
			continue
		}
		for id := range ids {
			delete(ws.entries, id)
		}
		delete(ws.buckets, bucket)
	}
}

// Len returns the number of live entries.
func (ws *WindowedSet) Len() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.entries)
}
