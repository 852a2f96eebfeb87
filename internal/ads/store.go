// Package ads holds the pre-built advertisement segments served at the
// reserved indices of every live window.
package ads

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"hls-live/internal/live"
)

// Key identifies one ad set: a media class plus the codec parameters the
// ads were encoded for.
type Key struct {
	Class  live.MediaClass
	Params live.CodecParams
}

// KeyFor normalizes params so that lookups match the defaults a window
// applies.
func KeyFor(class live.MediaClass, params live.CodecParams) Key {
	return Key{Class: class, Params: params.WithDefaults()}
}

func (k Key) String() string {
	p := k.Params
	return fmt.Sprintf("%s:%s:%d:%d:%d", k.Class,
		strconv.FormatFloat(p.SampleRate, 'f', -1, 64), p.SampleSizeInBits, p.Channels, p.FPS)
}

// Ad is the content of one ad slot before it is wrapped as a segment.
type Ad struct {
	Payload  []byte
	Duration float64
}

func toSegments(ads []Ad) []*live.Segment {
	n := min(len(ads), live.MaxAdSlots)
	out := make([]*live.Segment, 0, n)
	for i := 0; i < n; i++ {
		index := int64(live.FirstAdIndex + i)
		out = append(out, live.NewSegment(index, ads[i].Payload, ads[i].Duration, true, time.Now()))
	}
	return out
}

// MemoryStore is an in-process ad store.
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[Key][]*live.Segment
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[Key][]*live.Segment)}
}

// Put replaces the ads for class and params. Only the first
// live.MaxAdSlots entries are kept.
func (m *MemoryStore) Put(class live.MediaClass, params live.CodecParams, ads []Ad) {
	segs := toSegments(ads)
	m.mu.Lock()
	m.sets[KeyFor(class, params)] = segs
	m.mu.Unlock()
}

// Lookup implements live.AdStore.
func (m *MemoryStore) Lookup(class live.MediaClass, params live.CodecParams) []*live.Segment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets[KeyFor(class, params)]
}

// Len returns the number of ad sets held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sets)
}
