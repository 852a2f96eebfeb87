package live

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is one connected viewer of a window. Its old indices are the
// segment indices last listed to the viewer; the smallest of them is the
// viewer's watermark during eviction.
type Session struct {
	id      string
	created time.Time

	lastActivity atomic.Int64 // unix nanoseconds

	mu         sync.Mutex
	oldIndices []int64
	// liveStart is the first live index listed after the ads, or 0.
	liveStart int64
}

func newSession(now time.Time) *Session {
	s := &Session{
		id:      uuid.NewString(),
		created: now,
	}
	s.lastActivity.Store(now.UnixNano())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Created returns when the session was opened.
func (s *Session) Created() time.Time {
	return s.created
}

// Touch marks the viewer as active at now.
func (s *Session) Touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

// LastActivity returns the last time the viewer was seen.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Record stores indices as the set most recently served to the viewer and
// marks the viewer active.
func (s *Session) Record(now time.Time, indices []int64) {
	cp := slices.Clone(indices)
	s.mu.Lock()
	s.oldIndices = cp
	s.mu.Unlock()
	s.Touch(now)
}

// OldIndices returns a copy of the indices last served, or nil.
func (s *Session) OldIndices() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.oldIndices)
}

// DiscontinuityAt returns the first live index the viewer was given after
// its ad playlist, or 0 if the viewer never saw ads.
func (s *Session) DiscontinuityAt() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveStart
}

// watermark returns the smallest old index.
func (s *Session) watermark() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.oldIndices) == 0 {
		return 0, false
	}
	return slices.Min(s.oldIndices), true
}

// Advance chooses the indices for the viewer's next playlist and records
// them. A viewer's first playlist lists the reserved ad slots when withAds is
// set and the ad store has content for the stream. While the live window is
// not ready a returning viewer is given its previous indices again.
func (s *Session) Advance(w *Window, now time.Time, withAds bool) ([]int64, error) {
	old := s.OldIndices()

	if old == nil && withAds {
		if n := w.adSlots(); n > 0 {
			indices := make([]int64, 0, n)
			for i := int64(FirstAdIndex); i < FirstAdIndex+int64(n); i++ {
				indices = append(indices, i)
			}
			s.Record(now, indices)
			return indices, nil
		}
	}

	indices, err := w.FetchWindow()
	if err != nil {
		if old != nil {
			s.Touch(now)
			return old, nil
		}
		return nil, err
	}

	if len(old) > 0 && old[0] < FirstLiveIndex {
		s.mu.Lock()
		s.liveStart = indices[0]
		s.mu.Unlock()
	}
	s.Record(now, indices)
	return indices, nil
}
