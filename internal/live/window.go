// Package live buffers the most recent segments of a live stream and tracks
// the viewers reading them.
//
// Index space: 1..3 are reserved for advertisement slots resolved through an
// AdStore, live segments are numbered from 4 upward and never reuse an index.
package live

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	// FirstAdIndex and MaxAdSlots describe the reserved ad range 1..3.
	FirstAdIndex = 1
	MaxAdSlots   = 3

	// FirstLiveIndex is the first index handed to a live segment.
	FirstLiveIndex = FirstAdIndex + MaxAdSlots

	// MinWindow and MaxWindow bound the playlist window.
	MinWindow = 3
	MaxWindow = 5

	// oversizeSegments is the segment count above which a sweep warns that
	// viewers are holding the window open.
	oversizeSegments = 24
)

// Config describes a window at creation.
type Config struct {
	ID           StreamID
	Type         StreamType
	Aliases      []string
	Params       CodecParams
	NewSegmenter SegmenterFunc
	Ads          AdStore
	Logger       *slog.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Window is the live window of one stream. Ingest is serialized per window;
// reads, session calls and Reclaim run concurrently with it and with each
// other.
type Window struct {
	id        StreamID
	kind      StreamType
	params    CodecParams
	ads       AdStore
	log       *slog.Logger
	clock     func() time.Time
	segmenter Segmenter

	aliasMu sync.RWMutex
	aliases []string

	ingestMu sync.Mutex // single producer
	closed   atomic.Bool
	mtime    atomic.Int64
	next     atomic.Int64

	segments sync.Map // int64 -> *Segment
	nsegs    atomic.Int64
	sessions sync.Map // string -> *Session
	nsess    atomic.Int64

	oversize rate.Sometimes
}

// New creates the window and initializes its segmenter. It fails with
// ErrUnconfigured when the stream type has no segmenter.
func New(cfg Config) (*Window, error) {
	if !cfg.Type.Valid() {
		return nil, fmt.Errorf("stream %s: %w: %s", cfg.ID, ErrUnconfigured, cfg.Type)
	}
	if cfg.NewSegmenter == nil {
		return nil, fmt.Errorf("stream %s: %w: no segmenter factory", cfg.ID, ErrUnconfigured)
	}
	seg, err := cfg.NewSegmenter(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", cfg.ID, err)
	}
	if seg == nil {
		return nil, fmt.Errorf("stream %s: %w: %s", cfg.ID, ErrUnconfigured, cfg.Type)
	}

	params := cfg.Params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("stream %s: %w", cfg.ID, err)
	}
	if err := seg.Initialize(params); err != nil {
		return nil, fmt.Errorf("stream %s: initialize segmenter: %w", cfg.ID, err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Window{
		id:        cfg.ID,
		kind:      cfg.Type,
		params:    params,
		ads:       cfg.Ads,
		log:       logger.With(slog.String("stream_id", string(cfg.ID))),
		clock:     clock,
		segmenter: seg,
		aliases:   slices.Clone(cfg.Aliases),
		oversize:  rate.Sometimes{Interval: 30 * time.Second},
	}
	w.next.Store(FirstLiveIndex)
	w.mtime.Store(clock().UnixNano())
	return w, nil
}

// Ingest feeds one frame to the segmenter and stores the segment it
// completes, if any. The returned segment is nil when the segmenter is still
// buffering.
func (w *Window) Ingest(ft FrameType, frame, reserved []byte) (*Segment, error) {
	w.ingestMu.Lock()
	defer w.ingestMu.Unlock()

	if w.closed.Load() {
		return nil, ErrClosed
	}

	now := w.clock()
	w.mtime.Store(now.UnixNano())

	chunk, err := w.segmenter.PushFrame(ft, frame, reserved)
	if err != nil {
		return nil, fmt.Errorf("push frame: %w", err)
	}
	if chunk == nil {
		return nil, nil
	}

	index := w.next.Add(1) - 1
	seg := NewSegment(index, chunk.Payload, chunk.Duration, false, now)
	w.segments.Store(index, seg)
	w.nsegs.Add(1)

	w.log.Debug("segment added",
		slog.String("segment", seg.ID()),
		slog.Int("size", len(chunk.Payload)),
		slog.Float64("duration", chunk.Duration))
	return seg, nil
}

// FetchWindow returns the newest MinWindow..MaxWindow live indices in
// ascending order, or ErrNotReady when fewer than MinWindow are buffered.
func (w *Window) FetchWindow() ([]int64, error) {
	indices := w.indices()
	if len(indices) < MinWindow {
		return nil, ErrNotReady
	}
	slices.Sort(indices)
	if len(indices) > MaxWindow {
		indices = indices[len(indices)-MaxWindow:]
	}
	return indices, nil
}

// FetchByIndex returns the segment at index and refreshes its last-access
// time. Indices 1..3 resolve to ad slots and never touch the live map.
func (w *Window) FetchByIndex(index int64) (*Segment, error) {
	if index < FirstAdIndex {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}

	var seg *Segment
	if index < FirstLiveIndex {
		seg = w.adSegment(index)
	} else if v, ok := w.segments.Load(index); ok {
		seg = v.(*Segment)
	}
	if seg == nil {
		return nil, ErrNotFound
	}

	seg.Touch(w.clock())
	return seg, nil
}

func (w *Window) adSegment(index int64) *Segment {
	if w.ads == nil {
		return nil
	}
	ads := w.ads.Lookup(w.kind.MediaClass(), w.params)
	slot := int(index - FirstAdIndex)
	if slot >= len(ads) {
		return nil
	}
	return ads[slot]
}

// adSlots returns how many reserved slots currently resolve to an ad.
func (w *Window) adSlots() int {
	if w.ads == nil {
		return 0
	}
	return min(len(w.ads.Lookup(w.kind.MediaClass(), w.params)), MaxAdSlots)
}

// NewSession opens a viewer session.
func (w *Window) NewSession() *Session {
	s := newSession(w.clock())
	w.sessions.Store(s.ID(), s)
	w.nsess.Add(1)

	w.log.Info("session added",
		slog.String("session_id", s.ID()),
		slog.Int64("sessions", w.nsess.Load()))
	return s
}

// GetSession looks up a viewer session.
func (w *Window) GetSession(id string) (*Session, error) {
	v, ok := w.sessions.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*Session), nil
}

// RangeSessions calls fn for each session until fn returns false. Sessions
// added or removed during the call may or may not be visited.
func (w *Window) RangeSessions(fn func(*Session) bool) {
	w.sessions.Range(func(_, v any) bool {
		return fn(v.(*Session))
	})
}

// SessionCount returns the number of open sessions.
func (w *Window) SessionCount() int {
	return int(w.nsess.Load())
}

// ReclaimResult summarizes one sweep.
type ReclaimResult struct {
	SessionsRemoved int
	SegmentsRemoved int

	// Watermark is the smallest old index over all sessions seen at the start
	// of the sweep. HasWatermark is false when no session reported one.
	Watermark    int64
	HasWatermark bool
}

// Reclaim removes sessions idle for longer than idleTimeout and segments that
// are either idle for longer than idleTimeout or below the watermark.
//
// The watermark is taken over every session present when the sweep starts,
// including sessions reaped by this same sweep, so a viewer that times out
// still protects its segments until the next sweep.
func (w *Window) Reclaim(now time.Time, idleTimeout time.Duration) ReclaimResult {
	var res ReclaimResult

	w.sessions.Range(func(k, v any) bool {
		s := v.(*Session)
		if low, ok := s.watermark(); ok && (!res.HasWatermark || low < res.Watermark) {
			res.Watermark, res.HasWatermark = low, true
		}
		if now.Sub(s.LastActivity()) > idleTimeout {
			if _, loaded := w.sessions.LoadAndDelete(k); loaded {
				res.SessionsRemoved++
				left := w.nsess.Add(-1)
				w.log.Info("session removed",
					slog.String("session_id", s.ID()),
					slog.Int64("sessions", left))
			}
		}
		return true
	})

	if n := w.nsegs.Load(); n > oversizeSegments {
		w.oversize.Do(func() {
			w.log.Warn("too many segments buffered", slog.Int64("segments", n))
		})
	}

	w.segments.Range(func(k, v any) bool {
		index := k.(int64)
		seg := v.(*Segment)
		stale := now.Sub(seg.LastAccess()) > idleTimeout
		passed := res.HasWatermark && index < res.Watermark
		if !stale && !passed {
			return true
		}
		if _, loaded := w.segments.LoadAndDelete(k); loaded {
			res.SegmentsRemoved++
			w.nsegs.Add(-1)
			w.log.Debug("segment removed",
				slog.String("segment", seg.ID()),
				slog.Int64("watermark", res.Watermark),
				slog.Bool("stale", stale))
		}
		return true
	})

	return res
}

// Close drops all sessions and segments and closes the segmenter. Calling
// Close more than once is a no-op.
func (w *Window) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}

	w.sessions.Range(func(k, _ any) bool {
		if _, loaded := w.sessions.LoadAndDelete(k); loaded {
			w.nsess.Add(-1)
		}
		return true
	})

	// Wait for an in-flight Ingest before touching the segmenter.
	w.ingestMu.Lock()
	defer w.ingestMu.Unlock()

	w.segments.Range(func(k, _ any) bool {
		if _, loaded := w.segments.LoadAndDelete(k); loaded {
			w.nsegs.Add(-1)
		}
		return true
	})

	if err := w.segmenter.Close(); err != nil {
		return fmt.Errorf("stream %s: close segmenter: %w", w.id, err)
	}
	return nil
}

func (w *Window) indices() []int64 {
	out := make([]int64, 0, max(w.nsegs.Load(), 0))
	w.segments.Range(func(k, _ any) bool {
		out = append(out, k.(int64))
		return true
	})
	return out
}

// ID returns the stream identifier.
func (w *Window) ID() StreamID { return w.id }

// Type returns the stream type.
func (w *Window) Type() StreamType { return w.kind }

// Params returns the codec parameters, defaults applied.
func (w *Window) Params() CodecParams { return w.params }

// Closed reports whether Close has been called.
func (w *Window) Closed() bool { return w.closed.Load() }

// Aliases returns the alternative names of the stream.
func (w *Window) Aliases() []string {
	w.aliasMu.RLock()
	defer w.aliasMu.RUnlock()
	return slices.Clone(w.aliases)
}

// SetAliases replaces the alternative names of the stream.
func (w *Window) SetAliases(aliases []string) {
	w.aliasMu.Lock()
	w.aliases = slices.Clone(aliases)
	w.aliasMu.Unlock()
}

// LastModified returns the time of the last Ingest call.
func (w *Window) LastModified() time.Time {
	return time.Unix(0, w.mtime.Load())
}

// SegmentCount returns the number of buffered live segments.
func (w *Window) SegmentCount() int {
	return int(w.nsegs.Load())
}

// NextIndex returns the index the next live segment will receive.
func (w *Window) NextIndex() int64 {
	return w.next.Load()
}
