package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hls-live/internal/live"
	"hls-live/internal/platform/metrics"
)

const (
	// DefaultSessionTimeout is how long a viewer session and an unread
	// segment survive without activity.
	DefaultSessionTimeout = 30 * time.Second

	// DefaultStreamTimeout is how long a stream survives without ingest.
	DefaultStreamTimeout = 60 * time.Second
)

// ErrInvalidStream is returned by CreateStream for a spec without an ID.
var ErrInvalidStream = errors.New("invalid stream spec")

// Options configures a Service.
type Options struct {
	SessionTimeout time.Duration
	StreamTimeout  time.Duration

	// AdsEnabled makes a viewer's first playlist list the ad slots.
	AdsEnabled bool
	Ads        live.AdStore

	NewSegmenter live.SegmenterFunc
	Logger       *slog.Logger

	// Metrics may be nil to disable metric recording (e.g. in tests).
	Metrics *metrics.Metrics

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service creates live windows, routes frames and viewer requests to them,
// and reaps what viewers and producers abandoned. Storage is delegated to
// Repository.
type Service struct {
	repo Repository
	opts Options
	log  *slog.Logger
}

// NewService returns a Service that uses repo. Zero timeouts are replaced by
// the defaults.
func NewService(repo Repository, opts Options) *Service {
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = DefaultStreamTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{repo: repo, opts: opts, log: opts.Logger}
}

// CreateStream builds and registers a window for spec.
func (s *Service) CreateStream(spec StreamSpec) (StreamStats, error) {
	if spec.ID == "" {
		return StreamStats{}, fmt.Errorf("%w: missing id", ErrInvalidStream)
	}
	typ, err := live.ParseStreamType(spec.Type)
	if err != nil {
		return StreamStats{}, err
	}
	if _, exists := s.repo.Get(spec.ID); exists {
		return StreamStats{}, ErrStreamExists
	}

	w, err := live.New(live.Config{
		ID:           spec.ID,
		Type:         typ,
		Aliases:      spec.Aliases,
		Params:       spec.Params(),
		NewSegmenter: s.opts.NewSegmenter,
		Ads:          s.opts.Ads,
		Logger:       s.log,
		Clock:        s.opts.Clock,
	})
	if err != nil {
		return StreamStats{}, err
	}
	if err := s.repo.Register(w); err != nil {
		// Lost a race with a concurrent create of the same ID.
		_ = w.Close()
		return StreamStats{}, err
	}

	s.log.Info("stream created",
		slog.String("stream_id", string(spec.ID)),
		slog.String("type", typ.String()),
		slog.Any("aliases", spec.Aliases))
	return statsOf(w), nil
}

// EndStream unregisters the stream and closes its window.
func (s *Service) EndStream(id live.StreamID) error {
	w, ok := s.repo.Remove(id)
	if !ok {
		return ErrStreamNotFound
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.IncStreamsEnded(metrics.ReasonEnded)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end stream %s: %w", id, err)
	}
	return nil
}

// Ingest feeds one frame to the stream's segmenter. The returned segment is
// nil while the segmenter is buffering.
func (s *Service) Ingest(id live.StreamID, ft live.FrameType, frame, reserved []byte) (*live.Segment, error) {
	w, ok := s.repo.Get(id)
	if !ok {
		return nil, ErrStreamNotFound
	}
	seg, err := w.Ingest(ft, frame, reserved)
	if err != nil {
		return nil, err
	}
	if seg != nil && s.opts.Metrics != nil {
		s.opts.Metrics.IncSegmentsProduced()
	}
	return seg, nil
}

// Playlist renders the next playlist for a viewer of the stream named by
// name (an ID or alias). An empty or unknown sessionID opens a new session;
// the session used is returned alongside the playlist.
func (s *Service) Playlist(name, sessionID string) (playlist string, session string, err error) {
	w, ok := s.repo.GetByAlias(name)
	if !ok {
		return "", "", ErrStreamNotFound
	}

	sess, err := s.session(w, sessionID)
	if err != nil {
		return "", "", err
	}

	now := s.opts.Clock()
	indices, err := sess.Advance(w, now, s.opts.AdsEnabled)
	if err != nil {
		return "", sess.ID(), err
	}

	liveStart := sess.DiscontinuityAt()
	entries := make([]PlaylistEntry, 0, len(indices))
	for _, idx := range indices {
		seg, err := w.FetchByIndex(idx)
		if err != nil {
			// Evicted since the window was read; the player skips ahead.
			continue
		}
		entries = append(entries, PlaylistEntry{
			Index:         idx,
			Duration:      seg.Duration(),
			URI:           sess.ID() + "/" + seg.ID(),
			Discontinuity: idx == liveStart,
		})
	}
	if len(entries) == 0 {
		return "", sess.ID(), live.ErrNotReady
	}

	out, err := BuildLivePlaylist(entries, w.Closed())
	if err != nil {
		return "", sess.ID(), err
	}
	return out, sess.ID(), nil
}

func (s *Service) session(w *live.Window, id string) (*live.Session, error) {
	if id != "" {
		sess, err := w.GetSession(id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, live.ErrNotFound) {
			return nil, err
		}
		s.log.Debug("unknown session, opening a new one",
			slog.String("stream_id", string(w.ID())),
			slog.String("session_id", id))
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.IncSessionsCreated()
	}
	return w.NewSession(), nil
}

// Segment returns the segment at index for a viewer of the stream named by
// name. The session must exist; its activity time is refreshed.
func (s *Service) Segment(name, sessionID string, index int64) (*live.Segment, error) {
	w, ok := s.repo.GetByAlias(name)
	if !ok {
		return nil, ErrStreamNotFound
	}
	sess, err := w.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Touch(s.opts.Clock())
	return w.FetchByIndex(index)
}

// ReapResult summarizes one reaper pass over all streams.
type ReapResult struct {
	StreamsClosed   int
	SessionsRemoved int
	SegmentsRemoved int
}

// Reap closes streams that stopped ingesting more than the stream timeout
// ago and reclaims idle sessions and segments of the rest. A stream that
// fails to close is logged and the pass continues.
func (s *Service) Reap(now time.Time) ReapResult {
	var res ReapResult
	sessions := 0

	for _, w := range s.repo.List() {
		if now.Sub(w.LastModified()) > s.opts.StreamTimeout {
			if _, ok := s.repo.Remove(w.ID()); !ok {
				continue
			}
			res.StreamsClosed++
			if s.opts.Metrics != nil {
				s.opts.Metrics.IncStreamsEnded(metrics.ReasonTimeout)
			}
			if err := w.Close(); err != nil {
				s.log.Error("close idle stream failed",
					slog.String("stream_id", string(w.ID())),
					slog.String("error", err.Error()))
				continue
			}
			s.log.Info("idle stream closed",
				slog.String("stream_id", string(w.ID())),
				slog.Time("last_modified", w.LastModified()))
			continue
		}

		r := w.Reclaim(now, s.opts.SessionTimeout)
		res.SessionsRemoved += r.SessionsRemoved
		res.SegmentsRemoved += r.SegmentsRemoved
		sessions += w.SessionCount()
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.AddSessionsReaped(res.SessionsRemoved)
		s.opts.Metrics.AddSegmentsEvicted(res.SegmentsRemoved)
		s.opts.Metrics.SetActiveStreams(s.repo.ActiveStreamCount())
		s.opts.Metrics.SetActiveSessions(sessions)
	}
	return res
}

// Run calls Reap every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := s.Reap(s.opts.Clock())
			if res != (ReapResult{}) {
				s.log.Debug("reaper pass",
					slog.Int("streams_closed", res.StreamsClosed),
					slog.Int("sessions_removed", res.SessionsRemoved),
					slog.Int("segments_removed", res.SegmentsRemoved))
			}
		}
	}
}

// Stats returns a snapshot of every registered stream ordered by ID.
func (s *Service) Stats() []StreamStats {
	windows := s.repo.List()
	out := make([]StreamStats, 0, len(windows))
	for _, w := range windows {
		out = append(out, statsOf(w))
	}
	return out
}

// ActiveSessionCount returns the number of open sessions across streams.
func (s *Service) ActiveSessionCount() int {
	n := 0
	for _, w := range s.repo.List() {
		n += w.SessionCount()
	}
	return n
}
