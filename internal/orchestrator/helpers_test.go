package orchestrator

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"hls-live/internal/live"
)

// frameSegmenter cuts one segment per non-empty frame; empty frames buffer.
type frameSegmenter struct{}

func (frameSegmenter) Initialize(live.CodecParams) error { return nil }

func (frameSegmenter) PushFrame(_ live.FrameType, frame, _ []byte) (*live.Chunk, error) {
	if len(frame) == 0 {
		return nil, nil
	}
	return &live.Chunk{Payload: frame, Duration: 2}, nil
}

func (frameSegmenter) Close() error { return nil }

func newFrameSegmenter(live.StreamType) (live.Segmenter, error) {
	return frameSegmenter{}, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestService returns a service using frameSegmenter and a fake clock.
// opts may override any option except the segmenter, logger and clock.
func newTestService(t *testing.T, opts Options) (*Service, *InMemoryRepository, *testClock) {
	t.Helper()
	clock := newTestClock()
	opts.NewSegmenter = newFrameSegmenter
	opts.Logger = testLogger()
	opts.Clock = clock.Now
	repo := NewInMemoryRepository()
	return NewService(repo, opts), repo, clock
}

func newTestWindow(t *testing.T, id live.StreamID, aliases ...string) *live.Window {
	t.Helper()
	w, err := live.New(live.Config{
		ID:           id,
		Type:         live.StreamTypeH264,
		Aliases:      aliases,
		NewSegmenter: newFrameSegmenter,
		Logger:       testLogger(),
	})
	if err != nil {
		t.Fatalf("live.New: %v", err)
	}
	return w
}

func ingestN(t *testing.T, svc *Service, id live.StreamID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		seg, err := svc.Ingest(id, live.FrameVideoKey, []byte{byte(i)}, nil)
		if err != nil {
			t.Fatalf("Ingest: %v", err)
		}
		if seg == nil {
			t.Fatal("expected a segment per frame")
		}
	}
}
