package live

// Chunk is a completed segment payload emitted by a Segmenter.
type Chunk struct {
	Payload  []byte
	Duration float64 // seconds
}

// Segmenter turns raw frames into container segments. A window owns exactly
// one Segmenter and drives it from a single producer goroutine, so
// implementations need not be safe for concurrent use.
type Segmenter interface {
	// Initialize is called once, before the first frame.
	Initialize(params CodecParams) error

	// PushFrame consumes one frame. It returns a nil Chunk while the current
	// segment is still being filled.
	PushFrame(ft FrameType, frame, reserved []byte) (*Chunk, error)

	// Close releases encoder resources. Buffered frames are discarded.
	Close() error
}

// SegmenterFunc resolves the Segmenter variant for a stream type. The choice
// is made once, when the window is created.
type SegmenterFunc func(t StreamType) (Segmenter, error)

// AdStore supplies the pre-built segments served at the reserved indices.
type AdStore interface {
	// Lookup returns up to MaxAdSlots segments in slot order. Implementations
	// must not block on I/O.
	Lookup(class MediaClass, params CodecParams) []*Segment
}
