package live

import "errors"

var (
	// ErrInvalidIndex is returned for segment indices that can never exist
	// (zero or negative).
	ErrInvalidIndex = errors.New("invalid segment index")

	// ErrNotReady is returned by FetchWindow while fewer than MinWindow
	// segments are buffered. Callers should retry after more frames arrive.
	ErrNotReady = errors.New("live window not ready")

	// ErrNotFound is returned when a segment or session is not currently held
	// by the window. It is a normal outcome for expired or future segments.
	ErrNotFound = errors.New("not found")

	// ErrUnconfigured is returned by New when no segmenter can be resolved
	// for the stream type.
	ErrUnconfigured = errors.New("no segmenter for stream type")

	// ErrInvalidParams is returned by New for codec parameters no segmenter
	// can time, such as PCM samples narrower than a byte.
	ErrInvalidParams = errors.New("invalid codec parameters")

	// ErrClosed is returned when ingesting into a closed window.
	ErrClosed = errors.New("live window closed")
)
