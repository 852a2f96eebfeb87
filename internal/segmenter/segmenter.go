// Package segmenter provides the default frame-batching segmenters, one per
// stream type. Container muxing and transcoding are delegated to the
// Packager and Encoder hooks.
package segmenter

import (
	"errors"
	"fmt"

	"hls-live/internal/live"
)

// DefaultTargetDuration is the segment length in seconds used when Options
// leaves it unset.
const DefaultTargetDuration = 3.0

// aacFrameSamples is the number of PCM samples carried by one AAC frame.
const aacFrameSamples = 1024

var errClosed = errors.New("segmenter closed")

// Encoder transcodes one raw frame. It is only applied by the transcoding
// variants (PCM and YUV).
type Encoder func(ft live.FrameType, frame []byte) ([]byte, error)

// Packager turns the frames of one segment into its container payload.
type Packager func(frames [][]byte) []byte

// Options configure every variant.
type Options struct {
	// TargetDuration is the minimum segment length in seconds.
	TargetDuration float64
	// Encoder defaults to passing frames through unchanged.
	Encoder Encoder
	// Packager defaults to concatenating frames.
	Packager Packager
}

func (o Options) withDefaults() Options {
	if o.TargetDuration <= 0 {
		o.TargetDuration = DefaultTargetDuration
	}
	if o.Encoder == nil {
		o.Encoder = func(_ live.FrameType, frame []byte) ([]byte, error) { return frame, nil }
	}
	if o.Packager == nil {
		o.Packager = concat
	}
	return o
}

func concat(frames [][]byte) []byte {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	out := make([]byte, 0, n)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}

// New returns the segmenter for t. Unknown types fail with
// live.ErrUnconfigured.
func New(t live.StreamType, opts Options) (live.Segmenter, error) {
	opts = opts.withDefaults()

	var r rules
	switch t {
	case live.StreamTypePCM:
		r = rules{name: "pcm", duration: pcmDuration, transcode: true}
	case live.StreamTypeAAC:
		r = rules{name: "aac", duration: aacDuration}
	case live.StreamTypeYUV:
		r = rules{name: "yuv", duration: videoDuration, transcode: true}
	case live.StreamTypeH264:
		r = rules{name: "h264", duration: videoDuration, keyFrameCut: true}
	case live.StreamTypeAACH264Mixed:
		r = rules{name: "aac_h264", duration: videoDuration, keyFrameCut: true}
	default:
		return nil, fmt.Errorf("%w: %s", live.ErrUnconfigured, t)
	}
	return &batcher{rules: r, opts: opts}, nil
}

// Func adapts New to a live.SegmenterFunc.
func Func(opts Options) live.SegmenterFunc {
	return func(t live.StreamType) (live.Segmenter, error) {
		return New(t, opts)
	}
}
