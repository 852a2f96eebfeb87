package segmenter

import (
	"fmt"

	"hls-live/internal/live"
)

// maxSegmentFrames forces a cut when frame durations never reach the target,
// e.g. a video stream without key frames.
const maxSegmentFrames = 4096

// rules is what distinguishes one variant from another.
type rules struct {
	name string
	// duration returns the playback time one frame adds to the segment.
	duration func(p live.CodecParams, ft live.FrameType, frame []byte) float64
	// keyFrameCut only allows a segment to start on a video key frame.
	keyFrameCut bool
	// transcode runs frames through the Encoder before packaging.
	transcode bool
}

func pcmDuration(p live.CodecParams, ft live.FrameType, frame []byte) float64 {
	if ft.IsVideo() {
		return 0
	}
	bytesPerSecond := p.SampleRate * float64(p.SampleSizeInBits) / 8 * float64(p.Channels)
	if bytesPerSecond <= 0 {
		return 0
	}
	return float64(len(frame)) / bytesPerSecond
}

func aacDuration(p live.CodecParams, ft live.FrameType, _ []byte) float64 {
	if ft.IsVideo() || p.SampleRate <= 0 {
		return 0
	}
	return aacFrameSamples / p.SampleRate
}

// videoDuration also drives the mixed variant: audio frames ride along
// without adding time.
func videoDuration(p live.CodecParams, ft live.FrameType, _ []byte) float64 {
	if !ft.IsVideo() || p.FPS <= 0 {
		return 0
	}
	return 1 / float64(p.FPS)
}

// batcher accumulates frames until the target duration is reached and the
// next frame may open a new segment.
type batcher struct {
	rules
	opts   Options
	params live.CodecParams

	frames  [][]byte
	elapsed float64
	ready   bool
	closed  bool
}

func (b *batcher) Initialize(p live.CodecParams) error {
	if b.ready {
		return fmt.Errorf("%s segmenter already initialized", b.name)
	}
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%s segmenter: %w", b.name, err)
	}
	b.params = p
	b.ready = true
	return nil
}

func (b *batcher) PushFrame(ft live.FrameType, frame, _ []byte) (*live.Chunk, error) {
	if b.closed {
		return nil, errClosed
	}
	if !b.ready {
		return nil, fmt.Errorf("%s segmenter not initialized", b.name)
	}

	// Encode before cutting so a failed frame leaves the pending segment intact.
	data := frame
	if b.transcode {
		var err error
		if data, err = b.opts.Encoder(ft, frame); err != nil {
			return nil, fmt.Errorf("%s encode: %w", b.name, err)
		}
	}

	var out *live.Chunk
	if len(b.frames) >= maxSegmentFrames ||
		(len(b.frames) > 0 && b.elapsed >= b.opts.TargetDuration && b.canCut(ft)) {
		out = b.flush()
	}
	if len(data) > 0 {
		b.frames = append(b.frames, data)
	}
	b.elapsed += b.duration(b.params, ft, frame)
	return out, nil
}

func (b *batcher) canCut(ft live.FrameType) bool {
	if !b.keyFrameCut {
		return true
	}
	return ft == live.FrameVideoKey
}

func (b *batcher) flush() *live.Chunk {
	c := &live.Chunk{
		Payload:  b.opts.Packager(b.frames),
		Duration: b.elapsed,
	}
	b.frames = nil
	b.elapsed = 0
	return c
}

func (b *batcher) Close() error {
	b.closed = true
	b.frames = nil
	return nil
}
