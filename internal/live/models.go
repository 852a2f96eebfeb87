package live

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// StreamID uniquely identifies a live source.
type StreamID string

// StreamType selects the codec pipeline of a stream. The set is closed.
type StreamType int

const (
	StreamTypePCM          StreamType = 1 // raw PCM, transcoded to AAC
	StreamTypeAAC          StreamType = 2
	StreamTypeYUV          StreamType = 3 // raw YUV, transcoded to H264
	StreamTypeH264         StreamType = 4
	StreamTypeAACH264Mixed StreamType = 5
)

var streamTypeNames = map[StreamType]string{
	StreamTypePCM:          "pcm",
	StreamTypeAAC:          "aac",
	StreamTypeYUV:          "yuv",
	StreamTypeH264:         "h264",
	StreamTypeAACH264Mixed: "aac_h264",
}

// ParseStreamType accepts either the lower-case name ("aac", "h264", ...)
// or the numeric wire value.
func ParseStreamType(s string) (StreamType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range streamTypeNames {
		if name == s {
			return t, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && StreamType(n).Valid() {
		return StreamType(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnconfigured, s)
}

// Valid reports whether t is one of the known stream types.
func (t StreamType) Valid() bool {
	_, ok := streamTypeNames[t]
	return ok
}

func (t StreamType) String() string {
	if name, ok := streamTypeNames[t]; ok {
		return name
	}
	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

// MediaClass is the ad lookup class derived from a stream type.
type MediaClass string

const (
	MediaAudio MediaClass = "audio"
	MediaVideo MediaClass = "video"
	MediaMixed MediaClass = "mixed"
)

// MediaClass maps audio-only types to "audio", video-only types to "video"
// and combined types to "mixed".
func (t StreamType) MediaClass() MediaClass {
	switch t {
	case StreamTypeYUV, StreamTypeH264:
		return MediaVideo
	case StreamTypeAACH264Mixed:
		return MediaMixed
	default:
		return MediaAudio
	}
}

// CodecParams are fixed when a stream is registered.
type CodecParams struct {
	SampleRate       float64 `json:"sample_rate"`
	SampleSizeInBits int     `json:"sample_size_in_bits"`
	Channels         int     `json:"channels"`
	FPS              int     `json:"fps"`
}

// Default codec parameters applied to zero fields.
const (
	DefaultSampleRate       = 8000
	DefaultSampleSizeInBits = 16
	DefaultChannels         = 1
	DefaultFPS              = 25
)

// WithDefaults returns p with zero fields replaced by the defaults.
func (p CodecParams) WithDefaults() CodecParams {
	if p.SampleRate <= 0 {
		p.SampleRate = DefaultSampleRate
	}
	if p.SampleSizeInBits <= 0 {
		p.SampleSizeInBits = DefaultSampleSizeInBits
	}
	if p.Channels <= 0 {
		p.Channels = DefaultChannels
	}
	if p.FPS <= 0 {
		p.FPS = DefaultFPS
	}
	return p
}

// MinSampleSizeInBits is the narrowest PCM sample accepted by Validate.
const MinSampleSizeInBits = 8

// Validate reports whether p, after WithDefaults, is usable by a segmenter.
// Sub-byte samples are rejected.
func (p CodecParams) Validate() error {
	if p.SampleSizeInBits < MinSampleSizeInBits {
		return fmt.Errorf("%w: sample size %d bits, minimum %d", ErrInvalidParams, p.SampleSizeInBits, MinSampleSizeInBits)
	}
	return nil
}

// FrameType tags a raw frame pushed into a stream.
type FrameType uint8

const (
	FrameAudio    FrameType = 1
	FrameVideo    FrameType = 2
	FrameVideoKey FrameType = 3
)

// ErrUnknownFrameType is returned by ParseFrameType.
var ErrUnknownFrameType = errors.New("unknown frame type")

// ParseFrameType accepts "audio", "video", "key" or the numeric wire value.
func ParseFrameType(s string) (FrameType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "audio", "1":
		return FrameAudio, nil
	case "video", "2":
		return FrameVideo, nil
	case "key", "3":
		return FrameVideoKey, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFrameType, s)
}

// IsVideo reports whether the frame carries video.
func (f FrameType) IsVideo() bool {
	return f == FrameVideo || f == FrameVideoKey
}

// Segment is one container chunk. Payload, duration and the ad flag never
// change after creation; only the last-access time is updated by readers.
type Segment struct {
	id       string
	index    int64
	payload  []byte
	duration float64
	ad       bool

	lastAccess atomic.Int64 // unix nanoseconds
}

// NewSegment wraps a payload produced for index. created seeds the
// last-access time.
func NewSegment(index int64, payload []byte, duration float64, ad bool, created time.Time) *Segment {
	s := &Segment{
		id:       SegmentID(index),
		index:    index,
		payload:  payload,
		duration: duration,
		ad:       ad,
	}
	s.lastAccess.Store(created.UnixNano())
	return s
}

// SegmentID is the opaque name used in playlists for index.
func SegmentID(index int64) string {
	return strconv.FormatInt(index, 10) + ".ts"
}

// ParseSegmentID is the inverse of SegmentID.
func ParseSegmentID(id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSuffix(id, ".ts"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIndex, id)
	}
	return n, nil
}

func (s *Segment) ID() string { return s.id }
func (s *Segment) Index() int64 { return s.index }
func (s *Segment) Payload() []byte { return s.payload }
func (s *Segment) Duration() float64 { return s.duration }
func (s *Segment) IsAd() bool { return s.ad }

// Touch records a read at now.
func (s *Segment) Touch(now time.Time) {
	s.lastAccess.Store(now.UnixNano())
}

// LastAccess returns the time of the most recent read (or creation).
func (s *Segment) LastAccess() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

func (s *Segment) String() string {
	return fmt.Sprintf("Segment{id=%s, size=%d, duration=%.3f, ad=%t}", s.id, len(s.payload), s.duration, s.ad)
}
