package orchestrator

import (
	"time"

	"hls-live/internal/live"
)

// StreamSpec is the JSON payload for registering a live stream.
type StreamSpec struct {
	ID      live.StreamID `json:"id"`
	Type    string        `json:"type"`
	Aliases []string      `json:"aliases,omitempty"`

	SampleRate       float64 `json:"sample_rate,omitempty"`
	SampleSizeInBits int     `json:"sample_size_in_bits,omitempty"`
	Channels         int     `json:"channels,omitempty"`
	FPS              int     `json:"fps,omitempty"`
}

// Params returns the codec parameters of the spec. Zero fields are filled
// with defaults when the window is created.
func (s StreamSpec) Params() live.CodecParams {
	return live.CodecParams{
		SampleRate:       s.SampleRate,
		SampleSizeInBits: s.SampleSizeInBits,
		Channels:         s.Channels,
		FPS:              s.FPS,
	}
}

// StreamStats is the read-only view of a stream returned by the API.
type StreamStats struct {
	ID           live.StreamID    `json:"id"`
	Type         string           `json:"type"`
	Aliases      []string         `json:"aliases"`
	Params       live.CodecParams `json:"params"`
	Segments     int              `json:"segments"`
	Sessions     int              `json:"sessions"`
	NextIndex    int64            `json:"next_index"`
	LastModified time.Time        `json:"last_modified"`
}

func statsOf(w *live.Window) StreamStats {
	return StreamStats{
		ID:           w.ID(),
		Type:         w.Type().String(),
		Aliases:      w.Aliases(),
		Params:       w.Params(),
		Segments:     w.SegmentCount(),
		Sessions:     w.SessionCount(),
		NextIndex:    w.NextIndex(),
		LastModified: w.LastModified().UTC(),
	}
}

// PlaylistEntry is one line item of a rendered playlist.
type PlaylistEntry struct {
	Index    int64
	Duration float64
	URI      string
	// Discontinuity marks the first live segment after an ad break.
	Discontinuity bool
}
