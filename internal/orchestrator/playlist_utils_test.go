package orchestrator

import (
	"strings"
	"testing"

	"github.com/grafov/m3u8"
)

func decodeMediaPlaylist(t *testing.T, s string) *m3u8.MediaPlaylist {
	t.Helper()
	p, listType, err := m3u8.DecodeFrom(strings.NewReader(s), true)
	if err != nil {
		t.Fatalf("decode playlist: %v\n%s", err, s)
	}
	if listType != m3u8.MEDIA {
		t.Fatalf("expected a media playlist, got %v", listType)
	}
	return p.(*m3u8.MediaPlaylist)
}

func TestBuildLivePlaylist_empty_not_ended(t *testing.T) {
	out, err := BuildLivePlaylist(nil, false)
	if err != nil {
		t.Fatalf("BuildLivePlaylist: %v", err)
	}
	if !strings.HasPrefix(out, "#EXTM3U\n") {
		t.Error("expected #EXTM3U header")
	}
	if strings.Contains(out, "#EXT-X-ENDLIST") {
		t.Error("should not contain ENDLIST when not ended")
	}

	p := decodeMediaPlaylist(t, out)
	if p.TargetDuration != 1 {
		t.Errorf("expected target duration 1 for empty, got %v", p.TargetDuration)
	}
	if p.SeqNo != 0 {
		t.Errorf("expected media sequence 0, got %d", p.SeqNo)
	}
	if p.Count() != 0 {
		t.Errorf("expected no segments, got %d", p.Count())
	}
}

func TestBuildLivePlaylist_empty_ended(t *testing.T) {
	out, err := BuildLivePlaylist(nil, true)
	if err != nil {
		t.Fatalf("BuildLivePlaylist: %v", err)
	}
	if !strings.Contains(out, "#EXT-X-ENDLIST") {
		t.Error("expected #EXT-X-ENDLIST when ended")
	}
}

func TestBuildLivePlaylist_with_segments(t *testing.T) {
	entries := []PlaylistEntry{
		{Index: 4, Duration: 2.0, URI: "sess/4.ts"},
		{Index: 5, Duration: 2.0, URI: "sess/5.ts"},
		{Index: 6, Duration: 1.5, URI: "sess/6.ts"},
	}
	out, err := BuildLivePlaylist(entries, false)
	if err != nil {
		t.Fatalf("BuildLivePlaylist: %v", err)
	}

	p := decodeMediaPlaylist(t, out)
	if p.SeqNo != 4 {
		t.Errorf("expected media sequence 4, got %d", p.SeqNo)
	}
	if p.TargetDuration != 2 {
		t.Errorf("expected target duration 2, got %v", p.TargetDuration)
	}
	if p.Count() != 3 {
		t.Fatalf("expected 3 segments, got %d", p.Count())
	}
	for i, e := range entries {
		seg := p.Segments[i]
		if seg.URI != e.URI {
			t.Errorf("segment %d: expected URI %q, got %q", i, e.URI, seg.URI)
		}
		if seg.Duration != e.Duration {
			t.Errorf("segment %d: expected duration %v, got %v", i, e.Duration, seg.Duration)
		}
	}
	if p.Closed {
		t.Error("live playlist should not be closed")
	}
}

func TestBuildLivePlaylist_with_segments_ended(t *testing.T) {
	entries := []PlaylistEntry{{Index: 1, Duration: 2.0, URI: "sess/1.ts"}}
	out, err := BuildLivePlaylist(entries, true)
	if err != nil {
		t.Fatalf("BuildLivePlaylist: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "#EXT-X-ENDLIST") {
		t.Errorf("expected playlist to end with #EXT-X-ENDLIST:\n%s", out)
	}
}

func TestBuildLivePlaylist_discontinuity(t *testing.T) {
	entries := []PlaylistEntry{
		{Index: 4, Duration: 2.0, URI: "sess/4.ts", Discontinuity: true},
		{Index: 5, Duration: 2.0, URI: "sess/5.ts"},
	}
	out, err := BuildLivePlaylist(entries, false)
	if err != nil {
		t.Fatalf("BuildLivePlaylist: %v", err)
	}
	if strings.Count(out, "#EXT-X-DISCONTINUITY") != 1 {
		t.Errorf("expected one discontinuity tag:\n%s", out)
	}
	if tag, uri := strings.Index(out, "#EXT-X-DISCONTINUITY"), strings.Index(out, "sess/4.ts"); tag > uri {
		t.Errorf("expected discontinuity before sess/4.ts:\n%s", out)
	}

	p := decodeMediaPlaylist(t, out)
	if !p.Segments[0].Discontinuity || p.Segments[1].Discontinuity {
		t.Errorf("expected only the first segment flagged, got %v %v",
			p.Segments[0].Discontinuity, p.Segments[1].Discontinuity)
	}
}

func TestTargetDurationFromEntries(t *testing.T) {
	tests := []struct {
		name      string
		durations []float64
		want      int
	}{
		{"empty", nil, 1},
		{"exact", []float64{2, 3}, 3},
		{"ceiling", []float64{2.0, 2.1, 1.9}, 3},
		{"zero", []float64{0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entries []PlaylistEntry
			for _, d := range tt.durations {
				entries = append(entries, PlaylistEntry{Duration: d})
			}
			if got := targetDurationFromEntries(entries); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
