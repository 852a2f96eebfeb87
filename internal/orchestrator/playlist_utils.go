package orchestrator

import (
	"fmt"
	"math"

	"github.com/grafov/m3u8"
)

// BuildLivePlaylist renders entries (ordered by index ascending) as an HLS
// media playlist. The media sequence is the first entry's index. If ended is
// true, #EXT-X-ENDLIST is appended. An empty entries slice produces a minimal
// valid playlist with media sequence 0. Entries flagged Discontinuity are
// preceded by #EXT-X-DISCONTINUITY.
func BuildLivePlaylist(entries []PlaylistEntry, ended bool) (string, error) {
	p, err := m3u8.NewMediaPlaylist(0, uint(max(len(entries), 1)))
	if err != nil {
		return "", fmt.Errorf("new playlist: %w", err)
	}

	for _, e := range entries {
		if err := p.Append(e.URI, e.Duration, ""); err != nil {
			return "", fmt.Errorf("append %s: %w", e.URI, err)
		}
		if e.Discontinuity {
			if err := p.SetDiscontinuity(); err != nil {
				return "", fmt.Errorf("discontinuity %s: %w", e.URI, err)
			}
		}
	}
	if len(entries) > 0 {
		p.SeqNo = uint64(entries[0].Index)
	}
	p.TargetDuration = float64(targetDurationFromEntries(entries))
	if ended {
		p.Close()
	}
	return p.String(), nil
}

// targetDurationFromEntries returns the HLS #EXT-X-TARGETDURATION value:
// the ceiling of the maximum segment duration in seconds (integer).
func targetDurationFromEntries(entries []PlaylistEntry) int {
	longest := 0.0
	for _, e := range entries {
		if e.Duration > longest {
			longest = e.Duration
		}
	}
	if longest <= 0 {
		return 1
	}
	return int(math.Ceil(longest))
}
