package orchestrator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hls-live/internal/live"

	"github.com/go-chi/chi/v5"
)

func newTestHandler(t *testing.T) (*Handler, *Service) {
	t.Helper()
	svc, _, _ := newTestService(t, Options{})
	return NewHandler(svc, testLogger()), svc
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func postJSON(r http.Handler, path string, v any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(v)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func postFrame(r http.Handler, stream, frameType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/streams/"+stream+"/frames", bytes.NewReader(body))
	if frameType != "" {
		req.Header.Set(HeaderFrameType, frameType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandler_CreateStream(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	rec := postJSON(r, "/streams", map[string]any{"id": "cam1", "type": "h264", "fps": 30})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var stats StreamStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.ID != "cam1" || stats.Params.FPS != 30 {
		t.Errorf("unexpected stats %+v", stats)
	}

	t.Run("duplicate", func(t *testing.T) {
		rec := postJSON(r, "/streams", map[string]any{"id": "cam1", "type": "h264"})
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("unknown_type", func(t *testing.T) {
		rec := postJSON(r, "/streams", map[string]any{"id": "cam2", "type": "vp9"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("bad_request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/streams", strings.NewReader("not json"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestHandler_ListStreams(t *testing.T) {
	h, svc := newTestHandler(t)
	r := newTestRouter(h)
	_, _ = svc.CreateStream(StreamSpec{ID: "s2", Type: "aac"})
	_, _ = svc.CreateStream(StreamSpec{ID: "s1", Type: "pcm"})

	rec := get(r, "/streams")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats []StreamStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(stats) != 2 || stats[0].ID != "s1" || stats[0].Type != "pcm" {
		t.Errorf("unexpected list %+v", stats)
	}
}

func TestHandler_EndStream(t *testing.T) {
	h, svc := newTestHandler(t)
	r := newTestRouter(h)
	_, _ = svc.CreateStream(StreamSpec{ID: "s1", Type: "aac"})

	rec := postJSON(r, "/streams/s1/end", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	rec = postJSON(r, "/streams/s1/end", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for ended stream, got %d", rec.Code)
	}
}

func TestHandler_IngestFrame(t *testing.T) {
	h, svc := newTestHandler(t)
	r := newTestRouter(h)
	_, _ = svc.CreateStream(StreamSpec{ID: "s1", Type: "h264"})

	t.Run("segment_completed", func(t *testing.T) {
		rec := postFrame(r, "s1", "key", []byte{1, 2, 3})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		if got := rec.Header().Get(HeaderSegmentID); got != "4.ts" {
			t.Errorf("expected segment 4.ts, got %q", got)
		}
	})

	t.Run("buffering", func(t *testing.T) {
		rec := postFrame(r, "s1", "video", nil)
		if rec.Code != http.StatusAccepted {
			t.Errorf("expected 202, got %d", rec.Code)
		}
	})

	t.Run("missing_frame_type", func(t *testing.T) {
		rec := postFrame(r, "s1", "", []byte{1})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("bad_reserved", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/streams/s1/frames", bytes.NewReader([]byte{1}))
		req.Header.Set(HeaderFrameType, "audio")
		req.Header.Set(HeaderFrameReserved, "%%%")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unknown_stream", func(t *testing.T) {
		rec := postFrame(r, "nope", "audio", []byte{1})
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestHandler_GetPlaylist(t *testing.T) {
	h, svc := newTestHandler(t)
	r := newTestRouter(h)
	_, _ = svc.CreateStream(StreamSpec{ID: "s1", Type: "h264", Aliases: []string{"lobby"}})
	ingestN(t, svc, "s1", 2)

	rec := get(r, "/live/lobby/playlist.m3u8")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while not ready, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After on 503")
	}
	session := rec.Header().Get(HeaderSessionID)
	if session == "" {
		t.Fatal("expected a session id header")
	}

	ingestN(t, svc, "s1", 1)
	rec = get(r, "/live/lobby/playlist.m3u8?session="+session)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != playlistContentType {
		t.Errorf("expected Content-Type %s, got %s", playlistContentType, ct)
	}
	if got := rec.Header().Get(HeaderSessionID); got != session {
		t.Errorf("expected session %s, got %s", session, got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, session+"/6.ts") {
		t.Errorf("expected playlist to reference %s/6.ts:\n%s", session, body)
	}
}

func TestHandler_GetPlaylist_not_found(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	rec := get(r, "/live/missing/playlist.m3u8")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_GetSegment(t *testing.T) {
	h, svc := newTestHandler(t)
	r := newTestRouter(h)
	_, _ = svc.CreateStream(StreamSpec{ID: "s1", Type: "h264"})
	ingestN(t, svc, "s1", 3)
	_, session, err := svc.Playlist("s1", "")
	if err != nil {
		t.Fatalf("Playlist: %v", err)
	}

	t.Run("ok", func(t *testing.T) {
		rec := get(r, fmt.Sprintf("/live/s1/%s/5.ts", session))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != segmentContentType {
			t.Errorf("expected Content-Type %s, got %s", segmentContentType, ct)
		}
		if !bytes.Equal(rec.Body.Bytes(), []byte{1}) {
			t.Errorf("unexpected payload %v", rec.Body.Bytes())
		}
	})

	tests := []struct {
		name string
		path string
		want int
	}{
		{"malformed_id", fmt.Sprintf("/live/s1/%s/abc.ts", session), http.StatusBadRequest},
		{"negative_index", fmt.Sprintf("/live/s1/%s/-1.ts", session), http.StatusBadRequest},
		{"not_produced", fmt.Sprintf("/live/s1/%s/40.ts", session), http.StatusNotFound},
		{"unknown_session", "/live/s1/nope/5.ts", http.StatusNotFound},
		{"unknown_stream", fmt.Sprintf("/live/nope/%s/5.ts", session), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(r, tt.path)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{live.ErrInvalidIndex, http.StatusBadRequest},
		{fmt.Errorf("stream x: %w", live.ErrUnconfigured), http.StatusBadRequest},
		{fmt.Errorf("stream x: %w", live.ErrInvalidParams), http.StatusBadRequest},
		{live.ErrNotFound, http.StatusNotFound},
		{ErrStreamNotFound, http.StatusNotFound},
		{live.ErrNotReady, http.StatusServiceUnavailable},
		{ErrStreamExists, http.StatusConflict},
		{live.ErrClosed, http.StatusGone},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v): expected %d, got %d", tt.err, tt.want, got)
		}
	}
}
