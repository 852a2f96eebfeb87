package orchestrator

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"hls-live/internal/live"

	"github.com/go-chi/chi/v5"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"

	// HeaderSessionID carries the viewer session on playlist responses.
	HeaderSessionID = "X-Session-Id"
	// HeaderFrameType and HeaderFrameReserved describe an ingested frame.
	HeaderFrameType     = "X-Frame-Type"
	HeaderFrameReserved = "X-Frame-Reserved"
	// HeaderSegmentID names the segment completed by an ingested frame.
	HeaderSegmentID = "X-Segment-Id"

	maxFrameBytes = 16 << 20
	retryAfter    = "1"
)

// Handler exposes the ingest and viewer HTTP endpoints using go-chi.
// Metrics are recorded by the Service.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes mounts the handler's endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/streams", func(r chi.Router) {
		r.Post("/", h.CreateStream)
		r.Get("/", h.ListStreams)
		r.Route("/{stream_id}", func(r chi.Router) {
			r.Post("/end", h.EndStream)
			r.Post("/frames", h.IngestFrame)
		})
	})
	r.Route("/live/{name}", func(r chi.Router) {
		r.Get("/playlist.m3u8", h.GetPlaylist)
		r.Get("/{session}/{segment}", h.GetSegment)
	})
}

// CreateStream handles POST /streams.
// Body: { "id": "cam1", "type": "h264", "aliases": ["lobby"], "fps": 25 }.
func (h *Handler) CreateStream(w http.ResponseWriter, r *http.Request) {
	var spec StreamSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		h.log.Debug("invalid stream body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	stats, err := h.svc.CreateStream(spec)
	if err != nil {
		h.writeError(w, err, slog.String("stream_id", string(spec.ID)))
		return
	}
	writeJSON(w, http.StatusCreated, stats)
}

// ListStreams handles GET /streams.
func (h *Handler) ListStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

// EndStream handles POST /streams/{stream_id}/end.
func (h *Handler) EndStream(w http.ResponseWriter, r *http.Request) {
	streamID := live.StreamID(chi.URLParam(r, "stream_id"))
	if streamID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.EndStream(streamID); err != nil {
		if errors.Is(err, ErrStreamNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		// The stream is unregistered even when its segmenter failed to close.
		h.log.Error("end stream failed", slog.String("stream_id", string(streamID)), slog.String("error", err.Error()))
	}

	h.log.Info("stream ended", slog.String("stream_id", string(streamID)))
	w.WriteHeader(http.StatusOK)
}

// IngestFrame handles POST /streams/{stream_id}/frames. The body is one raw
// frame; X-Frame-Type is required and X-Frame-Reserved carries optional
// base64 side data. The response is 201 with X-Segment-Id when the frame
// completed a segment and 202 while the segmenter is buffering.
func (h *Handler) IngestFrame(w http.ResponseWriter, r *http.Request) {
	streamID := live.StreamID(chi.URLParam(r, "stream_id"))

	ft, err := live.ParseFrameType(r.Header.Get(HeaderFrameType))
	if err != nil {
		h.log.Debug("invalid frame type", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var reserved []byte
	if v := r.Header.Get(HeaderFrameReserved); v != "" {
		if reserved, err = base64.StdEncoding.DecodeString(v); err != nil {
			h.log.Debug("invalid reserved header", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	frame, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBytes))
	if err != nil {
		h.log.Debug("read frame failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	seg, err := h.svc.Ingest(streamID, ft, frame, reserved)
	if err != nil {
		h.writeError(w, err, slog.String("stream_id", string(streamID)))
		return
	}
	if seg == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set(HeaderSegmentID, seg.ID())
	w.WriteHeader(http.StatusCreated)
}

// GetPlaylist handles GET /live/{name}/playlist.m3u8?session=.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m3u8, session, err := h.svc.Playlist(name, r.URL.Query().Get("session"))
	if session != "" {
		w.Header().Set(HeaderSessionID, session)
	}
	if err != nil {
		h.writeError(w, err, slog.String("name", name))
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(m3u8))
}

// GetSegment handles GET /live/{name}/{session}/{segment}, where segment is
// "<index>.ts".
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	session := chi.URLParam(r, "session")

	index, err := live.ParseSegmentID(chi.URLParam(r, "segment"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	seg, err := h.svc.Segment(name, session, index)
	if err != nil {
		h.writeError(w, err, slog.String("name", name), slog.Int64("index", index))
		return
	}

	w.Header().Set("Content-Type", segmentContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(seg.Payload())))
	w.WriteHeader(http.StatusOK)
	w.Write(seg.Payload())
}

// writeError maps service errors to HTTP statuses. Expected outcomes are
// logged at debug level; anything unmapped is a 500.
func (h *Handler) writeError(w http.ResponseWriter, err error, attrs ...any) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfter)
	}

	attrs = append(attrs, slog.String("error", err.Error()), slog.Int("status", status))
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", attrs...)
	} else {
		h.log.Debug("request rejected", attrs...)
	}
	w.WriteHeader(status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, live.ErrInvalidIndex),
		errors.Is(err, live.ErrUnconfigured),
		errors.Is(err, live.ErrUnknownFrameType),
		errors.Is(err, ErrInvalidStream):
		return http.StatusBadRequest
	case errors.Is(err, live.ErrNotFound), errors.Is(err, ErrStreamNotFound):
		return http.StatusNotFound
	case errors.Is(err, live.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrStreamExists):
		return http.StatusConflict
	case errors.Is(err, live.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
