package orchestrator

import "hls-live/internal/live"

// Store is the persistence abstraction for live windows.
// The Repository uses Store for all reads and writes and serializes access
// to it; implementations need not be safe for concurrent use.
type Store interface {
	GetStream(id live.StreamID) (*live.Window, bool)
	SetStream(w *live.Window)
	DeleteStream(id live.StreamID)
	ListStreamIDs() []live.StreamID
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	streams map[live.StreamID]*live.Window
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		streams: make(map[live.StreamID]*live.Window),
	}
}

// GetStream implements Store.GetStream.
func (s *InMemoryStore) GetStream(id live.StreamID) (*live.Window, bool) {
	w, ok := s.streams[id]
	return w, ok
}

// SetStream implements Store.SetStream.
func (s *InMemoryStore) SetStream(w *live.Window) {
	s.streams[w.ID()] = w
}

// DeleteStream implements Store.DeleteStream.
func (s *InMemoryStore) DeleteStream(id live.StreamID) {
	delete(s.streams, id)
}

// ListStreamIDs implements Store.ListStreamIDs.
func (s *InMemoryStore) ListStreamIDs() []live.StreamID {
	ids := make([]live.StreamID, 0, len(s.streams))
	for id := range s.streams {
		ids = append(ids, id)
	}
	return ids
}
