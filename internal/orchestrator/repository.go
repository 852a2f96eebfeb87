package orchestrator

import (
	"errors"
	"slices"
	"sort"
	"sync"

	"hls-live/internal/live"
)

// Repository defines the concurrency-safe contract for the set of live
// windows known to this process.
type Repository interface {
	// Register adds w. It fails with ErrStreamExists when a window with the
	// same ID is already registered.
	Register(w *live.Window) error

	// Get returns the window registered under id.
	Get(id live.StreamID) (*live.Window, bool)

	// GetByAlias returns the window whose ID or one of whose aliases equals
	// name.
	GetByAlias(name string) (*live.Window, bool)

	// Remove unregisters the window and returns it. The caller closes it.
	Remove(id live.StreamID) (*live.Window, bool)

	// List returns all windows ordered by ID.
	List() []*live.Window

	// ActiveStreamCount returns the number of registered windows.
	// Used for metrics.
	ActiveStreamCount() int
}

var (
	// ErrStreamExists is returned when registering a stream ID twice.
	ErrStreamExists = errors.New("stream already exists")

	// ErrStreamNotFound is returned for operations on unknown streams.
	ErrStreamNotFound = errors.New("stream not found")
)

// InMemoryRepository is a concurrency-safe in-memory implementation of Repository.
// It uses a Store for persistence; by default that is an InMemoryStore.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// Register implements Repository.Register.
func (r *InMemoryRepository) Register(w *live.Window) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.store.GetStream(w.ID()); exists {
		return ErrStreamExists
	}
	r.store.SetStream(w)
	return nil
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(id live.StreamID) (*live.Window, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.GetStream(id)
}

// GetByAlias implements Repository.GetByAlias. A direct ID match wins over
// an alias match.
func (r *InMemoryRepository) GetByAlias(name string) (*live.Window, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if w, ok := r.store.GetStream(live.StreamID(name)); ok {
		return w, true
	}
	for _, id := range r.sortedIDsLocked() {
		w, ok := r.store.GetStream(id)
		if ok && slices.Contains(w.Aliases(), name) {
			return w, true
		}
	}
	return nil, false
}

// Remove implements Repository.Remove.
func (r *InMemoryRepository) Remove(id live.StreamID) (*live.Window, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.store.GetStream(id)
	if !ok {
		return nil, false
	}
	r.store.DeleteStream(id)
	return w, true
}

// List implements Repository.List.
func (r *InMemoryRepository) List() []*live.Window {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.sortedIDsLocked()
	out := make([]*live.Window, 0, len(ids))
	for _, id := range ids {
		if w, ok := r.store.GetStream(id); ok {
			out = append(out, w)
		}
	}
	return out
}

// ActiveStreamCount implements Repository.ActiveStreamCount.
func (r *InMemoryRepository) ActiveStreamCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.store.ListStreamIDs())
}

// sortedIDsLocked returns the stream IDs in a stable order.
// Caller must hold r.mu.
func (r *InMemoryRepository) sortedIDsLocked() []live.StreamID {
	ids := r.store.ListStreamIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
