// Package presence keeps track of which users currently hold a realtime
// connection. There is at most one live handle per user: a newer
// registration replaces the older one.
package presence

import (
	"sort"
	"sync"

	"lichka/internal/models"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
)

// Handle is the server side end of one realtime connection.
type Handle struct {
	ID     string
	UserID string

	out  chan models.ServerMessage
	done chan struct{}
	once sync.Once
}

// NewHandle creates a handle with a fresh connection id and an outgoing
// buffer of the given size.
func NewHandle(userID string, buffer int) *Handle {
	return &Handle{
		ID:     uuid.NewString(),
		UserID: userID,
		out:    make(chan models.ServerMessage, buffer),
		done:   make(chan struct{}),
	}
}

// Send queues msg for the connection without blocking. It returns false if
// the handle is closed or its buffer is full; both mean the peer is
// unreachable for this push.
func (h *Handle) Send(msg models.ServerMessage) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.out <- msg:
		return true
	case <-h.done:
		return false
	default:
		return false
	}
}

// Messages is the stream of pushes for the connection loop.
func (h *Handle) Messages() <-chan models.ServerMessage {
	return h.out
}

// Done is closed when the handle is closed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Close marks the handle as dead. Safe to call more than once.
func (h *Handle) Close() {
	h.once.Do(func() { close(h.done) })
}

func (h *Handle) String() string {
	return h.UserID + "/" + h.ID
}

// Registry maps user ids to their active handle.
type Registry struct {
	entries *geche.Locker[string, *Handle]
}

func NewRegistry() *Registry {
	return &Registry{
		entries: geche.NewLocker[string, *Handle](geche.NewMapCache[string, *Handle]()),
	}
}

// Register makes h the active handle of h.UserID and returns the handle it
// replaced, if any.
func (r *Registry) Register(h *Handle) *Handle {
	tx := r.entries.Lock()
	defer tx.Unlock()

	prev, err := tx.Get(h.UserID)
	tx.Set(h.UserID, h)
	if err != nil || prev == h {
		return nil
	}
	return prev
}

// Unregister removes the entry of userID only if it still points to the
// handle with connection id handleID. It reports whether anything was
// removed; stale or duplicate calls are no-ops.
func (r *Registry) Unregister(userID, handleID string) bool {
	tx := r.entries.Lock()
	defer tx.Unlock()

	cur, err := tx.Get(userID)
	if err != nil || cur.ID != handleID {
		return false
	}
	_ = tx.Del(userID)
	return true
}

func (r *Registry) Lookup(userID string) (*Handle, bool) {
	tx := r.entries.RLock()
	defer tx.Unlock()

	h, err := tx.Get(userID)
	if err != nil {
		return nil, false
	}
	return h, true
}

// IsOnline reports whether userID has a registered handle.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// OnlineUserIDs returns the ids of all connected users, sorted.
func (r *Registry) OnlineUserIDs() []string {
	tx := r.entries.RLock()
	defer tx.Unlock()

	snapshot := tx.Snapshot()
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Handles returns every registered handle.
func (r *Registry) Handles() []*Handle {
	tx := r.entries.RLock()
	defer tx.Unlock()

	snapshot := tx.Snapshot()
	handles := make([]*Handle, 0, len(snapshot))
	for _, h := range snapshot {
		handles = append(handles, h)
	}
	return handles
}
