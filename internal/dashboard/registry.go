package dashboard

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Registry keeps the live mounts of this process. Entries expire after ttl without use and
// are evicted oldest first beyond size; every way out of the registry unmounts.
type Registry struct {
	mu     sync.Mutex
	mounts *expirable.LRU[string, *Mount]
	grace  time.Duration
}

// NewRegistry builds a registry. grace is how long a mount survives without an attached
// event stream, which covers page navigations within the tab.
func NewRegistry(size int, ttl, grace time.Duration) *Registry {
	if size <= 0 {
		size = 1024
	}
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &Registry{
		mounts: expirable.NewLRU[string, *Mount](size, func(_ string, m *Mount) {
			m.Close()
		}, ttl),
		grace: grace,
	}
}

// Add registers m under its id.
func (r *Registry) Add(m *Mount) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounts.Add(m.ID(), m)
}

// Get returns the mount for id and renews its expiry.
func (r *Registry) Get(id string) (*Mount, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mounts.Get(id)
	if !ok || m.Closed() {
		return nil, false
	}
	r.mounts.Add(id, m)
	return m, true
}

// Remove unmounts id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounts.Remove(id)
}

// CloseSession unmounts every context opened by sessionID and returns how many there were.
func (r *Registry) CloseSession(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.mounts.Values() {
		if m.SessionID() == sessionID {
			r.mounts.Remove(m.ID())
			n++
		}
	}
	return n
}

// Len returns the number of live mounts.
func (r *Registry) Len() int {
	return r.mounts.Len()
}

// Close unmounts everything.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounts.Purge()
}

// Detach releases one event stream of m. The mount is removed once it stayed without
// streams for the grace period.
func (r *Registry) Detach(m *Mount) {
	m.detach(r.grace, func() {
		if m.Streams() == 0 {
			r.Remove(m.ID())
		}
	})
}
