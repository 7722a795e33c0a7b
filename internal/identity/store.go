// Package identity holds the cached "who is using this session" record of one mounted
// dashboard, refreshed on demand and diffed on every successful refresh.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/learnhub/console/internal/notify"
	"github.com/learnhub/console/internal/permissions"
)

var errNoIdentity = errors.New("identity: empty response")

// State is the resolution state of the store.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateResolved
	StateUnresolved
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateResolved:
		return "resolved"
	case StateUnresolved:
		return "unresolved"
	default:
		return "uninitialized"
	}
}

// Fetcher loads the identity behind the session's credential. It crosses a network
// boundary and may fail for any reason, including 401/403.
type Fetcher interface {
	FetchCurrentUser(ctx context.Context) (*permissions.Identity, error)
}

// Notifier surfaces permission diffs to the user.
type Notifier interface {
	Push(item notify.Item) string
}

// Subscriber delivers cross-context wake-ups.
type Subscriber interface {
	Subscribe(h func()) (unsubscribe func())
}

// Observer records refresh outcomes. Nil-safe.
type Observer interface {
	ObserveRefresh(result string)
}

// Snapshot is a consistent read of the store.
type Snapshot struct {
	Identity *permissions.Identity
	State    State
}

// Loading reports whether a refresh is in flight.
func (s Snapshot) Loading() bool {
	return s.State == StateLoading
}

// Store is the single source of truth for the session's identity.
type Store struct {
	fetcher  Fetcher
	notifier Notifier
	observer Observer
	logger   *slog.Logger

	mu       sync.RWMutex
	identity *permissions.Identity
	settled  State
	inflight int
	issued   uint64
	applied  uint64

	watchers  map[int]func(Snapshot)
	nextWatch int
	// publishMu orders deliveries: each one reads the state current at send time.
	publishMu sync.Mutex

	unsubscribe func()
	closed      bool
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier forwards permission diffs to n.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithObserver attaches a refresh observer.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithLogger sets the logger for collapsed fetch failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore builds an uninitialized store.
func NewStore(fetcher Fetcher, opts ...Option) *Store {
	s := &Store{
		fetcher:  fetcher,
		logger:   slog.Default(),
		settled:  StateUninitialized,
		watchers: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start performs the eager refresh of a mount and keeps the store listening to sub for
// as long as the mount lives.
func (s *Store) Start(ctx context.Context, sub Subscriber) *permissions.Identity {
	if sub != nil {
		unsubscribe := sub.Subscribe(func() { s.Refresh(context.WithoutCancel(ctx)) })
		s.mu.Lock()
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
	}
	return s.Refresh(ctx)
}

// Close deregisters the signal listener and all watchers.
func (s *Store) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.closed = true
	s.watchers = make(map[int]func(Snapshot))
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Refresh re-fetches the identity. Any failure clears the identity. When calls overlap,
// a response is only applied if no newer call has applied its own; the diff compares
// against the identity that was authoritative right before this call's write.
func (s *Store) Refresh(ctx context.Context) *permissions.Identity {
	s.mu.Lock()
	s.issued++
	gen := s.issued
	s.inflight++
	s.mu.Unlock()
	s.publish()

	next, err := s.fetcher.FetchCurrentUser(ctx)
	if err == nil && next == nil {
		err = errNoIdentity
	}

	s.mu.Lock()
	s.inflight--
	if gen < s.applied {
		current := s.identity
		s.mu.Unlock()
		s.observe("stale")
		s.logger.Debug("identity: discard stale refresh", slog.Uint64("generation", gen))
		s.publish()
		return current
	}
	s.applied = gen

	var diff permissions.Diff
	if err != nil {
		s.identity = nil
		s.settled = StateUnresolved
	} else {
		prev := s.identity
		s.identity = next.Clone()
		s.settled = StateResolved
		diff = permissions.ComputeDiff(prev, s.identity)
	}
	current := s.identity
	notifier := s.notifier
	s.mu.Unlock()

	if err != nil {
		s.observe("failed")
		s.logger.Warn("identity: refresh failed", slog.Any("error", err))
	} else {
		s.observe("resolved")
	}
	if len(diff) > 0 && notifier != nil {
		notifier.Push(notify.PermissionsUpdated(diff))
	}
	s.publish()
	return current
}

// Clear drops the identity, as on logout.
func (s *Store) Clear() {
	s.mu.Lock()
	s.issued++
	s.applied = s.issued
	s.identity = nil
	s.settled = StateUnresolved
	s.mu.Unlock()
	s.publish()
}

// Identity returns the resolved identity, or nil. The value is shared and must be treated
// as read-only.
func (s *Store) Identity() *permissions.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// State returns the current resolution state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

// Loading reports whether any refresh is in flight.
func (s *Store) Loading() bool {
	return s.State() == StateLoading
}

// Snapshot returns identity and state read together.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Watch registers fn to run after every state or identity change. fn must not block.
func (s *Store) Watch(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || fn == nil {
		return func() {}
	}
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Store) stateLocked() State {
	if s.inflight > 0 {
		return StateLoading
	}
	return s.settled
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{Identity: s.identity, State: s.stateLocked()}
}

func (s *Store) watchersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(s.watchers))
	for _, fn := range s.watchers {
		out = append(out, fn)
	}
	return out
}

func (s *Store) observe(result string) {
	if s.observer != nil {
		s.observer.ObserveRefresh(result)
	}
}

// publish delivers the current snapshot to every watcher. Overlapping refreshes may
// deliver the same state twice but never an older state after a newer one.
func (s *Store) publish() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.mu.RLock()
	snap := s.snapshotLocked()
	watchers := s.watchersLocked()
	s.mu.RUnlock()
	for _, fn := range watchers {
		fn(snap)
	}
}
