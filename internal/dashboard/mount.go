// Package dashboard hosts the browsing contexts of the admin dashboard: one Mount per open
// tab, each with its own identity cache, signal endpoint, toast queue and menu.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/learnhub/console/internal/client"
	"github.com/learnhub/console/internal/crosstab"
	"github.com/learnhub/console/internal/identity"
	"github.com/learnhub/console/internal/navigation"
	"github.com/learnhub/console/internal/notify"
	"github.com/learnhub/console/internal/permissions"
	"github.com/learnhub/console/internal/rbac"
)

// Backend is everything a mount asks of the staff API.
type Backend interface {
	identity.Fetcher
	rbac.StaffClient
}

// Observer records mount level metrics. *observability.Metrics satisfies it.
type Observer interface {
	crosstab.Observer
	identity.Observer
	ObserveNotification(variant string)
	MountOpened()
	MountClosed()
}

type noopObserver struct{}

func (noopObserver) ObserveSignal(string)       {}
func (noopObserver) ObserveRefresh(string)      {}
func (noopObserver) ObserveNotification(string) {}
func (noopObserver) MountOpened()               {}
func (noopObserver) MountClosed()               {}

// Factory opens mounts for signed-in sessions.
type Factory struct {
	BackendURL string
	HTTPClient *http.Client
	Transport  crosstab.Transport
	Observer   Observer
	Logger     *slog.Logger
	Catalog    []permissions.Destination

	// NewBackend overrides the REST client, mostly for tests.
	NewBackend func(token string) Backend
}

func (f *Factory) backend(token string) Backend {
	if f.NewBackend != nil {
		return f.NewBackend(token)
	}
	return client.New(f.BackendURL, token, f.HTTPClient)
}

func (f *Factory) observer() Observer {
	if f.Observer == nil {
		return noopObserver{}
	}
	return f.Observer
}

func (f *Factory) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// Open mounts a new browsing context for sessionID and performs its eager identity refresh.
func (f *Factory) Open(ctx context.Context, sessionID, token string) (*Mount, error) {
	if f.Transport == nil {
		return nil, fmt.Errorf("dashboard: no signal transport")
	}
	observer := f.observer()
	logger := f.logger()

	signal, err := crosstab.Open(ctx, f.Transport, crosstab.WithObserver(observer))
	if err != nil {
		return nil, fmt.Errorf("dashboard: open signal: %w", err)
	}
	toasts := notify.NewChannel()
	backend := f.backend(token)
	store := identity.NewStore(backend,
		identity.WithNotifier(toasts),
		identity.WithObserver(observer),
		identity.WithLogger(logger.With(slog.String("context", signal.Origin()))),
	)

	m := &Mount{
		id:        signal.Origin(),
		sessionID: sessionID,
		logger:    logger,
		observer:  observer,
		backend:   backend,
		Store:     store,
		Signal:    signal,
		Toasts:    toasts,
		Surface:   navigation.NewSurface(store, f.Catalog),
		done:      make(chan struct{}),
	}
	m.stopToasts = toasts.Subscribe(func(ev notify.Event) {
		if ev.Kind == notify.EventPushed {
			observer.ObserveNotification(string(ev.Item.Variant))
		}
	})
	observer.MountOpened()
	store.Start(ctx, signal)
	return m, nil
}

// Mount is one browsing context. Close unmounts it.
type Mount struct {
	id        string
	sessionID string
	logger    *slog.Logger
	observer  Observer
	backend   Backend

	Store   *identity.Store
	Signal  *crosstab.Context
	Toasts  *notify.Channel
	Surface *navigation.Surface

	screenOnce sync.Once
	screen     *rbac.Screen

	mu         sync.Mutex
	streams    int
	idle       *time.Timer
	closed     bool
	done       chan struct{}
	stopToasts func()
}

// ID returns the browsing context identifier.
func (m *Mount) ID() string { return m.id }

// SessionID returns the session that opened the mount.
func (m *Mount) SessionID() string { return m.sessionID }

// Done is closed once the mount is unmounted.
func (m *Mount) Done() <-chan struct{} { return m.done }

// Closed reports whether the mount was unmounted.
func (m *Mount) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Screen returns the access control screen of this context, built on first use.
func (m *Mount) Screen() *rbac.Screen {
	m.screenOnce.Do(func() {
		m.screen = rbac.NewScreen(m.backend, m.Signal, m.Toasts, m.logger)
	})
	return m.screen
}

// Streams returns the number of attached event streams.
func (m *Mount) Streams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams
}

func (m *Mount) attach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams++
	if m.idle != nil {
		m.idle.Stop()
		m.idle = nil
	}
}

// detach schedules fn once the last stream is gone for grace.
func (m *Mount) detach(grace time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streams > 0 {
		m.streams--
	}
	if m.streams > 0 || m.closed {
		return
	}
	if m.idle != nil {
		m.idle.Stop()
	}
	m.idle = time.AfterFunc(grace, fn)
}

// Close tears down the store listener, the signal subscription and the toast timers.
// Safe to call more than once.
func (m *Mount) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.idle != nil {
		m.idle.Stop()
		m.idle = nil
	}
	m.mu.Unlock()

	m.Store.Close()
	m.Store.Clear()
	m.Signal.Close()
	if m.stopToasts != nil {
		m.stopToasts()
	}
	m.Toasts.Close()
	m.observer.MountClosed()
	close(m.done)
	m.logger.Debug("dashboard: unmounted", slog.String("context", m.id))
}
