package crosstab

import (
	"context"
	"sync"
	"time"
)

// fanout delivers ticks to the listeners registered in this process.
type fanout struct {
	mu        sync.Mutex
	listeners map[int]func(Tick)
	nextID    int
}

func (f *fanout) add(fn func(Tick)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listeners == nil {
		f.listeners = make(map[int]func(Tick))
	}
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fanout) deliver(t Tick) {
	f.mu.Lock()
	listeners := make([]func(Tick), 0, len(f.listeners))
	for _, fn := range f.listeners {
		listeners = append(listeners, fn)
	}
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(t)
	}
}

// MemoryTransport connects the contexts of a single process.
type MemoryTransport struct {
	fanout
	markerMu sync.Mutex
	marker   int64
	now      func() time.Time
}

// NewMemoryTransport returns an in-process transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{now: time.Now}
}

// Publish stamps a marker that never goes backwards, even if the clock does.
func (m *MemoryTransport) Publish(ctx context.Context, origin string) (Tick, error) {
	if err := ctx.Err(); err != nil {
		return Tick{}, err
	}
	m.markerMu.Lock()
	next := m.now().UnixNano()
	if next <= m.marker {
		next = m.marker + 1
	}
	m.marker = next
	m.markerMu.Unlock()

	t := Tick{Marker: next, Origin: origin}
	m.deliver(t)
	return t, nil
}

// Listen registers fn until stop is called.
func (m *MemoryTransport) Listen(ctx context.Context, fn func(Tick)) (func(), error) {
	return m.add(fn), nil
}
