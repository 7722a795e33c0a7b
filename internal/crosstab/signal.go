// Package crosstab broadcasts "the user record may have changed" wake-ups between browsing
// contexts. A tick carries no data: receivers always re-fetch ground truth.
package crosstab

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

const (
	// Key is the well-known shared key every context writes its marker to.
	Key = "learnhub:user-updated"
	// LocalEvent names the in-process event used by same-context listeners.
	LocalEvent = "user-updated"
)

// ErrClosed is returned when emitting from a closed context.
var ErrClosed = errors.New("crosstab: context closed")

// Tick is one write to the shared key. Marker only grows; Origin identifies the writer so
// the writer's own context can skip it.
type Tick struct {
	Marker int64
	Origin string
}

// Transport carries ticks between contexts.
type Transport interface {
	Publish(ctx context.Context, origin string) (Tick, error)
	Listen(ctx context.Context, fn func(Tick)) (stop func(), err error)
}

// Observer records signal traffic. Nil-safe.
type Observer interface {
	ObserveSignal(direction string)
}

// Context is the signal endpoint of one browsing context.
type Context struct {
	origin    string
	transport Transport
	observer  Observer

	mu       sync.Mutex
	handlers map[int]func()
	nextID   int
	closed   bool

	wake chan struct{}
	stop func()
	done chan struct{}
}

// Option configures a Context.
type Option func(*Context)

// WithObserver attaches a traffic observer.
func WithObserver(o Observer) Option {
	return func(c *Context) { c.observer = o }
}

// WithOrigin overrides the random origin id.
func WithOrigin(origin string) Option {
	return func(c *Context) {
		if origin != "" {
			c.origin = origin
		}
	}
}

// Open attaches a new context to transport. Close releases it.
func Open(ctx context.Context, transport Transport, opts ...Option) (*Context, error) {
	c := &Context{
		origin:    uuid.NewString(),
		transport: transport,
		handlers:  make(map[int]func()),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	stop, err := transport.Listen(ctx, c.receive)
	if err != nil {
		return nil, err
	}
	c.stop = stop
	go c.loop()
	return c, nil
}

// Origin returns the identifier this context stamps on its writes.
func (c *Context) Origin() string {
	return c.origin
}

// Emit writes a fresh marker to the shared key. Every other context is woken; this one
// is not.
func (c *Context) Emit(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if _, err := c.transport.Publish(ctx, c.origin); err != nil {
		return err
	}
	c.observe("emitted")
	return nil
}

// Subscribe registers h for wake-ups from other contexts and for Dispatch. Handlers must
// be idempotent: a single logical change may wake them more than once.
func (c *Context) Subscribe(h func()) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || h == nil {
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.handlers[id] = h
	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

// Dispatch fires the in-process event: only this context's handlers run, synchronously.
func (c *Context) Dispatch() {
	c.observe("dispatched")
	c.run()
}

// Close detaches from the transport and drops handlers.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.handlers = make(map[int]func())
	c.mu.Unlock()

	if c.stop != nil {
		c.stop()
	}
	close(c.done)
}

func (c *Context) receive(t Tick) {
	if t.Origin == c.origin {
		return
	}
	c.observe("received")
	select {
	case c.wake <- struct{}{}:
	default:
		// a wake-up is already pending and will re-fetch after this write
	}
}

func (c *Context) loop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
			c.run()
		}
	}
}

func (c *Context) run() {
	c.mu.Lock()
	handlers := make([]func(), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

func (c *Context) observe(direction string) {
	if c.observer != nil {
		c.observer.ObserveSignal(direction)
	}
}
