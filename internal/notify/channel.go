// Package notify implements the transient toast queue shown by every dashboard screen.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Variant selects the visual severity of a toast.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantSuccess     Variant = "success"
	VariantDestructive Variant = "destructive"
)

// DefaultDuration applies when an item is pushed without a duration.
const DefaultDuration = 5 * time.Second

// Item is one transient message.
type Item struct {
	ID          string
	Title       string
	Description string
	Variant     Variant
	Duration    time.Duration
	CreatedAt   time.Time
}

// EventKind describes a queue mutation.
type EventKind string

const (
	EventPushed    EventKind = "pushed"
	EventDismissed EventKind = "dismissed"
)

// Event is delivered to subscribers after the queue changed.
type Event struct {
	Kind EventKind
	Item Item
}

// Channel is an in-process toast queue. Items expire on their own after their duration;
// the channel never drops items for capacity reasons.
type Channel struct {
	mu          sync.Mutex
	items       []Item
	timers      map[string]expiry
	nextExpiry  uint64
	subscribers map[int]func(Event)
	nextSub     int
	closed      bool
	now         func() time.Time
}

// NewChannel returns an empty channel.
func NewChannel() *Channel {
	return &Channel{
		timers:      make(map[string]expiry),
		subscribers: make(map[int]func(Event)),
		now:         time.Now,
	}
}

// Push enqueues item and schedules its expiry. It returns the item identifier, or an
// empty string once the channel is closed.
func (c *Channel) Push(item Item) string {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Duration <= 0 {
		item.Duration = DefaultDuration
	}
	if item.Variant == "" {
		item.Variant = VariantDefault
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ""
	}
	item.CreatedAt = c.now()
	c.removeLocked(item.ID)
	c.items = append([]Item{item}, c.items...)
	id := item.ID
	c.nextExpiry++
	seq := c.nextExpiry
	c.timers[id] = expiry{seq: seq, timer: time.AfterFunc(item.Duration, func() { c.expire(id, seq) })}
	subs := c.subscribersLocked()
	c.mu.Unlock()

	publish(subs, Event{Kind: EventPushed, Item: item})
	return id
}

// Dismiss removes an item immediately. Unknown or already removed ids are ignored.
func (c *Channel) Dismiss(id string) {
	c.mu.Lock()
	item, ok := c.removeLocked(id)
	if !ok {
		c.mu.Unlock()
		return
	}
	subs := c.subscribersLocked()
	c.mu.Unlock()

	publish(subs, Event{Kind: EventDismissed, Item: item})
}

// expire dismisses id unless it was pushed again since the timer seq was armed. A stopped
// timer may already be running its func.
func (c *Channel) expire(id string, seq uint64) {
	c.mu.Lock()
	if e, ok := c.timers[id]; !ok || e.seq != seq {
		c.mu.Unlock()
		return
	}
	item, ok := c.removeLocked(id)
	if !ok {
		c.mu.Unlock()
		return
	}
	subs := c.subscribersLocked()
	c.mu.Unlock()

	publish(subs, Event{Kind: EventDismissed, Item: item})
}

// Items returns the live items, newest first.
func (c *Channel) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Subscribe registers fn for queue events. fn runs on the mutating goroutine and must not
// block.
func (c *Channel) Subscribe(fn func(Event)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || fn == nil {
		return func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// Close stops pending expiry timers and drops subscribers.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, e := range c.timers {
		e.timer.Stop()
		delete(c.timers, id)
	}
	c.items = nil
	c.subscribers = make(map[int]func(Event))
}

func (c *Channel) removeLocked(id string) (Item, bool) {
	for i, item := range c.items {
		if item.ID != id {
			continue
		}
		c.items = append(c.items[:i:i], c.items[i+1:]...)
		if e, ok := c.timers[id]; ok {
			e.timer.Stop()
			delete(c.timers, id)
		}
		return item, true
	}
	return Item{}, false
}

type expiry struct {
	seq   uint64
	timer *time.Timer
}

func (c *Channel) subscribersLocked() []func(Event) {
	subs := make([]func(Event), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func publish(subs []func(Event), evt Event) {
	for _, fn := range subs {
		fn(evt)
	}
}
