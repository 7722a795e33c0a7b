package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/console/internal/permissions"
)

func TestPushAppliesDefaults(t *testing.T) {
	ch := NewChannel()
	defer ch.Close()

	id := ch.Push(Item{Title: "Saved"})
	require.NotEmpty(t, id)

	items := ch.Items()
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, DefaultDuration, items[0].Duration)
	assert.Equal(t, VariantDefault, items[0].Variant)
	assert.False(t, items[0].CreatedAt.IsZero())
}

func TestItemsNewestFirst(t *testing.T) {
	ch := NewChannel()
	defer ch.Close()

	first := ch.Push(Item{Title: "first"})
	second := ch.Push(Item{Title: "second"})
	third := ch.Push(Item{Title: "third"})

	var ids []string
	for _, item := range ch.Items() {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{third, second, first}, ids)
}

func TestDismissIsIdempotent(t *testing.T) {
	ch := NewChannel()
	defer ch.Close()

	var mu sync.Mutex
	var events []Event
	ch.Subscribe(func(evt Event) {
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
	})

	id := ch.Push(Item{Title: "bye"})
	ch.Dismiss(id)
	ch.Dismiss(id)
	ch.Dismiss("unknown")

	assert.Empty(t, ch.Items())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, EventPushed, events[0].Kind)
	assert.Equal(t, EventDismissed, events[1].Kind)
	assert.Equal(t, id, events[1].Item.ID)
}

func TestItemsExpire(t *testing.T) {
	ch := NewChannel()
	defer ch.Close()

	ch.Push(Item{Title: "short", Duration: 20 * time.Millisecond})
	keep := ch.Push(Item{Title: "long", Duration: time.Hour})

	assert.Eventually(t, func() bool {
		items := ch.Items()
		return len(items) == 1 && items[0].ID == keep
	}, time.Second, 5*time.Millisecond)
}

func TestNoCapOnConcurrentItems(t *testing.T) {
	ch := NewChannel()
	defer ch.Close()
	for i := 0; i < 100; i++ {
		ch.Push(Item{Title: "spam"})
	}
	assert.Len(t, ch.Items(), 100)
}

func TestUnsubscribeAndClose(t *testing.T) {
	ch := NewChannel()
	calls := 0
	cancel := ch.Subscribe(func(Event) { calls++ })
	ch.Push(Item{Title: "one"})
	cancel()
	ch.Push(Item{Title: "two"})
	assert.Equal(t, 1, calls)

	ch.Close()
	assert.Empty(t, ch.Items())
	assert.Empty(t, ch.Push(Item{Title: "late"}))
}

func TestPermissionsUpdated(t *testing.T) {
	item := PermissionsUpdated(permissions.Diff{{Capability: permissions.CapManageUsers, Granted: true}})
	assert.Equal(t, "Permissions updated", item.Title)
	assert.Equal(t, "manage users granted", item.Description)
}

func TestLateExpiryKeepsRepushedItem(t *testing.T) {
	ch := NewChannel()
	defer ch.Close()

	ch.Push(Item{ID: "sync", Title: "Syncing", Duration: time.Hour})
	ch.mu.Lock()
	armed := ch.timers["sync"].seq
	ch.mu.Unlock()

	ch.Push(Item{ID: "sync", Title: "Synced", Duration: time.Hour})
	ch.expire("sync", armed)

	items := ch.Items()
	require.Len(t, items, 1, "a timer from the replaced push must not dismiss its successor")
	assert.Equal(t, "Synced", items[0].Title)

	ch.mu.Lock()
	current := ch.timers["sync"].seq
	ch.mu.Unlock()
	ch.expire("sync", current)
	assert.Empty(t, ch.Items())
}
