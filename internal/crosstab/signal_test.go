package crosstab

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveSignal(direction string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[direction]++
}

func (o *countingObserver) get(direction string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[direction]
}

func openPair(t *testing.T, transport Transport) (*Context, *Context) {
	t.Helper()
	a, err := Open(context.Background(), transport)
	require.NoError(t, err)
	b, err := Open(context.Background(), transport)
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestEmitWakesOtherContextsOnly(t *testing.T) {
	writer, reader := openPair(t, NewMemoryTransport())

	var writerHits, readerHits atomic.Int32
	writer.Subscribe(func() { writerHits.Add(1) })
	reader.Subscribe(func() { readerHits.Add(1) })

	require.NoError(t, writer.Emit(context.Background()))

	assert.Eventually(t, func() bool { return readerHits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), writerHits.Load(), "the writer's own context must not observe its write")
}

func TestDispatchStaysInContext(t *testing.T) {
	a, b := openPair(t, NewMemoryTransport())

	var aHits, bHits int
	a.Subscribe(func() { aHits++ })
	b.Subscribe(func() { bHits++ })

	a.Dispatch()
	assert.Equal(t, 1, aHits)
	assert.Equal(t, 0, bHits)
}

func TestUnsubscribeAndClose(t *testing.T) {
	writer, reader := openPair(t, NewMemoryTransport())

	var hits atomic.Int32
	unsubscribe := reader.Subscribe(func() { hits.Add(1) })
	unsubscribe()
	require.NoError(t, writer.Emit(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), hits.Load())

	writer.Close()
	writer.Close()
	assert.ErrorIs(t, writer.Emit(context.Background()), ErrClosed)
}

func TestMemoryMarkerIsMonotonic(t *testing.T) {
	transport := NewMemoryTransport()
	frozen := time.Unix(1700000000, 0)
	transport.now = func() time.Time { return frozen }

	first, err := transport.Publish(context.Background(), "a")
	require.NoError(t, err)
	second, err := transport.Publish(context.Background(), "a")
	require.NoError(t, err)
	assert.Greater(t, second.Marker, first.Marker)
}

func TestObserverCountsTraffic(t *testing.T) {
	obs := &countingObserver{}
	transport := NewMemoryTransport()
	writer, err := Open(context.Background(), transport, WithObserver(obs), WithOrigin("writer"))
	require.NoError(t, err)
	defer writer.Close()
	reader, err := Open(context.Background(), transport, WithObserver(obs))
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, "writer", writer.Origin())
	require.NoError(t, writer.Emit(context.Background()))
	reader.Dispatch()

	assert.Equal(t, 1, obs.get("emitted"))
	assert.Equal(t, 1, obs.get("received"))
	assert.Equal(t, 1, obs.get("dispatched"))
}

func TestRedisTransportAcrossContexts(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := NewRedisTransport(client, nil)
	require.NoError(t, transport.Start(ctx))
	defer transport.Close()

	writer, reader := openPair(t, transport)
	var readerHits, writerHits atomic.Int32
	reader.Subscribe(func() { readerHits.Add(1) })
	writer.Subscribe(func() { writerHits.Add(1) })

	require.NoError(t, writer.Emit(ctx))
	assert.Eventually(t, func() bool { return readerHits.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), writerHits.Load())

	marker, err := client.Get(ctx, Key).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(1), marker)
}

func TestParseTick(t *testing.T) {
	tick, err := parseTick(formatTick(Tick{Marker: 42, Origin: "tab-1"}))
	require.NoError(t, err)
	assert.Equal(t, Tick{Marker: 42, Origin: "tab-1"}, tick)

	_, err = parseTick("42")
	assert.Error(t, err)
	_, err = parseTick("x:tab")
	assert.Error(t, err)
}
