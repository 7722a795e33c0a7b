package crosstab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisTransport shares ticks across processes. The marker is INCR'd on Key and the
// tick is published on the Key channel; one subscription per process feeds local
// listeners.
type RedisTransport struct {
	fanout
	client *redis.Client
	key    string
	logger *slog.Logger

	mu      sync.Mutex
	pubsub  *redis.PubSub
	started bool
}

// NewRedisTransport builds a transport on client.
func NewRedisTransport(client *redis.Client, logger *slog.Logger) *RedisTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisTransport{client: client, key: Key, logger: logger}
}

// Start subscribes to the shared channel until ctx ends or Close is called.
func (r *RedisTransport) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	pubsub := r.client.Subscribe(ctx, r.key)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("crosstab: subscribe %s: %w", r.key, err)
	}
	r.pubsub = pubsub
	r.started = true

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				tick, err := parseTick(msg.Payload)
				if err != nil {
					r.logger.Warn("crosstab: drop malformed tick", slog.String("payload", msg.Payload), slog.Any("error", err))
					continue
				}
				r.deliver(tick)
			}
		}
	}()
	return nil
}

// Publish bumps the shared marker and broadcasts it.
func (r *RedisTransport) Publish(ctx context.Context, origin string) (Tick, error) {
	marker, err := r.client.Incr(ctx, r.key).Result()
	if err != nil {
		return Tick{}, fmt.Errorf("crosstab: bump marker: %w", err)
	}
	t := Tick{Marker: marker, Origin: origin}
	if err := r.client.Publish(ctx, r.key, formatTick(t)).Err(); err != nil {
		return Tick{}, fmt.Errorf("crosstab: publish: %w", err)
	}
	return t, nil
}

// Listen registers fn for ticks received by this process.
func (r *RedisTransport) Listen(ctx context.Context, fn func(Tick)) (func(), error) {
	return r.add(fn), nil
}

// Close ends the subscription.
func (r *RedisTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub == nil {
		return nil
	}
	err := r.pubsub.Close()
	r.pubsub = nil
	r.started = false
	return err
}

func formatTick(t Tick) string {
	return strconv.FormatInt(t.Marker, 10) + ":" + t.Origin
}

func parseTick(payload string) (Tick, error) {
	marker, origin, ok := strings.Cut(payload, ":")
	if !ok {
		return Tick{}, errors.New("missing origin")
	}
	n, err := strconv.ParseInt(marker, 10, 64)
	if err != nil {
		return Tick{}, err
	}
	return Tick{Marker: n, Origin: origin}, nil
}
