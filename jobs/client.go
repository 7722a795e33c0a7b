package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/learnhub/console/internal/staff"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client submits jobs to the queue.
type Client struct {
	client enqueuer
	now    func() time.Time
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts), now: time.Now}, nil
}

// EnqueuePermissionChanged enqueues a permission audit task.
func (c *Client) EnqueuePermissionChanged(ctx context.Context, payload PermissionChangedPayload) (*asynq.TaskInfo, error) {
	task, err := NewPermissionChangedTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// PermissionChanged lets the staff service audit through the queue.
func (c *Client) PermissionChanged(ctx context.Context, change staff.PermissionChange) error {
	_, err := c.EnqueuePermissionChanged(ctx, PayloadFromChange(change, c.now()))
	return err
}

var _ staff.Auditor = (*Client)(nil)

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
