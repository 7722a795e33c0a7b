package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/learnhub/console/internal/jobs"
)

// TokenPurger deletes expired credentials.
type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenPurgeJob drops bearer credentials once they expired.
type TokenPurgeJob struct {
	Tokens  TokenPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewTokenPurgeJob wires dependencies for the purge handler.
func NewTokenPurgeJob(tokens TokenPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *TokenPurgeJob {
	return &TokenPurgeJob{Tokens: tokens, Logger: logger, Metrics: metrics, now: time.Now}
}

// Handle processes TaskPurgeExpiredTokens tasks.
func (j *TokenPurgeJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Tokens == nil {
		return errors.New("token purge: handler not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	run := metrics.Start(ctx, TaskPurgeExpiredTokens)
	defer func() {
		resultErr = run.Finish(resultErr)
	}()

	now := time.Now
	if j.now != nil {
		now = j.now
	}
	n, err := j.Tokens.PurgeExpiredTokens(ctx, now())
	if err != nil {
		return err
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("expired tokens purged", slog.Int64("count", n))
	return nil
}
