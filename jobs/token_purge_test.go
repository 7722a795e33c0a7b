package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/learnhub/console/internal/jobs"
)

type stubPurger struct {
	cutoff time.Time
	n      int64
	err    error
}

func (s *stubPurger) PurgeExpiredTokens(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.n, s.err
}

func TestTokenPurgeJobUsesNow(t *testing.T) {
	registry := prometheus.NewRegistry()
	purger := &stubPurger{n: 3}
	job := NewTokenPurgeJob(purger, nil, jobmetrics.NewMetrics(registry))
	frozen := time.Date(2026, 10, 1, 2, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return frozen }

	require.NoError(t, job.Handle(context.Background(), NewPurgeExpiredTokensTask()))
	assert.Equal(t, frozen, purger.cutoff)

	count, err := testutil.GatherAndCount(registry, "learnhub_job_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTokenPurgeJobPropagatesErrors(t *testing.T) {
	job := NewTokenPurgeJob(&stubPurger{err: errors.New("db down")}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	assert.Error(t, job.Handle(context.Background(), NewPurgeExpiredTokensTask()))

	var unconfigured *TokenPurgeJob
	assert.Error(t, unconfigured.Handle(context.Background(), NewPurgeExpiredTokensTask()))
}
