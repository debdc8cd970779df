package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"PowerDesk/internal/domain/models"
	"PowerDesk/internal/repository"
	"PowerDesk/pkg/cache"
	"PowerDesk/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureQueue struct {
	msgType string
	payload []byte
	err     error
}

func (q *captureQueue) Enqueue(_ context.Context, msgType string, payload interface{}) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	q.msgType, q.payload = msgType, b
	return "msg-1", nil
}

type analyzerFunc func(ctx context.Context, session string, kind models.AnalysisKind) (*models.Analysis, error)

func (f analyzerFunc) Analyze(ctx context.Context, session string, kind models.AnalysisKind) (*models.Analysis, error) {
	return f(ctx, session, kind)
}

func newJobStore(t *testing.T) *repository.CacheJobStore {
	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	return repository.NewCacheJobStore(mem, time.Hour)
}

func TestSubmitAndRunJob(t *testing.T) {
	ctx := context.Background()
	store := newJobStore(t)
	q := &captureQueue{}
	jobs := NewJobsUseCase(q, store, logger.NewNop())

	job, err := jobs.Submit(ctx, session, models.AnalysisTrades)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, AnalysisJobType, q.msgType)

	handler := NewAnalysisJob(analyzerFunc(func(_ context.Context, s string, k models.AnalysisKind) (*models.Analysis, error) {
		return &models.Analysis{ID: "a-1", Kind: k, SessionID: s, Summary: "sell North above 0.14"}, nil
	}), store, logger.NewNop())
	require.NoError(t, handler.Handle(ctx, q.payload))

	got, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "sell North above 0.14", got.Result.Summary)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestAnalysisJobFailures(t *testing.T) {
	ctx := context.Background()
	store := newJobStore(t)
	q := &captureQueue{}
	jobs := NewJobsUseCase(q, store, logger.NewNop())

	job, err := jobs.Submit(ctx, session, models.AnalysisDeviation)
	require.NoError(t, err)

	permanent := NewAnalysisJob(analyzerFunc(func(context.Context, string, models.AnalysisKind) (*models.Analysis, error) {
		return nil, missing(models.AnalysisDeviation, models.KindForecast, models.KindActual)
	}), store, logger.NewNop())
	assert.NoError(t, permanent.Handle(ctx, q.payload), "missing input is not retried")
	got, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Contains(t, got.Error, "forecast, actual")

	transient := NewAnalysisJob(analyzerFunc(func(context.Context, string, models.AnalysisKind) (*models.Analysis, error) {
		return nil, errors.Join(ErrUpstream, errors.New("timeout"))
	}), store, logger.NewNop())
	assert.ErrorIs(t, transient.Handle(ctx, q.payload), ErrUpstream)
}

func TestAnalysisJobStaysPendingWhileRetrying(t *testing.T) {
	ctx := context.Background()
	store := newJobStore(t)
	q := &captureQueue{}
	jobs := NewJobsUseCase(q, store, logger.NewNop())

	job, err := jobs.Submit(ctx, session, models.AnalysisMarket)
	require.NoError(t, err)

	upstream := errors.Join(ErrUpstream, errors.New("rate limited"))
	handler := NewAnalysisJob(analyzerFunc(func(context.Context, string, models.AnalysisKind) (*models.Analysis, error) {
		return nil, upstream
	}), store, logger.NewNop())
	require.ErrorIs(t, handler.Handle(ctx, q.payload), ErrUpstream)

	got, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status)
	assert.Contains(t, got.Error, "rate limited")

	handler.Exhausted(ctx, q.payload, upstream)
	got, err = jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Contains(t, got.Error, "rate limited")
}

func TestSubmitRejectsUnknownKind(t *testing.T) {
	jobs := NewJobsUseCase(&captureQueue{}, newJobStore(t), logger.NewNop())
	_, err := jobs.Submit(context.Background(), session, "weather")
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestSubmitMarksJobFailedWhenQueueDown(t *testing.T) {
	store := newJobStore(t)
	jobs := NewJobsUseCase(&captureQueue{err: errors.New("redis down")}, store, logger.NewNop())
	_, err := jobs.Submit(context.Background(), session, models.AnalysisMarket)
	assert.Error(t, err)
}
