package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"PowerDesk/internal/domain/models"
	domrepo "PowerDesk/internal/domain/repository"
	"PowerDesk/pkg/logger"
	"PowerDesk/pkg/queue"

	"github.com/google/uuid"
)

const AnalysisJobType = "analysis"

type analysisPayload struct {
	JobID     string              `json:"job_id"`
	SessionID string              `json:"session_id"`
	Kind      models.AnalysisKind `json:"kind"`
}

// Analyzer runs one analysis; AssistantUseCase implements it.
type Analyzer interface {
	Analyze(ctx context.Context, session string, kind models.AnalysisKind) (*models.Analysis, error)
}

// JobsUseCase submits analyses to the queue and tracks their status.
type JobsUseCase struct {
	queue queue.Publisher
	store domrepo.JobStore
	log   *logger.Logger
	now   func() time.Time
}

func NewJobsUseCase(q queue.Publisher, store domrepo.JobStore, log *logger.Logger) *JobsUseCase {
	return &JobsUseCase{queue: q, store: store, log: log, now: time.Now}
}

func (uc *JobsUseCase) Submit(ctx context.Context, session string, kind models.AnalysisKind) (*models.Job, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: analysis %q", ErrInvalidKind, kind)
	}
	now := uc.now().UTC()
	job := &models.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		SessionID: session,
		Status:    models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.store.Save(ctx, job); err != nil {
		return nil, err
	}
	msgID, err := uc.queue.Enqueue(ctx, AnalysisJobType, analysisPayload{JobID: job.ID, SessionID: session, Kind: kind})
	if err != nil {
		job.Status = models.JobFailed
		job.Error = err.Error()
		_ = uc.store.Save(ctx, job)
		return nil, fmt.Errorf("enqueue analysis: %w", err)
	}
	uc.log.Info("analysis job submitted",
		logger.String("job", job.ID),
		logger.String("message", msgID),
		logger.String("kind", string(kind)))
	return job, nil
}

func (uc *JobsUseCase) Get(ctx context.Context, id string) (*models.Job, error) {
	return uc.store.Get(ctx, id)
}

// AnalysisJob is the queue handler for submitted analyses.
type AnalysisJob struct {
	analyzer Analyzer
	store    domrepo.JobStore
	log      *logger.Logger
	now      func() time.Time
}

func NewAnalysisJob(analyzer Analyzer, store domrepo.JobStore, log *logger.Logger) *AnalysisJob {
	return &AnalysisJob{analyzer: analyzer, store: store, log: log, now: time.Now}
}

var _ queue.ExhaustedJob = (*AnalysisJob)(nil)

func (j *AnalysisJob) Name() string { return "assistant analysis" }
func (j *AnalysisJob) Type() string { return AnalysisJobType }

// Handle returns an error only for upstream failures, which the queue retries.
// A job awaiting retry stays pending with the last error recorded.
func (j *AnalysisJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[analysisPayload](payload)
	if err != nil {
		return err
	}
	job, err := j.store.Get(ctx, p.JobID)
	if errors.Is(err, domrepo.ErrJobNotFound) {
		job = &models.Job{ID: p.JobID, Kind: p.Kind, SessionID: p.SessionID, CreatedAt: j.now().UTC()}
	} else if err != nil {
		return err
	}

	j.update(ctx, job, models.JobRunning, nil, "")
	a, err := j.analyzer.Analyze(ctx, p.SessionID, p.Kind)
	if err != nil {
		if errors.Is(err, ErrUpstream) {
			j.update(ctx, job, models.JobPending, nil, err.Error())
			return err
		}
		j.update(ctx, job, models.JobFailed, nil, err.Error())
		return nil
	}
	j.update(ctx, job, models.JobCompleted, a, "")
	return nil
}

// Exhausted marks the job failed after the queue gives up retrying.
func (j *AnalysisJob) Exhausted(ctx context.Context, payload json.RawMessage, err error) {
	p, perr := queue.ParsePayload[analysisPayload](payload)
	if perr != nil {
		return
	}
	job, gerr := j.store.Get(ctx, p.JobID)
	if gerr != nil {
		j.log.Warn("load exhausted job", logger.String("job", p.JobID), logger.Error(gerr))
		return
	}
	j.update(ctx, job, models.JobFailed, nil, err.Error())
}

func (j *AnalysisJob) update(ctx context.Context, job *models.Job, status models.JobStatus, res *models.Analysis, msg string) {
	job.Status = status
	job.Result = res
	job.Error = msg
	job.UpdatedAt = j.now().UTC()
	if err := j.store.Save(ctx, job); err != nil {
		j.log.Warn("save job status",
			logger.String("job", job.ID),
			logger.String("status", string(status)),
			logger.Error(err))
	}
}

var _ queue.Job = (*AnalysisJob)(nil)
