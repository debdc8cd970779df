package repository

import (
	"context"
	"errors"
	"time"

	"PowerDesk/internal/domain/models"
)

var (
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrJobNotFound     = errors.New("job not found")
)

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.MarketPrice, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Publisher interface {
	Publish(ctx context.Context, p *models.MarketPrice) error
	PublishBatch(ctx context.Context, prices []*models.MarketPrice) error
	Close() error
}

type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, p *models.MarketPrice) error
	StoreBatch(ctx context.Context, prices []*models.MarketPrice) error
	Query(ctx context.Context, region string, from, to time.Time, limit int) ([]*models.MarketPrice, error)
	Health(ctx context.Context) error // ping
	Close() error
}

type Metrics interface {
	RecordMessageSent(backend, region string)
	RecordError(kind string)
	RecordLastPrice(region string, price float64)
	RecordLatency(op string, seconds float64)
}

// AnalysisMetrics is the extra surface the assistant reports on.
type AnalysisMetrics interface {
	Metrics
	RecordAnalysis(kind string, ok bool)
	RecordTokens(provider, model string, prompt, completion int64)
}

// DatasetStore keeps the current dataset of each kind per session.
type DatasetStore interface {
	Save(ctx context.Context, d *models.Dataset) error
	Get(ctx context.Context, sessionID string, kind models.DatasetKind) (*models.Dataset, error)
	List(ctx context.Context, sessionID string) ([]*models.Dataset, error)
	Delete(ctx context.Context, sessionID string, kind models.DatasetKind) error
	Sessions(ctx context.Context) ([]string, error)
}

// ReportStore persists generated analyses.
type ReportStore interface {
	Save(ctx context.Context, a *models.Analysis) error
	List(ctx context.Context, sessionID string, kind models.AnalysisKind, limit int) ([]*models.Analysis, error)
}

// ReportPublisher ships analyses to the reports topic.
type ReportPublisher interface {
	PublishReport(ctx context.Context, a *models.Analysis) error
}

type JobStore interface {
	Save(ctx context.Context, j *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
}
