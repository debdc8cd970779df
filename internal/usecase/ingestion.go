package usecase

import (
	"context"
	"fmt"
	"time"

	"PowerDesk/internal/domain/models"
	domrepo "PowerDesk/internal/domain/repository"
	"PowerDesk/internal/services/analysis"
	"PowerDesk/pkg/document"
	"PowerDesk/pkg/logger"
	"PowerDesk/pkg/tabular"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RecordSink receives price records extracted from uploads.
type RecordSink interface {
	ProcessBatch(ctx context.Context, prices []*models.MarketPrice) error
}

// UploadRecorder counts accepted uploads.
type UploadRecorder interface {
	Uploaded(kind string)
}

// Upload is one file bound to a dataset kind.
type Upload struct {
	Kind     models.DatasetKind
	Filename string
	Data     []byte
}

// IngestionUseCase parses uploads and keeps them as session datasets.
type IngestionUseCase struct {
	store    domrepo.DatasetStore
	sink     RecordSink
	recorder UploadRecorder
	log      *logger.Logger
	now      func() time.Time
}

func NewIngestionUseCase(store domrepo.DatasetStore, sink RecordSink, recorder UploadRecorder, log *logger.Logger) *IngestionUseCase {
	return &IngestionUseCase{store: store, sink: sink, recorder: recorder, log: log, now: time.Now}
}

type parsed struct {
	dataset *models.Dataset
	prices  []*models.MarketPrice
	skipped int
}

// Upload parses one file and makes it the session's current dataset of its kind.
func (uc *IngestionUseCase) Upload(ctx context.Context, session string, up Upload) (*models.DatasetSummary, error) {
	p, err := uc.parse(session, up)
	if err != nil {
		return nil, err
	}
	return uc.commit(ctx, p)
}

// UploadMany parses files concurrently and stores them once all parsed.
// Summaries follow the order of uploads.
func (uc *IngestionUseCase) UploadMany(ctx context.Context, session string, ups []Upload) ([]*models.DatasetSummary, error) {
	seen := make(map[models.DatasetKind]bool, len(ups))
	for _, up := range ups {
		if seen[up.Kind] {
			return nil, fmt.Errorf("%w: %s uploaded twice", ErrInvalidKind, up.Kind)
		}
		seen[up.Kind] = true
	}

	results := make([]*parsed, len(ups))
	g, gctx := errgroup.WithContext(ctx)
	for i, up := range ups {
		i, up := i, up
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := uc.parse(session, up)
			if err != nil {
				return fmt.Errorf("%s: %w", up.Filename, err)
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*models.DatasetSummary, 0, len(results))
	for _, p := range results {
		s, err := uc.commit(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (uc *IngestionUseCase) parse(session string, up Upload) (*parsed, error) {
	if !up.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, up.Kind)
	}
	format, err := tabular.DetectFormat(up.Filename)
	if err != nil {
		return nil, err
	}
	if !up.Kind.Accepts(format) {
		return nil, fmt.Errorf("%w: %s cannot be %s", ErrKindMismatch, up.Kind, format)
	}

	now := uc.now().UTC()
	d := &models.Dataset{
		ID:         uuid.NewString(),
		SessionID:  session,
		Kind:       up.Kind,
		Filename:   up.Filename,
		Format:     format,
		UploadedAt: now,
	}
	p := &parsed{dataset: d}

	if !up.Kind.Tabular() {
		text, err := document.ExtractText(string(format), up.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidUpload, err)
		}
		d.Text = text
		return p, nil
	}

	t, err := tabular.Parse(format, up.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUpload, err)
	}
	d.Table = t
	d.Rows = t.Len()

	switch up.Kind {
	case models.KindMarket:
		prices, skipped, err := analysis.ExtractMarketPrices(t, models.SourceUpload, now)
		if err == nil {
			p.prices, p.skipped = prices, skipped
		}
	case models.KindTrades:
		trades, skipped, err := analysis.ParseTrades(t)
		if err == nil {
			p.prices, p.skipped = analysis.TradePrices(trades, now), skipped
		}
	}
	return p, nil
}

func (uc *IngestionUseCase) commit(ctx context.Context, p *parsed) (*models.DatasetSummary, error) {
	d := p.dataset
	if err := uc.store.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("save dataset: %w", err)
	}
	if uc.recorder != nil {
		uc.recorder.Uploaded(string(d.Kind))
	}

	s := d.Summary()
	s.Skipped = p.skipped
	if len(p.prices) > 0 && uc.sink != nil {
		// records feed price history; the upload stands even if this fails
		if err := uc.sink.ProcessBatch(ctx, p.prices); err != nil {
			uc.log.Warn("forward extracted prices",
				logger.String("session", d.SessionID),
				logger.String("kind", string(d.Kind)),
				logger.Error(err))
		} else {
			s.Extracted = len(p.prices)
		}
	}

	uc.log.Info("dataset uploaded",
		logger.String("session", d.SessionID),
		logger.String("kind", string(d.Kind)),
		logger.String("format", string(d.Format)),
		logger.Int("rows", d.Rows))
	return s, nil
}

func (uc *IngestionUseCase) Get(ctx context.Context, session string, kind models.DatasetKind) (*models.Dataset, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return uc.store.Get(ctx, session, kind)
}

func (uc *IngestionUseCase) List(ctx context.Context, session string) ([]*models.DatasetSummary, error) {
	ds, err := uc.store.List(ctx, session)
	if err != nil {
		return nil, err
	}
	out := make([]*models.DatasetSummary, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Summary())
	}
	return out, nil
}

func (uc *IngestionUseCase) Delete(ctx context.Context, session string, kind models.DatasetKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return uc.store.Delete(ctx, session, kind)
}
