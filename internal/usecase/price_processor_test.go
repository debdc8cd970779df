package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"PowerDesk/internal/domain/models"
	"PowerDesk/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	batches [][]*models.MarketPrice
	single  []*models.MarketPrice
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, price *models.MarketPrice) error {
	p.single = append(p.single, price)
	return p.err
}

func (p *fakePublisher) PublishBatch(_ context.Context, prices []*models.MarketPrice) error {
	p.batches = append(p.batches, prices)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

type fakeStorage struct {
	stored []*models.MarketPrice
	err    error
}

func (s *fakeStorage) Init(context.Context) error { return nil }
func (s *fakeStorage) Store(_ context.Context, p *models.MarketPrice) error {
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, p)
	return nil
}
func (s *fakeStorage) StoreBatch(_ context.Context, ps []*models.MarketPrice) error {
	s.stored = append(s.stored, ps...)
	return s.err
}
func (s *fakeStorage) Query(context.Context, string, time.Time, time.Time, int) ([]*models.MarketPrice, error) {
	return s.stored, nil
}
func (s *fakeStorage) Health(context.Context) error { return nil }
func (s *fakeStorage) Close() error                 { return nil }

func prices(n int) []*models.MarketPrice {
	out := make([]*models.MarketPrice, n)
	for i := range out {
		out[i] = &models.MarketPrice{Region: fmt.Sprintf("R%d", i%3), Timestamp: time.Unix(int64(i), 0), Price: dec("0.1")}
	}
	return out
}

func TestPriceProcessorBatchesToKafka(t *testing.T) {
	pub := &fakePublisher{}
	p := NewPriceProcessor(pub, nil, newNopMetrics(), BackendKafka, 2)

	require.NoError(t, p.ProcessBatch(context.Background(), prices(5)))
	require.Len(t, pub.batches, 3)
	assert.Len(t, pub.batches[2], 1)
}

func TestPriceProcessorClickHouse(t *testing.T) {
	store := &fakeStorage{}
	p := NewPriceProcessor(nil, store, newNopMetrics(), BackendClickHouse, 100)
	require.NoError(t, p.Process(context.Background(), prices(1)[0]))
	assert.Len(t, store.stored, 1)
}

func TestPriceProcessorErrors(t *testing.T) {
	m := newNopMetrics()
	p := NewPriceProcessor(&fakePublisher{err: errors.New("no leader")}, nil, m, BackendKafka, 10)
	assert.Error(t, p.Process(context.Background(), prices(1)[0]))
	assert.Error(t, p.Process(context.Background(), nil))

	unknown := NewPriceProcessor(nil, nil, m, "postgres", 10)
	assert.Error(t, unknown.ProcessBatch(context.Background(), prices(1)))
	assert.Contains(t, m.errors, "process")
	assert.Contains(t, m.errors, "process_batch")
}

func TestKafkaPricesHandler(t *testing.T) {
	store := &fakeStorage{}
	h := NewKafkaPricesHandler("market-prices", store, newNopMetrics())
	assert.Equal(t, "market-prices", h.Topic())

	b, err := json.Marshal(repository.NewPriceMessage(&models.MarketPrice{
		Region: "North", Timestamp: time.Now(), Price: dec("0.125"), Source: models.SourceFeed,
	}))
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), b))
	require.Len(t, store.stored, 1)
	assert.Equal(t, "0.125", store.stored[0].Price.String())

	assert.Error(t, h.Handle(context.Background(), []byte("{")))
}

type memReports struct{ saved []*models.Analysis }

func (r *memReports) Save(_ context.Context, a *models.Analysis) error {
	r.saved = append(r.saved, a)
	return nil
}

func (r *memReports) List(context.Context, string, models.AnalysisKind, int) ([]*models.Analysis, error) {
	return r.saved, nil
}

func TestKafkaReportsHandler(t *testing.T) {
	store := &memReports{}
	h := NewKafkaReportsHandler("analysis-reports", store, newNopMetrics())

	b, err := json.Marshal(&models.Analysis{ID: "a-1", Kind: models.AnalysisRisks, SessionID: session, Summary: "watch South"})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), b))
	require.Len(t, store.saved, 1)
	assert.Equal(t, models.AnalysisRisks, store.saved[0].Kind)
}
