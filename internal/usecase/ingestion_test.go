package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"PowerDesk/internal/domain/models"
	domrepo "PowerDesk/internal/domain/repository"
	"PowerDesk/internal/repository"
	"PowerDesk/pkg/logger"
	"PowerDesk/pkg/tabular"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct{ kinds []string }

func (r *countingRecorder) Uploaded(kind string) { r.kinds = append(r.kinds, kind) }

func newIngestion(sink RecordSink) (*IngestionUseCase, *repository.MemoryDatasetStore, *countingRecorder) {
	store := repository.NewMemoryDatasetStore(time.Hour)
	rec := &countingRecorder{}
	return NewIngestionUseCase(store, sink, rec, logger.NewNop()), store, rec
}

func TestUploadMarketCSV(t *testing.T) {
	sink := &captureSink{}
	uc, store, rec := newIngestion(sink)
	ctx := context.Background()

	data := []byte("Region,Price,Volume\nNorth,0.12,500\nSouth,n/a,700\nEast,0.14,600\n")
	s, err := uc.Upload(ctx, session, Upload{Kind: models.KindMarket, Filename: "prices.csv", Data: data})
	require.NoError(t, err)

	assert.Equal(t, 3, s.Rows)
	assert.Equal(t, tabular.FormatCSV, s.Format)
	assert.Equal(t, 2, s.Extracted)
	assert.Equal(t, 1, s.Skipped)
	require.NotNil(t, s.Preview)
	assert.Len(t, s.Preview.Rows, 3)
	assert.Len(t, sink.prices, 2)
	assert.Equal(t, models.SourceUpload, sink.prices[0].Source)
	assert.Equal(t, []string{"market"}, rec.kinds)

	d, err := store.Get(ctx, session, models.KindMarket)
	require.NoError(t, err)
	assert.Equal(t, s.ID, d.ID)
}

func TestUploadTradesFeedsSink(t *testing.T) {
	sink := &captureSink{}
	uc, _, _ := newIngestion(sink)

	s, err := uc.Upload(context.Background(), session, Upload{Kind: models.KindTrades, Filename: "log.csv", Data: []byte(tradesCSV)})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Extracted)
	require.Len(t, sink.prices, 2)
	assert.Equal(t, models.SourceTradeLog, sink.prices[0].Source)
}

func TestUploadKeepsDatasetWhenSinkFails(t *testing.T) {
	uc, store, _ := newIngestion(&captureSink{err: errors.New("broker down")})

	s, err := uc.Upload(context.Background(), session, Upload{Kind: models.KindMarket, Filename: "m.csv", Data: []byte(marketCSV)})
	require.NoError(t, err)
	assert.Zero(t, s.Extracted)
	_, err = store.Get(context.Background(), session, models.KindMarket)
	assert.NoError(t, err)
}

func TestUploadContractText(t *testing.T) {
	uc, _, _ := newIngestion(nil)

	s, err := uc.Upload(context.Background(), session, Upload{Kind: models.KindContract, Filename: "ppa.txt", Data: []byte(contractTxt)})
	require.NoError(t, err)
	assert.Equal(t, tabular.FormatTXT, s.Format)
	assert.Contains(t, s.TextPreview, "Windy Hill")
	assert.Nil(t, s.Preview)
}

func TestUploadRejects(t *testing.T) {
	uc, _, _ := newIngestion(nil)
	ctx := context.Background()

	tests := []struct {
		name string
		up   Upload
		want error
	}{
		{"contract as csv", Upload{Kind: models.KindContract, Filename: "ppa.csv", Data: []byte("a\n1\n")}, ErrKindMismatch},
		{"market as pdf", Upload{Kind: models.KindMarket, Filename: "m.pdf", Data: []byte("%PDF")}, ErrKindMismatch},
		{"unknown extension", Upload{Kind: models.KindMarket, Filename: "m.json", Data: []byte("{}")}, tabular.ErrUnsupportedFormat},
		{"unknown kind", Upload{Kind: "weather", Filename: "w.csv", Data: []byte("a\n1\n")}, ErrInvalidKind},
		{"empty csv", Upload{Kind: models.KindMarket, Filename: "m.csv", Data: []byte("  \n")}, ErrInvalidUpload},
		{"empty text", Upload{Kind: models.KindContract, Filename: "ppa.txt", Data: []byte("   ")}, ErrInvalidUpload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.Upload(ctx, session, tt.up)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUploadMany(t *testing.T) {
	uc, store, _ := newIngestion(nil)
	ctx := context.Background()

	got, err := uc.UploadMany(ctx, session, []Upload{
		{Kind: models.KindForecast, Filename: "f.csv", Data: []byte(forecastCSV)},
		{Kind: models.KindActual, Filename: "a.csv", Data: []byte(actualCSV)},
		{Kind: models.KindContract, Filename: "c.txt", Data: []byte(contractTxt)},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, models.KindForecast, got[0].Kind)
	assert.Equal(t, models.KindContract, got[2].Kind)

	list, err := uc.List(ctx, session)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	// one bad file stores nothing
	_, err = uc.UploadMany(ctx, "desk-2", []Upload{
		{Kind: models.KindMarket, Filename: "m.csv", Data: []byte(marketCSV)},
		{Kind: models.KindContract, Filename: "c.csv", Data: []byte("a\n")},
	})
	assert.ErrorIs(t, err, ErrKindMismatch)
	_, err = store.Get(ctx, "desk-2", models.KindMarket)
	assert.ErrorIs(t, err, domrepo.ErrDatasetNotFound)

	_, err = uc.UploadMany(ctx, session, []Upload{
		{Kind: models.KindMarket, Filename: "a.csv", Data: []byte(marketCSV)},
		{Kind: models.KindMarket, Filename: "b.csv", Data: []byte(marketCSV)},
	})
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestUploadManySkipsNonFiniteCells(t *testing.T) {
	sink := &captureSink{}
	uc, _, _ := newIngestion(sink)

	got, err := uc.UploadMany(context.Background(), session, []Upload{
		{Kind: models.KindMarket, Filename: "m.csv", Data: []byte("Region,Price,Volume\nNorth,NaN,500\nSouth,0.15,inf\n")},
		{Kind: models.KindActual, Filename: "a.csv", Data: []byte("Date,Region,Actual\n2024-06-01,North,NaN\n")},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Extracted)
	assert.Equal(t, 1, got[0].Skipped)
	require.Len(t, sink.prices, 1)
	assert.Equal(t, "South", sink.prices[0].Region)
	assert.Zero(t, sink.prices[0].Volume)
}

func TestDeleteDataset(t *testing.T) {
	uc, _, _ := newIngestion(nil)
	ctx := context.Background()
	_, err := uc.Upload(ctx, session, Upload{Kind: models.KindMarket, Filename: "m.csv", Data: []byte(marketCSV)})
	require.NoError(t, err)

	require.NoError(t, uc.Delete(ctx, session, models.KindMarket))
	_, err = uc.Get(ctx, session, models.KindMarket)
	assert.ErrorIs(t, err, domrepo.ErrDatasetNotFound)
	assert.ErrorIs(t, uc.Delete(ctx, session, "weather"), ErrInvalidKind)
}
